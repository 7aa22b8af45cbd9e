package identifier

import "testing"

func TestModuleIdentifier(t *testing.T) {
	if got := ModuleIdentifier("S3Bucket", TrackDev); got != "dev::s3bucket" {
		t.Fatalf("got %q", got)
	}
}

func TestDeploymentIdentifier(t *testing.T) {
	got := DeploymentIdentifier("proj1", "eu-west-1", "s3bucket-my-bucket", "dev")
	want := "proj1::eu-west-1::s3bucket-my-bucket::dev"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestZeroPadSemver(t *testing.T) {
	got, err := ZeroPadSemver("0.0.21", 3)
	if err != nil {
		t.Fatal(err)
	}
	if got != "000.000.021" {
		t.Fatalf("got %q", got)
	}
}

func TestZeroPadSemverOrdering(t *testing.T) {
	older, err := ZeroPadSemver("0.2.1-dev.5", 3)
	if err != nil {
		t.Fatal(err)
	}
	newer, err := ZeroPadSemver("0.2.1-dev.21", 3)
	if err != nil {
		t.Fatal(err)
	}
	release, err := ZeroPadSemver("0.2.1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if !(older < newer) {
		t.Fatalf("expected %q < %q", older, newer)
	}
	if !(newer < release) {
		t.Fatalf("expected prerelease %q to sort below release %q", newer, release)
	}
}

func TestTrackFromVersion(t *testing.T) {
	cases := map[string]Track{
		"1.2.3":         TrackStable,
		"1.2.3-rc.1":    TrackRC,
		"1.2.3-beta.2":  TrackBeta,
		"1.2.3-alpha.0": TrackAlpha,
		"1.2.3-dev.9":   TrackDev,
	}
	for v, want := range cases {
		got, err := TrackFromVersion(v)
		if err != nil {
			t.Fatalf("%s: %v", v, err)
		}
		if got != want {
			t.Fatalf("%s: got %q, want %q", v, got, want)
		}
	}
}

func TestTrackFromVersionRejectsUnknownTag(t *testing.T) {
	if _, err := TrackFromVersion("1.2.3-nightly.1"); err == nil {
		t.Fatalf("expected error for unrecognized prerelease tag")
	}
}

func TestValidateTrackMismatch(t *testing.T) {
	if err := ValidateTrack("0.2.1", TrackDev); err == nil {
		t.Fatalf("expected track mismatch error")
	}
	if err := ValidateTrack("0.2.1-dev.9", TrackDev); err != nil {
		t.Fatalf("expected no error: %v", err)
	}
}

func TestCompareVersions(t *testing.T) {
	cmp, err := CompareVersions("0.2.0-dev.9", "0.2.1-dev.5")
	if err != nil {
		t.Fatal(err)
	}
	if cmp >= 0 {
		t.Fatalf("expected 0.2.0-dev.9 < 0.2.1-dev.5, got cmp=%d", cmp)
	}
}
