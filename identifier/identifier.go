// Package identifier implements the deterministic key-derivation functions
// shared by every other component: canonical module/deployment identifiers,
// a lexicographically-sortable semver encoding, and track resolution from a
// semver prerelease tag.
package identifier

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Track is a release channel derived from a semver prerelease tag.
type Track string

const (
	TrackStable Track = "stable"
	TrackRC     Track = "rc"
	TrackBeta   Track = "beta"
	TrackAlpha  Track = "alpha"
	TrackDev    Track = "dev"
)

// ModuleIdentifier returns the canonical "{track}::{module}" key used as the
// metadata store's module partition key.
func ModuleIdentifier(module string, track Track) string {
	return fmt.Sprintf("%s::%s", track, strings.ToLower(module))
}

// DeploymentIdentifier returns "{project}::{region}::{deploymentID}::{environment}".
// Empty trailing fields collapse their value but the separators are preserved
// so prefix scans over a partial key still line up.
func DeploymentIdentifier(project, region, deploymentID, environment string) string {
	return strings.Join([]string{project, region, deploymentID, environment}, "::")
}

// ZeroPadSemver renders a semver string as a zero-padded, lexicographically
// sortable key with precedence equivalent to semver comparison, e.g.
// "0.0.21" -> "000.000.021". Prereleases sort below the release they
// precede by appending a "-" separated suffix (ASCII '-' sorts below any
// digit, so "1.2.3-dev.5" < "1.2.3").
func ZeroPadSemver(version string, width int) (string, error) {
	v, err := semver.NewVersion(version)
	if err != nil {
		return "", fmt.Errorf("identifier: invalid semver %q: %w", version, err)
	}

	core := fmt.Sprintf("%0*d.%0*d.%0*d", width, v.Major(), width, v.Minor(), width, v.Patch())
	if pre := v.Prerelease(); pre != "" {
		return core + "-" + zeroPadPrerelease(pre, width), nil
	}
	return core, nil
}

// zeroPadPrerelease zero-pads any numeric dot-separated component of a
// prerelease tag so "dev.9" sorts below "dev.21" lexicographically.
func zeroPadPrerelease(pre string, width int) string {
	parts := strings.Split(pre, ".")
	for i, p := range parts {
		allDigits := p != ""
		for _, r := range p {
			if r < '0' || r > '9' {
				allDigits = false
				break
			}
		}
		if allDigits {
			parts[i] = fmt.Sprintf("%0*s", width, p)
		}
	}
	return strings.Join(parts, ".")
}

// TrackFromVersion derives the track implied by a semver's prerelease tag.
// A version with no prerelease is "stable". The first dot-separated
// component of the prerelease (e.g. "dev" in "1.2.3-dev.4") selects the
// track; anything unrecognized is rejected.
func TrackFromVersion(version string) (Track, error) {
	v, err := semver.NewVersion(version)
	if err != nil {
		return "", fmt.Errorf("identifier: invalid semver %q: %w", version, err)
	}

	pre := v.Prerelease()
	if pre == "" {
		return TrackStable, nil
	}

	tag := strings.SplitN(pre, ".", 2)[0]
	switch Track(tag) {
	case TrackRC, TrackBeta, TrackAlpha, TrackDev:
		return Track(tag), nil
	default:
		return "", fmt.Errorf("identifier: unrecognized prerelease tag %q in version %q", tag, version)
	}
}

// ValidateTrack returns an error if the caller-supplied track doesn't match
// the track implied by the version's own prerelease tag (spec's TrackMismatch
// condition).
func ValidateTrack(version string, track Track) error {
	derived, err := TrackFromVersion(version)
	if err != nil {
		return err
	}
	if derived != track {
		return fmt.Errorf("identifier: track %q does not match version %q (implies %q)", track, version, derived)
	}
	return nil
}

// CompareVersions returns -1, 0, or 1 the way semver.Version.Compare does,
// used to enforce "strictly newer" publish checks.
func CompareVersions(a, b string) (int, error) {
	va, err := semver.NewVersion(a)
	if err != nil {
		return 0, fmt.Errorf("identifier: invalid semver %q: %w", a, err)
	}
	vb, err := semver.NewVersion(b)
	if err != nil {
		return 0, fmt.Errorf("identifier: invalid semver %q: %w", b, err)
	}
	return va.Compare(vb), nil
}
