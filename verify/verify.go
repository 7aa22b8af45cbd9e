// Package verify implements the supply-chain verification gate a module
// payload's OCI artifact must pass before it is admitted into the
// packaging pipeline: layout/digest integrity, attestation and signature
// checks, policy evaluation over the attestation's provenance predicate,
// and hard base-image guardrails.
package verify

import "github.com/stratoform/controlplane/orcherr"

// ArtifactSet names the three artifacts a verification run operates on:
// the main OCI layout tar, and optional attestation/signature tars
// fetched alongside it. Digest is the image manifest digest ("sha256:...")
// every check is anchored to.
type ArtifactSet struct {
	ArtifactPath    string
	AttestationPath string
	SignaturePath   string
	Digest          string
}

// Config is the verification policy's tunable input: which repository and
// branch a SLSA provenance attestation must name, plus the Rego policy
// text evaluated against it. Both are supplied out-of-band (env var or
// config file); DefaultConfig provides a workable fallback.
type Config struct {
	ExpectedRepository string `json:"expected_repository"`
	ExpectedBranch     string `json:"expected_branch"`
	PolicyContent      string `json:"policy_content"`
}

// Report is the outcome of a full Verify run: which sub-checks ran and
// any non-fatal warnings surfaced along the way (oversized layers, a
// missing attestation/signature when one could have been supplied).
type Report struct {
	ManifestVerified    bool
	AttestationVerified bool
	SignatureVerified   bool
	Warnings            []string
}

func fail(message string) error {
	return orcherr.PolicyViolation(message)
}

// VerifyOffline runs the full offline verification pipeline against a
// fetched artifact set: main artifact integrity (always), attestation
// verification (if present), signature verification (if present), and the
// hard base-image guardrails against the manifest recovered from the main
// artifact. An absent attestation or signature is not itself a failure —
// only surfaced as a Report.Warnings entry — since whether one is
// required is a policy decision made above this package.
func VerifyOffline(artifacts ArtifactSet, cfg Config) (Report, error) {
	manifest, err := VerifyMainArtifactOffline(artifacts.ArtifactPath, artifacts.Digest)
	if err != nil {
		return Report{}, err
	}
	report := Report{ManifestVerified: true}

	if artifacts.AttestationPath != "" {
		if err := VerifyAttestationOffline(artifacts.AttestationPath, artifacts.Digest, cfg); err != nil {
			return report, err
		}
		report.AttestationVerified = true
	} else {
		report.Warnings = append(report.Warnings, "no attestation file provided, skipping attestation verification")
	}

	if artifacts.SignaturePath != "" {
		if err := VerifySignatureOffline(artifacts.SignaturePath, artifacts.Digest); err != nil {
			return report, err
		}
		report.SignatureVerified = true
	} else {
		report.Warnings = append(report.Warnings, "no signature file provided, skipping signature verification")
	}

	baseImageWarnings, err := VerifyBaseImagePolicy(manifest)
	if err != nil {
		return report, err
	}
	report.Warnings = append(report.Warnings, baseImageWarnings...)

	return report, nil
}
