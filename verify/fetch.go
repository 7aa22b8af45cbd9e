package verify

import (
	"encoding/json"
	"fmt"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
)

const dsseEnvelopeArtifactType = "application/vnd.dsse.envelope.v1+json"

// FetchedArtifact is what the fetch phase resolves a "registry/repo:tag"
// reference to: its content digest and the decoded manifest, ready for the
// base-image guardrail pass and for comparison against an offline-verified
// artifact set's own digest.
type FetchedArtifact struct {
	Digest   string
	Manifest manifestFile
}

// FetchManifest resolves ref against its registry (go-containerregistry
// handles the registry's token endpoint internally — Docker Hub, GHCR, and
// generic registries configured with authn.DefaultKeychain all go through
// the same call), returning its content digest and parsed manifest.
func FetchManifest(ref string) (FetchedArtifact, error) {
	r, err := name.ParseReference(ref)
	if err != nil {
		return FetchedArtifact{}, fail("invalid image reference: " + err.Error())
	}

	desc, err := remote.Get(r, remote.WithAuthFromKeychain(authn.DefaultKeychain))
	if err != nil {
		return FetchedArtifact{}, fail("failed to fetch manifest: " + err.Error())
	}

	var manifest manifestFile
	if err := json.Unmarshal(desc.Manifest, &manifest); err != nil {
		return FetchedArtifact{}, fail("failed to parse manifest: " + err.Error())
	}

	return FetchedArtifact{
		Digest:   fmt.Sprintf("sha256:%s", desc.Digest.Hex),
		Manifest: manifest,
	}, nil
}

// DiscoverAttestationReference returns the cosign tag-pattern fallback
// ("sha256-<hex>.att") used to look up an attestation when the OCI
// Referrers API (queried by FindAttestationReferrer before falling back
// here) returns nothing.
func DiscoverAttestationReference(repo, digestHex string) string {
	return fmt.Sprintf("%s:sha256-%s.att", repo, digestHex)
}

// DiscoverSignatureReference is DiscoverAttestationReference's signature
// counterpart: the cosign "sha256-<hex>.sig" tag pattern.
func DiscoverSignatureReference(repo, digestHex string) string {
	return fmt.Sprintf("%s:sha256-%s.sig", repo, digestHex)
}

// FindAttestationReferrer queries the registry's OCI Referrers API for a
// manifest of artifactType dsseEnvelopeArtifactType pointing at subject,
// returning the first match's own digest as a fully qualified
// "repo@sha256:..." reference. An empty string (with nil error) is returned
// both when no referrer matches and when the Referrers request or its index
// cannot be read — the caller should then
// fall back to DiscoverAttestationReference's tag pattern, since not every
// registry implements the Referrers API yet.
func FindAttestationReferrer(repo string, subject name.Digest) (string, error) {
	index, err := remote.Referrers(subject)
	if err != nil {
		return "", nil
	}
	manifest, err := index.IndexManifest()
	if err != nil {
		return "", nil
	}
	for _, desc := range manifest.Manifests {
		if desc.ArtifactType == dsseEnvelopeArtifactType {
			return fmt.Sprintf("%s@%s", repo, desc.Digest.String()), nil
		}
	}
	return "", nil
}
