package verify

import (
	"encoding/json"
)

// cosignSimpleSigning is the subset of a cosign "simple signing" JSON
// signature this package reads: just enough to cross-check the signed
// image digest.
type cosignSimpleSigning struct {
	Critical struct {
		Image struct {
			DockerManifestDigest string `json:"docker-manifest-digest"`
		} `json:"image"`
	} `json:"critical"`
}

const minBinarySignatureBytes = 32

// VerifySignatureOffline parses signaturePath's tar for a signature.json
// file. A JSON (cosign simple-signing) payload must reference
// subjectDigest in its docker-manifest-digest field; a binary payload only
// needs to be non-empty and at least minBinarySignatureBytes, mirroring
// the original's minimum-size sanity check rather than attempting to
// cryptographically verify an opaque blob offline.
func VerifySignatureOffline(signaturePath, subjectDigest string) error {
	files, err := extractNamedFiles(signaturePath, "signature.json")
	if err != nil {
		return err
	}
	content, ok := files["signature.json"]
	if !ok {
		return fail("incomplete signature data in archive")
	}
	if len(content) == 0 {
		return fail("signature content is empty")
	}

	var sig cosignSimpleSigning
	if err := json.Unmarshal(content, &sig); err == nil && sig.Critical.Image.DockerManifestDigest != "" {
		if sig.Critical.Image.DockerManifestDigest != subjectDigest {
			return fail("signature references incorrect image digest: " +
				sig.Critical.Image.DockerManifestDigest + " vs " + subjectDigest)
		}
		return nil
	}

	if len(content) < minBinarySignatureBytes {
		return fail("signature is unusually small for a binary signature")
	}
	return nil
}
