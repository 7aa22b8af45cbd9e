package verify

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeTarGz(t *testing.T, files map[string][]byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.tar.gz")

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	for name, content := range files {
		if err := tw.WriteHeader(&tar.Header{Name: name, Size: int64(len(content)), Mode: 0o644}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write(content); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func buildValidArtifact(t *testing.T) (string, string) {
	t.Helper()
	layerContent := []byte("layer-one-content")
	layerHex := sha256Hex(layerContent)

	manifest := manifestFile{Layers: []layerDescriptor{
		{MediaType: "application/vnd.oci.image.layer.v1.tar", Digest: "sha256:" + layerHex, Size: int64(len(layerContent))},
	}}
	manifestBytes, err := json.Marshal(manifest)
	if err != nil {
		t.Fatal(err)
	}
	manifestHex := sha256Hex(manifestBytes)
	digest := "sha256:" + manifestHex

	index := indexFile{Manifests: []struct {
		Digest string `json:"digest"`
	}{{Digest: digest}}}
	indexBytes, err := json.Marshal(index)
	if err != nil {
		t.Fatal(err)
	}

	path := writeTarGz(t, map[string][]byte{
		"oci-layout":                       []byte(`{"imageLayoutVersion":"1.0.0"}`),
		"index.json":                       indexBytes,
		"blobs/sha256/" + manifestHex:      manifestBytes,
		"blobs/sha256/" + layerHex:         layerContent,
	})
	return path, digest
}

func TestVerifyMainArtifactOfflineAccepts(t *testing.T) {
	path, digest := buildValidArtifact(t)
	manifest, err := VerifyMainArtifactOffline(path, digest)
	if err != nil {
		t.Fatal(err)
	}
	if len(manifest.Layers) != 1 {
		t.Fatalf("expected 1 layer, got %d", len(manifest.Layers))
	}
}

func TestVerifyMainArtifactOfflineRejectsDigestMismatch(t *testing.T) {
	path, _ := buildValidArtifact(t)
	_, err := VerifyMainArtifactOffline(path, "sha256:"+sha256Hex([]byte("not-the-manifest")))
	if err == nil {
		t.Fatal("expected error on digest mismatch")
	}
}

func TestVerifyMainArtifactOfflineRejectsTamperedLayer(t *testing.T) {
	layerContent := []byte("layer-one-content")
	layerHex := sha256Hex(layerContent)

	manifest := manifestFile{Layers: []layerDescriptor{
		{MediaType: "application/vnd.oci.image.layer.v1.tar", Digest: "sha256:" + layerHex, Size: int64(len(layerContent))},
	}}
	manifestBytes, _ := json.Marshal(manifest)
	manifestHex := sha256Hex(manifestBytes)
	digest := "sha256:" + manifestHex

	index := indexFile{Manifests: []struct {
		Digest string `json:"digest"`
	}{{Digest: digest}}}
	indexBytes, _ := json.Marshal(index)

	path := writeTarGz(t, map[string][]byte{
		"oci-layout":                  []byte(`{}`),
		"index.json":                  indexBytes,
		"blobs/sha256/" + manifestHex: manifestBytes,
		"blobs/sha256/" + layerHex:    []byte("tampered content"),
	})

	if _, err := VerifyMainArtifactOffline(path, digest); err == nil {
		t.Fatal("expected error when a blob's content doesn't match its filename digest")
	}
}

func TestVerifySignatureOfflineCosignJSON(t *testing.T) {
	digest := "sha256:" + sha256Hex([]byte("image"))
	sig := cosignSimpleSigning{}
	sig.Critical.Image.DockerManifestDigest = digest
	sigBytes, _ := json.Marshal(sig)

	path := writeTarGz(t, map[string][]byte{
		"signature.json": sigBytes,
		"digest.txt":     []byte(digest),
	})

	if err := VerifySignatureOffline(path, digest); err != nil {
		t.Fatal(err)
	}
}

func TestVerifySignatureOfflineRejectsWrongDigest(t *testing.T) {
	sig := cosignSimpleSigning{}
	sig.Critical.Image.DockerManifestDigest = "sha256:wrongdigest"
	sigBytes, _ := json.Marshal(sig)

	path := writeTarGz(t, map[string][]byte{
		"signature.json": sigBytes,
		"digest.txt":     []byte("sha256:wrongdigest"),
	})

	if err := VerifySignatureOffline(path, "sha256:expecteddigest"); err == nil {
		t.Fatal("expected error on mismatched signature digest")
	}
}

func TestVerifySignatureOfflineRejectsTinyBinary(t *testing.T) {
	path := writeTarGz(t, map[string][]byte{
		"signature.json": []byte("tiny"),
		"digest.txt":     []byte("sha256:abc"),
	})
	if err := VerifySignatureOffline(path, "sha256:abc"); err == nil {
		t.Fatal("expected error for signature smaller than the minimum binary size")
	}
}

func TestDecodeAttestationPayloadMatchesSubject(t *testing.T) {
	subjectHex := sha256Hex([]byte("image"))
	statement := map[string]any{
		"subject": []map[string]any{
			{"name": "module.tar", "digest": map[string]string{"sha256": subjectHex}},
		},
		"predicateType": "https://slsa.dev/provenance/v1",
		"predicate": map[string]any{
			"invocation": map[string]any{
				"configSource": map[string]any{
					"uri": "git+https://github.com/example-org/example-module@refs/heads/main",
				},
			},
		},
	}
	payloadBytes, _ := json.Marshal(statement)
	envelope := dsseEnvelope{
		PayloadType: "application/vnd.in-toto+json",
		Payload:     base64.StdEncoding.EncodeToString(payloadBytes),
	}
	envelopeBytes, _ := json.Marshal(envelope)

	payload, predicateType, err := decodeAttestationPayload(envelopeBytes, subjectHex)
	if err != nil {
		t.Fatal(err)
	}
	if predicateType != "https://slsa.dev/provenance/v1" {
		t.Fatalf("unexpected predicate type %q", predicateType)
	}
	if payload["predicateType"] != predicateType {
		t.Fatal("expected decoded payload to round-trip predicateType")
	}
}

func TestDecodeAttestationPayloadRejectsWrongSubject(t *testing.T) {
	statement := map[string]any{
		"subject":       []map[string]any{{"digest": map[string]string{"sha256": "deadbeef"}}},
		"predicateType": "https://slsa.dev/provenance/v1",
	}
	payloadBytes, _ := json.Marshal(statement)
	envelope := dsseEnvelope{Payload: base64.StdEncoding.EncodeToString(payloadBytes)}
	envelopeBytes, _ := json.Marshal(envelope)

	if _, _, err := decodeAttestationPayload(envelopeBytes, "notdeadbeef"); err == nil {
		t.Fatal("expected error for a non-matching subject digest")
	}
}

func TestEvaluatePolicyAllowsExpectedRepoAndBranch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExpectedRepository = "example-org/example-module"
	cfg.ExpectedBranch = "main"

	payload := map[string]any{
		"predicateType": "https://slsa.dev/provenance/v1",
		"predicate": map[string]any{
			"invocation": map[string]any{
				"configSource": map[string]any{
					"uri": "git+https://github.com/example-org/example-module@refs/heads/main",
				},
			},
		},
	}

	if err := EvaluatePolicy(payload, cfg); err != nil {
		t.Fatal(err)
	}
}

func TestEvaluatePolicyRejectsWrongBranch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExpectedRepository = "example-org/example-module"
	cfg.ExpectedBranch = "main"

	payload := map[string]any{
		"predicateType": "https://slsa.dev/provenance/v1",
		"predicate": map[string]any{
			"invocation": map[string]any{
				"configSource": map[string]any{
					"uri": "git+https://github.com/example-org/example-module@refs/heads/feature-x",
				},
			},
		},
	}

	if err := EvaluatePolicy(payload, cfg); err == nil {
		t.Fatal("expected policy rejection for a non-matching branch")
	}
}

func TestVerifyBaseImagePolicyRejectsTooManyLayers(t *testing.T) {
	var layers []layerDescriptor
	for i := 0; i < maxLayers+1; i++ {
		layers = append(layers, layerDescriptor{MediaType: "application/vnd.oci.image.layer.v1.tar", Size: 1024})
	}
	if _, err := VerifyBaseImagePolicy(manifestFile{Layers: layers}); err == nil {
		t.Fatal("expected error for exceeding the layer count limit")
	}
}

func TestVerifyBaseImagePolicyRejectsForeignMediaType(t *testing.T) {
	layers := []layerDescriptor{{MediaType: "application/vnd.oci.image.layer.foreign.v1.tar+gzip", Size: 1024}}
	if _, err := VerifyBaseImagePolicy(manifestFile{Layers: layers}); err == nil {
		t.Fatal("expected error for a foreign layer media type")
	}
}

func TestVerifyBaseImagePolicyWarnsOnLargeLayer(t *testing.T) {
	layers := []layerDescriptor{{MediaType: "application/vnd.oci.image.layer.v1.tar", Size: int64(largeLayerThresholdMB+1) * 1024 * 1024}}
	warnings, err := VerifyBaseImagePolicy(manifestFile{Layers: layers})
	if err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected one warning for an oversized layer, got %v", warnings)
	}
}
