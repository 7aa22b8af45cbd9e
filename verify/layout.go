package verify

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
)

// manifestFile is the subset of an OCI image manifest this package reads:
// its declared layer descriptors, used to cross-check the layer-file count
// found on disk and to run the base-image guardrails.
type manifestFile struct {
	Layers []layerDescriptor `json:"layers"`
}

type layerDescriptor struct {
	MediaType string `json:"mediaType"`
	Digest    string `json:"digest"`
	Size      int64  `json:"size"`
}

type indexFile struct {
	Manifests []struct {
		Digest string `json:"digest"`
	} `json:"manifests"`
}

// VerifyMainArtifactOffline walks artifactPath's gzip-compressed tar,
// confirms index.json's declared manifest digest matches expectedDigest,
// recomputes every blob's SHA-256 against its own filename, and checks the
// manifest's declared layer count against the number of non-manifest blob
// files actually present. Returns the parsed manifest for the base-image
// guardrail pass.
func VerifyMainArtifactOffline(artifactPath, expectedDigest string) (manifestFile, error) {
	expectedHex := strings.TrimPrefix(expectedDigest, "sha256:")

	f, err := os.Open(artifactPath)
	if err != nil {
		return manifestFile{}, fail("unable to open artifact: " + err.Error())
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return manifestFile{}, fail("artifact is not gzip-compressed: " + err.Error())
	}
	defer gz.Close()

	var manifestBytes []byte
	layerCount := 0
	sawLayout := false
	tr := tar.NewReader(gz)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return manifestFile{}, fail("corrupt artifact tar: " + err.Error())
		}

		name := path.Clean(hdr.Name)
		switch {
		case name == "oci-layout":
			sawLayout = true

		case name == "index.json":
			contents, err := io.ReadAll(tr)
			if err != nil {
				return manifestFile{}, fail("unable to read index.json: " + err.Error())
			}
			var idx indexFile
			if err := json.Unmarshal(contents, &idx); err != nil {
				return manifestFile{}, fail("index.json is not valid JSON: " + err.Error())
			}
			if len(idx.Manifests) > 0 && idx.Manifests[0].Digest != expectedDigest {
				return manifestFile{}, fail(fmt.Sprintf(
					"manifest digest in index.json (%s) doesn't match expected digest (%s)",
					idx.Manifests[0].Digest, expectedDigest))
			}

		case strings.HasPrefix(name, "blobs/sha256/") && !strings.HasSuffix(hdr.Name, "/"):
			contents, err := io.ReadAll(tr)
			if err != nil {
				return manifestFile{}, fail("unable to read blob " + name + ": " + err.Error())
			}
			filename := path.Base(name)
			sum := sha256.Sum256(contents)
			computedHex := hex.EncodeToString(sum[:])

			if filename == expectedHex {
				if computedHex != expectedHex {
					return manifestFile{}, fail(fmt.Sprintf(
						"manifest digest mismatch: expected %s, computed %s", expectedHex, computedHex))
				}
				manifestBytes = contents
				continue
			}

			if computedHex != filename {
				return manifestFile{}, fail(fmt.Sprintf(
					"layer digest mismatch for %s: computed %s", filename, computedHex))
			}
			layerCount++
		}
	}

	if !sawLayout {
		return manifestFile{}, fail("artifact is missing oci-layout marker")
	}
	if manifestBytes == nil {
		return manifestFile{}, fail("manifest blob not found in artifact")
	}

	var manifest manifestFile
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return manifestFile{}, fail("manifest blob is not valid JSON: " + err.Error())
	}
	if len(manifest.Layers) != layerCount {
		return manifestFile{}, fail(fmt.Sprintf(
			"layer count mismatch: manifest declares %d layers but found %d layer files",
			len(manifest.Layers), layerCount))
	}

	if err := verifyLayerDigestFormat(manifest.Layers); err != nil {
		return manifestFile{}, err
	}

	return manifest, nil
}

// verifyLayerDigestFormat checks every declared layer digest is a
// well-formed "sha256:<64 lowercase hex>" string, independent of whether
// the corresponding blob file was present on disk.
func verifyLayerDigestFormat(layers []layerDescriptor) error {
	for i, l := range layers {
		hexPart, ok := strings.CutPrefix(l.Digest, "sha256:")
		if !ok {
			return fail(fmt.Sprintf("layer %d has invalid digest format: %s", i, l.Digest))
		}
		if len(hexPart) != 64 {
			return fail(fmt.Sprintf("layer %d has invalid digest length: %d", i, len(hexPart)))
		}
		if _, err := hex.DecodeString(hexPart); err != nil {
			return fail(fmt.Sprintf("layer %d digest contains invalid hex characters", i))
		}
	}
	return nil
}

// extractNamedFiles reads a gzip tar looking for the given file names,
// returning their contents keyed by name. Used for the attestation and
// signature tars, which carry a flat {attestation.json|signature.json,
// digest.txt} pair rather than a full OCI layout.
func extractNamedFiles(tarPath string, names ...string) (map[string][]byte, error) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	f, err := os.Open(tarPath)
	if err != nil {
		return nil, fail("unable to open archive: " + err.Error())
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fail("archive is not gzip-compressed: " + err.Error())
	}
	defer gz.Close()

	out := map[string][]byte{}
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fail("corrupt archive tar: " + err.Error())
		}
		name := path.Clean(hdr.Name)
		if want[name] {
			contents, err := io.ReadAll(tr)
			if err != nil {
				return nil, fail("unable to read " + name + ": " + err.Error())
			}
			out[name] = contents
		}
	}
	return out, nil
}
