package api

import (
	"context"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	"github.com/stratoform/controlplane/identifier"
	"github.com/stratoform/controlplane/orcherr"
	"github.com/stratoform/controlplane/packaging"
	"github.com/stratoform/controlplane/schema"
	"github.com/stratoform/controlplane/verify"
)

const maxPublishBody = 64 << 20

// handleDeprecateModule answers
// PUT /api/v1/module/{track}/{module}/{version}/deprecate.
func (s *Server) handleDeprecateModule(w http.ResponseWriter, r *http.Request) {
	track := chi.URLParam(r, "track")
	module := chi.URLParam(r, "module")
	version := chi.URLParam(r, "version")

	if err := s.Metadata.DeprecateModule(r.Context(), identifier.Track(track), module, version); err != nil {
		writeAPIError(w, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deprecated"})
}

// handlePublishModule answers POST /api/v1/module/publish. The request is a
// multipart form: "manifest" (the Module or Stack manifest YAML), "version",
// an optional "track" (derived from the version's prerelease tag when
// absent), and, for a Module manifest, an "archive" file part holding the
// module's zipped IaC source. A Stack manifest carries no archive — its
// source tree is synthesized from its claims' already-published modules.
func (s *Server) handlePublishModule(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxPublishBody); err != nil {
		writeAPIError(w, s.Log, orcherr.InputValidation("bad_request", "could not parse multipart form: "+err.Error(), err))
		return
	}
	manifestRaw := []byte(r.FormValue("manifest"))
	header, err := schema.ParseManifestHeader(manifestRaw)
	if err != nil {
		writeAPIError(w, s.Log, orcherr.InputValidation("invalid_manifest", err.Error(), err))
		return
	}

	version := r.FormValue("version")
	track, err := resolveTrack(r.FormValue("track"), version)
	if err != nil {
		writeAPIError(w, s.Log, orcherr.InputValidation("track_mismatch", err.Error(), err))
		return
	}

	switch schema.ManifestKind(header.Kind) {
	case schema.KindModule:
		s.publishModuleManifest(w, r, manifestRaw, track, version)
	case schema.KindStack:
		s.publishStackManifest(w, r, manifestRaw, track, version)
	default:
		writeAPIError(w, s.Log, orcherr.InputValidation("invalid_manifest", "manifest kind must be Module or Stack", nil))
	}
}

func (s *Server) publishModuleManifest(w http.ResponseWriter, r *http.Request, manifestRaw []byte, track identifier.Track, version string) {
	var manifest schema.ModuleManifest
	if err := yaml.Unmarshal(manifestRaw, &manifest); err != nil {
		writeAPIError(w, s.Log, orcherr.InputValidation("invalid_manifest", err.Error(), err))
		return
	}

	if err := s.runSupplyChainGate(r); err != nil {
		writeAPIError(w, s.Log, err)
		return
	}

	file, _, err := r.FormFile("archive")
	if err != nil {
		writeAPIError(w, s.Log, orcherr.InputValidation("missing_archive", "module publish requires an 'archive' file part", err))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeAPIError(w, s.Log, orcherr.InputValidation("bad_archive", err.Error(), err))
		return
	}
	archive, err := packaging.ReadArchive(data)
	if err != nil {
		writeAPIError(w, s.Log, orcherr.InputValidation("bad_archive", err.Error(), err))
		return
	}

	rec, err := s.Packaging.PublishModule(r.Context(), manifest, archive, track, version, time.Now())
	if err != nil {
		writeAPIError(w, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) publishStackManifest(w http.ResponseWriter, r *http.Request, manifestRaw []byte, track identifier.Track, version string) {
	var manifest schema.StackManifest
	if err := yaml.Unmarshal(manifestRaw, &manifest); err != nil {
		writeAPIError(w, s.Log, orcherr.InputValidation("invalid_manifest", err.Error(), err))
		return
	}

	children, err := s.resolveChildren(r.Context(), manifest.Spec.Claims)
	if err != nil {
		writeAPIError(w, s.Log, err)
		return
	}

	rec, err := s.Packaging.PublishStack(r.Context(), manifest, children, track, version, time.Now())
	if err != nil {
		writeAPIError(w, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// stackPreviewRequest is the body of the supplemented POST
// /api/v1/stack/preview endpoint: the same claim list a stack manifest
// carries, without the surrounding Stack envelope, since a preview doesn't
// publish anything and needs no module name or version.
type stackPreviewRequest struct {
	Claims []schema.ClaimManifest `json:"claims"`
}

// handleStackPreview answers POST /api/v1/stack/preview: wires the claims'
// resolved modules together and returns the synthesized HCL without
// publishing it, so a caller can inspect the generated root module before
// committing to a version.
func (s *Server) handleStackPreview(w http.ResponseWriter, r *http.Request) {
	var req stackPreviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAPIError(w, s.Log, orcherr.InputValidation("bad_request", err.Error(), err))
		return
	}

	children, err := s.resolveChildren(r.Context(), req.Claims)
	if err != nil {
		writeAPIError(w, s.Log, err)
		return
	}

	hcl, err := packaging.GetStackPreview(children)
	if err != nil {
		writeAPIError(w, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"hcl": hcl})
}

// resolveChildren looks up the already-published module version each claim
// in a stack references, the way a human operator would have to before
// calling publish_stack in the original tool.
func (s *Server) resolveChildren(ctx context.Context, claims []schema.ClaimManifest) ([]packaging.ChildModule, error) {
	children := make([]packaging.ChildModule, 0, len(claims))
	for _, claim := range claims {
		module := claim.Module()
		track, err := identifier.TrackFromVersion(claim.Spec.ModuleVersion)
		if err != nil {
			return nil, orcherr.InputValidation("invalid_version", err.Error(), err)
		}
		rec, ok, err := s.Metadata.GetModule(ctx, track, module, claim.Spec.ModuleVersion)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, orcherr.NotFound("module " + module + "@" + claim.Spec.ModuleVersion)
		}
		children = append(children, packaging.ChildModule{Claim: claim, Module: rec})
	}
	return children, nil
}

// resolveTrack derives the publish track: an explicit trackParam must match
// the version's implied track (TrackMismatch otherwise); an absent one is
// derived from the version directly.
func resolveTrack(trackParam, version string) (identifier.Track, error) {
	if trackParam == "" {
		return identifier.TrackFromVersion(version)
	}
	track := identifier.Track(trackParam)
	if err := identifier.ValidateTrack(version, track); err != nil {
		return "", err
	}
	return track, nil
}

// runSupplyChainGate runs the supply-chain verifier against an optional
// "artifact_tar" part of a publish request — an OCI-layout tar of the
// module's build provenance, alongside optional "attestation_tar" and
// "signature_tar" parts and a required "digest" field naming the image
// manifest digest every check anchors to. A publish with no artifact_tar
// skips the gate entirely: verification is an opt-in admission check for
// publishers who package their module source through a signed OCI build,
// not a requirement on every publish. This is C7 running synchronously
// within the publish request's own task, the way spec.md's scheduling
// model places it.
func (s *Server) runSupplyChainGate(r *http.Request) error {
	artifactPath, cleanup, err := saveFormFileToTemp(r, "artifact_tar")
	if err != nil {
		return orcherr.InputValidation("bad_artifact_tar", err.Error(), err)
	}
	if artifactPath == "" {
		return nil
	}
	defer cleanup()

	attestationPath, cleanupAtt, err := saveFormFileToTemp(r, "attestation_tar")
	if err != nil {
		return orcherr.InputValidation("bad_attestation_tar", err.Error(), err)
	}
	defer cleanupAtt()

	signaturePath, cleanupSig, err := saveFormFileToTemp(r, "signature_tar")
	if err != nil {
		return orcherr.InputValidation("bad_signature_tar", err.Error(), err)
	}
	defer cleanupSig()

	digest := r.FormValue("digest")
	if digest == "" {
		return orcherr.InputValidation("missing_digest", "artifact_tar was supplied without a digest field", nil)
	}

	_, err = verify.VerifyOffline(verify.ArtifactSet{
		ArtifactPath:    artifactPath,
		AttestationPath: attestationPath,
		SignaturePath:   signaturePath,
		Digest:          digest,
	}, s.VerifyConfig)
	return err
}

// saveFormFileToTemp copies an optional multipart file part to a temp file,
// returning an empty path (and a no-op cleanup) when the part is absent —
// the verifier's offline checks all take a filesystem path, not a reader.
func saveFormFileToTemp(r *http.Request, field string) (string, func(), error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return "", func() {}, nil
	}
	defer file.Close()

	tmp, err := os.CreateTemp("", "stratoform-verify-*.tar")
	if err != nil {
		return "", func() {}, err
	}
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", func() {}, err
	}
	tmp.Close()
	return tmp.Name(), func() { os.Remove(tmp.Name()) }, nil
}
