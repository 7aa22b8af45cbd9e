package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/stratoform/controlplane/identifier"
	"github.com/stratoform/controlplane/orcherr"
	"github.com/stratoform/controlplane/schema"
)

// mountOpenRoutes wires the unauthenticated registry/meta surface spec.md §6
// marks open: no caller identity is required to read the module registry or
// issue a self-describing metadata response.
func (s *Server) mountOpenRoutes(r chi.Router) {
	r.Get("/meta", s.handleMeta)

	r.Get("/modules", s.handleListModules)
	r.Get("/stacks", s.handleListStacks)
	r.Get("/providers", s.handleListProviders)
	r.Get("/module/{track}/{name}/{version}", s.handleGetModule)
	r.Get("/module/{track}/{name}/{version}/download", s.handleDownloadModule)
}

// handleMeta answers GET /api/v1/meta: the region/service/version triple a
// client uses to sanity-check it's talking to the right deployment.
func (s *Server) handleMeta(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"region":  s.Config.Region,
		"service": "stratoform-controlplane",
		"version": s.Config.Version,
	})
}

// handleListModules answers GET /api/v1/modules. The store's registry
// partition is keyed by (track, module) — spec.md §6's wire identifiers —
// so a listing request names one module explicitly via the ?module=
// query parameter and gets every published version back, newest first;
// there is no cross-module registry scan. See DESIGN.md's note on this
// simplification.
func (s *Server) handleListModules(w http.ResponseWriter, r *http.Request) {
	s.listModuleVersions(w, r, schema.ModuleTypeModule)
}

func (s *Server) handleListStacks(w http.ResponseWriter, r *http.Request) {
	s.listModuleVersions(w, r, schema.ModuleTypeStack)
}

// handleListProviders shares the module-listing path: the data model has no
// separate provider record, only module_type=module entries whose manifest
// happens to describe a Terraform provider by convention (see DESIGN.md).
func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	s.listModuleVersions(w, r, schema.ModuleTypeModule)
}

func (s *Server) listModuleVersions(w http.ResponseWriter, r *http.Request, wantType schema.ModuleType) {
	module := r.URL.Query().Get("module")
	if module == "" {
		writeAPIError(w, s.Log, orcherr.InputValidation("missing_module", "query parameter 'module' is required", nil))
		return
	}
	track := r.URL.Query().Get("track")
	if track == "" {
		track = string(identifier.TrackStable)
	}
	includeDeprecated := parseBoolParam(r, "include_deprecated")
	includeDev000 := parseBoolParam(r, "include_dev000")

	records, err := s.Metadata.ListModules(r.Context(), identifier.Track(track), module)
	if err != nil {
		writeAPIError(w, s.Log, err)
		return
	}

	filtered := make([]schema.ModuleRecord, 0, len(records))
	for _, rec := range records {
		if rec.ModuleType != wantType {
			continue
		}
		if rec.IsDeprecated() && !includeDeprecated {
			continue
		}
		if identifier.Track(rec.Track) == identifier.TrackDev && !includeDev000 {
			continue
		}
		filtered = append(filtered, rec)
	}

	page, next := paginateSlice(filtered, parseLimit(r, 50, 200), r.URL.Query().Get("next_token"))
	writePage(w, page, next)
}

// handleGetModule answers GET /api/v1/module/{track}/{name}/{version}.
func (s *Server) handleGetModule(w http.ResponseWriter, r *http.Request) {
	track := chi.URLParam(r, "track")
	name := chi.URLParam(r, "name")
	version := chi.URLParam(r, "version")

	rec, ok, err := s.Metadata.GetModule(r.Context(), identifier.Track(track), name, version)
	if err != nil {
		writeAPIError(w, s.Log, err)
		return
	}
	if !ok {
		writeAPIError(w, s.Log, orcherr.NotFound("module "+track+"::"+name+"@"+version))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleDownloadModule answers GET /api/v1/module/{track}/{name}/{version}/download:
// a streamed archive. The object-store read is opened only once the handler
// starts writing the body and is closed on every exit path (success, early
// disconnect, copy error), per spec.md §5's scoped-acquisition rule.
func (s *Server) handleDownloadModule(w http.ResponseWriter, r *http.Request) {
	track := chi.URLParam(r, "track")
	name := chi.URLParam(r, "name")
	version := chi.URLParam(r, "version")

	rec, ok, err := s.Metadata.GetModule(r.Context(), identifier.Track(track), name, version)
	if err != nil {
		writeAPIError(w, s.Log, err)
		return
	}
	if !ok {
		writeAPIError(w, s.Log, orcherr.NotFound("module "+track+"::"+name+"@"+version))
		return
	}

	key := rec.S3Key
	if s.Config.Region != "" {
		key = s.Config.Region + "/" + key
	}
	body, err := s.ObjectStore.Get(r.Context(), key)
	if err != nil {
		writeAPIError(w, s.Log, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`-`+version+`.zip"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		s.Log.Warn("download stream aborted", zap.Error(err))
	}
}

// paginateSlice applies an offset-based page over an already-filtered,
// already-ordered slice. The store query itself isn't paginated for the
// registry listing endpoints (ListModules returns a whole module/track
// partition in one Query), so pagination is applied in-process; the opaque
// token carries the next offset the same way a substrate LastEvaluatedKey
// would.
func paginateSlice[T any](all []T, limit int, token string) ([]T, string) {
	offset := 0
	if tok, err := schema.DecodePageToken(token); err == nil {
		if raw, ok := tok.LastKey["offset"]; ok {
			if n, err := strconv.Atoi(raw); err == nil {
				offset = n
			}
		}
	}
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	page := all[offset:end]

	next := ""
	if end < len(all) {
		next = schema.PageToken{LastKey: map[string]string{"offset": strconv.Itoa(end)}}.Encode()
	}
	return page, next
}
