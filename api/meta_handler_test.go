package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stratoform/controlplane/identifier"
	"github.com/stratoform/controlplane/schema"
)

func seedModule(t *testing.T, srv *Server, module, version string, deprecated bool) {
	t.Helper()
	track, err := identifier.TrackFromVersion(version)
	if err != nil {
		t.Fatalf("TrackFromVersion: %v", err)
	}
	manifest := schema.ModuleManifest{
		ManifestHeader: schema.ManifestHeader{
			APIVersion: "v1", Kind: "Module",
			Metadata: schema.ObjectMeta{Name: module},
		},
		Spec: schema.ModuleManifestSpec{ModuleName: module, SourcePath: "./"},
	}
	archive := newArchiveWithTf(module)
	rec, err := srv.Packaging.PublishModule(newCtx(), manifest, archive, track, version, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("PublishModule: %v", err)
	}
	if deprecated {
		if err := srv.Metadata.DeprecateModule(newCtx(), track, module, version); err != nil {
			t.Fatalf("DeprecateModule: %v", err)
		}
	}
	_ = rec
}

func TestHandleListModulesRequiresModuleParam(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/modules", nil)
	w := httptest.NewRecorder()

	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleListModulesFiltersDeprecated(t *testing.T) {
	srv := newTestServer(t)
	seedModule(t, srv, "s3bucket", "1.0.0", false)
	seedModule(t, srv, "s3bucket", "1.1.0", true)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/modules?module=s3bucket", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var records []schema.ModuleRecord
	if err := json.Unmarshal(w.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 1 || records[0].Version != "1.0.0" {
		t.Fatalf("expected only the non-deprecated version, got %+v", records)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/api/v1/modules?module=s3bucket&include_deprecated=true", nil)
	w2 := httptest.NewRecorder()
	srv.Router().ServeHTTP(w2, req2)
	var all []schema.ModuleRecord
	if err := json.Unmarshal(w2.Body.Bytes(), &all); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected both versions with include_deprecated, got %+v", all)
	}
}

func TestHandleGetModuleNotFound(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/module/stable/missing/1.0.0", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHandleGetAndDownloadModule(t *testing.T) {
	srv := newTestServer(t)
	seedModule(t, srv, "vpc", "2.0.0", false)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/module/stable/vpc/2.0.0", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	req2 := httptest.NewRequest(http.MethodGet, "/api/v1/module/stable/vpc/2.0.0/download", nil)
	w2 := httptest.NewRecorder()
	srv.Router().ServeHTTP(w2, req2)
	if w2.Code != http.StatusOK {
		t.Fatalf("expected 200 download, got %d", w2.Code)
	}
	if ct := w2.Header().Get("Content-Type"); ct != "application/zip" {
		t.Fatalf("expected application/zip content-type, got %s", ct)
	}
	if w2.Body.Len() == 0 {
		t.Fatal("expected non-empty archive body")
	}
}

func TestPaginateSliceRoundTrip(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	page1, next1 := paginateSlice(items, 2, "")
	if len(page1) != 2 || page1[0] != 1 || page1[1] != 2 {
		t.Fatalf("unexpected first page: %v", page1)
	}
	if next1 == "" {
		t.Fatal("expected a next token for a partial page")
	}

	page2, next2 := paginateSlice(items, 2, next1)
	if len(page2) != 2 || page2[0] != 3 || page2[1] != 4 {
		t.Fatalf("unexpected second page: %v", page2)
	}

	page3, next3 := paginateSlice(items, 2, next2)
	if len(page3) != 1 || page3[0] != 5 {
		t.Fatalf("unexpected third page: %v", page3)
	}
	if next3 != "" {
		t.Fatalf("expected empty token at end of stream, got %q", next3)
	}
}

func TestHandleMeta(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/meta", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["region"] != "us-east-1" {
		t.Fatalf("unexpected region in meta response: %+v", body)
	}
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

// ensure chi url params resolve as expected for a direct handler call, not
// just through the router, mirroring the teacher's habit of testing a
// handler both in isolation and end to end.
func TestHandleGetModuleDirectInvocation(t *testing.T) {
	srv := newTestServer(t)
	seedModule(t, srv, "rds", "1.0.0", false)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("track", "stable")
	rctx.URLParams.Add("name", "rds")
	rctx.URLParams.Add("version", "1.0.0")
	req = req.WithContext(withChiContext(req, rctx))

	w := httptest.NewRecorder()
	srv.handleGetModule(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}
