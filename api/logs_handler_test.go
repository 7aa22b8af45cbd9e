package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stratoform/controlplane/runnerlog"
)

func TestHandleGetLogsNoProviderConfigured(t *testing.T) {
	srv := newTestServer(t)
	srv.RunnerLog = nil

	req := authedRequest(http.MethodGet, "/api/v1/logs/proj-a/us-east-1/job-1")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 with no log provider, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleGetLogsPaginatesThroughMemProvider(t *testing.T) {
	srv := newTestServer(t)
	mem := srv.RunnerLog.(*runnerlog.MemProvider)
	for i := 0; i < 5; i++ {
		mem.Append("job-1", runnerlog.Entry{TimestampEpoch: int64(i), Line: "line"})
	}

	req := authedRequest(http.MethodGet, "/api/v1/logs/proj-a/us-east-1/job-1?limit=2")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var page1 []runnerlog.Entry
	if err := json.Unmarshal(w.Body.Bytes(), &page1); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page1) != 2 {
		t.Fatalf("expected 2 entries, got %+v", page1)
	}
	next := w.Header().Get("x-next-token")
	if next == "" {
		t.Fatal("expected a next token for a partial page")
	}

	req2 := authedRequest(http.MethodGet, "/api/v1/logs/proj-a/us-east-1/job-1?limit=2&next_token="+next)
	w2 := httptest.NewRecorder()
	srv.Router().ServeHTTP(w2, req2)
	var page2 []runnerlog.Entry
	if err := json.Unmarshal(w2.Body.Bytes(), &page2); err != nil {
		t.Fatalf("decode page2: %v", err)
	}
	if len(page2) != 2 {
		t.Fatalf("expected 2 entries on second page, got %+v", page2)
	}
	if page2[0].TimestampEpoch != 2 {
		t.Fatalf("expected second page to continue from offset 2, got %+v", page2)
	}
}

func TestHandleGetLogsRejectsInvalidNextToken(t *testing.T) {
	srv := newTestServer(t)
	req := authedRequest(http.MethodGet, "/api/v1/logs/proj-a/us-east-1/job-1?next_token=not-valid-base64url!!")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleGetLogsDeniedForUnauthorizedProject(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/logs/proj-a/us-east-1/job-1", nil)
	req.Header.Set(IdentityHeader, "operator")
	req.Header.Set(AllowedProjectsHeader, "proj-z")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
}
