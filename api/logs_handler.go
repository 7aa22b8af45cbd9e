package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stratoform/controlplane/orcherr"
	"github.com/stratoform/controlplane/runnerlog"
	"github.com/stratoform/controlplane/schema"
)

// handleGetLogs answers GET /api/v1/logs/{project}/{region}/{jobID}, paging
// through Server.RunnerLog. An empty NextToken response field signals
// end-of-stream, matching spec.md §6's "empty/zero-delta token" rule.
func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	region := chi.URLParam(r, "region")
	jobID := chi.URLParam(r, "jobID")
	if err := requireProjectAccess(r.Context(), project); err != nil {
		writeAPIError(w, s.Log, err)
		return
	}
	if s.RunnerLog == nil {
		writeAPIError(w, s.Log, orcherr.SubstratePermanent("no log provider configured", nil))
		return
	}

	token, err := schema.DecodePageToken(r.URL.Query().Get("next_token"))
	if err != nil {
		writeAPIError(w, s.Log, orcherr.InputValidation("invalid_next_token", err.Error(), err))
		return
	}

	page, err := s.RunnerLog.Query(r.Context(), runnerlog.Query{
		ProjectID: project,
		Region:    region,
		JobID:     jobID,
		Limit:     parseLimit(r, 200, 1000),
		PageToken: token,
	})
	if err != nil {
		writeAPIError(w, s.Log, err)
		return
	}
	writePage(w, page.Entries, page.NextToken)
}
