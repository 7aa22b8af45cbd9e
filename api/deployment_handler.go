package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stratoform/controlplane/orcherr"
	"github.com/stratoform/controlplane/schema"
)

// handleListDeployments answers GET /api/v1/deployments/{project}/{region}.
func (s *Server) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	region := chi.URLParam(r, "region")
	if err := requireProjectAccess(r.Context(), project); err != nil {
		writeAPIError(w, s.Log, err)
		return
	}
	includeDeleted := parseBoolParam(r, "include_deleted")
	records, err := s.Metadata.ListDeployments(r.Context(), project, region, includeDeleted)
	if err != nil {
		writeAPIError(w, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleListDeploymentsByModule answers
// GET /api/v1/deployments/module/{project}/{region}/{module}.
func (s *Server) handleListDeploymentsByModule(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	region := chi.URLParam(r, "region")
	module := chi.URLParam(r, "module")
	if err := requireProjectAccess(r.Context(), project); err != nil {
		writeAPIError(w, s.Log, err)
		return
	}
	records, err := s.Metadata.ListDeploymentsByModule(r.Context(), project, region, module)
	if err != nil {
		writeAPIError(w, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleDeploymentsHistory answers
// GET /api/v1/deployments/history/{project}/{region}?type=plans|deleted.
// The deployment record carries no per-job "plan" marker, so "plans" is
// read as "every deployment still live" and "deleted" as the soft-deleted
// half of the same partition — the two values exhaustively split what
// ListDeployments(includeDeleted=true) returns (see DESIGN.md).
func (s *Server) handleDeploymentsHistory(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	region := chi.URLParam(r, "region")
	if err := requireProjectAccess(r.Context(), project); err != nil {
		writeAPIError(w, s.Log, err)
		return
	}
	historyType := r.URL.Query().Get("type")
	if historyType == "" {
		historyType = "plans"
	}
	if historyType != "plans" && historyType != "deleted" {
		writeAPIError(w, s.Log, orcherr.InputValidation("invalid_history_type", "type must be 'plans' or 'deleted'", nil))
		return
	}

	all, err := s.Metadata.ListDeployments(r.Context(), project, region, true)
	if err != nil {
		writeAPIError(w, s.Log, err)
		return
	}
	wantDeleted := historyType == "deleted"
	filtered := make([]schema.DeploymentRecord, 0, len(all))
	for _, rec := range all {
		if rec.IsDeleted() == wantDeleted {
			filtered = append(filtered, rec)
		}
	}
	writeJSON(w, http.StatusOK, filtered)
}

// handleGetDeployment answers
// GET /api/v1/deployment/{project}/{region}/{envSeg1}/{envSeg2}/{depSeg1}/{depSeg2}.
func (s *Server) handleGetDeployment(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	region := chi.URLParam(r, "region")
	environment := joinTwoSegment(chi.URLParam(r, "envSeg1"), chi.URLParam(r, "envSeg2"))
	deploymentID := joinTwoSegment(chi.URLParam(r, "depSeg1"), chi.URLParam(r, "depSeg2"))
	if err := requireProjectAccess(r.Context(), project); err != nil {
		writeAPIError(w, s.Log, err)
		return
	}

	rec, ok, err := s.Metadata.GetDeployment(r.Context(), project, region, deploymentID, environment)
	if err != nil {
		writeAPIError(w, s.Log, err)
		return
	}
	if !ok {
		writeAPIError(w, s.Log, orcherr.NotFound("deployment "+deploymentID+"/"+environment))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
