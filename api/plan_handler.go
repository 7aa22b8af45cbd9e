package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stratoform/controlplane/orcherr"
	"github.com/stratoform/controlplane/schema"
)

// handleGetPlan answers
// GET /api/v1/plan/{project}/{region}/{envSeg1}/{envSeg2}/{depSeg1}/{depSeg2}/{jobID}:
// the PLAN-kind change record a job produced.
func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	s.getChangeRecordOfKind(w, r, schema.ChangeRecordPlan)
}

// handleGetChangeRecord answers the same shape with the kind named
// explicitly in the path, per spec.md §6's
// `/api/v1/change_record/…/{job_id}/{APPLY|DESTROY|PLAN}`.
func (s *Server) handleGetChangeRecord(w http.ResponseWriter, r *http.Request) {
	kind := schema.ChangeRecordKind(chi.URLParam(r, "kind"))
	switch kind {
	case schema.ChangeRecordApply, schema.ChangeRecordDestroy, schema.ChangeRecordPlan:
	default:
		writeAPIError(w, s.Log, orcherr.InputValidation("invalid_kind", "kind must be APPLY, DESTROY, or PLAN", nil))
		return
	}
	s.getChangeRecordOfKind(w, r, kind)
}

func (s *Server) getChangeRecordOfKind(w http.ResponseWriter, r *http.Request, kind schema.ChangeRecordKind) {
	project := chi.URLParam(r, "project")
	region := chi.URLParam(r, "region")
	environment := joinTwoSegment(chi.URLParam(r, "envSeg1"), chi.URLParam(r, "envSeg2"))
	deploymentID := joinTwoSegment(chi.URLParam(r, "depSeg1"), chi.URLParam(r, "depSeg2"))
	jobID := chi.URLParam(r, "jobID")

	if err := requireProjectAccess(r.Context(), project); err != nil {
		writeAPIError(w, s.Log, err)
		return
	}

	rec, ok, err := s.Metadata.GetChangeRecord(r.Context(), project, region, deploymentID, environment, jobID)
	if err != nil {
		writeAPIError(w, s.Log, err)
		return
	}
	if !ok || rec.Kind != kind {
		writeAPIError(w, s.Log, orcherr.NotFound("change record "+jobID))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
