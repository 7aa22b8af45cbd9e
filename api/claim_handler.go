package api

import (
	"net/http"

	"github.com/stratoform/controlplane/dispatcher"
	"github.com/stratoform/controlplane/orcherr"
	"github.com/stratoform/controlplane/schema"
)

// claimRunRequest is the body of POST /api/v1/claim/run. The dispatcher
// (already resolving modules, variables, and dependencies from a full
// claim manifest) is the existing contract this wraps, rather than the raw
// ApiInfraPayload the runner itself consumes — the boundary's job is to
// resolve a manifest into that payload, not to accept an already-resolved
// one from the caller.
type claimRunRequest struct {
	Claim       schema.ClaimManifest      `json:"claim"`
	ProjectID   string                    `json:"projectId"`
	Region      string                    `json:"region"`
	Environment string                    `json:"environment"`
	Command     dispatcher.Command        `json:"command"`
	ExtraData   *schema.GitOpsCorrelation `json:"extraData,omitempty"`
}

// handleClaimRun answers POST /api/v1/claim/run: launches a runner job for
// the claim and returns {task_arn, job_id}.
func (s *Server) handleClaimRun(w http.ResponseWriter, r *http.Request) {
	var req claimRunRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAPIError(w, s.Log, orcherr.InputValidation("bad_request", err.Error(), err))
		return
	}
	if err := requireProjectAccess(r.Context(), req.ProjectID); err != nil {
		writeAPIError(w, s.Log, err)
		return
	}

	result, err := s.Dispatcher.DispatchClaim(r.Context(), dispatcher.RunClaimInput{
		Caller:      callerFromContext(r.Context()),
		Claim:       req.Claim,
		ProjectID:   req.ProjectID,
		Region:      req.Region,
		Environment: req.Environment,
		Command:     req.Command,
		ExtraData:   req.ExtraData,
	})
	if err != nil {
		writeAPIError(w, s.Log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"task_arn": result.TaskARN,
		"job_id":   result.JobID,
	})
}
