package api

import "github.com/go-chi/chi/v5"

// mountProtectedRoutes wires every route spec.md §6 marks authenticated:
// deployment/plan/log/event history, claim dispatch, and the registry write
// surface (publish/deprecate). requireCaller has already run by the time
// any of these handlers execute, so callerFromContext is always populated.
func (s *Server) mountProtectedRoutes(r chi.Router) {
	r.Get("/deployments/{project}/{region}", s.handleListDeployments)
	r.Get("/deployments/module/{project}/{region}/{module}", s.handleListDeploymentsByModule)
	r.Get("/deployments/history/{project}/{region}", s.handleDeploymentsHistory)
	r.Get("/deployment/{project}/{region}/{envSeg1}/{envSeg2}/{depSeg1}/{depSeg2}", s.handleGetDeployment)

	r.Get("/plan/{project}/{region}/{envSeg1}/{envSeg2}/{depSeg1}/{depSeg2}/{jobID}", s.handleGetPlan)
	r.Get("/change_record/{project}/{region}/{envSeg1}/{envSeg2}/{depSeg1}/{depSeg2}/{jobID}/{kind}", s.handleGetChangeRecord)

	r.Get("/logs/{project}/{region}/{jobID}", s.handleGetLogs)
	r.Get("/events/{project}/{region}/{envSeg1}/{envSeg2}/{depSeg1}/{depSeg2}", s.handleListEvents)

	r.Post("/claim/run", s.handleClaimRun)

	r.Put("/module/{track}/{module}/{version}/deprecate", s.handleDeprecateModule)
	r.Post("/module/publish", s.handlePublishModule)
	r.Post("/stack/preview", s.handleStackPreview)
}

// joinTwoSegment rejoins a path value the router split across two segments
// because it contains a literal "/" (environment names and deployment ids
// per spec.md §6's "two-segment" note).
func joinTwoSegment(seg1, seg2 string) string {
	if seg2 == "" {
		return seg1
	}
	return seg1 + "/" + seg2
}
