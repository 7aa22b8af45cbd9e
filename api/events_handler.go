package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stratoform/controlplane/orcherr"
	"github.com/stratoform/controlplane/schema"
)

// handleListEvents answers
// GET /api/v1/events/{project}/{region}/{envSeg1}/{envSeg2}/{depSeg1}/{depSeg2}
// with an optional ?event_type filter; "mutate" expands to apply OR
// destroy per spec.md §6.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	region := chi.URLParam(r, "region")
	environment := joinTwoSegment(chi.URLParam(r, "envSeg1"), chi.URLParam(r, "envSeg2"))
	deploymentID := joinTwoSegment(chi.URLParam(r, "depSeg1"), chi.URLParam(r, "depSeg2"))
	if err := requireProjectAccess(r.Context(), project); err != nil {
		writeAPIError(w, s.Log, err)
		return
	}

	eventType := r.URL.Query().Get("event_type")
	switch eventType {
	case "", "apply", "destroy", "plan", "mutate":
	default:
		writeAPIError(w, s.Log, orcherr.InputValidation("invalid_event_type", "event_type must be one of apply, destroy, plan, mutate", nil))
		return
	}

	token, err := schema.DecodePageToken(r.URL.Query().Get("next_token"))
	if err != nil {
		writeAPIError(w, s.Log, orcherr.InputValidation("invalid_next_token", err.Error(), err))
		return
	}

	events, lastKey, err := s.Metadata.ListEvents(r.Context(), project, region, deploymentID, environment, parseLimit(r, 50, 500), token.LastKey)
	if err != nil {
		writeAPIError(w, s.Log, err)
		return
	}

	filtered := filterEvents(events, eventType)
	next := ""
	if len(lastKey) > 0 {
		next = schema.PageToken{LastKey: lastKey}.Encode()
	}
	writePage(w, filtered, next)
}

func filterEvents(events []schema.EventRecord, eventType string) []schema.EventRecord {
	if eventType == "" {
		return events
	}
	out := make([]schema.EventRecord, 0, len(events))
	for _, e := range events {
		switch eventType {
		case "mutate":
			if e.Event == schema.EventApply || e.Event == schema.EventDestroy {
				out = append(out, e)
			}
		default:
			if string(e.Event) == eventType {
				out = append(out, e)
			}
		}
	}
	return out
}
