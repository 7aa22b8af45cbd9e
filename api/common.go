// Package api implements the HTTP boundary (spec component C8): a
// chi-routed server exposing the open registry/meta surface and the
// protected deployment/claim/plan surface, with caller-identity
// extraction, pagination, CORS, and request metrics as cross-cutting
// middleware.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stratoform/controlplane/orcherr"
)

// newRequestID mints a fresh correlation ID for a request that didn't
// arrive with its own, the Go equivalent of the teacher's
// requestIDFromRequest fallback chain (see DESIGN.md).
func newRequestID() string {
	return uuid.NewString()
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeAPIError renders err as a JSON error body, choosing the HTTP status
// from its Kind per spec.md §6/§7. Errors outside the OpsOrchError taxonomy
// are treated as unexpected substrate/runtime faults and surface as 500,
// logged at Error level; taxonomy errors log at Warn (the boundary expects
// to see plenty of these — a 404 or 409 isn't a bug).
func writeAPIError(w http.ResponseWriter, log *zap.Logger, err error) {
	var oe orcherr.OpsOrchError
	if !errors.As(err, &oe) {
		if log != nil {
			log.Error("unhandled error at HTTP boundary", zap.Error(err))
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"code": "internal_error", "message": "internal server error",
		})
		return
	}

	status := statusForError(oe)
	if log != nil {
		log.Warn("request failed", zap.String("code", oe.Code), zap.String("kind", string(oe.Kind)), zap.Int("status", status))
	}
	writeJSON(w, status, map[string]string{"code": oe.Code, "message": oe.Message})
}

// statusForError implements spec.md §6's Kind -> HTTP status table.
// CallerAuth splits into 401 (no/invalid caller identity) and 403
// (identity resolved but not authorized for the project), distinguished
// by Code since both share one Kind in this taxonomy.
func statusForError(oe orcherr.OpsOrchError) int {
	switch oe.Kind {
	case orcherr.KindCallerAuth:
		if oe.Code == "access_denied" {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	case orcherr.KindInputValidation:
		return http.StatusBadRequest
	case orcherr.KindConflict:
		return http.StatusConflict
	case orcherr.KindNotFound:
		return http.StatusNotFound
	case orcherr.KindSubstrateTransient:
		return http.StatusServiceUnavailable
	case orcherr.KindSubstratePermanent, orcherr.KindExternal:
		return http.StatusInternalServerError
	case orcherr.KindPolicyViolation:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
