// Package orcherr provides a typed error shape shared by every component of
// the control plane, so the HTTP boundary can map failures to status codes
// without re-deriving what kind of failure occurred from a string.
package orcherr

import "fmt"

// Kind is the error taxonomy from the spec's error handling design. It groups
// errors by how a caller (or the dispatcher's retry loop) should react, which
// is coarser than Code: many Codes share a Kind.
type Kind string

const (
	KindCallerAuth         Kind = "caller_auth"
	KindInputValidation    Kind = "input_validation"
	KindConflict           Kind = "conflict"
	KindNotFound           Kind = "not_found"
	KindSubstrateTransient Kind = "substrate_transient"
	KindSubstratePermanent Kind = "substrate_permanent"
	KindExternal           Kind = "external"
	KindPolicyViolation    Kind = "policy_violation"
)

// OpsOrchError is a typed error that can be surfaced to API clients without
// leaking provider-specific details.
type OpsOrchError struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e OpsOrchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is/As.
func (e OpsOrchError) Unwrap() error {
	return e.Err
}

// New constructs a new typed OpsOrchError with no taxonomy kind set.
// Prefer the Kind-specific constructors below for new call sites.
func New(code, message string, err error) OpsOrchError {
	return OpsOrchError{Code: code, Message: message, Err: err}
}

// Newf constructs an OpsOrchError with an explicit Kind.
func Newf(kind Kind, code, message string, err error) OpsOrchError {
	return OpsOrchError{Kind: kind, Code: code, Message: message, Err: err}
}

// Retryable reports whether the error's Kind is one the caller should retry
// with backoff (SubstrateTransient is the only such kind per the spec).
func (e OpsOrchError) Retryable() bool {
	return e.Kind == KindSubstrateTransient
}

// Common constructors for the taxonomy's recurring error codes.

func CallerAuth(code, message string) OpsOrchError {
	return Newf(KindCallerAuth, code, message, nil)
}

func InputValidation(code, message string, err error) OpsOrchError {
	return Newf(KindInputValidation, code, message, err)
}

func Conflict(code, message string) OpsOrchError {
	return Newf(KindConflict, code, message, nil)
}

func NotFound(what string) OpsOrchError {
	return Newf(KindNotFound, "not_found", what+" not found", nil)
}

func SubstrateTransient(message string, err error) OpsOrchError {
	return Newf(KindSubstrateTransient, "substrate_transient", message, err)
}

func SubstratePermanent(message string, err error) OpsOrchError {
	return Newf(KindSubstratePermanent, "substrate_permanent", message, err)
}

func External(code, message string, err error) OpsOrchError {
	return Newf(KindExternal, code, message, err)
}

func PolicyViolation(message string) OpsOrchError {
	return Newf(KindPolicyViolation, "policy_violation", message, nil)
}
