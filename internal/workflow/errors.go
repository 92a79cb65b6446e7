// Package workflow holds the error taxonomy shared by the task and
// application lifecycle state machines.
package workflow

import (
	"errors"
	"net/http"

	"github.com/taskboard-hq/taskboard/internal/rbac"
)

// Kind classifies a transition failure.
type Kind string

const (
	KindValidation Kind = "validation_error"
	KindForbidden  Kind = "forbidden"
	KindConflict   Kind = "conflict"
	KindNotFound   Kind = "not_found"
)

// Kind sentinels. A *Error matches the sentinel of its kind under errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrForbidden  = errors.New("forbidden")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
)

// Canonical denial reasons.
const (
	ReasonMissingPermission    = rbac.ReasonMissingPermission
	ReasonOrganizationMismatch = rbac.ReasonOrganizationMismatch
	ReasonNotOwner             = rbac.ReasonNotOwner
	ReasonInvalidState         = "invalid current state"
	ReasonDuplicateApplication = "duplicate application"
	ReasonReasonRequired       = "rejection reason is required"
	ReasonNoActor              = rbac.ReasonNoActor
)

// Error is a typed transition failure carrying a reason the caller can render.
type Error struct {
	Kind   Kind
	Reason string
	Detail string
}

func (e *Error) Error() string {
	msg := string(e.Kind) + ": " + e.Reason
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// Is matches the kind sentinel.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func (k Kind) sentinel() error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindForbidden:
		return ErrForbidden
	case KindConflict:
		return ErrConflict
	case KindNotFound:
		return ErrNotFound
	default:
		return nil
	}
}

func Validation(reason string) *Error {
	return &Error{Kind: KindValidation, Reason: reason}
}

func Forbidden(reason string) *Error {
	return &Error{Kind: KindForbidden, Reason: reason}
}

func Conflict(reason, detail string) *Error {
	return &Error{Kind: KindConflict, Reason: reason, Detail: detail}
}

func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Reason: resource + " not found"}
}

// Denied converts a negative decision into a Forbidden error. It returns nil
// when the decision allows.
func Denied(d rbac.Decision) error {
	if d.Allowed {
		return nil
	}
	return Forbidden(d.Reason)
}

// InvalidState builds the conflict returned when the current status does
// not admit the requested transition.
func InvalidState(action, current string) *Error {
	return Conflict(ReasonInvalidState, action+" not allowed from "+current)
}

// As extracts the *Error from err, if any.
func As(err error) (*Error, bool) {
	var we *Error
	if errors.As(err, &we) {
		return we, true
	}
	return nil, false
}

// HTTPStatus maps an error to the response status the handlers reply with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Body renders err as the JSON error body used across handlers.
func Body(err error) map[string]string {
	if we, ok := As(err); ok {
		body := map[string]string{"error": string(we.Kind), "reason": we.Reason}
		if we.Detail != "" {
			body["detail"] = we.Detail
		}
		return body
	}
	return map[string]string{"error": "internal error"}
}
