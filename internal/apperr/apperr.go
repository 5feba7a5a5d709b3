// Package apperr defines the error kinds surfaced to API callers and their
// HTTP status mapping.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error for the transport layer.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindUnauthorized
	KindForbidden
	KindStateConflict
	KindStorage
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindStateConflict:
		return "state_conflict"
	case KindStorage:
		return "storage"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Error is a classified application error. Code is a stable machine-readable
// identifier; Message is safe to show to callers.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Field   string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so callers can compare against the exported sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.Kind == e.Kind
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

// WithMessage returns a copy of e with a different caller-facing message.
func (e *Error) WithMessage(msg string) *Error {
	cp := *e
	cp.Message = msg
	return &cp
}

func Validation(code, field, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Field: field, Message: msg}
}

func NotFound(code, msg string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: msg}
}

func Unauthorized(code, msg string) *Error {
	return &Error{Kind: KindUnauthorized, Code: code, Message: msg}
}

func Forbidden(code, msg string) *Error {
	return &Error{Kind: KindForbidden, Code: code, Message: msg}
}

func Conflict(code, msg string) *Error {
	return &Error{Kind: KindStateConflict, Code: code, Message: msg}
}

// Storage wraps a filesystem, archive or database failure. The cause is
// logged but never returned to the caller.
func Storage(cause error) *Error {
	return &Error{Kind: KindStorage, Code: "storage_error", Message: "internal storage failure", Err: cause}
}

// Upstream wraps a failure of an external dependency such as the mail relay.
func Upstream(cause error) *Error {
	return &Error{Kind: KindUpstream, Code: "upstream_error", Message: "external service unavailable", Err: cause}
}

// Shared sentinels used across packages.
var (
	ErrNotFound         = NotFound("not_found", "resource not found")
	ErrEventNotFound    = NotFound("event_not_found", "Event not found!")
	ErrForbidden        = Forbidden("forbidden", "Not authorized to perform this action, authorization denied!")
	ErrEventClosed      = Conflict("event_closed", "The event has closed!")
	ErrCounterUnderflow = Conflict("counter_underflow", "counter is already zero")
	ErrInvalidID        = Validation("invalid_id", "id", "malformed identifier")
)

// KindOf returns the kind of err, KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Status maps an error to an HTTP status code.
func Status(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindStateConflict:
		return http.StatusConflict
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Public reports whether the message of err may be shown to callers as-is.
func Public(err error) bool {
	switch KindOf(err) {
	case KindInternal, KindStorage, KindUpstream:
		return false
	}
	return true
}
