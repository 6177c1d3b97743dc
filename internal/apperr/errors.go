// Package apperr defines the error taxonomy shared by the access core.  Every
// failure a request can end with carries a stable Kind plus a human readable
// reason; handlers and middleware translate the kind into an HTTP status via
// Respond.  Anything that is not an *Error is treated as a transient
// infrastructure failure.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Kind classifies an error for the caller.
type Kind int

const (
	// Transient covers store and broker failures.  Callers may retry.
	Transient Kind = iota
	// Unauthenticated: missing, invalid or expired credential, or a failed
	// rotation precondition.  The reason never says which one.
	Unauthenticated
	// Forbidden: authenticated but not allowed (tenant state, quota, role,
	// cross-tenant access, verification required).
	Forbidden
	// Conflict: identity already registered.
	Conflict
	// BadRequest: malformed input or an invalid/expired one-time token.
	BadRequest
	// NotFound: referenced tenant, plan or principal is absent.
	NotFound
)

func (k Kind) String() string {
	switch k {
	case Unauthenticated:
		return "unauthenticated"
	case Forbidden:
		return "forbidden"
	case Conflict:
		return "conflict"
	case BadRequest:
		return "bad_request"
	case NotFound:
		return "not_found"
	}
	return "transient"
}

// Error is a classified failure.
type Error struct {
	Kind   Kind
	Reason string
	Err    error // optional cause, never shown to clients
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, so callers can write
// errors.Is(err, apperr.ErrUnauthenticated).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Reason == "" || t.Reason == e.Reason)
}

// Kind-only sentinels for errors.Is.
var (
	ErrUnauthenticated = &Error{Kind: Unauthenticated}
	ErrForbidden       = &Error{Kind: Forbidden}
	ErrConflict        = &Error{Kind: Conflict}
	ErrBadRequest      = &Error{Kind: BadRequest}
	ErrNotFound        = &Error{Kind: NotFound}
)

func New(kind Kind, reason string) *Error { return &Error{Kind: kind, Reason: reason} }

func Unauthenticatedf(format string, args ...any) *Error {
	return New(Unauthenticated, fmt.Sprintf(format, args...))
}

func Forbiddenf(format string, args ...any) *Error {
	return New(Forbidden, fmt.Sprintf(format, args...))
}

func Conflictf(format string, args ...any) *Error {
	return New(Conflict, fmt.Sprintf(format, args...))
}

func BadRequestf(format string, args ...any) *Error {
	return New(BadRequest, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...any) *Error {
	return New(NotFound, fmt.Sprintf(format, args...))
}

// Wrap marks err as a transient failure of op.  A nil err yields nil and an
// already classified error is returned unchanged.
func Wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: Transient, Reason: op, Err: err}
}

// KindOf returns the kind of err, Transient when err is unclassified.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Transient
}

// Reason returns the client-facing message for err.
func Reason(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Kind != Transient {
		return ae.Reason
	}
	return "temporarily unavailable"
}

// HTTPStatus maps a kind to its response status.
func HTTPStatus(k Kind) int {
	switch k {
	case Unauthenticated:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case Conflict:
		return http.StatusConflict
	case BadRequest:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	}
	return http.StatusServiceUnavailable
}

// Respond writes err as a JSON error body with the matching status.
func Respond(c echo.Context, err error) error {
	return c.JSON(HTTPStatus(KindOf(err)), echo.Map{"error": Reason(err)})
}
