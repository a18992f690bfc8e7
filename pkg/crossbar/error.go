package crossbar

import (
	"fmt"
	"net/http"
)

// Error represents an HTTP error with a specific status code and message.
// It is the sole error kind the dispatcher maps to a structured response;
// any other error is logged and answered with a generic 500.
type Error struct {
	StatusCode int    `json:"status_code"`
	Kind       string `json:"kind"`
	Message    string `json:"message"`
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("[%s]: %s", e.Kind, e.Message)
}

// NewError creates an Error with the given status code and message. The kind
// name is derived from the standard status text.
func NewError(statusCode int, message string) *Error {
	kind := http.StatusText(statusCode)
	if kind == "" {
		kind = "Unknown"
	}
	return &Error{
		StatusCode: statusCode,
		Kind:       kind,
		Message:    message,
	}
}

// ErrBadRequest creates a 400 Bad Request error
func ErrBadRequest(message string) *Error {
	return NewError(http.StatusBadRequest, message)
}

// ErrBadRequestf creates a 400 Bad Request error with a formatted message
func ErrBadRequestf(format string, args ...any) *Error {
	return ErrBadRequest(fmt.Sprintf(format, args...))
}

// ErrUnauthorized creates a 401 Unauthorized error
func ErrUnauthorized(message string) *Error {
	return NewError(http.StatusUnauthorized, message)
}

// ErrForbidden creates a 403 Forbidden error
func ErrForbidden(message string) *Error {
	return NewError(http.StatusForbidden, message)
}

// ErrNotFound creates a 404 Not Found error
func ErrNotFound(message string) *Error {
	return NewError(http.StatusNotFound, message)
}

// ErrInternalServerError creates a 500 Internal Server Error
func ErrInternalServerError(message string) *Error {
	return NewError(http.StatusInternalServerError, message)
}

// ErrMissingInjection creates a 500 error signalling that a required
// context-injected value was never set by middleware. This is a server-side
// wiring bug, distinct from a client error, and carries its own kind so the
// two are distinguishable in logs and tests.
func ErrMissingInjection(name string) *Error {
	return &Error{
		StatusCode: http.StatusInternalServerError,
		Kind:       "Missing Injection",
		Message:    fmt.Sprintf("no value was injected into the request context under %q", name),
	}
}

// ErrStatusCode creates an error with an arbitrary caller-specified status
// code, as an escape hatch for statuses without a dedicated constructor
func ErrStatusCode(statusCode int, message string) *Error {
	return NewError(statusCode, message)
}

// IsMissingInjection reports whether err is a missing-injection error
func IsMissingInjection(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == "Missing Injection"
}
