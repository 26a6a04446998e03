// Package errs carries a small set of transport-neutral error codes through
// the account and plan services up to the HTTP layer.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is an application error code. Codes are stable API values and appear
// in JSON error bodies.
type Code string

const (
	InvalidArgument    Code = "invalid_argument"
	NotFound           Code = "not_found"
	FailedPrecondition Code = "failed_precondition"
	PermissionDenied   Code = "permission_denied"
	Unauthenticated    Code = "unauthenticated"
	ResourceExhausted  Code = "resource_exhausted"
	Unavailable        Code = "unavailable"
	Internal           Code = "internal"
)

type codeInfo struct {
	status    int
	retryable bool
}

var codes = map[Code]codeInfo{
	InvalidArgument:    {status: http.StatusBadRequest},
	NotFound:           {status: http.StatusNotFound},
	FailedPrecondition: {status: http.StatusConflict},
	PermissionDenied:   {status: http.StatusForbidden},
	Unauthenticated:    {status: http.StatusUnauthorized},
	ResourceExhausted:  {status: http.StatusTooManyRequests, retryable: true},
	Unavailable:        {status: http.StatusServiceUnavailable, retryable: true},
	Internal:           {status: http.StatusInternalServerError},
}

// AllCodes lists every known code in declaration order.
var AllCodes = []Code{
	InvalidArgument,
	NotFound,
	FailedPrecondition,
	PermissionDenied,
	Unauthenticated,
	ResourceExhausted,
	Unavailable,
	Internal,
}

// Known reports whether c is one of AllCodes.
func (c Code) Known() bool {
	_, ok := codes[c]
	return ok
}

// Error is a coded application error. Message is safe to show to clients;
// Err is the internal cause and is never rendered by MessageOf.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a coded error with message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a coded error with a formatted message. A %w verb sets the
// cause.
func Errorf(code Code, format string, args ...any) error {
	formatted := fmt.Errorf(format, args...)
	return &Error{Code: code, Message: formatted.Error(), Err: errors.Unwrap(formatted)}
}

// Wrap creates a coded error with message and cause.
func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Err: cause}
}

// CodeOf returns the outermost error code, defaulting to internal.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) && coded.Code != "" {
		return coded.Code
	}
	return Internal
}

// Is reports whether err carries code. A nil error carries no code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// MessageOf returns a user-facing error message.
// Untyped errors collapse to "internal error" so that driver errors, file
// paths and hashes never reach an API response.
func MessageOf(err error) string {
	if err == nil {
		return string(Internal)
	}
	var coded *Error
	if errors.As(err, &coded) && coded.Message != "" {
		return coded.Message
	}
	return "internal error"
}

// HTTPStatus maps error code to HTTP status. Unknown codes map to 500.
func HTTPStatus(code Code) int {
	if info, ok := codes[code]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// Retryable reports whether a client may retry the same request later
// without changing it.
func Retryable(code Code) bool {
	return codes[code].retryable
}
