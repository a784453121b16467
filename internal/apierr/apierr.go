// Package apierr defines the closed error taxonomy used across the API.
// Every failure surfaced to a client is one of the kinds below, carrying a
// fixed HTTP status and a machine-readable code. Errors are discriminated
// with errors.As on the concrete *Error type rather than a type hierarchy.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Code is the machine-readable error code included in error envelopes.
type Code string

const (
	CodeBadRequest         Code = "BAD_REQUEST"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodePaymentRequired    Code = "PAYMENT_REQUIRED"
	CodeForbidden          Code = "FORBIDDEN"
	CodeNotFound           Code = "NOT_FOUND"
	CodeMethodNotAllowed   Code = "METHOD_NOT_ALLOWED"
	CodeConflict           Code = "CONFLICT"
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeRateLimitExceeded  Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal           Code = "INTERNAL_ERROR"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
)

// Error is a typed API error. Status and Code are fixed per kind; Details
// carries optional structured payloads (validation violations, retry hints).
type Error struct {
	Status  int
	Code    Code
	Message string
	Details any

	// cause is the underlying error for internal failures. It is logged at
	// the boundary but never serialized unless debug rendering is enabled.
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// WithDetails returns a copy of the error carrying the given details payload.
func (e *Error) WithDetails(details any) *Error {
	clone := *e
	clone.Details = details
	return &clone
}

func BadRequest(message string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: CodeBadRequest, Message: message}
}

func Unauthorized(message string) *Error {
	if message == "" {
		message = "unauthorized"
	}
	return &Error{Status: http.StatusUnauthorized, Code: CodeUnauthorized, Message: message}
}

func PaymentRequired(message string) *Error {
	return &Error{Status: http.StatusPaymentRequired, Code: CodePaymentRequired, Message: message}
}

func Forbidden(message string) *Error {
	if message == "" {
		message = "forbidden"
	}
	return &Error{Status: http.StatusForbidden, Code: CodeForbidden, Message: message}
}

func NotFound(resource string) *Error {
	return &Error{Status: http.StatusNotFound, Code: CodeNotFound, Message: resource + " not found"}
}

func MethodNotAllowed() *Error {
	return &Error{Status: http.StatusMethodNotAllowed, Code: CodeMethodNotAllowed, Message: "method not allowed"}
}

func Conflict(message string) *Error {
	return &Error{Status: http.StatusConflict, Code: CodeConflict, Message: message}
}

// Violation is a single schema violation. Path is the dotted field path
// within the offending input.
type Violation struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func Validation(violations []Violation) *Error {
	return &Error{
		Status:  http.StatusUnprocessableEntity,
		Code:    CodeValidation,
		Message: "validation failed",
		Details: violations,
	}
}

// RateLimited reports an exceeded rate limit. retryAfter is whole seconds
// until the oldest retained request leaves the window.
func RateLimited(limit int, retryAfter int) *Error {
	return &Error{
		Status:  http.StatusTooManyRequests,
		Code:    CodeRateLimitExceeded,
		Message: "rate limit exceeded",
		Details: map[string]int{"limit": limit, "retryAfter": retryAfter},
	}
}

func Internal(message string, cause error) *Error {
	if message == "" {
		message = "internal server error"
	}
	return &Error{Status: http.StatusInternalServerError, Code: CodeInternal, Message: message, cause: cause}
}

func Unavailable(message string) *Error {
	if message == "" {
		message = "service unavailable"
	}
	return &Error{Status: http.StatusServiceUnavailable, Code: CodeServiceUnavailable, Message: message}
}

// From normalizes any error into a typed *Error. Typed errors pass through
// unchanged. Untyped errors are classified by message as a fallback for
// failures that escape typed handling, then downgraded to an internal error
// whose underlying message is withheld from clients.
func From(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "Unauthorized"):
		return Unauthorized("unauthorized")
	case strings.Contains(msg, "not found"):
		return &Error{Status: http.StatusNotFound, Code: CodeNotFound, Message: "resource not found"}
	default:
		return Internal("internal server error", err)
	}
}
