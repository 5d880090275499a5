// Package apperror classifies failures into the stable kinds the API reports.
// Match with errors.As or the Is* helpers.
package apperror

import (
	"errors"
	"net/http"
)

// Kind is the class of a failure.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindNotFound
	KindConflict
	KindRateLimited
	KindUnavailable
)

// Error is a classified failure with a stable code.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Status returns the HTTP status for the error's kind.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WithDetails returns a copy of e carrying details.
func (e *Error) WithDetails(details any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

func Validation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

func Unauthorized(code, message string) *Error {
	return &Error{Kind: KindUnauthorized, Code: code, Message: message}
}

func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

func RateLimited(message string) *Error {
	return &Error{Kind: KindRateLimited, Code: "RATE_LIMITED", Message: message}
}

func Unavailable(code, message string) *Error {
	return &Error{Kind: KindUnavailable, Code: code, Message: message}
}

// Internal wraps an unexpected error. Message is what callers see; err stays server-side.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Code: "INTERNAL_ERROR", Message: message, Err: err}
}

// From classifies err. Unclassified errors become internal errors with a generic message.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal("An unexpected error occurred", err)
}

// KindOf returns the kind of err, or KindInternal when unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// StatusOf returns the HTTP status err maps to.
func StatusOf(err error) int {
	return From(err).Status()
}

func IsValidation(err error) bool { return err != nil && KindOf(err) == KindValidation }
func IsNotFound(err error) bool   { return err != nil && KindOf(err) == KindNotFound }
func IsConflict(err error) bool   { return err != nil && KindOf(err) == KindConflict }
