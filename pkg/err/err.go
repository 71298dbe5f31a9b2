package errprocess

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classify an error for callers deciding whether to retry or how to answer
type Kind string

const (
	KindValidation Kind = "validation"
	KindRateLimit  Kind = "rate_limit"
	KindPermission Kind = "permission"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindTransient  Kind = "transient"
	KindInternal   Kind = "internal"
)

// Error definition typed service error
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is match any *Error of the same kind, so errors.Is(err, ErrNotFound) works
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Kind == e.Kind
}

// sentinel values for errors.Is
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrRateLimit  = &Error{Kind: KindRateLimit}
	ErrPermission = &Error{Kind: KindPermission}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrConflict   = &Error{Kind: KindConflict}
	ErrTransient  = &Error{Kind: KindTransient}
)

func newf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Validation input rejected, never retried
func Validation(format string, args ...interface{}) error {
	return newf(KindValidation, format, args...)
}

// RateLimit sender is too fast
func RateLimit(format string, args ...interface{}) error {
	return newf(KindRateLimit, format, args...)
}

// Permission requester may not perform the operation
func Permission(format string, args ...interface{}) error {
	return newf(KindPermission, format, args...)
}

// NotFound entity does not exist
func NotFound(format string, args ...interface{}) error {
	return newf(KindNotFound, format, args...)
}

// Conflict uniqueness violated
func Conflict(format string, args ...interface{}) error {
	return newf(KindConflict, format, args...)
}

// Transient wrap a storage or network failure
func Transient(msg string, err error) error {
	return &Error{Kind: KindTransient, Msg: msg, Err: err}
}

// KindOf return the kind of err, KindInternal for untyped errors
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsRetryable only transient failures may be retried by the caller
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}

// HTTPStatus map kind to a http status code
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindPermission:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
