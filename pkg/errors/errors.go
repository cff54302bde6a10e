// Package errors defines the API's typed error vocabulary. Services
// return these so handlers can map failures to HTTP statuses without
// inspecting storage-layer errors.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error carries a stable machine-readable code, a human message and the
// HTTP status it maps to. The wrapped cause is logged but never
// serialized to clients.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return "<nil>"
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New builds an Error with no underlying cause.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap builds an Error that keeps err as its cause for logging and
// errors.Is/As traversal.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Sentinels returned across service boundaries. ErrAlreadyEnrolled and
// ErrInvalidToken reuse generic codes on purpose: clients branch on the
// code, the message carries the specifics.
var (
	ErrValidation      = New("VALIDATION", http.StatusBadRequest, "validation failed")
	ErrNotFound        = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrAlreadyExists   = New("ALREADY_EXISTS", http.StatusConflict, "resource already exists")
	ErrAlreadyEnrolled = New("ALREADY_EXISTS", http.StatusConflict, "student is already enrolled in this class for the term")
	ErrForbidden       = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrConflict        = New("CONFLICT", http.StatusConflict, "conflict")
	ErrUnauthorized    = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrInvalidToken    = New("UNAUTHORIZED", http.StatusUnauthorized, "invalid or expired token")
	ErrInternal        = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss       = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// FromError coerces any error into an *Error. Errors that are not
// already typed collapse into INTERNAL_ERROR with the cause preserved,
// so nothing below the service layer leaks to clients.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone copies a sentinel so callers can override the message without
// mutating the shared value.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	out := *err
	if message != "" {
		out.Message = message
	}
	return &out
}
