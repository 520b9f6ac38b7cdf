package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Status  int               `json:"status"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors by code so cloned predefined errors still satisfy errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// Retryable reports whether the caller may safely retry the same request.
func (e *Error) Retryable() bool {
	return e != nil && e.Code == ErrNumberingConflict.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound              = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrConfigurationNotFound = New("CONFIGURATION_NOT_FOUND", http.StatusNotFound, "register configuration not found")
	ErrForbidden             = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized          = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict              = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation            = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInvalidTransition     = New("INVALID_TRANSITION", http.StatusConflict, "invalid state transition")
	ErrNumberingConflict     = New("NUMBERING_CONFLICT", http.StatusServiceUnavailable, "register number could not be allocated, retry the request")
	ErrNoPendingSteps        = New("NO_PENDING_STEPS", http.StatusConflict, "no pending steps addressed to the caller")
	ErrInternal              = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss             = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Validation builds a VALIDATION_ERROR carrying per-field messages.
func Validation(message string, details map[string]string) *Error {
	clone := Clone(ErrValidation, message)
	if len(details) > 0 {
		clone.Details = make(map[string]string, len(details))
		for k, v := range details {
			clone.Details[k] = v
		}
	}
	return clone
}
