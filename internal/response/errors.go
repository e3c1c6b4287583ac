package response

import (
	"errors"
	"fmt"
)

// Error codes carried by AppError and the JSON error envelope.
const (
	ErrCodeRefused           = "REFUSED"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeTransport         = "TRANSPORT_ERROR"
	ErrCodeInconsistentState = "INCONSISTENT_STATE"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// AppError is an error with a stable code the HTTP layer can map.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	cause   error
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.cause
}

// Is matches any AppError with the same code, so sentinels work with errors.Is.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if errors.As(target, &t) {
		return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
	}
	return false
}

func NewAppError(code, message, details string) *AppError {
	return &AppError{Code: code, Message: message, Details: details}
}

// Refusal: the request cannot be admitted now and retrying will not help.
func NewRefusalError(reason string) *AppError {
	return NewAppError(ErrCodeRefused, reason, "")
}

// Conflict: a concurrent actor won the race for the designer.
func NewConflictError(message string) *AppError {
	return NewAppError(ErrCodeConflict, message, "")
}

// NewTransportError wraps a store or relay failure the caller may retry.
func NewTransportError(operation string, cause error) *AppError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return &AppError{Code: ErrCodeTransport, Message: operation + " failed", Details: details, cause: cause}
}

func NewInconsistentStateError(message, details string) *AppError {
	return NewAppError(ErrCodeInconsistentState, message, details)
}

func NewNotFoundError(message, details string) *AppError {
	return NewAppError(ErrCodeNotFound, message, details)
}

func NewForbiddenError(message, details string) *AppError {
	return NewAppError(ErrCodeForbidden, message, details)
}

func NewValidationError(message, details string) *AppError {
	return NewAppError(ErrCodeValidation, message, details)
}

// CodeOf returns the AppError code in err's chain, or "" when there is none.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsRetryable reports whether the caller should try the operation again.
func IsRetryable(err error) bool {
	return CodeOf(err) == ErrCodeTransport
}
