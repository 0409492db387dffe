// Package errors provides the standardized error taxonomy for alert ingestion and delivery.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeMissingPhone     ErrorCode = "MISSING_PHONE"
	ErrCodeInvalidPayload   ErrorCode = "INVALID_PAYLOAD"

	ErrCodeSignatureInvalid ErrorCode = "SIGNATURE_INVALID"
	ErrCodeSourceForbidden  ErrorCode = "SOURCE_FORBIDDEN"
	ErrCodeUnauthorized     ErrorCode = "UNAUTHORIZED"

	ErrCodeStorageFailed ErrorCode = "STORAGE_FAILED"
	ErrCodeQueueFailed   ErrorCode = "QUEUE_FAILED"

	ErrCodeProviderRejected    ErrorCode = "PROVIDER_REJECTED"
	ErrCodeProviderUnreachable ErrorCode = "PROVIDER_UNREACHABLE"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// HTTPStatus returns the status code a webhook caller sees for this error.
func (e *StandardError) HTTPStatus() int {
	return StatusForCode(e.Code)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewValidationError creates a non-retryable validation error.
func NewValidationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Validation failed",
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
}

// NewMissingPhoneError is returned when no recipient number could be extracted.
func NewMissingPhoneError(cause error) *StandardError {
	return &StandardError{
		Code:      ErrCodeMissingPhone,
		Message:   "missing phone",
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// NewInvalidPayloadError wraps JSON decode and schema violations.
func NewInvalidPayloadError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidPayload,
		Message:   "invalid payload",
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
}

func NewSignatureInvalidError() *StandardError {
	return &StandardError{
		Code:      ErrCodeSignatureInvalid,
		Message:   "bad signature",
		Timestamp: time.Now().UTC(),
	}
}

func NewSourceForbiddenError(ip string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSourceForbidden,
		Message:   "forbidden",
		Details:   fmt.Sprintf("sourceIp: %s", ip),
		Timestamp: time.Now().UTC(),
	}
}

func NewUnauthorizedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnauthorized,
		Message:   "unauthorized",
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
}

// NewStorageFailedError creates a retryable database error.
func NewStorageFailedError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStorageFailed,
		Message:   "Database operation failed",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewQueueFailedError creates a retryable task queue error.
func NewQueueFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueueFailed,
		Message:   "Task queue operation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewProviderRejectedError records a well-formed non-2xx provider response.
func NewProviderRejectedError(statusCode int, body string) *StandardError {
	return &StandardError{
		Code:      ErrCodeProviderRejected,
		Message:   "Provider rejected message",
		Details:   body,
		Retryable: true,
		Metadata:  map[string]interface{}{"statusCode": statusCode},
		Timestamp: time.Now().UTC(),
	}
}

// NewProviderUnreachableError records a transport-level failure.
func NewProviderUnreachableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeProviderUnreachable,
		Message:   "Provider unreachable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// StatusForCode maps an error code to the webhook HTTP status.
func StatusForCode(code ErrorCode) int {
	switch code {
	case ErrCodeValidationFailed, ErrCodeMissingPhone:
		return http.StatusUnprocessableEntity
	case ErrCodeInvalidPayload:
		return http.StatusBadRequest
	case ErrCodeSignatureInvalid, ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeSourceForbidden:
		return http.StatusForbidden
	case ErrCodeProviderRejected, ErrCodeProviderUnreachable:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// Normalize ensures we always have a StandardError.
func Normalize(err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// IsRetryable reports whether err is a StandardError marked retryable.
func IsRetryable(err error) bool {
	var stdErr *StandardError
	return stderrors.As(err, &stdErr) && stdErr.Retryable
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	var stdErr *StandardError
	return stderrors.As(err, &stdErr) && stdErr.Code == code
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	switch {
	case strings.HasPrefix(string(code), "PROVIDER_"):
		return "provider"
	case code == ErrCodeStorageFailed || code == ErrCodeQueueFailed:
		return "infrastructure"
	case code == ErrCodeSignatureInvalid || code == ErrCodeSourceForbidden || code == ErrCodeUnauthorized:
		return "security"
	case code == ErrCodeInternal:
		return "internal"
	}
	return "validation"
}
