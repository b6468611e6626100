package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Session lifecycle
	ErrCodeInvalidMachine  ErrorCode = "INVALID_MACHINE"
	ErrCodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeSessionExpired  ErrorCode = "SESSION_EXPIRED"
	ErrCodeSessionClosed   ErrorCode = "SESSION_CLOSED"

	// Order summary
	ErrCodeSummaryMissing    ErrorCode = "SUMMARY_MISSING"
	ErrCodeSummaryAlreadySet ErrorCode = "SUMMARY_ALREADY_SET"

	// Payment reservation
	ErrCodeReservationExists ErrorCode = "RESERVATION_ALREADY_EXISTS"
	ErrCodeReservationFailed ErrorCode = "RESERVATION_FAILED"

	// Manufacturer API
	ErrCodeAuthFailure         ErrorCode = "AUTH_FAILURE"
	ErrCodeRemoteRejected      ErrorCode = "REMOTE_REJECTED"
	ErrCodeRemoteTimeout       ErrorCode = "REMOTE_TIMEOUT"
	ErrCodeGenerationExhausted ErrorCode = "GENERATION_EXHAUSTED"

	// Webhook correlation
	ErrCodeUnresolvableWebhook ErrorCode = "UNRESOLVABLE_WEBHOOK"

	// Validation
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"

	// Rate Limiting
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Internal
	ErrCodeConflict ErrorCode = "CONFLICT"
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
)

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func InvalidMachine() *AppError {
	return New(ErrCodeInvalidMachine, "Machine id is missing or unknown")
}

func SessionNotFound() *AppError {
	return New(ErrCodeSessionNotFound, "Session not found")
}

func SessionExpired() *AppError {
	return New(ErrCodeSessionExpired, "Session has expired")
}

func SessionClosed() *AppError {
	return New(ErrCodeSessionClosed, "Session is cancelled or expired")
}

func SummaryMissing() *AppError {
	return New(ErrCodeSummaryMissing, "Order summary has not been submitted")
}

func SummaryAlreadySet() *AppError {
	return New(ErrCodeSummaryAlreadySet, "Order summary is already set with different content")
}

func ReservationAlreadyExists() *AppError {
	return New(ErrCodeReservationExists, "An active payment reservation already exists for this session")
}

func ReservationFailed(cause error) *AppError {
	return Wrap(ErrCodeReservationFailed, "Payment reservation failed", cause)
}

func AuthFailure(cause error) *AppError {
	return Wrap(ErrCodeAuthFailure, "Manufacturer authentication failed", cause)
}

// RemoteRejected reports a non-retryable rejection from the manufacturer API.
func RemoteRejected(code int, message string) *AppError {
	return New(ErrCodeRemoteRejected, fmt.Sprintf("Manufacturer rejected request: %s", message)).
		WithDetails(map[string]int{"remoteCode": code})
}

func RemoteTimeout(cause error) *AppError {
	return Wrap(ErrCodeRemoteTimeout, "Manufacturer request timed out", cause)
}

func GenerationExhausted(prefix string) *AppError {
	return New(ErrCodeGenerationExhausted, fmt.Sprintf("Could not generate a unique %s identifier", prefix))
}

func UnresolvableWebhook(thirdID string) *AppError {
	return New(ErrCodeUnresolvableWebhook, "No session found for payment callback").
		WithDetails(map[string]string{"thirdId": thirdID})
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s is required", field))
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded")
}

func Conflict(message string) *AppError {
	return New(ErrCodeConflict, message)
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", cause)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err carries the given code, unwrapping as needed.
func HasCode(err error, code ErrorCode) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}
