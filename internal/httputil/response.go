package httputil

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/casevend/kiosk-server-go/internal/errors"
)

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string              `json:"error"`
	Code    apperrors.ErrorCode `json:"code"`
	Details any                 `json:"details,omitempty"`
}

// WriteError writes an AppError as an HTTP response with appropriate status code
func WriteError(w http.ResponseWriter, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		// Wrap unknown errors as internal errors
		appErr = apperrors.Internal("An unexpected error occurred")
	}

	status := statusFromCode(appErr.Code)
	response := ErrorResponse{
		Error:   appErr.Message,
		Code:    appErr.Code,
		Details: appErr.Details,
	}

	WriteJSON(w, status, response)
}

// statusFromCode maps ErrorCode to HTTP status code
func statusFromCode(code apperrors.ErrorCode) int {
	switch code {
	// 400 Bad Request
	case apperrors.ErrCodeValidation,
		apperrors.ErrCodeInvalidInput,
		apperrors.ErrCodeMissingRequired,
		apperrors.ErrCodeInvalidMachine,
		apperrors.ErrCodeSummaryMissing:
		return http.StatusBadRequest

	// 404 Not Found
	case apperrors.ErrCodeSessionNotFound,
		apperrors.ErrCodeUnresolvableWebhook:
		return http.StatusNotFound

	// 409 Conflict
	case apperrors.ErrCodeSummaryAlreadySet,
		apperrors.ErrCodeReservationExists,
		apperrors.ErrCodeConflict:
		return http.StatusConflict

	// 410 Gone
	case apperrors.ErrCodeSessionExpired,
		apperrors.ErrCodeSessionClosed:
		return http.StatusGone

	// 429 Too Many Requests
	case apperrors.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests

	// 502 Bad Gateway
	case apperrors.ErrCodeReservationFailed,
		apperrors.ErrCodeAuthFailure,
		apperrors.ErrCodeRemoteRejected:
		return http.StatusBadGateway

	// 504 Gateway Timeout
	case apperrors.ErrCodeRemoteTimeout:
		return http.StatusGatewayTimeout

	// 500 Internal Server Error
	case apperrors.ErrCodeGenerationExhausted,
		apperrors.ErrCodeInternal,
		apperrors.ErrCodeDatabase:
		return http.StatusInternalServerError

	default:
		return http.StatusInternalServerError
	}
}
