package errors

import (
	"errors"
	"fmt"
	"net/http"

	"callpilot/internal/core/domain"
	"callpilot/pkg/circuitbreaker"
)

// ErrorCode represents application error codes
type ErrorCode string

const (
	ErrCodeInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeNoActiveCall       ErrorCode = "NO_ACTIVE_CALL"
	ErrCodeRateLimit          ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// AppError is an error with a code and status for the transport layers.
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func NewAppError(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

func WrapError(err error, code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus, Cause: err}
}

func NewInvalidInputError(message string) *AppError {
	return NewAppError(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

func NewRateLimitError() *AppError {
	return NewAppError(ErrCodeRateLimit, "rate limit exceeded", http.StatusTooManyRequests)
}

// FromDomain classifies a controller error. Errors already carrying an
// AppError are returned as is.
func FromDomain(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr := GetAppError(err); appErr != nil {
		return appErr
	}

	switch {
	case errors.Is(err, domain.ErrInvalidTier),
		errors.Is(err, domain.ErrInvalidAdaptiveMode),
		errors.Is(err, domain.ErrInconsistentBounds),
		errors.Is(err, domain.ErrInvalidLayout),
		errors.Is(err, domain.ErrInvalidScreenPreset):
		return WrapError(err, ErrCodeInvalidInput, "invalid request", http.StatusBadRequest)
	case errors.Is(err, domain.ErrParticipantNotFound):
		return WrapError(err, ErrCodeNotFound, "participant not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrMissingCallContext):
		return WrapError(err, ErrCodeNoActiveCall, "no active call", http.StatusConflict)
	case errors.Is(err, circuitbreaker.ErrOpen):
		return WrapError(err, ErrCodeServiceUnavailable, "call platform unavailable", http.StatusServiceUnavailable)
	default:
		return WrapError(err, ErrCodeInternal, "internal error", http.StatusInternalServerError)
	}
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}
