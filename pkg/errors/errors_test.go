package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"callpilot/internal/core/domain"
	"callpilot/pkg/circuitbreaker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	err := NewAppError(ErrCodeInvalidInput, "test error", http.StatusBadRequest)
	assert.Equal(t, "INVALID_INPUT: test error", err.Error())

	wrapped := WrapError(errors.New("original error"), ErrCodeInternal, "wrapped error", http.StatusInternalServerError)
	assert.Contains(t, wrapped.Error(), "original error")
}

func TestFromDomain(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		code   ErrorCode
		status int
	}{
		{"inverted bounds", fmt.Errorf("settings: %w", domain.ErrInconsistentBounds), ErrCodeInvalidInput, http.StatusBadRequest},
		{"bad tier", domain.ErrInvalidTier, ErrCodeInvalidInput, http.StatusBadRequest},
		{"bad layout", domain.ErrInvalidLayout, ErrCodeInvalidInput, http.StatusBadRequest},
		{"unknown participant", domain.ErrParticipantNotFound, ErrCodeNotFound, http.StatusNotFound},
		{"no call", domain.ErrMissingCallContext, ErrCodeNoActiveCall, http.StatusConflict},
		{"breaker open", fmt.Errorf("apply: %w", circuitbreaker.ErrOpen), ErrCodeServiceUnavailable, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), ErrCodeInternal, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			appErr := FromDomain(tc.err)
			require.NotNil(t, appErr)
			assert.Equal(t, tc.code, appErr.Code)
			assert.Equal(t, tc.status, appErr.HTTPStatus)
			assert.True(t, errors.Is(appErr, tc.err))
		})
	}

	assert.Nil(t, FromDomain(nil))
}

func TestGetAppError_Unwraps(t *testing.T) {
	inner := NewRateLimitError()
	err := fmt.Errorf("ws: %w", inner)
	assert.Same(t, inner, GetAppError(err))
	assert.Same(t, inner, FromDomain(err))
	assert.Nil(t, GetAppError(errors.New("plain")))
}
