package types

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		code ErrorCode
		want int
	}{
		{"validation missing param", ErrCodeValidationMissingParam, http.StatusBadRequest},
		{"validation invalid amount", ErrCodeValidationInvalidAmount, http.StatusBadRequest},
		{"auth session missing", ErrCodeAuthSessionMissing, http.StatusUnauthorized},
		{"auth admin key", ErrCodeAuthAdminKey, http.StatusUnauthorized},
		{"not found order", ErrCodeNotFoundOrder, http.StatusNotFound},
		{"not found charge", ErrCodeNotFoundCharge, http.StatusNotFound},
		{"upstream stripe maps to 500, not 502", ErrCodeUpstreamStripe, http.StatusInternalServerError},
		{"webhook signature", ErrCodeWebhookSignature, http.StatusBadRequest},
		{"internal db", ErrCodeInternalDB, http.StatusInternalServerError},
		{"unknown code defaults to 500", ErrorCode("something_else"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.HTTPStatus())
		})
	}
}

func TestAppError_Error(t *testing.T) {
	err := NewAppError(ErrCodeNotFoundOrder, "order 42 not found", nil)
	assert.Equal(t, "not_found_order: order 42 not found", err.Error())
}

func TestAppError_Unwrap(t *testing.T) {
	inner := errors.New("connection reset")
	err := NewAppError(ErrCodeInternalDB, "query failed", inner)

	require.ErrorIs(t, err, inner)

	var appErr *AppError
	require.True(t, errors.As(error(err), &appErr))
	assert.Equal(t, ErrCodeInternalDB, appErr.Code)
}

func TestNewAppErrorWithDetails(t *testing.T) {
	err := NewAppErrorWithDetails(ErrCodeValidationInvalidAmount, "amount out of range", nil,
		map[string]any{"amount": -1.5},
	)
	assert.Equal(t, -1.5, err.Details["amount"])
	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus())
}
