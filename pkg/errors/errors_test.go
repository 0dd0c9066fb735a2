package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avivago/avivago-backend/pkg/i18n"
)

func TestConstructors_StatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		status int
		code   string
		target error
	}{
		{"not found", NotFound("user"), http.StatusNotFound, "NOT_FOUND", ErrNotFound},
		{"invalid transition", InvalidTransition("draft", "approve"), http.StatusConflict, "INVALID_TRANSITION", ErrInvalidTransition},
		{"not applicable", NotApplicable(), http.StatusNotFound, "NOT_APPLICABLE", ErrNotApplicable},
		{"reason required", ReasonRequired(), http.StatusBadRequest, "VALIDATION_ERROR", ErrValidation},
		{"unprocessable", Unprocessable("errors.empty_text", "no text"), http.StatusUnprocessableEntity, "UNPROCESSABLE", ErrUnprocessable},
		{"rate limited", RateLimited(), http.StatusTooManyRequests, "RATE_LIMITED", ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.StatusCode)
			assert.Equal(t, tt.code, tt.err.Code)
			assert.True(t, Is(tt.err, tt.target))
		})
	}
}

func TestAppError_WrappedStillMatches(t *testing.T) {
	wrapped := fmt.Errorf("apply transition: %w", InvalidTransition("active", "approve"))

	var appErr *AppError
	require.True(t, As(wrapped, &appErr))
	assert.Equal(t, "INVALID_TRANSITION", appErr.Code)
	assert.True(t, Is(wrapped, ErrInvalidTransition))
}

func TestAppError_Localize(t *testing.T) {
	err := InvalidTransition("rejected", "approve")

	ctx := i18n.WithLocale(context.Background(), i18n.LocaleEnglish)
	assert.Equal(t, "Cannot apply approve to a driver in rejected", err.Localize(ctx))

	plain := New("X", "plain message", http.StatusTeapot)
	assert.Equal(t, "plain message", plain.Localize(ctx))
}
