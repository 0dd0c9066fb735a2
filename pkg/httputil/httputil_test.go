package httputil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avivago/avivago-backend/pkg/actor"
	"github.com/avivago/avivago-backend/pkg/errors"
	"github.com/avivago/avivago-backend/pkg/i18n"
	"github.com/avivago/avivago-backend/pkg/permissions"
)

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestErrorLocalized_AppError(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(i18n.WithLocale(req.Context(), i18n.LocaleSpanish))
	rec := httptest.NewRecorder()

	ErrorLocalized(rec, req, errors.NotApplicable())

	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "NOT_APPLICABLE", resp.Error.Code)
	assert.Equal(t, "La cuenta no tiene perfil de conductor", resp.Error.Message)
}

func TestError_UnknownErrorIsInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	ErrorLocalized(rec, httptest.NewRequest(http.MethodGet, "/", nil), assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeResponse(t, rec).Error.Code)
}

func TestDecodeAndValidate(t *testing.T) {
	type body struct {
		Reason string `json:"reason" validate:"notblank"`
	}

	t.Run("blank reason", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"   "}`))
		var b body
		err := DecodeAndValidate(req, &b)

		var appErr *errors.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
		assert.Contains(t, appErr.Details, "reason")
	})

	t.Run("invalid json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
		var b body
		assert.True(t, errors.Is(DecodeAndValidate(req, &b), errors.ErrBadRequest))
	})

	t.Run("ok", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"blurry photo"}`))
		var b body
		require.NoError(t, DecodeAndValidate(req, &b))
		assert.Equal(t, "blurry photo", b.Reason)
	})
}

func TestPagination(t *testing.T) {
	tests := []struct {
		query       string
		page, limit int
	}{
		{"", 1, 20},
		{"page=3&per_page=50", 3, 50},
		{"page=-1&per_page=1000", 1, 100},
		{"page=abc", 1, 20},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
		page, perPage := Pagination(req, 20, 100)
		assert.Equal(t, tt.page, page, tt.query)
		assert.Equal(t, tt.limit, perPage, tt.query)
	}

	assert.Equal(t, 3, NewMeta(1, 20, 41).TotalPages)
	assert.Equal(t, 0, NewMeta(1, 20, 0).TotalPages)
}

func TestUserContextAndRequirePermission(t *testing.T) {
	var seen *actor.Actor
	handler := UserContext(RequirePermission(permissions.DriversReview)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = actor.FromContext(r.Context())
		NoContent(w)
	})))

	tests := []struct {
		name   string
		userID string
		perms  string
		status int
	}{
		{"anonymous", "", "", http.StatusUnauthorized},
		{"missing permission", "u-1", permissions.UsersRead, http.StatusForbidden},
		{"wildcard", "u-2", "drivers.*", http.StatusNoContent},
		{"exact", "u-3", permissions.DriversReview, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.userID != "" {
				req.Header.Set(HeaderUserID, tt.userID)
				req.Header.Set(HeaderUserPermissions, tt.perms)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusNoContent {
				require.NotNil(t, seen)
				assert.Equal(t, tt.userID, seen.ID)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	var id string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", id)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
	assert.Empty(t, GetRequestID(context.Background()))
}
