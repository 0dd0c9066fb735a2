package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avivago/avivago-backend/internal/account/domain"
	"github.com/avivago/avivago-backend/pkg/errors"
	"github.com/avivago/avivago-backend/pkg/httputil"
	"github.com/avivago/avivago-backend/pkg/i18n"
	"github.com/avivago/avivago-backend/pkg/logger"
)

type stubLifecycle struct {
	status     map[string]*domain.StatusView
	reviewErr  error
	lastEvent  domain.DriverEvent
	lastReason string
	lastUser   string
	listParams domain.UserListParams
}

func (s *stubLifecycle) Status(ctx context.Context, userID string) (*domain.StatusView, error) {
	v, ok := s.status[userID]
	if !ok {
		return nil, errors.NotFound("user")
	}
	cp := *v
	return &cp, nil
}

func (s *stubLifecycle) CreateDriverProfile(ctx context.Context, userID string) (*domain.DriverProfile, error) {
	return &domain.DriverProfile{UserID: userID, Status: domain.DriverDraft}, nil
}

func (s *stubLifecycle) Submit(ctx context.Context, userID string) (*domain.DriverProfile, error) {
	return nil, errors.Unprocessable("errors.documents_missing", "an identity document must be uploaded before submitting")
}

func (s *stubLifecycle) Resubmit(ctx context.Context, userID string) (*domain.DriverProfile, error) {
	return nil, errors.InvalidTransition("active", "resubmit")
}

func (s *stubLifecycle) Review(ctx context.Context, userID string, event domain.DriverEvent, reason string) (*domain.DriverProfile, error) {
	s.lastUser, s.lastEvent, s.lastReason = userID, event, reason
	if s.reviewErr != nil {
		return nil, s.reviewErr
	}
	return &domain.DriverProfile{UserID: userID, Status: domain.DriverActive}, nil
}

func (s *stubLifecycle) History(ctx context.Context, userID string) ([]*domain.StatusHistoryEntry, error) {
	return []*domain.StatusHistoryEntry{}, nil
}

func (s *stubLifecycle) Documents(ctx context.Context, userID string) ([]*domain.DriverDocument, error) {
	if userID != "d1" {
		return nil, errors.NotApplicable()
	}
	return []*domain.DriverDocument{
		{UserID: userID, DocumentType: "ine", JobID: "job-1", FieldsFound: []string{"name", "national_id_code"}},
	}, nil
}

func (s *stubLifecycle) ListUsers(ctx context.Context, params domain.UserListParams) ([]*domain.StatusView, int64, error) {
	s.listParams = params
	return []*domain.StatusView{
		{UserID: "u1", AccountStatus: domain.AccountValidated, DriverStatus: domain.DriverPendingApproval},
		{UserID: "u2", AccountStatus: domain.AccountIncomplete, DriverStatus: domain.DriverNotApplicable},
	}, 42, nil
}

func newRouter(svc LifecycleService) http.Handler {
	r := chi.NewRouter()
	r.Use(i18n.Middleware)
	r.Use(httputil.UserContext)
	r.Route("/api/v1", NewHandler(svc, logger.Nop()).Routes)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, httputil.Response) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp httputil.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func asUser(id string) map[string]string {
	return map[string]string{httputil.HeaderUserID: id}
}

func asReviewer() map[string]string {
	return map[string]string{
		httputil.HeaderUserID:          "admin-1",
		httputil.HeaderUserRole:        "reviewer",
		httputil.HeaderUserPermissions: "drivers.review,drivers.read,users.read",
	}
}

func TestMyStatus_LocalizedBadges(t *testing.T) {
	svc := &stubLifecycle{status: map[string]*domain.StatusView{
		"u1": {UserID: "u1", AccountStatus: domain.AccountValidated, DriverStatus: domain.DriverPendingApproval},
	}}
	router := newRouter(svc)

	rec, resp := do(t, router, http.MethodGet, "/api/v1/me/status", "", asUser("u1"))
	require.Equal(t, http.StatusOK, rec.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "validated", data["account_status"])
	assert.Equal(t, "pending_approval", data["driver_status"])
	assert.Equal(t, "En revisión", data["driver_status_label"])

	headers := asUser("u1")
	headers["Accept-Language"] = "en-US,en;q=0.9"
	_, resp = do(t, router, http.MethodGet, "/api/v1/me/status", "", headers)
	assert.Equal(t, "Pending approval", resp.Data.(map[string]interface{})["driver_status_label"])
}

func TestMeRoutesRequireUser(t *testing.T) {
	rec, _ := do(t, newRouter(&stubLifecycle{}), http.MethodGet, "/api/v1/me/status", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateDriver(t *testing.T) {
	rec, resp := do(t, newRouter(&stubLifecycle{}), http.MethodPost, "/api/v1/me/driver", "", asUser("u1"))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "draft", resp.Data.(map[string]interface{})["status"])
}

func TestSubmitAndResubmitErrors(t *testing.T) {
	router := newRouter(&stubLifecycle{})

	rec, resp := do(t, router, http.MethodPost, "/api/v1/me/driver/submit", "", asUser("u1"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "UNPROCESSABLE", resp.Error.Code)

	headers := asUser("u1")
	headers["Accept-Language"] = "en"
	rec, resp = do(t, router, http.MethodPost, "/api/v1/me/driver/resubmit", "", headers)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_TRANSITION", resp.Error.Code)
	assert.Equal(t, "Cannot apply resubmit to a driver in active", resp.Error.Message)
}

func TestReview(t *testing.T) {
	svc := &stubLifecycle{}
	router := newRouter(svc)

	rec, _ := do(t, router, http.MethodPost, "/api/v1/admin/drivers/d1/approve", "", asReviewer())
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.EventApprove, svc.lastEvent)
	assert.Equal(t, "d1", svc.lastUser)

	rec, _ = do(t, router, http.MethodPost, "/api/v1/admin/drivers/d1/suspend", `{"reason":"fraud report"}`, asReviewer())
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.EventSuspend, svc.lastEvent)
	assert.Equal(t, "fraud report", svc.lastReason)
}

func TestReview_ReasonRequired(t *testing.T) {
	svc := &stubLifecycle{}
	router := newRouter(svc)

	for _, body := range []string{"", `{}`, `{"reason":"   "}`} {
		rec, resp := do(t, router, http.MethodPost, "/api/v1/admin/drivers/d1/reject", body, asReviewer())
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "required", resp.Error.Details["reason"])
	}
	assert.Empty(t, svc.lastEvent)
}

func TestReview_Permissions(t *testing.T) {
	router := newRouter(&stubLifecycle{})

	rec, _ := do(t, router, http.MethodPost, "/api/v1/admin/drivers/d1/approve", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	support := map[string]string{
		httputil.HeaderUserID:          "support-1",
		httputil.HeaderUserPermissions: "drivers.read,users.read",
	}
	rec, _ = do(t, router, http.MethodPost, "/api/v1/admin/drivers/d1/approve", "", support)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = do(t, router, http.MethodGet, "/api/v1/admin/drivers/d1/history", "", support)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListUsers(t *testing.T) {
	svc := &stubLifecycle{}
	router := newRouter(svc)

	rec, resp := do(t, router, http.MethodGet, "/api/v1/admin/users?page=2&per_page=10&driver_status=pending_approval&q=ana", "", asReviewer())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, svc.listParams.Page)
	assert.Equal(t, 10, svc.listParams.PerPage)
	assert.Equal(t, "ana", svc.listParams.Search)
	require.NotNil(t, svc.listParams.DriverStatus)
	assert.Equal(t, domain.DriverPendingApproval, *svc.listParams.DriverStatus)

	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(42), resp.Meta.Total)
	assert.Equal(t, 5, resp.Meta.TotalPages)

	rows := resp.Data.([]interface{})
	require.Len(t, rows, 2)
	first := rows[0].(map[string]interface{})
	assert.Equal(t, "validated", first["account_status"])
	assert.Equal(t, "pending_approval", first["driver_status"])
	second := rows[1].(map[string]interface{})
	assert.Equal(t, "Sin perfil de conductor", second["driver_status_label"])

	rec, _ = do(t, router, http.MethodGet, "/api/v1/admin/users?driver_status=banned", "", asReviewer())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDocuments(t *testing.T) {
	router := newRouter(&stubLifecycle{})

	rec, resp := do(t, router, http.MethodGet, "/api/v1/admin/drivers/d1/documents", "", asReviewer())
	require.Equal(t, http.StatusOK, rec.Code)
	rows := resp.Data.([]interface{})
	require.Len(t, rows, 1)
	assert.Equal(t, "ine", rows[0].(map[string]interface{})["document_type"])

	rec, resp = do(t, router, http.MethodGet, "/api/v1/admin/drivers/p1/documents", "", asReviewer())
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_APPLICABLE", resp.Error.Code)

	rec, _ = do(t, router, http.MethodGet, "/api/v1/admin/drivers/d1/documents", "", asUser("d1"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
