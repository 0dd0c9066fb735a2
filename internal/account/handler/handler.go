package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/avivago/avivago-backend/internal/account/domain"
	"github.com/avivago/avivago-backend/pkg/errors"
	"github.com/avivago/avivago-backend/pkg/httputil"
	"github.com/avivago/avivago-backend/pkg/i18n"
	"github.com/avivago/avivago-backend/pkg/logger"
	"github.com/avivago/avivago-backend/pkg/permissions"
)

// LifecycleService is the part of the lifecycle service the handlers call
type LifecycleService interface {
	Status(ctx context.Context, userID string) (*domain.StatusView, error)
	CreateDriverProfile(ctx context.Context, userID string) (*domain.DriverProfile, error)
	Submit(ctx context.Context, userID string) (*domain.DriverProfile, error)
	Resubmit(ctx context.Context, userID string) (*domain.DriverProfile, error)
	Review(ctx context.Context, userID string, event domain.DriverEvent, reason string) (*domain.DriverProfile, error)
	History(ctx context.Context, userID string) ([]*domain.StatusHistoryEntry, error)
	Documents(ctx context.Context, userID string) ([]*domain.DriverDocument, error)
	ListUsers(ctx context.Context, params domain.UserListParams) ([]*domain.StatusView, int64, error)
}

// Handler serves the account status and driver lifecycle endpoints
type Handler struct {
	service LifecycleService
	log     *logger.Logger
}

// NewHandler creates a new account handler
func NewHandler(svc LifecycleService, log *logger.Logger) *Handler {
	return &Handler{service: svc, log: log}
}

// Routes mounts the user-facing and admin routes under r
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(httputil.RequireUser)
		r.Get("/me/status", h.MyStatus)
		r.Post("/me/driver", h.CreateDriver)
		r.Post("/me/driver/submit", h.Submit)
		r.Post("/me/driver/resubmit", h.Resubmit)
	})

	r.Route("/admin", func(r chi.Router) {
		r.With(httputil.RequirePermission(permissions.UsersRead)).Get("/users", h.ListUsers)
		r.With(httputil.RequirePermission(permissions.DriversRead)).Get("/drivers/{userId}/history", h.History)
		r.With(httputil.RequirePermission(permissions.DriversRead)).Get("/drivers/{userId}/documents", h.Documents)

		r.Group(func(r chi.Router) {
			r.Use(httputil.RequirePermission(permissions.DriversReview))
			r.Post("/drivers/{userId}/approve", h.review(domain.EventApprove))
			r.Post("/drivers/{userId}/reject", h.review(domain.EventReject))
			r.Post("/drivers/{userId}/suspend", h.review(domain.EventSuspend))
			r.Post("/drivers/{userId}/reinstate", h.review(domain.EventReinstate))
		})
	})
}

// MyStatus handles GET /me/status
func (h *Handler) MyStatus(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Status(r.Context(), httputil.GetUserID(r.Context()))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, localize(r.Context(), view))
}

// CreateDriver handles POST /me/driver
func (h *Handler) CreateDriver(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.CreateDriverProfile(r.Context(), httputil.GetUserID(r.Context()))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.Created(w, profile)
}

// Submit handles POST /me/driver/submit
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.Submit(r.Context(), httputil.GetUserID(r.Context()))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, profile)
}

// Resubmit handles POST /me/driver/resubmit
func (h *Handler) Resubmit(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.Resubmit(r.Context(), httputil.GetUserID(r.Context()))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, profile)
}

// ReviewRequest is the body of admin review actions
type ReviewRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

// review returns the handler for POST /admin/drivers/{userId}/{action}.
// Reject and suspend require a non-blank reason.
func (h *Handler) review(event domain.DriverEvent) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReviewRequest
		if r.ContentLength != 0 {
			if err := httputil.DecodeAndValidate(r, &req); err != nil {
				httputil.ErrorLocalized(w, r, err)
				return
			}
		}
		if event.RequiresReason() && strings.TrimSpace(req.Reason) == "" {
			httputil.ErrorLocalized(w, r, errors.ReasonRequired())
			return
		}

		profile, err := h.service.Review(r.Context(), chi.URLParam(r, "userId"), event, req.Reason)
		if err != nil {
			httputil.ErrorLocalized(w, r, err)
			return
		}

		httputil.JSON(w, http.StatusOK, profile)
	}
}

// History handles GET /admin/drivers/{userId}/history
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.History(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, entries)
}

// Documents handles GET /admin/drivers/{userId}/documents
func (h *Handler) Documents(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.Documents(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, docs)
}

// ListUsers handles GET /admin/users
// Query parameters: page, per_page, driver_status, q
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, perPage := httputil.Pagination(r, 20, 100)
	params := domain.UserListParams{
		Search:  r.URL.Query().Get("q"),
		Page:    page,
		PerPage: perPage,
	}

	if s := r.URL.Query().Get("driver_status"); s != "" {
		status := domain.DriverStatus(s)
		if !status.Valid() {
			httputil.ErrorLocalized(w, r, errors.Validation(map[string]string{
				"driver_status": "must be one of: draft, pending_approval, active, rejected, suspended",
			}))
			return
		}
		params.DriverStatus = &status
	}

	views, total, err := h.service.ListUsers(r.Context(), params)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	for _, v := range views {
		localize(r.Context(), v)
	}

	httputil.JSONWithMeta(w, http.StatusOK, views, httputil.NewMeta(page, perPage, total))
}

// localize fills the badge labels in the request's language
func localize(ctx context.Context, view *domain.StatusView) *domain.StatusView {
	view.AccountStatusLabel = i18n.TFromContext(ctx, "account_status."+string(view.AccountStatus))
	view.DriverStatusLabel = i18n.TFromContext(ctx, "driver_status."+string(view.DriverStatus))
	return view
}
