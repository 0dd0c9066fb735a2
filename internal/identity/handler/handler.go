package handler

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/avivago/avivago-backend/internal/identity/domain"
	"github.com/avivago/avivago-backend/internal/identity/service"
	"github.com/avivago/avivago-backend/pkg/errors"
	"github.com/avivago/avivago-backend/pkg/httputil"
	"github.com/avivago/avivago-backend/pkg/logger"
)

const defaultMaxUploadSize = 10 << 20 // 10MB

// IdentityService is the part of the identity service the handler calls
type IdentityService interface {
	StartExtraction(ctx context.Context, req service.ExtractionRequest) (*domain.ExtractionJob, error)
	ExtractText(ctx context.Context, rawText string, docType domain.DocumentType) (*domain.ExtractedIdentity, error)
	GetJob(ctx context.Context, jobID, userID string) (*domain.ExtractionJob, error)
	DiscardJob(ctx context.Context, jobID, userID string) error
	Verifications(ctx context.Context, userID string) ([]*domain.VerificationAuditEntry, error)
}

// Handler handles HTTP requests for identity document verification
type Handler struct {
	service       IdentityService
	maxUploadSize int64
	log           *logger.Logger
}

// NewHandler creates a new identity handler. A non-positive maxUploadSize
// uses the 10MB default.
func NewHandler(svc IdentityService, maxUploadSize int64, log *logger.Logger) *Handler {
	if maxUploadSize <= 0 {
		maxUploadSize = defaultMaxUploadSize
	}
	return &Handler{
		service:       svc,
		maxUploadSize: maxUploadSize,
		log:           log,
	}
}

// Routes mounts the identity endpoints
func (h *Handler) Routes(r chi.Router) {
	r.Post("/extract", h.Extract)
	r.Post("/extract-text", h.ExtractText)
	r.Get("/extract/{jobId}", h.GetResult)
	r.Delete("/extract/{jobId}", h.DiscardResult)
	r.Get("/verifications", h.Verifications)
}

// Extract handles POST /identity/extract
// Accepts multipart form with:
// - front: image of the document front
// - back: optional image of the document back
// - document_type: national_id, ine or passport
// - consent_timestamp: RFC3339 time the user consented to verification
func (h *Handler) Extract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)

	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		httputil.ErrorLocalized(w, r, errors.BadRequest("file too large or invalid multipart form").
			WithMessageKey("errors.file_too_large"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	docType := domain.DocumentType(r.FormValue("document_type"))
	if docType == "" {
		httputil.ErrorLocalized(w, r, errors.Validation(map[string]string{"document_type": "is required"}))
		return
	}

	consentAt, err := time.Parse(time.RFC3339, r.FormValue("consent_timestamp"))
	if err != nil {
		httputil.ErrorLocalized(w, r, errors.Validation(map[string]string{"consent_timestamp": "must be an RFC3339 timestamp"}))
		return
	}

	front, err := readFormFile(r, "front")
	if err != nil || len(front) == 0 {
		httputil.ErrorLocalized(w, r, errors.Validation(map[string]string{"front": "is required"}))
		return
	}
	back, err := readFormFile(r, "back")
	if err != nil && !errors.Is(err, http.ErrMissingFile) {
		httputil.ErrorLocalized(w, r, errors.BadRequest("failed to read back image"))
		return
	}

	job, err := h.service.StartExtraction(r.Context(), service.ExtractionRequest{
		UserID:       httputil.GetUserID(r.Context()),
		DocumentType: docType,
		Front:        front,
		Back:         back,
		ConsentAt:    consentAt,
	})
	if err != nil {
		h.log.Warn().Err(err).Str("doc_type", string(docType)).Msg("extraction not started")
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusAccepted, job)
}

// ExtractTextRequest is the body of POST /identity/extract-text
type ExtractTextRequest struct {
	RawText      string `json:"raw_text" validate:"notblank"`
	DocumentType string `json:"document_type" validate:"required,oneof=national_id ine passport"`
}

// ExtractText handles POST /identity/extract-text for text already read on device
func (h *Handler) ExtractText(w http.ResponseWriter, r *http.Request) {
	var req ExtractTextRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	result, err := h.service.ExtractText(r.Context(), req.RawText, domain.DocumentType(req.DocumentType))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// GetResult handles GET /identity/extract/{jobId}
func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")

	job, err := h.service.GetJob(r.Context(), jobID, httputil.GetUserID(r.Context()))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, job)
}

// DiscardResult handles DELETE /identity/extract/{jobId}
func (h *Handler) DiscardResult(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DiscardJob(r.Context(), chi.URLParam(r, "jobId"), httputil.GetUserID(r.Context())); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.NoContent(w)
}

// Verifications handles GET /identity/verifications
func (h *Handler) Verifications(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Verifications(r.Context(), httputil.GetUserID(r.Context()))
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, entries)
}

// readFormFile reads an uploaded file into memory. Uploads are never written
// to disk by the handler.
func readFormFile(r *http.Request, field string) ([]byte, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}
