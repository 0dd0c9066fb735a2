package service

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avivago/avivago-backend/internal/identity/domain"
	"github.com/avivago/avivago-backend/internal/identity/extractor"
	"github.com/avivago/avivago-backend/internal/identity/ocr"
	"github.com/avivago/avivago-backend/internal/identity/storage"
	"github.com/avivago/avivago-backend/pkg/errors"
	"github.com/avivago/avivago-backend/pkg/logger"
)

// AuditStore records finished extractions and lists them per user
type AuditStore interface {
	Create(ctx context.Context, entry *domain.VerificationAuditEntry) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.VerificationAuditEntry, error)
}

const verificationHistoryLimit = 20

// EventPublisher announces extraction outcomes to other services
type EventPublisher interface {
	PublishDocumentExtracted(ctx context.Context, job *domain.ExtractionJob)
	PublishExtractionFailed(ctx context.Context, job *domain.ExtractionJob)
}

// ExtractionRequest is one document upload. Front and Back are zeroed once
// OCR has read them.
type ExtractionRequest struct {
	UserID       string
	DocumentType domain.DocumentType
	Front        []byte
	Back         []byte
	ConsentAt    time.Time
}

// Service orchestrates verification: OCR, then field extraction in the
// background, then audit and events.
type Service struct {
	registry *extractor.Registry
	detector ocr.TextDetector
	jobs     storage.JobStore
	audit    AuditStore
	events   EventPublisher
	log      *logger.Logger

	wg  sync.WaitGroup
	now func() time.Time
}

// NewService creates a new identity service. audit and events may be nil.
func NewService(registry *extractor.Registry, detector ocr.TextDetector, jobs storage.JobStore, audit AuditStore, events EventPublisher, log *logger.Logger) *Service {
	return &Service{
		registry: registry,
		detector: detector,
		jobs:     jobs,
		audit:    audit,
		events:   events,
		log:      log.WithComponent("identity"),
		now:      time.Now,
	}
}

// StartExtraction reads the document images and queues field extraction.
// The returned job is pending; callers poll GetJob for the result.
func (s *Service) StartExtraction(ctx context.Context, req ExtractionRequest) (*domain.ExtractionJob, error) {
	defer storage.ZeroBytes(req.Front)
	defer storage.ZeroBytes(req.Back)

	if s.registry.Find(req.DocumentType) == nil {
		return nil, unsupportedDocument()
	}
	if !ocr.IsImage(req.Front) || (len(req.Back) > 0 && !ocr.IsImage(req.Back)) {
		return nil, notImage()
	}

	rawText, err := ocr.ReadSides(ctx, s.detector, req.Front, req.Back)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", req.UserID).Msg("text detection failed")
		return nil, errors.Wrap(err, "OCR_UNAVAILABLE", "document text detection failed", http.StatusBadGateway).
			WithMessageKey("errors.ocr_unavailable")
	}
	if strings.TrimSpace(rawText) == "" {
		return nil, errors.Unprocessable("errors.empty_text", "no text detected on document")
	}

	job := &domain.ExtractionJob{
		JobID:        uuid.New().String(),
		UserID:       req.UserID,
		DocumentType: req.DocumentType,
		Status:       domain.StatusPending,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.jobs.Save(ctx, job); err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.process(context.WithoutCancel(ctx), job.JobID, rawText, req.DocumentType, req.ConsentAt)
	}()

	return job, nil
}

// process runs extraction for a queued job. The request context is detached
// so a client disconnect does not abandon the job.
func (s *Service) process(ctx context.Context, jobID, rawText string, docType domain.DocumentType, consentAt time.Time) {
	started := s.now()

	if err := s.jobs.Update(ctx, jobID, func(j *domain.ExtractionJob) {
		j.Status = domain.StatusProcessing
	}); err != nil {
		s.log.Error().Err(err).Str("job_id", jobID).Msg("failed to mark job processing")
		return
	}

	result := s.registry.Extract(rawText, docType)
	elapsed := s.now().Sub(started).Milliseconds()
	completedAt := s.now().UTC()

	var finished domain.ExtractionJob
	err := s.jobs.Update(ctx, jobID, func(j *domain.ExtractionJob) {
		j.Status = domain.StatusCompleted
		j.Result = &result
		j.ProcessingTimeMs = elapsed
		j.CompletedAt = &completedAt
		finished = *j
	})
	if err != nil {
		s.log.Error().Err(err).Str("job_id", jobID).Msg("failed to store extraction result")
		s.fail(ctx, jobID, err)
		return
	}

	s.log.Info().
		Str("job_id", jobID).
		Str("doc_type", string(docType)).
		Int("fields_found", len(result.FieldsFound())).
		Int64("duration_ms", elapsed).
		Msg("document extraction completed")

	s.writeAudit(ctx, &finished, consentAt)
	if s.events != nil {
		s.events.PublishDocumentExtracted(ctx, &finished)
	}
}

func (s *Service) fail(ctx context.Context, jobID string, cause error) {
	var failed domain.ExtractionJob
	err := s.jobs.Update(ctx, jobID, func(j *domain.ExtractionJob) {
		j.Status = domain.StatusFailed
		j.Error = cause.Error()
		j.Result = nil
		failed = *j
	})
	if err != nil {
		return
	}
	s.writeAudit(ctx, &failed, time.Time{})
	if s.events != nil {
		s.events.PublishExtractionFailed(ctx, &failed)
	}
}

func (s *Service) writeAudit(ctx context.Context, job *domain.ExtractionJob, consentAt time.Time) {
	if s.audit == nil {
		return
	}

	entry := &domain.VerificationAuditEntry{
		JobID:        job.JobID,
		UserID:       job.UserID,
		DocumentType: string(job.DocumentType),
		Status:       string(job.Status),
		FieldsFound:  []string{},
		ProcessingMs: int(job.ProcessingTimeMs),
	}
	if job.Result != nil {
		entry.FieldsFound = job.Result.FieldsFound()
	}
	if job.Error != "" {
		msg := job.Error
		entry.ErrorMessage = &msg
	}
	if !consentAt.IsZero() {
		c := consentAt.UTC()
		entry.ConsentAt = &c
	}

	if err := s.audit.Create(ctx, entry); err != nil {
		s.log.Error().Err(err).Str("job_id", job.JobID).Msg("failed to write verification audit entry")
	}
}

// ExtractText reads fields from text that was already OCR'd by the client
func (s *Service) ExtractText(ctx context.Context, rawText string, docType domain.DocumentType) (*domain.ExtractedIdentity, error) {
	if s.registry.Find(docType) == nil {
		return nil, unsupportedDocument()
	}
	if strings.TrimSpace(rawText) == "" {
		return nil, errors.BadRequest("raw_text must not be blank").WithMessageKey("errors.empty_text")
	}

	result := s.registry.Extract(rawText, docType)
	return &result, nil
}

// GetJob returns a job owned by userID. Jobs of other users are reported as
// missing.
func (s *Service) GetJob(ctx context.Context, jobID, userID string) (*domain.ExtractionJob, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if stderrors.Is(err, storage.ErrJobNotFound) {
		return nil, errors.NotFound("job")
	}
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, errors.NotFound("job")
	}
	return job, nil
}

// DiscardJob deletes a job owned by userID together with its extracted
// fields. A job still running is dropped without audit or events.
func (s *Service) DiscardJob(ctx context.Context, jobID, userID string) error {
	if _, err := s.GetJob(ctx, jobID, userID); err != nil {
		return err
	}
	if err := s.jobs.Delete(ctx, jobID); err != nil {
		return err
	}
	s.log.Info().Str("job_id", jobID).Msg("extraction job discarded")
	return nil
}

// Verifications returns the user's most recent verification attempts
func (s *Service) Verifications(ctx context.Context, userID string) ([]*domain.VerificationAuditEntry, error) {
	if s.audit == nil {
		return []*domain.VerificationAuditEntry{}, nil
	}
	return s.audit.ListByUser(ctx, userID, verificationHistoryLimit)
}

// Wait blocks until background extractions have finished
func (s *Service) Wait() {
	s.wg.Wait()
}

func unsupportedDocument() *errors.AppError {
	return errors.BadRequest("unsupported document type").WithMessageKey("errors.unsupported_document")
}

func notImage() *errors.AppError {
	return errors.BadRequest(ocr.ErrNotImage.Error()).WithMessageKey("errors.not_image")
}
