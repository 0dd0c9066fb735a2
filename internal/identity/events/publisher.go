package events

import (
	"context"
	"time"

	"github.com/avivago/avivago-backend/internal/identity/domain"
	"github.com/avivago/avivago-backend/pkg/logger"
	"github.com/avivago/avivago-backend/pkg/messaging"
)

// IdentityEventPublisher publishes document extraction outcomes
type IdentityEventPublisher struct {
	publisher messaging.EventPublisher
	logger    *logger.Logger
}

// NewIdentityEventPublisher creates a publisher on the identity exchange
func NewIdentityEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*IdentityEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeIdentityEvents, "identity-service", log)
	if err != nil {
		return nil, err
	}
	return NewWithPublisher(publisher, log), nil
}

// NewWithPublisher wraps an existing publisher
func NewWithPublisher(publisher messaging.EventPublisher, log *logger.Logger) *IdentityEventPublisher {
	return &IdentityEventPublisher{publisher: publisher, logger: log}
}

// PublishDocumentExtracted announces which fields were found. Field values
// never leave the identity service.
func (p *IdentityEventPublisher) PublishDocumentExtracted(ctx context.Context, job *domain.ExtractionJob) {
	if job.Result == nil {
		return
	}

	extractedAt := time.Now().UTC()
	if job.CompletedAt != nil {
		extractedAt = *job.CompletedAt
	}

	data := messaging.IdentityDocumentExtractedEvent{
		JobID:        job.JobID,
		UserID:       job.UserID,
		DocumentType: string(job.DocumentType),
		FieldsFound:  job.Result.FieldsFound(),
		ExtractedAt:  extractedAt,
	}

	if err := p.publisher.Publish(ctx, messaging.EventIdentityDocumentExtracted, data); err != nil {
		p.logger.Error().Err(err).Str("job_id", job.JobID).Msg("failed to publish document extracted event")
	}
}

// PublishExtractionFailed announces a failed extraction job
func (p *IdentityEventPublisher) PublishExtractionFailed(ctx context.Context, job *domain.ExtractionJob) {
	data := messaging.IdentityExtractionFailedEvent{
		JobID:        job.JobID,
		UserID:       job.UserID,
		DocumentType: string(job.DocumentType),
		Error:        job.Error,
	}

	if err := p.publisher.Publish(ctx, messaging.EventIdentityExtractionFailed, data); err != nil {
		p.logger.Error().Err(err).Str("job_id", job.JobID).Msg("failed to publish extraction failed event")
	}
}
