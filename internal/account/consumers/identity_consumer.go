package consumers

import (
	"context"

	"github.com/avivago/avivago-backend/internal/account/domain"
	"github.com/avivago/avivago-backend/pkg/errors"
	"github.com/avivago/avivago-backend/pkg/logger"
	"github.com/avivago/avivago-backend/pkg/messaging"
)

// DocumentStore records identity documents read for a user
type DocumentStore interface {
	Upsert(ctx context.Context, doc *domain.DriverDocument) error
}

// IdentityEventConsumer records completed identity extractions so drivers can
// submit their profile for review.
type IdentityEventConsumer struct {
	consumer  *messaging.Consumer
	documents DocumentStore
	logger    *logger.Logger
}

// NewIdentityEventConsumer creates a consumer bound to the identity exchange
func NewIdentityEventConsumer(rmq *messaging.RabbitMQ, documents DocumentStore, log *logger.Logger) (*IdentityEventConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, "account-service.identity-events", log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeIdentityEvents, "identity.document.#"); err != nil {
		return nil, err
	}

	c := &IdentityEventConsumer{
		consumer:  consumer,
		documents: documents,
		logger:    log,
	}

	consumer.RegisterHandler(messaging.EventIdentityDocumentExtracted, c.handleDocumentExtracted)

	return c, nil
}

// Start starts consuming messages
func (c *IdentityEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *IdentityEventConsumer) handleDocumentExtracted(ctx context.Context, event *messaging.Event) error {
	var data messaging.IdentityDocumentExtractedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return messaging.Permanent(err)
	}

	if data.UserID == "" {
		c.logger.Warn().Str("job_id", data.JobID).Msg("ignoring extraction event without user")
		return nil
	}

	c.logger.Info().
		Str("user_id", data.UserID).
		Str("job_id", data.JobID).
		Str("doc_type", data.DocumentType).
		Int("fields_found", len(data.FieldsFound)).
		Msg("received document extracted event")

	err := c.documents.Upsert(ctx, &domain.DriverDocument{
		UserID:       data.UserID,
		DocumentType: data.DocumentType,
		JobID:        data.JobID,
		FieldsFound:  data.FieldsFound,
		ExtractedAt:  data.ExtractedAt,
	})
	if err == nil {
		return nil
	}

	// Constraint violations such as an unknown user fail the same way every time
	var appErr *errors.AppError
	if errors.As(err, &appErr) && appErr.StatusCode < 500 {
		c.logger.Warn().
			Err(err).
			Str("user_id", data.UserID).
			Str("job_id", data.JobID).
			Msg("document cannot be recorded, dropping event")
		return messaging.Permanent(err)
	}
	return err
}
