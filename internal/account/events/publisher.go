package events

import (
	"context"

	"github.com/avivago/avivago-backend/internal/account/domain"
	"github.com/avivago/avivago-backend/pkg/logger"
	"github.com/avivago/avivago-backend/pkg/messaging"
)

// DriverEventPublisher publishes driver lifecycle events
type DriverEventPublisher struct {
	publisher messaging.EventPublisher
	logger    *logger.Logger
}

// NewDriverEventPublisher creates a publisher on the driver exchange
func NewDriverEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*DriverEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeDriverEvents, "account-service", log)
	if err != nil {
		return nil, err
	}
	return NewWithPublisher(publisher, log), nil
}

// NewWithPublisher wraps an existing publisher
func NewWithPublisher(publisher messaging.EventPublisher, log *logger.Logger) *DriverEventPublisher {
	return &DriverEventPublisher{publisher: publisher, logger: log}
}

// PublishProfileCreated publishes a driver profile created event
func (p *DriverEventPublisher) PublishProfileCreated(ctx context.Context, profile *domain.DriverProfile) {
	data := messaging.DriverProfileCreatedEvent{
		UserID: profile.UserID,
		Status: string(profile.Status),
	}

	if err := p.publisher.Publish(ctx, messaging.EventDriverProfileCreated, data); err != nil {
		p.logger.Error().Err(err).Str("user_id", profile.UserID).Msg("failed to publish driver profile created event")
	}
}

// PublishStatusChanged publishes an applied transition. Visible tells search
// and referral consumers whether the driver's public surfaces are on.
func (p *DriverEventPublisher) PublishStatusChanged(ctx context.Context, t domain.Transition) {
	data := messaging.DriverStatusChangedEvent{
		UserID:     t.UserID,
		Event:      string(t.Event),
		FromStatus: string(t.From),
		ToStatus:   string(t.To),
		Reason:     t.Reason,
		ActorID:    t.ActorID,
		Visible:    t.Visibility.Profile,
	}

	if err := p.publisher.Publish(ctx, messaging.EventDriverStatusChanged, data); err != nil {
		p.logger.Error().Err(err).Str("user_id", t.UserID).Str("event", string(t.Event)).Msg("failed to publish driver status changed event")
	}
}
