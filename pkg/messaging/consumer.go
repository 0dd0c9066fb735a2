package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/avivago/avivago-backend/pkg/logger"
)

// MaxRetries is how many times a failed delivery is re-published before it goes to the DLQ
const MaxRetries = 3

// HeaderRetryCount counts the re-publishes of a failed delivery. RabbitMQ only
// writes x-death when it dead-letters, so plain requeues cannot be counted.
const HeaderRetryCount = "x-retry-count"

// MessageHandler is a function that handles a message
type MessageHandler func(ctx context.Context, event *Event) error

// Outcome is what the consumer does with a delivery after dispatch
type Outcome int

const (
	OutcomeAck Outcome = iota
	// OutcomeRetry re-publishes the delivery with an incremented retry count
	OutcomeRetry
	OutcomeReject
)

// permanentError marks a handler failure that a retry cannot fix
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the consumer dead-letters the delivery at once
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// retryPublisher is the part of *amqp.Channel used to re-publish deliveries
type retryPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Consumer handles consuming events from RabbitMQ
type Consumer struct {
	rmq       *RabbitMQ
	queueName string
	handlers  map[string]MessageHandler
	logger    *logger.Logger
	// retries overrides the broker channel for re-publishing
	retries retryPublisher
}

// NewConsumer creates a new consumer for the given queue
func NewConsumer(rmq *RabbitMQ, queueName string, log *logger.Logger) (*Consumer, error) {
	if _, err := rmq.DeclareQueue(queueName); err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	return newConsumer(rmq, queueName, log), nil
}

func newConsumer(rmq *RabbitMQ, queueName string, log *logger.Logger) *Consumer {
	return &Consumer{
		rmq:       rmq,
		queueName: queueName,
		handlers:  make(map[string]MessageHandler),
		logger:    log,
	}
}

// Subscribe subscribes to an exchange with a routing key pattern
func (c *Consumer) Subscribe(exchange, routingKeyPattern string) error {
	if err := c.rmq.DeclareExchange(exchange); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	if err := c.rmq.BindQueue(c.queueName, exchange, routingKeyPattern); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	c.logger.Info().
		Str("queue", c.queueName).
		Str("exchange", exchange).
		Str("routing_key", routingKeyPattern).
		Msg("subscribed to exchange")

	return nil
}

// RegisterHandler registers a handler for a specific event type
func (c *Consumer) RegisterHandler(eventType string, handler MessageHandler) {
	c.handlers[eventType] = handler
}

// Start starts consuming messages from the queue
func (c *Consumer) Start(ctx context.Context) error {
	msgs, err := c.rmq.Channel().Consume(
		c.queueName, // queue
		"",          // consumer tag (auto-generated)
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info().Str("queue", c.queueName).Msg("consumer started")

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.logger.Info().Str("queue", c.queueName).Msg("consumer stopped")
				return
			case msg, ok := <-msgs:
				if !ok {
					c.logger.Warn().Msg("message channel closed")
					return
				}
				c.handle(ctx, msg)
			}
		}
	}()

	return nil
}

func (c *Consumer) handle(ctx context.Context, msg amqp.Delivery) {
	c.settle(ctx, msg, c.Dispatch(ctx, msg.Body, deliveryAttempts(msg)))
}

func (c *Consumer) settle(ctx context.Context, msg amqp.Delivery, outcome Outcome) {
	var err error
	switch outcome {
	case OutcomeAck:
		err = msg.Ack(false)
	case OutcomeRetry:
		if pubErr := c.republish(ctx, msg); pubErr != nil {
			c.logger.Error().Err(pubErr).Msg("failed to re-publish delivery, requeueing")
			err = msg.Nack(false, true)
		} else {
			err = msg.Ack(false)
		}
	case OutcomeReject:
		err = msg.Reject(false)
	}
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to settle delivery")
	}
}

// republish puts a copy of msg back on the queue with the retry count bumped.
// The original is acked by the caller once the copy is accepted.
func (c *Consumer) republish(ctx context.Context, msg amqp.Delivery) error {
	headers := amqp.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[HeaderRetryCount] = int32(deliveryAttempts(msg) + 1)

	var ch retryPublisher = c.retries
	if ch == nil {
		ch = c.rmq.Channel()
	}

	return ch.PublishWithContext(ctx,
		"",          // default exchange
		c.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			Headers:       headers,
			ContentType:   msg.ContentType,
			DeliveryMode:  amqp.Persistent,
			CorrelationId: msg.CorrelationId,
			MessageId:     msg.MessageId,
			Timestamp:     msg.Timestamp,
			Body:          msg.Body,
		},
	)
}

// Dispatch decodes a message body and runs the registered handler.
// Malformed bodies and permanent handler errors are rejected, unknown event
// types are acked, and other handler failures are retried until the budget
// is spent.
func (c *Consumer) Dispatch(ctx context.Context, body []byte, retries int) Outcome {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		c.logger.Error().Err(err).Msg("failed to unmarshal event")
		return OutcomeReject
	}

	ctx = WithCorrelationID(ctx, event.CorrelationID)

	handler, ok := c.handlers[event.Type]
	if !ok {
		c.logger.Debug().
			Str("event_type", event.Type).
			Msg("no handler registered for event type")
		return OutcomeAck
	}

	c.logger.Debug().
		Str("event_type", event.Type).
		Str("event_id", event.ID).
		Str("correlation_id", event.CorrelationID).
		Msg("processing event")

	if err := handler(ctx, &event); err != nil {
		c.logger.Error().
			Err(err).
			Str("event_type", event.Type).
			Str("event_id", event.ID).
			Msg("failed to process event")

		if IsPermanent(err) {
			c.logger.Warn().
				Str("event_id", event.ID).
				Msg("permanent failure, sending to DLQ")
			return OutcomeReject
		}
		if retries >= MaxRetries {
			c.logger.Warn().
				Str("event_id", event.ID).
				Int("retry_count", retries).
				Msg("max retries exceeded, sending to DLQ")
			return OutcomeReject
		}
		return OutcomeRetry
	}

	return OutcomeAck
}

// deliveryAttempts is how many times msg has failed before. A broker
// redelivery after a lost consumer counts as one more.
func deliveryAttempts(msg amqp.Delivery) int {
	n := retryCount(msg.Headers)
	if msg.Redelivered {
		n++
	}
	return n
}

// retryCount reads our own retry header, or the x-death count when the
// message came back through a dead letter exchange, whichever is higher.
func retryCount(headers amqp.Table) int {
	if headers == nil {
		return 0
	}

	count := toInt(headers[HeaderRetryCount])

	if deaths, ok := headers["x-death"].([]interface{}); ok {
		for _, death := range deaths {
			if d, ok := death.(amqp.Table); ok {
				if n := toInt(d["count"]); n > count {
					count = n
				}
			}
		}
	}

	return count
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int16:
		return int(n)
	case int32:
		return int(n)
	case int64:
		return int(n)
	default:
		return 0
	}
}
