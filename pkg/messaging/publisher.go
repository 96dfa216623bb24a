// Package messaging publishes domain events to RabbitMQ for downstream consumers.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher delivers an event payload tagged with its type.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload interface{}) error
}

// NopPublisher drops every event. It is used when no broker is configured.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, string, interface{}) error { return nil }

// AMQPPublisher publishes JSON events to a durable queue through the default exchange.
// A connection is opened per publish.
type AMQPPublisher struct {
	url    string
	queue  string
	logger *zap.Logger
	dial   func(url string) (*amqp.Connection, error)
}

// NewAMQPPublisher constructs a publisher for the given broker and queue.
func NewAMQPPublisher(url, queue string, logger *zap.Logger) *AMQPPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AMQPPublisher{url: url, queue: queue, logger: logger, dial: amqp.Dial}
}

// New returns an AMQPPublisher when url is set and a NopPublisher otherwise.
func New(url, queue string, logger *zap.Logger) Publisher {
	if url == "" {
		return NopPublisher{}
	}
	return NewAMQPPublisher(url, queue, logger)
}

// Publish marshals payload and sends it as a persistent message.
func (p *AMQPPublisher) Publish(ctx context.Context, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	conn, err := p.dial(p.url)
	if err != nil {
		p.logger.Warn("rabbitmq dial failed", zap.Error(err))
		return fmt.Errorf("dial broker: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", p.queue, err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         eventType,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}

	p.logger.Debug("event published", zap.String("type", eventType), zap.String("queue", p.queue))
	return nil
}
