package producer

import (
	"context"
	"fmt"
	"time"

	"wa-server/internal/clients/kafka"
	"wa-server/internal/observability"

	"github.com/google/uuid"
)

// EventProducer handles publishing webhook events to Kafka
type EventProducer struct {
	kafkaProducer *kafka.Producer
	logger        *observability.Logger
}

// New creates a new EventProducer
func New(kafkaProducer *kafka.Producer, logger *observability.Logger) *EventProducer {
	return &EventProducer{
		kafkaProducer: kafkaProducer,
		logger:        logger,
	}
}

// PublishEvent publishes a webhook event to Kafka. Emitters treat this as
// fire-and-forget: a publish failure is logged by callers but never blocks
// the business operation that produced the event.
func (p *EventProducer) PublishEvent(ctx context.Context, businessID uuid.UUID, eventType string, data map[string]interface{}) error {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "business_id", Value: businessID},
		observability.Field{Key: "event_type", Value: eventType},
	)

	event := kafka.EventMessage{
		ID:         uuid.New().String(),
		Type:       eventType,
		BusinessID: businessID.String(),
		Data:       data,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}

	err := p.kafkaProducer.PublishEvent(ctx, event)
	if err != nil {
		p.logger.Error(ctx, "failed to publish event to kafka", err)
		return fmt.Errorf("failed to publish event to kafka: %w", err)
	}

	return nil
}
