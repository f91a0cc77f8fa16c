package kafka

import (
	"context"
	"encoding/json"

	"wa-server/internal/observability"

	"github.com/segmentio/kafka-go"
)

const (
	fetchMinBytes = 10e3 // 10KB
	fetchMaxBytes = 10e6 // 10MB
)

// EventHandler processes one decoded event. A non-nil error leaves the
// message uncommitted so it is redelivered.
type EventHandler func(ctx context.Context, event EventMessage) error

// Consumer drains the webhook event topic with manual offset commits
type Consumer struct {
	reader *kafka.Reader
	logger *observability.Logger
}

// ConsumerConfig contains configuration for the event consumer
type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// NewConsumer creates a new event consumer
func NewConsumer(config ConsumerConfig, logger *observability.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     config.Brokers,
		Topic:       config.Topic,
		GroupID:     config.GroupID,
		MinBytes:    fetchMinBytes,
		MaxBytes:    fetchMaxBytes,
		StartOffset: kafka.FirstOffset,
		// Commit manually, after the handler succeeds
		CommitInterval: 0,
	})

	return &Consumer{
		reader: reader,
		logger: logger,
	}
}

// ConsumeEvents fetches and handles events until the context is cancelled
func (c *Consumer) ConsumeEvents(ctx context.Context, handler EventHandler) error {
	c.logger.Info(ctx, "Starting event consumer")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info(ctx, "Stopping event consumer")
			return ctx.Err()
		default:
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			c.logger.Error(ctx, "failed to fetch message from kafka", err)
			continue
		}

		c.handleMessage(ctx, msg, handler)
	}
}

// handleMessage decodes and processes one message. Undecodable messages are
// committed and skipped; handler failures leave the offset for redelivery.
func (c *Consumer) handleMessage(ctx context.Context, msg kafka.Message, handler EventHandler) {
	var event EventMessage
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		c.logger.Error(ctx, "failed to unmarshal event, skipping", err)
		if commitErr := c.reader.CommitMessages(ctx, msg); commitErr != nil {
			c.logger.Error(ctx, "failed to commit skipped message", commitErr)
		}
		return
	}

	msgCtx := observability.WithFields(ctx,
		observability.Field{Key: "event_type", Value: event.Type},
		observability.Field{Key: "event_id", Value: event.ID},
		observability.Field{Key: "business_id", Value: event.BusinessID},
		observability.Field{Key: "partition", Value: msg.Partition},
		observability.Field{Key: "offset", Value: msg.Offset},
	)

	if err := handler(msgCtx, event); err != nil {
		c.logger.Error(msgCtx, "failed to process event", err)
		return
	}

	if err := c.reader.CommitMessages(msgCtx, msg); err != nil {
		c.logger.Error(msgCtx, "failed to commit message", err)
		return
	}

	c.logger.Info(msgCtx, "event processed")
}

// Close closes the event consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}
