package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"wa-server/internal/config"
	"wa-server/internal/observability"
	"wa-server/internal/store"

	broadcastHandler "wa-server/internal/broadcasts/handler"
	broadcastProcessor "wa-server/internal/broadcasts/processor"
	broadcastScheduler "wa-server/internal/broadcasts/scheduler"
	kafkaClient "wa-server/internal/clients/kafka"
	webhookConsumer "wa-server/internal/webhooks/consumer"
	webhookEvents "wa-server/internal/webhooks/events"
	webhookHandler "wa-server/internal/webhooks/handler"
	webhookProcessor "wa-server/internal/webhooks/processor"
	webhookProducer "wa-server/internal/webhooks/producer"
	webhookService "wa-server/internal/webhooks/service"
	webhookWorker "wa-server/internal/webhooks/worker"
)

// Dependencies holds all initialized application dependencies
type Dependencies struct {
	// Core
	Store  store.Store
	Logger *observability.Logger

	// Processors
	BroadcastProcessor *broadcastProcessor.BroadcastProcessor
	WebhookService     *webhookService.WebhookService
	EventDispatcher    *webhookEvents.EventDispatcher

	// Handlers
	BroadcastHandler *broadcastHandler.Handler
	WebhookHandler   *webhookHandler.Handler

	// Background workers
	WebhookConsumer    *webhookConsumer.EventConsumer
	WebhookWorker      *webhookWorker.RetryWorker
	BroadcastScheduler *broadcastScheduler.Scheduler

	// Kafka clients (for cleanup)
	KafkaProducer *kafkaClient.Producer
	KafkaConsumer *kafkaClient.Consumer
}

// Initialize sets up all application dependencies
func Initialize(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Logger: logger,
	}

	// Initialize database store
	connectionString := cfg.Database.ConnectionString()
	var err error
	deps.Store, err = store.New(connectionString, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Initialize Kafka clients
	brokerList := strings.Split(cfg.Kafka.Brokers, ",")
	deps.KafkaProducer = kafkaClient.NewProducer(kafkaClient.ProducerConfig{
		Brokers: brokerList,
		Topic:   cfg.Kafka.Topic,
	}, logger)

	deps.KafkaConsumer = kafkaClient.NewConsumer(kafkaClient.ConsumerConfig{
		Brokers: brokerList,
		Topic:   cfg.Kafka.Topic,
		GroupID: cfg.Kafka.ConsumerGroup,
	}, logger)

	// Event dispatch path: emitters -> Kafka -> consumer -> delivery service
	eventProducer := webhookProducer.New(deps.KafkaProducer, logger)
	deps.EventDispatcher = webhookEvents.NewEventDispatcher(eventProducer, logger)

	// Initialize webhook delivery service, processor and handler
	deps.WebhookService = webhookService.New(&deps.Store, logger)
	webhookProc := webhookProcessor.New(&deps.Store, deps.WebhookService, logger)
	deps.WebhookHandler = webhookHandler.New(webhookProc, logger)

	// Initialize broadcast processor and handler
	deps.BroadcastProcessor = broadcastProcessor.New(&deps.Store, logger)
	deps.BroadcastHandler = broadcastHandler.New(deps.BroadcastProcessor, logger)

	// Initialize webhook event consumer with its worker pool
	deps.WebhookConsumer = webhookConsumer.New(deps.KafkaConsumer, deps.WebhookService, logger, cfg.Workers.WebhookWorkers)

	// Initialize webhook retry sweep worker
	deps.WebhookWorker = webhookWorker.New(deps.WebhookService, logger,
		time.Duration(cfg.Workers.RetrySweepSeconds)*time.Second)

	// Initialize scheduled-broadcast sweep
	deps.BroadcastScheduler = broadcastScheduler.New(deps.BroadcastProcessor, logger,
		time.Duration(cfg.Workers.SchedulerSweepSeconds)*time.Second)

	return deps, nil
}

// Cleanup closes all resources that need cleanup
func (d *Dependencies) Cleanup() {
	if d.KafkaProducer != nil {
		d.KafkaProducer.Close()
	}
	if d.KafkaConsumer != nil {
		d.KafkaConsumer.Close()
	}
	d.Store.Close()
}
