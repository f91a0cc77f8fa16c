package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"wa-server/internal/broadcasts/dispatch"
	broadcastProcessor "wa-server/internal/broadcasts/processor"
	kafkaClient "wa-server/internal/clients/kafka"
	"wa-server/internal/config"
	"wa-server/internal/messaging"
	"wa-server/internal/observability"
	"wa-server/internal/store"
	webhookEvents "wa-server/internal/webhooks/events"
	webhookProducer "wa-server/internal/webhooks/producer"
)

// The dispatcher drains queued recipients of sending broadcasts, paced by
// each broadcast's speed policy. It runs as its own process so slow sends
// never back-pressure the API.
func main() {
	logger := observability.NewLogger()
	ctx := context.Background()

	logger.Info(ctx, "Starting broadcast dispatcher...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %s", err)
	}

	dataStore, err := store.New(cfg.Database.ConnectionString(), logger)
	if err != nil {
		log.Fatalf("failed to initialize store: %s", err)
	}
	defer dataStore.Close()

	kafkaProducer := kafkaClient.NewProducer(kafkaClient.ProducerConfig{
		Brokers: strings.Split(cfg.Kafka.Brokers, ","),
		Topic:   cfg.Kafka.Topic,
	}, logger)
	defer kafkaProducer.Close()

	eventProducer := webhookProducer.New(kafkaProducer, logger)
	dispatcher := webhookEvents.NewEventDispatcher(eventProducer, logger)

	sender := messaging.NewTwilioSender(messaging.TwilioConfig{
		AccountSID: cfg.Twilio.AccountSID,
		AuthToken:  cfg.Twilio.AuthToken,
		FromNumber: cfg.Twilio.FromNumber,
	}, logger)

	engine := broadcastProcessor.New(&dataStore, logger)
	worker := dispatch.New(engine, sender, dispatcher, logger, cfg.Workers.DispatchBatchSize, 5*time.Second)

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go worker.Start(workerCtx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "Shutting down broadcast dispatcher...")
	worker.Stop()
	cancel()
	logger.Info(ctx, "Broadcast dispatcher exited")
}
