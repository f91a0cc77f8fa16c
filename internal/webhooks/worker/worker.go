package worker

import (
	"context"
	"time"

	"wa-server/internal/observability"
	"wa-server/internal/webhooks/service"
)

// RetryWorker sweeps webhook deliveries whose in-process retry timers were
// lost. The immediate pass on start recovers retries dropped by a restart.
type RetryWorker struct {
	webhookService *service.WebhookService
	logger         *observability.Logger
	stopChan       chan bool
	interval       time.Duration
}

// New creates a new RetryWorker
func New(webhookService *service.WebhookService, logger *observability.Logger, interval time.Duration) *RetryWorker {
	return &RetryWorker{
		webhookService: webhookService,
		logger:         logger,
		stopChan:       make(chan bool),
		interval:       interval,
	}
}

// Start begins the background worker
func (w *RetryWorker) Start(ctx context.Context) {
	w.logger.Info(ctx, "Starting webhook retry worker")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Sweep immediately on start
	w.processRetries(ctx)

	for {
		select {
		case <-ticker.C:
			w.processRetries(ctx)
		case <-w.stopChan:
			w.logger.Info(ctx, "Stopping webhook retry worker")
			return
		case <-ctx.Done():
			w.logger.Info(ctx, "Context cancelled, stopping webhook retry worker")
			return
		}
	}
}

// Stop stops the background worker
func (w *RetryWorker) Stop() {
	close(w.stopChan)
}

// processRetries processes up to 100 past-due deliveries per pass
func (w *RetryWorker) processRetries(ctx context.Context) {
	err := w.webhookService.RetryDueDeliveries(ctx, 100)
	if err != nil {
		w.logger.Error(ctx, "failed to process webhook retries", err)
	}
}
