package scheduler

import (
	"context"
	"fmt"
	"time"

	"wa-server/internal/broadcasts/processor"
	"wa-server/internal/observability"
)

// Scheduler starts scheduled broadcasts whose scheduled_at has passed
type Scheduler struct {
	processor *processor.BroadcastProcessor
	logger    *observability.Logger
	stopChan  chan bool
	interval  time.Duration
}

// New creates a new Scheduler
func New(broadcastProcessor *processor.BroadcastProcessor, logger *observability.Logger, interval time.Duration) *Scheduler {
	return &Scheduler{
		processor: broadcastProcessor,
		logger:    logger,
		stopChan:  make(chan bool),
		interval:  interval,
	}
}

// Start begins the scheduler loop
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info(ctx, "Starting broadcast scheduler")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.startDueBroadcasts(ctx)

	for {
		select {
		case <-ticker.C:
			s.startDueBroadcasts(ctx)
		case <-s.stopChan:
			s.logger.Info(ctx, "Stopping broadcast scheduler")
			return
		case <-ctx.Done():
			s.logger.Info(ctx, "Context cancelled, stopping broadcast scheduler")
			return
		}
	}
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	close(s.stopChan)
}

// startDueBroadcasts starts every scheduled broadcast that is due. A
// broadcast that fails to start is marked failed rather than retried forever.
func (s *Scheduler) startDueBroadcasts(ctx context.Context) {
	broadcasts, err := s.processor.GetScheduledBroadcastsToStart(ctx)
	if err != nil {
		s.logger.Error(ctx, "failed to get due scheduled broadcasts", err)
		return
	}

	for _, broadcast := range broadcasts {
		broadcastCtx := observability.WithFields(ctx,
			observability.Field{Key: "broadcast_id", Value: broadcast.ID},
			observability.Field{Key: "business_id", Value: broadcast.BusinessID},
		)

		_, err := s.processor.StartBroadcast(broadcastCtx, broadcast.ID, broadcast.BusinessID)
		if err != nil {
			s.logger.Error(broadcastCtx, "failed to start scheduled broadcast", err)
			if failErr := s.processor.FailBroadcast(broadcastCtx, broadcast.ID); failErr != nil {
				s.logger.Error(broadcastCtx, "failed to mark broadcast failed", failErr)
			}
			continue
		}

		s.logger.Info(broadcastCtx, fmt.Sprintf("started scheduled broadcast %s", broadcast.ID))
	}
}
