package dispatch

import (
	"context"
	"fmt"
	"time"

	"wa-server/internal/broadcasts/processor"
	"wa-server/internal/messaging"
	"wa-server/internal/observability"
	"wa-server/internal/store"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// BroadcastEngine defines the broadcast operations the dispatch worker drives
type BroadcastEngine interface {
	GetSendingBroadcasts(ctx context.Context) ([]store.Broadcast, error)
	GetPendingRecipients(ctx context.Context, broadcastID uuid.UUID, limit int) ([]store.BroadcastRecipient, error)
	UpdateRecipientStatus(ctx context.Context, recipientID uuid.UUID, status string, messageID, errorMessage *string) (store.BroadcastRecipient, error)
}

// EventEmitter emits webhook events for send outcomes
type EventEmitter interface {
	DispatchMessageSent(ctx context.Context, businessID uuid.UUID, messageData map[string]interface{})
	DispatchMessageFailed(ctx context.Context, businessID uuid.UUID, messageData map[string]interface{})
}

// Worker drains queued recipients of sending broadcasts and pushes each
// message through the sender, paced by the broadcast's speed policy.
type Worker struct {
	engine    BroadcastEngine
	sender    messaging.Sender
	emitter   EventEmitter
	logger    *observability.Logger
	batchSize int
	stopChan  chan bool
	interval  time.Duration

	// one limiter per broadcast so speed policies don't interfere
	limiters map[uuid.UUID]*rate.Limiter
}

// New creates a new dispatch Worker
func New(engine BroadcastEngine, sender messaging.Sender, emitter EventEmitter, logger *observability.Logger, batchSize int, interval time.Duration) *Worker {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Worker{
		engine:    engine,
		sender:    sender,
		emitter:   emitter,
		logger:    logger,
		batchSize: batchSize,
		stopChan:  make(chan bool),
		interval:  interval,
		limiters:  make(map[uuid.UUID]*rate.Limiter),
	}
}

// Start begins the dispatch loop
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info(ctx, "Starting broadcast dispatch worker")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.dispatchPass(ctx)

	for {
		select {
		case <-ticker.C:
			w.dispatchPass(ctx)
		case <-w.stopChan:
			w.logger.Info(ctx, "Stopping broadcast dispatch worker")
			return
		case <-ctx.Done():
			w.logger.Info(ctx, "Context cancelled, stopping broadcast dispatch worker")
			return
		}
	}
}

// Stop stops the worker
func (w *Worker) Stop() {
	close(w.stopChan)
}

// dispatchPass processes one bounded batch for every sending broadcast
func (w *Worker) dispatchPass(ctx context.Context) {
	broadcasts, err := w.engine.GetSendingBroadcasts(ctx)
	if err != nil {
		w.logger.Error(ctx, "failed to get sending broadcasts", err)
		return
	}

	active := make(map[uuid.UUID]bool, len(broadcasts))
	for _, broadcast := range broadcasts {
		active[broadcast.ID] = true
		w.processBroadcast(ctx, broadcast)
	}

	// Drop limiters of broadcasts that left the sending state
	for id := range w.limiters {
		if !active[id] {
			delete(w.limiters, id)
		}
	}
}

// processBroadcast sends one batch of a broadcast's queued recipients
func (w *Worker) processBroadcast(ctx context.Context, broadcast store.Broadcast) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "broadcast_id", Value: broadcast.ID},
		observability.Field{Key: "business_id", Value: broadcast.BusinessID},
	)

	recipients, err := w.engine.GetPendingRecipients(ctx, broadcast.ID, w.batchSize)
	if err != nil {
		w.logger.Error(ctx, "failed to get pending recipients", err)
		return
	}
	if len(recipients) == 0 {
		return
	}

	limiter := w.limiterFor(broadcast)

	for _, recipient := range recipients {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		select {
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		w.sendToRecipient(ctx, broadcast, recipient)
	}
}

// sendToRecipient pushes one message through the sender and records the outcome
func (w *Worker) sendToRecipient(ctx context.Context, broadcast store.Broadcast, recipient store.BroadcastRecipient) {
	ctx = observability.WithFields(ctx, observability.Field{Key: "recipient_id", Value: recipient.ID})

	if _, err := w.engine.UpdateRecipientStatus(ctx, recipient.ID, store.RecipientStatusSending, nil, nil); err != nil {
		w.logger.Error(ctx, "failed to mark recipient sending", err)
		return
	}

	result, err := w.sender.SendMessage(ctx, broadcast.DeviceID, recipient.PhoneNumber, recipient.Message, broadcast.MediaURL)
	if err != nil {
		errorMessage := err.Error()
		if _, statusErr := w.engine.UpdateRecipientStatus(ctx, recipient.ID, store.RecipientStatusFailed, nil, &errorMessage); statusErr != nil {
			w.logger.Error(ctx, "failed to mark recipient failed", statusErr)
		}
		w.emitter.DispatchMessageFailed(ctx, broadcast.BusinessID, map[string]interface{}{
			"broadcast_id": broadcast.ID.String(),
			"recipient_id": recipient.ID.String(),
			"phone_number": recipient.PhoneNumber,
			"error":        errorMessage,
		})
		w.logger.Error(ctx, fmt.Sprintf("failed to send to %s", recipient.PhoneNumber), err)
		return
	}

	if _, err := w.engine.UpdateRecipientStatus(ctx, recipient.ID, store.RecipientStatusSent, &result.MessageID, nil); err != nil {
		w.logger.Error(ctx, "failed to mark recipient sent", err)
		return
	}

	w.emitter.DispatchMessageSent(ctx, broadcast.BusinessID, map[string]interface{}{
		"broadcast_id": broadcast.ID.String(),
		"recipient_id": recipient.ID.String(),
		"phone_number": recipient.PhoneNumber,
		"message_id":   result.MessageID,
	})
}

// limiterFor returns the broadcast's pacing limiter, creating it on first use
func (w *Worker) limiterFor(broadcast store.Broadcast) *rate.Limiter {
	if limiter, ok := w.limiters[broadcast.ID]; ok {
		return limiter
	}

	delay := processor.DelaySeconds(broadcast.SendSpeed, broadcast.CustomDelaySeconds)
	limiter := rate.NewLimiter(rate.Every(time.Duration(delay)*time.Second), 1)
	w.limiters[broadcast.ID] = limiter
	return limiter
}
