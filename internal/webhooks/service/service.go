package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"wa-server/internal/observability"
	"wa-server/internal/store"

	"github.com/google/uuid"
)

const (
	// MaxAttempts is the delivery attempt cap per logical event
	MaxAttempts = 5

	deliveryTimeout = 30 * time.Second
	userAgent       = "WA-Platform-Webhook/1.0"

	maxResponseBodyLen = 1000
	maxErrorMessageLen = 500
)

// WebhookService handles signed webhook delivery with bounded retries
type WebhookService struct {
	store      WebhookStore
	logger     *observability.Logger
	httpClient *http.Client

	// scheduleRetry arms a detached retry timer. Swappable in tests.
	scheduleRetry func(d time.Duration, f func())
}

// New creates a new WebhookService
func New(webhookStore WebhookStore, logger *observability.Logger) *WebhookService {
	return &WebhookService{
		store:  webhookStore,
		logger: logger,
		httpClient: &http.Client{
			Timeout: deliveryTimeout,
		},
		scheduleRetry: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
}

// WebhookPayload is the JSON body POSTed to webhook endpoints
type WebhookPayload struct {
	Event     string                 `json:"event"`
	Timestamp string                 `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Sign computes the hex HMAC-SHA256 of body under secret. Receivers verify
// the X-Webhook-Signature header by recomputing this over the raw body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches body under secret
func VerifySignature(secret string, body []byte, signature string) bool {
	expected := Sign(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// DispatchEvent fans an event out to every active webhook of the business
// that subscribes to the event type. Each webhook gets its own delivery with
// its own retry schedule; one endpoint failing never affects the others.
func (s *WebhookService) DispatchEvent(ctx context.Context, businessID uuid.UUID, eventType string, data map[string]interface{}) error {
	webhooks, err := s.store.GetActiveWebhooksForEvent(ctx, businessID, eventType)
	if err != nil {
		s.logger.Error(ctx, "failed to get webhooks for event", err)
		return fmt.Errorf("failed to get webhooks for event: %w", err)
	}

	payload := store.JSONB{
		"event":     eventType,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"data":      data,
	}

	for _, webhook := range webhooks {
		eventID := uuid.New()
		_, err := s.AttemptDelivery(ctx, webhook, eventID, eventType, payload, 1)
		if err != nil {
			s.logger.Error(ctx, fmt.Sprintf("failed to deliver event to %s", webhook.URL), err)
			// Keep delivering to the remaining webhooks
		}
	}

	return nil
}

// TestWebhook pushes a fixed webhook.test event through the normal delivery
// and retry path, regardless of the webhook's subscription list.
func (s *WebhookService) TestWebhook(ctx context.Context, webhook store.Webhook) (store.WebhookDelivery, error) {
	payload := store.JSONB{
		"event":     "webhook.test",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"data": map[string]interface{}{
			"test":    true,
			"message": "This is a test webhook event",
		},
	}
	return s.AttemptDelivery(ctx, webhook, uuid.New(), "webhook.test", payload, 1)
}

// AttemptDelivery records and performs one delivery attempt. On failure it
// arms a detached timer for the next attempt while attempts remain. The
// returned delivery row reflects this attempt's outcome.
func (s *WebhookService) AttemptDelivery(ctx context.Context, webhook store.Webhook, eventID uuid.UUID, eventType string, payload store.JSONB, attemptNumber int) (store.WebhookDelivery, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "webhook_id", Value: webhook.ID},
		observability.Field{Key: "event_id", Value: eventID},
		observability.Field{Key: "event_type", Value: eventType},
		observability.Field{Key: "attempt_number", Value: attemptNumber},
	)

	delivery, err := s.store.CreateWebhookDelivery(ctx, store.CreateWebhookDeliveryParams{
		WebhookID:     webhook.ID,
		EventID:       eventID,
		EventType:     eventType,
		Payload:       payload,
		AttemptNumber: attemptNumber,
	})
	if err != nil {
		s.logger.Error(ctx, "failed to create webhook delivery", err)
		return store.WebhookDelivery{}, fmt.Errorf("failed to create webhook delivery: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error(ctx, "failed to marshal payload", err)
		return delivery, fmt.Errorf("failed to marshal payload: %w", err)
	}

	responseStatus, responseBody, durationMs, deliveryErr := s.post(ctx, webhook, eventID, eventType, body)

	if deliveryErr == nil {
		truncatedBody := truncate(responseBody, maxResponseBodyLen)
		result := store.DeliveryResultParams{
			Success:        true,
			ResponseStatus: &responseStatus,
			ResponseBody:   &truncatedBody,
			DurationMs:     &durationMs,
		}
		if err := s.store.UpdateWebhookDeliveryResult(ctx, delivery.ID, result); err != nil {
			s.logger.Error(ctx, "failed to record delivery success", err)
		}
		if err := s.store.IncrementWebhookSuccess(ctx, webhook.ID); err != nil {
			s.logger.Error(ctx, "failed to increment webhook success", err)
		}
		s.logger.Info(ctx, "webhook delivered")
		return s.deliveryWithResult(delivery, result), nil
	}

	errorMessage := truncate(deliveryErr.Error(), maxErrorMessageLen)
	truncatedBody := truncate(responseBody, maxResponseBodyLen)

	result := store.DeliveryResultParams{
		Success:      false,
		ResponseBody: &truncatedBody,
		ErrorMessage: &errorMessage,
		DurationMs:   &durationMs,
	}
	if responseStatus != 0 {
		result.ResponseStatus = &responseStatus
	}

	if attemptNumber < MaxAttempts {
		delay := retryDelay(attemptNumber)
		nextRetryAt := time.Now().UTC().Add(delay)
		result.NextRetryAt = &nextRetryAt

		if err := s.store.UpdateWebhookDeliveryResult(ctx, delivery.ID, result); err != nil {
			s.logger.Error(ctx, "failed to record delivery failure", err)
		}

		deliveryID := delivery.ID
		s.scheduleRetry(delay, func() {
			s.retryDelivery(context.Background(), deliveryID)
		})
		s.logger.Info(ctx, fmt.Sprintf("webhook delivery failed, retry in %s", delay))
	} else {
		if err := s.store.UpdateWebhookDeliveryResult(ctx, delivery.ID, result); err != nil {
			s.logger.Error(ctx, "failed to record delivery failure", err)
		}
		s.logger.Error(ctx, "webhook delivery failed permanently", deliveryErr)
	}

	if err := s.store.IncrementWebhookFailure(ctx, webhook.ID); err != nil {
		s.logger.Error(ctx, "failed to increment webhook failure", err)
	}

	return s.deliveryWithResult(delivery, result), fmt.Errorf("webhook delivery failed: %w", deliveryErr)
}

// deliveryWithResult folds an attempt's recorded result into the delivery row
// so callers see the outcome without a re-fetch
func (s *WebhookService) deliveryWithResult(delivery store.WebhookDelivery, result store.DeliveryResultParams) store.WebhookDelivery {
	delivery.Success = result.Success
	delivery.ResponseStatus = result.ResponseStatus
	delivery.ResponseBody = result.ResponseBody
	delivery.ErrorMessage = result.ErrorMessage
	delivery.DurationMs = result.DurationMs
	delivery.NextRetryAt = result.NextRetryAt
	if result.Success {
		now := time.Now().UTC()
		delivery.DeliveredAt = &now
	}
	return delivery
}

// retryDelivery is the timer callback for a scheduled retry. It claims the
// retry before acting so the startup sweep can never re-fire the same row.
func (s *WebhookService) retryDelivery(ctx context.Context, deliveryID uuid.UUID) {
	claimed, err := s.store.ClaimDeliveryRetry(ctx, deliveryID)
	if err != nil {
		s.logger.Error(ctx, "failed to claim delivery retry", err)
		return
	}
	if !claimed {
		return
	}
	s.redeliver(ctx, deliveryID)
}

// RetryDueDeliveries sweeps past-due retries whose timers were lost, e.g. to
// a process restart, and re-attempts each one it can claim.
func (s *WebhookService) RetryDueDeliveries(ctx context.Context, limit int) error {
	deliveries, err := s.store.GetDueWebhookDeliveries(ctx, time.Now().UTC(), limit)
	if err != nil {
		s.logger.Error(ctx, "failed to get due deliveries", err)
		return fmt.Errorf("failed to get due deliveries: %w", err)
	}

	if len(deliveries) > 0 {
		s.logger.Info(ctx, fmt.Sprintf("sweeping %d past-due webhook deliveries", len(deliveries)))
	}

	for _, delivery := range deliveries {
		claimed, err := s.store.ClaimDeliveryRetry(ctx, delivery.ID)
		if err != nil {
			s.logger.Error(ctx, "failed to claim delivery retry", err)
			continue
		}
		if !claimed {
			continue
		}
		s.redeliver(ctx, delivery.ID)
	}

	return nil
}

// redeliver re-attempts a claimed failed delivery with the next attempt number
func (s *WebhookService) redeliver(ctx context.Context, deliveryID uuid.UUID) {
	ctx = observability.WithFields(ctx, observability.Field{Key: "delivery_id", Value: deliveryID})

	delivery, err := s.store.GetWebhookDeliveryByID(ctx, deliveryID)
	if err != nil {
		s.logger.Error(ctx, "failed to load delivery for retry", err)
		return
	}

	webhook, err := s.store.GetWebhook(ctx, delivery.WebhookID)
	if err != nil {
		s.logger.Error(ctx, "failed to load webhook for retry", err)
		return
	}

	// A webhook deactivated after the failure keeps its recorded attempts
	// but gets no further ones.
	if !webhook.Active {
		s.logger.Info(ctx, "skipping retry for inactive webhook")
		return
	}

	_, err = s.AttemptDelivery(ctx, webhook, delivery.EventID, delivery.EventType, delivery.Payload, delivery.AttemptNumber+1)
	if err != nil {
		s.logger.Error(ctx, "retry attempt failed", err)
	}
}

// post performs the signed HTTP POST for one attempt
func (s *WebhookService) post(ctx context.Context, webhook store.Webhook, eventID uuid.UUID, eventType string, body []byte) (responseStatus int, responseBody string, durationMs int, err error) {
	startTime := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.URL, bytes.NewReader(body))
	if err != nil {
		return 0, "", 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", Sign(webhook.Secret, body))
	req.Header.Set("X-Webhook-Event", eventType)
	// Shared by all attempts of one logical delivery so receivers can dedupe
	req.Header.Set("X-Webhook-Delivery-Id", eventID.String())
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.httpClient.Do(req)
	durationMs = int(time.Since(startTime).Milliseconds())
	if err != nil {
		return 0, "", durationMs, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	responseStatus = resp.StatusCode

	bodyBytes, readErr := io.ReadAll(io.LimitReader(resp.Body, 10240))
	if readErr != nil {
		s.logger.Warn(ctx, "failed to read response body")
	} else {
		responseBody = string(bodyBytes)
	}

	// 2xx is the only success criterion
	if responseStatus >= 200 && responseStatus < 300 {
		return responseStatus, responseBody, durationMs, nil
	}

	return responseStatus, responseBody, durationMs, fmt.Errorf("received non-2xx status code: %d", responseStatus)
}

// retryDelay returns the backoff before the attempt after attemptNumber
func retryDelay(attemptNumber int) time.Duration {
	return time.Duration(1<<uint(attemptNumber)) * time.Second
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
