package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const webhookColumns = `id, business_id, url, secret, events, active, description, total_success, total_failure, last_triggered_at, created_at, updated_at`

// CreateWebhookParams represents parameters for registering a webhook
type CreateWebhookParams struct {
	BusinessID  uuid.UUID
	URL         string
	Secret      string
	Events      StringArray
	Description string
}

const sqlCreateWebhook = `
INSERT INTO webhooks (business_id, url, secret, events, active, description)
VALUES ($1, $2, $3, $4, TRUE, $5)
RETURNING ` + webhookColumns + `
`

// CreateWebhook registers a new webhook subscription
func (s *Store) CreateWebhook(ctx context.Context, params CreateWebhookParams) (Webhook, error) {
	var webhook Webhook
	err := s.db.GetContext(ctx, &webhook, sqlCreateWebhook,
		params.BusinessID, params.URL, params.Secret, params.Events, params.Description)
	if err != nil {
		s.logger.Error(ctx, "failed to create webhook", err)
		return Webhook{}, fmt.Errorf("failed to create webhook: %w", err)
	}
	return webhook, nil
}

const sqlGetWebhookByID = `
SELECT ` + webhookColumns + `
FROM webhooks
WHERE id = $1 AND business_id = $2
`

// GetWebhookByID retrieves a webhook scoped to its owning business
func (s *Store) GetWebhookByID(ctx context.Context, webhookID, businessID uuid.UUID) (Webhook, error) {
	var webhook Webhook
	err := s.db.GetContext(ctx, &webhook, sqlGetWebhookByID, webhookID, businessID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Webhook{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get webhook", err)
		return Webhook{}, fmt.Errorf("failed to get webhook: %w", err)
	}
	return webhook, nil
}

const sqlGetWebhook = `
SELECT ` + webhookColumns + `
FROM webhooks
WHERE id = $1
`

// GetWebhook retrieves a webhook without business scoping. Used by the
// delivery pipeline, which works from stored delivery rows.
func (s *Store) GetWebhook(ctx context.Context, webhookID uuid.UUID) (Webhook, error) {
	var webhook Webhook
	err := s.db.GetContext(ctx, &webhook, sqlGetWebhook, webhookID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Webhook{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get webhook", err)
		return Webhook{}, fmt.Errorf("failed to get webhook: %w", err)
	}
	return webhook, nil
}

const sqlGetWebhooksByBusiness = `
SELECT ` + webhookColumns + `
FROM webhooks
WHERE business_id = $1
ORDER BY created_at DESC
`

// GetWebhooksByBusiness retrieves all webhooks registered by a business
func (s *Store) GetWebhooksByBusiness(ctx context.Context, businessID uuid.UUID) ([]Webhook, error) {
	var webhooks []Webhook
	err := s.db.SelectContext(ctx, &webhooks, sqlGetWebhooksByBusiness, businessID)
	if err != nil {
		s.logger.Error(ctx, "failed to get webhooks by business", err)
		return nil, fmt.Errorf("failed to get webhooks by business: %w", err)
	}
	return webhooks, nil
}

const sqlGetActiveWebhooksForEvent = `
SELECT ` + webhookColumns + `
FROM webhooks
WHERE business_id = $1 AND active = TRUE AND $2 = ANY(events)
`

// GetActiveWebhooksForEvent retrieves the active webhooks of a business that
// subscribe to the given event type
func (s *Store) GetActiveWebhooksForEvent(ctx context.Context, businessID uuid.UUID, eventType string) ([]Webhook, error) {
	var webhooks []Webhook
	err := s.db.SelectContext(ctx, &webhooks, sqlGetActiveWebhooksForEvent, businessID, eventType)
	if err != nil {
		s.logger.Error(ctx, "failed to get active webhooks for event", err)
		return nil, fmt.Errorf("failed to get active webhooks for event: %w", err)
	}
	return webhooks, nil
}

// UpdateWebhookParams represents a typed partial update of a webhook. The
// secret is deliberately absent: it is immutable after creation.
type UpdateWebhookParams struct {
	URL         *string
	Events      StringArray
	Active      *bool
	Description *string
}

const sqlUpdateWebhook = `
UPDATE webhooks
SET url = COALESCE($2, url),
    events = COALESCE($3, events),
    active = COALESCE($4, active),
    description = COALESCE($5, description),
    updated_at = CURRENT_TIMESTAMP
WHERE id = $1
RETURNING ` + webhookColumns + `
`

// UpdateWebhook applies a partial update to a webhook
func (s *Store) UpdateWebhook(ctx context.Context, webhookID uuid.UUID, params UpdateWebhookParams) (Webhook, error) {
	var webhook Webhook
	err := s.db.GetContext(ctx, &webhook, sqlUpdateWebhook,
		webhookID, params.URL, params.Events, params.Active, params.Description)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Webhook{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to update webhook", err)
		return Webhook{}, fmt.Errorf("failed to update webhook: %w", err)
	}
	return webhook, nil
}

// DeleteWebhook removes a webhook. Its delivery log is removed with it by
// the ON DELETE CASCADE on webhook_deliveries.
func (s *Store) DeleteWebhook(ctx context.Context, webhookID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM webhooks WHERE id = $1`, webhookID)
	if err != nil {
		s.logger.Error(ctx, "failed to delete webhook", err)
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementWebhookSuccess bumps the success counter and last_triggered_at
func (s *Store) IncrementWebhookSuccess(ctx context.Context, webhookID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE webhooks SET total_success = total_success + 1, last_triggered_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP WHERE id = $1`,
		webhookID)
	if err != nil {
		s.logger.Error(ctx, "failed to increment webhook success", err)
		return fmt.Errorf("failed to increment webhook success: %w", err)
	}
	return nil
}

// IncrementWebhookFailure bumps the failure counter and last_triggered_at
func (s *Store) IncrementWebhookFailure(ctx context.Context, webhookID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE webhooks SET total_failure = total_failure + 1, last_triggered_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP WHERE id = $1`,
		webhookID)
	if err != nil {
		s.logger.Error(ctx, "failed to increment webhook failure", err)
		return fmt.Errorf("failed to increment webhook failure: %w", err)
	}
	return nil
}

const deliveryColumns = `id, webhook_id, event_id, event_type, payload, attempt_number, success, response_status, response_body, error_message, duration_ms, next_retry_at, delivered_at, created_at`

// CreateWebhookDeliveryParams represents one new delivery attempt row
type CreateWebhookDeliveryParams struct {
	WebhookID     uuid.UUID
	EventID       uuid.UUID
	EventType     string
	Payload       JSONB
	AttemptNumber int
}

const sqlCreateWebhookDelivery = `
INSERT INTO webhook_deliveries (webhook_id, event_id, event_type, payload, attempt_number, success)
VALUES ($1, $2, $3, $4, $5, FALSE)
RETURNING ` + deliveryColumns + `
`

// CreateWebhookDelivery records a new delivery attempt. One row is created
// per attempt; attempts of the same logical delivery share event_id.
func (s *Store) CreateWebhookDelivery(ctx context.Context, params CreateWebhookDeliveryParams) (WebhookDelivery, error) {
	var delivery WebhookDelivery
	err := s.db.GetContext(ctx, &delivery, sqlCreateWebhookDelivery,
		params.WebhookID, params.EventID, params.EventType, params.Payload, params.AttemptNumber)
	if err != nil {
		s.logger.Error(ctx, "failed to create webhook delivery", err)
		return WebhookDelivery{}, fmt.Errorf("failed to create webhook delivery: %w", err)
	}
	return delivery, nil
}

const sqlGetWebhookDeliveryByID = `
SELECT ` + deliveryColumns + `
FROM webhook_deliveries
WHERE id = $1
`

// GetWebhookDeliveryByID retrieves one delivery attempt row
func (s *Store) GetWebhookDeliveryByID(ctx context.Context, deliveryID uuid.UUID) (WebhookDelivery, error) {
	var delivery WebhookDelivery
	err := s.db.GetContext(ctx, &delivery, sqlGetWebhookDeliveryByID, deliveryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return WebhookDelivery{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get webhook delivery", err)
		return WebhookDelivery{}, fmt.Errorf("failed to get webhook delivery: %w", err)
	}
	return delivery, nil
}

// DeliveryResultParams represents the outcome of one HTTP attempt
type DeliveryResultParams struct {
	Success        bool
	ResponseStatus *int
	ResponseBody   *string
	ErrorMessage   *string
	DurationMs     *int
	NextRetryAt    *time.Time
}

const sqlUpdateWebhookDeliveryResult = `
UPDATE webhook_deliveries
SET success = $2,
    response_status = $3,
    response_body = $4,
    error_message = $5,
    duration_ms = $6,
    next_retry_at = $7,
    delivered_at = CASE WHEN $2 THEN CURRENT_TIMESTAMP ELSE delivered_at END
WHERE id = $1
`

// UpdateWebhookDeliveryResult writes the outcome of an attempt onto its row
func (s *Store) UpdateWebhookDeliveryResult(ctx context.Context, deliveryID uuid.UUID, params DeliveryResultParams) error {
	_, err := s.db.ExecContext(ctx, sqlUpdateWebhookDeliveryResult,
		deliveryID,
		params.Success,
		params.ResponseStatus,
		params.ResponseBody,
		params.ErrorMessage,
		params.DurationMs,
		params.NextRetryAt)
	if err != nil {
		s.logger.Error(ctx, "failed to update webhook delivery result", err)
		return fmt.Errorf("failed to update webhook delivery result: %w", err)
	}
	return nil
}

// ClaimDeliveryRetry atomically claims a due retry by clearing next_retry_at.
// Returns false when another path (timer or sweep) already claimed it, so a
// retry fires at most once.
func (s *Store) ClaimDeliveryRetry(ctx context.Context, deliveryID uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE webhook_deliveries SET next_retry_at = NULL WHERE id = $1 AND next_retry_at IS NOT NULL`,
		deliveryID)
	if err != nil {
		s.logger.Error(ctx, "failed to claim delivery retry", err)
		return false, fmt.Errorf("failed to claim delivery retry: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

const sqlGetDueWebhookDeliveries = `
SELECT ` + deliveryColumns + `
FROM webhook_deliveries
WHERE success = FALSE AND next_retry_at IS NOT NULL AND next_retry_at <= $1
ORDER BY next_retry_at ASC
LIMIT $2
`

// GetDueWebhookDeliveries retrieves failed attempts whose retry time has
// passed. Covers retries whose in-process timers were lost to a restart.
func (s *Store) GetDueWebhookDeliveries(ctx context.Context, beforeTime time.Time, limit int) ([]WebhookDelivery, error) {
	var deliveries []WebhookDelivery
	err := s.db.SelectContext(ctx, &deliveries, sqlGetDueWebhookDeliveries, beforeTime, limit)
	if err != nil {
		s.logger.Error(ctx, "failed to get due webhook deliveries", err)
		return nil, fmt.Errorf("failed to get due webhook deliveries: %w", err)
	}
	return deliveries, nil
}

const sqlGetDeliveriesByWebhook = `
SELECT ` + deliveryColumns + `
FROM webhook_deliveries
WHERE webhook_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`

// GetDeliveriesByWebhook retrieves a page of a webhook's delivery log
func (s *Store) GetDeliveriesByWebhook(ctx context.Context, webhookID uuid.UUID, limit, offset int) ([]WebhookDelivery, error) {
	var deliveries []WebhookDelivery
	err := s.db.SelectContext(ctx, &deliveries, sqlGetDeliveriesByWebhook, webhookID, limit, offset)
	if err != nil {
		s.logger.Error(ctx, "failed to get deliveries by webhook", err)
		return nil, fmt.Errorf("failed to get deliveries by webhook: %w", err)
	}
	return deliveries, nil
}

// CountDeliveriesByWebhook counts a webhook's delivery log entries
func (s *Store) CountDeliveriesByWebhook(ctx context.Context, webhookID uuid.UUID) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM webhook_deliveries WHERE webhook_id = $1`, webhookID)
	if err != nil {
		s.logger.Error(ctx, "failed to count deliveries", err)
		return 0, fmt.Errorf("failed to count deliveries: %w", err)
	}
	return count, nil
}
