package service

import (
	"context"
	"time"

	"wa-server/internal/store"

	"github.com/google/uuid"
)

// WebhookStore defines the database operations required by WebhookService
type WebhookStore interface {
	GetActiveWebhooksForEvent(ctx context.Context, businessID uuid.UUID, eventType string) ([]store.Webhook, error)
	GetWebhook(ctx context.Context, webhookID uuid.UUID) (store.Webhook, error)
	CreateWebhookDelivery(ctx context.Context, params store.CreateWebhookDeliveryParams) (store.WebhookDelivery, error)
	GetWebhookDeliveryByID(ctx context.Context, deliveryID uuid.UUID) (store.WebhookDelivery, error)
	UpdateWebhookDeliveryResult(ctx context.Context, deliveryID uuid.UUID, params store.DeliveryResultParams) error
	ClaimDeliveryRetry(ctx context.Context, deliveryID uuid.UUID) (bool, error)
	GetDueWebhookDeliveries(ctx context.Context, beforeTime time.Time, limit int) ([]store.WebhookDelivery, error)
	IncrementWebhookSuccess(ctx context.Context, webhookID uuid.UUID) error
	IncrementWebhookFailure(ctx context.Context, webhookID uuid.UUID) error
}
