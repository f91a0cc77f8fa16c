package processor

import (
	"context"

	"wa-server/internal/store"

	"github.com/google/uuid"
)

// WebhookStore defines the database operations required by WebhookProcessor
type WebhookStore interface {
	CreateWebhook(ctx context.Context, params store.CreateWebhookParams) (store.Webhook, error)
	GetWebhookByID(ctx context.Context, webhookID, businessID uuid.UUID) (store.Webhook, error)
	GetWebhooksByBusiness(ctx context.Context, businessID uuid.UUID) ([]store.Webhook, error)
	UpdateWebhook(ctx context.Context, webhookID uuid.UUID, params store.UpdateWebhookParams) (store.Webhook, error)
	DeleteWebhook(ctx context.Context, webhookID uuid.UUID) error
	GetDeliveriesByWebhook(ctx context.Context, webhookID uuid.UUID, limit, offset int) ([]store.WebhookDelivery, error)
	CountDeliveriesByWebhook(ctx context.Context, webhookID uuid.UUID) (int, error)
}

// DeliveryService defines the delivery operations required by WebhookProcessor
type DeliveryService interface {
	TestWebhook(ctx context.Context, webhook store.Webhook) (store.WebhookDelivery, error)
}
