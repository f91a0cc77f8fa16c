package processor

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"

	"wa-server/internal/observability"
	"wa-server/internal/store"
	"wa-server/internal/webhooks/events"

	"github.com/google/uuid"
)

var (
	ErrWebhookNotFound = errors.New("webhook not found")
	ErrInvalidURL      = errors.New("webhook URL must be a valid http or https URL")
	ErrNoEvents        = errors.New("webhook must subscribe to at least one event")
	ErrInvalidEvent    = errors.New("unknown webhook event type")
)

// WebhookProcessor handles webhook registration and management
type WebhookProcessor struct {
	store           WebhookStore
	deliveryService DeliveryService
	logger          *observability.Logger
}

// New creates a new WebhookProcessor
func New(webhookStore WebhookStore, deliveryService DeliveryService, logger *observability.Logger) *WebhookProcessor {
	return &WebhookProcessor{
		store:           webhookStore,
		deliveryService: deliveryService,
		logger:          logger,
	}
}

// CreateWebhookParams represents parameters for registering a webhook
type CreateWebhookParams struct {
	BusinessID  uuid.UUID
	URL         string
	Events      []string
	Description string
}

// CreatedWebhook pairs a new webhook with its plaintext secret. The secret
// is returned exactly once, at creation; it is never re-displayed.
type CreatedWebhook struct {
	Webhook store.Webhook
	Secret  string
}

// CreateWebhook validates and registers a new webhook subscription
func (p *WebhookProcessor) CreateWebhook(ctx context.Context, params CreateWebhookParams) (CreatedWebhook, error) {
	ctx = observability.WithFields(ctx, observability.Field{Key: "business_id", Value: params.BusinessID})

	if err := validateURL(params.URL); err != nil {
		return CreatedWebhook{}, err
	}
	if err := validateEvents(params.Events); err != nil {
		return CreatedWebhook{}, err
	}

	secret, err := generateSecret()
	if err != nil {
		p.logger.Error(ctx, "failed to generate webhook secret", err)
		return CreatedWebhook{}, fmt.Errorf("failed to generate webhook secret: %w", err)
	}

	webhook, err := p.store.CreateWebhook(ctx, store.CreateWebhookParams{
		BusinessID:  params.BusinessID,
		URL:         params.URL,
		Secret:      secret,
		Events:      store.StringArray(params.Events),
		Description: params.Description,
	})
	if err != nil {
		return CreatedWebhook{}, err
	}

	p.logger.Info(ctx, "webhook created")
	return CreatedWebhook{Webhook: webhook, Secret: secret}, nil
}

// GetWebhook retrieves a webhook scoped to its owning business
func (p *WebhookProcessor) GetWebhook(ctx context.Context, webhookID, businessID uuid.UUID) (store.Webhook, error) {
	webhook, err := p.store.GetWebhookByID(ctx, webhookID, businessID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Webhook{}, ErrWebhookNotFound
		}
		return store.Webhook{}, err
	}
	return webhook, nil
}

// ListWebhooks retrieves all webhooks of a business
func (p *WebhookProcessor) ListWebhooks(ctx context.Context, businessID uuid.UUID) ([]store.Webhook, error) {
	return p.store.GetWebhooksByBusiness(ctx, businessID)
}

// UpdateWebhookParams represents a partial webhook update. Nil fields are
// left unchanged. The secret cannot be updated.
type UpdateWebhookParams struct {
	URL         *string
	Events      []string
	Active      *bool
	Description *string
}

// UpdateWebhook validates and applies a partial update
func (p *WebhookProcessor) UpdateWebhook(ctx context.Context, webhookID, businessID uuid.UUID, params UpdateWebhookParams) (store.Webhook, error) {
	// Ownership check before mutating
	if _, err := p.GetWebhook(ctx, webhookID, businessID); err != nil {
		return store.Webhook{}, err
	}

	if params.URL != nil {
		if err := validateURL(*params.URL); err != nil {
			return store.Webhook{}, err
		}
	}

	var eventsArr store.StringArray
	if params.Events != nil {
		if err := validateEvents(params.Events); err != nil {
			return store.Webhook{}, err
		}
		eventsArr = store.StringArray(params.Events)
	}

	webhook, err := p.store.UpdateWebhook(ctx, webhookID, store.UpdateWebhookParams{
		URL:         params.URL,
		Events:      eventsArr,
		Active:      params.Active,
		Description: params.Description,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Webhook{}, ErrWebhookNotFound
		}
		return store.Webhook{}, err
	}
	return webhook, nil
}

// DeleteWebhook removes a webhook and its delivery log
func (p *WebhookProcessor) DeleteWebhook(ctx context.Context, webhookID, businessID uuid.UUID) error {
	if _, err := p.GetWebhook(ctx, webhookID, businessID); err != nil {
		return err
	}

	err := p.store.DeleteWebhook(ctx, webhookID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrWebhookNotFound
		}
		return err
	}

	p.logger.Info(ctx, "webhook deleted")
	return nil
}

// TestWebhook sends a webhook.test event through the delivery pipeline
func (p *WebhookProcessor) TestWebhook(ctx context.Context, webhookID, businessID uuid.UUID) (store.WebhookDelivery, error) {
	webhook, err := p.GetWebhook(ctx, webhookID, businessID)
	if err != nil {
		return store.WebhookDelivery{}, err
	}
	return p.deliveryService.TestWebhook(ctx, webhook)
}

// ListDeliveries retrieves a page of a webhook's delivery log
func (p *WebhookProcessor) ListDeliveries(ctx context.Context, webhookID, businessID uuid.UUID, limit, offset int) ([]store.WebhookDelivery, int, error) {
	if _, err := p.GetWebhook(ctx, webhookID, businessID); err != nil {
		return nil, 0, err
	}

	deliveries, err := p.store.GetDeliveriesByWebhook(ctx, webhookID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := p.store.CountDeliveriesByWebhook(ctx, webhookID)
	if err != nil {
		return nil, 0, err
	}
	return deliveries, total, nil
}

// generateSecret returns 32 random bytes hex-encoded (64 characters)
func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func validateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ErrInvalidURL
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return ErrInvalidURL
	}
	return nil
}

func validateEvents(eventTypes []string) error {
	if len(eventTypes) == 0 {
		return ErrNoEvents
	}
	for _, e := range eventTypes {
		if !events.IsValidEvent(e) {
			return fmt.Errorf("%w: %s", ErrInvalidEvent, e)
		}
	}
	return nil
}
