package processor

import (
	"context"
	"testing"
	"time"

	"wa-server/internal/observability"
	"wa-server/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWebhookStore struct {
	webhooks   map[uuid.UUID]store.Webhook
	deliveries map[uuid.UUID][]store.WebhookDelivery
}

func newFakeWebhookStore() *fakeWebhookStore {
	return &fakeWebhookStore{
		webhooks:   make(map[uuid.UUID]store.Webhook),
		deliveries: make(map[uuid.UUID][]store.WebhookDelivery),
	}
}

func (f *fakeWebhookStore) CreateWebhook(ctx context.Context, params store.CreateWebhookParams) (store.Webhook, error) {
	webhook := store.Webhook{
		ID:          uuid.New(),
		BusinessID:  params.BusinessID,
		URL:         params.URL,
		Secret:      params.Secret,
		Events:      params.Events,
		Active:      true,
		Description: params.Description,
		CreatedAt:   time.Now(),
	}
	f.webhooks[webhook.ID] = webhook
	return webhook, nil
}

func (f *fakeWebhookStore) GetWebhookByID(ctx context.Context, webhookID, businessID uuid.UUID) (store.Webhook, error) {
	w, ok := f.webhooks[webhookID]
	if !ok || w.BusinessID != businessID {
		return store.Webhook{}, store.ErrNotFound
	}
	return w, nil
}

func (f *fakeWebhookStore) GetWebhooksByBusiness(ctx context.Context, businessID uuid.UUID) ([]store.Webhook, error) {
	var out []store.Webhook
	for _, w := range f.webhooks {
		if w.BusinessID == businessID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (f *fakeWebhookStore) UpdateWebhook(ctx context.Context, webhookID uuid.UUID, params store.UpdateWebhookParams) (store.Webhook, error) {
	w, ok := f.webhooks[webhookID]
	if !ok {
		return store.Webhook{}, store.ErrNotFound
	}
	if params.URL != nil {
		w.URL = *params.URL
	}
	if params.Events != nil {
		w.Events = params.Events
	}
	if params.Active != nil {
		w.Active = *params.Active
	}
	if params.Description != nil {
		w.Description = *params.Description
	}
	f.webhooks[webhookID] = w
	return w, nil
}

func (f *fakeWebhookStore) DeleteWebhook(ctx context.Context, webhookID uuid.UUID) error {
	if _, ok := f.webhooks[webhookID]; !ok {
		return store.ErrNotFound
	}
	delete(f.webhooks, webhookID)
	delete(f.deliveries, webhookID)
	return nil
}

func (f *fakeWebhookStore) GetDeliveriesByWebhook(ctx context.Context, webhookID uuid.UUID, limit, offset int) ([]store.WebhookDelivery, error) {
	all := f.deliveries[webhookID]
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (f *fakeWebhookStore) CountDeliveriesByWebhook(ctx context.Context, webhookID uuid.UUID) (int, error) {
	return len(f.deliveries[webhookID]), nil
}

type fakeDeliveryService struct {
	tested []store.Webhook
}

func (f *fakeDeliveryService) TestWebhook(ctx context.Context, webhook store.Webhook) (store.WebhookDelivery, error) {
	f.tested = append(f.tested, webhook)
	return store.WebhookDelivery{
		ID:            uuid.New(),
		WebhookID:     webhook.ID,
		EventType:     "webhook.test",
		AttemptNumber: 1,
		Success:       true,
	}, nil
}

func newTestProcessor(f *fakeWebhookStore) (*WebhookProcessor, *fakeDeliveryService) {
	svc := &fakeDeliveryService{}
	return New(f, svc, observability.NewLogger()), svc
}

func strPtr(s string) *string { return &s }

func TestCreateWebhook(t *testing.T) {
	ctx := context.Background()
	businessID := uuid.New()

	t.Run("returns the secret exactly once", func(t *testing.T) {
		f := newFakeWebhookStore()
		p, _ := newTestProcessor(f)

		created, err := p.CreateWebhook(ctx, CreateWebhookParams{
			BusinessID: businessID,
			URL:        "https://example.com/hooks",
			Events:     []string{"message.sent", "device.connected"},
		})
		require.NoError(t, err)

		assert.Len(t, created.Secret, 64)
		assert.Equal(t, created.Secret, created.Webhook.Secret)
		assert.True(t, created.Webhook.Active)

		// a second webhook gets a different secret
		other, err := p.CreateWebhook(ctx, CreateWebhookParams{
			BusinessID: businessID,
			URL:        "https://example.com/hooks2",
			Events:     []string{"message.sent"},
		})
		require.NoError(t, err)
		assert.NotEqual(t, created.Secret, other.Secret)
	})

	t.Run("rejects invalid URLs", func(t *testing.T) {
		f := newFakeWebhookStore()
		p, _ := newTestProcessor(f)

		for _, badURL := range []string{"", "not-a-url", "ftp://example.com/hooks", "https://"} {
			_, err := p.CreateWebhook(ctx, CreateWebhookParams{
				BusinessID: businessID,
				URL:        badURL,
				Events:     []string{"message.sent"},
			})
			assert.ErrorIs(t, err, ErrInvalidURL, "url %q", badURL)
		}
		assert.Empty(t, f.webhooks)
	})

	t.Run("rejects an empty event list", func(t *testing.T) {
		f := newFakeWebhookStore()
		p, _ := newTestProcessor(f)

		_, err := p.CreateWebhook(ctx, CreateWebhookParams{
			BusinessID: businessID,
			URL:        "https://example.com/hooks",
		})
		assert.ErrorIs(t, err, ErrNoEvents)
	})

	t.Run("rejects unknown event types", func(t *testing.T) {
		f := newFakeWebhookStore()
		p, _ := newTestProcessor(f)

		_, err := p.CreateWebhook(ctx, CreateWebhookParams{
			BusinessID: businessID,
			URL:        "https://example.com/hooks",
			Events:     []string{"message.sent", "message.vanished"},
		})
		assert.ErrorIs(t, err, ErrInvalidEvent)
		assert.Contains(t, err.Error(), "message.vanished")
	})

	t.Run("webhook.test is not subscribable", func(t *testing.T) {
		f := newFakeWebhookStore()
		p, _ := newTestProcessor(f)

		_, err := p.CreateWebhook(ctx, CreateWebhookParams{
			BusinessID: businessID,
			URL:        "https://example.com/hooks",
			Events:     []string{"webhook.test"},
		})
		assert.ErrorIs(t, err, ErrInvalidEvent)
	})
}

func TestUpdateWebhook(t *testing.T) {
	ctx := context.Background()
	businessID := uuid.New()

	setup := func(t *testing.T) (*fakeWebhookStore, *WebhookProcessor, store.Webhook) {
		f := newFakeWebhookStore()
		p, _ := newTestProcessor(f)
		created, err := p.CreateWebhook(ctx, CreateWebhookParams{
			BusinessID:  businessID,
			URL:         "https://example.com/hooks",
			Events:      []string{"message.sent"},
			Description: "original",
		})
		require.NoError(t, err)
		return f, p, created.Webhook
	}

	t.Run("applies only the provided fields", func(t *testing.T) {
		_, p, webhook := setup(t)

		inactive := false
		updated, err := p.UpdateWebhook(ctx, webhook.ID, businessID, UpdateWebhookParams{
			Active: &inactive,
		})
		require.NoError(t, err)
		assert.False(t, updated.Active)
		assert.Equal(t, webhook.URL, updated.URL)
		assert.Equal(t, webhook.Events, updated.Events)
		assert.Equal(t, "original", updated.Description)
	})

	t.Run("validates a changed URL", func(t *testing.T) {
		_, p, webhook := setup(t)

		_, err := p.UpdateWebhook(ctx, webhook.ID, businessID, UpdateWebhookParams{
			URL: strPtr("nope"),
		})
		assert.ErrorIs(t, err, ErrInvalidURL)
	})

	t.Run("validates replaced events", func(t *testing.T) {
		_, p, webhook := setup(t)

		_, err := p.UpdateWebhook(ctx, webhook.ID, businessID, UpdateWebhookParams{
			Events: []string{"bogus.event"},
		})
		assert.ErrorIs(t, err, ErrInvalidEvent)
	})

	t.Run("not found for another business", func(t *testing.T) {
		_, p, webhook := setup(t)

		_, err := p.UpdateWebhook(ctx, webhook.ID, uuid.New(), UpdateWebhookParams{
			Description: strPtr("x"),
		})
		assert.ErrorIs(t, err, ErrWebhookNotFound)
	})
}

func TestDeleteWebhook(t *testing.T) {
	ctx := context.Background()
	businessID := uuid.New()

	f := newFakeWebhookStore()
	p, _ := newTestProcessor(f)
	created, err := p.CreateWebhook(ctx, CreateWebhookParams{
		BusinessID: businessID,
		URL:        "https://example.com/hooks",
		Events:     []string{"message.sent"},
	})
	require.NoError(t, err)

	t.Run("rejects delete by another business", func(t *testing.T) {
		err := p.DeleteWebhook(ctx, created.Webhook.ID, uuid.New())
		assert.ErrorIs(t, err, ErrWebhookNotFound)
	})

	t.Run("deletes and is gone", func(t *testing.T) {
		require.NoError(t, p.DeleteWebhook(ctx, created.Webhook.ID, businessID))

		_, err := p.GetWebhook(ctx, created.Webhook.ID, businessID)
		assert.ErrorIs(t, err, ErrWebhookNotFound)
	})
}

func TestTestWebhook(t *testing.T) {
	ctx := context.Background()
	businessID := uuid.New()

	f := newFakeWebhookStore()
	p, svc := newTestProcessor(f)
	created, err := p.CreateWebhook(ctx, CreateWebhookParams{
		BusinessID: businessID,
		URL:        "https://example.com/hooks",
		Events:     []string{"message.sent"},
	})
	require.NoError(t, err)

	delivery, err := p.TestWebhook(ctx, created.Webhook.ID, businessID)
	require.NoError(t, err)
	assert.Equal(t, "webhook.test", delivery.EventType)
	require.Len(t, svc.tested, 1)
	assert.Equal(t, created.Webhook.ID, svc.tested[0].ID)

	_, err = p.TestWebhook(ctx, uuid.New(), businessID)
	assert.ErrorIs(t, err, ErrWebhookNotFound)
}

func TestListDeliveries(t *testing.T) {
	ctx := context.Background()
	businessID := uuid.New()

	f := newFakeWebhookStore()
	p, _ := newTestProcessor(f)
	created, err := p.CreateWebhook(ctx, CreateWebhookParams{
		BusinessID: businessID,
		URL:        "https://example.com/hooks",
		Events:     []string{"message.sent"},
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		f.deliveries[created.Webhook.ID] = append(f.deliveries[created.Webhook.ID], store.WebhookDelivery{
			ID:            uuid.New(),
			WebhookID:     created.Webhook.ID,
			AttemptNumber: i + 1,
		})
	}

	deliveries, total, err := p.ListDeliveries(ctx, created.Webhook.ID, businessID, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, deliveries, 2)
	assert.Equal(t, 3, deliveries[0].AttemptNumber)

	_, _, err = p.ListDeliveries(ctx, created.Webhook.ID, uuid.New(), 10, 0)
	assert.ErrorIs(t, err, ErrWebhookNotFound)
}
