package handler

import (
	"net/http"
	"strconv"

	"wa-server/internal/apierrors"
	"wa-server/internal/observability"
	"wa-server/internal/store"
	"wa-server/internal/webhooks/processor"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler handles webhook HTTP requests
type Handler struct {
	processor *processor.WebhookProcessor
	logger    *observability.Logger
}

// New creates a new Handler
func New(processor *processor.WebhookProcessor, logger *observability.Logger) *Handler {
	return &Handler{
		processor: processor,
		logger:    logger,
	}
}

func businessID(c *gin.Context) uuid.UUID {
	return uuid.MustParse(c.MustGet("Business-ID").(string))
}

// CreateWebhookRequest represents a request to register a webhook
type CreateWebhookRequest struct {
	URL         string   `json:"url" binding:"required,url"`
	Events      []string `json:"events" binding:"required,min=1"`
	Description string   `json:"description"`
}

// CreateWebhookResponse carries the webhook plus its secret. This is the
// only place the secret ever appears in a response.
type CreateWebhookResponse struct {
	Webhook store.Webhook `json:"webhook"`
	Secret  string        `json:"secret"`
}

// HandleCreateWebhook handles POST /api/v1/webhooks
func (h *Handler) HandleCreateWebhook(c *gin.Context) {
	ctx := c.Request.Context()
	bizID := businessID(c)
	ctx = observability.WithFields(ctx, observability.Field{Key: "business_id", Value: bizID})

	var req CreateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.RespondWithValidationError(c, err)
		return
	}

	created, err := h.processor.CreateWebhook(ctx, processor.CreateWebhookParams{
		BusinessID:  bizID,
		URL:         req.URL,
		Events:      req.Events,
		Description: req.Description,
	})
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, CreateWebhookResponse{
		Webhook: created.Webhook,
		Secret:  created.Secret,
	})
}

// HandleListWebhooks handles GET /api/v1/webhooks
func (h *Handler) HandleListWebhooks(c *gin.Context) {
	ctx := c.Request.Context()

	webhooks, err := h.processor.ListWebhooks(ctx, businessID(c))
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"webhooks": webhooks})
}

// HandleGetWebhook handles GET /api/v1/webhooks/:id
func (h *Handler) HandleGetWebhook(c *gin.Context) {
	ctx := c.Request.Context()

	webhookID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		apierrors.RespondWithError(c, processor.ErrWebhookNotFound)
		return
	}

	webhook, err := h.processor.GetWebhook(ctx, webhookID, businessID(c))
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, webhook)
}

// UpdateWebhookRequest represents a partial webhook update
type UpdateWebhookRequest struct {
	URL         *string  `json:"url"`
	Events      []string `json:"events"`
	Active      *bool    `json:"active"`
	Description *string  `json:"description"`
}

// HandleUpdateWebhook handles PATCH /api/v1/webhooks/:id
func (h *Handler) HandleUpdateWebhook(c *gin.Context) {
	ctx := c.Request.Context()

	webhookID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		apierrors.RespondWithError(c, processor.ErrWebhookNotFound)
		return
	}

	var req UpdateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.RespondWithValidationError(c, err)
		return
	}

	webhook, err := h.processor.UpdateWebhook(ctx, webhookID, businessID(c), processor.UpdateWebhookParams{
		URL:         req.URL,
		Events:      req.Events,
		Active:      req.Active,
		Description: req.Description,
	})
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, webhook)
}

// HandleDeleteWebhook handles DELETE /api/v1/webhooks/:id
func (h *Handler) HandleDeleteWebhook(c *gin.Context) {
	ctx := c.Request.Context()

	webhookID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		apierrors.RespondWithError(c, processor.ErrWebhookNotFound)
		return
	}

	if err := h.processor.DeleteWebhook(ctx, webhookID, businessID(c)); err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// HandleTestWebhook handles POST /api/v1/webhooks/:id/test
func (h *Handler) HandleTestWebhook(c *gin.Context) {
	ctx := c.Request.Context()

	webhookID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		apierrors.RespondWithError(c, processor.ErrWebhookNotFound)
		return
	}

	delivery, err := h.processor.TestWebhook(ctx, webhookID, businessID(c))
	if err != nil {
		// The webhook exists but the endpoint rejected the test event.
		// Surface the attempt so the caller can inspect the failure.
		if delivery.ID != uuid.Nil {
			c.JSON(http.StatusOK, gin.H{"delivery": delivery, "success": false})
			return
		}
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"delivery": delivery, "success": true})
}

// HandleListDeliveries handles GET /api/v1/webhooks/:id/deliveries
func (h *Handler) HandleListDeliveries(c *gin.Context) {
	ctx := c.Request.Context()

	webhookID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		apierrors.RespondWithError(c, processor.ErrWebhookNotFound)
		return
	}

	limit := parseIntQuery(c, "limit", 50)
	offset := parseIntQuery(c, "offset", 0)

	deliveries, total, err := h.processor.ListDeliveries(ctx, webhookID, businessID(c), limit, offset)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"deliveries": deliveries,
		"total":      total,
		"limit":      limit,
		"offset":     offset,
	})
}

func parseIntQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
