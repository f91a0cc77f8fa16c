package handler

import (
	"net/http"
	"strconv"
	"time"

	"wa-server/internal/apierrors"
	"wa-server/internal/broadcasts/processor"
	"wa-server/internal/observability"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Handler handles broadcast HTTP requests
type Handler struct {
	processor *processor.BroadcastProcessor
	logger    *observability.Logger
	upgrader  websocket.Upgrader
}

// New creates a new Handler
func New(broadcastProcessor *processor.BroadcastProcessor, logger *observability.Logger) *Handler {
	return &Handler{
		processor: broadcastProcessor,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin is enforced by the CORS layer in front of the API
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func businessID(c *gin.Context) uuid.UUID {
	return uuid.MustParse(c.MustGet("Business-ID").(string))
}

func broadcastID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		apierrors.RespondWithError(c, processor.ErrBroadcastNotFound)
		return uuid.Nil, false
	}
	return id, true
}

// CreateBroadcastRequest represents a request to create a broadcast
type CreateBroadcastRequest struct {
	Name               string   `json:"name" binding:"required"`
	DeviceID           string   `json:"device_id" binding:"required,uuid"`
	Message            string   `json:"message" binding:"required"`
	MessageType        string   `json:"message_type" binding:"omitempty,oneof=text image file location"`
	MediaURL           *string  `json:"media_url" binding:"omitempty,url"`
	SendSpeed          string   `json:"send_speed" binding:"omitempty,oneof=slow normal fast custom"`
	CustomDelaySeconds *int     `json:"custom_delay_seconds" binding:"omitempty,min=1"`
	ScheduledAt        *string  `json:"scheduled_at"`
	ContactListIDs     []string `json:"contact_list_ids" binding:"required,min=1,dive,uuid"`
}

// HandleCreateBroadcast handles POST /api/v1/broadcasts
func (h *Handler) HandleCreateBroadcast(c *gin.Context) {
	ctx := c.Request.Context()
	bizID := businessID(c)
	ctx = observability.WithFields(ctx, observability.Field{Key: "business_id", Value: bizID})

	var req CreateBroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.RespondWithValidationError(c, err)
		return
	}

	if req.MessageType == "" {
		req.MessageType = "text"
	}

	var scheduledAt *time.Time
	if req.ScheduledAt != nil && *req.ScheduledAt != "" {
		parsed, err := time.Parse(time.RFC3339, *req.ScheduledAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, apierrors.ErrorResponse{
				Error: "scheduled_at must be an RFC3339 timestamp",
				Code:  apierrors.CodeInvalidInput,
			})
			return
		}
		scheduledAt = &parsed
	}

	listIDs := make([]uuid.UUID, 0, len(req.ContactListIDs))
	for _, raw := range req.ContactListIDs {
		listIDs = append(listIDs, uuid.MustParse(raw))
	}

	broadcast, err := h.processor.CreateBroadcast(ctx, processor.CreateBroadcastParams{
		BusinessID:         bizID,
		DeviceID:           uuid.MustParse(req.DeviceID),
		Name:               req.Name,
		Message:            req.Message,
		MessageType:        req.MessageType,
		MediaURL:           req.MediaURL,
		SendSpeed:          req.SendSpeed,
		CustomDelaySeconds: req.CustomDelaySeconds,
		ScheduledAt:        scheduledAt,
		ContactListIDs:     listIDs,
	})
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, broadcast)
}

// HandleListBroadcasts handles GET /api/v1/broadcasts
func (h *Handler) HandleListBroadcasts(c *gin.Context) {
	ctx := c.Request.Context()

	limit := parseIntQuery(c, "limit", 50)
	offset := parseIntQuery(c, "offset", 0)

	broadcasts, total, err := h.processor.ListBroadcasts(ctx, businessID(c), limit, offset)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"broadcasts": broadcasts,
		"total":      total,
		"limit":      limit,
		"offset":     offset,
	})
}

// HandleGetBroadcast handles GET /api/v1/broadcasts/:id
func (h *Handler) HandleGetBroadcast(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := broadcastID(c)
	if !ok {
		return
	}

	broadcast, err := h.processor.GetBroadcast(ctx, id, businessID(c))
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, broadcast)
}

// UpdateBroadcastRequest represents a partial broadcast update
type UpdateBroadcastRequest struct {
	Name               *string  `json:"name"`
	DeviceID           *string  `json:"device_id" binding:"omitempty,uuid"`
	Message            *string  `json:"message"`
	MessageType        *string  `json:"message_type" binding:"omitempty,oneof=text image file location"`
	MediaURL           *string  `json:"media_url" binding:"omitempty,url"`
	SendSpeed          *string  `json:"send_speed" binding:"omitempty,oneof=slow normal fast custom"`
	CustomDelaySeconds *int     `json:"custom_delay_seconds" binding:"omitempty,min=1"`
	ScheduledAt        *string  `json:"scheduled_at"`
	ContactListIDs     []string `json:"contact_list_ids" binding:"omitempty,min=1,dive,uuid"`
}

// HandleUpdateBroadcast handles PATCH /api/v1/broadcasts/:id
func (h *Handler) HandleUpdateBroadcast(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := broadcastID(c)
	if !ok {
		return
	}

	var req UpdateBroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.RespondWithValidationError(c, err)
		return
	}

	params := processor.UpdateBroadcastParams{
		Name:               req.Name,
		Message:            req.Message,
		MessageType:        req.MessageType,
		MediaURL:           req.MediaURL,
		SendSpeed:          req.SendSpeed,
		CustomDelaySeconds: req.CustomDelaySeconds,
	}

	if req.DeviceID != nil {
		deviceID := uuid.MustParse(*req.DeviceID)
		params.DeviceID = &deviceID
	}
	if req.ScheduledAt != nil && *req.ScheduledAt != "" {
		parsed, err := time.Parse(time.RFC3339, *req.ScheduledAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, apierrors.ErrorResponse{
				Error: "scheduled_at must be an RFC3339 timestamp",
				Code:  apierrors.CodeInvalidInput,
			})
			return
		}
		params.ScheduledAt = &parsed
	}
	if req.ContactListIDs != nil {
		listIDs := make([]uuid.UUID, 0, len(req.ContactListIDs))
		for _, raw := range req.ContactListIDs {
			listIDs = append(listIDs, uuid.MustParse(raw))
		}
		params.ContactListIDs = listIDs
	}

	broadcast, err := h.processor.UpdateBroadcast(ctx, id, businessID(c), params)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, broadcast)
}

// HandleDeleteBroadcast handles DELETE /api/v1/broadcasts/:id
func (h *Handler) HandleDeleteBroadcast(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := broadcastID(c)
	if !ok {
		return
	}

	if err := h.processor.DeleteBroadcast(ctx, id, businessID(c)); err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// HandleSendBroadcast handles POST /api/v1/broadcasts/:id/send
func (h *Handler) HandleSendBroadcast(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := broadcastID(c)
	if !ok {
		return
	}

	broadcast, err := h.processor.StartBroadcast(ctx, id, businessID(c))
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, broadcast)
}

// HandleCancelBroadcast handles POST /api/v1/broadcasts/:id/cancel
func (h *Handler) HandleCancelBroadcast(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := broadcastID(c)
	if !ok {
		return
	}

	broadcast, err := h.processor.CancelBroadcast(ctx, id, businessID(c))
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, broadcast)
}

// HandleGetProgress handles GET /api/v1/broadcasts/:id/progress
func (h *Handler) HandleGetProgress(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := broadcastID(c)
	if !ok {
		return
	}

	progress, err := h.processor.GetProgress(ctx, id, businessID(c))
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, progress)
}

// HandleLiveProgress handles GET /api/v1/broadcasts/:id/progress/live.
// Upgrades to a websocket and streams progress snapshots until the broadcast
// reaches a terminal state or the client disconnects.
func (h *Handler) HandleLiveProgress(c *gin.Context) {
	ctx := c.Request.Context()
	bizID := businessID(c)

	id, ok := broadcastID(c)
	if !ok {
		return
	}

	// Validate before upgrading so a missing broadcast still gets a 404
	if _, err := h.processor.GetProgress(ctx, id, bizID); err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error(ctx, "failed to upgrade progress connection", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		progress, err := h.processor.GetProgress(ctx, id, bizID)
		if err != nil {
			h.logger.Error(ctx, "failed to get broadcast progress", err)
			return
		}

		if err := conn.WriteJSON(progress); err != nil {
			return
		}

		if isTerminalStatus(progress.Status) {
			return
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func isTerminalStatus(status string) bool {
	return status == "completed" || status == "failed" || status == "cancelled"
}

// HandleListRecipients handles GET /api/v1/broadcasts/:id/recipients
func (h *Handler) HandleListRecipients(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := broadcastID(c)
	if !ok {
		return
	}

	limit := parseIntQuery(c, "limit", 100)
	offset := parseIntQuery(c, "offset", 0)

	recipients, err := h.processor.ListRecipients(ctx, id, businessID(c), limit, offset)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"recipients": recipients,
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
