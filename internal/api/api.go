package api

import (
	"net/http"

	broadcastHandler "wa-server/internal/broadcasts/handler"
	webhookHandler "wa-server/internal/webhooks/handler"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type API struct {
	router           *gin.RouterGroup
	broadcastHandler *broadcastHandler.Handler
	webhookHandler   *webhookHandler.Handler
}

func New(router *gin.RouterGroup, broadcastHandler *broadcastHandler.Handler, webhookHandler *webhookHandler.Handler) API {
	return API{
		router:           router,
		broadcastHandler: broadcastHandler,
		webhookHandler:   webhookHandler,
	}
}

func (a *API) RegisterRoutes() {
	a.Health()
	apiGroup := a.router.Group("/api/v1", BusinessIDMiddleware())
	{
		broadcastGroup := apiGroup.Group("/broadcasts")
		broadcastGroup.POST("", a.broadcastHandler.HandleCreateBroadcast)
		broadcastGroup.GET("", a.broadcastHandler.HandleListBroadcasts)
		broadcastGroup.GET("/:id", a.broadcastHandler.HandleGetBroadcast)
		broadcastGroup.PATCH("/:id", a.broadcastHandler.HandleUpdateBroadcast)
		broadcastGroup.DELETE("/:id", a.broadcastHandler.HandleDeleteBroadcast)
		broadcastGroup.POST("/:id/send", a.broadcastHandler.HandleSendBroadcast)
		broadcastGroup.POST("/:id/cancel", a.broadcastHandler.HandleCancelBroadcast)
		broadcastGroup.GET("/:id/progress", a.broadcastHandler.HandleGetProgress)
		broadcastGroup.GET("/:id/progress/live", a.broadcastHandler.HandleLiveProgress)
		broadcastGroup.GET("/:id/recipients", a.broadcastHandler.HandleListRecipients)

		webhookGroup := apiGroup.Group("/webhooks")
		webhookGroup.POST("", a.webhookHandler.HandleCreateWebhook)
		webhookGroup.GET("", a.webhookHandler.HandleListWebhooks)
		webhookGroup.GET("/:id", a.webhookHandler.HandleGetWebhook)
		webhookGroup.PATCH("/:id", a.webhookHandler.HandleUpdateWebhook)
		webhookGroup.DELETE("/:id", a.webhookHandler.HandleDeleteWebhook)
		webhookGroup.POST("/:id/test", a.webhookHandler.HandleTestWebhook)
		webhookGroup.GET("/:id/deliveries", a.webhookHandler.HandleListDeliveries)
	}
}

func (a *API) Health() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
}

// BusinessIDMiddleware requires a valid X-Business-ID header on every API
// route and stores it in the request context for handlers.
func BusinessIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		rawID := c.GetHeader("X-Business-ID")
		if rawID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "X-Business-ID header is required"})
			return
		}
		if _, err := uuid.Parse(rawID); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "X-Business-ID must be a valid UUID"})
			return
		}
		c.Set("Business-ID", rawID)
		c.Next()
	}
}
