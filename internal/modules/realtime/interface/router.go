package transport

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"foodDeliveryWs/internal/config"
	"foodDeliveryWs/internal/modules/realtime/infrastructure"
	"foodDeliveryWs/internal/platform/metrics"
	"foodDeliveryWs/internal/shared/auth"
)

type HealthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Rooms       int    `json:"rooms"`
}

// RegisterRoutes mounts the websocket endpoint, the REST API, /health, /metrics and the uploaded
// images on e.
func RegisterRoutes(ctx context.Context, e *echo.Echo, hub *infrastructure.Hub, svc *Services, validator auth.TokenValidator, cfg *config.Config) {
	e.Use(metrics.Middleware())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Connections: hub.ConnectionCount(), Rooms: hub.RoomCount()})
	})
	e.GET("/metrics", metrics.Handler())
	e.GET("/ws", NewWebsocketHandler(ctx, hub, svc, validator, cfg.Websocket))
	if cfg.Uploads.Directory != "" && strings.HasPrefix(cfg.Uploads.BaseURL, "/") {
		e.Static(strings.TrimRight(cfg.Uploads.BaseURL, "/"), cfg.Uploads.Directory)
	}

	api := e.Group("/api", auth.Middleware(validator))

	staff := auth.RequireRole(auth.RoleStaff)
	api.POST("/restaurants/:restaurantId/notifications", NewNotifyRestaurantHandler(svc), staff)
	api.GET("/restaurants/:restaurantId/notifications/pending", NewPendingHandler(svc), staff)
	api.POST("/notifications/:id/ack", NewAckHandler(svc), staff)

	api.POST("/driver-location", NewDriverLocationHTTPHandler(svc), auth.RequireRole(auth.RoleDriver))
	api.POST("/orders/:orderId/status", NewOrderStatusHTTPHandler(svc), staff)
	api.POST("/payments/events", NewPaymentUpdateHTTPHandler(svc), auth.RequireRole(auth.RoleAdmin))

	api.POST("/announcements", NewCreateAnnouncementHandler(svc), auth.RequireRole(auth.RoleAdmin))
	api.GET("/announcements", NewListAnnouncementsHandler(svc))

	api.GET("/chat/history", NewChatHistoryHandler(svc))
	api.POST("/menu/:itemId/image", NewMenuImageUploadHandler(svc), staff)
}
