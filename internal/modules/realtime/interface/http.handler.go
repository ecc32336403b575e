package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"foodDeliveryWs/internal/config"
	"foodDeliveryWs/internal/modules/realtime/domain"
	"foodDeliveryWs/internal/modules/realtime/infrastructure"
	"foodDeliveryWs/internal/shared/auth"
)

// newUpgrader accepts any origin when none is configured or "*" is listed. Requests without an
// Origin header (non-browser clients) are accepted.
func newUpgrader(allowed []string) websocket.Upgrader {
	origins := make(map[string]struct{}, len(allowed))
	wildcard := len(allowed) == 0
	for _, o := range allowed {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			wildcard = true
		}
		origins[strings.ToLower(o)] = struct{}{}
	}
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if wildcard {
				return true
			}
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin == "" {
				return true
			}
			_, ok := origins[strings.ToLower(strings.TrimRight(origin, "/"))]
			return ok
		},
	}
}

// NewWebsocketHandler exposes GET /ws. The JWT comes from the Authorization header or the token
// query parameter and is checked before the upgrade. ctx bounds the life of every connection.
func NewWebsocketHandler(
	ctx context.Context,
	hub *infrastructure.Hub,
	svc *Services,
	validator auth.TokenValidator,
	cfg config.WebsocketConfig,
) echo.HandlerFunc {
	upgrader := newUpgrader(cfg.AllowedOrigins)

	return func(c echo.Context) error {
		logger := c.Logger()
		requestID := c.Response().Header().Get(echo.HeaderXRequestID)
		peerIP := c.RealIP()

		claims, err := validator.Validate(auth.ExtractToken(c.Request(), "token"))
		if err != nil {
			status, message := http.StatusUnauthorized, "invalid token"
			if errors.Is(err, auth.ErrMissingToken) {
				message = "missing token"
			}
			slog.Warn("ws handler auth failed", slog.String("ip", peerIP), slog.Any("error", err))
			logger.Warnf("ws rejected ip=%s reqID=%s: %v", peerIP, requestID, err)
			return echo.NewHTTPError(status, message)
		}

		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			slog.Error("ws handler upgrade failed", slog.String("userId", claims.UserID()), slog.Any("error", err))
			logger.Errorf("ws upgrade failed ip=%s reqID=%s: %v", peerIP, requestID, err)
			return nil
		}

		client := infrastructure.NewClient(hub, conn, newCommandProcessor(svc, claims), infrastructure.ClientOptions{
			UserID:     claims.UserID(),
			Role:       claims.PrimaryRole(),
			SendBuffer: cfg.SendBuffer,
			ReadLimit:  cfg.ReadLimit,
			PongWait:   cfg.PongWait,
			PingPeriod: cfg.PingPeriod,
		})
		hub.Register(client)
		client.AddCloseHook(func(cl *infrastructure.Client) {
			slog.Info("ws disconnected", slog.String("connId", cl.ID()), slog.String("userId", cl.UserID()))
		})

		go client.WritePump()
		go client.ReadPump(ctx)

		sendEvent(client, domain.NewEnvelope(domain.EventConnected, domain.RoomKey{}, domain.ConnectedData{
			ConnectionID: client.ID(),
			UserID:       client.UserID(),
			Role:         client.Role(),
		}, time.Now()))

		slog.Info("ws connected", slog.String("connId", client.ID()), slog.String("userId", client.UserID()), slog.String("role", client.Role()), slog.String("ip", peerIP))
		logger.Infof("ws connected conn=%s user=%s role=%s ip=%s reqID=%s", client.ID(), client.UserID(), client.Role(), peerIP, requestID)
		return nil
	}
}
