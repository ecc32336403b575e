package transport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	notifications "foodDeliveryWs/internal/modules/notifications/domain"
	"foodDeliveryWs/internal/modules/realtime/domain"
)

type NotifyRestaurantRequest struct {
	OrderID domain.ID       `json:"orderId" validate:"required"`
	Payload json.RawMessage `json:"payload"`
}

type PendingResponse struct {
	Notifications []notifications.Notification `json:"notifications"`
}

type AckResponse struct {
	Notification        *notifications.Notification `json:"notification"`
	AlreadyAcknowledged bool                        `json:"alreadyAcknowledged"`
}

// NewNotifyRestaurantHandler serves POST /api/restaurants/:restaurantId/notifications. The
// notification is stored before any push; a store failure answers 503 and nothing is sent.
func NewNotifyRestaurantHandler(svc *Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req NotifyRestaurantRequest
		if err := bindAndValidate(c, svc.Validator, &req); err != nil {
			return err
		}
		restaurantID := c.Param("restaurantId")
		result, err := svc.Dispatcher.NotifyRestaurant(c.Request().Context(), restaurantID, req.OrderID.String(), req.Payload)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidRoomKey) || errors.Is(err, notifications.ErrInvalidNotification) {
				return errorMapper.HTTPError(err)
			}
			slog.Error("notify restaurant failed", slog.String("restaurantId", restaurantID), slog.String("orderId", req.OrderID.String()), slog.Any("error", err))
			return echo.NewHTTPError(http.StatusServiceUnavailable, "notification store unavailable").SetInternal(err)
		}
		return c.JSON(http.StatusCreated, result)
	}
}

// NewPendingHandler serves GET /api/restaurants/:restaurantId/notifications/pending.
func NewPendingHandler(svc *Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		pending, err := svc.Dispatcher.Pending(c.Request().Context(), c.Param("restaurantId"))
		if err != nil {
			return errorMapper.HTTPError(err)
		}
		if pending == nil {
			pending = []notifications.Notification{}
		}
		return c.JSON(http.StatusOK, PendingResponse{Notifications: pending})
	}
}

// NewAckHandler serves POST /api/notifications/:id/ack, the REST twin of ackOrder.
func NewAckHandler(svc *Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || id <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid notification id")
		}
		result, err := svc.Dispatcher.Acknowledge(c.Request().Context(), id)
		if err != nil {
			return errorMapper.HTTPError(err)
		}
		return c.JSON(http.StatusOK, AckResponse{Notification: result.Notification, AlreadyAcknowledged: result.AlreadyAcknowledged})
	}
}
