package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"foodDeliveryWs/internal/modules/realtime/application/usecase"
	"foodDeliveryWs/internal/modules/realtime/domain"
	"foodDeliveryWs/internal/shared/auth"
)

// BroadcastResponse reports how many live sockets took the event.
type BroadcastResponse struct {
	Success    bool   `json:"success"`
	Event      string `json:"event"`
	Room       string `json:"room"`
	Recipients int    `json:"recipients"`
}

type OrderStatusRequest struct {
	Status  string          `json:"status" validate:"required"`
	Details json.RawMessage `json:"details"`
}

type PaymentUpdateRequest struct {
	OrderID    domain.ID       `json:"orderId" validate:"required"`
	CustomerID domain.ID       `json:"customerId" validate:"required"`
	Status     string          `json:"status" validate:"required"`
	Amount     float64         `json:"amount" validate:"gte=0"`
	Details    json.RawMessage `json:"details"`
}

// NewDriverLocationHTTPHandler serves POST /api/driver-location. Drivers may only report
// themselves.
func NewDriverLocationHTTPHandler(svc *Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req domain.DriverLocationPayload
		if err := bindAndValidate(c, svc.Validator, &req); err != nil {
			return err
		}
		if !auth.ClaimsFrom(c).Owns(req.DriverID.String()) {
			return echo.NewHTTPError(http.StatusForbidden, auth.ErrForbidden.Error())
		}
		n, err := svc.Broadcast.DriverLocation(c.Request().Context(), usecase.DriverLocation{
			DriverID: req.DriverID.String(),
			OrderID:  req.OrderID.String(),
			Lat:      *req.Lat,
			Lng:      *req.Lng,
		})
		if err != nil {
			return errorMapper.HTTPError(err)
		}
		return c.JSON(http.StatusOK, BroadcastResponse{Success: true, Event: domain.EventLocationUpdate, Room: "order:" + req.OrderID.String(), Recipients: n})
	}
}

// NewOrderStatusHTTPHandler serves POST /api/orders/:orderId/status for producers that cannot
// reach the broker.
func NewOrderStatusHTTPHandler(svc *Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req OrderStatusRequest
		if err := bindAndValidate(c, svc.Validator, &req); err != nil {
			return err
		}
		orderID := c.Param("orderId")
		n, err := svc.Broadcast.OrderStatus(c.Request().Context(), domain.OrderStatusData{OrderID: orderID, Status: req.Status, Details: req.Details})
		if err != nil {
			return errorMapper.HTTPError(err)
		}
		slog.Info("order status broadcast", slog.String("orderId", orderID), slog.String("status", req.Status), slog.Int("recipients", n))
		return c.JSON(http.StatusOK, BroadcastResponse{Success: true, Event: domain.EventOrderStatus, Room: "order:" + orderID, Recipients: n})
	}
}

// NewPaymentUpdateHTTPHandler serves POST /api/payments/events, used by payment workflows to
// push a status change to the customer.
func NewPaymentUpdateHTTPHandler(svc *Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req PaymentUpdateRequest
		if err := bindAndValidate(c, svc.Validator, &req); err != nil {
			return err
		}
		n, err := svc.Broadcast.PaymentUpdate(c.Request().Context(), domain.PaymentUpdateData{
			OrderID:    req.OrderID.String(),
			CustomerID: req.CustomerID.String(),
			Status:     req.Status,
			Amount:     req.Amount,
			Details:    req.Details,
		})
		if err != nil {
			return errorMapper.HTTPError(err)
		}
		slog.Info("payment update broadcast", slog.String("orderId", req.OrderID.String()), slog.String("status", req.Status), slog.Int("recipients", n))
		return c.JSON(http.StatusOK, BroadcastResponse{Success: true, Event: domain.EventPaymentUpdate, Room: "customer:" + req.CustomerID.String(), Recipients: n})
	}
}
