package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	notifications "foodDeliveryWs/internal/modules/notifications/domain"
	"foodDeliveryWs/internal/modules/realtime/application/port"
	"foodDeliveryWs/internal/modules/realtime/application/usecase"
	"foodDeliveryWs/internal/modules/realtime/domain"
	"foodDeliveryWs/internal/shared/validation"
)

// Business event names carried on the broker.
const (
	EventOrderCreated   = "order.created"
	EventOrderPayment   = "order.payment"
	EventOrderStatus    = "order.status"
	EventDriverLocation = "driver.location"
)

// ErrMalformedEvent is returned for records that are committed without effect.
var ErrMalformedEvent = port.ErrMalformedEvent

// permanent tags errors caused by the record itself as malformed, so the consumer skips it
// instead of retrying.
func permanent(err error) error {
	if err == nil || errors.Is(err, ErrMalformedEvent) {
		return err
	}
	if errors.Is(err, domain.ErrInvalidRoomKey) || errors.Is(err, notifications.ErrInvalidNotification) || errors.Is(err, usecase.ErrInvalidLocation) {
		return fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	return err
}

type OrderCreatedEvent struct {
	OrderID      domain.ID       `json:"orderId" validate:"required"`
	RestaurantID domain.ID       `json:"restaurantId" validate:"required"`
	Payload      json.RawMessage `json:"payload"`
}

type OrderPaymentEvent struct {
	OrderID    domain.ID       `json:"orderId" validate:"required"`
	CustomerID domain.ID       `json:"customerId" validate:"required"`
	Status     string          `json:"status" validate:"required"`
	Amount     float64         `json:"amount"`
	Details    json.RawMessage `json:"details"`
}

type OrderStatusEvent struct {
	OrderID domain.ID       `json:"orderId" validate:"required"`
	Status  string          `json:"status" validate:"required"`
	Details json.RawMessage `json:"details"`
}

func decode(msg *port.BrokerMessage, v *validation.Validator, out any) error {
	if err := json.Unmarshal(msg.Value, out); err != nil {
		return fmt.Errorf("%w: %s offset %d: %v", ErrMalformedEvent, msg.Topic, msg.Offset, err)
	}
	if err := v.Validate(out); err != nil {
		return fmt.Errorf("%w: %s offset %d: %v", ErrMalformedEvent, msg.Topic, msg.Offset, err)
	}
	return nil
}

// OrderCreatedHandler turns order.created into a restaurant notification. Without a payload
// field the whole event becomes the payload.
type OrderCreatedHandler struct {
	dispatcher *usecase.NotificationDispatcher
	validator  *validation.Validator
}

func NewOrderCreatedHandler(d *usecase.NotificationDispatcher, v *validation.Validator) *OrderCreatedHandler {
	return &OrderCreatedHandler{dispatcher: d, validator: v}
}

func (h *OrderCreatedHandler) Topic() string { return EventOrderCreated }

func (h *OrderCreatedHandler) Handle(ctx context.Context, msg *port.BrokerMessage) error {
	var evt OrderCreatedEvent
	if err := decode(msg, h.validator, &evt); err != nil {
		return err
	}
	payload := evt.Payload
	if len(payload) == 0 || string(payload) == "null" {
		payload = msg.Value
	}
	result, err := h.dispatcher.NotifyRestaurant(ctx, evt.RestaurantID.String(), evt.OrderID.String(), payload)
	if err != nil {
		return permanent(fmt.Errorf("notify restaurant %s: %w", evt.RestaurantID, err))
	}
	slog.Debug("order.created handled", slog.String("orderId", evt.OrderID.String()), slog.String("outcome", string(result.Outcome)))
	return nil
}

// OrderPaymentHandler relays payment changes to customer:<id>.
type OrderPaymentHandler struct {
	broadcast *usecase.BroadcastUseCase
	validator *validation.Validator
}

func NewOrderPaymentHandler(b *usecase.BroadcastUseCase, v *validation.Validator) *OrderPaymentHandler {
	return &OrderPaymentHandler{broadcast: b, validator: v}
}

func (h *OrderPaymentHandler) Topic() string { return EventOrderPayment }

func (h *OrderPaymentHandler) Handle(ctx context.Context, msg *port.BrokerMessage) error {
	var evt OrderPaymentEvent
	if err := decode(msg, h.validator, &evt); err != nil {
		return err
	}
	_, err := h.broadcast.PaymentUpdate(ctx, domain.PaymentUpdateData{
		OrderID:    evt.OrderID.String(),
		CustomerID: evt.CustomerID.String(),
		Status:     evt.Status,
		Amount:     evt.Amount,
		Details:    evt.Details,
	})
	return permanent(err)
}

// OrderStatusHandler relays status changes to order:<id>.
type OrderStatusHandler struct {
	broadcast *usecase.BroadcastUseCase
	validator *validation.Validator
}

func NewOrderStatusHandler(b *usecase.BroadcastUseCase, v *validation.Validator) *OrderStatusHandler {
	return &OrderStatusHandler{broadcast: b, validator: v}
}

func (h *OrderStatusHandler) Topic() string { return EventOrderStatus }

func (h *OrderStatusHandler) Handle(ctx context.Context, msg *port.BrokerMessage) error {
	var evt OrderStatusEvent
	if err := decode(msg, h.validator, &evt); err != nil {
		return err
	}
	_, err := h.broadcast.OrderStatus(ctx, domain.OrderStatusData{
		OrderID: evt.OrderID.String(),
		Status:  evt.Status,
		Details: evt.Details,
	})
	return permanent(err)
}

// DriverLocationHandler is the broker twin of the driverLocation socket event.
type DriverLocationHandler struct {
	broadcast *usecase.BroadcastUseCase
	validator *validation.Validator
}

func NewDriverLocationHandler(b *usecase.BroadcastUseCase, v *validation.Validator) *DriverLocationHandler {
	return &DriverLocationHandler{broadcast: b, validator: v}
}

func (h *DriverLocationHandler) Topic() string { return EventDriverLocation }

func (h *DriverLocationHandler) Handle(ctx context.Context, msg *port.BrokerMessage) error {
	var evt domain.DriverLocationPayload
	if err := decode(msg, h.validator, &evt); err != nil {
		return err
	}
	_, err := h.broadcast.DriverLocation(ctx, usecase.DriverLocation{
		DriverID: evt.DriverID.String(),
		OrderID:  evt.OrderID.String(),
		Lat:      *evt.Lat,
		Lng:      *evt.Lng,
	})
	return permanent(err)
}

var (
	_ port.TopicHandler = (*OrderCreatedHandler)(nil)
	_ port.TopicHandler = (*OrderPaymentHandler)(nil)
	_ port.TopicHandler = (*OrderStatusHandler)(nil)
	_ port.TopicHandler = (*DriverLocationHandler)(nil)
)
