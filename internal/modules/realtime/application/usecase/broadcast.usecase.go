package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"foodDeliveryWs/internal/modules/realtime/application/port"
	"foodDeliveryWs/internal/modules/realtime/domain"
)

var ErrInvalidLocation = errors.New("invalid driver location")

// BroadcastUseCase is the fire-and-forget fan-out path: nothing is persisted and absent
// listeners simply miss the event.
type BroadcastUseCase struct {
	rooms port.RoomRegistry
	now   func() time.Time
}

func NewBroadcastUseCase(rooms port.RoomRegistry) *BroadcastUseCase {
	return &BroadcastUseCase{rooms: rooms, now: time.Now}
}

// Execute sends event to every member of key and returns how many accepted it.
func (uc *BroadcastUseCase) Execute(ctx context.Context, key domain.RoomKey, event string, data any) int {
	return uc.rooms.Broadcast(ctx, key, domain.NewEnvelope(event, key, data, uc.now()))
}

type DriverLocation struct {
	DriverID string
	OrderID  string
	Lat      float64
	Lng      float64
}

// DriverLocation relays a GPS ping to order:<orderId>.
func (uc *BroadcastUseCase) DriverLocation(ctx context.Context, loc DriverLocation) (int, error) {
	if strings.TrimSpace(loc.DriverID) == "" {
		return 0, fmt.Errorf("%w: driver id is required", ErrInvalidLocation)
	}
	if loc.Lat < -90 || loc.Lat > 90 || loc.Lng < -180 || loc.Lng > 180 {
		return 0, fmt.Errorf("%w: coordinates out of range", ErrInvalidLocation)
	}
	key, err := domain.OrderRoom(loc.OrderID)
	if err != nil {
		return 0, err
	}
	data := domain.LocationUpdateData{
		DriverID:  loc.DriverID,
		OrderID:   key.ID,
		Lat:       loc.Lat,
		Lng:       loc.Lng,
		Timestamp: uc.now().UTC(),
	}
	n := uc.Execute(ctx, key, domain.EventLocationUpdate, data)
	slog.Debug("driver location relayed", slog.String("driverId", loc.DriverID), slog.String("room", key.String()), slog.Int("recipients", n))
	return n, nil
}

// PaymentUpdate tells the customer about a payment change on one of their orders.
func (uc *BroadcastUseCase) PaymentUpdate(ctx context.Context, data domain.PaymentUpdateData) (int, error) {
	key, err := domain.CustomerRoom(data.CustomerID)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(data.OrderID) == "" {
		return 0, fmt.Errorf("%w: payment update without order id", domain.ErrInvalidRoomKey)
	}
	return uc.Execute(ctx, key, domain.EventPaymentUpdate, data), nil
}

// OrderStatus fans a status change out to everyone watching the order.
func (uc *BroadcastUseCase) OrderStatus(ctx context.Context, data domain.OrderStatusData) (int, error) {
	key, err := domain.OrderRoom(data.OrderID)
	if err != nil {
		return 0, err
	}
	return uc.Execute(ctx, key, domain.EventOrderStatus, data), nil
}
