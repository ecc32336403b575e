package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	notifications "foodDeliveryWs/internal/modules/notifications/domain"
	"foodDeliveryWs/internal/modules/realtime/application/port"
	"foodDeliveryWs/internal/modules/realtime/domain"
	"foodDeliveryWs/internal/platform/metrics"
	"foodDeliveryWs/internal/platform/tracing"
)

var ErrReplayIncomplete = errors.New("replay incomplete")

// Outcome tells whether a notification reached a live member or stays in the backlog.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeQueued    Outcome = "queued"
)

type DispatchResult struct {
	Notification *notifications.Notification `json:"notification"`
	Outcome      Outcome                     `json:"outcome"`
	Recipients   int                         `json:"recipients"`
}

type JoinResult struct {
	Room     domain.RoomKey
	Replayed int
}

type AckResult struct {
	Notification        *notifications.Notification
	AlreadyAcknowledged bool
}

// NotificationDispatcher persists restaurant notifications, pushes them to live staff and replays
// the backlog to staff joining later. Creation and replay for the same room never interleave.
type NotificationDispatcher struct {
	store  port.NotificationStore
	rooms  port.RoomRegistry
	seq    *roomSequencer
	tracer trace.Tracer
	now    func() time.Time
}

func NewNotificationDispatcher(store port.NotificationStore, rooms port.RoomRegistry) *NotificationDispatcher {
	return &NotificationDispatcher{
		store:  store,
		rooms:  rooms,
		seq:    newRoomSequencer(),
		tracer: tracing.Tracer(),
		now:    time.Now,
	}
}

// NotifyRestaurant stores the notification for restaurant:<id> and pushes it to whoever is in
// that room. With nobody listening (or every send failing) it stays pending for replay.
func (d *NotificationDispatcher) NotifyRestaurant(ctx context.Context, restaurantID, orderID string, payload json.RawMessage) (*DispatchResult, error) {
	key, err := domain.RestaurantRoom(restaurantID)
	if err != nil {
		return nil, err
	}
	ctx, span := d.tracer.Start(ctx, "notifications.notify_restaurant",
		trace.WithAttributes(attribute.String("room", key.String()), attribute.String("orderId", orderID)))
	defer span.End()

	release, err := d.seq.acquire(ctx, key.String())
	if err != nil {
		return nil, err
	}
	defer release()

	n, err := d.store.Create(ctx, key.String(), orderID, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create notification")
		return nil, fmt.Errorf("create notification: %w", err)
	}

	result := &DispatchResult{Notification: n, Outcome: OutcomeQueued}
	if len(d.rooms.MembersOf(key)) > 0 {
		env := domain.NewEnvelope(domain.EventNewOrder, key, newOrderData(n, false), d.now())
		result.Recipients = d.rooms.Broadcast(ctx, key, env)
	}
	if result.Recipients > 0 {
		result.Outcome = OutcomeDelivered
		d.markSent(ctx, n)
	}

	metrics.Dispatches.WithLabelValues(string(result.Outcome)).Inc()
	span.SetAttributes(attribute.String("outcome", string(result.Outcome)), attribute.Int("recipients", result.Recipients))
	slog.Info("restaurant notification dispatched",
		slog.String("room", key.String()),
		slog.Int64("notificationId", n.ID),
		slog.String("orderId", orderID),
		slog.String("outcome", string(result.Outcome)),
		slog.Int("recipients", result.Recipients),
	)
	return result, nil
}

// JoinRoom adds the connection to the room. For backlogged rooms every notification not yet
// acknowledged is then sent to that connection only, oldest first; pending ones are marked sent
// once queued. Each join replays the whole unacknowledged backlog, so staff joining one after
// the other all see it until somebody acknowledges.
// A failed backlog read still leaves the connection joined; it gets a replayIncomplete event and
// ErrReplayIncomplete is returned.
func (d *NotificationDispatcher) JoinRoom(ctx context.Context, connID string, key domain.RoomKey) (*JoinResult, error) {
	result := &JoinResult{Room: key}
	if !key.Kind.Backlogged() {
		if err := d.rooms.Join(key, connID); err != nil {
			return nil, err
		}
		return result, nil
	}

	ctx, span := d.tracer.Start(ctx, "notifications.join_room",
		trace.WithAttributes(attribute.String("room", key.String()), attribute.String("connId", connID)))
	defer span.End()

	release, err := d.seq.acquire(ctx, key.String())
	if err != nil {
		return nil, err
	}
	defer release()

	if err := d.rooms.Join(key, connID); err != nil {
		return nil, err
	}

	backlog, err := d.store.UnacknowledgedFor(ctx, key.String())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read backlog")
		slog.Warn("replay backlog read failed", slog.String("room", key.String()), slog.String("connId", connID), slog.Any("error", err))
		env := domain.NewEnvelope(domain.EventReplayIncomplete, key, domain.ReplayIncompleteData{Room: key.String(), Reason: "backlog unavailable"}, d.now())
		_ = d.rooms.SendTo(ctx, connID, env)
		return result, fmt.Errorf("%w: %v", ErrReplayIncomplete, err)
	}

	for i := range backlog {
		n := &backlog[i]
		env := domain.NewEnvelope(domain.EventNewOrder, key, newOrderData(n, true), d.now())
		if err := d.rooms.SendTo(ctx, connID, env); err != nil {
			slog.Warn("replay stopped", slog.String("room", key.String()), slog.String("connId", connID), slog.Int("remaining", len(backlog)-i), slog.Any("error", err))
			break
		}
		if n.State == notifications.StatePending {
			d.markSent(ctx, n)
		}
		result.Replayed++
	}

	metrics.Replayed.Add(float64(result.Replayed))
	span.SetAttributes(attribute.Int("replayed", result.Replayed))
	if result.Replayed > 0 {
		slog.Info("restaurant backlog replayed", slog.String("room", key.String()), slog.String("connId", connID), slog.Int("replayed", result.Replayed))
	}
	return result, nil
}

func (d *NotificationDispatcher) LeaveRoom(connID string, key domain.RoomKey) {
	d.rooms.Leave(key, connID)
}

// Acknowledge marks the notification acknowledged. Acknowledging twice is not an error: the
// second call reports AlreadyAcknowledged.
func (d *NotificationDispatcher) Acknowledge(ctx context.Context, id int64) (*AckResult, error) {
	n, err := d.store.MarkAcknowledged(ctx, id)
	if err == nil {
		return &AckResult{Notification: n}, nil
	}
	if !errors.Is(err, notifications.ErrTransitionConflict) {
		return nil, err
	}

	current, getErr := d.store.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if !current.IsAcknowledged() {
		return nil, err
	}
	slog.Warn("notification already acknowledged", slog.Int64("notificationId", id))
	return &AckResult{Notification: current, AlreadyAcknowledged: true}, nil
}

// Pending returns the restaurant's backlog straight from the store.
func (d *NotificationDispatcher) Pending(ctx context.Context, restaurantID string) ([]notifications.Notification, error) {
	key, err := domain.RestaurantRoom(restaurantID)
	if err != nil {
		return nil, err
	}
	return d.store.PendingFor(ctx, key.String())
}

func (d *NotificationDispatcher) markSent(ctx context.Context, n *notifications.Notification) {
	if err := d.store.MarkSent(ctx, n.ID); err != nil {
		if errors.Is(err, notifications.ErrTransitionConflict) {
			slog.Warn("notification already past pending", slog.Int64("notificationId", n.ID), slog.Any("error", err))
			return
		}
		slog.Error("mark notification sent failed", slog.Int64("notificationId", n.ID), slog.Any("error", err))
		return
	}
	at := d.now().UTC()
	n.State = notifications.StateSent
	n.DeliveredAt = &at
}

func newOrderData(n *notifications.Notification, replayed bool) domain.NewOrderData {
	return domain.NewOrderData{
		NotificationID: n.ID,
		OrderID:        n.CorrelationID,
		Room:           n.RoomKey,
		Payload:        n.Payload,
		CreatedAt:      n.CreatedAt,
		Replayed:       replayed,
	}
}
