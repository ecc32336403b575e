package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	announcements "foodDeliveryWs/internal/modules/announcements/domain"
	chat "foodDeliveryWs/internal/modules/chat/domain"
	notifications "foodDeliveryWs/internal/modules/notifications/domain"
	"foodDeliveryWs/internal/modules/realtime/application/usecase"
	"foodDeliveryWs/internal/modules/realtime/domain"
	"foodDeliveryWs/internal/modules/realtime/infrastructure"
	"foodDeliveryWs/internal/shared/auth"
	"foodDeliveryWs/internal/shared/validation"
)

const (
	reasonInvalidPayload = "invalid payload"
	reasonForbidden      = "forbidden"
	reasonUnavailable    = "temporarily unavailable"
)

// socketSession holds what the event handlers of one connection need: the services and the
// identity proven by the token at upgrade time.
type socketSession struct {
	svc    *Services
	claims *auth.Claims
}

// newCommandProcessor wires every inbound socket event for one connection.
func newCommandProcessor(svc *Services, claims *auth.Claims) *infrastructure.CommandProcessor {
	s := &socketSession{svc: svc, claims: claims}
	p := infrastructure.NewCommandProcessor(nil)
	p.Register(domain.EventJoinOrderRoom, s.joinOrderRoom)
	p.Register(domain.EventJoinRestaurantRoom, s.joinRestaurantRoom)
	p.Register(domain.EventJoinCustomerRoom, s.joinCustomerRoom)
	p.Register(domain.EventJoinRoleRoom, s.joinRoleRoom)
	p.Register(domain.EventJoinChat, s.joinChat)
	p.Register(domain.EventJoinMenuItemRoom, s.joinMenuItemRoom)
	p.Register(domain.EventLeaveRoom, s.leaveRoom)
	p.Register(domain.EventDriverLocation, s.driverLocation)
	p.Register(domain.EventAckOrder, s.ackOrder)
	p.Register(domain.EventSendMessage, s.sendMessage)
	p.Register(domain.EventTyping, s.typing)
	p.Register(domain.EventDelivered, s.delivered)
	p.Register(domain.EventRead, s.read)
	p.Register(domain.EventFetchChatHistory, s.fetchChatHistory)
	p.Register(domain.EventFetchAnnouncements, s.fetchAnnouncements)
	return p
}

func sendCommandError(client *infrastructure.Client, event, reason string) {
	sendEvent(client, domain.NewErrorEnvelope(domain.EventError, event, reason, time.Now()))
}

func sendEvent(client *infrastructure.Client, env *domain.Envelope) {
	if err := client.Emit(env); err != nil {
		slog.Debug("ws reply dropped", slog.String("connId", client.ID()), slog.String("event", env.Event), slog.Any("error", err))
	}
}

func decodeCommand[T any](v *validation.Validator, raw json.RawMessage) (T, error) {
	var payload T
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return payload, err
		}
	}
	return payload, v.Validate(&payload)
}

// decode answers the client itself when the payload is unusable.
func decode[T any](s *socketSession, client *infrastructure.Client, cmd infrastructure.Command) (T, bool) {
	payload, err := decodeCommand[T](s.svc.Validator, cmd.Data)
	if err != nil {
		slog.Debug("ws payload rejected", slog.String("connId", client.ID()), slog.String("event", cmd.Event), slog.Any("error", err))
		reason := reasonInvalidPayload
		var ve *validation.ValidationError
		if errors.As(err, &ve) {
			reason = ve.Error()
		}
		sendCommandError(client, cmd.Event, reason)
		return payload, false
	}
	return payload, true
}

func (s *socketSession) forbid(client *infrastructure.Client, cmd infrastructure.Command) {
	slog.Warn("ws event forbidden", slog.String("connId", client.ID()), slog.String("userId", s.claims.UserID()), slog.String("event", cmd.Event))
	sendCommandError(client, cmd.Event, reasonForbidden)
}

func (s *socketSession) join(ctx context.Context, client *infrastructure.Client, cmd infrastructure.Command, key domain.RoomKey) {
	_, err := s.svc.Dispatcher.JoinRoom(ctx, client.ID(), key)
	switch {
	case err == nil, errors.Is(err, usecase.ErrReplayIncomplete):
		sendEvent(client, domain.NewEnvelope(domain.EventJoined, key, domain.RoomData{Room: key.String()}, time.Now()))
	default:
		slog.Warn("ws join failed", slog.String("connId", client.ID()), slog.String("room", key.String()), slog.Any("error", err))
		sendCommandError(client, cmd.Event, "join failed")
	}
}

func (s *socketSession) joinOrderRoom(ctx context.Context, client *infrastructure.Client, cmd infrastructure.Command) {
	p, ok := decode[domain.JoinOrderRoomPayload](s, client, cmd)
	if !ok {
		return
	}
	key, err := domain.OrderRoom(p.OrderID.String())
	if err != nil {
		sendCommandError(client, cmd.Event, reasonInvalidPayload)
		return
	}
	s.join(ctx, client, cmd, key)
}

func (s *socketSession) joinRestaurantRoom(ctx context.Context, client *infrastructure.Client, cmd infrastructure.Command) {
	p, ok := decode[domain.JoinRestaurantRoomPayload](s, client, cmd)
	if !ok {
		return
	}
	if !s.claims.HasRole(auth.RoleStaff) {
		s.forbid(client, cmd)
		return
	}
	key, err := domain.RestaurantRoom(p.RestaurantID.String())
	if err != nil {
		sendCommandError(client, cmd.Event, reasonInvalidPayload)
		return
	}
	s.join(ctx, client, cmd, key)
}

func (s *socketSession) joinCustomerRoom(ctx context.Context, client *infrastructure.Client, cmd infrastructure.Command) {
	p, ok := decode[domain.JoinCustomerRoomPayload](s, client, cmd)
	if !ok {
		return
	}
	if !s.claims.Owns(p.CustomerID.String()) {
		s.forbid(client, cmd)
		return
	}
	key, err := domain.CustomerRoom(p.CustomerID.String())
	if err != nil {
		sendCommandError(client, cmd.Event, reasonInvalidPayload)
		return
	}
	s.join(ctx, client, cmd, key)
}

func (s *socketSession) joinRoleRoom(ctx context.Context, client *infrastructure.Client, cmd infrastructure.Command) {
	p, ok := decode[domain.JoinRoleRoomPayload](s, client, cmd)
	if !ok {
		return
	}
	if !s.claims.HasRole(p.Role) {
		s.forbid(client, cmd)
		return
	}
	key, err := domain.RoleRoom(p.Role)
	if err != nil {
		sendCommandError(client, cmd.Event, reasonInvalidPayload)
		return
	}
	s.join(ctx, client, cmd, key)
}

func (s *socketSession) joinChat(ctx context.Context, client *infrastructure.Client, cmd infrastructure.Command) {
	p, ok := decode[domain.JoinChatPayload](s, client, cmd)
	if !ok {
		return
	}
	if !s.speaksFor(p.UserID.String(), p.UserType) {
		s.forbid(client, cmd)
		return
	}
	key, err := domain.PartyRoom(p.UserType, p.UserID.String())
	if err != nil {
		sendCommandError(client, cmd.Event, reasonInvalidPayload)
		return
	}
	s.join(ctx, client, cmd, key)
}

func (s *socketSession) joinMenuItemRoom(ctx context.Context, client *infrastructure.Client, cmd infrastructure.Command) {
	p, ok := decode[domain.JoinMenuItemRoomPayload](s, client, cmd)
	if !ok {
		return
	}
	if !s.claims.HasRole(auth.RoleStaff) {
		s.forbid(client, cmd)
		return
	}
	key, err := domain.MenuItemRoom(p.ItemID.String())
	if err != nil {
		sendCommandError(client, cmd.Event, reasonInvalidPayload)
		return
	}
	s.join(ctx, client, cmd, key)
}

func (s *socketSession) leaveRoom(_ context.Context, client *infrastructure.Client, cmd infrastructure.Command) {
	p, ok := decode[domain.LeaveRoomPayload](s, client, cmd)
	if !ok {
		return
	}
	key, err := domain.ParseRoomKey(p.Room)
	if err != nil {
		sendCommandError(client, cmd.Event, "invalid room")
		return
	}
	s.svc.Dispatcher.LeaveRoom(client.ID(), key)
	sendEvent(client, domain.NewEnvelope(domain.EventLeft, key, domain.RoomData{Room: key.String()}, time.Now()))
}

func (s *socketSession) driverLocation(ctx context.Context, client *infrastructure.Client, cmd infrastructure.Command) {
	p, ok := decode[domain.DriverLocationPayload](s, client, cmd)
	if !ok {
		return
	}
	if !s.claims.HasRole(auth.RoleDriver) || !s.claims.Owns(p.DriverID.String()) {
		s.forbid(client, cmd)
		return
	}
	_, err := s.svc.Broadcast.DriverLocation(ctx, usecase.DriverLocation{
		DriverID: p.DriverID.String(),
		OrderID:  p.OrderID.String(),
		Lat:      *p.Lat,
		Lng:      *p.Lng,
	})
	if err != nil {
		sendCommandError(client, cmd.Event, reasonInvalidPayload)
	}
}

func (s *socketSession) ackOrder(ctx context.Context, client *infrastructure.Client, cmd infrastructure.Command) {
	p, ok := decode[domain.AckOrderPayload](s, client, cmd)
	if !ok {
		return
	}
	if !s.claims.HasRole(auth.RoleStaff) {
		s.forbid(client, cmd)
		return
	}
	result, err := s.svc.Dispatcher.Acknowledge(ctx, p.NotificationID)
	if err != nil {
		reason := reasonUnavailable
		if errors.Is(err, notifications.ErrNotFound) {
			reason = "notification not found"
		}
		slog.Warn("ws ack failed", slog.String("connId", client.ID()), slog.Int64("notificationId", p.NotificationID), slog.Any("error", err))
		sendCommandError(client, cmd.Event, reason)
		return
	}
	n := result.Notification
	room, _ := domain.ParseRoomKey(n.RoomKey)
	sendEvent(client, domain.NewEnvelope(domain.EventAckConfirmed, room, domain.AckConfirmedData{
		NotificationID:      n.ID,
		OrderID:             n.CorrelationID,
		AlreadyAcknowledged: result.AlreadyAcknowledged,
		AcknowledgedAt:      n.AcknowledgedAt,
	}, time.Now()))
}

func (s *socketSession) sendMessage(ctx context.Context, client *infrastructure.Client, cmd infrastructure.Command) {
	p, ok := decode[domain.SendMessagePayload](s, client, cmd)
	if !ok {
		return
	}
	if !s.speaksFor(p.SenderID.String(), p.SenderType) {
		s.forbid(client, cmd)
		return
	}
	sender := chat.Party{ID: p.SenderID.String(), Type: chat.PartyType(p.SenderType)}
	receiver := chat.Party{ID: p.ReceiverID.String(), Type: chat.PartyType(p.ReceiverType)}
	if _, err := s.svc.Chat.Send(ctx, client.ID(), sender, receiver, p.Message); err != nil {
		reason := reasonUnavailable
		if errors.Is(err, chat.ErrInvalidMessage) || errors.Is(err, domain.ErrInvalidRoomKey) {
			reason = reasonInvalidPayload
		}
		sendEvent(client, domain.NewErrorEnvelope(domain.EventChatError, cmd.Event, reason, time.Now()))
	}
}

func (s *socketSession) typing(ctx context.Context, client *infrastructure.Client, cmd infrastructure.Command) {
	p, ok := decode[domain.TypingPayload](s, client, cmd)
	if !ok {
		return
	}
	if !s.speaksFor(p.SenderID.String(), p.SenderType) {
		s.forbid(client, cmd)
		return
	}
	_, err := s.svc.Chat.Typing(ctx, domain.TypingData{
		SenderID:     p.SenderID.String(),
		SenderType:   p.SenderType,
		ReceiverID:   p.ReceiverID.String(),
		ReceiverType: p.ReceiverType,
		IsTyping:     p.IsTyping,
	})
	if err != nil {
		sendCommandError(client, cmd.Event, reasonInvalidPayload)
	}
}

func (s *socketSession) delivered(ctx context.Context, client *infrastructure.Client, cmd infrastructure.Command) {
	s.receipt(ctx, client, cmd, s.svc.Chat.MarkDelivered)
}

func (s *socketSession) read(ctx context.Context, client *infrastructure.Client, cmd infrastructure.Command) {
	s.receipt(ctx, client, cmd, s.svc.Chat.MarkRead)
}

func (s *socketSession) receipt(ctx context.Context, client *infrastructure.Client, cmd infrastructure.Command, mark func(context.Context, uint64) (*chat.Message, error)) {
	p, ok := decode[domain.ReceiptPayload](s, client, cmd)
	if !ok {
		return
	}
	msg, err := s.svc.Chat.Message(ctx, p.MessageID)
	if err == nil {
		// Only the receiver acknowledges a message.
		if !s.speaksFor(msg.Receiver.ID, string(msg.Receiver.Type)) {
			s.forbid(client, cmd)
			return
		}
		_, err = mark(ctx, p.MessageID)
	}
	if err != nil {
		reason := reasonUnavailable
		if errors.Is(err, chat.ErrMessageNotFound) {
			reason = "message not found"
		}
		sendEvent(client, domain.NewErrorEnvelope(domain.EventChatError, cmd.Event, reason, time.Now()))
	}
}

func (s *socketSession) fetchChatHistory(ctx context.Context, client *infrastructure.Client, cmd infrastructure.Command) {
	p, ok := decode[domain.FetchChatHistoryPayload](s, client, cmd)
	if !ok {
		return
	}
	self, ok := s.selfParty()
	if !ok {
		s.forbid(client, cmd)
		return
	}
	other := chat.Party{ID: p.OtherID.String(), Type: chat.PartyType(p.OtherType)}
	history, err := s.svc.Chat.History(ctx, self, other, p.Limit)
	if err != nil {
		sendEvent(client, domain.NewErrorEnvelope(domain.EventChatError, cmd.Event, reasonUnavailable, time.Now()))
		return
	}
	if history == nil {
		history = []chat.Message{}
	}
	sendEvent(client, domain.NewEnvelope(domain.EventChatHistory, domain.RoomKey{}, history, time.Now()))
}

func (s *socketSession) fetchAnnouncements(ctx context.Context, client *infrastructure.Client, cmd infrastructure.Command) {
	p, ok := decode[domain.FetchAnnouncementsPayload](s, client, cmd)
	if !ok {
		return
	}
	if p.Role != announcements.AudienceAll && !s.claims.HasRole(p.Role) {
		s.forbid(client, cmd)
		return
	}
	if _, err := s.svc.Announcements.SendBatch(ctx, client.ID(), p.Role); err != nil {
		slog.Warn("ws announcements fetch failed", slog.String("connId", client.ID()), slog.Any("error", err))
		sendCommandError(client, cmd.Event, reasonUnavailable)
	}
}

// speaksFor reports whether the caller may act as the chat party id/partyType.
func (s *socketSession) speaksFor(id, partyType string) bool {
	if s.claims.HasRole(auth.RoleAdmin) {
		return true
	}
	return s.claims.Owns(id) && s.claims.HasRole(partyType)
}

// selfParty is the caller as a chat participant, taken from the token.
func (s *socketSession) selfParty() (chat.Party, bool) {
	t, ok := chat.ParsePartyType(s.claims.PrimaryRole())
	if !ok {
		return chat.Party{}, false
	}
	return chat.Party{ID: s.claims.UserID(), Type: t}, true
}
