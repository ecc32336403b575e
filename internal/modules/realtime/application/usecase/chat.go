package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	chat "foodDeliveryWs/internal/modules/chat/domain"
	"foodDeliveryWs/internal/modules/realtime/application/port"
	"foodDeliveryWs/internal/modules/realtime/domain"
)

const defaultHistoryLimit = 100

var ErrChatUnavailable = errors.New("chat store unavailable")

// ChatUseCase persists chat lines and relays them to the parties' personal rooms.
type ChatUseCase struct {
	store port.ChatStore
	rooms port.RoomRegistry
	now   func() time.Time
}

func NewChatUseCase(store port.ChatStore, rooms port.RoomRegistry) *ChatUseCase {
	return &ChatUseCase{store: store, rooms: rooms, now: time.Now}
}

// Send stores the message first; only then is newMessage pushed to the receiver room and
// messageSent to the sender room. originConnID also gets messageSent when it has not joined
// its own room. Nothing is broadcast when the write fails.
func (uc *ChatUseCase) Send(ctx context.Context, originConnID string, sender, receiver chat.Party, text string) (*chat.Message, error) {
	msg := &chat.Message{Sender: sender, Receiver: receiver, Message: text}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	senderRoom, err := domain.PartyRoom(string(sender.Type), sender.ID)
	if err != nil {
		return nil, err
	}
	receiverRoom, err := domain.PartyRoom(string(receiver.Type), receiver.ID)
	if err != nil {
		return nil, err
	}

	if err := uc.store.Save(ctx, msg); err != nil {
		slog.Error("chat message persist failed", slog.String("from", senderRoom.String()), slog.String("to", receiverRoom.String()), slog.Any("error", err))
		return nil, fmt.Errorf("%w: %v", ErrChatUnavailable, err)
	}

	now := uc.now()
	delivered := uc.rooms.Broadcast(ctx, receiverRoom, domain.NewEnvelope(domain.EventNewMessage, receiverRoom, msg, now))
	sentEnv := domain.NewEnvelope(domain.EventMessageSent, senderRoom, msg, now)
	uc.rooms.Broadcast(ctx, senderRoom, sentEnv)
	if originConnID != "" && !contains(uc.rooms.MembersOf(senderRoom), originConnID) {
		if err := uc.rooms.SendTo(ctx, originConnID, sentEnv); err != nil {
			slog.Warn("messageSent not delivered to origin", slog.String("connId", originConnID), slog.Any("error", err))
		}
	}

	slog.Info("chat message relayed", slog.Uint64("messageId", msg.ID), slog.String("to", receiverRoom.String()), slog.Int("recipients", delivered))
	return msg, nil
}

// Typing is ephemeral: it goes to the receiver room and is never stored.
func (uc *ChatUseCase) Typing(ctx context.Context, data domain.TypingData) (int, error) {
	key, err := domain.PartyRoom(data.ReceiverType, data.ReceiverID)
	if err != nil {
		return 0, err
	}
	return uc.rooms.Broadcast(ctx, key, domain.NewEnvelope(domain.EventTyping, key, data, uc.now())), nil
}

// Message loads a stored message; receipts use it to check who the receiver is.
func (uc *ChatUseCase) Message(ctx context.Context, messageID uint64) (*chat.Message, error) {
	return uc.store.Get(ctx, messageID)
}

// MarkDelivered stamps the delivery receipt. The sender hears about it only the first time.
func (uc *ChatUseCase) MarkDelivered(ctx context.Context, messageID uint64) (*chat.Message, error) {
	return uc.receipt(ctx, messageID, domain.EventMessageDelivered, uc.store.MarkDelivered)
}

// MarkRead stamps the read receipt (and the delivery one if it was still missing).
func (uc *ChatUseCase) MarkRead(ctx context.Context, messageID uint64) (*chat.Message, error) {
	return uc.receipt(ctx, messageID, domain.EventMessageRead, uc.store.MarkRead)
}

type receiptFunc func(ctx context.Context, id uint64, at time.Time) (*chat.Message, bool, error)

func (uc *ChatUseCase) receipt(ctx context.Context, messageID uint64, event string, mark receiptFunc) (*chat.Message, error) {
	at := uc.now().UTC()
	msg, changed, err := mark(ctx, messageID, at)
	if err != nil {
		return nil, err
	}
	if !changed {
		slog.Debug("chat receipt already recorded", slog.Uint64("messageId", messageID), slog.String("event", event))
		return msg, nil
	}
	key, err := domain.PartyRoom(string(msg.Sender.Type), msg.Sender.ID)
	if err != nil {
		return msg, nil
	}
	uc.rooms.Broadcast(ctx, key, domain.NewEnvelope(event, key, domain.ReceiptData{MessageID: msg.ID, At: at}, at))
	return msg, nil
}

// History returns the conversation between a and b, oldest first.
func (uc *ChatUseCase) History(ctx context.Context, a, b chat.Party, limit int) ([]chat.Message, error) {
	if !a.Valid() || !b.Valid() {
		return nil, chat.ErrInvalidMessage
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return uc.store.History(ctx, a, b, limit)
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
