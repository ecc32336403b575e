package port

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	announcements "foodDeliveryWs/internal/modules/announcements/domain"
	chat "foodDeliveryWs/internal/modules/chat/domain"
	notifications "foodDeliveryWs/internal/modules/notifications/domain"
	"foodDeliveryWs/internal/modules/realtime/domain"
)

var (
	ErrUnknownConnection = errors.New("unknown connection")
	ErrConnectionClosed  = errors.New("connection closed")
	ErrSendBufferFull    = errors.New("send buffer full")

	// ErrMalformedEvent marks broker records no retry can fix.
	ErrMalformedEvent = errors.New("malformed broker event")
)

// Connection is a live socket as seen by the room registry.
type Connection interface {
	ID() string
	// Send queues an encoded frame. It must not block.
	Send(frame []byte) error
}

// RoomRegistry tracks which connections are in which rooms and fans frames out to them.
type RoomRegistry interface {
	Register(conn Connection)
	Join(key domain.RoomKey, connID string) error
	Leave(key domain.RoomKey, connID string)
	RemoveConnection(connID string)
	MembersOf(key domain.RoomKey) []string
	// Broadcast returns how many members accepted the frame.
	Broadcast(ctx context.Context, key domain.RoomKey, env *domain.Envelope) int
	SendTo(ctx context.Context, connID string, env *domain.Envelope) error
	BroadcastAll(ctx context.Context, env *domain.Envelope) int
}

// NotificationStore is the durable backlog of restaurant notifications.
type NotificationStore interface {
	Create(ctx context.Context, roomKey, correlationID string, payload json.RawMessage) (*notifications.Notification, error)
	MarkSent(ctx context.Context, id int64) error
	MarkAcknowledged(ctx context.Context, id int64) (*notifications.Notification, error)
	PendingFor(ctx context.Context, roomKey string) ([]notifications.Notification, error)
	// UnacknowledgedFor lists pending and sent rows, oldest first.
	UnacknowledgedFor(ctx context.Context, roomKey string) ([]notifications.Notification, error)
	Get(ctx context.Context, id int64) (*notifications.Notification, error)
}

type ChatStore interface {
	Save(ctx context.Context, msg *chat.Message) error
	Get(ctx context.Context, id uint64) (*chat.Message, error)
	MarkDelivered(ctx context.Context, id uint64, at time.Time) (*chat.Message, bool, error)
	MarkRead(ctx context.Context, id uint64, at time.Time) (*chat.Message, bool, error)
	History(ctx context.Context, a, b chat.Party, limit int) ([]chat.Message, error)
}

type AnnouncementStore interface {
	Create(ctx context.Context, a *announcements.Announcement) error
	ListForRole(ctx context.Context, role string, limit int) ([]announcements.Announcement, error)
}

// TopicHandler handles the messages of one broker topic.
type TopicHandler interface {
	Topic() string
	Handle(ctx context.Context, msg *BrokerMessage) error
}

// BrokerMessage is a consumed broker record.
type BrokerMessage struct {
	Topic     string
	Key       string
	Value     json.RawMessage
	Partition int
	Offset    int64
	Time      time.Time
}
