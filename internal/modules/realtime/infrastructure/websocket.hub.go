package infrastructure

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"foodDeliveryWs/internal/modules/realtime/application/port"
	"foodDeliveryWs/internal/modules/realtime/domain"
	"foodDeliveryWs/internal/platform/metrics"
)

// Hub is the process-local room registry. Each room has its own lock; there is no global lock
// on the join/leave/broadcast path.
type Hub struct {
	rooms   sync.Map // room key string -> *room
	members sync.Map // connection id -> *member
}

type room struct {
	mu      sync.Mutex
	members map[string]struct{}
	// dead is set once the room was pruned from the map; joiners must retry with a fresh room.
	dead bool
}

type member struct {
	conn port.Connection

	mu      sync.Mutex
	rooms   map[string]domain.RoomKey
	removed bool
}

func NewHub() *Hub {
	return &Hub{}
}

// Register makes conn addressable by id. Registering an id twice replaces the previous connection
// and drops its memberships.
func (h *Hub) Register(conn port.Connection) {
	m := &member{conn: conn, rooms: make(map[string]domain.RoomKey)}
	if previous, loaded := h.members.Swap(conn.ID(), m); loaded {
		h.dropMember(previous.(*member))
	} else {
		metrics.ActiveConnections.Inc()
	}
	slog.Debug("ws connection registered", slog.String("connId", conn.ID()))
}

// Join adds connID to the room, creating the room if needed. Joining twice is a no-op.
func (h *Hub) Join(key domain.RoomKey, connID string) error {
	value, ok := h.members.Load(connID)
	if !ok {
		return port.ErrUnknownConnection
	}
	m := value.(*member)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removed {
		return port.ErrUnknownConnection
	}

	roomID := key.String()
	for {
		actual, _ := h.rooms.LoadOrStore(roomID, &room{members: make(map[string]struct{})})
		r := actual.(*room)
		r.mu.Lock()
		if r.dead {
			r.mu.Unlock()
			continue
		}
		r.members[connID] = struct{}{}
		r.mu.Unlock()
		break
	}
	m.rooms[roomID] = key
	slog.Debug("ws room joined", slog.String("room", roomID), slog.String("connId", connID))
	return nil
}

// Leave removes connID from the room and prunes the room when it becomes empty.
func (h *Hub) Leave(key domain.RoomKey, connID string) {
	roomID := key.String()
	if value, ok := h.members.Load(connID); ok {
		m := value.(*member)
		m.mu.Lock()
		delete(m.rooms, roomID)
		m.mu.Unlock()
	}
	h.leaveRoom(roomID, connID)
}

func (h *Hub) leaveRoom(roomID, connID string) {
	value, ok := h.rooms.Load(roomID)
	if !ok {
		return
	}
	r := value.(*room)
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, connID)
	if len(r.members) == 0 && !r.dead {
		r.dead = true
		h.rooms.CompareAndDelete(roomID, r)
	}
}

// RemoveConnection drops connID from every room it joined. Safe to call more than once.
func (h *Hub) RemoveConnection(connID string) {
	value, ok := h.members.LoadAndDelete(connID)
	if !ok {
		return
	}
	metrics.ActiveConnections.Dec()
	h.dropMember(value.(*member))
	slog.Debug("ws connection removed", slog.String("connId", connID))
}

func (h *Hub) dropMember(m *member) {
	m.mu.Lock()
	m.removed = true
	roomIDs := make([]string, 0, len(m.rooms))
	for roomID := range m.rooms {
		roomIDs = append(roomIDs, roomID)
	}
	m.rooms = make(map[string]domain.RoomKey)
	m.mu.Unlock()

	connID := m.conn.ID()
	for _, roomID := range roomIDs {
		h.leaveRoom(roomID, connID)
	}
}

// MembersOf returns the current members of a room, sorted. Unknown rooms have no members.
func (h *Hub) MembersOf(key domain.RoomKey) []string {
	value, ok := h.rooms.Load(key.String())
	if !ok {
		return nil
	}
	r := value.(*room)
	r.mu.Lock()
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// RoomsOf returns the rooms connID is currently in.
func (h *Hub) RoomsOf(connID string) []domain.RoomKey {
	value, ok := h.members.Load(connID)
	if !ok {
		return nil
	}
	m := value.(*member)
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]domain.RoomKey, 0, len(m.rooms))
	for _, key := range m.rooms {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

func (h *Hub) Broadcast(ctx context.Context, key domain.RoomKey, env *domain.Envelope) int {
	frame, err := env.Encode()
	if err != nil {
		slog.Error("broadcast marshal error", slog.String("event", env.Event), slog.Any("error", err))
		return 0
	}
	delivered := 0
	for _, id := range h.MembersOf(key) {
		if err := h.sendFrame(id, frame); err != nil {
			slog.Warn("ws broadcast send failed", slog.String("room", key.String()), slog.String("connId", id), slog.String("event", env.Event), slog.Any("error", err))
			continue
		}
		delivered++
	}
	return delivered
}

func (h *Hub) SendTo(_ context.Context, connID string, env *domain.Envelope) error {
	frame, err := env.Encode()
	if err != nil {
		return err
	}
	return h.sendFrame(connID, frame)
}

// BroadcastAll sends env to every registered connection.
func (h *Hub) BroadcastAll(_ context.Context, env *domain.Envelope) int {
	frame, err := env.Encode()
	if err != nil {
		slog.Error("broadcast marshal error", slog.String("event", env.Event), slog.Any("error", err))
		return 0
	}
	delivered := 0
	h.members.Range(func(_, value any) bool {
		if err := value.(*member).conn.Send(frame); err == nil {
			delivered++
		} else {
			metrics.SendFailures.Inc()
		}
		return true
	})
	return delivered
}

func (h *Hub) sendFrame(connID string, frame []byte) error {
	value, ok := h.members.Load(connID)
	if !ok {
		metrics.SendFailures.Inc()
		return port.ErrUnknownConnection
	}
	if err := value.(*member).conn.Send(frame); err != nil {
		metrics.SendFailures.Inc()
		return err
	}
	return nil
}

func (h *Hub) RoomCount() int {
	n := 0
	h.rooms.Range(func(_, _ any) bool { n++; return true })
	return n
}

func (h *Hub) ConnectionCount() int {
	n := 0
	h.members.Range(func(_, _ any) bool { n++; return true })
	return n
}

var _ port.RoomRegistry = (*Hub)(nil)
