package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"foodDeliveryWs/internal/config"
	announcementsinfra "foodDeliveryWs/internal/modules/announcements/infrastructure"
	chatinfra "foodDeliveryWs/internal/modules/chat/infrastructure"
	notifications "foodDeliveryWs/internal/modules/notifications/domain"
	notificationsinfra "foodDeliveryWs/internal/modules/notifications/infrastructure"
	"foodDeliveryWs/internal/modules/realtime/application/port"
	"foodDeliveryWs/internal/modules/realtime/domain"
	"foodDeliveryWs/internal/modules/realtime/infrastructure"
	"foodDeliveryWs/internal/platform/database"
)

var errStoreDown = errors.New("store down")

type fakeConn struct {
	id     string
	mu     sync.Mutex
	frames []received
	fail   bool
}

type received struct {
	Event string          `json:"event"`
	Room  string          `json:"room"`
	Data  json.RawMessage `json:"data"`
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return port.ErrSendBufferFull
	}
	var r received
	if err := json.Unmarshal(frame, &r); err != nil {
		return err
	}
	f.frames = append(f.frames, r)
	return nil
}

func (f *fakeConn) setFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

func (f *fakeConn) received() []received {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]received(nil), f.frames...)
}

func (f *fakeConn) eventsNamed(event string) []received {
	var out []received
	for _, r := range f.received() {
		if r.Event == event {
			out = append(out, r)
		}
	}
	return out
}

func connect(hub *infrastructure.Hub, id string) *fakeConn {
	c := &fakeConn{id: id}
	hub.Register(c)
	return c
}

func newNotificationStore(t *testing.T) *notificationsinfra.SQLStore {
	t.Helper()
	db, err := database.OpenSQL(context.Background(), config.DatabaseConfig{
		Driver: database.DriverSQLite,
		URL:    filepath.Join(t.TempDir(), "notifications.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := notificationsinfra.NewSQLStore(db)
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

func newChatStore(t *testing.T) *chatinfra.GormStore {
	t.Helper()
	db, err := database.OpenGorm(config.DatabaseConfig{
		Driver: database.DriverSQLite,
		URL:    filepath.Join(t.TempDir(), "chat.db"),
	})
	require.NoError(t, err)
	store := chatinfra.NewGormStore(db)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func newAnnouncementStore(t *testing.T) *announcementsinfra.GormStore {
	t.Helper()
	db, err := database.OpenGorm(config.DatabaseConfig{
		Driver: database.DriverSQLite,
		URL:    filepath.Join(t.TempDir(), "announcements.db"),
	})
	require.NoError(t, err)
	store := announcementsinfra.NewGormStore(db)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

// flakyNotificationStore wraps a real store and fails the operations that are switched on.
type flakyNotificationStore struct {
	port.NotificationStore

	mu          sync.Mutex
	failCreate  bool
	failPending bool
}

func (s *flakyNotificationStore) Create(ctx context.Context, roomKey, correlationID string, payload json.RawMessage) (*notifications.Notification, error) {
	s.mu.Lock()
	fail := s.failCreate
	s.mu.Unlock()
	if fail {
		return nil, errStoreDown
	}
	return s.NotificationStore.Create(ctx, roomKey, correlationID, payload)
}

func (s *flakyNotificationStore) PendingFor(ctx context.Context, roomKey string) ([]notifications.Notification, error) {
	s.mu.Lock()
	fail := s.failPending
	s.mu.Unlock()
	if fail {
		return nil, errStoreDown
	}
	return s.NotificationStore.PendingFor(ctx, roomKey)
}

func (s *flakyNotificationStore) UnacknowledgedFor(ctx context.Context, roomKey string) ([]notifications.Notification, error) {
	s.mu.Lock()
	fail := s.failPending
	s.mu.Unlock()
	if fail {
		return nil, errStoreDown
	}
	return s.NotificationStore.UnacknowledgedFor(ctx, roomKey)
}

func mustKey(t *testing.T, raw string) domain.RoomKey {
	t.Helper()
	key, err := domain.ParseRoomKey(raw)
	require.NoError(t, err)
	return key
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}
