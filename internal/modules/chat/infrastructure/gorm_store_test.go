package infrastructure

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodDeliveryWs/internal/config"
	"foodDeliveryWs/internal/modules/chat/domain"
	"foodDeliveryWs/internal/platform/database"
)

func newSQLiteStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := database.OpenGorm(config.DatabaseConfig{
		Driver: database.DriverSQLite,
		URL:    filepath.Join(t.TempDir(), "chat.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	store := NewGormStore(db)
	clock := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

var (
	customer = domain.Party{ID: "13", Type: domain.PartyCustomer}
	staff    = domain.Party{ID: "4", Type: domain.PartyStaff}
	agent    = domain.Party{ID: "16", Type: domain.PartyAgent}
)

func TestGormStore_SaveAndHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newSQLiteStore(t)

	for _, m := range []*domain.Message{
		{Sender: customer, Receiver: staff, Message: "is my order ready?"},
		{Sender: staff, Receiver: customer, Message: "five minutes"},
		{Sender: customer, Receiver: agent, Message: "other thread"},
		{Sender: customer, Receiver: staff, Message: "thanks"},
	} {
		require.NoError(t, store.Save(ctx, m))
		assert.NotZero(t, m.ID)
	}

	history, err := store.History(ctx, staff, customer, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "is my order ready?", history[0].Message)
	assert.Equal(t, "thanks", history[2].Message)
	assert.Equal(t, staff, history[1].Sender)

	latest, err := store.History(ctx, customer, staff, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "five minutes", latest[0].Message)
	assert.Equal(t, "thanks", latest[1].Message)

	err = store.Save(ctx, &domain.Message{Sender: customer, Receiver: staff, Message: " "})
	assert.ErrorIs(t, err, domain.ErrInvalidMessage)
}

func TestGormStore_ReceiptsAreIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newSQLiteStore(t)
	msg := &domain.Message{Sender: customer, Receiver: staff, Message: "hello"}
	require.NoError(t, store.Save(ctx, msg))

	readAt := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	updated, changed, err := store.MarkRead(ctx, msg.ID, readAt)
	require.NoError(t, err)
	assert.True(t, changed)
	require.NotNil(t, updated.ReadAt)
	require.NotNil(t, updated.DeliveredAt)
	assert.True(t, updated.DeliveredAt.Equal(readAt))

	_, changed, err = store.MarkRead(ctx, msg.ID, readAt.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)

	updated, changed, err = store.MarkDelivered(ctx, msg.ID, readAt.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.True(t, updated.DeliveredAt.Equal(readAt))

	_, _, err = store.MarkDelivered(ctx, 999, readAt)
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
}

func TestGormStore_Get(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newSQLiteStore(t)
	msg := &domain.Message{Sender: customer, Receiver: staff, Message: "table for two"}
	require.NoError(t, store.Save(ctx, msg))

	got, err := store.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, staff, got.Receiver)
	assert.Equal(t, "table for two", got.Message)

	_, err = store.Get(ctx, msg.ID+100)
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
}
