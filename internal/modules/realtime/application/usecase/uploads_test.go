package usecase

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodDeliveryWs/internal/modules/realtime/domain"
	"foodDeliveryWs/internal/modules/realtime/infrastructure"
)

func TestUploadUseCase_SaveReportsProgress(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	hub := infrastructure.NewHub()
	watcher := connect(hub, "staff")
	require.NoError(t, hub.Join(mustKey(t, "menuItem:21"), watcher.ID()))
	uc := NewUploadUseCase(hub, dir, "/uploads/", 1<<20)

	content := bytes.Repeat([]byte("x"), 100<<10)
	result, err := uc.Save(context.Background(), "21", "Burger.PNG", bytes.NewReader(content), int64(len(content)))
	require.NoError(t, err)
	assert.Equal(t, "21", result.ItemID)
	assert.Equal(t, int64(len(content)), result.Bytes)
	assert.Equal(t, ".png", filepath.Ext(result.FileName))
	assert.Equal(t, "/uploads/"+result.FileName, result.URL)

	stored, err := os.ReadFile(filepath.Join(dir, result.FileName))
	require.NoError(t, err)
	assert.Equal(t, content, stored)

	progress := watcher.eventsNamed(domain.EventUploadProgress)
	require.NotEmpty(t, progress)
	last := decode[domain.UploadProgressData](t, progress[len(progress)-1].Data)
	assert.Equal(t, 100, last.Percent)
	for i := 1; i < len(progress); i++ {
		prev := decode[domain.UploadProgressData](t, progress[i-1].Data)
		cur := decode[domain.UploadProgressData](t, progress[i].Data)
		assert.Greater(t, cur.Percent, prev.Percent)
	}

	complete := watcher.eventsNamed(domain.EventUploadComplete)
	require.Len(t, complete, 1)
	assert.Equal(t, result.URL, decode[domain.UploadCompleteData](t, complete[0].Data).URL)
}

func TestUploadUseCase_Rejects(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	uc := NewUploadUseCase(infrastructure.NewHub(), dir, "/uploads", 10)

	_, err := uc.Save(context.Background(), "1", "menu.exe", bytes.NewReader([]byte("x")), 1)
	assert.ErrorIs(t, err, ErrUploadNotAllowed)

	_, err = uc.Save(context.Background(), "1", "big.jpg", bytes.NewReader(make([]byte, 11)), 11)
	assert.ErrorIs(t, err, ErrUploadTooLarge)

	// announced size lies: the limit is enforced on the stream too
	_, err = uc.Save(context.Background(), "1", "big.jpg", bytes.NewReader(make([]byte, 64)), -1)
	assert.ErrorIs(t, err, ErrUploadTooLarge)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected uploads leave no files behind")

	_, err = uc.Save(context.Background(), "", "a.png", bytes.NewReader(nil), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidRoomKey)
}
