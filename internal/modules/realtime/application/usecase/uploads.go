package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"foodDeliveryWs/internal/modules/realtime/application/port"
	"foodDeliveryWs/internal/modules/realtime/domain"
)

var (
	ErrUploadTooLarge   = errors.New("upload exceeds size limit")
	ErrUploadNotAllowed = errors.New("file type not allowed")
)

var allowedImageExt = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".webp": {}, ".gif": {},
}

// progress is reported every progressStep percent, or every progressChunk bytes when the
// size is unknown.
const (
	progressStep  = 5
	progressChunk = 256 << 10
)

type UploadResult struct {
	ItemID   string `json:"itemId"`
	FileName string `json:"fileName"`
	URL      string `json:"url"`
	Bytes    int64  `json:"bytes"`
}

// UploadUseCase stores menu item images on disk as they are, reporting progress to
// menuItem:<id>.
type UploadUseCase struct {
	rooms    port.RoomRegistry
	dir      string
	baseURL  string
	maxBytes int64
	now      func() time.Time
}

func NewUploadUseCase(rooms port.RoomRegistry, dir, baseURL string, maxBytes int64) *UploadUseCase {
	return &UploadUseCase{rooms: rooms, dir: dir, baseURL: strings.TrimRight(baseURL, "/"), maxBytes: maxBytes, now: time.Now}
}

// Save copies src to the upload directory under a fresh uuid name. total is the announced size,
// zero or negative when unknown.
func (uc *UploadUseCase) Save(ctx context.Context, itemID, originalName string, src io.Reader, total int64) (*UploadResult, error) {
	key, err := domain.MenuItemRoom(itemID)
	if err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(originalName))
	if _, ok := allowedImageExt[ext]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUploadNotAllowed, ext)
	}
	if uc.maxBytes > 0 && total > uc.maxBytes {
		return nil, ErrUploadTooLarge
	}
	if err := os.MkdirAll(uc.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	name := uuid.NewString() + ext
	target := filepath.Join(uc.dir, name)
	dst, err := os.Create(target)
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}

	pw := &progressWriter{uc: uc, ctx: ctx, key: key, total: total}
	reader := src
	if uc.maxBytes > 0 {
		reader = io.LimitReader(src, uc.maxBytes+1)
	}
	written, copyErr := io.Copy(io.MultiWriter(dst, pw), reader)
	closeErr := dst.Close()
	switch {
	case copyErr != nil:
		err = fmt.Errorf("write upload: %w", copyErr)
	case closeErr != nil:
		err = fmt.Errorf("close upload: %w", closeErr)
	case uc.maxBytes > 0 && written > uc.maxBytes:
		err = ErrUploadTooLarge
	case ctx.Err() != nil:
		err = ctx.Err()
	}
	if err != nil {
		_ = os.Remove(target)
		return nil, err
	}

	pw.finish()
	result := &UploadResult{ItemID: key.ID, FileName: name, URL: uc.baseURL + "/" + name, Bytes: written}
	uc.rooms.Broadcast(ctx, key, domain.NewEnvelope(domain.EventUploadComplete, key,
		domain.UploadCompleteData{ItemID: key.ID, URL: result.URL, Bytes: written}, uc.now()))
	slog.Info("menu image stored", slog.String("itemId", key.ID), slog.String("file", name), slog.Int64("bytes", written))
	return result, nil
}

type progressWriter struct {
	uc    *UploadUseCase
	ctx   context.Context
	key   domain.RoomKey
	total int64

	written     int64
	lastPercent int
	lastBytes   int64
}

func (p *progressWriter) Write(b []byte) (int, error) {
	if err := p.ctx.Err(); err != nil {
		return 0, err
	}
	p.written += int64(len(b))
	if p.total > 0 {
		percent := p.percent()
		if percent >= p.lastPercent+progressStep {
			p.emit(percent)
		}
	} else if p.written-p.lastBytes >= progressChunk {
		p.emit(0)
	}
	return len(b), nil
}

func (p *progressWriter) percent() int {
	percent := int(p.written * 100 / p.total)
	if percent > 100 {
		percent = 100
	}
	return percent
}

func (p *progressWriter) finish() {
	if p.lastPercent < 100 {
		p.emit(100)
	}
}

func (p *progressWriter) emit(percent int) {
	p.lastPercent = percent
	p.lastBytes = p.written
	data := domain.UploadProgressData{ItemID: p.key.ID, Percent: percent, Bytes: p.written, Total: p.total}
	p.uc.rooms.Broadcast(p.ctx, p.key, domain.NewEnvelope(domain.EventUploadProgress, p.key, data, p.uc.now()))
}
