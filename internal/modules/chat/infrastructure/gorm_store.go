package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"foodDeliveryWs/internal/modules/chat/domain"
	"foodDeliveryWs/internal/modules/realtime/application/port"
)

const defaultHistoryLimit = 100

type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: time.Now}
}

func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&domain.Message{}); err != nil {
		return fmt.Errorf("migrate chat messages: %w", err)
	}
	return nil
}

// Save persists msg and fills its id and creation time.
func (s *GormStore) Save(ctx context.Context, msg *domain.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("save chat message: %w", err)
	}
	return nil
}

// MarkDelivered stamps delivered_at once. changed is false when it was already set.
func (s *GormStore) MarkDelivered(ctx context.Context, id uint64, at time.Time) (*domain.Message, bool, error) {
	var changed bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Message{}).
			Where("id = ? AND delivered_at IS NULL", id).
			Update("delivered_at", at.UTC())
		if res.Error != nil {
			return res.Error
		}
		changed = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("mark chat message %d delivered: %w", id, err)
	}
	msg, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return msg, changed, nil
}

// MarkRead stamps read_at once, and delivered_at too when it is still empty.
func (s *GormStore) MarkRead(ctx context.Context, id uint64, at time.Time) (*domain.Message, bool, error) {
	var changed bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Message{}).
			Where("id = ? AND read_at IS NULL", id).
			Update("read_at", at.UTC())
		if res.Error != nil {
			return res.Error
		}
		changed = res.RowsAffected > 0
		if !changed {
			return nil
		}
		return tx.Model(&domain.Message{}).
			Where("id = ? AND delivered_at IS NULL", id).
			Update("delivered_at", at.UTC()).Error
	})
	if err != nil {
		return nil, false, fmt.Errorf("mark chat message %d read: %w", id, err)
	}
	msg, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return msg, changed, nil
}

// History returns the latest messages exchanged between a and b, oldest first.
func (s *GormStore) History(ctx context.Context, a, b domain.Party, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	var msgs []domain.Message
	err := s.db.WithContext(ctx).
		Where("(sender_id = ? AND sender_type = ? AND receiver_id = ? AND receiver_type = ?) OR (sender_id = ? AND sender_type = ? AND receiver_id = ? AND receiver_type = ?)",
			a.ID, a.Type, b.ID, b.Type,
			b.ID, b.Type, a.ID, a.Type,
		).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("chat history: %w", err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Get loads one message; a missing id is ErrMessageNotFound.
func (s *GormStore) Get(ctx context.Context, id uint64) (*domain.Message, error) {
	var msg domain.Message
	if err := s.db.WithContext(ctx).First(&msg, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", domain.ErrMessageNotFound, id)
		}
		return nil, fmt.Errorf("get chat message %d: %w", id, err)
	}
	return &msg, nil
}

var _ port.ChatStore = (*GormStore)(nil)
