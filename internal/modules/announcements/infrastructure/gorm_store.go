package infrastructure

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"foodDeliveryWs/internal/modules/announcements/domain"
	"foodDeliveryWs/internal/modules/realtime/application/port"
)

// scanWindow bounds how many recent rows are read before filtering by role.
const scanWindow = 500

type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: time.Now}
}

func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&domain.Announcement{}); err != nil {
		return fmt.Errorf("migrate announcements: %w", err)
	}
	return nil
}

func (s *GormStore) Create(ctx context.Context, a *domain.Announcement) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("save announcement: %w", err)
	}
	return nil
}

// ListForRole returns announcements visible to role, newest first.
// The audience is a json column, so filtering happens here rather than in SQL.
func (s *GormStore) ListForRole(ctx context.Context, role string, limit int) ([]domain.Announcement, error) {
	if limit <= 0 || limit > scanWindow {
		limit = 50
	}
	var rows []domain.Announcement
	err := s.db.WithContext(ctx).
		Order("created_at DESC").Order("id DESC").
		Limit(scanWindow).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list announcements: %w", err)
	}
	out := make([]domain.Announcement, 0, min(limit, len(rows)))
	for i := range rows {
		if !rows[i].VisibleTo(role) {
			continue
		}
		out = append(out, rows[i])
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

var _ port.AnnouncementStore = (*GormStore)(nil)
