package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	announcements "foodDeliveryWs/internal/modules/announcements/domain"
	"foodDeliveryWs/internal/modules/realtime/application/port"
	"foodDeliveryWs/internal/modules/realtime/domain"
)

const announcementBatchSize = 50

type AnnouncementUseCase struct {
	store port.AnnouncementStore
	rooms port.RoomRegistry
	now   func() time.Time
}

func NewAnnouncementUseCase(store port.AnnouncementStore, rooms port.RoomRegistry) *AnnouncementUseCase {
	return &AnnouncementUseCase{store: store, rooms: rooms, now: time.Now}
}

// Publish persists the announcement and pushes it to every connection for "all", otherwise to
// each role:<role> room of the audience. It returns the number of sockets reached.
func (uc *AnnouncementUseCase) Publish(ctx context.Context, title, message string, audience []string) (*announcements.Announcement, int, error) {
	a, err := announcements.New(title, message, audience)
	if err != nil {
		return nil, 0, err
	}
	if err := uc.store.Create(ctx, a); err != nil {
		return nil, 0, fmt.Errorf("create announcement: %w", err)
	}

	now := uc.now()
	reached := 0
	if len(a.Audience) == 1 && a.Audience[0] == announcements.AudienceAll {
		reached = uc.rooms.BroadcastAll(ctx, domain.NewEnvelope(domain.EventAnnouncement, domain.RoomKey{}, a, now))
	} else {
		for _, role := range a.Audience {
			key, err := domain.RoleRoom(role)
			if err != nil {
				continue
			}
			reached += uc.rooms.Broadcast(ctx, key, domain.NewEnvelope(domain.EventAnnouncement, key, a, now))
		}
	}

	slog.Info("announcement published", slog.Uint64("announcementId", a.ID), slog.Any("audience", []string(a.Audience)), slog.Int("recipients", reached))
	return a, reached, nil
}

// ForRole lists the announcements visible to role, newest first.
func (uc *AnnouncementUseCase) ForRole(ctx context.Context, role string) ([]announcements.Announcement, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if role != announcements.AudienceAll && !domain.IsRole(role) {
		return nil, fmt.Errorf("%w: unknown role %q", announcements.ErrInvalidAnnouncement, role)
	}
	return uc.store.ListForRole(ctx, role, announcementBatchSize)
}

// SendBatch answers fetchAnnouncements on a single connection.
func (uc *AnnouncementUseCase) SendBatch(ctx context.Context, connID, role string) (int, error) {
	list, err := uc.ForRole(ctx, role)
	if err != nil {
		return 0, err
	}
	if list == nil {
		list = []announcements.Announcement{}
	}
	if err := uc.rooms.SendTo(ctx, connID, domain.NewEnvelope(domain.EventAnnouncementBatch, domain.RoomKey{}, list, uc.now())); err != nil {
		return 0, err
	}
	return len(list), nil
}
