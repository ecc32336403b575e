package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

var ErrInvalidAnnouncement = errors.New("invalid announcement")

// AudienceAll addresses every connection regardless of role.
const AudienceAll = "all"

var audiences = map[string]struct{}{
	AudienceAll: {},
	"customer":  {},
	"driver":    {},
	"staff":     {},
	"agent":     {},
}

type Announcement struct {
	ID        uint64                      `json:"id" gorm:"primaryKey;autoIncrement"`
	Title     string                      `json:"title" gorm:"size:200;not null"`
	Message   string                      `json:"message" gorm:"type:text;not null"`
	Audience  datatypes.JSONSlice[string] `json:"audience" gorm:"not null"`
	CreatedAt time.Time                   `json:"createdAt" gorm:"index"`
}

func (Announcement) TableName() string { return "ws_announcements" }

// NormalizeAudience lowercases, dedupes and validates roles. "all" absorbs everything else.
func NormalizeAudience(raw []string) ([]string, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty audience", ErrInvalidAnnouncement)
	}
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.ToLower(strings.TrimSpace(r))
		if _, ok := audiences[r]; !ok {
			return nil, fmt.Errorf("%w: unknown audience %q", ErrInvalidAnnouncement, r)
		}
		if r == AudienceAll {
			return []string{AudienceAll}, nil
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out, nil
}

// VisibleTo reports whether role should see the announcement.
func (a *Announcement) VisibleTo(role string) bool {
	role = strings.ToLower(strings.TrimSpace(role))
	for _, r := range a.Audience {
		if r == AudienceAll || r == role || role == AudienceAll || role == "admin" {
			return true
		}
	}
	return false
}

// New validates and builds an announcement ready to persist.
func New(title, message string, audience []string) (*Announcement, error) {
	title = strings.TrimSpace(title)
	message = strings.TrimSpace(message)
	if title == "" || message == "" {
		return nil, fmt.Errorf("%w: title and message are required", ErrInvalidAnnouncement)
	}
	normalized, err := NormalizeAudience(audience)
	if err != nil {
		return nil, err
	}
	return &Announcement{Title: title, Message: message, Audience: datatypes.JSONSlice[string](normalized)}, nil
}
