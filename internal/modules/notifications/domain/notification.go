package domain

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound            = errors.New("notification not found")
	ErrTransitionConflict  = errors.New("notification state transition conflict")
	ErrInvalidNotification = errors.New("invalid notification")
)

// State is the delivery state of a persisted notification.
type State string

const (
	StatePending      State = "pending"
	StateSent         State = "sent"
	StateAcknowledged State = "acknowledged"
)

func (s State) Valid() bool {
	switch s {
	case StatePending, StateSent, StateAcknowledged:
		return true
	}
	return false
}

// CanTransition reports whether s may move to next. States only move forward:
// pending -> sent -> acknowledged, or pending -> acknowledged directly.
func (s State) CanTransition(next State) bool {
	switch s {
	case StatePending:
		return next == StateSent || next == StateAcknowledged
	case StateSent:
		return next == StateAcknowledged
	default:
		return false
	}
}

// SourcesFor lists the states from which next can be reached.
func SourcesFor(next State) []State {
	sources := make([]State, 0, 2)
	for _, s := range []State{StatePending, StateSent, StateAcknowledged} {
		if s.CanTransition(next) {
			sources = append(sources, s)
		}
	}
	return sources
}

// Notification is a restaurant-facing order notification kept until acknowledged.
type Notification struct {
	ID             int64           `json:"id"`
	RoomKey        string          `json:"roomKey"`
	CorrelationID  string          `json:"orderId"`
	Payload        json.RawMessage `json:"payload"`
	State          State           `json:"state"`
	DeliveredAt    *time.Time      `json:"deliveredAt,omitempty"`
	AcknowledgedAt *time.Time      `json:"acknowledgedAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// IsAcknowledged reports whether the notification reached its terminal state.
func (n *Notification) IsAcknowledged() bool {
	return n != nil && n.State == StateAcknowledged
}
