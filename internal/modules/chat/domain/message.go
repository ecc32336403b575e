package domain

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrMessageNotFound = errors.New("chat message not found")
	ErrInvalidMessage  = errors.New("invalid chat message")
)

// PartyType is the kind of user taking part in a chat.
type PartyType string

const (
	PartyCustomer PartyType = "customer"
	PartyStaff    PartyType = "staff"
	PartyAgent    PartyType = "agent"
)

func ParsePartyType(raw string) (PartyType, bool) {
	switch t := PartyType(strings.ToLower(strings.TrimSpace(raw))); t {
	case PartyCustomer, PartyStaff, PartyAgent:
		return t, true
	}
	return "", false
}

// Party is one side of a conversation.
type Party struct {
	ID   string    `json:"id" gorm:"size:64;not null"`
	Type PartyType `json:"type" gorm:"size:16;not null"`
}

func (p Party) Valid() bool {
	_, ok := ParsePartyType(string(p.Type))
	return ok && strings.TrimSpace(p.ID) != ""
}

// Message is a persisted chat line between two parties.
type Message struct {
	ID          uint64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Sender      Party      `json:"sender" gorm:"embedded;embeddedPrefix:sender_"`
	Receiver    Party      `json:"receiver" gorm:"embedded;embeddedPrefix:receiver_"`
	Message     string     `json:"message" gorm:"type:text;not null"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	ReadAt      *time.Time `json:"readAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt" gorm:"index"`
}

func (Message) TableName() string { return "ws_chat_messages" }

// Validate checks the fields a sender controls.
func (m *Message) Validate() error {
	if m == nil || !m.Sender.Valid() || !m.Receiver.Valid() {
		return ErrInvalidMessage
	}
	if strings.TrimSpace(m.Message) == "" {
		return ErrInvalidMessage
	}
	return nil
}
