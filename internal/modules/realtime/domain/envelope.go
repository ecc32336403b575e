package domain

import (
	"encoding/json"
	"time"
)

// Envelope is the outbound frame written to sockets.
type Envelope struct {
	Event     string    `json:"event"`
	Room      string    `json:"room,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEnvelope builds an envelope for event. A zero room key leaves Room empty.
func NewEnvelope(event string, room RoomKey, data any, at time.Time) *Envelope {
	env := &Envelope{Event: event, Data: data, Timestamp: at.UTC()}
	if !room.IsZero() {
		env.Room = room.String()
	}
	return env
}

// Encode marshals the envelope once so fan-out can share the bytes.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// ErrorData is the payload of error and chatError events.
type ErrorData struct {
	Event  string `json:"event,omitempty"`
	Reason string `json:"reason"`
}

// NewErrorEnvelope answers a failed inbound event.
func NewErrorEnvelope(event, inboundEvent, reason string, at time.Time) *Envelope {
	return NewEnvelope(event, RoomKey{}, ErrorData{Event: inboundEvent, Reason: reason}, at)
}
