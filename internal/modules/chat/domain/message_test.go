package domain

import (
	"errors"
	"testing"
)

func TestParsePartyType(t *testing.T) {
	t.Parallel()

	if got, ok := ParsePartyType(" Agent "); !ok || got != PartyAgent {
		t.Fatalf("expected agent, got %q %v", got, ok)
	}
	if _, ok := ParsePartyType("driver"); ok {
		t.Fatal("drivers do not chat")
	}
}

func TestMessage_Validate(t *testing.T) {
	t.Parallel()

	msg := &Message{
		Sender:   Party{ID: "13", Type: PartyCustomer},
		Receiver: Party{ID: "4", Type: PartyStaff},
		Message:  "hi",
	}
	if err := msg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msg.Message = "   "
	if err := msg.Validate(); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage for blank text, got %v", err)
	}
	msg.Message = "hi"
	msg.Receiver.Type = "driver"
	if err := msg.Validate(); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage for bad receiver, got %v", err)
	}
}
