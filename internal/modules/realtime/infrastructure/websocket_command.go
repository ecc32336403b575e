package infrastructure

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"foodDeliveryWs/internal/modules/realtime/domain"
)

// Command is an inbound socket frame: {"event": "...", "data": {...}}.
type Command struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func (c Command) eventKey() string {
	return normalizeEvent(c.Event)
}

type CommandHandler func(ctx context.Context, client *Client, cmd Command)

// CommandProcessor routes inbound events to their handlers. Handlers run on the client's read
// goroutine, one at a time.
type CommandProcessor struct {
	handlers map[string]CommandHandler
	fallback CommandHandler
	timeout  time.Duration
	now      func() time.Time
}

func NewCommandProcessor(fallback CommandHandler) *CommandProcessor {
	processor := &CommandProcessor{
		handlers: make(map[string]CommandHandler),
		fallback: fallback,
		timeout:  10 * time.Second,
		now:      time.Now,
	}
	processor.Register(domain.EventPing, processor.handlePing)
	return processor
}

func (p *CommandProcessor) Register(event string, handler CommandHandler) {
	if handler == nil {
		return
	}
	key := normalizeEvent(event)
	if key == "" {
		return
	}
	p.handlers[key] = handler
}

func (p *CommandProcessor) Process(ctx context.Context, client *Client, cmd Command) {
	if client == nil {
		return
	}

	event := cmd.eventKey()
	if event == "" {
		p.Reject(client, "", "missing event")
		return
	}

	handler, ok := p.handlers[event]
	if !ok {
		handler = p.fallback
	}
	if handler == nil {
		slog.Debug("ws event ignored", slog.String("connId", client.ID()), slog.String("event", cmd.Event))
		p.Reject(client, cmd.Event, "unknown event")
		return
	}

	cmdCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("ws handler panic", slog.String("connId", client.ID()), slog.String("event", cmd.Event), slog.Any("error", r))
			p.Reject(client, cmd.Event, "internal error")
		}
	}()
	handler(cmdCtx, client, cmd)
}

// Reject answers an inbound event with an error event.
func (p *CommandProcessor) Reject(client *Client, event, reason string) {
	if err := client.Emit(domain.NewErrorEnvelope(domain.EventError, event, reason, p.now())); err != nil {
		slog.Debug("ws error reply dropped", slog.String("connId", client.ID()), slog.Any("error", err))
	}
}

func (p *CommandProcessor) handlePing(_ context.Context, client *Client, _ Command) {
	_ = client.Emit(domain.NewEnvelope(domain.EventPong, domain.RoomKey{}, nil, p.now()))
}

func normalizeEvent(event string) string {
	return strings.ToLower(strings.TrimSpace(event))
}
