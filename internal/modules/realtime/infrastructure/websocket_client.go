package infrastructure

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"foodDeliveryWs/internal/modules/realtime/application/port"
	"foodDeliveryWs/internal/modules/realtime/domain"
)

// ClientOptions tunes the socket pumps.
type ClientOptions struct {
	UserID     string
	Role       string
	SendBuffer int
	ReadLimit  int64
	PongWait   time.Duration
	PingPeriod time.Duration
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 32
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 1 << 16
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	return o
}

type Client struct {
	id       string
	userID   string
	role     string
	hub      *Hub
	conn     *websocket.Conn
	commands *CommandProcessor
	opts     ClientOptions

	// mu guards send against a concurrent close.
	mu         sync.RWMutex
	send       chan []byte
	closed     bool
	closeOnce  sync.Once
	closeHooks []func(*Client)
	hookMu     sync.Mutex
}

// NewClient crea un cliente WebSocket con id propio y buffer configurable.
func NewClient(hub *Hub, conn *websocket.Conn, commands *CommandProcessor, opts ClientOptions) *Client {
	opts = opts.withDefaults()
	return &Client{
		id:       uuid.NewString(),
		userID:   opts.UserID,
		role:     opts.Role,
		hub:      hub,
		conn:     conn,
		commands: commands,
		opts:     opts,
		send:     make(chan []byte, opts.SendBuffer),
	}
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() string { return c.userID }
func (c *Client) Role() string   { return c.role }

// Send queues a frame without blocking. A full buffer means the peer is not keeping up:
// the client is detached and the send reported as failed.
func (c *Client) Send(frame []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return port.ErrConnectionClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		slog.Warn("websocket send buffer full", slog.String("connId", c.id), slog.String("userId", c.userID))
		go c.Close()
		return port.ErrSendBufferFull
	}
}

// Close tears the client down once: stops the writer, closes the socket, removes the client from
// every room and runs the close hooks.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()

		if c.conn != nil {
			_ = c.conn.Close()
		}
		if c.hub != nil {
			c.hub.RemoveConnection(c.id)
		}
		c.invokeCloseHooks()
	})
}

// AddCloseHook registers a callback that will be executed once when the client closes.
func (c *Client) AddCloseHook(fn func(*Client)) {
	if fn == nil {
		return
	}
	c.hookMu.Lock()
	c.closeHooks = append(c.closeHooks, fn)
	c.hookMu.Unlock()
}

func (c *Client) invokeCloseHooks() {
	c.hookMu.Lock()
	hooks := append([]func(*Client){}, c.closeHooks...)
	c.closeHooks = nil
	c.hookMu.Unlock()

	for _, hook := range hooks {
		func(h func(*Client)) {
			defer func() {
				if r := recover(); r != nil {
					slog.Warn("ws close hook panic", slog.Any("error", r))
				}
			}()
			h(c)
		}(hook)
	}
}

func (c *Client) WritePump() {
	ping := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ping.Stop()
		c.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				slog.Warn("websocket write error", slog.String("connId", c.id), slog.Any("error", err))
				return
			}
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				slog.Warn("websocket ping error", slog.String("connId", c.id), slog.Any("error", err))
				return
			}
		}
	}
}

// ReadPump reads inbound events one at a time, so events of a connection are handled in order.
// It returns when the socket fails or ctx ends, and always closes the client.
func (c *Client) ReadPump(ctx context.Context) {
	c.conn.SetReadLimit(c.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})
	defer c.Close()

	// ReadMessage does not watch ctx; closing the socket unblocks it.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("websocket read error", slog.String("connId", c.id), slog.String("userId", c.userID), slog.Any("error", err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		if ctx.Err() != nil {
			return
		}
		if c.commands == nil {
			continue
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.commands.Reject(c, "", "malformed frame")
			continue
		}
		c.commands.Process(ctx, c, cmd)
	}
}

// Emit encodes env and queues it for this client only.
func (c *Client) Emit(env *domain.Envelope) error {
	frame, err := env.Encode()
	if err != nil {
		return err
	}
	return c.Send(frame)
}

var _ port.Connection = (*Client)(nil)
