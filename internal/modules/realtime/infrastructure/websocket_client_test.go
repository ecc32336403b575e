package infrastructure

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"foodDeliveryWs/internal/modules/realtime/domain"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func startClientServer(t *testing.T, hub *Hub, processor *CommandProcessor) (*websocket.Conn, <-chan *Client) {
	t.Helper()
	return startClientServerWithContext(t, context.Background(), hub, processor)
}

func startClientServerWithContext(t *testing.T, ctx context.Context, hub *Hub, processor *CommandProcessor) (*websocket.Conn, <-chan *Client) {
	t.Helper()
	clients := make(chan *Client, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		client := NewClient(hub, conn, processor, ClientOptions{UserID: "u1", SendBuffer: 8})
		hub.Register(client)
		clients <- client
		go client.WritePump()
		go client.ReadPump(ctx)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn, clients
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

func TestClient_PingAndErrors(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	conn, _ := startClientServer(t, hub, NewCommandProcessor(nil))

	if err := conn.WriteJSON(map[string]string{"event": "ping"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if f := readFrame(t, conn); f.Event != domain.EventPong {
		t.Fatalf("expected pong, got %s", f.Event)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	f := readFrame(t, conn)
	if f.Event != domain.EventError || !strings.Contains(string(f.Data), "malformed frame") {
		t.Fatalf("expected malformed frame error, got %s %s", f.Event, f.Data)
	}

	if err := conn.WriteJSON(map[string]string{"event": "teleport"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	f = readFrame(t, conn)
	if f.Event != domain.EventError || !strings.Contains(string(f.Data), "unknown event") {
		t.Fatalf("expected unknown event error, got %s %s", f.Event, f.Data)
	}
}

func TestClient_HandlersRunAndDisconnectCleansRooms(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	processor := NewCommandProcessor(nil)
	room := mustRoom(t, "order:77")
	processor.Register(domain.EventJoinOrderRoom, func(_ context.Context, client *Client, _ Command) {
		if err := hub.Join(room, client.ID()); err != nil {
			t.Errorf("join: %v", err)
		}
		_ = client.Emit(domain.NewEnvelope(domain.EventJoined, room, domain.RoomData{Room: room.String()}, time.Now()))
	})
	conn, clients := startClientServer(t, hub, processor)
	client := <-clients

	if err := conn.WriteJSON(map[string]any{"event": "joinOrderRoom", "data": map[string]any{"orderId": 77}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if f := readFrame(t, conn); f.Event != domain.EventJoined {
		t.Fatalf("expected joined, got %s", f.Event)
	}
	if members := hub.MembersOf(room); len(members) != 1 || members[0] != client.ID() {
		t.Fatalf("unexpected members %v", members)
	}

	closed := make(chan struct{})
	client.AddCloseHook(func(*Client) { close(closed) })
	_ = conn.Close()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("client was not closed after disconnect")
	}
	if len(hub.MembersOf(room)) != 0 || hub.ConnectionCount() != 0 {
		t.Fatalf("disconnect must remove the connection from every room")
	}
	if err := client.Send([]byte("{}")); err == nil {
		t.Fatal("send after close must fail")
	}
}

func TestClient_FullBufferDetaches(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	client := NewClient(hub, nil, nil, ClientOptions{SendBuffer: 1})
	hub.Register(client)
	_ = hub.Join(mustRoom(t, "order:1"), client.ID())

	if err := client.Send([]byte("1")); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := client.Send([]byte("2")); err == nil {
		t.Fatal("expected full buffer error")
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.ConnectionCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client with a full buffer should be detached")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if hub.RoomCount() != 0 {
		t.Fatal("detached client must leave its rooms")
	}
}

func TestClient_ReadPumpStopsWhenContextEnds(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	conn, clients := startClientServerWithContext(t, ctx, hub, NewCommandProcessor(nil))
	client := <-clients

	closed := make(chan struct{})
	client.AddCloseHook(func(*Client) { close(closed) })
	cancel()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("idle client was not closed after its context ended")
	}
	if hub.ConnectionCount() != 0 {
		t.Fatal("closed client must be unregistered")
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("peer should see the socket closed")
	}
}
