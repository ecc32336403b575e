package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	notifications "foodDeliveryWs/internal/modules/notifications/domain"
	"foodDeliveryWs/internal/modules/realtime/application/usecase"
	"foodDeliveryWs/internal/modules/realtime/domain"
)

func TestRoutes_NotifyPendingAck(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	staff := token(t, "staff-1", "staff")

	status, body := ts.do(t, http.MethodPost, "/api/restaurants/r1/notifications", staff, map[string]any{
		"orderId": 42,
		"payload": map[string]any{"total": 18.5},
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	var created usecase.DispatchResult
	require.NoError(t, json.Unmarshal(body, &created))
	require.Equal(t, usecase.OutcomeQueued, created.Outcome)
	require.Equal(t, "42", created.Notification.CorrelationID)
	require.Equal(t, notifications.StatePending, created.Notification.State)

	status, body = ts.do(t, http.MethodGet, "/api/restaurants/r1/notifications/pending", staff, nil)
	require.Equal(t, http.StatusOK, status)
	var pending PendingResponse
	require.NoError(t, json.Unmarshal(body, &pending))
	require.Len(t, pending.Notifications, 1)

	ackPath := fmt.Sprintf("/api/notifications/%d/ack", created.Notification.ID)
	status, body = ts.do(t, http.MethodPost, ackPath, staff, nil)
	require.Equal(t, http.StatusOK, status)
	var ack AckResponse
	require.NoError(t, json.Unmarshal(body, &ack))
	require.False(t, ack.AlreadyAcknowledged)
	require.Equal(t, notifications.StateAcknowledged, ack.Notification.State)

	status, body = ts.do(t, http.MethodPost, ackPath, staff, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &ack))
	require.True(t, ack.AlreadyAcknowledged)

	status, body = ts.do(t, http.MethodGet, "/api/restaurants/r1/notifications/pending", staff, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &pending))
	require.Empty(t, pending.Notifications)
}

func TestRoutes_Rejections(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	staff := token(t, "staff-1", "staff")
	customer := token(t, "c1", "customer")

	cases := []struct {
		name   string
		method string
		path   string
		bearer string
		body   any
		want   int
	}{
		{"missing token", http.MethodPost, "/api/restaurants/r1/notifications", "", map[string]any{"orderId": 1}, http.StatusUnauthorized},
		{"customer notifying", http.MethodPost, "/api/restaurants/r1/notifications", customer, map[string]any{"orderId": 1}, http.StatusForbidden},
		{"missing order id", http.MethodPost, "/api/restaurants/r1/notifications", staff, map[string]any{"payload": "x"}, http.StatusBadRequest},
		{"bad ack id", http.MethodPost, "/api/notifications/abc/ack", staff, nil, http.StatusBadRequest},
		{"unknown ack id", http.MethodPost, "/api/notifications/999/ack", staff, nil, http.StatusNotFound},
		{"announcement by staff", http.MethodPost, "/api/announcements", staff, map[string]any{"title": "t", "message": "m", "audience": []string{"all"}}, http.StatusForbidden},
		{"foreign chat history", http.MethodGet, "/api/chat/history?userId=c2&userType=customer&otherId=s1&otherType=staff", customer, nil, http.StatusForbidden},
		{"driver location by customer", http.MethodPost, "/api/driver-location", customer, map[string]any{"driverId": "c1", "orderId": 1, "lat": 1, "lng": 1}, http.StatusForbidden},
	}

	for _, tc := range cases {
		status, body := ts.do(t, tc.method, tc.path, tc.bearer, tc.body)
		if status != tc.want {
			t.Fatalf("%s: expected %d got %d (%s)", tc.name, tc.want, status, body)
		}
	}
}

func TestRoutes_Health(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	conn := ts.dial(t, token(t, "c1", "customer"))
	require.Equal(t, domain.EventConnected, readFrame(t, conn).Event)

	status, body := ts.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, status)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(body, &health))
	require.Equal(t, "ok", health.Status)
	require.Equal(t, 1, health.Connections)
}

func TestWebsocket_RejectsMissingToken(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebsocket_CustomerRooms(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	conn := ts.dial(t, token(t, "c1", "customer"))

	connected := readFrame(t, conn)
	require.Equal(t, domain.EventConnected, connected.Event)
	var data domain.ConnectedData
	require.NoError(t, json.Unmarshal(connected.Data, &data))
	require.Equal(t, "c1", data.UserID)
	require.Equal(t, "customer", data.Role)

	send(t, conn, domain.EventJoinRestaurantRoom, map[string]any{"restaurantId": "r1"})
	f := readFrame(t, conn)
	require.Equal(t, domain.EventError, f.Event)
	var reason domain.ErrorData
	require.NoError(t, json.Unmarshal(f.Data, &reason))
	require.Equal(t, domain.EventJoinRestaurantRoom, reason.Event)
	require.Equal(t, reasonForbidden, reason.Reason)

	send(t, conn, domain.EventJoinCustomerRoom, map[string]any{"customerId": "c2"})
	require.Equal(t, domain.EventError, readFrame(t, conn).Event)

	send(t, conn, domain.EventJoinCustomerRoom, map[string]any{"customerId": "c1"})
	f = readFrame(t, conn)
	require.Equal(t, domain.EventJoined, f.Event)
	require.Equal(t, "customer:c1", f.Room)

	send(t, conn, domain.EventJoinOrderRoom, map[string]any{})
	require.Equal(t, domain.EventError, readFrame(t, conn).Event)
}

func TestWebsocket_StaffReplayAndAck(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	staff := token(t, "staff-1", "staff")

	status, body := ts.do(t, http.MethodPost, "/api/restaurants/r7/notifications", staff, map[string]any{"orderId": "o-1"})
	require.Equal(t, http.StatusCreated, status, string(body))

	conn := ts.dial(t, staff)
	require.Equal(t, domain.EventConnected, readFrame(t, conn).Event)

	send(t, conn, domain.EventJoinRestaurantRoom, map[string]any{"restaurantId": "r7"})
	replayed := readFrame(t, conn)
	require.Equal(t, domain.EventNewOrder, replayed.Event)
	var order domain.NewOrderData
	require.NoError(t, json.Unmarshal(replayed.Data, &order))
	require.True(t, order.Replayed)
	require.Equal(t, "o-1", order.OrderID)

	joined := readFrame(t, conn)
	require.Equal(t, domain.EventJoined, joined.Event)
	require.Equal(t, "restaurant:r7", joined.Room)

	status, body = ts.do(t, http.MethodPost, "/api/restaurants/r7/notifications", staff, map[string]any{"orderId": "o-2"})
	require.Equal(t, http.StatusCreated, status)
	var live usecase.DispatchResult
	require.NoError(t, json.Unmarshal(body, &live))
	require.Equal(t, usecase.OutcomeDelivered, live.Outcome)
	require.Equal(t, 1, live.Recipients)

	pushed := readFrame(t, conn)
	require.Equal(t, domain.EventNewOrder, pushed.Event)
	require.NoError(t, json.Unmarshal(pushed.Data, &order))
	require.False(t, order.Replayed)

	send(t, conn, domain.EventAckOrder, map[string]any{"notificationId": order.NotificationID})
	ack := readFrame(t, conn)
	require.Equal(t, domain.EventAckConfirmed, ack.Event)
	var confirmed domain.AckConfirmedData
	require.NoError(t, json.Unmarshal(ack.Data, &confirmed))
	require.Equal(t, order.NotificationID, confirmed.NotificationID)
	require.False(t, confirmed.AlreadyAcknowledged)
}

func TestWebsocket_OnlyReceiverMarksMessageRead(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	customer := ts.dial(t, token(t, "c1", "customer"))
	require.Equal(t, domain.EventConnected, readFrame(t, customer).Event)
	send(t, customer, domain.EventJoinChat, map[string]any{"userId": "c1", "userType": "customer"})
	require.Equal(t, domain.EventJoined, readFrame(t, customer).Event)

	send(t, customer, domain.EventSendMessage, map[string]any{
		"senderId": "c1", "senderType": "customer", "receiverId": "a1", "receiverType": "agent", "message": "cold fries",
	})
	sent := readFrame(t, customer)
	require.Equal(t, domain.EventMessageSent, sent.Event)
	var msg struct {
		ID uint64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(sent.Data, &msg))
	require.NotZero(t, msg.ID)

	stranger := ts.dial(t, token(t, "c2", "customer"))
	require.Equal(t, domain.EventConnected, readFrame(t, stranger).Event)
	for _, event := range []string{domain.EventDelivered, domain.EventRead} {
		send(t, stranger, event, map[string]any{"messageId": msg.ID})
		f := readFrame(t, stranger)
		require.Equal(t, domain.EventError, f.Event)
		var reason domain.ErrorData
		require.NoError(t, json.Unmarshal(f.Data, &reason))
		require.Equal(t, event, reason.Event)
		require.Equal(t, reasonForbidden, reason.Reason)
	}

	// the sender cannot acknowledge its own message either
	send(t, customer, domain.EventRead, map[string]any{"messageId": msg.ID})
	require.Equal(t, domain.EventError, readFrame(t, customer).Event)

	agent := ts.dial(t, token(t, "a1", "agent"))
	require.Equal(t, domain.EventConnected, readFrame(t, agent).Event)
	send(t, agent, domain.EventRead, map[string]any{"messageId": msg.ID})
	receipt := readFrame(t, customer)
	require.Equal(t, domain.EventMessageRead, receipt.Event)
	var data domain.ReceiptData
	require.NoError(t, json.Unmarshal(receipt.Data, &data))
	require.Equal(t, msg.ID, data.MessageID)

	send(t, agent, domain.EventRead, map[string]any{"messageId": msg.ID + 100})
	require.Equal(t, domain.EventChatError, readFrame(t, agent).Event)
}

func TestNewUpgrader_CheckOrigin(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no list", nil, "https://evil.test", true},
		{"wildcard", []string{"*"}, "https://evil.test", true},
		{"listed", []string{"https://app.example.com/"}, "https://APP.example.com", true},
		{"not listed", []string{"https://app.example.com"}, "https://evil.test", false},
		{"no origin header", []string{"https://app.example.com"}, "", true},
	}

	for _, tc := range cases {
		upgrader := newUpgrader(tc.allowed)
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tc.origin != "" {
			req.Header.Set("Origin", tc.origin)
		}
		if got := upgrader.CheckOrigin(req); got != tc.want {
			t.Fatalf("%s: expected %v got %v", tc.name, tc.want, got)
		}
	}
}
