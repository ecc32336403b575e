package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"foodDeliveryWs/internal/config"
	announcementsinfra "foodDeliveryWs/internal/modules/announcements/infrastructure"
	chatinfra "foodDeliveryWs/internal/modules/chat/infrastructure"
	notificationsinfra "foodDeliveryWs/internal/modules/notifications/infrastructure"
	"foodDeliveryWs/internal/modules/realtime/application/usecase"
	"foodDeliveryWs/internal/modules/realtime/infrastructure"
	"foodDeliveryWs/internal/platform/database"
	"foodDeliveryWs/internal/shared/auth"
	"foodDeliveryWs/internal/shared/validation"
)

const testSecret = "interface-test-secret"

type testServer struct {
	hub *infrastructure.Hub
	srv *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	ctx := context.Background()

	sqlDB, err := database.OpenSQL(ctx, config.DatabaseConfig{Driver: database.DriverSQLite, URL: filepath.Join(dir, "notifications.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	notificationStore := notificationsinfra.NewSQLStore(sqlDB)
	require.NoError(t, notificationStore.EnsureSchema(ctx))

	gormDB, err := database.OpenGorm(config.DatabaseConfig{Driver: database.DriverSQLite, URL: filepath.Join(dir, "realtime.db")})
	require.NoError(t, err)
	chatStore := chatinfra.NewGormStore(gormDB)
	require.NoError(t, chatStore.Migrate(ctx))
	announcementStore := announcementsinfra.NewGormStore(gormDB)
	require.NoError(t, announcementStore.Migrate(ctx))

	cfg := &config.Config{
		Websocket: config.WebsocketConfig{SendBuffer: 32, ReadLimit: 1 << 16, PongWait: time.Minute, PingPeriod: 30 * time.Second},
		Uploads:   config.UploadsConfig{Directory: filepath.Join(dir, "uploads"), BaseURL: "/uploads", MaxBytes: 1 << 20},
	}

	hub := infrastructure.NewHub()
	svc := &Services{
		Dispatcher:    usecase.NewNotificationDispatcher(notificationStore, hub),
		Broadcast:     usecase.NewBroadcastUseCase(hub),
		Chat:          usecase.NewChatUseCase(chatStore, hub),
		Announcements: usecase.NewAnnouncementUseCase(announcementStore, hub),
		Uploads:       usecase.NewUploadUseCase(hub, cfg.Uploads.Directory, cfg.Uploads.BaseURL, cfg.Uploads.MaxBytes),
		Validator:     validation.New(),
	}

	serverCtx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)

	e := echo.New()
	RegisterRoutes(serverCtx, e, hub, svc, auth.NewJWTValidator(testSecret), cfg)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return &testServer{hub: hub, srv: srv}
}

func token(t *testing.T, subject string, roles ...string) string {
	t.Helper()
	claims := auth.Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (ts *testServer) do(t *testing.T, method, path, bearer string, body any) (int, []byte) {
	t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

type frame struct {
	Event string          `json:"event"`
	Room  string          `json:"room"`
	Data  json.RawMessage `json:"data"`
}

func (ts *testServer) dial(t *testing.T, bearer string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws?token=" + bearer
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"event": event, "data": data}))
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
