package infrastructure

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"foodDeliveryWs/internal/modules/notifications/domain"
	"foodDeliveryWs/internal/modules/realtime/application/port"
)

// SQLStore persists notifications through sqlx. Queries use '?' and are rebound per driver,
// so the same statements run against pgx and sqlite3.
type SQLStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

type notificationRow struct {
	ID             int64        `db:"id"`
	RoomKey        string       `db:"room_key"`
	CorrelationID  string       `db:"correlation_id"`
	Payload        []byte       `db:"payload"`
	Status         string       `db:"status"`
	DeliveredAt    sql.NullTime `db:"delivered_at"`
	AcknowledgedAt sql.NullTime `db:"acknowledged_at"`
	CreatedAt      time.Time    `db:"created_at"`
}

func (r notificationRow) toDomain() domain.Notification {
	n := domain.Notification{
		ID:            r.ID,
		RoomKey:       r.RoomKey,
		CorrelationID: r.CorrelationID,
		Payload:       json.RawMessage(r.Payload),
		State:         domain.State(r.Status),
		CreatedAt:     r.CreatedAt.UTC(),
	}
	if r.DeliveredAt.Valid {
		t := r.DeliveredAt.Time.UTC()
		n.DeliveredAt = &t
	}
	if r.AcknowledgedAt.Valid {
		t := r.AcknowledgedAt.Time.UTC()
		n.AcknowledgedAt = &t
	}
	return n
}

const selectColumns = `id, room_key, correlation_id, payload, status, delivered_at, acknowledged_at, created_at`

// EnsureSchema creates the notifications table when missing.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaFor(s.db.DriverName()) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure notifications schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Create(ctx context.Context, roomKey, correlationID string, payload json.RawMessage) (*domain.Notification, error) {
	roomKey = strings.TrimSpace(roomKey)
	if roomKey == "" {
		return nil, fmt.Errorf("%w: empty room key", domain.ErrInvalidNotification)
	}
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if !json.Valid(payload) {
		return nil, fmt.Errorf("%w: payload is not valid json", domain.ErrInvalidNotification)
	}

	createdAt := s.now().UTC()
	query := s.db.Rebind(`INSERT INTO ws_notifications (room_key, correlation_id, payload, status, created_at)
		VALUES (?, ?, ?, ?, ?) RETURNING id`)

	var id int64
	if err := s.db.QueryRowxContext(ctx, query, roomKey, correlationID, string(payload), string(domain.StatePending), createdAt).Scan(&id); err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}

	return &domain.Notification{
		ID:            id,
		RoomKey:       roomKey,
		CorrelationID: correlationID,
		Payload:       payload,
		State:         domain.StatePending,
		CreatedAt:     createdAt,
	}, nil
}

// stampColumns names the timestamp set when a row enters each state.
var stampColumns = map[domain.State]string{
	domain.StateSent:         "delivered_at",
	domain.StateAcknowledged: "acknowledged_at",
}

// MarkSent moves a pending notification to sent.
func (s *SQLStore) MarkSent(ctx context.Context, id int64) error {
	return s.transition(ctx, id, domain.StateSent)
}

// MarkAcknowledged moves a pending or sent notification to acknowledged and returns the stored row.
func (s *SQLStore) MarkAcknowledged(ctx context.Context, id int64) (*domain.Notification, error) {
	if err := s.transition(ctx, id, domain.StateAcknowledged); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// transition runs a compare-and-set update into next from any state allowed to reach it. When no
// row matched it tells a missing row apart from one in the wrong state.
func (s *SQLStore) transition(ctx context.Context, id int64, next domain.State) error {
	column, ok := stampColumns[next]
	sources := domain.SourcesFor(next)
	if !next.Valid() || !ok || len(sources) == 0 {
		return fmt.Errorf("%w: no transition into %q", domain.ErrTransitionConflict, next)
	}

	query, args, err := sqlx.In(`UPDATE ws_notifications SET status = ?, `+column+` = ? WHERE id = ? AND status IN (?) RETURNING id`,
		string(next), s.now().UTC(), id, stateStrings(sources))
	if err != nil {
		return fmt.Errorf("build transition query: %w", err)
	}

	var updated int64
	err = s.db.QueryRowxContext(ctx, s.db.Rebind(query), args...).Scan(&updated)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update notification %d: %w", id, err)
	}
	if _, getErr := s.Get(ctx, id); getErr != nil {
		return getErr
	}
	return fmt.Errorf("%w: notification %d", domain.ErrTransitionConflict, id)
}

func (s *SQLStore) Get(ctx context.Context, id int64) (*domain.Notification, error) {
	var row notificationRow
	query := s.db.Rebind(`SELECT ` + selectColumns + ` FROM ws_notifications WHERE id = ?`)
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get notification %d: %w", id, err)
	}
	n := row.toDomain()
	return &n, nil
}

// PendingFor returns the pending backlog of a room, oldest first.
func (s *SQLStore) PendingFor(ctx context.Context, roomKey string) ([]domain.Notification, error) {
	return s.listInStates(ctx, roomKey, domain.StatePending)
}

// UnacknowledgedFor returns every notification of a room that can still be acknowledged, pending
// or sent, oldest first.
func (s *SQLStore) UnacknowledgedFor(ctx context.Context, roomKey string) ([]domain.Notification, error) {
	return s.listInStates(ctx, roomKey, domain.SourcesFor(domain.StateAcknowledged)...)
}

func (s *SQLStore) listInStates(ctx context.Context, roomKey string, states ...domain.State) ([]domain.Notification, error) {
	query, args, err := sqlx.In(`SELECT `+selectColumns+` FROM ws_notifications
		WHERE room_key = ? AND status IN (?) ORDER BY created_at ASC, id ASC`, roomKey, stateStrings(states))
	if err != nil {
		return nil, fmt.Errorf("build backlog query: %w", err)
	}

	var rows []notificationRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("notifications for %s: %w", roomKey, err)
	}
	out := make([]domain.Notification, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func stateStrings(states []domain.State) []string {
	out := make([]string, len(states))
	for i, st := range states {
		out[i] = string(st)
	}
	return out
}

var _ port.NotificationStore = (*SQLStore)(nil)
