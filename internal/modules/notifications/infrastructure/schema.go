package infrastructure

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS ws_notifications (
		id              BIGSERIAL PRIMARY KEY,
		room_key        TEXT        NOT NULL,
		correlation_id  TEXT        NOT NULL,
		payload         JSONB       NOT NULL,
		status          TEXT        NOT NULL,
		delivered_at    TIMESTAMPTZ NULL,
		acknowledged_at TIMESTAMPTZ NULL,
		created_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ws_notifications_open_idx
		ON ws_notifications (room_key, created_at, id) WHERE status IN ('pending', 'sent')`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS ws_notifications (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		room_key        TEXT     NOT NULL,
		correlation_id  TEXT     NOT NULL,
		payload         TEXT     NOT NULL,
		status          TEXT     NOT NULL,
		delivered_at    DATETIME NULL,
		acknowledged_at DATETIME NULL,
		created_at      DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ws_notifications_open_idx
		ON ws_notifications (room_key, created_at, id) WHERE status IN ('pending', 'sent')`,
}

func schemaFor(driverName string) []string {
	if driverName == "sqlite3" {
		return sqliteSchema
	}
	return postgresSchema
}
