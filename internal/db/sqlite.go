package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS user_persona_metrics (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	trait_name     TEXT NOT NULL,
	score          REAL NOT NULL DEFAULT 0.5,
	confidence     REAL NOT NULL DEFAULT 0.1,
	evidence_count INTEGER NOT NULL DEFAULT 0,
	last_signal    REAL,
	last_updated   TEXT NOT NULL,
	smoothed_evidence INTEGER NOT NULL DEFAULT 0,
	UNIQUE (user_id, trait_name)
);
CREATE INDEX IF NOT EXISTS idx_persona_metrics_user_id ON user_persona_metrics (user_id);

CREATE TABLE IF NOT EXISTS persona_snapshots (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	persona_vector  TEXT NOT NULL DEFAULT '{}',
	stability_index REAL NOT NULL,
	summary_text    TEXT NOT NULL,
	created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_persona_snapshots_user_created ON persona_snapshots (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS conversation_turns (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversation_turns_user ON conversation_turns (user_id, created_at);
`

// OpenSQLite abre (o crea) la base local y aplica el esquema.
// Crea el directorio padre si no existe.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializa escrituras; una sola conexion evita SQLITE_BUSY entre transacciones.
	conn.SetMaxOpenConns(1)
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return conn, nil
}
