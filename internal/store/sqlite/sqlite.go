// Package sqlite implements the durable stores over a local SQLite
// database (standalone mode, cgo-free via modernc.org/sqlite).
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/herald/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS pending_content (
	id             TEXT PRIMARY KEY,
	content_type   TEXT NOT NULL,
	channel        TEXT NOT NULL,
	event_category TEXT NOT NULL,
	timing         TEXT NOT NULL DEFAULT '',
	message        TEXT NOT NULL,
	meta           TEXT NOT NULL DEFAULT '{}',
	origin_surface TEXT NOT NULL,
	origin_channel TEXT NOT NULL,
	origin_ts      TEXT NOT NULL,
	created_at     TIMESTAMP NOT NULL,
	expires_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pending_expires ON pending_content(expires_at);

CREATE TABLE IF NOT EXISTS call_history (
	id             TEXT PRIMARY KEY,
	external_key   TEXT NOT NULL UNIQUE,
	event_category TEXT,
	topic          TEXT,
	status         TEXT,
	error_message  TEXT,
	links          TEXT,
	created_at     TIMESTAMP NOT NULL,
	processed_at   TIMESTAMP
);

CREATE TABLE IF NOT EXISTS reminder_topics (
	id             TEXT PRIMARY KEY,
	event_category TEXT NOT NULL,
	event_date     TEXT NOT NULL,
	topic          TEXT NOT NULL,
	presenter      TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMP NOT NULL,
	UNIQUE(event_category, event_date)
);

CREATE TABLE IF NOT EXISTS processed_mentions (
	mention_key  TEXT PRIMARY KEY,
	processed_at TIMESTAMP NOT NULL
);
`

// NewStores opens (creating if needed) the SQLite database at path and
// returns all stores backed by it.
func NewStores(path string) (*store.Stores, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &store.Stores{
		Pending:  NewPendingStore(db),
		Audit:    NewCallHistoryStore(db),
		Topics:   NewTopicLogStore(db),
		Mentions: NewMentionStore(db),
		DB:       db,
	}, nil
}
