// Package store wires the durable storage backends. Standalone mode
// uses a local SQLite file; managed mode uses Postgres when
// HERALD_POSTGRES_DSN is set.
package store

import (
	"database/sql"

	"github.com/nextlevelbuilder/herald/internal/audit"
	"github.com/nextlevelbuilder/herald/internal/pending"
)

// Stores is the top-level container for all storage backends.
type Stores struct {
	Pending  pending.Durable
	Audit    audit.Log
	Topics   audit.TopicLog
	Mentions audit.MentionLog

	// DB is the shared handle behind the stores, exposed for doctor
	// checks and teardown.
	DB *sql.DB
}

// Close releases the underlying database handle.
func (s *Stores) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

// Config selects and configures the storage backend.
type Config struct {
	PostgresDSN string // non-empty selects Postgres (managed mode)
	SQLitePath  string // standalone mode database file
}
