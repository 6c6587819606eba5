// Package audit defines the durable, human-auditable record of what was
// generated and sent, keyed by the natural external event identifier.
package audit

import (
	"context"
	"time"

	"github.com/nextlevelbuilder/herald/internal/pending"
)

// Status is the pipeline state recorded for one external event.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Entry is one call-history row. Rows are upserted across pipeline
// stages and never deleted by this service.
type Entry struct {
	ID            string                `json:"id"`
	ExternalKey   string                `json:"external_key"`
	EventCategory pending.EventCategory `json:"event_category,omitempty"`
	Topic         string                `json:"topic,omitempty"`
	Status        Status                `json:"status"`
	ErrorMessage  string                `json:"error_message,omitempty"`
	Links         []string              `json:"links,omitempty"` // generated artifacts (board post URL, email id, ...)
	CreatedAt     time.Time             `json:"created_at"`
	ProcessedAt   *time.Time            `json:"processed_at,omitempty"`
}

// Partial carries the fields one pipeline stage wants to write. Nil
// fields retain whatever an earlier stage recorded — a later write only
// overwrites what it explicitly supplies.
type Partial struct {
	EventCategory *pending.EventCategory
	Topic         *string
	Status        *Status
	ErrorMessage  *string
	Links         *[]string
	ProcessedAt   *time.Time
}

// Ptr returns a pointer to v, for building Partials inline.
func Ptr[T any](v T) *T { return &v }

// Log is the durable call-history store.
type Log interface {
	// Upsert merges p into the row for externalKey, creating it if
	// needed, and returns the row id.
	Upsert(ctx context.Context, externalKey string, p Partial) (string, error)
	// Get returns the row for externalKey, or nil when absent.
	Get(ctx context.Context, externalKey string) (*Entry, error)
	// List returns the most recent rows, newest first.
	List(ctx context.Context, limit int) ([]*Entry, error)
}

// TopicLog records accepted topics per event occurrence, unique on
// (category, event date).
type TopicLog interface {
	RecordTopic(ctx context.Context, category pending.EventCategory, eventDate, topic, presenter string) error
}

// MentionTTL is how long processed callback keys are retained for
// duplicate-delivery suppression.
const MentionTTL = time.Hour

// MentionLog suppresses duplicate inbound callback deliveries.
type MentionLog interface {
	// MarkProcessed records key, reporting whether it was newly seen.
	// false means the callback was already handled.
	MarkProcessed(ctx context.Context, key string) (bool, error)
	// PurgeOlderThan drops keys older than age, returning the count.
	PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error)
}
