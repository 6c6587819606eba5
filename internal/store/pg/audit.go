package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/herald/internal/audit"
	"github.com/nextlevelbuilder/herald/internal/pending"
)

// CallHistoryStore implements audit.Log over Postgres.
type CallHistoryStore struct {
	db *sql.DB
}

func NewCallHistoryStore(db *sql.DB) *CallHistoryStore {
	return &CallHistoryStore{db: db}
}

// Upsert merges p into the row for externalKey. NULL parameters leave
// the existing column value untouched, so each pipeline stage only
// overwrites what it explicitly supplies.
func (s *CallHistoryStore) Upsert(ctx context.Context, externalKey string, p audit.Partial) (string, error) {
	var linksJSON any
	if p.Links != nil {
		b, err := json.Marshal(*p.Links)
		if err != nil {
			return "", fmt.Errorf("marshal links: %w", err)
		}
		linksJSON = string(b)
	}

	var id string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO call_history
			(id, external_key, event_category, topic, status, error_message, links, created_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (external_key) DO UPDATE SET
			event_category = COALESCE(excluded.event_category, call_history.event_category),
			topic          = COALESCE(excluded.topic, call_history.topic),
			status         = COALESCE(excluded.status, call_history.status),
			error_message  = COALESCE(excluded.error_message, call_history.error_message),
			links          = COALESCE(excluded.links, call_history.links),
			processed_at   = COALESCE(excluded.processed_at, call_history.processed_at)
		RETURNING id`,
		uuid.Must(uuid.NewV7()).String(), externalKey,
		nullable(p.EventCategory), nullable(p.Topic), nullable(p.Status),
		nullable(p.ErrorMessage), linksJSON, time.Now().UTC(), nullableTime(p.ProcessedAt),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert call history: %w", err)
	}
	return id, nil
}

func (s *CallHistoryStore) Get(ctx context.Context, externalKey string) (*audit.Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, external_key, event_category, topic, status, error_message, links, created_at, processed_at
		FROM call_history WHERE external_key = $1`, externalKey)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get call history: %w", err)
	}
	return entry, nil
}

func (s *CallHistoryStore) List(ctx context.Context, limit int) ([]*audit.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, external_key, event_category, topic, status, error_message, links, created_at, processed_at
		FROM call_history ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list call history: %w", err)
	}
	defer rows.Close()

	var entries []*audit.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan call history: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanEntry(row rowScanner) (*audit.Entry, error) {
	var e audit.Entry
	var category, topic, status, errMsg, links sql.NullString
	var processedAt sql.NullTime
	err := row.Scan(&e.ID, &e.ExternalKey, &category, &topic, &status, &errMsg, &links, &e.CreatedAt, &processedAt)
	if err != nil {
		return nil, err
	}
	e.EventCategory = pending.EventCategory(category.String)
	e.Topic = topic.String
	e.Status = audit.Status(status.String)
	e.ErrorMessage = errMsg.String
	if links.Valid && links.String != "" {
		if err := json.Unmarshal([]byte(links.String), &e.Links); err != nil {
			return nil, fmt.Errorf("unmarshal links: %w", err)
		}
	}
	if processedAt.Valid {
		t := processedAt.Time
		e.ProcessedAt = &t
	}
	return &e, nil
}

func nullable[T ~string](p *T) any {
	if p == nil {
		return nil
	}
	return string(*p)
}

func nullableTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.UTC()
}

// TopicLogStore implements audit.TopicLog over Postgres.
type TopicLogStore struct {
	db *sql.DB
}

func NewTopicLogStore(db *sql.DB) *TopicLogStore {
	return &TopicLogStore{db: db}
}

func (s *TopicLogStore) RecordTopic(ctx context.Context, category pending.EventCategory, eventDate, topic, presenter string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reminder_topics (id, event_category, event_date, topic, presenter, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_category, event_date) DO UPDATE SET
			topic     = excluded.topic,
			presenter = excluded.presenter`,
		uuid.Must(uuid.NewV7()).String(), category, eventDate, topic, presenter, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record topic: %w", err)
	}
	return nil
}

// MentionStore implements audit.MentionLog over Postgres.
type MentionStore struct {
	db *sql.DB
}

func NewMentionStore(db *sql.DB) *MentionStore {
	return &MentionStore{db: db}
}

func (s *MentionStore) MarkProcessed(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO processed_mentions (mention_key, processed_at)
		VALUES ($1, $2) ON CONFLICT (mention_key) DO NOTHING`,
		key, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("mark processed: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *MentionStore) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM processed_mentions WHERE processed_at < $1`,
		time.Now().Add(-age).UTC())
	if err != nil {
		return 0, fmt.Errorf("purge mentions: %w", err)
	}
	return res.RowsAffected()
}
