package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nextlevelbuilder/herald/internal/pending"
)

// PendingStore implements pending.Durable over Postgres.
type PendingStore struct {
	db *sql.DB
}

func NewPendingStore(db *sql.DB) *PendingStore {
	return &PendingStore{db: db}
}

func (s *PendingStore) Put(ctx context.Context, item *pending.Item) error {
	metaJSON, err := json.Marshal(item.Meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pending_content
			(id, content_type, channel, event_category, timing, message, meta,
			 origin_surface, origin_channel, origin_ts, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			message = excluded.message,
			meta    = excluded.meta`,
		item.ID, item.ContentType, item.Channel, item.EventCategory, item.Timing,
		item.Message, string(metaJSON),
		item.Origin.Surface, item.Origin.ChannelID, item.Origin.MessageTS,
		item.CreatedAt.UTC(), item.ExpiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("put pending: %w", err)
	}
	return nil
}

func (s *PendingStore) Get(ctx context.Context, id string) (*pending.Item, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content_type, channel, event_category, timing, message, meta,
		       origin_surface, origin_channel, origin_ts, created_at, expires_at
		FROM pending_content
		WHERE id = $1 AND expires_at > now()`, id)

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pending: %w", err)
	}
	return item, nil
}

func (s *PendingStore) UpdateMessage(ctx context.Context, id, message string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE pending_content SET message = $1 WHERE id = $2`, message, id)
	if err != nil {
		return fmt.Errorf("update pending message: %w", err)
	}
	return nil
}

func (s *PendingStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_content WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete pending: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *PendingStore) ListActive(ctx context.Context) ([]*pending.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content_type, channel, event_category, timing, message, meta,
		       origin_surface, origin_channel, origin_ts, created_at, expires_at
		FROM pending_content
		WHERE expires_at > now()
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var items []*pending.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PendingStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_content WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("delete expired pending: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*pending.Item, error) {
	var item pending.Item
	var metaJSON string
	err := row.Scan(
		&item.ID, &item.ContentType, &item.Channel, &item.EventCategory, &item.Timing,
		&item.Message, &metaJSON,
		&item.Origin.Surface, &item.Origin.ChannelID, &item.Origin.MessageTS,
		&item.CreatedAt, &item.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	if metaJSON != "" {
		if err := json.Unmarshal([]byte(metaJSON), &item.Meta); err != nil {
			return nil, fmt.Errorf("unmarshal meta: %w", err)
		}
	}
	return &item, nil
}
