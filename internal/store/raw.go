package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pbaille/timeline/internal/domain"
)

// SaveRaw inserts raw events, ignoring content-hash duplicates. It returns the
// number of rows actually inserted.
func (s *Store) SaveRaw(ctx context.Context, events []domain.RawEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin raw insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO raw_events (source, collected_at, event_timestamp, raw_data, content_hash)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare raw insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, e := range events {
		data, err := json.Marshal(e.Payload)
		if err != nil {
			return 0, fmt.Errorf("encode raw payload: %w", err)
		}
		hash := e.Hash
		if hash == "" {
			hash = domain.RawHash(e.Source, e.Payload)
		}
		res, err := stmt.ExecContext(ctx, e.Source, formatTime(e.CollectedAt), formatTimePtr(e.EventTime), string(data), hash)
		if err != nil {
			return 0, fmt.Errorf("insert raw event: %w", err)
		}
		inserted += countAffected(res)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit raw insert: %w", err)
	}
	return inserted, nil
}

// rawFilter builds the WHERE clause shared by the raw queries. An empty source
// matches every source.
func rawFilter(r domain.DateRange, source string) (string, []any) {
	start, end := rangeArgs(r)
	where := "event_timestamp >= ? AND event_timestamp < ?"
	args := []any{start, end}
	if source != "" {
		where += " AND source = ?"
		args = append(args, source)
	}
	return where, args
}

// GetRaw returns raw events whose event time falls in r, oldest first.
func (s *Store) GetRaw(ctx context.Context, r domain.DateRange, source string) ([]domain.RawEvent, error) {
	where, args := rawFilter(r, source)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, collected_at, event_timestamp, raw_data, content_hash
		FROM raw_events WHERE `+where+` ORDER BY event_timestamp, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("get raw events: %w", err)
	}
	defer rows.Close()

	var events []domain.RawEvent
	for rows.Next() {
		var (
			e           domain.RawEvent
			collectedAt string
			eventTime   sql.NullString
			data        string
		)
		if err := rows.Scan(&e.ID, &e.Source, &collectedAt, &eventTime, &data, &e.Hash); err != nil {
			return nil, fmt.Errorf("scan raw event: %w", err)
		}
		if e.CollectedAt, err = parseTime(collectedAt); err != nil {
			return nil, fmt.Errorf("parse collected_at: %w", err)
		}
		if e.EventTime, err = parseTimePtr(eventTime); err != nil {
			return nil, fmt.Errorf("parse event_timestamp: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &e.Payload); err != nil {
			return nil, fmt.Errorf("decode raw payload %d: %w", e.ID, err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// HasRaw reports whether any raw event for source exists in r.
func (s *Store) HasRaw(ctx context.Context, r domain.DateRange, source string) (bool, error) {
	where, args := rawFilter(r, source)
	var exists bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM raw_events WHERE "+where+")", args...).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check raw events: %w", err)
	}
	return exists, nil
}

// LatestCollectedAt returns when raw data for source in r was last collected,
// or nil when there is none.
func (s *Store) LatestCollectedAt(ctx context.Context, r domain.DateRange, source string) (*time.Time, error) {
	where, args := rawFilter(r, source)
	var latest sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT MAX(collected_at) FROM raw_events WHERE "+where, args...).Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("latest collection: %w", err)
	}
	return parseTimePtr(latest)
}

// DeleteRaw removes raw events for source in r and returns how many went.
func (s *Store) DeleteRaw(ctx context.Context, r domain.DateRange, source string) (int, error) {
	where, args := rawFilter(r, source)
	res, err := s.db.ExecContext(ctx, "DELETE FROM raw_events WHERE "+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete raw events: %w", err)
	}
	return countAffected(res), nil
}
