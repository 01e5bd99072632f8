package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pbaille/timeline/internal/domain"
)

// EventQuery narrows GetEvents. Source and Filter are mutually exclusive.
type EventQuery struct {
	Source  string
	Project string
	Filter  *domain.SourceFilter
}

// SaveEvents inserts timeline events, ignoring content-hash duplicates. It
// returns the number of rows actually inserted.
func (s *Store) SaveEvents(ctx context.Context, events []domain.TimelineEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin event insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO events
			(raw_event_id, timestamp, end_time, source, project, category, description, metadata, content_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare event insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, e := range events {
		if e.Hash == "" {
			e.Seal()
		}
		meta, err := json.Marshal(e.Metadata)
		if err != nil {
			return 0, fmt.Errorf("encode event metadata: %w", err)
		}
		var project any
		if e.Project != "" {
			project = e.Project
		}
		res, err := stmt.ExecContext(ctx,
			e.RawEventID, formatTime(e.Timestamp), formatTimePtr(e.EndTime),
			e.Source, project, e.Category, e.Description, string(meta), e.Hash,
		)
		if err != nil {
			return 0, fmt.Errorf("insert event: %w", err)
		}
		inserted += countAffected(res)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit event insert: %w", err)
	}
	return inserted, nil
}

func eventFilter(r domain.DateRange, q EventQuery) (string, []any, error) {
	if q.Source != "" && q.Filter != nil {
		return "", nil, &domain.ArgumentError{Arg: "event query", Msg: "source and source filter cannot be combined"}
	}
	start, end := rangeArgs(r)
	clauses := []string{"timestamp >= ?", "timestamp < ?"}
	args := []any{start, end}

	if q.Source != "" {
		clauses = append(clauses, "source = ?")
		args = append(args, q.Source)
	}
	if q.Project != "" {
		clauses = append(clauses, "project = ?")
		args = append(args, q.Project)
	}
	if q.Filter != nil {
		sources := q.Filter.Sources()
		if len(sources) > 0 {
			op := "IN"
			if q.Filter.Mode() == domain.FilterExclude {
				op = "NOT IN"
			}
			clauses = append(clauses, fmt.Sprintf("source %s (%s)", op, placeholders(len(sources))))
			for _, src := range sources {
				args = append(args, src)
			}
		}
	}
	return strings.Join(clauses, " AND "), args, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// GetEvents returns timeline events in r matching q, ordered by timestamp.
func (s *Store) GetEvents(ctx context.Context, r domain.DateRange, q EventQuery) ([]domain.TimelineEvent, error) {
	where, args, err := eventFilter(r, q)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, raw_event_id, timestamp, end_time, source, project, category, description, metadata, content_hash
		FROM events WHERE `+where+` ORDER BY timestamp, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	defer rows.Close()

	var events []domain.TimelineEvent
	for rows.Next() {
		var (
			e       domain.TimelineEvent
			rawID   sql.NullInt64
			ts      string
			endTime sql.NullString
			project sql.NullString
			meta    string
		)
		if err := rows.Scan(&e.ID, &rawID, &ts, &endTime, &e.Source, &project, &e.Category, &e.Description, &meta, &e.Hash); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if rawID.Valid {
			id := rawID.Int64
			e.RawEventID = &id
		}
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("parse event timestamp: %w", err)
		}
		if e.EndTime, err = parseTimePtr(endTime); err != nil {
			return nil, fmt.Errorf("parse event end_time: %w", err)
		}
		e.Project = project.String
		if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode event metadata %d: %w", e.ID, err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountEvents returns the number of timeline events in r.
func (s *Store) CountEvents(ctx context.Context, r domain.DateRange) (int, error) {
	start, end := rangeArgs(r)
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM events WHERE timestamp >= ? AND timestamp < ?", start, end,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// DeleteEvents removes timeline events in r, optionally for one source only.
func (s *Store) DeleteEvents(ctx context.Context, r domain.DateRange, source string) (int, error) {
	where, args, err := eventFilter(r, EventQuery{Source: source})
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE "+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete events: %w", err)
	}
	return countAffected(res), nil
}
