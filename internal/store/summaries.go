package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pbaille/timeline/internal/domain"
)

const summaryColumns = "id, date_start, date_end, period_type, summary, model, created_at"

// SaveSummary stores s, replacing any summary with the same bounds and period.
func (s *Store) SaveSummary(ctx context.Context, sum domain.Summary) error {
	created := sum.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO summaries (date_start, date_end, period_type, summary, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(date_start, date_end, period_type) DO UPDATE SET
			summary = excluded.summary,
			model = excluded.model,
			created_at = excluded.created_at`,
		sum.Start.Format(domain.DateLayout), sum.End.Format(domain.DateLayout), string(sum.Period),
		sum.Text, sum.Model, formatTime(created),
	)
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSummary(row rowScanner) (domain.Summary, error) {
	var (
		sum                domain.Summary
		start, end, period string
		created            string
	)
	if err := row.Scan(&sum.ID, &start, &end, &period, &sum.Text, &sum.Model, &created); err != nil {
		return sum, err
	}
	var err error
	if sum.Start, err = time.Parse(domain.DateLayout, start); err != nil {
		return sum, fmt.Errorf("parse date_start: %w", err)
	}
	if sum.End, err = time.Parse(domain.DateLayout, end); err != nil {
		return sum, fmt.Errorf("parse date_end: %w", err)
	}
	if sum.CreatedAt, err = parseTime(created); err != nil {
		return sum, fmt.Errorf("parse created_at: %w", err)
	}
	sum.Period = domain.PeriodType(period)
	return sum, nil
}

// GetSummary returns the summary for exactly r and period, or nil.
func (s *Store) GetSummary(ctx context.Context, r domain.DateRange, period domain.PeriodType) (*domain.Summary, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+summaryColumns+" FROM summaries WHERE date_start = ? AND date_end = ? AND period_type = ?",
		r.Start.Format(domain.DateLayout), r.End.Format(domain.DateLayout), string(period),
	)
	sum, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get summary: %w", err)
	}
	return &sum, nil
}

// GetSummaries returns summaries of period whose bounds lie within r, ordered
// by start date.
func (s *Store) GetSummaries(ctx context.Context, r domain.DateRange, period domain.PeriodType) ([]domain.Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+summaryColumns+` FROM summaries
		WHERE period_type = ? AND date_start >= ? AND date_end <= ?
		ORDER BY date_start`,
		string(period), r.Start.Format(domain.DateLayout), r.End.Format(domain.DateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("get summaries: %w", err)
	}
	defer rows.Close()

	var out []domain.Summary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// GetPreviousSummary returns the most recent summary of period that ends
// before r starts, or nil.
func (s *Store) GetPreviousSummary(ctx context.Context, r domain.DateRange, period domain.PeriodType) (*domain.Summary, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+summaryColumns+` FROM summaries
		WHERE period_type = ? AND date_end < ?
		ORDER BY date_end DESC LIMIT 1`,
		string(period), r.Start.Format(domain.DateLayout),
	)
	sum, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get previous summary: %w", err)
	}
	return &sum, nil
}
