// Package browser collects page visits from a Firefox-family places.sqlite.
package browser

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pbaille/timeline/internal/collector"
	"github.com/pbaille/timeline/internal/config"
	"github.com/pbaille/timeline/internal/domain"
)

func init() {
	collector.Register(collector.KindBrowser, func(cfg config.Config) ([]collector.Collector, error) {
		if !cfg.Collectors.Browser.Enabled {
			return nil, nil
		}
		return []collector.Collector{New(cfg.Collectors.Browser.PlacesPath)}, nil
	})
}

// skipPrefixes mark internal browser pages.
var skipPrefixes = []string{
	"about:",
	"moz-extension://",
	"chrome://",
	"resource://",
	"blob:",
	"data:",
}

// Only link clicks, typed URLs and bookmarks count as intentional visits.
const visitsQuery = `
SELECT h.visit_date, h.visit_type, p.url, p.title, p.visit_count, p.description, p.site_name
FROM moz_historyvisits h
JOIN moz_places p ON h.place_id = p.id
WHERE h.visit_date >= ? AND h.visit_date < ?
  AND h.visit_type IN (1, 2, 3)
ORDER BY h.visit_date`

// Collector reads a snapshot of the places database; the browser keeps the
// live file locked.
type Collector struct {
	placesPath string
	now        func() time.Time
}

func New(placesPath string) *Collector {
	return &Collector{placesPath: placesPath, now: time.Now}
}

func (c *Collector) Source() string { return domain.SourceBrowser }
func (c *Collector) Policy() collector.Policy { return collector.CheapPolicy }

// Collect returns one record per visit in r. A missing database yields
// nothing.
func (c *Collector) Collect(ctx context.Context, r domain.DateRange) ([]domain.RawEvent, error) {
	if _, err := os.Stat(c.placesPath); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	tmpDir, err := os.MkdirTemp("", "timeline-places-")
	if err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	snapshot := filepath.Join(tmpDir, "places.sqlite")
	if err := copyFile(c.placesPath, snapshot); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", c.placesPath, err)
	}
	return c.queryVisits(ctx, snapshot, r)
}

func (c *Collector) queryVisits(ctx context.Context, path string, r domain.DateRange) ([]domain.RawEvent, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open places: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, visitsQuery, r.StartUTC().UnixMicro(), r.EndUTC().UnixMicro())
	if err != nil {
		return nil, fmt.Errorf("query visits: %w", err)
	}
	defer rows.Close()

	now := c.now()
	var events []domain.RawEvent
	for rows.Next() {
		var (
			visitDate, visitType                 int64
			rawURL, title, description, siteName sql.NullString
			visitCount                           sql.NullInt64
		)
		if err := rows.Scan(&visitDate, &visitType, &rawURL, &title, &visitCount, &description, &siteName); err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		if skipURL(rawURL.String) {
			continue
		}

		ts := time.UnixMicro(visitDate).UTC()
		payload := map[string]any{
			"url":         rawURL.String,
			"title":       title.String,
			"domain":      host(rawURL.String),
			"visit_type":  visitType,
			"visit_count": visitCount.Int64,
			"description": description.String,
			"site_name":   siteName.String,
			"timestamp":   ts.Format(time.RFC3339Nano),
		}
		events = append(events, domain.NewRawEvent(domain.SourceBrowser, now, &ts, payload))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read visits: %w", err)
	}
	return events, nil
}

func skipURL(u string) bool {
	for _, prefix := range skipPrefixes {
		if strings.HasPrefix(u, prefix) {
			return true
		}
	}
	return false
}

// host is the URL's network location, port included.
func host(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return ""
	}
	return parsed.Host
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
