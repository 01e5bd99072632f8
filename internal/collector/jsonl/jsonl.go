// Package jsonl collects timestamped JSON-lines files: the shell history hook
// output and any pre-exported source such as a calendar dump.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/pbaille/timeline/internal/collector"
	"github.com/pbaille/timeline/internal/config"
	"github.com/pbaille/timeline/internal/domain"
)

func init() {
	collector.Register(collector.KindShell, func(cfg config.Config) ([]collector.Collector, error) {
		sc := cfg.Collectors.Shell
		if !sc.Enabled {
			return nil, nil
		}
		c, err := New(Options{
			Source:      domain.SourceShell,
			Path:        sc.HistoryPath,
			IgnoreField: "command",
			Ignore:      sc.Ignore,
			Policy:      collector.CheapPolicy,
		})
		if err != nil {
			return nil, err
		}
		return []collector.Collector{c}, nil
	})

	collector.Register(collector.KindImports, func(cfg config.Config) ([]collector.Collector, error) {
		var out []collector.Collector
		for _, imp := range cfg.Collectors.Imports {
			cost, err := collector.ParseCost(imp.Cost)
			if err != nil {
				return nil, err
			}
			policy := collector.CheapPolicy
			if cost == collector.Expensive {
				policy = collector.ExpensivePolicy(imp.TTL)
			}
			var timeFields []string
			if imp.TimeField != "" {
				timeFields = []string{imp.TimeField}
			}
			c, err := New(Options{
				Name:        imp.Name,
				Source:      imp.Source,
				Path:        imp.Path,
				TimeFields:  timeFields,
				IgnoreField: imp.IgnoreField,
				Ignore:      imp.Ignore,
				Policy:      policy,
			})
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		return out, nil
	})
}

// maxLine bounds one JSONL record.
const maxLine = 4 * 1024 * 1024

// Options configure a JSONL collector.
type Options struct {
	Name   string // for logs; defaults to Source
	Source string
	Path   string
	// TimeFields are tried in order for the event time. The default depends
	// on the source.
	TimeFields []string
	// Records whose IgnoreField matches one of the Ignore globs are skipped.
	IgnoreField string
	Ignore      []string
	Policy      collector.Policy
}

// Collector reads records of one source from a JSONL file.
type Collector struct {
	opts   Options
	ignore []glob.Glob
	now    func() time.Time
}

// New compiles the ignore patterns and returns the collector.
func New(opts Options) (*Collector, error) {
	if opts.Name == "" {
		opts.Name = opts.Source
	}
	if len(opts.TimeFields) == 0 {
		opts.TimeFields = defaultTimeFields(opts.Source)
	}
	c := &Collector{opts: opts, now: time.Now}
	for _, pattern := range opts.Ignore {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile ignore pattern %q: %w", pattern, err)
		}
		c.ignore = append(c.ignore, g)
	}
	return c, nil
}

func defaultTimeFields(source string) []string {
	if source == domain.SourceCalendar {
		return []string{"start", "start_iso"}
	}
	return []string{"timestamp"}
}

func (c *Collector) Name() string { return c.opts.Name }
func (c *Collector) Source() string { return c.opts.Source }
func (c *Collector) Policy() collector.Policy { return c.opts.Policy }

// Collect returns the records whose event time falls in r. A missing file
// yields nothing; malformed lines are skipped.
func (c *Collector) Collect(ctx context.Context, r domain.DateRange) ([]domain.RawEvent, error) {
	f, err := os.Open(c.opts.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", c.opts.Path, err)
	}
	defer f.Close()

	now := c.now()
	var events []domain.RawEvent

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLine)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			continue
		}
		ts, field, ok := c.eventTime(record)
		if !ok || !r.Contains(ts) {
			continue
		}
		if c.ignored(record) {
			continue
		}
		c.normalizeTime(record, field, ts)
		events = append(events, domain.NewRawEvent(c.opts.Source, now, &ts, record))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", c.opts.Path, err)
	}
	return events, nil
}

func (c *Collector) eventTime(record map[string]any) (time.Time, string, bool) {
	for _, field := range c.opts.TimeFields {
		if ts, ok := domain.PayloadTime(record, field); ok {
			return ts, field, true
		}
	}
	return time.Time{}, "", false
}

// normalizeTime copies a time read from a configured field into the key the
// source's parser reads, so custom imports still transform.
func (c *Collector) normalizeTime(record map[string]any, field string, ts time.Time) {
	canonical := defaultTimeFields(c.opts.Source)
	if slices.Contains(canonical, field) {
		return
	}
	record[canonical[0]] = ts.Format(time.RFC3339Nano)
}

func (c *Collector) ignored(record map[string]any) bool {
	if len(c.ignore) == 0 || c.opts.IgnoreField == "" {
		return false
	}
	value, _ := record[c.opts.IgnoreField].(string)
	value = strings.TrimSpace(value)
	for _, g := range c.ignore {
		if g.Match(value) {
			return true
		}
	}
	return false
}
