// Package summarizer writes narrative day and week summaries through an LLM
// backend.
package summarizer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pbaille/timeline/internal/config"
	"github.com/pbaille/timeline/internal/domain"
)

const daySystemPrompt = `You are a concise developer productivity assistant analyzing daily activity timelines. ` +
	`Synthesize the activity into a brief, coherent daily summary that keeps continuity with previous days.

Focus on:
- Concrete accomplishments (code written, PRs merged, features shipped, bugs fixed)
- Active projects and how work is progressing across days
- Significant meetings or collaboration
- Notable workflow patterns or context switches
- Connection to the previous day's work when applicable

Downweight:
- Generic browser activity unless clearly productive (docs, Stack Overflow, research)
- Routine shell commands unless part of meaningful deployment or debugging
- Meeting attendance without context

Output: 3-5 concise sentences forming one narrative paragraph. No bullet points, no headers. Write it as a developer's logbook entry.`

const weekSystemPrompt = `You are a developer productivity assistant synthesizing weekly activity. ` +
	`Create a coherent weekly narrative from the daily summaries that captures progress, patterns and momentum across the week.

Focus on:
- Major accomplishments and shipped work
- Key projects and how they evolved through the week
- Productivity patterns (deep work days, meeting-heavy days, context switches)
- Momentum shifts or pivots from the previous week
- Collaboration and cross-project work

Distill what got done, where focus was concentrated and how work progressed relative to previous periods.

Output: 5-8 sentences forming one cohesive narrative. No bullet points, no headers. Write it as a weekly developer log entry.`

// Summarizer renders prompts and asks the backend for a summary. A nil
// result means no summary: disabled, nothing to summarize, or the backend
// failed.
type Summarizer struct {
	backend Backend
	model   string
	timeout time.Duration
	loc     *time.Location
	logger  *zap.Logger
	now     func() time.Time
}

// New builds a summarizer for cfg. It returns nil when summarization is
// disabled.
func New(cfg config.SummarizerConfig, loc *time.Location, logger *zap.Logger) (*Summarizer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	backend, err := NewBackend(cfg)
	if err != nil {
		return nil, &domain.ConfigError{Path: "summarizer", Err: err}
	}
	s := NewWithBackend(backend, cfg.Model, loc, logger)
	s.timeout = cfg.Timeout
	return s, nil
}

// NewWithBackend wraps an arbitrary backend.
func NewWithBackend(backend Backend, model string, loc *time.Location, logger *zap.Logger) *Summarizer {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summarizer{
		backend: backend,
		model:   model,
		timeout: 120 * time.Second,
		loc:     loc,
		logger:  logger,
		now:     time.Now,
	}
}

// SummarizeDay summarizes one day's events. previous, when set, is the latest
// earlier daily summary.
func (s *Summarizer) SummarizeDay(ctx context.Context, events []domain.TimelineEvent, r domain.DateRange, previous *domain.Summary) *domain.Summary {
	if s == nil || len(events) == 0 {
		return nil
	}

	var sb strings.Builder
	if previous != nil {
		fmt.Fprintf(&sb, "Previous day (%s):\n%s\n\n", previous.Start.Format(domain.DateLayout), previous.Text)
	}
	fmt.Fprintf(&sb, "Activity timeline for %s (%d events):\n\n", r.Start.Format(domain.DateLayout), len(events))
	sb.WriteString(FormatEvents(events, s.loc))

	return s.complete(ctx, daySystemPrompt, sb.String(), r, domain.PeriodDay)
}

// SummarizeWeek summarizes a week from its daily summaries. previous, when
// set, is the latest earlier weekly summary.
func (s *Summarizer) SummarizeWeek(ctx context.Context, dailies []domain.Summary, r domain.DateRange, previous *domain.Summary) *domain.Summary {
	if s == nil || len(dailies) == 0 {
		return nil
	}

	var sb strings.Builder
	if previous != nil {
		fmt.Fprintf(&sb, "Previous week (%s):\n%s\n\n", isoWeek(previous.Start), previous.Text)
	}
	fmt.Fprintf(&sb, "Weekly summaries for %s (%s to %s):\n\n",
		isoWeek(r.Start), r.Start.Format(domain.DateLayout), r.End.Format(domain.DateLayout))
	for i, d := range dailies {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "%s (%s): %s", d.Start.Weekday(), d.Start.Format(domain.DateLayout), d.Text)
	}

	return s.complete(ctx, weekSystemPrompt, sb.String(), r, domain.PeriodWeek)
}

func (s *Summarizer) complete(ctx context.Context, system, prompt string, r domain.DateRange, period domain.PeriodType) *domain.Summary {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	text, err := s.backend.Complete(ctx, system, prompt)
	if err != nil {
		s.logger.Warn("summarizer failed", zap.String("period", string(period)), zap.Stringer("range", r), zap.Error(err))
		return nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		s.logger.Warn("summarizer returned an empty response", zap.String("period", string(period)), zap.Stringer("range", r))
		return nil
	}

	return &domain.Summary{
		Start:     r.Start,
		End:       r.End,
		Period:    period,
		Text:      text,
		Model:     s.model,
		CreatedAt: s.now().UTC(),
	}
}

// FormatEvents renders one line per event:
// "HH:MM [source] (category) project: description +ins/-del".
func FormatEvents(events []domain.TimelineEvent, loc *time.Location) string {
	lines := make([]string, 0, len(events))
	for _, e := range events {
		project := e.Project
		if project == "" {
			project = "unknown"
		}
		line := fmt.Sprintf("%s [%s] (%s) %s: %s", e.Timestamp.In(loc).Format("15:04"), e.Source, e.Category, project, e.Description)
		if e.Source == domain.SourceGit {
			ins, del := metaInt(e.Metadata, "insertions"), metaInt(e.Metadata, "deletions")
			if ins != 0 || del != 0 {
				line += fmt.Sprintf(" +%d/-%d", ins, del)
			}
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func isoWeek(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// metaInt reads a count that may have gone through JSON.
func metaInt(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
