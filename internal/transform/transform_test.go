package transform

import (
	"testing"
	"time"

	"github.com/pbaille/timeline/internal/domain"
	"github.com/pbaille/timeline/internal/project"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func raw(source string, payload map[string]any) domain.RawEvent {
	return domain.NewRawEvent(source, time.Now(), nil, payload)
}

func newTestDispatcher() *Dispatcher {
	return NewDispatcher(Options{
		Projects:    project.NewMapper([]project.Mapping{{Pattern: "acme", Project: "Acme"}}),
		SkipDomains: []string{"localhost", "bank."},
	})
}

func transformOne(t *testing.T, d *Dispatcher, r domain.RawEvent) (domain.TimelineEvent, bool) {
	t.Helper()
	events, _ := d.Transform([]domain.RawEvent{r})
	if len(events) == 0 {
		return domain.TimelineEvent{}, false
	}
	require.Len(t, events, 1)
	return events[0], true
}

func TestGitParser(t *testing.T) {
	d := newTestDispatcher()

	ev, ok := transformOne(t, d, raw(domain.SourceGit, map[string]any{
		"hash":         "abc123",
		"author_name":  "Dev",
		"author_email": "dev@example.com",
		"timestamp":    "2026-02-06T10:15:00+01:00",
		"subject":      "feat(ui): add user dashboard",
		"refs":         "HEAD -> main",
		"repo_name":    "acme-web",
		"repo_path":    "/src/acme-web",
		"files": []any{
			map[string]any{"path": "ui/dash.go", "insertions": float64(40), "deletions": float64(2)},
			map[string]any{"path": "README.md", "insertions": float64(3), "deletions": float64(0)},
		},
	}))
	require.True(t, ok)

	assert.Equal(t, time.Date(2026, 2, 6, 9, 15, 0, 0, time.UTC), ev.Timestamp)
	assert.Equal(t, "feature", ev.Category)
	assert.Equal(t, "add user dashboard", ev.Description)
	assert.Equal(t, "Acme", ev.Project)
	assert.Equal(t, 43, ev.Metadata["insertions"])
	assert.Equal(t, 2, ev.Metadata["deletions"])
	assert.Equal(t, []string{"ui/dash.go", "README.md"}, ev.Metadata["files_changed"])
	assert.Equal(t, "HEAD -> main", ev.Metadata["branch"])
	assert.NotEmpty(t, ev.Hash)
}

func TestGitParserFallbacks(t *testing.T) {
	d := newTestDispatcher()

	ev, ok := transformOne(t, d, raw(domain.SourceGit, map[string]any{
		"timestamp": "2026-02-06T10:15:00Z",
		"subject":   "update readme",
		"files":     []any{map[string]any{"path": "README.md"}},
	}))
	require.True(t, ok)
	assert.Equal(t, "docs", ev.Category)
	assert.Equal(t, "unknown", ev.Project)

	ev, ok = transformOne(t, d, raw(domain.SourceGit, map[string]any{
		"timestamp": "2026-02-06T10:15:00Z",
		"subject":   "update readme",
	}))
	require.True(t, ok)
	assert.Equal(t, "commit", ev.Category)
}

func TestShellParser(t *testing.T) {
	d := newTestDispatcher()

	ev, ok := transformOne(t, d, raw(domain.SourceShell, map[string]any{
		"timestamp": "2026-02-06T08:00:00Z",
		"command":   "  git status ",
		"cwd":       "/home/me/src/timeline",
		"shell":     "zsh",
		"pid":       float64(4242),
	}))
	require.True(t, ok)
	assert.Equal(t, "vcs", ev.Category)
	assert.Equal(t, "git status", ev.Description)
	assert.Equal(t, "timeline", ev.Project)
	assert.Equal(t, "4242", ev.Metadata["pid"])
}

func TestBrowserParser(t *testing.T) {
	d := newTestDispatcher()

	ev, ok := transformOne(t, d, raw(domain.SourceBrowser, map[string]any{
		"timestamp":   "2026-02-06T08:00:00Z",
		"url":         "https://github.com/acme/web/pull/1",
		"title":       "",
		"domain":      "github.com",
		"visit_count": float64(3),
	}))
	require.True(t, ok)
	assert.Equal(t, "development", ev.Category)
	assert.Equal(t, "github.com", ev.Description)
	assert.Empty(t, ev.Project)
	assert.Equal(t, 3, ev.Metadata["visit_count"])

	_, ok = transformOne(t, d, raw(domain.SourceBrowser, map[string]any{
		"timestamp": "2026-02-06T08:00:00Z",
		"domain":    "my.bank.example",
	}))
	assert.False(t, ok, "skip-domain match drops the visit")
}

func TestSessionParser(t *testing.T) {
	d := newTestDispatcher()

	tests := []struct {
		kind string
		want string
		ok   bool
	}{
		{"logon", "active", true},
		{"unlock", "active", true},
		{"logoff", "afk", true},
		{"lock", "afk", true},
		{"shutdown", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			ev, ok := transformOne(t, d, raw(domain.SourceSession, map[string]any{
				"timestamp":  "2026-02-06T08:00:00Z",
				"event_type": tt.kind,
			}))
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, ev.Category)
				assert.Equal(t, "Workstation "+tt.kind, ev.Description)
			}
		})
	}
}

func TestCalendarParser(t *testing.T) {
	d := newTestDispatcher()

	ev, ok := transformOne(t, d, raw(domain.SourceCalendar, map[string]any{
		"start":        "2026-02-06T09:00:00",
		"end":          "2026-02-06T09:30:00",
		"subject":      "Sprint planning",
		"mailbox":      "me@crayon.com",
		"organizer":    "Alex",
		"is_recurring": true,
		"body":         "<html><body><p>Agenda</p><p>Board review</p></body></html>",
	}))
	require.True(t, ok)
	assert.Equal(t, "calendar", ev.Category)
	assert.Equal(t, "Crayon", ev.Project)
	require.NotNil(t, ev.EndTime)
	assert.Equal(t, 30*time.Minute, ev.EndTime.Sub(ev.Timestamp))
	assert.Equal(t, true, ev.Metadata["is_recurring"])
	assert.Equal(t, "Agenda\nBoard review", ev.Metadata["body_text"])

	ev, ok = transformOne(t, d, raw(domain.SourceCalendar, map[string]any{
		"start_iso":     "2026-02-06T09:00:00Z",
		"end_iso":       "not a time",
		"subject":       "1:1",
		"account_email": "me@example.com",
	}))
	require.True(t, ok)
	assert.Equal(t, "me@example.com", ev.Project)
	assert.Nil(t, ev.EndTime)

	_, ok = transformOne(t, d, raw(domain.SourceCalendar, map[string]any{
		"start":   "2026-02-06T09:00:00Z",
		"subject": "  ",
	}))
	assert.False(t, ok)
}

func TestTransformDropsBadRecords(t *testing.T) {
	d := newTestDispatcher()

	raws := []domain.RawEvent{
		raw(domain.SourceShell, map[string]any{"timestamp": "garbage", "command": "ls"}),
		raw(domain.SourceShell, map[string]any{"command": "ls"}),
		raw(domain.SourceShell, map[string]any{"timestamp": "2026-02-06T08:00:00Z", "command": ""}),
		raw("fax", map[string]any{"timestamp": "2026-02-06T08:00:00Z"}),
		raw(domain.SourceShell, map[string]any{"timestamp": "2026-02-06T08:00:00Z", "command": "ls"}),
	}
	events, stats := d.Transform(raws)
	require.Len(t, events, 1)
	assert.Equal(t, "ls", events[0].Description)
	assert.Equal(t, 1, stats.Parsed)
	assert.Equal(t, 3, stats.Dropped[domain.SourceShell])
	assert.Equal(t, 1, stats.Unknown)
}

type panicParser struct{}

func (panicParser) Parse(domain.RawEvent) (domain.TimelineEvent, bool) { panic("boom") }

func TestTransformSurvivesParserPanic(t *testing.T) {
	d := newTestDispatcher()
	d.parsers[domain.SourceBrowser] = panicParser{}

	events, stats := d.Transform([]domain.RawEvent{
		raw(domain.SourceBrowser, map[string]any{"timestamp": "2026-02-06T08:00:00Z"}),
		raw(domain.SourceShell, map[string]any{"timestamp": "2026-02-06T08:00:00Z", "command": "ls"}),
	})
	require.Len(t, events, 1)
	assert.Equal(t, 1, stats.Dropped[domain.SourceBrowser])
}

func TestTransformIsDeterministic(t *testing.T) {
	d := newTestDispatcher()
	raws := []domain.RawEvent{
		raw(domain.SourceGit, map[string]any{"timestamp": "2026-02-06T10:00:00Z", "subject": "fix: x"}),
		raw(domain.SourceShell, map[string]any{"timestamp": "2026-02-06T10:01:00Z", "command": "make"}),
	}
	raws[0].ID, raws[1].ID = 1, 2

	first, _ := d.Transform(raws)
	second, _ := d.Transform(raws)
	assert.Equal(t, first, second)
	require.NotNil(t, first[0].RawEventID)
	assert.Equal(t, int64(1), *first[0].RawEventID)
}
