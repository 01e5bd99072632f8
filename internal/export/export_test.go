package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbaille/timeline/internal/config"
	"github.com/pbaille/timeline/internal/domain"
)

var feb6 = domain.ForDate(time.Date(2026, 2, 6, 0, 0, 0, 0, time.UTC))

func plain(groupBy string) Display {
	return Display{GroupBy: groupBy, Location: time.UTC, LunchBoundary: "12:00", Color: ColorNever}
}

func sample() []domain.TimelineEvent {
	return []domain.TimelineEvent{
		{
			Timestamp:   time.Date(2026, 2, 6, 8, 5, 0, 0, time.UTC),
			Source:      domain.SourceGit,
			Category:    "feature",
			Description: "add weekly summaries",
			Project:     "Timeline",
			Metadata:    map[string]any{"insertions": 42, "deletions": float64(3)},
		},
		{
			Timestamp:   time.Date(2026, 2, 6, 10, 40, 0, 0, time.UTC),
			Source:      domain.SourceGit,
			Category:    "commit",
			Description: "misc",
			Project:     "Dotfiles",
		},
		{
			Timestamp:   time.Date(2026, 2, 6, 13, 30, 0, 0, time.UTC),
			Source:      domain.SourceShell,
			Category:    "test",
			Description: "go test\n./...",
		},
	}
}

func render(t *testing.T, events []domain.TimelineEvent, summary *domain.Summary, d Display, filter *domain.SourceFilter) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Terminal{}.Export(&buf, events, summary, feb6, d, filter))
	return buf.String()
}

func TestTerminalFlat(t *testing.T) {
	out := render(t, sample(), nil, plain(GroupFlat), nil)

	assert.True(t, strings.HasPrefix(out, "\n  2026-02-06 - Friday\n  ===================\n"), out)
	assert.Contains(t, out, "  First activity: 08:05  Last activity: 13:30\n")
	assert.Contains(t, out, "  Projects: Dotfiles, Timeline\n")
	assert.Contains(t, out, "    08:05  [git] Timeline - add weekly summaries (+42/-3) [feature]\n")
	assert.Contains(t, out, "    10:40  [git] Dotfiles - misc\n", "commit category has no badge")
	assert.Contains(t, out, "    13:30  [shell] unknown - go test ./... [test]\n")
	assert.NotContains(t, out, "\x1b[", "no escape codes with color never")
}

func TestTerminalLocalTime(t *testing.T) {
	d := plain(GroupFlat)
	loc, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	d.Location = loc

	out := render(t, sample()[:1], nil, d, nil)
	assert.Contains(t, out, "    09:05  [git]")
}

func TestTerminalEmpty(t *testing.T) {
	for _, g := range []string{GroupFlat, GroupHour, GroupPeriod} {
		t.Run(g, func(t *testing.T) {
			out := render(t, nil, nil, plain(g), nil)
			assert.Contains(t, out, "  (no events)\n")
			assert.NotContains(t, out, "First activity")
		})
	}
}

func TestTerminalByHour(t *testing.T) {
	out := render(t, sample(), nil, plain(GroupHour), nil)

	assert.Contains(t, out, "  08:00 ----------------------------------------\n    08:05  [git] Timeline")
	assert.Contains(t, out, "  09:00 ----------------------------------------\n    (no activity)\n")
	assert.Contains(t, out, "  13:00 ----------------------------------------\n    13:30  [shell]")
	assert.NotContains(t, out, "14:00")
}

func TestTerminalByPeriod(t *testing.T) {
	out := render(t, sample(), nil, plain(GroupPeriod), nil)

	morning := strings.Index(out, "Morning (before 12:00)")
	afternoon := strings.Index(out, "Afternoon (after 12:00)")
	require.True(t, morning >= 0 && afternoon > morning, out)
	assert.Less(t, strings.Index(out, "10:40  [git]"), afternoon)
	assert.Greater(t, strings.Index(out, "13:30  [shell]"), afternoon)

	d := plain(GroupPeriod)
	d.LunchBoundary = "noon"
	var buf bytes.Buffer
	err := Terminal{}.Export(&buf, sample(), nil, feb6, d, nil)
	var argErr *domain.ArgumentError
	assert.True(t, errors.As(err, &argErr))
}

func TestTerminalFilterAndSummary(t *testing.T) {
	filter, err := domain.NewSourceFilter([]string{"git", "shell"}, nil)
	require.NoError(t, err)
	summary := &domain.Summary{Text: "Shipped summaries.\nFixed tests."}

	out := render(t, sample(), summary, plain(GroupFlat), filter)
	assert.Contains(t, out, "  Showing: git, shell only\n")
	assert.Contains(t, out, "  Summary\n")
	assert.Contains(t, out, "  Shipped summaries.\n  Fixed tests.\n")

	exclude, err := domain.NewSourceFilter(nil, []string{"browser"})
	require.NoError(t, err)
	out = render(t, sample(), nil, plain(GroupFlat), exclude)
	assert.Contains(t, out, "  Excluding: browser\n")
}

func TestTerminalMultiDayHeader(t *testing.T) {
	r, err := domain.NewDateRange(feb6.Start, feb6.Start.AddDate(0, 0, 2))
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, Terminal{}.Export(&buf, nil, nil, r, plain(GroupFlat), nil))
	assert.Contains(t, buf.String(), "  2026-02-06 to 2026-02-08\n")
}

func TestJSON(t *testing.T) {
	filter, err := domain.NewSourceFilter(nil, []string{"shell"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, JSON{}.Export(&buf, sample()[:1], &domain.Summary{Text: "ok", Period: domain.PeriodDay}, feb6, plain(""), filter))

	var doc struct {
		Start  string `json:"start"`
		End    string `json:"end"`
		Filter struct {
			Mode    string   `json:"mode"`
			Sources []string `json:"sources"`
		} `json:"filter"`
		Events  []map[string]any `json:"events"`
		Summary map[string]any   `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "2026-02-06", doc.Start)
	assert.Equal(t, "exclude", doc.Filter.Mode)
	assert.Equal(t, []string{"shell"}, doc.Filter.Sources)
	require.Len(t, doc.Events, 1)
	assert.Equal(t, "git", doc.Events[0]["source"])
	assert.Equal(t, "ok", doc.Summary["summary"])

	buf.Reset()
	require.NoError(t, JSON{}.Export(&buf, nil, nil, feb6, plain(""), nil))
	assert.Contains(t, buf.String(), `"events": []`)
	assert.NotContains(t, buf.String(), "summary")
}

func TestDisplay(t *testing.T) {
	cfg := config.Default()
	cfg.Exporters.Stdout.GroupBy = GroupHour
	d, err := DisplayFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, GroupHour, d.GroupBy)

	changed := d.WithGroupBy(GroupPeriod).WithColor(ColorAlways)
	assert.Equal(t, GroupHour, d.GroupBy, "original is unchanged")
	assert.Equal(t, GroupPeriod, changed.GroupBy)
	assert.Equal(t, ColorAlways, changed.Color)
	assert.Equal(t, GroupHour, d.WithGroupBy("").GroupBy)

	assert.NoError(t, changed.Validate())
	assert.Error(t, d.WithGroupBy("daily").Validate())
}

func TestNew(t *testing.T) {
	e, err := New("")
	require.NoError(t, err)
	assert.IsType(t, Terminal{}, e)
	e, err = New(FormatJSON)
	require.NoError(t, err)
	assert.IsType(t, JSON{}, e)
	_, err = New("csv")
	assert.Error(t, err)
}
