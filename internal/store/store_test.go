package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pbaille/timeline/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func day(y int, m time.Month, d int) domain.DateRange {
	return domain.ForDate(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

func rawAt(source string, ts time.Time, payload map[string]any) domain.RawEvent {
	return domain.NewRawEvent(source, time.Now(), &ts, payload)
}

func event(source string, ts time.Time, desc string) domain.TimelineEvent {
	e := domain.TimelineEvent{Timestamp: ts, Source: source, Category: "x", Description: desc}
	e.Seal()
	return e
}

func TestOpenCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "timeline.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.FileExists(t, path)
}

func TestOpenPathWithURICharacters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "odd?dir#1", "100%.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	n, err := s.SaveRaw(ctx, []domain.RawEvent{rawAt(domain.SourceGit, at(2026, 2, 6, 9, 0), map[string]any{"hash": "a"})})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, s.Close())
	assert.FileExists(t, path)

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	has, err := s.HasRaw(ctx, day(2026, 2, 6), domain.SourceGit)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestSaveRawDedup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	batch := []domain.RawEvent{
		rawAt(domain.SourceGit, at(2026, 2, 6, 9, 0), map[string]any{"hash": "a"}),
		rawAt(domain.SourceGit, at(2026, 2, 6, 10, 0), map[string]any{"hash": "b"}),
		rawAt(domain.SourceShell, at(2026, 2, 6, 11, 0), map[string]any{"command": "ls"}),
	}

	n, err := s.SaveRaw(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.SaveRaw(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Same payload collected later is still a duplicate.
	again := rawAt(domain.SourceGit, at(2026, 2, 6, 9, 0), map[string]any{"hash": "a"})
	again.CollectedAt = time.Now().Add(time.Hour)
	n, err = s.SaveRaw(ctx, []domain.RawEvent{again})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestGetRawRangeAndSource(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SaveRaw(ctx, []domain.RawEvent{
		rawAt(domain.SourceGit, at(2026, 2, 6, 10, 0), map[string]any{"hash": "b", "n": 2}),
		rawAt(domain.SourceGit, at(2026, 2, 6, 9, 0), map[string]any{"hash": "a", "n": 1}),
		rawAt(domain.SourceShell, at(2026, 2, 6, 11, 0), map[string]any{"command": "ls"}),
		rawAt(domain.SourceGit, at(2026, 2, 7, 0, 0), map[string]any{"hash": "next-day"}),
	})
	require.NoError(t, err)

	all, err := s.GetRaw(ctx, day(2026, 2, 6), "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].Payload["hash"])
	assert.Equal(t, float64(1), all[0].Payload["n"])

	git, err := s.GetRaw(ctx, day(2026, 2, 6), domain.SourceGit)
	require.NoError(t, err)
	assert.Len(t, git, 2)

	has, err := s.HasRaw(ctx, day(2026, 2, 5), domain.SourceGit)
	require.NoError(t, err)
	assert.False(t, has)

	has, err = s.HasRaw(ctx, day(2026, 2, 7), domain.SourceGit)
	require.NoError(t, err)
	assert.True(t, has)

	deleted, err := s.DeleteRaw(ctx, day(2026, 2, 6), domain.SourceGit)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	all, err = s.GetRaw(ctx, day(2026, 2, 6), "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestLatestCollectedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	latest, err := s.LatestCollectedAt(ctx, day(2026, 2, 6), domain.SourceBrowser)
	require.NoError(t, err)
	assert.Nil(t, latest)

	collected := time.Date(2026, 2, 6, 20, 0, 0, 0, time.UTC)
	ts := at(2026, 2, 6, 12, 0)
	_, err = s.SaveRaw(ctx, []domain.RawEvent{
		domain.NewRawEvent(domain.SourceBrowser, collected, &ts, map[string]any{"url": "https://go.dev"}),
		domain.NewRawEvent(domain.SourceBrowser, collected.Add(-time.Hour), &ts, map[string]any{"url": "https://pkg.go.dev"}),
	})
	require.NoError(t, err)

	latest, err = s.LatestCollectedAt(ctx, day(2026, 2, 6), domain.SourceBrowser)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, collected.Equal(*latest))
}

func TestEventsHalfOpenRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := day(2026, 2, 6)

	n, err := s.SaveEvents(ctx, []domain.TimelineEvent{
		event(domain.SourceGit, r.StartUTC(), "first instant"),
		event(domain.SourceGit, r.EndUTC().Add(-time.Microsecond), "last instant"),
		event(domain.SourceGit, r.EndUTC(), "next day"),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := s.GetEvents(ctx, r, EventQuery{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first instant", got[0].Description)
	assert.Equal(t, "last instant", got[1].Description)

	count, err := s.CountEvents(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSaveEventsDedupAndRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	end := at(2026, 2, 6, 10, 30)
	e := domain.TimelineEvent{
		Timestamp:   at(2026, 2, 6, 10, 0),
		EndTime:     &end,
		Source:      domain.SourceCalendar,
		Category:    "calendar",
		Description: "Standup",
		Project:     "Acme",
		Metadata:    map[string]any{"location": "Room 1"},
	}
	e.Seal()

	n, err := s.SaveEvents(ctx, []domain.TimelineEvent{e, e})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.GetEvents(ctx, day(2026, 2, 6), EventQuery{Project: "Acme"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, e.Hash, got[0].Hash)
	require.NotNil(t, got[0].EndTime)
	assert.True(t, end.Equal(*got[0].EndTime))
	assert.Equal(t, "Room 1", got[0].Metadata["location"])
	assert.Nil(t, got[0].RawEventID)
}

func TestGetEventsFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := day(2026, 2, 6)

	_, err := s.SaveEvents(ctx, []domain.TimelineEvent{
		event(domain.SourceGit, at(2026, 2, 6, 9, 0), "commit"),
		event(domain.SourceShell, at(2026, 2, 6, 9, 5), "ls"),
		event(domain.SourceBrowser, at(2026, 2, 6, 9, 10), "docs"),
	})
	require.NoError(t, err)

	tests := []struct {
		name    string
		include []string
		exclude []string
		want    []string
	}{
		{name: "no filter", want: []string{"git", "shell", "browser"}},
		{name: "include git", include: []string{"git"}, want: []string{"git"}},
		{name: "exclude git", exclude: []string{"git"}, want: []string{"shell", "browser"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := domain.NewSourceFilter(tt.include, tt.exclude)
			require.NoError(t, err)
			got, err := s.GetEvents(ctx, r, EventQuery{Filter: f})
			require.NoError(t, err)
			var sources []string
			for _, e := range got {
				sources = append(sources, e.Source)
			}
			assert.Equal(t, tt.want, sources)
		})
	}

	f, _ := domain.NewSourceFilter([]string{"git"}, nil)
	_, err = s.GetEvents(ctx, r, EventQuery{Source: "git", Filter: f})
	assert.Error(t, err)
}

func TestDeleteEventsBySource(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := day(2026, 2, 6)

	_, err := s.SaveEvents(ctx, []domain.TimelineEvent{
		event(domain.SourceGit, at(2026, 2, 6, 9, 0), "commit"),
		event(domain.SourceShell, at(2026, 2, 6, 9, 5), "ls"),
	})
	require.NoError(t, err)

	n, err := s.DeleteEvents(ctx, r, domain.SourceShell)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.DeleteEvents(ctx, r, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSummaries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mk := func(r domain.DateRange, p domain.PeriodType, text string) domain.Summary {
		return domain.Summary{Start: r.Start, End: r.End, Period: p, Text: text, Model: "test"}
	}

	feb5, feb6 := day(2026, 2, 5), day(2026, 2, 6)
	require.NoError(t, s.SaveSummary(ctx, mk(feb5, domain.PeriodDay, "thursday")))
	require.NoError(t, s.SaveSummary(ctx, mk(feb6, domain.PeriodDay, "friday v1")))
	require.NoError(t, s.SaveSummary(ctx, mk(feb6, domain.PeriodDay, "friday v2")))

	got, err := s.GetSummary(ctx, feb6, domain.PeriodDay)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "friday v2", got.Text)
	assert.Equal(t, feb6, got.Range())

	missing, err := s.GetSummary(ctx, feb6, domain.PeriodWeek)
	require.NoError(t, err)
	assert.Nil(t, missing)

	week := domain.ForWeek(2026, 6)
	all, err := s.GetSummaries(ctx, week, domain.PeriodDay)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "thursday", all[0].Text)

	prev, err := s.GetPreviousSummary(ctx, feb6, domain.PeriodDay)
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, "thursday", prev.Text)

	none, err := s.GetPreviousSummary(ctx, feb5, domain.PeriodDay)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestReset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := day(2026, 2, 6)

	_, err := s.SaveRaw(ctx, []domain.RawEvent{rawAt(domain.SourceGit, at(2026, 2, 6, 9, 0), map[string]any{"hash": "a"})})
	require.NoError(t, err)
	_, err = s.SaveEvents(ctx, []domain.TimelineEvent{event(domain.SourceGit, at(2026, 2, 6, 9, 0), "commit")})
	require.NoError(t, err)
	require.NoError(t, s.SaveSummary(ctx, domain.Summary{Start: r.Start, End: r.End, Period: domain.PeriodDay, Text: "x"}))

	require.NoError(t, s.Reset(ctx))

	n, err := s.CountEvents(ctx, r)
	require.NoError(t, err)
	assert.Zero(t, n)
	has, err := s.HasRaw(ctx, r, "")
	require.NoError(t, err)
	assert.False(t, has)
	sum, err := s.GetSummary(ctx, r, domain.PeriodDay)
	require.NoError(t, err)
	assert.Nil(t, sum)
}
