package pipeline

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pbaille/timeline/internal/collector"
	"github.com/pbaille/timeline/internal/domain"
	"github.com/pbaille/timeline/internal/export"
	"github.com/pbaille/timeline/internal/metrics"
	"github.com/pbaille/timeline/internal/store"
	"github.com/pbaille/timeline/internal/summarizer"
	"github.com/pbaille/timeline/internal/transform"
)

type fakeCollector struct {
	source  string
	policy  collector.Policy
	err     error
	calls   []domain.DateRange
	onCall  func()
	records func(r domain.DateRange) []domain.RawEvent
}

func (f *fakeCollector) Source() string           { return f.source }
func (f *fakeCollector) Policy() collector.Policy { return f.policy }

func (f *fakeCollector) Collect(_ context.Context, r domain.DateRange) ([]domain.RawEvent, error) {
	f.calls = append(f.calls, r)
	if f.onCall != nil {
		f.onCall()
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.records == nil {
		return nil, nil
	}
	return f.records(r), nil
}

// shellAtNoon reports one command at noon of every requested day.
func shellAtNoon(command string) func(domain.DateRange) []domain.RawEvent {
	return func(r domain.DateRange) []domain.RawEvent {
		var out []domain.RawEvent
		for day := range r.EachDay() {
			ts := day.Start.Add(12 * time.Hour)
			out = append(out, domain.NewRawEvent(domain.SourceShell, time.Now(), &ts, map[string]any{
				"timestamp": ts.Format(time.RFC3339),
				"command":   command,
				"cwd":       "/src/timeline",
			}))
		}
		return out
	}
}

func calendarEntry(r domain.DateRange) []domain.RawEvent {
	ts := r.Start.Add(9 * time.Hour)
	return []domain.RawEvent{domain.NewRawEvent(domain.SourceCalendar, time.Now(), &ts, map[string]any{
		"start":   ts.Format(time.RFC3339),
		"subject": "Standup",
	})}
}

type fakeBackend struct {
	reply string
	err   error
	calls int
}

func (f *fakeBackend) Complete(context.Context, string, string) (string, error) {
	f.calls++
	return f.reply, f.err
}

type fixture struct {
	p       *Pipeline
	store   *store.Store
	metrics *metrics.Metrics
	logs    *observer.ObservedLogs
	out     *bytes.Buffer
}

func newFixture(t *testing.T, sum *summarizer.Summarizer, collectors ...collector.Collector) *fixture {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	core, logs := observer.New(zap.DebugLevel)
	m := metrics.New()
	out := &bytes.Buffer{}
	p := New(Options{
		Store:      s,
		Collectors: collectors,
		Dispatcher: transform.NewDispatcher(transform.Options{}),
		Summarizer: sum,
		Exporters:  []export.Exporter{export.Terminal{}},
		Output:     out,
		Logger:     zap.New(core),
		Metrics:    m,
	})
	return &fixture{p: p, store: s, metrics: m, logs: logs, out: out}
}

func days(t *testing.T, from, to int) domain.DateRange {
	t.Helper()
	r, err := domain.NewDateRange(time.Date(2026, 2, from, 0, 0, 0, 0, time.UTC), time.Date(2026, 2, to, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return r
}

func plainDisplay() export.Display {
	return export.Display{GroupBy: export.GroupFlat, Location: time.UTC, LunchBoundary: "12:00", Color: export.ColorNever}
}

func TestCollectCheapAlwaysRuns(t *testing.T) {
	shell := &fakeCollector{source: domain.SourceShell, policy: collector.CheapPolicy, records: shellAtNoon("make")}
	f := newFixture(t, nil, shell)
	r := days(t, 6, 6)

	res, err := f.p.Collect(context.Background(), r, false)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, 1, res[0].Found)
	assert.Equal(t, 1, res[0].Inserted)

	res, err = f.p.Collect(context.Background(), r, false)
	require.NoError(t, err)
	assert.Equal(t, collector.Collect, res[0].Decision)
	assert.Equal(t, 0, res[0].Inserted, "duplicates are ignored")
	assert.Len(t, shell.calls, 2)
}

func TestCollectExpensiveCache(t *testing.T) {
	cal := &fakeCollector{source: domain.SourceCalendar, policy: collector.ExpensivePolicy(24 * time.Hour), records: calendarEntry}
	f := newFixture(t, nil, cal)
	r := days(t, 6, 6)
	ctx := context.Background()

	res, err := f.p.Collect(ctx, r, false)
	require.NoError(t, err)
	assert.Equal(t, collector.Collect, res[0].Decision)

	res, err = f.p.Collect(ctx, r, false)
	require.NoError(t, err)
	assert.Equal(t, collector.Reuse, res[0].Decision)
	assert.Len(t, cal.calls, 1)
	hits, err := testutil.GatherAndCount(f.metrics.Registry, "timeline_collector_cache_hits_total")
	require.NoError(t, err)
	assert.Equal(t, 1, hits)

	res, err = f.p.Collect(ctx, r, true)
	require.NoError(t, err)
	assert.Equal(t, collector.Refetch, res[0].Decision)
	assert.Equal(t, 1, res[0].Cleared)
	assert.Equal(t, 1, res[0].Inserted)
	assert.Len(t, cal.calls, 2)

	// Past the TTL the cache is refetched without a refresh request.
	f.p.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	res, err = f.p.Collect(ctx, r, false)
	require.NoError(t, err)
	assert.Equal(t, collector.Refetch, res[0].Decision)
	assert.Len(t, cal.calls, 3)
}

func TestCollectExpensiveWithoutTTL(t *testing.T) {
	cal := &fakeCollector{source: domain.SourceCalendar, policy: collector.ExpensivePolicy(0), records: calendarEntry}
	f := newFixture(t, nil, cal)
	ctx := context.Background()

	res, err := f.p.Collect(ctx, days(t, 6, 6), false)
	require.NoError(t, err)
	assert.Equal(t, collector.Collect, res[0].Decision)

	// Stored data never goes stale without a TTL.
	f.p.now = func() time.Time { return time.Now().AddDate(1, 0, 0) }
	res, err = f.p.Collect(ctx, days(t, 6, 6), false)
	require.NoError(t, err)
	assert.Equal(t, collector.Reuse, res[0].Decision)
	assert.Len(t, cal.calls, 1)

	// A day with nothing stored is collected.
	res, err = f.p.Collect(ctx, days(t, 7, 7), false)
	require.NoError(t, err)
	assert.Equal(t, collector.Collect, res[0].Decision)
	assert.Len(t, cal.calls, 2)
}

func TestCollectIsolatesFailures(t *testing.T) {
	broken := &fakeCollector{source: domain.SourceBrowser, policy: collector.CheapPolicy, err: errors.New("database is locked")}
	shell := &fakeCollector{source: domain.SourceShell, policy: collector.CheapPolicy, records: shellAtNoon("ls")}
	f := newFixture(t, nil, broken, shell)

	res, err := f.p.Collect(context.Background(), days(t, 6, 6), false)
	require.NoError(t, err)
	require.Len(t, res, 2)

	var failure *domain.CollectionFailure
	require.True(t, errors.As(res[0].Err, &failure))
	assert.Equal(t, domain.SourceBrowser, failure.Source)
	assert.Equal(t, 1, res[1].Inserted)
	assert.Equal(t, 1, f.logs.FilterMessage("collector failed").Len())

	failures, err := testutil.GatherAndCount(f.metrics.Registry, "timeline_collector_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, failures)
}

func TestStageDuringCollect(t *testing.T) {
	c := &fakeCollector{source: domain.SourceShell, policy: collector.CheapPolicy}
	f := newFixture(t, nil, c)
	var seen Stage
	c.onCall = func() { seen = f.p.Stage() }

	_, err := f.p.Collect(context.Background(), days(t, 6, 6), false)
	require.NoError(t, err)
	assert.Equal(t, Collecting, seen)
	assert.Equal(t, Idle, f.p.Stage())
}

func TestTransformIsDeterministic(t *testing.T) {
	shell := &fakeCollector{source: domain.SourceShell, policy: collector.CheapPolicy, records: shellAtNoon("git status")}
	f := newFixture(t, nil, shell)
	r := days(t, 5, 7)
	ctx := context.Background()

	_, err := f.p.Collect(ctx, r, false)
	require.NoError(t, err)
	_, err = f.store.SaveRaw(ctx, []domain.RawEvent{domain.NewRawEvent("unknown", time.Now(), ptr(r.Start.Add(time.Hour)), map[string]any{"x": 1})})
	require.NoError(t, err)

	first, err := f.p.Transform(ctx, r)
	require.NoError(t, err)
	firstEvents, err := f.store.GetEvents(ctx, r, store.EventQuery{})
	require.NoError(t, err)

	second, err := f.p.Transform(ctx, r)
	require.NoError(t, err)
	secondEvents, err := f.store.GetEvents(ctx, r, store.EventQuery{})
	require.NoError(t, err)

	assert.Equal(t, 3, first.Events)
	assert.Equal(t, 4, first.Raw)
	assert.Equal(t, 1, first.Dropped)
	assert.Equal(t, first, second)
	require.Len(t, secondEvents, len(firstEvents))
	for i := range firstEvents {
		assert.Equal(t, firstEvents[i].Hash, secondEvents[i].Hash)
		assert.Equal(t, "vcs", secondEvents[i].Category)
	}
}

func ptr(t time.Time) *time.Time { return &t }

func TestSummarizeDay(t *testing.T) {
	backend := &fakeBackend{reply: "Worked on the timeline."}
	sum := summarizer.NewWithBackend(backend, "test-model", time.UTC, nil)
	shell := &fakeCollector{source: domain.SourceShell, policy: collector.CheapPolicy, records: shellAtNoon("go test ./...")}
	f := newFixture(t, sum, shell)
	r := days(t, 6, 6)
	ctx := context.Background()

	got, err := f.p.Summarize(ctx, r, domain.PeriodDay, false)
	require.NoError(t, err)
	assert.Nil(t, got, "no events yet")
	assert.Equal(t, 0, backend.calls)

	_, err = f.p.Collect(ctx, r, false)
	require.NoError(t, err)
	_, err = f.p.Transform(ctx, r)
	require.NoError(t, err)

	got, err = f.p.Summarize(ctx, r, domain.PeriodDay, false)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Worked on the timeline.", got.Text)

	cached, err := f.p.Summarize(ctx, r, domain.PeriodDay, false)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, 1, backend.calls, "existing summary is reused")

	backend.reply = "Rewritten."
	refreshed, err := f.p.Summarize(ctx, r, domain.PeriodDay, true)
	require.NoError(t, err)
	assert.Equal(t, "Rewritten.", refreshed.Text)

	stored, err := f.store.GetSummary(ctx, r, domain.PeriodDay)
	require.NoError(t, err)
	assert.Equal(t, "Rewritten.", stored.Text)
}

func TestSummarizeWeek(t *testing.T) {
	backend := &fakeBackend{reply: "A good week."}
	f := newFixture(t, summarizer.NewWithBackend(backend, "", time.UTC, nil))
	ctx := context.Background()
	week := domain.ForWeek(2026, 6)

	for d := range week.EachDay() {
		if d.Start.Weekday() == time.Saturday || d.Start.Weekday() == time.Sunday {
			continue
		}
		require.NoError(t, f.store.SaveSummary(ctx, domain.Summary{
			Start: d.Start, End: d.End, Period: domain.PeriodDay, Text: "day", CreatedAt: time.Now(),
		}))
	}

	got, err := f.p.Summarize(ctx, week, domain.PeriodWeek, false)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.PeriodWeek, got.Period)
	assert.Equal(t, week.Start, got.Start)
	assert.Equal(t, week.End, got.End)

	_, err = f.p.Summarize(ctx, week, domain.PeriodMonth, true)
	var argErr *domain.ArgumentError
	assert.True(t, errors.As(err, &argErr))
}

func TestSummarizeDisabled(t *testing.T) {
	f := newFixture(t, nil)
	got, err := f.p.Summarize(context.Background(), days(t, 6, 6), domain.PeriodDay, true)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRunExportsDespiteSummaryFailure(t *testing.T) {
	backend := &fakeBackend{err: errors.New("claude exited 1")}
	shell := &fakeCollector{source: domain.SourceShell, policy: collector.CheapPolicy, records: shellAtNoon("docker compose up -d")}
	f := newFixture(t, summarizer.NewWithBackend(backend, "", time.UTC, nil), shell)

	err := f.p.Run(context.Background(), days(t, 6, 6), RunOptions{Display: plainDisplay()})
	require.NoError(t, err)
	assert.Equal(t, 1, backend.calls)
	assert.Contains(t, f.out.String(), "[shell] timeline - docker compose up -d [infra]")
	assert.NotContains(t, f.out.String(), "Summary")
	assert.Equal(t, Idle, f.p.Stage())
}

func TestRunQuickSkipsSummary(t *testing.T) {
	backend := &fakeBackend{reply: "x"}
	shell := &fakeCollector{source: domain.SourceShell, policy: collector.CheapPolicy, records: shellAtNoon("make")}
	f := newFixture(t, summarizer.NewWithBackend(backend, "", time.UTC, nil), shell)

	filter, err := domain.NewSourceFilter(nil, []string{"shell"})
	require.NoError(t, err)
	require.NoError(t, f.p.Run(context.Background(), days(t, 6, 6), RunOptions{Quick: true, Filter: filter, Display: plainDisplay()}))
	assert.Equal(t, 0, backend.calls)
	assert.Contains(t, f.out.String(), "(no events)")
	assert.Contains(t, f.out.String(), "Excluding: shell")
}
