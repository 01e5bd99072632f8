// Package pipeline sequences collect, transform, summarize and export over a
// date range, and drives day-by-day backfill.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/pbaille/timeline/internal/collector"
	"github.com/pbaille/timeline/internal/domain"
	"github.com/pbaille/timeline/internal/export"
	"github.com/pbaille/timeline/internal/metrics"
	"github.com/pbaille/timeline/internal/store"
	"github.com/pbaille/timeline/internal/summarizer"
	"github.com/pbaille/timeline/internal/transform"
)

// Stage is the step the pipeline is currently running.
type Stage int

const (
	Idle Stage = iota
	Collecting
	Transforming
	Summarizing
	Exporting
)

func (s Stage) String() string {
	switch s {
	case Collecting:
		return "collecting"
	case Transforming:
		return "transforming"
	case Summarizing:
		return "summarizing"
	case Exporting:
		return "exporting"
	default:
		return "idle"
	}
}

// Options wire a Pipeline. Store and Dispatcher are required; a nil
// Summarizer disables summaries.
type Options struct {
	Store      *store.Store
	Collectors []collector.Collector
	Dispatcher *transform.Dispatcher
	Summarizer *summarizer.Summarizer
	Exporters  []export.Exporter
	Output     io.Writer
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	Now        func() time.Time
}

type Pipeline struct {
	store      *store.Store
	collectors []collector.Collector
	dispatcher *transform.Dispatcher
	summarizer *summarizer.Summarizer
	exporters  []export.Exporter
	out        io.Writer
	logger     *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
	stage      Stage
}

func New(opts Options) *Pipeline {
	p := &Pipeline{
		store:      opts.Store,
		collectors: opts.Collectors,
		dispatcher: opts.Dispatcher,
		summarizer: opts.Summarizer,
		exporters:  opts.Exporters,
		out:        opts.Output,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		now:        opts.Now,
	}
	if p.out == nil {
		p.out = os.Stdout
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Stage reports the running stage.
func (p *Pipeline) Stage() Stage { return p.stage }

func (p *Pipeline) enter(s Stage) func() {
	p.stage = s
	return func() { p.stage = Idle }
}

// SourceResult is the outcome of one collector in a Collect call.
type SourceResult struct {
	Source   string
	Decision collector.Decision
	Found    int
	Inserted int
	Cleared  int
	Err      error // collector failure; never a storage error
}

// Collect runs every collector for r and stores the raw records. Expensive
// collectors reuse cached data unless refresh is set or the cache expired.
// Collector failures are recorded in the results; only storage errors are
// returned.
func (p *Pipeline) Collect(ctx context.Context, r domain.DateRange, refresh bool) ([]SourceResult, error) {
	defer p.enter(Collecting)()

	results := make([]SourceResult, 0, len(p.collectors))
	for _, c := range p.collectors {
		res, err := p.collectOne(ctx, c, r, refresh, true)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (p *Pipeline) collectOne(ctx context.Context, c collector.Collector, r domain.DateRange, refresh, useCache bool) (SourceResult, error) {
	source := c.Source()
	res := SourceResult{Source: source, Decision: collector.Collect}
	log := p.logger.With(zap.String("source", source), zap.Stringer("range", r))

	if useCache && c.Policy().Cost == collector.Expensive {
		decision, err := p.cacheDecision(ctx, c.Policy(), r, source, refresh)
		if err != nil {
			return res, err
		}
		res.Decision = decision
	}

	switch res.Decision {
	case collector.Reuse:
		log.Info("using cached data", zap.String("hint", "use --refresh to re-collect"))
		p.metrics.CacheHit(source)
		return res, nil
	case collector.Refetch:
		n, err := p.store.DeleteRaw(ctx, r, source)
		if err != nil {
			return res, err
		}
		res.Cleared = n
		if n > 0 {
			log.Info("cleared cached records", zap.Int("count", n))
		}
	}

	start := time.Now()
	raws, err := collector.Guard(ctx, c, r)
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		log.Warn("collector failed", zap.Error(err))
		p.metrics.CollectorFailed(source)
		res.Err = err
		return res, nil
	}

	inserted, err := p.store.SaveRaw(ctx, raws)
	if err != nil {
		return res, err
	}
	res.Found, res.Inserted = len(raws), inserted
	p.metrics.Collected(source, len(raws), inserted, time.Since(start))
	log.Info("collected", zap.Int("found", len(raws)), zap.Int("new", inserted))
	return res, nil
}

// cacheDecision applies policy to what the store holds for source in r. The
// collection time is only looked up when the policy has a TTL.
func (p *Pipeline) cacheDecision(ctx context.Context, policy collector.Policy, r domain.DateRange, source string, refresh bool) (collector.Decision, error) {
	now := p.now()
	has, err := p.store.HasRaw(ctx, r, source)
	if err != nil {
		return collector.Collect, err
	}
	if !has {
		return policy.Decide(nil, now, refresh), nil
	}
	cachedAt := &now
	if policy.TTL > 0 {
		if cachedAt, err = p.store.LatestCollectedAt(ctx, r, source); err != nil {
			return collector.Collect, err
		}
	}
	return policy.Decide(cachedAt, now, refresh), nil
}

// TransformResult counts one Transform call.
type TransformResult struct {
	Raw     int
	Events  int
	Dropped int
}

// Transform recomputes every timeline event of r from the stored raw
// records.
func (p *Pipeline) Transform(ctx context.Context, r domain.DateRange) (TransformResult, error) {
	defer p.enter(Transforming)()

	if _, err := p.store.DeleteEvents(ctx, r, ""); err != nil {
		return TransformResult{}, err
	}
	raws, err := p.store.GetRaw(ctx, r, "")
	if err != nil {
		return TransformResult{}, err
	}

	events, stats := p.dispatcher.Transform(raws)
	n, err := p.store.SaveEvents(ctx, events)
	if err != nil {
		return TransformResult{}, err
	}

	perSource := map[string]int{}
	for _, e := range events {
		perSource[e.Source]++
	}
	for source, count := range perSource {
		p.metrics.Transformed(source, count)
	}
	dropped := stats.Unknown
	for source, count := range stats.Dropped {
		p.metrics.Dropped(source, count)
		dropped += count
	}

	p.logger.Info("transformed", zap.Stringer("range", r), zap.Int("raw", len(raws)), zap.Int("events", n), zap.Int("dropped", dropped))
	return TransformResult{Raw: len(raws), Events: n, Dropped: dropped}, nil
}

// Summarize produces the summary of r for period. An existing summary is
// returned as is unless refresh is set. It returns nil when summaries are
// disabled or nothing could be generated.
func (p *Pipeline) Summarize(ctx context.Context, r domain.DateRange, period domain.PeriodType, refresh bool) (*domain.Summary, error) {
	defer p.enter(Summarizing)()

	if p.summarizer == nil {
		p.logger.Debug("summarization disabled")
		return nil, nil
	}
	if !refresh {
		existing, err := p.store.GetSummary(ctx, r, period)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			p.logger.Info("summary cached", zap.String("period", string(period)), zap.String("hint", "use --refresh to regenerate"))
			return existing, nil
		}
	}

	var (
		summary *domain.Summary
		inputs  int
	)
	switch period {
	case domain.PeriodDay:
		events, err := p.store.GetEvents(ctx, r, store.EventQuery{})
		if err != nil {
			return nil, err
		}
		previous, err := p.store.GetPreviousSummary(ctx, r, domain.PeriodDay)
		if err != nil {
			return nil, err
		}
		inputs = len(events)
		summary = p.summarizer.SummarizeDay(ctx, events, r, previous)
	case domain.PeriodWeek:
		dailies, err := p.store.GetSummaries(ctx, r, domain.PeriodDay)
		if err != nil {
			return nil, err
		}
		previous, err := p.store.GetPreviousSummary(ctx, r, domain.PeriodWeek)
		if err != nil {
			return nil, err
		}
		inputs = len(dailies)
		summary = p.summarizer.SummarizeWeek(ctx, dailies, r, previous)
	default:
		return nil, &domain.ArgumentError{Arg: "period", Msg: fmt.Sprintf("%s summaries are not supported", period)}
	}

	if summary == nil {
		if inputs > 0 {
			p.metrics.SummaryFailed()
		} else {
			p.logger.Info("nothing to summarize", zap.String("period", string(period)), zap.Stringer("range", r))
		}
		return nil, nil
	}
	if err := p.store.SaveSummary(ctx, *summary); err != nil {
		return nil, err
	}
	p.metrics.SummaryGenerated(string(period))
	p.logger.Info("summary generated", zap.String("period", string(period)), zap.Stringer("range", r))
	return summary, nil
}

// ShowOptions select what Show renders. The zero value shows every source
// with the daily summary.
type ShowOptions struct {
	Filter  *domain.SourceFilter
	Display export.Display
	Period  domain.PeriodType
}

// Show renders the stored events and summary of r through every exporter.
func (p *Pipeline) Show(ctx context.Context, r domain.DateRange, opts ShowOptions) error {
	defer p.enter(Exporting)()

	events, err := p.store.GetEvents(ctx, r, store.EventQuery{Filter: opts.Filter})
	if err != nil {
		return err
	}
	period := opts.Period
	if period == "" {
		period = domain.PeriodDay
	}
	summary, err := p.store.GetSummary(ctx, r, period)
	if err != nil {
		return err
	}

	for _, e := range p.exporters {
		if err := e.Export(p.out, events, summary, r, opts.Display, opts.Filter); err != nil {
			return fmt.Errorf("export: %w", err)
		}
	}
	return nil
}

// RunOptions configure a full Run.
type RunOptions struct {
	Quick   bool // skip summarization
	Refresh bool
	Filter  *domain.SourceFilter
	Display export.Display
}

// Run collects, transforms, summarizes unless quick, then shows r. A failed
// summary is logged and the export still runs.
func (p *Pipeline) Run(ctx context.Context, r domain.DateRange, opts RunOptions) error {
	if _, err := p.Collect(ctx, r, opts.Refresh); err != nil {
		return err
	}
	if _, err := p.Transform(ctx, r); err != nil {
		return err
	}
	if !opts.Quick {
		if _, err := p.Summarize(ctx, r, domain.PeriodDay, opts.Refresh); err != nil {
			p.logger.Warn("summarize failed", zap.Error(err))
		}
	}
	if err := p.Show(ctx, r, ShowOptions{Filter: opts.Filter, Display: opts.Display}); err != nil {
		return err
	}
	p.metrics.MarkRun(p.now())
	return nil
}
