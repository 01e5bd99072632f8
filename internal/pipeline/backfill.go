package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/pbaille/timeline/internal/collector"
	"github.com/pbaille/timeline/internal/domain"
)

// BackfillOptions configure Backfill.
type BackfillOptions struct {
	// Force re-collects days that already have events.
	Force bool
	// IncludeExpensive lets expensive collectors run.
	IncludeExpensive bool
	// Summarize writes a daily summary for every collected day.
	Summarize bool
	// Progress, when set, is called after each day.
	Progress func(DayReport)
}

// DayReport is the outcome of one backfilled day.
type DayReport struct {
	Day    domain.DateRange
	Index  int // 1-based
	Total  int
	Events int
	Cached bool // skipped because events already existed
}

// BackfillReport totals a Backfill call.
type BackfillReport struct {
	Days      int
	Skipped   int
	Collected int
	Events    int
}

// Backfill walks r one day at a time in order. A day with events is skipped
// unless Force is set; otherwise the permitted collectors run, the day is
// recomputed and optionally summarized. Each day completes before the next
// starts, so an interrupted backfill resumes where it stopped.
func (p *Pipeline) Backfill(ctx context.Context, r domain.DateRange, opts BackfillOptions) (BackfillReport, error) {
	report := BackfillReport{Days: r.Days()}
	p.logger.Info("backfill started", zap.Stringer("range", r), zap.Int("days", report.Days))

	i := 0
	for day := range r.EachDay() {
		i++
		dr := DayReport{Day: day, Index: i, Total: report.Days}

		existing, err := p.store.CountEvents(ctx, day)
		if err != nil {
			return report, err
		}
		if existing > 0 && !opts.Force {
			dr.Events, dr.Cached = existing, true
			report.Skipped++
			report.Events += existing
			p.progress(opts, dr)
			continue
		}

		if err := p.collectDay(ctx, day, opts.IncludeExpensive); err != nil {
			return report, err
		}
		res, err := p.Transform(ctx, day)
		if err != nil {
			return report, err
		}
		if opts.Summarize {
			if _, err := p.Summarize(ctx, day, domain.PeriodDay, opts.Force); err != nil {
				p.logger.Warn("summarize failed", zap.Stringer("day", day), zap.Error(err))
			}
		}

		dr.Events = res.Events
		report.Collected++
		report.Events += res.Events
		p.progress(opts, dr)
	}

	p.metrics.MarkRun(p.now())
	p.logger.Info("backfill complete",
		zap.Int("days", report.Days), zap.Int("collected", report.Collected),
		zap.Int("skipped", report.Skipped), zap.Int("events", report.Events))
	return report, nil
}

// collectDay runs the permitted collectors for one day without consulting the
// raw cache.
func (p *Pipeline) collectDay(ctx context.Context, day domain.DateRange, includeExpensive bool) error {
	defer p.enter(Collecting)()
	for _, c := range p.collectors {
		if c.Policy().Cost == collector.Expensive && !includeExpensive {
			continue
		}
		if _, err := p.collectOne(ctx, c, day, false, false); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) progress(opts BackfillOptions, dr DayReport) {
	p.logger.Debug("backfill day", zap.Stringer("day", dr.Day), zap.Int("events", dr.Events), zap.Bool("cached", dr.Cached))
	if opts.Progress != nil {
		opts.Progress(dr)
	}
}
