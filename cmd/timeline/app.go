package main

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pbaille/timeline/internal/collector"
	"github.com/pbaille/timeline/internal/config"
	"github.com/pbaille/timeline/internal/domain"
	"github.com/pbaille/timeline/internal/export"
	"github.com/pbaille/timeline/internal/logging"
	"github.com/pbaille/timeline/internal/metrics"
	"github.com/pbaille/timeline/internal/pipeline"
	"github.com/pbaille/timeline/internal/store"
	"github.com/pbaille/timeline/internal/summarizer"
	"github.com/pbaille/timeline/internal/transform"

	// Collector kinds register themselves.
	_ "github.com/pbaille/timeline/internal/collector/browser"
	_ "github.com/pbaille/timeline/internal/collector/git"
	_ "github.com/pbaille/timeline/internal/collector/jsonl"
	_ "github.com/pbaille/timeline/internal/collector/session"
)

// app holds what every command needs once configuration is loaded.
type app struct {
	cfg     config.Config
	loc     *time.Location
	logger  *zap.Logger
	metrics *metrics.Metrics
	store   *store.Store
	filter  *domain.SourceFilter
}

func loadApp() (*app, error) {
	logger := logging.Fallback()
	if err := config.LoadEnv(config.Dir()); err != nil {
		logger.Warn("ignoring .env", zap.Error(err))
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.General.DBPath = config.ExpandHome(dbPath)
	}
	level := cfg.General.LogLevel
	if logLevel != "" {
		level = logLevel
	}

	logger, err = logging.New(level, cfg.General.LogFormat)
	if err != nil {
		return nil, &domain.ArgumentError{Arg: "log level", Msg: err.Error()}
	}
	logger = logging.WithRun(logger, logging.NewRunID())

	loc, err := cfg.Location()
	if err != nil {
		return nil, &domain.ConfigError{Path: cfg.Path(), Err: err}
	}
	filter, err := sourceFilter(include, exclude)
	if err != nil {
		return nil, err
	}

	s, err := store.Open(cfg.General.DBPath)
	if err != nil {
		return nil, err
	}
	logger.Debug("store opened", zap.String("path", cfg.General.DBPath))

	return &app{
		cfg:     cfg,
		loc:     loc,
		logger:  logger,
		metrics: metrics.New(),
		store:   s,
		filter:  filter,
	}, nil
}

// close flushes metrics and releases the store.
func (a *app) close() {
	if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
		a.logger.Warn("metrics not written", zap.Error(err))
	}
	a.store.Close()
	a.logger.Sync()
}

// pipeline assembles a Pipeline writing through the given format. The
// summarizer backend is only built when summarize is set, so commands that
// never summarize do not need its credentials.
func (a *app) pipeline(format string, summarize bool) (*pipeline.Pipeline, error) {
	collectors, err := collector.Build(a.cfg)
	if err != nil {
		return nil, &domain.ConfigError{Path: a.cfg.Path(), Err: err}
	}
	var sum *summarizer.Summarizer
	if summarize {
		if sum, err = summarizer.New(a.cfg.Summarizer, a.loc, a.logger); err != nil {
			return nil, err
		}
	}

	var exporters []export.Exporter
	if a.cfg.Exporters.Stdout.Enabled || format != "" {
		e, err := export.New(format)
		if err != nil {
			return nil, err
		}
		exporters = append(exporters, e)
	}

	return pipeline.New(pipeline.Options{
		Store:      a.store,
		Collectors: collectors,
		Dispatcher: transform.NewDispatcher(transform.Options{
			Projects:    a.cfg.ProjectMapper(),
			SkipDomains: a.cfg.Collectors.Browser.SkipDomains,
		}),
		Summarizer: sum,
		Exporters:  exporters,
		Logger:     a.logger,
		Metrics:    a.metrics,
	}), nil
}

// display is the configured display with the command-line overrides applied.
func (a *app) display(groupBy string) (export.Display, error) {
	d, err := export.DisplayFromConfig(a.cfg)
	if err != nil {
		return export.Display{}, &domain.ConfigError{Path: a.cfg.Path(), Err: err}
	}
	d = d.WithGroupBy(groupBy).WithColor(color)
	if err := d.Validate(); err != nil {
		return export.Display{}, err
	}
	return d, nil
}

// sourceFilter parses the comma-separated --include and --exclude values.
func sourceFilter(include, exclude string) (*domain.SourceFilter, error) {
	inc, exc := splitSources(include), splitSources(exclude)
	for _, s := range append(append([]string{}, inc...), exc...) {
		if !domain.IsKnownSource(s) {
			return nil, &domain.ArgumentError{
				Arg: "source filter",
				Msg: fmt.Sprintf("unknown source %q, valid sources: %s", s, strings.Join(domain.KnownSources, ", ")),
			}
		}
	}
	return domain.NewSourceFilter(inc, exc)
}

func splitSources(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// dateArg parses the optional DATE argument; it defaults to today.
func (a *app) dateArg(args []string) (domain.DateRange, error) {
	if len(args) == 0 {
		return domain.Today(a.loc), nil
	}
	return domain.ParseDate(args[0], a.loc)
}

// weekArg parses --week; "this" is the current ISO week.
func (a *app) weekArg(week string) (domain.DateRange, error) {
	if strings.EqualFold(week, "this") {
		return domain.ThisWeek(a.loc), nil
	}
	return domain.ParseWeek(week, a.loc)
}
