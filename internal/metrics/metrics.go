// Package metrics holds the prometheus collectors for one timeline process.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "timeline"

// Metrics is a private registry plus the pipeline counters. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	rawCollected      *prometheus.CounterVec
	rawInserted       *prometheus.CounterVec
	collectorFailures *prometheus.CounterVec
	collectorSkipped  *prometheus.CounterVec
	collectDuration   *prometheus.HistogramVec
	eventsTransformed *prometheus.CounterVec
	recordsDropped    *prometheus.CounterVec
	summaries         *prometheus.CounterVec
	summaryFailures   prometheus.Counter
	lastRun           prometheus.Gauge
}

// New registers the timeline metrics on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		rawCollected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "raw_collected_total",
			Help:      "Raw records returned by collectors",
		}, []string{"source"}),
		rawInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "raw_inserted_total",
			Help:      "Raw records newly stored after deduplication",
		}, []string{"source"}),
		collectorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collector_failures_total",
			Help:      "Collector runs that failed and yielded nothing",
		}, []string{"source"}),
		collectorSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collector_cache_hits_total",
			Help:      "Collector runs skipped because cached raw data was reused",
		}, []string{"source"}),
		collectDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "collect_duration_seconds",
			Help:      "Time spent in one collector run",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"source"}),
		eventsTransformed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_transformed_total",
			Help:      "Timeline events produced by the transform stage",
		}, []string{"source"}),
		recordsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dropped_total",
			Help:      "Raw records the transform stage rejected",
		}, []string{"source"}),
		summaries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_generated_total",
			Help:      "Summaries generated and stored",
		}, []string{"period"}),
		summaryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summary_failures_total",
			Help:      "Summarizer calls that produced nothing",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last completed pipeline stage",
		}),
	}
	m.Registry.MustRegister(
		m.rawCollected, m.rawInserted, m.collectorFailures, m.collectorSkipped,
		m.collectDuration, m.eventsTransformed, m.recordsDropped,
		m.summaries, m.summaryFailures, m.lastRun,
	)
	return m
}

func (m *Metrics) Collected(source string, n, inserted int, took time.Duration) {
	if m == nil {
		return
	}
	m.rawCollected.WithLabelValues(source).Add(float64(n))
	m.rawInserted.WithLabelValues(source).Add(float64(inserted))
	m.collectDuration.WithLabelValues(source).Observe(took.Seconds())
}

func (m *Metrics) CollectorFailed(source string) {
	if m == nil {
		return
	}
	m.collectorFailures.WithLabelValues(source).Inc()
}

func (m *Metrics) CacheHit(source string) {
	if m == nil {
		return
	}
	m.collectorSkipped.WithLabelValues(source).Inc()
}

func (m *Metrics) Transformed(source string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.eventsTransformed.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) Dropped(source string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.recordsDropped.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) SummaryGenerated(period string) {
	if m == nil {
		return
	}
	m.summaries.WithLabelValues(period).Inc()
}

func (m *Metrics) SummaryFailed() {
	if m == nil {
		return
	}
	m.summaryFailures.Inc()
}

func (m *Metrics) MarkRun(t time.Time) {
	if m == nil {
		return
	}
	m.lastRun.Set(float64(t.Unix()))
}

// WriteTextfile writes the registry in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
