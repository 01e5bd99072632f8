// Package api serves the stored timeline as read-only JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pbaille/timeline/internal/domain"
	"github.com/pbaille/timeline/internal/metrics"
	"github.com/pbaille/timeline/internal/store"
)

// Server handles HTTP requests for the timeline API.
type Server struct {
	store   *store.Store
	metrics *metrics.Metrics
	loc     *time.Location
	logger  *zap.Logger
	addr    string
}

// Options wire a Server. Store is required.
type Options struct {
	Store    *store.Store
	Metrics  *metrics.Metrics
	Location *time.Location
	Logger   *zap.Logger
	Addr     string
}

func New(opts Options) *Server {
	s := &Server{
		store:   opts.Store,
		metrics: opts.Metrics,
		loc:     opts.Location,
		logger:  opts.Logger,
		addr:    opts.Addr,
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(withCORS)

	r.Get("/health", s.health)
	r.Get("/events", s.listEvents)
	r.Get("/summaries", s.listSummaries)
	r.Get("/summary", s.getSummary)
	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", zap.String("addr", s.addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// withCORS adds CORS headers for frontend development
func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		h.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// dateRange reads from and to. Both default to today and to defaults to from.
func (s *Server) dateRange(r *http.Request) (domain.DateRange, error) {
	q := r.URL.Query()
	from, err := domain.ParseDate(q.Get("from"), s.loc)
	if err != nil {
		return domain.DateRange{}, err
	}
	if q.Get("to") == "" {
		return from, nil
	}
	to, err := domain.ParseDate(q.Get("to"), s.loc)
	if err != nil {
		return domain.DateRange{}, err
	}
	return domain.NewDateRange(from.Start, to.End)
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	return strings.Split(v, ",")
}

func period(r *http.Request) (domain.PeriodType, error) {
	v := r.URL.Query().Get("period")
	if v == "" {
		return domain.PeriodDay, nil
	}
	return domain.ParsePeriodType(v)
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	dr, err := s.dateRange(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	q := r.URL.Query()
	query := store.EventQuery{
		Source:  strings.ToLower(q.Get("source")),
		Project: q.Get("project"),
	}
	if query.Source != "" && !domain.IsKnownSource(query.Source) {
		s.fail(w, &domain.ArgumentError{Arg: "source", Msg: "unknown source " + query.Source})
		return
	}
	filter, err := domain.NewSourceFilter(splitList(q.Get("include")), splitList(q.Get("exclude")))
	if err != nil {
		s.fail(w, err)
		return
	}
	query.Filter = filter

	events, err := s.store.GetEvents(r.Context(), dr, query)
	if err != nil {
		s.fail(w, err)
		return
	}
	if events == nil {
		events = []domain.TimelineEvent{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"start":  dr.Start.Format(domain.DateLayout),
		"end":    dr.End.Format(domain.DateLayout),
		"count":  len(events),
		"events": events,
	})
}

func (s *Server) listSummaries(w http.ResponseWriter, r *http.Request) {
	dr, err := s.dateRange(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	p, err := period(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	summaries, err := s.store.GetSummaries(r.Context(), dr, p)
	if err != nil {
		s.fail(w, err)
		return
	}
	if summaries == nil {
		summaries = []domain.Summary{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"period":    p,
		"summaries": summaries,
	})
}

func (s *Server) getSummary(w http.ResponseWriter, r *http.Request) {
	dr, err := s.dateRange(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	p, err := period(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	summary, err := s.store.GetSummary(r.Context(), dr, p)
	if err != nil {
		s.fail(w, err)
		return
	}
	if summary == nil {
		writeError(w, http.StatusNotFound, "summary not found")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// fail maps argument errors to 400 and anything else to 500.
func (s *Server) fail(w http.ResponseWriter, err error) {
	var argErr *domain.ArgumentError
	if errors.As(err, &argErr) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
