package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nao1215/placerank/internal/pipeline"
	"github.com/nao1215/placerank/internal/progress"
	"github.com/nao1215/placerank/internal/queue"
)

const namespace = "placerank"

// Metrics owns a registry with the crawl counters and the state collector.
type Metrics struct {
	registry *prometheus.Registry
	logger   *slog.Logger

	crawls       *prometheus.CounterVec
	terminations *prometheus.CounterVec
	items        prometheus.Counter
	dropped      prometheus.Counter
	detailJobs   prometheus.Counter
	duration     prometheus.Histogram
	jobs         *prometheus.CounterVec
}

type settings struct {
	progress *progress.Store
	backend  queue.Backend
	runtime  bool
	logger   *slog.Logger
}

// Option configures Metrics.
type Option func(*settings)

// WithProgress reports the crawls running in store.
func WithProgress(store *progress.Store) Option {
	return func(s *settings) {
		s.progress = store
	}
}

// WithQueue reports the ready and failed jobs of backend.
func WithQueue(backend queue.Backend) Option {
	return func(s *settings) {
		s.backend = backend
	}
}

// WithRuntimeCollectors adds the Go runtime and process collectors.
func WithRuntimeCollectors() Option {
	return func(s *settings) {
		s.runtime = true
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates Metrics with its own registry.
func New(opts ...Option) *Metrics {
	s := settings{logger: slog.Default()}
	for _, opt := range opts {
		opt(&s)
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		logger:   s.logger,
		crawls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crawls_total",
			Help:      "Basic crawls by outcome.",
		}, []string{"outcome"}),
		terminations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scroll_terminations_total",
			Help:      "Completed scroll runs by the rule that ended them.",
		}, []string{"reason"}),
		items: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ranked_items_total",
			Help:      "Listing rows stored as rankings.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_rows_total",
			Help:      "Listing rows skipped because they had no place id.",
		}),
		detailJobs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detail_jobs_enqueued_total",
			Help:      "Detail jobs enqueued after basic crawls.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "crawl_duration_seconds",
			Help:      "Duration of basic crawls that were not skipped.",
			Buckets:   []float64{5, 10, 20, 30, 45, 60, 90, 120, 180},
		}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_jobs_processed_total",
			Help:      "Jobs processed by the worker by type and outcome.",
		}, []string{"type", "outcome"}),
	}

	m.registry.MustRegister(m.crawls, m.terminations, m.items, m.dropped, m.detailJobs, m.duration, m.jobs)
	if s.progress != nil || s.backend != nil {
		m.registry.MustRegister(&StateCollector{progress: s.progress, backend: s.backend, logger: s.logger})
	}
	if s.runtime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Registry returns the registry the metrics live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveResult records one crawl. It has the signature of a runner
// result hook.
func (m *Metrics) ObserveResult(res pipeline.Result) {
	switch {
	case res.Error != nil:
		m.crawls.WithLabelValues("failed").Inc()
		return
	case res.Skipped:
		m.crawls.WithLabelValues("skipped").Inc()
		return
	}

	m.crawls.WithLabelValues("succeeded").Inc()
	if res.Termination != "" {
		m.terminations.WithLabelValues(string(res.Termination)).Inc()
	}
	m.items.Add(float64(res.ItemsCount))
	m.dropped.Add(float64(res.Dropped))
	m.detailJobs.Add(float64(res.DetailJobs))
	m.duration.Observe(res.Elapsed.Seconds())
}

// ObserveJob records a processed job. It has the signature of
// queue.Observer.
func (m *Metrics) ObserveJob(job queue.Job, outcome queue.Outcome, _ error) {
	m.jobs.WithLabelValues(string(job.Type), string(outcome)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		m.logger.Info("metrics endpoint listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
