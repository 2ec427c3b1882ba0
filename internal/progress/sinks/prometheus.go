package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/newsarchive-crawler/internal/progress"
)

// PrometheusSink exports crawl progress metrics via Prometheus. It owns the
// collectors for runs started/completed/running, periods and articles.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runDuration   *prometheus.HistogramVec

	periodsCompleted prometheus.Counter
	resultsFound     prometheus.Counter
	articles         *prometheus.CounterVec
	articleErrors    *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archive_runs_started_total",
			Help: "Total crawl runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archive_runs_completed_total",
			Help: "Total crawl runs finished, partitioned by final state.",
		}, []string{"state"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "archive_runs_running",
			Help: "Current number of running crawl runs.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "archive_run_duration_seconds",
			Help:    "Wall time per finished crawl run.",
			Buckets: []float64{10, 60, 300, 900, 1800, 3600, 7200, 14400},
		}, []string{"state"}),
		periodsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archive_periods_completed_total",
			Help: "Crawl periods fully processed.",
		}),
		resultsFound: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archive_search_results_total",
			Help: "Search results reported by the archive across periods.",
		}),
		articles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archive_articles_total",
			Help: "Articles processed, partitioned by result.",
		}, []string{"result"}),
		articleErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archive_article_errors_total",
			Help: "Article failures partitioned by kind.",
		}, []string{"kind"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runDuration,
		s.periodsCompleted,
		s.resultsFound,
		s.articles,
		s.articleErrors,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.runsRunning.Inc()
		}
	case progress.StageRunDone:
		state := evt.State
		if state == "" {
			state = "unknown"
		}
		s.runsCompleted.WithLabelValues(state).Inc()
		if evt.Dur > 0 {
			s.runDuration.WithLabelValues(state).Observe(evt.Dur.Seconds())
		}
		if s.tracker.complete(evt.RunID) {
			s.runsRunning.Dec()
		}
	case progress.StagePeriodDone:
		s.periodsCompleted.Inc()
	case progress.StageResultsFound:
		s.resultsFound.Add(float64(evt.Count))
	case progress.StageArticleSaved:
		s.articles.WithLabelValues("saved").Inc()
	case progress.StageArticleError:
		s.articles.WithLabelValues("error").Inc()
		kind := evt.Note
		if kind == "" {
			kind = "other"
		}
		s.articleErrors.WithLabelValues(kind).Inc()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
