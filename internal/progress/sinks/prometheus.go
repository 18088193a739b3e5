package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/thread-harvester/internal/progress"
)

// PrometheusSink exports harvest progress as Prometheus metrics.
type PrometheusSink struct {
	runsStarted  prometheus.Counter
	runsFinished *prometheus.CounterVec
	runsRunning  prometheus.Gauge
	runDuration  *prometheus.HistogramVec

	pagesCommitted   *prometheus.CounterVec
	recordsCommitted *prometheus.CounterVec
	pageRetries      *prometheus.CounterVec
	enrichMisses     *prometheus.CounterVec
	pageDuration     prometheus.Histogram
	collectionSize   *prometheus.GaugeVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvester_runs_started_total",
			Help: "Total runs that have started.",
		}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_runs_finished_total",
			Help: "Total runs finished partitioned by terminal state.",
		}, []string{"state"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "harvester_runs_running",
			Help: "Current number of running runs.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harvester_run_duration_seconds",
			Help:    "Wall time per finished run.",
			Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600, 7200, 14400},
		}, []string{"state"}),
		pagesCommitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_pages_committed_total",
			Help: "Pages appended to a collection and checkpointed.",
		}, []string{"subject"}),
		recordsCommitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_records_committed_total",
			Help: "Records appended to a collection.",
		}, []string{"subject"}),
		pageRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_page_retries_total",
			Help: "Page fetches that failed and were retried.",
		}, []string{"subject"}),
		enrichMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_enrich_misses_total",
			Help: "Records finished without annotations because the detail lookup did not succeed.",
		}, []string{"subject"}),
		pageDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "harvester_page_duration_seconds",
			Help:    "Time from page request to checkpoint save.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		collectionSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "harvester_collection_records",
			Help: "Records held in the collection of a subject.",
		}, []string{"subject"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsFinished,
		s.runsRunning,
		s.runDuration,
		s.pagesCommitted,
		s.recordsCommitted,
		s.pageRetries,
		s.enrichMisses,
		s.pageDuration,
		s.collectionSize,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
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
		s.collectionSize.WithLabelValues(evt.Subject).Set(float64(evt.Total))
	case progress.StagePageCommitted:
		s.pagesCommitted.WithLabelValues(evt.Subject).Inc()
		s.recordsCommitted.WithLabelValues(evt.Subject).Add(float64(evt.Records))
		s.collectionSize.WithLabelValues(evt.Subject).Set(float64(evt.Total))
		if evt.Dur > 0 {
			s.pageDuration.Observe(evt.Dur.Seconds())
		}
	case progress.StagePageRetry:
		s.pageRetries.WithLabelValues(evt.Subject).Inc()
	case progress.StageEnrichMiss:
		s.enrichMisses.WithLabelValues(evt.Subject).Inc()
	case progress.StageRunDone:
		s.finish(evt, evt.State)
		s.collectionSize.WithLabelValues(evt.Subject).Set(float64(evt.Total))
	case progress.StageRunError:
		s.finish(evt, "ERROR")
	}
}

func (s *PrometheusSink) finish(evt progress.Event, label string) {
	s.runsFinished.WithLabelValues(label).Inc()
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.RunID) {
		s.runsRunning.Dec()
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
