package sinks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pagesnap/pagesnap/internal/progress"
)

// PrometheusSink folds capture progress events into Prometheus metrics.
type PrometheusSink struct {
	jobsStarted   prometheus.Counter
	jobsCompleted *prometheus.CounterVec
	jobsRunning   prometheus.Gauge
	jobRuntime    prometheus.Histogram

	unitsDone      *prometheus.CounterVec
	renderDuration *prometheus.HistogramVec
	renderBytes    *prometheus.HistogramVec

	mu      sync.Mutex
	started map[string]time.Time
}

// NewPrometheusSink registers the collectors against reg. Pass
// prometheus.DefaultRegisterer outside of tests.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	s := &PrometheusSink{
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pagesnap",
			Name:      "jobs_started_total",
			Help:      "Capture jobs accepted for processing.",
		}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pagesnap",
			Name:      "jobs_completed_total",
			Help:      "Capture jobs reaching a terminal state, by result.",
		}, []string{"result"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pagesnap",
			Name:      "jobs_running",
			Help:      "Capture jobs currently processing.",
		}),
		jobRuntime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pagesnap",
			Name:      "job_runtime_seconds",
			Help:      "Wall-clock runtime of capture jobs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		unitsDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pagesnap",
			Name:      "units_done_total",
			Help:      "Completed capture units, by device.",
		}, []string{"device"}),
		renderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pagesnap",
			Name:      "render_duration_seconds",
			Help:      "Time spent rendering a single page on a device.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"device"}),
		renderBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pagesnap",
			Name:      "render_bytes",
			Help:      "Size of captured screenshots in bytes.",
			Buckets:   prometheus.ExponentialBuckets(16*1024, 2, 10),
		}, []string{"device"}),
		started: make(map[string]time.Time),
	}

	collectors := []prometheus.Collector{
		s.jobsStarted, s.jobsCompleted, s.jobsRunning, s.jobRuntime,
		s.unitsDone, s.renderDuration, s.renderBytes,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates metrics for each event in the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageJobStart:
			s.jobsStarted.Inc()
			s.jobsRunning.Inc()
			s.markStarted(evt.JobID, evt.TS)
		case progress.StageUnitDone:
			s.unitsDone.WithLabelValues(string(evt.Device)).Inc()
			if evt.Dur > 0 {
				s.renderDuration.WithLabelValues(string(evt.Device)).Observe(evt.Dur.Seconds())
			}
			if evt.Bytes > 0 {
				s.renderBytes.WithLabelValues(string(evt.Device)).Observe(float64(evt.Bytes))
			}
		case progress.StageJobCompleted:
			s.finish(evt, "completed")
		case progress.StageJobError:
			s.finish(evt, "error")
		case progress.StageJobCancelled:
			s.finish(evt, "cancelled")
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

func (s *PrometheusSink) markStarted(jobID string, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started[jobID] = ts
}

func (s *PrometheusSink) finish(evt progress.Event, result string) {
	s.jobsCompleted.WithLabelValues(result).Inc()
	s.jobsRunning.Dec()

	s.mu.Lock()
	start, ok := s.started[evt.JobID]
	if ok {
		delete(s.started, evt.JobID)
	}
	s.mu.Unlock()
	if ok {
		s.jobRuntime.Observe(evt.TS.Sub(start).Seconds())
	}
}
