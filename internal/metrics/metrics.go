// Package metrics exposes Prometheus collectors for the HTTP surface of the
// capture service. Job-level metrics live in the progress Prometheus sink.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	archiveBytesTotal          prometheus.Counter
	queueDepth                 prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		archiveBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "archive_bytes_total",
				Help: "Total bytes of ZIP archives streamed to clients.",
			},
		)

		queueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "capture_queue_depth",
				Help: "Tasks currently waiting in the job queue.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest records one served request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveArchiveBytes records archive bytes sent to a client.
func ObserveArchiveBytes(n int64) {
	if archiveBytesTotal == nil || n <= 0 {
		return
	}
	archiveBytesTotal.Add(float64(n))
}

// SetQueueDepth records the current queue backlog.
func SetQueueDepth(n int) {
	if queueDepth == nil {
		return
	}
	queueDepth.Set(float64(n))
}
