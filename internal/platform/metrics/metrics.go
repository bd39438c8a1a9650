// Package metrics holds the Prometheus collectors NAAS exposes on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector spec.md §6 requires plus the per-endpoint
// request histogram used by the HTTP middleware chain. No component sets
// QueueDepth or CircuitState, so both are exported with a value of zero.
type Metrics struct {
	QueueDepth      prometheus.Gauge
	WorkersActive   prometheus.Gauge
	RequestDuration *prometheus.HistogramVec
	JobsCompleted   *prometheus.CounterVec
	CircuitState    *prometheus.GaugeVec
}

// New constructs and registers every NAAS collector on the default
// registerer via promauto, following the promauto idiom used throughout the
// retrieval pack for Redis-latency and HTTP-latency instrumentation.
func New() *Metrics {
	return &Metrics{
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "naas_queue_depth",
			Help: "Number of jobs currently queued awaiting a worker.",
		}),
		WorkersActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "naas_workers_active",
			Help: "Number of worker goroutines currently executing a job.",
		}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "naas_http_request_duration_seconds",
			Help:    "Latency of NAAS HTTP endpoints in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		JobsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "naas_jobs_completed_total",
			Help: "Total number of jobs that reached a terminal state.",
		}, []string{"status"}),
		CircuitState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "naas_circuit_breaker_state",
			Help: "Circuit breaker state per device (0=closed, 1=half-open, 2=open).",
		}, []string{"device_ip"}),
	}
}
