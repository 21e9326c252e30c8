// Package metrics holds the process-wide Prometheus collectors exposed at
// GET /admin/metrics, grounded on the counter/histogram registration idiom
// used by the corpus's own ingestion metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the singleton collector set for the ingestion service.
type Metrics struct {
	once sync.Once

	JobsSubmitted  prometheus.Counter
	JobsCompleted  prometheus.Counter
	JobsFailed     prometheus.Counter
	JobsCancelled  prometheus.Counter
	ValidationRejections *prometheus.CounterVec

	QueueDepth     prometheus.Gauge
	JobsRunning    prometheus.Gauge
	LeaseExpiries  prometheus.Counter

	ParseDuration  *prometheus.HistogramVec
	CallbackAttempts prometheus.Counter
	CallbackFailures prometheus.Counter

	Registry *prometheus.Registry
}

var global Metrics

// Get returns the singleton Metrics instance, initializing and
// registering its collectors on first use.
func Get() *Metrics {
	global.once.Do(global.init)
	return &global
}

func (m *Metrics) init() {
	m.Registry = prometheus.NewRegistry()

	buckets := []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

	m.JobsSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "docparse_jobs_submitted_total", Help: "Jobs submitted via the ingestion API.",
	})
	m.JobsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "docparse_jobs_completed_total", Help: "Jobs that reached state completed.",
	})
	m.JobsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "docparse_jobs_failed_total", Help: "Jobs that reached state failed.",
	})
	m.JobsCancelled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "docparse_jobs_cancelled_total", Help: "Jobs that reached state cancelled.",
	})
	m.ValidationRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docparse_validation_rejections_total", Help: "Uploads rejected by the validator, by kind.",
	}, []string{"kind"})

	m.QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "docparse_queue_depth", Help: "Jobs currently ready for lease.",
	})
	m.JobsRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "docparse_jobs_running", Help: "Jobs currently leased or running.",
	})
	m.LeaseExpiries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "docparse_lease_expiries_total", Help: "Leases reclaimed by the sweeper.",
	})

	m.ParseDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "docparse_parse_duration_seconds", Help: "Pipeline duration by parsing_type.", Buckets: buckets,
	}, []string{"parsing_type"})

	m.CallbackAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "docparse_callback_attempts_total", Help: "Async callback delivery attempts.",
	})
	m.CallbackFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "docparse_callback_failures_total", Help: "Async callback attempts that did not receive 2xx.",
	})

	m.Registry.MustRegister(
		m.JobsSubmitted, m.JobsCompleted, m.JobsFailed, m.JobsCancelled, m.ValidationRejections,
		m.QueueDepth, m.JobsRunning, m.LeaseExpiries,
		m.ParseDuration, m.CallbackAttempts, m.CallbackFailures,
	)
}
