package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters for the reporting engine.
type Metrics struct {
	JobRuns     *prometheus.CounterVec // labels: job, outcome={ok,error}
	JobOverruns *prometheus.CounterVec // labels: job
	JobDuration *prometheus.HistogramVec

	AlertsReported  prometheus.Counter
	AlertsDeduped   prometheus.Counter
	MessagesSwept   prometheus.Counter
	SweepErrors     prometheus.Counter
	RadarEdits      prometheus.Counter
	ForecastsPosted prometheus.Counter

	CacheHits   *prometheus.CounterVec // labels: store
	CacheMisses *prometheus.CounterVec // labels: store
	QueueDepth  *prometheus.GaugeVec   // labels: queue
}

// NewMetrics creates and registers all metrics with the default registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.JobRuns,
		m.JobOverruns,
		m.JobDuration,
		m.AlertsReported,
		m.AlertsDeduped,
		m.MessagesSwept,
		m.SweepErrors,
		m.RadarEdits,
		m.ForecastsPosted,
		m.CacheHits,
		m.CacheMisses,
		m.QueueDepth,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics across tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		JobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weathergoat",
			Name:      "job_runs_total",
			Help:      "Scheduled job executions by job name and outcome.",
		}, []string{"job", "outcome"}),
		JobOverruns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weathergoat",
			Name:      "job_overruns_total",
			Help:      "Ticks skipped because the previous run was still in flight.",
		}, []string{"job"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "weathergoat",
			Name:      "job_duration_seconds",
			Help:      "Duration of one job execution.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"job"}),
		AlertsReported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weathergoat",
			Name:      "alerts_reported_total",
			Help:      "Alert messages delivered to destinations.",
		}),
		AlertsDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weathergoat",
			Name:      "alerts_deduped_total",
			Help:      "Alerts suppressed because they were already delivered.",
		}),
		MessagesSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weathergoat",
			Name:      "messages_swept_total",
			Help:      "Expired volatile messages deleted by the sweeper.",
		}),
		SweepErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weathergoat",
			Name:      "sweep_errors_total",
			Help:      "Sweep attempts where the underlying message could not be deleted.",
		}),
		RadarEdits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weathergoat",
			Name:      "radar_edits_total",
			Help:      "Radar messages refreshed in place.",
		}),
		ForecastsPosted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weathergoat",
			Name:      "forecasts_posted_total",
			Help:      "Hourly forecast messages posted.",
		}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weathergoat",
			Name:      "cache_hits_total",
			Help:      "Cache lookups answered from a live entry.",
		}, []string{"store"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weathergoat",
			Name:      "cache_misses_total",
			Help:      "Cache lookups that found no entry or an expired one.",
		}, []string{"store"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "weathergoat",
			Name:      "queue_depth",
			Help:      "Pending actions per rate-limited queue.",
		}, []string{"queue"}),
	}
}
