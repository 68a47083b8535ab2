package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CronJobMetrics records outcomes of scheduled jobs.
type CronJobMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
}

// NewCronJobMetrics registers the job collectors on reg.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	m := &CronJobMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Duration of scheduled jobs in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		success: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "job_success_total",
			Help: "Successful scheduled job runs.",
		}, []string{"job"}),
		failure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "job_failure_total",
			Help: "Failed scheduled job runs.",
		}, []string{"job"}),
	}
	reg.MustRegister(m.duration, m.success, m.failure)
	return m
}

// Observe records one run of job.
func (m *CronJobMetrics) Observe(job string, elapsed time.Duration, err error) {
	if m == nil || m.duration == nil {
		return
	}
	job = normalizeLabel(job)
	m.duration.WithLabelValues(job).Observe(elapsed.Seconds())
	if err != nil {
		m.failure.WithLabelValues(job).Inc()
		return
	}
	m.success.WithLabelValues(job).Inc()
}
