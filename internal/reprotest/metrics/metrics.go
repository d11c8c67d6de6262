// Package metrics records what a test session waited on and how its test cases ended.
// A session is short-lived, so metrics are exported once, at the end, in the node-exporter
// textfile format rather than served over HTTP.
package metrics

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "reprotest"

// Metrics is safe for concurrent use. A nil *Metrics records nothing.
type Metrics struct {
	registry       *prometheus.Registry
	jobsWaited     *prometheus.CounterVec
	jobWaitSeconds prometheus.Histogram
	testCases      *prometheus.CounterVec
	checksumFields *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobsWaited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_waited_total",
			Help:      "Scheduler jobs waited on, by outcome.",
		}, []string{"outcome"}),
		jobWaitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_wait_seconds",
			Help:      "Time spent waiting for a scheduler job to reach a terminal state.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
		testCases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "test_cases_total",
			Help:      "Reproducibility test cases run, by test and result.",
		}, []string{"test", "result"}),
		checksumFields: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checksum_fields_compared_total",
			Help:      "Checksum fields compared, by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(m.jobsWaited, m.jobWaitSeconds, m.testCases, m.checksumFields)
	return m
}

// RecordJob records one job leaving the wait queue.
func (m *Metrics) RecordJob(outcome string, waited time.Duration) {
	if m == nil {
		return
	}
	m.jobsWaited.WithLabelValues(outcome).Inc()
	m.jobWaitSeconds.Observe(waited.Seconds())
}

func (m *Metrics) RecordTestCase(test string, result string) {
	if m == nil {
		return
	}
	m.testCases.WithLabelValues(test, result).Inc()
}

func (m *Metrics) RecordChecksumFields(matched int, mismatched int) {
	if m == nil {
		return
	}
	m.checksumFields.WithLabelValues("match").Add(float64(matched))
	m.checksumFields.WithLabelValues("mismatch").Add(float64(mismatched))
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// WriteTextfile writes all metrics to path, atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return errors.WithStack(prometheus.WriteToTextfile(path, m.registry))
}
