package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ImportMetrics counts import outcomes for one run. It owns its registry so a
// CLI run can export a textfile without the process-global default registry.
type ImportMetrics struct {
	registry *prometheus.Registry
	outcomes *prometheus.CounterVec
	stages   *prometheus.CounterVec
	duration prometheus.Histogram
	lastRun  prometheus.Gauge
}

func NewImportMetrics() *ImportMetrics {
	m := &ImportMetrics{
		registry: prometheus.NewRegistry(),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "member_import",
			Name:      "outcomes_total",
			Help:      "Import outcomes by category.",
		}, []string{"category"}),
		stages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "member_import",
			Name:      "stage_failures_total",
			Help:      "Records aborted by a persistence failure, by upsert stage.",
		}, []string{"stage"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "member_import",
			Name:      "record_duration_seconds",
			Help:      "Time spent processing one eligible record.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "member_import",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
	}
	m.registry.MustRegister(m.outcomes, m.stages, m.duration, m.lastRun)
	return m
}

func (m *ImportMetrics) Outcome(category string) {
	m.outcomes.WithLabelValues(category).Inc()
}

func (m *ImportMetrics) StageFailure(stage string) {
	m.stages.WithLabelValues(stage).Inc()
}

func (m *ImportMetrics) ObserveRecord(d time.Duration) {
	m.duration.Observe(d.Seconds())
}

func (m *ImportMetrics) Finish(at time.Time) {
	m.lastRun.Set(float64(at.Unix()))
}

func (m *ImportMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes all metrics in the text exposition format.
func (m *ImportMetrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
