// Package metrics holds the Prometheus instruments for the interceptor.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PipelineMetrics holds the instruments for the interceptor pipeline.
// Construct it once per process; promauto registers against the default
// registry.
type PipelineMetrics struct {
	// RequestsTotal counts invocations by terminal outcome.
	RequestsTotal *prometheus.CounterVec
	// SpansDetectedTotal counts merged spans by PII type.
	SpansDetectedTotal *prometheus.CounterVec
	// ProcessDurationSeconds tracks end-to-end processing latency.
	ProcessDurationSeconds prometheus.Histogram
	// CombinatorialTotal counts documents whose combinatorial flag fired.
	CombinatorialTotal prometheus.Counter
	// AuditDroppedTotal counts audit records dropped by the emitter.
	AuditDroppedTotal prometheus.Counter
}

// NewPipelineMetrics creates and registers all pipeline metrics.
func NewPipelineMetrics() *PipelineMetrics {
	return &PipelineMetrics{
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "piigate_requests_total",
			Help: "Total processed requests by terminal outcome",
		}, []string{"outcome"}),
		SpansDetectedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "piigate_spans_detected_total",
			Help: "Total merged PII spans by type",
		}, []string{"type"}),
		ProcessDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "piigate_process_duration_seconds",
			Help:    "End-to-end request processing duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		}),
		CombinatorialTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "piigate_combinatorial_total",
			Help: "Documents flagged by the combinatorial evaluation",
		}),
		AuditDroppedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "piigate_audit_dropped_total",
			Help: "Audit records dropped because the emitter buffer was full",
		}),
	}
}

// RecordRequest observes one completed invocation.
func (m *PipelineMetrics) RecordRequest(outcome string, d time.Duration) {
	m.RequestsTotal.WithLabelValues(outcome).Inc()
	m.ProcessDurationSeconds.Observe(d.Seconds())
}

// RecordSpan counts one merged span of the given type.
func (m *PipelineMetrics) RecordSpan(piiType string) {
	m.SpansDetectedTotal.WithLabelValues(piiType).Inc()
}
