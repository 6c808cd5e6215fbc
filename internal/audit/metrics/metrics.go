package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit pipeline.
type Metrics struct {
	Published        prometheus.Counter
	DeliveryFailures prometheus.Counter
	Retried          prometheus.Counter
	Dropped          prometheus.Counter
	Excluded         prometheus.Counter
	CaptureFailures  prometheus.Counter
	QueueDepth       prometheus.Gauge
}

// New creates and registers the pipeline metrics with the given registerer.
// Pass prometheus.DefaultRegisterer in production; tests use a fresh registry
// to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Published: factory.NewCounter(prometheus.CounterOpts{
			Name: "ms_security_audit_published_total",
			Help: "Total number of audit events delivered to the event hub",
		}),
		DeliveryFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ms_security_audit_delivery_failures_total",
			Help: "Total number of failed delivery attempts",
		}),
		Retried: factory.NewCounter(prometheus.CounterOpts{
			Name: "ms_security_audit_retried_total",
			Help: "Total number of retry attempts from the retry queue",
		}),
		Dropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "ms_security_audit_dropped_total",
			Help: "Total number of audit events lost after exhausting retries",
		}),
		Excluded: factory.NewCounter(prometheus.CounterOpts{
			Name: "ms_security_audit_excluded_total",
			Help: "Total number of requests skipped by the exclusion list",
		}),
		CaptureFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ms_security_audit_capture_failures_total",
			Help: "Total number of swallowed capture errors",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ms_security_audit_retry_queue_depth",
			Help: "Current number of events awaiting redelivery",
		}),
	}
}
