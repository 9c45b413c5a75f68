package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records outcomes of checkout and payment flows.
type CheckoutMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
	settled  prometheus.Counter
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_duration_seconds",
		Help:    "Duration of checkout operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_success",
		Help: "Successful checkout operations.",
	}, []string{"operation"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_failure",
		Help: "Failed checkout operations.",
	}, []string{"operation"})
	settled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payments_settled_total",
		Help: "Payments reconciled to the settled state.",
	})
	reg.MustRegister(duration, success, failure, settled)
	return &CheckoutMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
		settled:  settled,
	}
}

// ObserveDuration records the duration for the named operation.
func (c *CheckoutMetrics) ObserveDuration(operation string, duration time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	c.duration.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for the named operation.
func (c *CheckoutMetrics) IncSuccess(operation string) {
	if c == nil || c.success == nil {
		return
	}
	c.success.WithLabelValues(normalizeLabel(operation)).Inc()
}

// IncFailure increments the failure counter for the named operation.
func (c *CheckoutMetrics) IncFailure(operation string) {
	if c == nil || c.failure == nil {
		return
	}
	c.failure.WithLabelValues(normalizeLabel(operation)).Inc()
}

// IncSettled increments the settled payments counter.
func (c *CheckoutMetrics) IncSettled() {
	if c == nil || c.settled == nil {
		return
	}
	c.settled.Inc()
}

func normalizeLabel(operation string) string {
	if operation == "" {
		return "unknown"
	}
	return operation
}
