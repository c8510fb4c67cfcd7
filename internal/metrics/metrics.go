package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics aggregates the prometheus instruments for coordinator operations.
type Metrics struct {
	operations    *prometheus.CounterVec
	compensations *prometheus.CounterVec
	durations     *prometheus.HistogramVec
}

// New creates the instruments and registers them with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plexica",
			Subsystem: "coordinator",
			Name:      "operations_total",
			Help:      "Coordinator operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plexica",
			Subsystem: "coordinator",
			Name:      "compensations_total",
			Help:      "Saga compensations executed, by step.",
		}, []string{"step"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "plexica",
			Subsystem: "coordinator",
			Name:      "operation_duration_seconds",
			Help:      "Coordinator operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if reg != nil {
		m.operations = registerCounterVec(reg, m.operations)
		m.compensations = registerCounterVec(reg, m.compensations)
		m.durations = registerHistogramVec(reg, m.durations)
	}
	return m
}

// registerCounterVec registers c, reusing the existing collector when the
// same instrument was already registered by an earlier wiring pass.
func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return already.ExistingCollector.(*prometheus.CounterVec)
		}
		panic(err)
	}
	return c
}

func registerHistogramVec(reg prometheus.Registerer, h *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := reg.Register(h); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return already.ExistingCollector.(*prometheus.HistogramVec)
		}
		panic(err)
	}
	return h
}

// ObserveOperation records one coordinator operation with its outcome and
// duration.
func (m *Metrics) ObserveOperation(operation string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.durations.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveCompensation records one executed compensation step.
func (m *Metrics) ObserveCompensation(step string) {
	if m == nil {
		return
	}
	m.compensations.WithLabelValues(step).Inc()
}
