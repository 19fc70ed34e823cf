// Package metrics implements an event.Sink that records Prometheus
// counters for the engine's fetch/validate/cycle lifecycle, so a consuming
// process can observe cache-hit rate, re-execution rate, and cycle
// iteration counts without the core importing a metrics library itself
// (spec.md §6: "Event hooks ... delivered via a user-supplied callback").
package metrics

import (
	"strconv"

	"github.com/evalgo/cascade/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors registered for one engine
// instance, against its own private Registry rather than the global
// default one — so that constructing more than one Metrics (one per
// Database, as tests do) never panics on duplicate collector
// registration.
type Metrics struct {
	Registry *prometheus.Registry

	Executions         *prometheus.CounterVec
	Validations        *prometheus.CounterVec
	CycleIterations    *prometheus.CounterVec
	StaleOutputs       *prometheus.CounterVec
	Discards           *prometheus.CounterVec
	CancellationChecks *prometheus.CounterVec
}

// New creates and registers the engine's Prometheus metrics under
// namespace (defaulting to "cascade" when empty).
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "cascade"
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		Executions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_total",
				Help:      "Total number of memoized query bodies executed, by ingredient index.",
			},
			[]string{"ingredient"},
		),
		Validations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validations_total",
				Help:      "Total number of memoized values reused after validation, by ingredient index.",
			},
			[]string{"ingredient"},
		),
		CycleIterations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycle_iterations_total",
				Help:      "Total number of fixpoint cycle iterations, by ingredient index.",
			},
			[]string{"ingredient"},
		),
		StaleOutputs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stale_outputs_discarded_total",
				Help:      "Total number of tracked-struct outputs discarded as stale on re-execution.",
			},
			[]string{"ingredient"},
		),
		Discards: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "discards_total",
				Help:      "Total number of memo entries discarded outright.",
			},
			[]string{"ingredient"},
		),
		CancellationChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cancellation_checks_total",
				Help:      "Total number of cancellation checkpoints reached, by ingredient index.",
			},
			[]string{"ingredient"},
		),
	}
}

// Emit implements event.Sink.
func (m *Metrics) Emit(e event.Event) {
	ingredient := strconv.FormatUint(uint64(e.Key.Ingredient), 10)
	switch e.Kind {
	case event.WillExecute:
		m.Executions.WithLabelValues(ingredient).Inc()
	case event.DidValidateMemoizedValue:
		m.Validations.WithLabelValues(ingredient).Inc()
	case event.WillIterateCycle:
		m.CycleIterations.WithLabelValues(ingredient).Inc()
	case event.WillDiscardStaleOutput:
		m.StaleOutputs.WithLabelValues(ingredient).Inc()
	case event.DidDiscard:
		m.Discards.WithLabelValues(ingredient).Inc()
	case event.WillCheckCancellation:
		m.CancellationChecks.WithLabelValues(ingredient).Inc()
	}
}

var _ event.Sink = (*Metrics)(nil)
