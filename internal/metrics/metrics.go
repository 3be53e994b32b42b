// Package metrics exposes Prometheus counters for the settlement core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SweepTransitions counts applied stage transitions, labeled by edge.
	SweepTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peergrade_sweep_transitions_total",
		Help: "Stage transitions applied by the patrol sweep, by edge.",
	}, []string{"from", "to"})

	// SweepErrors counts per-stage sweep failures that were logged and
	// skipped.
	SweepErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peergrade_sweep_errors_total",
		Help: "Per-stage errors encountered during patrol sweeps.",
	})

	// Reminders counts deadline reminders sent.
	Reminders = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peergrade_reminders_total",
		Help: "Deadline reminder notifications sent.",
	})

	// Settlements counts successful stage settlements.
	Settlements = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peergrade_settlements_total",
		Help: "Stage settlements committed.",
	})

	// Reversals counts successful settlement reversals.
	Reversals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peergrade_reversals_total",
		Help: "Settlement reversals committed.",
	})

	// ForcedTransitions counts manual stage transitions by operators.
	ForcedTransitions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peergrade_forced_transitions_total",
		Help: "Manual stage transitions applied by operators.",
	})
)
