package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts reconciliation work across every document of a process.
type Metrics struct {
	Passes       prometheus.Counter
	Skipped      prometheus.Counter
	Placed       prometheus.Counter
	Unlocated    prometheus.Counter
	Overlaps     prometheus.Counter
	Reverts      prometheus.Counter
	UnknownNodes prometheus.Counter
	PassDuration prometheus.Histogram
}

// NewMetrics registers the reconciliation metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Passes: factory.NewCounter(prometheus.CounterOpts{
			Name: "proofline_reconcile_passes_total",
			Help: "Reconciliation passes that rebuilt decorations",
		}),
		Skipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "proofline_reconcile_skipped_total",
			Help: "Reconciliation passes skipped because the suggestion set was unchanged",
		}),
		Placed: factory.NewCounter(prometheus.CounterOpts{
			Name: "proofline_reconcile_placed_total",
			Help: "Decorations placed",
		}),
		Unlocated: factory.NewCounter(prometheus.CounterOpts{
			Name: "proofline_reconcile_unlocated_total",
			Help: "Suggestions whose original text was not found in the document",
		}),
		Overlaps: factory.NewCounter(prometheus.CounterOpts{
			Name: "proofline_reconcile_overlaps_total",
			Help: "Suggestions dropped because they overlapped an earlier match",
		}),
		Reverts: factory.NewCounter(prometheus.CounterOpts{
			Name: "proofline_reconcile_reverts_total",
			Help: "Accepted suggestions reverted to proposed",
		}),
		UnknownNodes: factory.NewCounter(prometheus.CounterOpts{
			Name: "proofline_reconcile_unknown_nodes_total",
			Help: "Inline nodes of an unrecognized kind skipped while stripping",
		}),
		PassDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "proofline_reconcile_pass_duration_seconds",
			Help:    "Time spent in one reconciliation pass",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
	}
}
