package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the group summary view.
type Metrics struct {
	LazyMaterializations prometheus.Counter
	InvalidationFailures prometheus.Counter
	ReconciledGroups     prometheus.Counter
	OrphansRemoved       prometheus.Counter
	ReconcileDuration    prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		LazyMaterializations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "groups_summary_lazy_materializations_total",
			Help: "Summaries built on read because derived fields were missing",
		}),
		InvalidationFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "groups_summary_cache_invalidation_failures_total",
			Help: "Failed deletions of summary cache entries",
		}),
		ReconciledGroups: promauto.NewCounter(prometheus.CounterOpts{
			Name: "groups_summary_reconciled_total",
			Help: "Groups whose derived summary fields were rewritten by the reconciler",
		}),
		OrphansRemoved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "groups_summary_orphans_removed_total",
			Help: "Summaries removed because their group no longer exists",
		}),
		ReconcileDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "groups_summary_reconcile_duration_seconds",
			Help:    "Duration of a full reconciliation pass",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),
	}
}

func (m *Metrics) IncLazyMaterialization() { m.LazyMaterializations.Inc() }
func (m *Metrics) IncInvalidationFailure() { m.InvalidationFailures.Inc() }

// ObserveReconcile records one completed reconciliation pass.
func (m *Metrics) ObserveReconcile(reconciled, orphans int, seconds float64) {
	m.ReconciledGroups.Add(float64(reconciled))
	m.OrphansRemoved.Add(float64(orphans))
	m.ReconcileDuration.Observe(seconds)
}
