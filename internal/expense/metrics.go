package expense

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the outcome of every consumed expense event.
type Metrics struct {
	Applied    *prometheus.CounterVec
	Duplicates prometheus.Counter
	Discarded  *prometheus.CounterVec
	Degraded   prometheus.Counter
	Failures   *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		Applied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "groups_expense_events_applied_total",
			Help: "Expense events folded into group summaries, by type",
		}, []string{"type"}),
		Duplicates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "groups_expense_events_duplicates_total",
			Help: "Expense events skipped because their id was already processed or in flight",
		}),
		Discarded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "groups_expense_events_discarded_total",
			Help: "Expense events dropped without applying, by reason",
		}, []string{"reason"}),
		Degraded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "groups_expense_events_degraded_total",
			Help: "Expense events applied without a dedup check because the cache was unavailable",
		}),
		Failures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "groups_expense_events_failures_total",
			Help: "Expense event processing failures, by stage",
		}, []string{"stage"}),
	}
}
