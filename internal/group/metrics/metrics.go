package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for group writes and the side effects that follow them.
type Metrics struct {
	GroupsCreated        prometheus.Counter
	GroupsDeleted        prometheus.Counter
	MembershipChanges    *prometheus.CounterVec
	LimitRejections      *prometheus.CounterVec
	SummarySyncFailures  prometheus.Counter
	InvalidationFailures prometheus.Counter
	OperationDuration    *prometheus.HistogramVec
}

func New() *Metrics {
	return &Metrics{
		GroupsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "groups_created_total",
			Help: "Total number of groups created",
		}),
		GroupsDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "groups_deleted_total",
			Help: "Total number of groups deleted",
		}),
		MembershipChanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "groups_membership_changes_total",
			Help: "Members added to or removed from groups",
		}, []string{"op"}),
		LimitRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "groups_plan_limit_rejections_total",
			Help: "Writes refused because of the caller's plan, by limit",
		}, []string{"limit"}),
		SummarySyncFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "groups_summary_sync_failures_total",
			Help: "Summary updates that failed after a committed group write",
		}),
		InvalidationFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "groups_member_cache_invalidation_failures_total",
			Help: "Member lookup cache deletes that failed after a group write",
		}),
		OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "groups_operation_duration_seconds",
			Help:    "Latency of group service operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}
}

func (m *Metrics) IncGroupsCreated() {
	m.GroupsCreated.Inc()
}

func (m *Metrics) IncGroupsDeleted() {
	m.GroupsDeleted.Inc()
}

func (m *Metrics) IncMembershipChange(op string) {
	m.MembershipChanges.WithLabelValues(op).Inc()
}

func (m *Metrics) IncLimitRejection(limit string) {
	m.LimitRejections.WithLabelValues(limit).Inc()
}

func (m *Metrics) IncSummarySyncFailure() {
	m.SummarySyncFailures.Inc()
}

func (m *Metrics) IncInvalidationFailure() {
	m.InvalidationFailures.Inc()
}

func (m *Metrics) ObserveOperation(op string, seconds float64) {
	m.OperationDuration.WithLabelValues(op).Observe(seconds)
}
