package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"splitgroups/pkg/platform/circuit"
)

// Metrics holds process-wide infrastructure metrics: cache effectiveness and
// circuit breaker state per guarded dependency.
type Metrics struct {
	CacheHits          *prometheus.CounterVec
	CacheMisses        *prometheus.CounterVec
	CacheErrors        *prometheus.CounterVec
	BreakerState       *prometheus.GaugeVec
	BreakerTransitions *prometheus.CounterVec
}

// New creates and registers the infrastructure metrics. Call once per process.
func New() *Metrics {
	return &Metrics{
		CacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "groups_cache_hits_total",
			Help: "Cache lookups that found a value, by keyspace",
		}, []string{"keyspace"}),
		CacheMisses: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "groups_cache_misses_total",
			Help: "Cache lookups that found nothing, by keyspace",
		}, []string{"keyspace"}),
		CacheErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "groups_cache_errors_total",
			Help: "Cache operations that failed, by keyspace and operation",
		}, []string{"keyspace", "op"}),
		BreakerState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "groups_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=open, 2=half_open)",
		}, []string{"dependency"}),
		BreakerTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "groups_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions, by dependency and target state",
		}, []string{"dependency", "to"}),
	}
}

func (m *Metrics) ObserveCacheHit(keyspace string) {
	m.CacheHits.WithLabelValues(keyspace).Inc()
}

func (m *Metrics) ObserveCacheMiss(keyspace string) {
	m.CacheMisses.WithLabelValues(keyspace).Inc()
}

func (m *Metrics) ObserveCacheError(keyspace, op string) {
	m.CacheErrors.WithLabelValues(keyspace, op).Inc()
}

// BreakerObserver returns a circuit.Observer that mirrors transitions into the
// state gauge and transition counter.
func (m *Metrics) BreakerObserver() circuit.Observer {
	return func(name string, change circuit.StateChange) {
		m.BreakerState.WithLabelValues(name).Set(float64(change.To))
		m.BreakerTransitions.WithLabelValues(name, change.To.String()).Inc()
	}
}
