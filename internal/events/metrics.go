package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts publish outcomes by event type.
type Metrics struct {
	Published *prometheus.CounterVec
	Failed    *prometheus.CounterVec
	Dropped   *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		Published: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "groups_events_published_total",
			Help: "Group events handed to the transport successfully",
		}, []string{"type"}),
		Failed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "groups_events_publish_failures_total",
			Help: "Group events the transport rejected",
		}, []string{"type"}),
		Dropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "groups_events_dropped_total",
			Help: "Group events dropped because the publish buffer was full or closed",
		}, []string{"type"}),
	}
}
