package node

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the node's Prometheus collectors. Each node owns a private
// registry so several nodes can share one test process.
type metrics struct {
	registry *prometheus.Registry

	writes               prometheus.Counter
	replicationsAccepted prometheus.Counter
	replicationsRejected prometheus.Counter
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvnode_writes_total",
			Help: "Primary writes committed by this node.",
		}),
		replicationsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvnode_replications_accepted_total",
			Help: "Replicated entries applied by this follower.",
		}),
		replicationsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvnode_replications_rejected_total",
			Help: "Replicated entries discarded as stale.",
		}),
	}
	m.registry.MustRegister(m.writes, m.replicationsAccepted, m.replicationsRejected)
	return m
}
