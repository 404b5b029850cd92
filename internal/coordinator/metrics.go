package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the coordinator's Prometheus collectors on a private
// registry so tests can build several coordinators in one process.
type metrics struct {
	registry *prometheus.Registry

	writes         prometheus.Counter
	writeFailures  prometheus.Counter
	reads          prometheus.Counter
	readFailures   prometheus.Counter
	aliveFollowers prometheus.Gauge
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvcoordinator_writes_total",
			Help: "Quorum writes that met W.",
		}),
		writeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvcoordinator_write_failures_total",
			Help: "Writes rejected or under-replicated.",
		}),
		reads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvcoordinator_reads_total",
			Help: "Quorum reads that met R.",
		}),
		readFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvcoordinator_read_failures_total",
			Help: "Reads rejected, short of quorum, or not found.",
		}),
		aliveFollowers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kvcoordinator_alive_followers",
			Help: "Followers passing health checks.",
		}),
	}
	m.registry.MustRegister(m.writes, m.writeFailures, m.reads, m.readFailures, m.aliveFollowers)
	return m
}
