package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unifiedui/docdb-gateway/internal/services/pool"
)

// StatsSource provides pool snapshots.
type StatsSource interface {
	Stats() pool.Stats
}

// RegisterPool exposes pool statistics, read from src on every scrape.
func (c *Collector) RegisterPool(src StatsSource, namespace string) {
	if namespace == "" {
		namespace = "docdb_gateway"
	}

	gauge := func(name, help string, read func(pool.Stats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      name,
			Help:      help,
		}, func() float64 { return read(src.Stats()) })
	}
	counter := func(name, help string, read func(pool.Stats) float64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      name,
			Help:      help,
		}, func() float64 { return read(src.Stats()) })
	}

	c.registry.MustRegister(
		gauge("open_connections", "Open connections, idle plus leased plus pending", func(s pool.Stats) float64 { return float64(s.Open) }),
		gauge("idle_connections", "Idle connections", func(s pool.Stats) float64 { return float64(s.Idle) }),
		gauge("in_use_connections", "Leased connections", func(s pool.Stats) float64 { return float64(s.InUse) }),
		gauge("waiting_requests", "Requests waiting for a lease", func(s pool.Stats) float64 { return float64(s.Waiting) }),
		gauge("available", "1 when the backend is reachable", func(s pool.Stats) float64 {
			if s.State == pool.StateReady {
				return 1
			}
			return 0
		}),
		counter("leases_total", "Leases granted", func(s pool.Stats) float64 { return float64(s.Leases) }),
		counter("releases_total", "Leases returned", func(s pool.Stats) float64 { return float64(s.Releases) }),
		counter("destroyed_total", "Connections closed by the pool", func(s pool.Stats) float64 { return float64(s.Destroyed) }),
		counter("dial_failures_total", "Failed connection attempts", func(s pool.Stats) float64 { return float64(s.DialFailures) }),
		counter("exhausted_total", "Leases refused because the pool was full", func(s pool.Stats) float64 { return float64(s.Exhausted) }),
	)
}
