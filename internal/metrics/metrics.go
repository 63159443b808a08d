// Package metrics exposes prometheus instrumentation for the sync layer.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the collectors for one sync-layer instance. Collectors are
// registered against an injected registerer so tests can construct isolated
// instances without colliding on the default registry.
type Metrics struct {
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	CacheStale     prometheus.Counter
	CacheEvictions prometheus.Counter
	CacheEntries   prometheus.Gauge
	FetchErrors    prometheus.Counter
	FetchDiscarded prometheus.Counter
	Invalidations  prometheus.Counter
	Reconnects     prometheus.Counter
	EventsReceived prometheus.Counter
	ConnState      prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adminsync_cache_hits_total",
			Help: "Total reads served fresh from cache without network I/O.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adminsync_cache_misses_total",
			Help: "Total reads that created a new cache entry and fetched.",
		}),
		CacheStale: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adminsync_cache_stale_served_total",
			Help: "Total reads answered with stale data while revalidating.",
		}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adminsync_cache_evictions_total",
			Help: "Total entries removed by garbage collection sweeps.",
		}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "adminsync_cache_entries",
			Help: "Current number of cache entries.",
		}),
		FetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adminsync_fetch_errors_total",
			Help: "Total fetch functions that returned an error.",
		}),
		FetchDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adminsync_fetch_discarded_total",
			Help: "Total fetch completions discarded as older than the last applied one.",
		}),
		Invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adminsync_invalidations_total",
			Help: "Total entries marked stale by prefix invalidation.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adminsync_reconnects_total",
			Help: "Total successful reconnects after an unexpected disconnect.",
		}),
		EventsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adminsync_events_received_total",
			Help: "Total inbound domain events read off the connection.",
		}),
		ConnState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "adminsync_connection_state",
			Help: "Current connection state (0 disconnected, 1 connecting, 2 connected, 3 reconnecting, 4 failed).",
		}),
	}

	reg.MustRegister(
		m.CacheHits, m.CacheMisses, m.CacheStale, m.CacheEvictions, m.CacheEntries,
		m.FetchErrors, m.FetchDiscarded, m.Invalidations,
		m.Reconnects, m.EventsReceived, m.ConnState,
	)
	return m
}

// Nop returns metrics registered against a throwaway registry, for tests
// and callers that do not export metrics.
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}
