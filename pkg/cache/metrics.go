package cache

import "github.com/prometheus/client_golang/prometheus"

const namespace = "shotcoach"

// Metrics holds Prometheus metrics for the mask and result caches
type Metrics struct {
	Hits      *prometheus.CounterVec
	Misses    *prometheus.CounterVec
	Evictions *prometheus.CounterVec
	Items     *prometheus.GaugeVec
	Bytes     *prometheus.GaugeVec
	Clears    *prometheus.CounterVec
}

// NewMetrics creates cache metrics and registers them when reg is not nil
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of cache hits, by cache.",
		}, []string{"cache"}),
		Misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of cache misses, by cache.",
		}, []string{"cache"}),
		Evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Entries evicted to stay within count or cost ceilings, by cache.",
		}, []string{"cache"}),
		Items: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "items",
			Help:      "Current number of cached entries, by cache.",
		}, []string{"cache"}),
		Bytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "bytes",
			Help:      "Estimated memory held by cached entries, by cache.",
		}, []string{"cache"}),
		Clears: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "clears_total",
			Help:      "Total number of cache clear operations, by reason.",
		}, []string{"reason"}),
	}

	if reg != nil {
		reg.MustRegister(m.Hits, m.Misses, m.Evictions, m.Items, m.Bytes, m.Clears)
	}
	return m
}
