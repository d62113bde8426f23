package aggregator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts cache lookups and feed fetches. A nil *Metrics records nothing.
type Metrics struct {
	cacheRequests *prometheus.CounterVec
	feedFetches   *prometheus.CounterVec
}

// NewMetrics registers the aggregator metrics with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		cacheRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feed_aggregator",
			Name:      "cache_requests_total",
			Help:      "Cache lookups by outcome (hit, miss, error).",
		}, []string{"result"}),
		feedFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feed_aggregator",
			Name:      "feed_fetches_total",
			Help:      "Feed fetches by outcome (success, failure).",
		}, []string{"result"}),
	}
}

// CacheLookup records the outcome of a cache lookup, it satisfies cache.Observer
func (m *Metrics) CacheLookup(outcome string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) feedFetched(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.feedFetches.WithLabelValues("success").Inc()
		return
	}
	m.feedFetches.WithLabelValues("failure").Inc()
}
