package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache lookup results.
const (
	CacheHit     = "hit"
	CacheMiss    = "miss"
	CacheRefresh = "refresh"
	CacheBypass  = "bypass"
)

// Upstream call outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

// Metrics contains the Prometheus collectors of the footprint service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	CacheLookups        *prometheus.CounterVec
	UpstreamRequests    *prometheus.CounterVec
	UpstreamRetries     *prometheus.CounterVec
	AggregationDuration prometheus.Histogram
	EnrichedTrades      prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "footprint_cache_lookups_total",
			Help: "Response cache lookups by result",
		}, []string{"result"}),

		UpstreamRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "footprint_upstream_requests_total",
			Help: "Exchange REST calls by operation and final outcome",
		}, []string{"operation", "outcome"}),

		UpstreamRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "footprint_upstream_retries_total",
			Help: "Exchange REST attempts that were retried",
		}, []string{"operation"}),

		AggregationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "footprint_aggregation_seconds",
			Help:    "Time to fetch and aggregate a footprint series",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}),

		EnrichedTrades: factory.NewCounter(prometheus.CounterOpts{
			Name: "footprint_enriched_trades_total",
			Help: "Trades bucketed into bar volume profiles",
		}),
	}
}

// RecordCacheLookup increments the cache lookup counter.
func (m *Metrics) RecordCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// RecordUpstream records the final outcome of an exchange call.
func (m *Metrics) RecordUpstream(operation, outcome string) {
	if m == nil {
		return
	}
	m.UpstreamRequests.WithLabelValues(operation, outcome).Inc()
}

// RecordRetry records one retried exchange attempt.
func (m *Metrics) RecordRetry(operation string) {
	if m == nil {
		return
	}
	m.UpstreamRetries.WithLabelValues(operation).Inc()
}

// ObserveAggregation records how long a series computation took.
func (m *Metrics) ObserveAggregation(d time.Duration) {
	if m == nil {
		return
	}
	m.AggregationDuration.Observe(d.Seconds())
}

// AddEnrichedTrades counts trades that reached a volume profile.
func (m *Metrics) AddEnrichedTrades(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.EnrichedTrades.Add(float64(n))
}
