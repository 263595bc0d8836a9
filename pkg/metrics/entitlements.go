package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EntitlementMetrics records billing-oracle and snapshot-cache activity.
type EntitlementMetrics struct {
	oracleRequests *prometheus.CounterVec
	oracleFailures *prometheus.CounterVec
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	staleServed    prometheus.Counter
	reconcileTime  prometheus.Histogram
}

// NewEntitlementMetrics registers the entitlement metrics on the provided registerer.
func NewEntitlementMetrics(reg prometheus.Registerer) *EntitlementMetrics {
	if reg == nil {
		return &EntitlementMetrics{}
	}
	oracleRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_oracle_requests_total",
		Help: "Calls issued to the billing oracle.",
	}, []string{"op"})
	oracleFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_oracle_failures_total",
		Help: "Failed billing oracle calls after retry.",
	}, []string{"op"})
	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "entitlement_snapshot_cache_hits_total",
		Help: "Entitlement snapshots served from cache.",
	})
	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "entitlement_snapshot_cache_misses_total",
		Help: "Entitlement snapshot cache misses.",
	})
	staleServed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "entitlement_snapshot_stale_served_total",
		Help: "Stale snapshots served because the oracle was unavailable.",
	})
	reconcileTime := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "entitlement_reconcile_duration_seconds",
		Help:    "Duration of full entitlement reconciliations.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(oracleRequests, oracleFailures, cacheHits, cacheMisses, staleServed, reconcileTime)
	return &EntitlementMetrics{
		oracleRequests: oracleRequests,
		oracleFailures: oracleFailures,
		cacheHits:      cacheHits,
		cacheMisses:    cacheMisses,
		staleServed:    staleServed,
		reconcileTime:  reconcileTime,
	}
}

// IncOracleRequest counts a billing oracle call for the named operation.
func (m *EntitlementMetrics) IncOracleRequest(op string) {
	if m == nil || m.oracleRequests == nil {
		return
	}
	m.oracleRequests.WithLabelValues(normalizeLabel(op)).Inc()
}

// IncOracleFailure counts an exhausted billing oracle call.
func (m *EntitlementMetrics) IncOracleFailure(op string) {
	if m == nil || m.oracleFailures == nil {
		return
	}
	m.oracleFailures.WithLabelValues(normalizeLabel(op)).Inc()
}

// IncCacheHit counts a snapshot served from cache.
func (m *EntitlementMetrics) IncCacheHit() {
	if m == nil || m.cacheHits == nil {
		return
	}
	m.cacheHits.Inc()
}

// IncCacheMiss counts a snapshot cache miss.
func (m *EntitlementMetrics) IncCacheMiss() {
	if m == nil || m.cacheMisses == nil {
		return
	}
	m.cacheMisses.Inc()
}

// IncStaleServed counts a stale snapshot served during oracle downtime.
func (m *EntitlementMetrics) IncStaleServed() {
	if m == nil || m.staleServed == nil {
		return
	}
	m.staleServed.Inc()
}

// ObserveReconcile records the duration of a reconciliation pass.
func (m *EntitlementMetrics) ObserveReconcile(d time.Duration) {
	if m == nil || m.reconcileTime == nil {
		return
	}
	m.reconcileTime.Observe(d.Seconds())
}

func normalizeLabel(op string) string {
	if op == "" {
		return "unknown"
	}
	return op
}
