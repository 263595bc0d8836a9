package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestEntitlementMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewEntitlementMetrics(reg)
	metrics.IncOracleRequest("list_subscriptions")
	metrics.IncOracleRequest("list_subscriptions")
	metrics.IncOracleFailure("list_subscriptions")
	metrics.IncCacheHit()
	metrics.IncCacheMiss()
	metrics.IncStaleServed()
	metrics.ObserveReconcile(120 * time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "billing_oracle_requests_total", "op", "list_subscriptions"); err != nil {
		t.Fatalf("fetch requests: %v", err)
	} else if got != 2 {
		t.Fatalf("expected requests=2, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "billing_oracle_failures_total", "op", "list_subscriptions"); err != nil {
		t.Fatalf("fetch failures: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failures=1, got %f", got)
	}

	if got, err := fetchPlainCounter(mfs, "entitlement_snapshot_cache_hits_total"); err != nil {
		t.Fatalf("fetch cache hits: %v", err)
	} else if got != 1 {
		t.Fatalf("expected hits=1, got %f", got)
	}

	if got, err := fetchPlainCounter(mfs, "entitlement_snapshot_stale_served_total"); err != nil {
		t.Fatalf("fetch stale served: %v", err)
	} else if got != 1 {
		t.Fatalf("expected stale=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "entitlement_reconcile_duration_seconds"); err != nil {
		t.Fatalf("fetch reconcile duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestEntitlementMetricsNilRegistererIsNoop(t *testing.T) {
	metrics := NewEntitlementMetrics(nil)
	metrics.IncOracleRequest("get_session")
	metrics.IncOracleFailure("get_session")
	metrics.IncCacheHit()
	metrics.IncCacheMiss()
	metrics.IncStaleServed()
	metrics.ObserveReconcile(time.Second)
}

func TestNormalizeLabelFallsBackToUnknown(t *testing.T) {
	if got := normalizeLabel(""); got != "unknown" {
		t.Fatalf("expected unknown, got %q", got)
	}
	if got := normalizeLabel("find_customer"); got != "find_customer" {
		t.Fatalf("expected find_customer, got %q", got)
	}
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchPlainCounter(mfs []*dto.MetricFamily, name string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		return metric.GetCounter().GetValue(), nil
	}
	return 0, fmt.Errorf("metric %q has no samples", name)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		return metric.GetHistogram().GetSampleSum(), nil
	}
	return 0, fmt.Errorf("histogram %q has no samples", name)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
