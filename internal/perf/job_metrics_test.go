package perf

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/stocktrail/stocktrail/internal/jobs"
)

func TestReconcileJobMetricsRecordRunsAndFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	for i := 0; i < 20; i++ {
		tracker := metrics.Track("batch:reconcile")
		time.Sleep(2 * time.Millisecond)
		if err := tracker.End(nil); err != nil {
			t.Fatalf("unexpected error ending tracker: %v", err)
		}
	}
	tracker := metrics.Track("batch:reconcile")
	failure := errors.New("store unreachable")
	if err := tracker.End(failure); !errors.Is(err, failure) {
		t.Fatalf("tracker swallowed the error: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	success := counterValue(t, families, "stocktrail_job_runs_total", map[string]string{"job": "batch:reconcile", "status": "success"})
	if success != 20 {
		t.Fatalf("expected 20 successful runs, got %v", success)
	}
	failures := counterValue(t, families, "stocktrail_job_failures_total", map[string]string{"job": "batch:reconcile"})
	if failures != 1 {
		t.Fatalf("expected 1 failure, got %v", failures)
	}
}

func counterValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metric:
		for _, metric := range family.GetMetric() {
			for key, want := range labels {
				found := false
				for _, pair := range metric.GetLabel() {
					if pair.GetName() == key && pair.GetValue() == want {
						found = true
						break
					}
				}
				if !found {
					continue metric
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}
