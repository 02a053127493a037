package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/MrEthical07/magiclink"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot magiclink.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() magiclink.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := magiclink.MetricsSnapshot{
		Counters:   make(map[magiclink.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[magiclink.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		next := make([]uint64, len(buckets))
		copy(next, buckets)
		out.Histograms[k] = next
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func (f *fakeSource) Realm() string { return "acme" }

func findSum(rm metricdata.ResourceMetrics, name string) (metricdata.DataPoint[int64], bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok && len(sum.DataPoints) > 0 {
				return sum.DataPoints[0], true
			}
		}
	}
	return metricdata.DataPoint[int64]{}, false
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("magiclink-test")

	src := &fakeSource{
		snapshot: magiclink.MetricsSnapshot{
			Counters: map[magiclink.MetricID]uint64{
				magiclink.MetricConsumeSuccess: 3,
			},
			Histograms: map[magiclink.MetricID][]uint64{
				magiclink.MetricConsumeLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(rm.ScopeMetrics) == 0 {
		t.Fatal("expected collected metrics, got none")
	}

	dp, ok := findSum(rm, "magiclink_consume_success_total")
	if !ok {
		t.Fatal("expected consume success counter")
	}
	if dp.Value != 3 {
		t.Fatalf("expected 3, got %d", dp.Value)
	}
	if realm, ok := dp.Attributes.Value(attribute.Key("realm")); !ok || realm.AsString() != "acme" {
		t.Fatalf("expected realm attribute, got %v", dp.Attributes)
	}
}

func TestExporterRejectsNilSource(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("magiclink-test")

	if _, err := NewOTelExporterFromSource(meter, nil); err == nil {
		t.Fatal("expected error for nil source")
	}
	if _, err := NewOTelExporter(meter, nil); err == nil {
		t.Fatal("expected error for nil engine")
	}
	if _, err := NewOTelExporterFromSource(nil, &fakeSource{}); err == nil {
		t.Fatal("expected error for nil meter")
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("magiclink-test")

	src := &fakeSource{
		snapshot: magiclink.MetricsSnapshot{
			Counters: map[magiclink.MetricID]uint64{
				magiclink.MetricIssueSent: 1,
			},
			Histograms: map[magiclink.MetricID][]uint64{
				magiclink.MetricIssueLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[magiclink.MetricIssueSent] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
