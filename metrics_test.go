package magiclink

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricConsumeSuccess)

	if got := m.Value(MetricConsumeSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if snap := m.Snapshot(); len(snap.Counters) != 0 || len(snap.Histograms) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}

func TestMetricsEnabledIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricIssueSent)
	m.Inc(MetricIssueSent)
	m.Inc(MetricIssueSent)

	if got := m.Value(MetricIssueSent); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestMetricsOutOfRangeIgnored(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Inc(metricIDCount)
	m.Observe(metricIDCount+3, time.Millisecond)

	if got := m.Value(metricIDCount); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestMetricsNilReceiverSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricIssueSent)
	m.Observe(MetricIssueLatency, time.Millisecond)
	if m.Enabled() || m.LatencyEnabled() {
		t.Fatal("nil metrics must report disabled")
	}
	if got := m.Value(MetricIssueSent); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricConsumeReplay)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricConsumeReplay); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		700 * time.Millisecond,
	}

	for _, d := range observations {
		m.Observe(MetricConsumeLatency, d)
	}

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricConsumeLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}

	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
}

func TestMetricsObserveIgnoresCounterIDs(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Observe(MetricIssueSent, time.Millisecond)

	snap := m.Snapshot()
	if _, ok := snap.Histograms[MetricIssueSent]; ok {
		t.Fatal("counter ids must not appear as histograms")
	}
	if got := snap.Counters[MetricIssueSent]; got != 0 {
		t.Fatalf("observe must not bump the counter, got %d", got)
	}
}

func TestMetricsSnapshotConsistency(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	m.Inc(MetricConsumeSuccess)
	m.Inc(MetricConsumeFailure)
	m.Inc(MetricConsumeFailure)
	m.Observe(MetricIssueLatency, 2*time.Millisecond)

	snap := m.Snapshot()

	if snap.Counters[MetricConsumeSuccess] != 1 {
		t.Fatalf("expected MetricConsumeSuccess=1 got %d", snap.Counters[MetricConsumeSuccess])
	}
	if snap.Counters[MetricConsumeFailure] != 2 {
		t.Fatalf("expected MetricConsumeFailure=2 got %d", snap.Counters[MetricConsumeFailure])
	}
	if _, ok := snap.Counters[MetricIssueLatency]; ok {
		t.Fatal("latency ids must not appear as counters")
	}
	if len(snap.Histograms) != 2 {
		t.Fatalf("expected 2 histograms, got %d", len(snap.Histograms))
	}
	if snap.Histograms[MetricIssueLatency][0] != 1 {
		t.Fatalf("expected first histogram bucket=1 got %d", snap.Histograms[MetricIssueLatency][0])
	}
}

func TestMetricsLatencyRequiresEnabled(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false, EnableLatencyHistograms: true})
	if m.LatencyEnabled() {
		t.Fatal("latency histograms must follow the master switch")
	}
}
