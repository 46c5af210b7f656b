package authflow

import (
	"context"
	"sync"
	"testing"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricLoginSuccess)

	if got := m.Value(MetricLoginSuccess); got != 0 {
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
				m.Inc(MetricRegistrationOTPIssued)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricRegistrationOTPIssued); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestEngineRecordsDeliveryLatency(t *testing.T) {
	env := newTestEnv(t, false)

	if err := env.engine.RequestEmailOTP(context.Background(), "linus@example.com"); err != nil {
		t.Fatalf("RequestEmailOTP failed: %v", err)
	}

	snap := env.engine.MetricsSnapshot()
	var total uint64
	for _, v := range snap.Histograms[MetricDeliveryLatency] {
		total += v
	}
	if total != 1 {
		t.Fatalf("expected one latency observation, got %d", total)
	}
	if snap.Counters[MetricEmailOTPIssued] != 1 || snap.Counters[MetricDeliverySuccess] != 1 {
		t.Fatalf("unexpected counters %+v", snap.Counters)
	}
}

func TestEngineMetricsDisabled(t *testing.T) {
	env := newTestEnv(t, false, func(b *Builder) {
		b.WithMetricsEnabled(false)
	})

	if err := env.engine.RequestEmailOTP(context.Background(), "linus@example.com"); err != nil {
		t.Fatalf("RequestEmailOTP failed: %v", err)
	}
	if snap := env.engine.MetricsSnapshot(); len(snap.Counters) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap.Counters)
	}
}
