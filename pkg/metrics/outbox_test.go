package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPublisherMetricsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxPublisherMetrics(reg)

	m.IncPublished("payment_succeeded")
	m.IncPublished("payment_succeeded")
	m.IncFailed("enrollment_created")
	m.IncDeadLettered("")
	m.ObserveBatch(120 * time.Millisecond)

	if got := testutil.ToFloat64(m.published.WithLabelValues("payment_succeeded")); got != 2 {
		t.Fatalf("published counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.failed.WithLabelValues("enrollment_created")); got != 1 {
		t.Fatalf("failed counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.deadLettered.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("empty event type should count under unknown, got %v", got)
	}
}

func TestPublisherMetricsNilRegisterer(t *testing.T) {
	m := NewOutboxPublisherMetrics(nil)
	// all recorders must be safe no-ops
	m.IncPublished("x")
	m.IncFailed("x")
	m.IncDeadLettered("x")
	m.ObserveBatch(time.Second)
}
