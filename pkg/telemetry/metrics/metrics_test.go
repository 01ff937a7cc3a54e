package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorRecordsFlows(t *testing.T) {
	c := NewCollector(DefaultConfig(), prometheus.NewRegistry())

	c.RecordFlow("openai", "gpt-4o", "Completed", 1200*time.Millisecond, 100, 200)
	c.RecordFlow("openai", "gpt-4o", "Failed", 0, 0, 0)

	completed := testutil.ToFloat64(c.flowsTotal.WithLabelValues("openai", "gpt-4o", "Completed"))
	if completed != 1 {
		t.Errorf("flows_total{Completed} = %v, want 1", completed)
	}
	inputTokens := testutil.ToFloat64(c.tokensTotal.WithLabelValues("openai", "gpt-4o", "input"))
	if inputTokens != 100 {
		t.Errorf("flow_tokens_total{input} = %v, want 100", inputTokens)
	}
}

func TestCollectorGauges(t *testing.T) {
	c := NewCollector(nil, nil)

	c.SetStoreOccupancy(42)
	if got := testutil.ToFloat64(c.storeFlows); got != 42 {
		t.Errorf("store_flows = %v, want 42", got)
	}

	c.RecordEvictions(2)
	c.RecordEvictions(0)
	if got := testutil.ToFloat64(c.evictionsTotal); got != 2 {
		t.Errorf("store_evictions_total = %v, want 2", got)
	}

	c.RecordDroppedEvents(3)
	c.RecordDroppedEvents(0)
	if got := testutil.ToFloat64(c.eventsDropped); got != 3 {
		t.Errorf("events_dropped_total = %v, want 3", got)
	}
}

func TestHandlerServesExposition(t *testing.T) {
	c := NewCollector(nil, nil)
	c.RecordExport("json")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("metrics endpoint returned %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Error("expected exposition output")
	}
}
