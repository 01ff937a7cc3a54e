package stats

import (
	"testing"
	"time"

	"proxycast-hq/flowscope/pkg/flow"
)

func record(id, provider, model string, state flow.FlowState, durationMs int64, tokens flow.TokenUsage, created time.Time) *flow.FlowRecord {
	r := &flow.FlowRecord{
		ID:    id,
		Type:  flow.ChatCompletions(),
		State: state,
		Request: flow.Request{
			Model: model,
		},
		Metadata: flow.Metadata{
			Provider: provider,
		},
		Timestamps: flow.Timestamps{
			Created:    created,
			DurationMs: durationMs,
		},
	}
	if tokens != (flow.TokenUsage{}) {
		r.Response = &flow.Response{StatusCode: 200, Usage: tokens}
	}
	return r
}

func usage(in, out int) flow.TokenUsage {
	return flow.TokenUsage{InputTokens: in, OutputTokens: out, TotalTokens: in + out}
}

func TestComputeEmpty(t *testing.T) {
	s := Compute(nil)
	if s.TotalFlows != 0 || s.SuccessRate != 0 || s.AvgLatencyMs != 0 || s.AvgTokensPerFlow != 0 {
		t.Errorf("empty input must yield zeroed stats: %+v", s)
	}
	if s.ByProvider == nil || s.ByModel == nil || s.ByState == nil {
		t.Error("maps must be allocated even for empty input")
	}
}

func TestComputeAggregates(t *testing.T) {
	base := time.Now()
	records := []*flow.FlowRecord{
		record("a", "openai", "gpt-4o", flow.StateCompleted, 100, usage(10, 20), base),
		record("b", "openai", "gpt-4o", flow.StateCompleted, 300, usage(30, 40), base),
		record("c", "anthropic", "claude", flow.StateFailed, 0, flow.TokenUsage{}, base),
		record("d", "anthropic", "claude", flow.StatePending, 0, flow.TokenUsage{}, base),
	}

	s := Compute(records)

	if s.TotalFlows != 4 || s.CompletedFlows != 2 || s.FailedFlows != 1 || s.ActiveFlows != 1 {
		t.Errorf("counts wrong: %+v", s)
	}
	// 2 completed of 3 finished.
	if diff := s.SuccessRate - 2.0/3.0; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("success_rate = %v, want 2/3", s.SuccessRate)
	}
	if s.AvgLatencyMs != 200 || s.MinLatencyMs != 100 || s.MaxLatencyMs != 300 {
		t.Errorf("latency wrong: avg=%v min=%d max=%d", s.AvgLatencyMs, s.MinLatencyMs, s.MaxLatencyMs)
	}
	if s.TotalInputTokens != 40 || s.TotalOutputTokens != 60 || s.TotalTokens != 100 {
		t.Errorf("tokens wrong: %+v", s)
	}
	if s.AvgTokensPerFlow != 25 {
		t.Errorf("avg_tokens_per_flow = %v, want 25", s.AvgTokensPerFlow)
	}
	if s.ByProvider["openai"] != 2 || s.ByModel["claude"] != 2 || s.ByState["Pending"] != 1 {
		t.Errorf("grouping wrong: %+v", s)
	}
}

func TestLatencyHistogram(t *testing.T) {
	base := time.Now()
	records := []*flow.FlowRecord{
		record("a", "p", "m", flow.StateCompleted, 50, flow.TokenUsage{}, base),
		record("b", "p", "m", flow.StateCompleted, 750, flow.TokenUsage{}, base),
		record("c", "p", "m", flow.StateCompleted, 1500, flow.TokenUsage{}, base),
		record("d", "p", "m", flow.StateCompleted, 0, flow.TokenUsage{}, base), // unmeasured
	}

	buckets := LatencyHistogram(records, []int64{100, 500, 1000})

	labels := []string{"0-100ms", "100-500ms", "500-1000ms", ">1000ms"}
	counts := []int{1, 0, 1, 1}
	if len(buckets) != len(labels) {
		t.Fatalf("expected %d buckets, got %d", len(labels), len(buckets))
	}
	for i := range labels {
		if buckets[i].Label != labels[i] {
			t.Errorf("bucket %d label = %q, want %q", i, buckets[i].Label, labels[i])
		}
		if buckets[i].Count != counts[i] {
			t.Errorf("bucket %q count = %d, want %d", labels[i], buckets[i].Count, counts[i])
		}
	}
}

func TestRequestTrendFillsGaps(t *testing.T) {
	base := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	records := []*flow.FlowRecord{
		record("a", "p", "m", flow.StateCompleted, 0, flow.TokenUsage{}, base),
		record("b", "p", "m", flow.StateCompleted, 0, flow.TokenUsage{}, base.Add(30*time.Second)),
		record("c", "p", "m", flow.StateCompleted, 0, flow.TokenUsage{}, base.Add(3*time.Minute)),
	}

	trend := requestTrend(records, time.Minute, nil)
	if len(trend) != 4 {
		t.Fatalf("expected 4 intervals including gaps, got %d", len(trend))
	}
	wantCounts := []int{2, 0, 0, 1}
	for i, want := range wantCounts {
		if trend[i].Count != want {
			t.Errorf("interval %d count = %d, want %d", i, trend[i].Count, want)
		}
	}
}

func TestComputeEnhanced(t *testing.T) {
	base := time.Now()
	records := []*flow.FlowRecord{
		record("a", "openai", "gpt-4o", flow.StateCompleted, 200, usage(100, 200), base),
		record("b", "openai", "gpt-4o", flow.StateFailed, 0, flow.TokenUsage{}, base.Add(time.Second)),
		record("c", "anthropic", "claude", flow.StateCompleted, 400, usage(50, 50), base.Add(2*time.Second)),
	}
	records[1].Error = &flow.FlowError{Kind: flow.ErrorRateLimit, Message: "429"}

	es := ComputeEnhanced(records, Options{RequestRate: 1.5})

	d := es.TokenByModel["gpt-4o"]
	if d.Count != 1 || d.TotalTokens != 300 || d.AvgTokens != 300 {
		t.Errorf("gpt-4o distribution wrong: %+v", d)
	}
	if es.SuccessByProvider["openai"] != 0.5 {
		t.Errorf("openai success = %v, want 0.5", es.SuccessByProvider["openai"])
	}
	if es.SuccessByProvider["anthropic"] != 1 {
		t.Errorf("anthropic success = %v, want 1", es.SuccessByProvider["anthropic"])
	}
	if es.ErrorDistribution["rate_limit"] != 1 {
		t.Errorf("error distribution wrong: %+v", es.ErrorDistribution)
	}
	if es.RequestRate != 1.5 {
		t.Errorf("request rate not carried through: %v", es.RequestRate)
	}
	if es.TimeRange == nil || !es.TimeRange.Start.Equal(base) || !es.TimeRange.End.Equal(base.Add(2*time.Second)) {
		t.Errorf("time range wrong: %+v", es.TimeRange)
	}
}

func TestComputeEnhancedHonorsRequestedWindow(t *testing.T) {
	base := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	records := []*flow.FlowRecord{
		record("early", "openai", "gpt-4o", flow.StateCompleted, 100, usage(10, 10), base.Add(-time.Hour)),
		record("a", "openai", "gpt-4o", flow.StateCompleted, 100, usage(10, 10), base.Add(time.Minute)),
		record("b", "openai", "gpt-4o", flow.StateCompleted, 100, usage(10, 10), base.Add(2*time.Minute)),
	}

	start, end := base, base.Add(4*time.Minute)
	es := ComputeEnhanced(records, Options{
		TimeRange: &flow.TimeRange{Start: &start, End: &end},
	})

	// The flow before the window must not be aggregated.
	if es.TotalFlows != 2 {
		t.Fatalf("expected 2 flows inside the window, got %d", es.TotalFlows)
	}
	if d := es.TokenByModel["gpt-4o"]; d.Count != 2 || d.TotalTokens != 40 {
		t.Errorf("token distribution includes out-of-window flows: %+v", d)
	}

	// The trend spans the full requested window, empty edge intervals
	// included, not just the intervals that saw traffic.
	wantCounts := []int{0, 1, 1, 0, 0}
	if len(es.RequestTrend) != len(wantCounts) {
		t.Fatalf("expected %d trend intervals across the window, got %d", len(wantCounts), len(es.RequestTrend))
	}
	for i, want := range wantCounts {
		if es.RequestTrend[i].Count != want {
			t.Errorf("interval %d count = %d, want %d", i, es.RequestTrend[i].Count, want)
		}
	}
	if !es.RequestTrend[0].Timestamp.Equal(base) {
		t.Errorf("trend starts at %v, want %v", es.RequestTrend[0].Timestamp, base)
	}

	// The result reports the requested bounds, not the observed ones.
	if es.TimeRange == nil || !es.TimeRange.Start.Equal(start) || !es.TimeRange.End.Equal(end) {
		t.Errorf("time range = %+v, want requested window", es.TimeRange)
	}
}
