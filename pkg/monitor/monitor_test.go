package monitor

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"proxycast-hq/flowscope/pkg/flow"
	"proxycast-hq/flowscope/pkg/flow/events"
	"proxycast-hq/flowscope/pkg/flow/export"
	"proxycast-hq/flowscope/pkg/flow/store"
	"proxycast-hq/flowscope/pkg/telemetry/metrics"
)

func newTestMonitor(t *testing.T) *Monitor {
	t.Helper()
	cfg := DefaultConfig()
	cfg.MaxFlows = 50
	m, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func testRecord(id, provider, model string) *flow.FlowRecord {
	return &flow.FlowRecord{
		ID:   id,
		Type: flow.ChatCompletions(),
		Request: flow.Request{
			Method: "POST",
			Path:   "/v1/chat/completions",
			Model:  model,
		},
		Metadata: flow.Metadata{Provider: provider},
	}
}

func TestLifecycle(t *testing.T) {
	m := newTestMonitor(t)

	id, err := m.StartFlow(testRecord("", "kiro", "claude-sonnet-4"))
	if err != nil {
		t.Fatalf("StartFlow: %v", err)
	}
	if id == "" {
		t.Fatal("expected a generated flow id")
	}

	got, err := m.GetFlow(id)
	if err != nil {
		t.Fatalf("GetFlow: %v", err)
	}
	if got.State != flow.StatePending {
		t.Fatalf("state = %q, want %q", got.State, flow.StatePending)
	}

	record, err := m.CompleteFlow(id, &flow.Response{
		StatusCode: 200,
		Content:    "hello",
		Usage:      flow.TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	})
	if err != nil {
		t.Fatalf("CompleteFlow: %v", err)
	}
	if record.State != flow.StateCompleted {
		t.Fatalf("state = %q, want %q", record.State, flow.StateCompleted)
	}
	if record.Timestamps.RequestEnd == nil {
		t.Fatal("expected request_end to be set on completion")
	}
	if record.Response == nil || record.Response.Usage.TotalTokens != 15 {
		t.Fatal("expected response snapshot to survive completion")
	}
}

func TestFailAndCancel(t *testing.T) {
	m := newTestMonitor(t)

	failID, _ := m.StartFlow(testRecord("", "openai", "gpt-4o"))
	record, err := m.FailFlow(failID, flow.FlowError{
		Kind:    flow.ErrorRateLimit,
		Message: "429 from upstream",
	})
	if err != nil {
		t.Fatalf("FailFlow: %v", err)
	}
	if record.State != flow.StateFailed {
		t.Fatalf("state = %q, want %q", record.State, flow.StateFailed)
	}
	if record.Error == nil || record.Error.Kind != flow.ErrorRateLimit {
		t.Fatal("expected the classified error on the record")
	}

	cancelID, _ := m.StartFlow(testRecord("", "openai", "gpt-4o"))
	record, err = m.CancelFlow(cancelID)
	if err != nil {
		t.Fatalf("CancelFlow: %v", err)
	}
	if record.State != flow.StateCancelled {
		t.Fatalf("state = %q, want %q", record.State, flow.StateCancelled)
	}
}

func TestEvictionsReachMetrics(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFlows = 2
	collector := metrics.NewCollector(nil, nil)
	m, err := New(cfg, collector)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { m.Close() })

	// Overfilling the store by two forces two evictions of completed flows.
	for i := 0; i < 4; i++ {
		id, err := m.StartFlow(testRecord("", "openai", "gpt-4o"))
		if err != nil {
			t.Fatalf("StartFlow: %v", err)
		}
		if _, err := m.CompleteFlow(id, &flow.Response{StatusCode: 200}); err != nil {
			t.Fatalf("CompleteFlow: %v", err)
		}
	}

	families, err := collector.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var evicted float64
	for _, mf := range families {
		if mf.GetName() != "flowscope_monitor_store_evictions_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			evicted += metric.GetCounter().GetValue()
		}
	}
	if evicted != 2 {
		t.Fatalf("store_evictions_total = %v, want 2", evicted)
	}
}

func TestDisabledNoOps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	m, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	id, err := m.StartFlow(testRecord("", "kiro", "claude-sonnet-4"))
	if err != nil {
		t.Fatalf("StartFlow while disabled: %v", err)
	}
	if id == "" {
		t.Fatal("expected an id even while disabled")
	}
	if m.Store().Len() != 0 {
		t.Fatalf("store length = %d, want 0 while disabled", m.Store().Len())
	}

	if record, err := m.UpdateFlow(id, store.Patch{}); err != nil || record != nil {
		t.Fatalf("UpdateFlow while disabled = (%v, %v), want (nil, nil)", record, err)
	}
	if err := m.AppendChunk(id, flow.StreamChunk{Data: "x"}); err != nil {
		t.Fatalf("AppendChunk while disabled: %v", err)
	}

	m.SetEnabled(true)
	if !m.Enabled() {
		t.Fatal("expected enabled after SetEnabled(true)")
	}
	if _, err := m.StartFlow(testRecord("f1", "kiro", "claude-sonnet-4")); err != nil {
		t.Fatalf("StartFlow after enable: %v", err)
	}
	if m.Store().Len() != 1 {
		t.Fatalf("store length = %d, want 1", m.Store().Len())
	}
}

func TestThresholdWarningOnCompletion(t *testing.T) {
	m := newTestMonitor(t)
	m.SetThresholdConfig(events.ThresholdConfig{
		Enabled:        true,
		TokenThreshold: 100,
	})

	sub := m.Subscribe()
	defer sub.Close()

	id, _ := m.StartFlow(testRecord("", "kiro", "claude-sonnet-4"))
	if _, err := m.CompleteFlow(id, &flow.Response{
		StatusCode: 200,
		Usage:      flow.TokenUsage{InputTokens: 100, OutputTokens: 50, TotalTokens: 150},
	}); err != nil {
		t.Fatalf("CompleteFlow: %v", err)
	}

	var sawWarning bool
	deadline := time.After(time.Second)
	for !sawWarning {
		select {
		case ev := <-sub.Events():
			if ev.Type == events.EventThresholdWarning {
				if ev.ID != id {
					t.Fatalf("warning id = %q, want %q", ev.ID, id)
				}
				if ev.Result == nil || !ev.Result.TokenExceeded {
					t.Fatal("expected token_exceeded in the warning result")
				}
				sawWarning = true
			}
		case <-deadline:
			t.Fatal("no threshold warning observed")
		}
	}
}

func TestExportSelection(t *testing.T) {
	m := newTestMonitor(t)
	for _, r := range []*flow.FlowRecord{
		testRecord("f1", "kiro", "claude-sonnet-4"),
		testRecord("f2", "openai", "gpt-4o"),
		testRecord("f3", "openai", "gpt-4o-mini"),
	} {
		if _, err := m.StartFlow(r); err != nil {
			t.Fatalf("StartFlow(%s): %v", r.ID, err)
		}
	}

	ctx := context.Background()

	var buf bytes.Buffer
	result, err := m.Export(ctx, ExportRequest{
		Options: export.Options{Format: export.FormatJSONL},
		Filter:  &flow.Filter{Providers: []string{"openai"}},
	}, &buf)
	if err != nil {
		t.Fatalf("Export by filter: %v", err)
	}
	if result.FlowCount != 2 {
		t.Fatalf("flow count = %d, want 2", result.FlowCount)
	}
	if lines := strings.Count(strings.TrimSpace(buf.String()), "\n") + 1; lines != 2 {
		t.Fatalf("jsonl lines = %d, want 2", lines)
	}

	buf.Reset()
	result, err = m.Export(ctx, ExportRequest{
		Options: export.Options{Format: export.FormatJSON},
		FlowIDs: []string{"f1"},
	}, &buf)
	if err != nil {
		t.Fatalf("Export by ids: %v", err)
	}
	if result.FlowCount != 1 {
		t.Fatalf("flow count = %d, want 1", result.FlowCount)
	}
	if result.ContentType != "application/json" {
		t.Fatalf("content type = %q", result.ContentType)
	}

	_, err = m.Export(ctx, ExportRequest{
		Filter:  &flow.Filter{},
		FlowIDs: []string{"f1"},
	}, &buf)
	if err == nil {
		t.Fatal("expected error for filter plus flow_ids")
	}

	_, err = m.Export(ctx, ExportRequest{FlowIDs: []string{"missing"}}, &buf)
	if err == nil {
		t.Fatal("expected error for unknown flow id")
	}
}

func TestExportSearchEmpty(t *testing.T) {
	m := newTestMonitor(t)
	if _, err := m.StartFlow(testRecord("f1", "kiro", "claude-sonnet-4")); err != nil {
		t.Fatalf("StartFlow: %v", err)
	}

	var buf bytes.Buffer
	result, err := m.ExportSearch(context.Background(), "no-such-term", 10, export.Options{}, &buf)
	if err != nil {
		t.Fatalf("ExportSearch: %v", err)
	}
	if result.FlowCount != 0 {
		t.Fatalf("flow count = %d, want 0 for empty search", result.FlowCount)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Fatalf("body = %q, want empty array", buf.String())
	}
}

func TestAnnotationsPassthrough(t *testing.T) {
	m := newTestMonitor(t)
	id, _ := m.StartFlow(testRecord("f1", "kiro", "claude-sonnet-4"))

	if _, err := m.AddTags(id, "slow", "review"); err != nil {
		t.Fatalf("AddTags: %v", err)
	}
	starred, err := m.ToggleStar(id)
	if err != nil {
		t.Fatalf("ToggleStar: %v", err)
	}
	if !starred {
		t.Fatal("expected starred after first toggle")
	}
	if _, err := m.SetComment(id, "worth a look"); err != nil {
		t.Fatalf("SetComment: %v", err)
	}

	got, _ := m.GetFlow(id)
	if !got.Annotations.Starred || got.Annotations.Comment != "worth a look" {
		t.Fatalf("annotations = %+v", got.Annotations)
	}
	if len(got.Annotations.Tags) != 2 {
		t.Fatalf("tags = %v, want 2 entries", got.Annotations.Tags)
	}

	tags := m.AllTags()
	if len(tags) != 2 || tags[0] != "review" || tags[1] != "slow" {
		t.Fatalf("AllTags = %v", tags)
	}
}

func TestDebugSnapshot(t *testing.T) {
	m := newTestMonitor(t)
	active, _ := m.StartFlow(testRecord("", "kiro", "claude-sonnet-4"))
	done, _ := m.StartFlow(testRecord("", "kiro", "claude-sonnet-4"))
	if _, err := m.CompleteFlow(done, &flow.Response{StatusCode: 200}); err != nil {
		t.Fatalf("CompleteFlow: %v", err)
	}

	if _, err := m.GetFlow(active); err != nil {
		t.Fatalf("GetFlow: %v", err)
	}

	info := m.Debug()
	if !info.Enabled || !info.ConfigEnabled {
		t.Fatalf("enabled flags = %+v", info)
	}
	if info.MemoryFlowCount != 2 {
		t.Fatalf("memory flow count = %d, want 2", info.MemoryFlowCount)
	}
	if info.ActiveFlowCount != 1 {
		t.Fatalf("active flow count = %d, want 1", info.ActiveFlowCount)
	}
	if info.MaxMemoryFlows != 50 {
		t.Fatalf("max memory flows = %d, want 50", info.MaxMemoryFlows)
	}
	if len(info.MemoryFlowIDs) != 2 {
		t.Fatalf("memory flow ids = %v", info.MemoryFlowIDs)
	}
}

func TestRequestRateAndWindow(t *testing.T) {
	m := newTestMonitor(t)
	for i := 0; i < 3; i++ {
		if _, err := m.StartFlow(testRecord("", "kiro", "claude-sonnet-4")); err != nil {
			t.Fatalf("StartFlow: %v", err)
		}
	}

	info := m.RequestRate()
	if info.Count != 3 {
		t.Fatalf("rate count = %d, want 3", info.Count)
	}
	if info.WindowSeconds != 60 {
		t.Fatalf("window = %v, want 60s", info.WindowSeconds)
	}

	if err := m.SetRateWindow(10 * time.Second); err != nil {
		t.Fatalf("SetRateWindow: %v", err)
	}
	if got := m.RequestRate().WindowSeconds; got != 10 {
		t.Fatalf("window = %v, want 10s", got)
	}
	if err := m.SetRateWindow(0); err == nil {
		t.Fatal("expected error for non-positive window")
	}
}

func TestRecentOrder(t *testing.T) {
	m := newTestMonitor(t)
	for _, id := range []string{"f1", "f2", "f3"} {
		if _, err := m.StartFlow(testRecord(id, "kiro", "claude-sonnet-4")); err != nil {
			t.Fatalf("StartFlow: %v", err)
		}
	}

	recent, err := m.Recent(2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("recent length = %d, want 2", len(recent))
	}
}
