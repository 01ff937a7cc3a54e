package events

import (
	"testing"
	"time"

	"proxycast-hq/flowscope/pkg/flow"
)

func recvEvent(t *testing.T, sub *Subscriber) Event {
	t.Helper()
	select {
	case event := <-sub.Events():
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestPublishFanOut(t *testing.T) {
	bus := NewBus(nil)

	a := bus.Subscribe()
	defer a.Close()
	b := bus.Subscribe()
	defer b.Close()

	if bus.SubscriberCount() != 2 {
		t.Fatalf("subscriber count = %d, want 2", bus.SubscriberCount())
	}

	bus.Publish(FlowDeleted("f1"))

	for _, sub := range []*Subscriber{a, b} {
		event := recvEvent(t, sub)
		if event.Type != EventFlowDeleted || event.ID != "f1" {
			t.Fatalf("event = %+v, want FlowDeleted f1", event)
		}
	}
}

func TestSubscriberSeesOnlyLaterEvents(t *testing.T) {
	bus := NewBus(nil)

	bus.Publish(FlowDeleted("before"))

	sub := bus.Subscribe()
	defer sub.Close()

	bus.Publish(FlowDeleted("after"))

	event := recvEvent(t, sub)
	if event.ID != "after" {
		t.Fatalf("event id = %q, want %q", event.ID, "after")
	}
	select {
	case extra := <-sub.Events():
		t.Fatalf("unexpected extra event %+v", extra)
	default:
	}
}

func TestPublishDropsOldestWhenQueueFull(t *testing.T) {
	bus := NewBus(&Config{QueueSize: 2})

	sub := bus.Subscribe()
	defer sub.Close()

	bus.Publish(FlowDeleted("e1"))
	bus.Publish(FlowDeleted("e2"))
	bus.Publish(FlowDeleted("e3"))

	if got := recvEvent(t, sub).ID; got != "e2" {
		t.Fatalf("first received = %q, want e2 after e1 was dropped", got)
	}
	if got := recvEvent(t, sub).ID; got != "e3" {
		t.Fatalf("second received = %q, want e3", got)
	}
	if bus.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", bus.Dropped())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	bus := NewBus(nil)

	sub := bus.Subscribe()
	sub.Close()
	sub.Close()

	if bus.SubscriberCount() != 0 {
		t.Fatalf("subscriber count = %d, want 0", bus.SubscriberCount())
	}

	// A publish after close must not panic or block.
	bus.Publish(FlowDeleted("late"))
}

func TestThresholdCheck(t *testing.T) {
	record := &flow.FlowRecord{
		ID:         "f1",
		Timestamps: flow.Timestamps{DurationMs: 12000},
		Response: &flow.Response{
			Usage: flow.TokenUsage{InputTokens: 800, OutputTokens: 400, TotalTokens: 1200},
		},
	}

	tests := []struct {
		name            string
		cfg             ThresholdConfig
		wantLatency     bool
		wantToken       bool
		wantInputToken  bool
		wantOutputToken bool
	}{
		{
			name: "latency exceeded",
			cfg:  ThresholdConfig{LatencyThresholdMs: 10000},

			wantLatency: true,
		},
		{
			name: "latency within threshold",
			cfg:  ThresholdConfig{LatencyThresholdMs: 20000},
		},
		{
			name:      "total tokens exceeded",
			cfg:       ThresholdConfig{TokenThreshold: 1000},
			wantToken: true,
		},
		{
			name:           "input and output tokens exceeded",
			cfg:            ThresholdConfig{InputTokenThreshold: 500, OutputTokenThreshold: 300},
			wantInputToken: true, wantOutputToken: true,
		},
		{
			name: "zero thresholds disable checks",
			cfg:  ThresholdConfig{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.cfg.Check(record)
			if result.LatencyExceeded != tt.wantLatency {
				t.Errorf("latency exceeded = %t, want %t", result.LatencyExceeded, tt.wantLatency)
			}
			if result.TokenExceeded != tt.wantToken {
				t.Errorf("token exceeded = %t, want %t", result.TokenExceeded, tt.wantToken)
			}
			if result.InputTokenExceeded != tt.wantInputToken {
				t.Errorf("input token exceeded = %t, want %t", result.InputTokenExceeded, tt.wantInputToken)
			}
			if result.OutputTokenExceeded != tt.wantOutputToken {
				t.Errorf("output token exceeded = %t, want %t", result.OutputTokenExceeded, tt.wantOutputToken)
			}
			if result.ActualLatencyMs != 12000 || result.ActualTokens != 1200 {
				t.Errorf("measured values = %d ms / %d tokens", result.ActualLatencyMs, result.ActualTokens)
			}
		})
	}
}

func TestCheckCompletionPublishesWarning(t *testing.T) {
	bus := NewBus(&Config{
		Thresholds: ThresholdConfig{Enabled: true, TokenThreshold: 100},
	})

	sub := bus.Subscribe()
	defer sub.Close()

	record := &flow.FlowRecord{
		ID:       "f1",
		Response: &flow.Response{Usage: flow.TokenUsage{TotalTokens: 150}},
	}

	result := bus.CheckCompletion(record)
	if !result.TokenExceeded {
		t.Fatal("expected token threshold exceeded")
	}

	event := recvEvent(t, sub)
	if event.Type != EventThresholdWarning || event.ID != "f1" {
		t.Fatalf("event = %+v, want ThresholdWarning f1", event)
	}
	if event.Result == nil || !event.Result.TokenExceeded {
		t.Fatalf("event result = %+v, want token exceeded", event.Result)
	}
}

func TestCheckCompletionDisabledPublishesNothing(t *testing.T) {
	bus := NewBus(&Config{
		Thresholds: ThresholdConfig{Enabled: false, TokenThreshold: 100},
	})

	sub := bus.Subscribe()
	defer sub.Close()

	record := &flow.FlowRecord{
		ID:       "f1",
		Response: &flow.Response{Usage: flow.TokenUsage{TotalTokens: 150}},
	}

	// Measured values are still reported while detection is off.
	result := bus.CheckCompletion(record)
	if !result.TokenExceeded || result.ActualTokens != 150 {
		t.Fatalf("result = %+v, want measured breach", result)
	}

	select {
	case event := <-sub.Events():
		t.Fatalf("unexpected event %+v while detection disabled", event)
	default:
	}
}

func TestRateTrackerWindow(t *testing.T) {
	rt := NewRateTracker(time.Minute)
	now := time.Now()

	rt.Record(now.Add(-2 * time.Minute))
	rt.Record(now.Add(-30 * time.Second))
	rt.Record(now)

	if got := rt.Count(); got != 2 {
		t.Fatalf("count = %d, want 2 inside the window", got)
	}
	if got := rt.Rate(); got != 2.0/60.0 {
		t.Fatalf("rate = %v, want %v", got, 2.0/60.0)
	}

	rt.SetWindow(10 * time.Second)
	if got := rt.Count(); got != 1 {
		t.Fatalf("count after narrowing = %d, want 1", got)
	}

	rt.SetWindow(0)
	if rt.Window() != 10*time.Second {
		t.Fatalf("window = %v, want unchanged 10s", rt.Window())
	}
}

func TestFlowStartedFeedsRateTracker(t *testing.T) {
	bus := NewBus(nil)

	bus.Publish(FlowStarted(flow.FlowSummary{ID: "f1"}))
	bus.Publish(FlowDeleted("f2"))

	if got := bus.Rate().Count(); got != 1 {
		t.Fatalf("rate count = %d, want 1 (only FlowStarted counts)", got)
	}
}
