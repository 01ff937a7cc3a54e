package events

import (
	"proxycast-hq/flowscope/pkg/flow"
)

// EventType tags the variants of the Event union.
type EventType string

const (
	// EventFlowStarted announces a newly admitted flow.
	EventFlowStarted EventType = "FlowStarted"
	// EventFlowUpdated carries an incremental update to an in-flight flow.
	EventFlowUpdated EventType = "FlowUpdated"
	// EventFlowCompleted announces a successful completion.
	EventFlowCompleted EventType = "FlowCompleted"
	// EventFlowFailed announces a failure.
	EventFlowFailed EventType = "FlowFailed"
	// EventFlowDeleted announces removal of a flow from the store. Eviction
	// and cleanup emit one per removed record.
	EventFlowDeleted EventType = "FlowDeleted"
	// EventThresholdWarning announces a configured threshold breach.
	EventThresholdWarning EventType = "ThresholdWarning"
)

// FlowUpdate is the incremental payload of a FlowUpdated event.
type FlowUpdate struct {
	State         *flow.FlowState     `json:"state,omitempty"`
	ContentDelta  string              `json:"content_delta,omitempty"`
	ThinkingDelta string              `json:"thinking_delta,omitempty"`
	ToolCallDelta *flow.ToolCallDelta `json:"tool_call_delta,omitempty"`
	ChunkCount    *int                `json:"chunk_count,omitempty"`
}

// ThresholdCheckResult reports every threshold dimension measured for a
// completed flow. Dimensions that were not configured still carry their
// measured value with the exceeded flag false.
type ThresholdCheckResult struct {
	LatencyExceeded     bool  `json:"latency_exceeded"`
	TokenExceeded       bool  `json:"token_exceeded"`
	InputTokenExceeded  bool  `json:"input_token_exceeded"`
	OutputTokenExceeded bool  `json:"output_token_exceeded"`
	ActualLatencyMs     int64 `json:"actual_latency_ms"`
	ActualTokens        int   `json:"actual_tokens"`
	ActualInputTokens   int   `json:"actual_input_tokens"`
	ActualOutputTokens  int   `json:"actual_output_tokens"`
}

// Breached reports whether any dimension exceeded its threshold.
func (r ThresholdCheckResult) Breached() bool {
	return r.LatencyExceeded || r.TokenExceeded || r.InputTokenExceeded || r.OutputTokenExceeded
}

// Event is one notification on the bus. Exactly the fields belonging to the
// tagged Type are populated.
type Event struct {
	Type    EventType             `json:"type"`
	ID      string                `json:"id,omitempty"`
	Flow    *flow.FlowSummary     `json:"flow,omitempty"`
	Update  *FlowUpdate           `json:"update,omitempty"`
	Summary *flow.FlowSummary     `json:"summary,omitempty"`
	Error   *flow.FlowError       `json:"error,omitempty"`
	Result  *ThresholdCheckResult `json:"result,omitempty"`
}

// FlowStarted builds a FlowStarted event.
func FlowStarted(summary flow.FlowSummary) Event {
	return Event{Type: EventFlowStarted, ID: summary.ID, Flow: &summary}
}

// FlowUpdated builds a FlowUpdated event.
func FlowUpdated(id string, update FlowUpdate) Event {
	return Event{Type: EventFlowUpdated, ID: id, Update: &update}
}

// FlowCompleted builds a FlowCompleted event.
func FlowCompleted(id string, summary flow.FlowSummary) Event {
	return Event{Type: EventFlowCompleted, ID: id, Summary: &summary}
}

// FlowFailed builds a FlowFailed event.
func FlowFailed(id string, ferr flow.FlowError) Event {
	return Event{Type: EventFlowFailed, ID: id, Error: &ferr}
}

// FlowDeleted builds a FlowDeleted event.
func FlowDeleted(id string) Event {
	return Event{Type: EventFlowDeleted, ID: id}
}

// ThresholdWarning builds a ThresholdWarning event.
func ThresholdWarning(id string, result ThresholdCheckResult) Event {
	return Event{Type: EventThresholdWarning, ID: id, Result: &result}
}
