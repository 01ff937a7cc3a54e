package stats

import (
	"proxycast-hq/flowscope/pkg/flow"
)

// FlowStats is the summary view over a set of flows.
type FlowStats struct {
	TotalFlows     int     `json:"total_flows"`
	ActiveFlows    int     `json:"active_flows"`
	CompletedFlows int     `json:"completed_flows"`
	FailedFlows    int     `json:"failed_flows"`
	CancelledFlows int     `json:"cancelled_flows"`
	SuccessRate    float64 `json:"success_rate"`

	AvgLatencyMs float64 `json:"avg_latency_ms"`
	MinLatencyMs int64   `json:"min_latency_ms"`
	MaxLatencyMs int64   `json:"max_latency_ms"`

	TotalInputTokens  int     `json:"total_input_tokens"`
	TotalOutputTokens int     `json:"total_output_tokens"`
	TotalTokens       int     `json:"total_tokens"`
	AvgTokensPerFlow  float64 `json:"avg_tokens_per_flow"`

	ByProvider map[string]int `json:"by_provider"`
	ByModel    map[string]int `json:"by_model"`
	ByState    map[string]int `json:"by_state"`
}

// Compute aggregates summary statistics over the given flows.
//
// SuccessRate is completed over finished (completed plus failed plus
// cancelled); latency figures consider only flows with a measured duration.
func Compute(records []*flow.FlowRecord) *FlowStats {
	s := &FlowStats{
		ByProvider: make(map[string]int),
		ByModel:    make(map[string]int),
		ByState:    make(map[string]int),
	}

	var latencySum int64
	var latencyCount int

	for _, record := range records {
		s.TotalFlows++
		s.ByState[string(record.State)]++
		if record.Metadata.Provider != "" {
			s.ByProvider[record.Metadata.Provider]++
		}
		if record.Request.Model != "" {
			s.ByModel[record.Request.Model]++
		}

		switch record.State {
		case flow.StateCompleted:
			s.CompletedFlows++
		case flow.StateFailed:
			s.FailedFlows++
		case flow.StateCancelled:
			s.CancelledFlows++
		default:
			s.ActiveFlows++
		}

		if d := record.Timestamps.DurationMs; d > 0 {
			latencySum += d
			latencyCount++
			if s.MinLatencyMs == 0 || d < s.MinLatencyMs {
				s.MinLatencyMs = d
			}
			if d > s.MaxLatencyMs {
				s.MaxLatencyMs = d
			}
		}

		if record.Response != nil {
			s.TotalInputTokens += record.Response.Usage.InputTokens
			s.TotalOutputTokens += record.Response.Usage.OutputTokens
		}
		s.TotalTokens += record.TotalTokens()
	}

	finished := s.CompletedFlows + s.FailedFlows + s.CancelledFlows
	if finished > 0 {
		s.SuccessRate = float64(s.CompletedFlows) / float64(finished)
	}
	if latencyCount > 0 {
		s.AvgLatencyMs = float64(latencySum) / float64(latencyCount)
	}
	if s.TotalFlows > 0 {
		s.AvgTokensPerFlow = float64(s.TotalTokens) / float64(s.TotalFlows)
	}

	return s
}
