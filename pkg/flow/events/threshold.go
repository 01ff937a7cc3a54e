package events

import "proxycast-hq/flowscope/pkg/flow"

// ThresholdConfig is the process-wide threshold configuration consulted on
// every flow completion. A zero threshold disables that dimension's check;
// the dimension is still measured and reported.
type ThresholdConfig struct {
	Enabled              bool  `json:"enabled" yaml:"enabled"`
	LatencyThresholdMs   int64 `json:"latency_threshold_ms" yaml:"latency_threshold_ms"`
	TokenThreshold       int   `json:"token_threshold" yaml:"token_threshold"`
	InputTokenThreshold  int   `json:"input_token_threshold,omitempty" yaml:"input_token_threshold"`
	OutputTokenThreshold int   `json:"output_token_threshold,omitempty" yaml:"output_token_threshold"`
}

// DefaultThresholdConfig returns the default threshold configuration:
// detection disabled, 30s latency and 100k token ceilings once enabled.
func DefaultThresholdConfig() ThresholdConfig {
	return ThresholdConfig{
		Enabled:            false,
		LatencyThresholdMs: 30000,
		TokenThreshold:     100000,
	}
}

// Check measures a completed flow against the configured thresholds. The
// result always carries the measured values; exceeded flags are set only for
// dimensions with a positive threshold.
func (c ThresholdConfig) Check(record *flow.FlowRecord) ThresholdCheckResult {
	result := ThresholdCheckResult{
		ActualLatencyMs: record.Timestamps.DurationMs,
	}
	if record.Response != nil {
		result.ActualTokens = record.Response.Usage.TotalTokens
		result.ActualInputTokens = record.Response.Usage.InputTokens
		result.ActualOutputTokens = record.Response.Usage.OutputTokens
	}

	if c.LatencyThresholdMs > 0 && result.ActualLatencyMs > c.LatencyThresholdMs {
		result.LatencyExceeded = true
	}
	if c.TokenThreshold > 0 && result.ActualTokens > c.TokenThreshold {
		result.TokenExceeded = true
	}
	if c.InputTokenThreshold > 0 && result.ActualInputTokens > c.InputTokenThreshold {
		result.InputTokenExceeded = true
	}
	if c.OutputTokenThreshold > 0 && result.ActualOutputTokens > c.OutputTokenThreshold {
		result.OutputTokenExceeded = true
	}

	return result
}
