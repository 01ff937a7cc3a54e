package flow

import "time"

// TimeRange bounds flow creation time. Both ends are inclusive; a nil end is
// unbounded.
type TimeRange struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// Contains reports whether t falls inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	if r.Start != nil && t.Before(*r.Start) {
		return false
	}
	if r.End != nil && t.After(*r.End) {
		return false
	}
	return true
}

// TokenRange bounds total token usage.
type TokenRange struct {
	Min *int `json:"min,omitempty"`
	Max *int `json:"max,omitempty"`
}

// LatencyRange bounds flow duration in milliseconds.
type LatencyRange struct {
	MinMs *int64 `json:"min_ms,omitempty"`
	MaxMs *int64 `json:"max_ms,omitempty"`
}

// Filter is the structured query filter. All present fields are conjunctive:
// a record matches only if it satisfies every one of them.
//
// ContentSearch and RequestSearch are case-insensitive substring matches
// evaluated against the response content and each request message's text
// respectively; a match never spans message boundaries.
//
// Tags is an any-of filter: a record matches if it carries at least one of
// the listed tags.
type Filter struct {
	TimeRange     *TimeRange    `json:"time_range,omitempty"`
	Providers     []string      `json:"providers,omitempty"`
	Models        []string      `json:"models,omitempty"`
	States        []FlowState   `json:"states,omitempty"`
	HasError      *bool         `json:"has_error,omitempty"`
	HasToolCalls  *bool         `json:"has_tool_calls,omitempty"`
	HasThinking   *bool         `json:"has_thinking,omitempty"`
	IsStreaming   *bool         `json:"is_streaming,omitempty"`
	ContentSearch string        `json:"content_search,omitempty"`
	RequestSearch string        `json:"request_search,omitempty"`
	TokenRange    *TokenRange   `json:"token_range,omitempty"`
	LatencyRange  *LatencyRange `json:"latency_range,omitempty"`
	Tags          []string      `json:"tags,omitempty"`
	StarredOnly   bool          `json:"starred_only,omitempty"`
	CredentialID  string        `json:"credential_id,omitempty"`
	FlowTypes     []FlowType    `json:"flow_types,omitempty"`
}

// SortBy enumerates the query sort keys.
type SortBy string

const (
	SortByCreatedAt     SortBy = "created_at"
	SortByDuration      SortBy = "duration"
	SortByTotalTokens   SortBy = "total_tokens"
	SortByContentLength SortBy = "content_length"
	SortByModel         SortBy = "model"
)

// Valid reports whether s is a known sort key.
func (s SortBy) Valid() bool {
	switch s {
	case SortByCreatedAt, SortByDuration, SortByTotalTokens, SortByContentLength, SortByModel:
		return true
	}
	return false
}
