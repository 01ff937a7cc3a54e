package flow

import (
	"encoding/json"
	"time"
)

// Message is one parsed conversation message from the proxied request.
// Multimodal content is flattened to its text parts by the proxy layer.
type Message struct {
	Role       string      `json:"role"`
	Content    string      `json:"content"`
	Name       string      `json:"name,omitempty"`
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction is the function payload of a tool call.
type ToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolResult is the client-supplied result of an earlier tool call.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error"`
}

// ToolDefinition is a tool made available to the model in the request.
type ToolDefinition struct {
	Type     string          `json:"type"`
	Name     string          `json:"name"`
	Desc     string          `json:"description,omitempty"`
	Params   json.RawMessage `json:"parameters,omitempty"`
}

// Parameters holds the tunable sampling parameters of a request.
type Parameters struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Stream      bool     `json:"stream"`
}

// Request is the snapshot of the proxied request taken at admission.
type Request struct {
	Method        string            `json:"method"`
	Path          string            `json:"path"`
	Headers       map[string]string `json:"headers"`
	Body          json.RawMessage   `json:"body,omitempty"`
	Messages      []Message         `json:"messages"`
	SystemPrompt  string            `json:"system_prompt,omitempty"`
	Tools         []ToolDefinition  `json:"tools,omitempty"`
	Model         string            `json:"model"`
	OriginalModel string            `json:"original_model,omitempty"`
	Parameters    Parameters        `json:"parameters"`
	SizeBytes     int64             `json:"size_bytes"`
	Timestamp     time.Time         `json:"timestamp"`
}

// ThinkingContent is extended-reasoning output attached to a response.
type ThinkingContent struct {
	Text      string `json:"text"`
	Tokens    int    `json:"tokens,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// TokenUsage is the token accounting reported for a response. Total is the
// sum of the component counts; Normalize derives it when the upstream
// response omits it.
type TokenUsage struct {
	InputTokens      int `json:"input_tokens"`
	OutputTokens     int `json:"output_tokens"`
	CacheReadTokens  int `json:"cache_read_tokens,omitempty"`
	CacheWriteTokens int `json:"cache_write_tokens,omitempty"`
	ThinkingTokens   int `json:"thinking_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens"`
}

// ComponentSum returns input+output+cache+thinking.
func (u TokenUsage) ComponentSum() int {
	return u.InputTokens + u.OutputTokens + u.CacheReadTokens + u.CacheWriteTokens + u.ThinkingTokens
}

// Normalize sets TotalTokens to the component sum when the upstream response
// did not report a total.
func (u *TokenUsage) Normalize() {
	if u.TotalTokens == 0 {
		u.TotalTokens = u.ComponentSum()
	}
}

// ToolCallDelta is an incremental tool-call fragment within a stream chunk.
type ToolCallDelta struct {
	Index          int    `json:"index"`
	ID             string `json:"id,omitempty"`
	FunctionName   string `json:"function_name,omitempty"`
	ArgumentsDelta string `json:"arguments_delta,omitempty"`
}

// StreamChunk is one raw streaming event captured during a streaming
// response. Chunks are ordered by Index, not by arrival.
type StreamChunk struct {
	Index         int            `json:"index"`
	Event         string         `json:"event,omitempty"`
	Data          string         `json:"data"`
	Timestamp     time.Time      `json:"timestamp"`
	ContentDelta  string         `json:"content_delta,omitempty"`
	ToolCallDelta *ToolCallDelta `json:"tool_call_delta,omitempty"`
	ThinkingDelta string         `json:"thinking_delta,omitempty"`
}

// StreamInfo summarizes the streaming substructure of a response.
type StreamInfo struct {
	ChunkCount         int           `json:"chunk_count"`
	FirstChunkLatencyMs int64        `json:"first_chunk_latency_ms"`
	AvgChunkIntervalMs float64       `json:"avg_chunk_interval_ms"`
	RawChunks          []StreamChunk `json:"raw_chunks,omitempty"`
}

// Response is the snapshot of the upstream response.
type Response struct {
	StatusCode     int               `json:"status_code"`
	StatusText     string            `json:"status_text,omitempty"`
	Headers        map[string]string `json:"headers"`
	Body           json.RawMessage   `json:"body,omitempty"`
	Content        string            `json:"content"`
	Thinking       *ThinkingContent  `json:"thinking,omitempty"`
	ToolCalls      []ToolCall        `json:"tool_calls,omitempty"`
	Usage          TokenUsage        `json:"usage"`
	StopReason     *StopReason       `json:"stop_reason,omitempty"`
	SizeBytes      int64             `json:"size_bytes"`
	TimestampStart time.Time         `json:"timestamp_start"`
	TimestampEnd   time.Time         `json:"timestamp_end"`
	Stream         *StreamInfo       `json:"stream_info,omitempty"`
}

// FlowError describes a failed exchange.
type FlowError struct {
	Kind        ErrorKind `json:"error_type"`
	Message     string    `json:"message"`
	StatusCode  int       `json:"status_code,omitempty"`
	RawResponse string    `json:"raw_response,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Retryable   bool      `json:"retryable"`
}

// ClientInfo identifies the downstream caller.
type ClientInfo struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// RoutingInfo records the routing decision made for the flow.
type RoutingInfo struct {
	TargetURL           string `json:"target_url,omitempty"`
	RouteRule           string `json:"route_rule,omitempty"`
	LoadBalanceStrategy string `json:"load_balance_strategy,omitempty"`
}

// Metadata carries provider and routing context for a flow.
type Metadata struct {
	Provider        string                     `json:"provider"`
	CredentialID    string                     `json:"credential_id,omitempty"`
	CredentialName  string                     `json:"credential_name,omitempty"`
	RetryCount      int                        `json:"retry_count"`
	Client          ClientInfo                 `json:"client_info"`
	Routing         RoutingInfo                `json:"routing_info"`
	InjectedParams  map[string]json.RawMessage `json:"injected_params,omitempty"`
	ContextUsagePct *float64                   `json:"context_usage_percentage,omitempty"`
}

// Timestamps holds the lifecycle timestamps of a flow. DurationMs is defined
// only once RequestEnd is set; TTFBMs only once ResponseStart is set.
type Timestamps struct {
	Created       time.Time  `json:"created"`
	RequestStart  time.Time  `json:"request_start"`
	RequestEnd    *time.Time `json:"request_end,omitempty"`
	ResponseStart *time.Time `json:"response_start,omitempty"`
	ResponseEnd   *time.Time `json:"response_end,omitempty"`
	DurationMs    int64      `json:"duration_ms"`
	TTFBMs        *int64     `json:"ttfb_ms,omitempty"`
}

// Annotations are operator-attached fields. They are the only fields that
// remain mutable after a flow reaches a terminal state.
type Annotations struct {
	Marker  string   `json:"marker,omitempty"`
	Comment string   `json:"comment,omitempty"`
	Tags    []string `json:"tags"`
	Starred bool     `json:"starred"`
}

// HasTag reports whether the tag is present.
func (a *Annotations) HasTag(tag string) bool {
	for _, t := range a.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTag adds a tag if absent. Adding a present tag is a no-op.
func (a *Annotations) AddTag(tag string) {
	if !a.HasTag(tag) {
		a.Tags = append(a.Tags, tag)
	}
}

// RemoveTag removes a tag if present. Removing an absent tag is a no-op.
func (a *Annotations) RemoveTag(tag string) {
	for i, t := range a.Tags {
		if t == tag {
			a.Tags = append(a.Tags[:i], a.Tags[i+1:]...)
			return
		}
	}
}

// Clone returns a copy that shares no tag storage with the original.
func (a *Annotations) Clone() Annotations {
	out := *a
	if a.Tags != nil {
		out.Tags = append([]string{}, a.Tags...)
	}
	return out
}

// FlowRecord is one LLM API exchange tracked end to end.
type FlowRecord struct {
	ID          string      `json:"id"`
	Type        FlowType    `json:"flow_type"`
	State       FlowState   `json:"state"`
	Request     Request     `json:"request"`
	Response    *Response   `json:"response,omitempty"`
	Error       *FlowError  `json:"error,omitempty"`
	Metadata    Metadata    `json:"metadata"`
	Timestamps  Timestamps  `json:"timestamps"`
	Annotations Annotations `json:"annotations"`
}

// HasError reports whether the flow carries an error.
func (f *FlowRecord) HasError() bool { return f.Error != nil }

// HasToolCalls reports whether the response contains tool calls.
func (f *FlowRecord) HasToolCalls() bool {
	return f.Response != nil && len(f.Response.ToolCalls) > 0
}

// HasThinking reports whether the response contains thinking content.
func (f *FlowRecord) HasThinking() bool {
	return f.Response != nil && f.Response.Thinking != nil && f.Response.Thinking.Text != ""
}

// IsStreaming reports whether the request asked for a streaming response.
func (f *FlowRecord) IsStreaming() bool { return f.Request.Parameters.Stream }

// TotalTokens returns the response token total, or 0 before a response
// exists.
func (f *FlowRecord) TotalTokens() int {
	if f.Response == nil {
		return 0
	}
	return f.Response.Usage.TotalTokens
}

// ContentLength returns the length of the response text content.
func (f *FlowRecord) ContentLength() int {
	if f.Response == nil {
		return 0
	}
	return len(f.Response.Content)
}

// ChunkCount returns the number of captured stream chunks.
func (f *FlowRecord) ChunkCount() int {
	if f.Response == nil || f.Response.Stream == nil {
		return 0
	}
	return f.Response.Stream.ChunkCount
}

// Summary condenses the record into the shape carried by lifecycle events
// and list views.
func (f *FlowRecord) Summary() FlowSummary {
	s := FlowSummary{
		ID:           f.ID,
		Type:         f.Type,
		State:        f.State,
		Model:        f.Request.Model,
		Provider:     f.Metadata.Provider,
		CreatedAt:    f.Timestamps.Created,
		DurationMs:   f.Timestamps.DurationMs,
		HasError:     f.HasError(),
		HasToolCalls: f.HasToolCalls(),
		HasThinking:  f.HasThinking(),
	}
	if f.Response != nil {
		in := f.Response.Usage.InputTokens
		out := f.Response.Usage.OutputTokens
		s.InputTokens = &in
		s.OutputTokens = &out
		if f.Response.Content != "" {
			preview := f.Response.Content
			if len(preview) > 120 {
				preview = preview[:120]
			}
			s.ContentPreview = preview
		}
		if f.Response.Stream != nil {
			cc := f.Response.Stream.ChunkCount
			s.ChunkCount = &cc
		}
	}
	return s
}

// Clone returns a deep copy of the record. The store hands out clones so
// that query, stats and export results stay stable while the proxy layer
// keeps mutating the live record.
func (f *FlowRecord) Clone() *FlowRecord {
	c := *f

	c.Request.Headers = cloneStringMap(f.Request.Headers)
	c.Request.Body = cloneRaw(f.Request.Body)
	c.Request.Messages = append([]Message(nil), f.Request.Messages...)
	c.Request.Tools = append([]ToolDefinition(nil), f.Request.Tools...)
	c.Request.Parameters.Stop = append([]string(nil), f.Request.Parameters.Stop...)

	if f.Response != nil {
		r := *f.Response
		r.Headers = cloneStringMap(f.Response.Headers)
		r.Body = cloneRaw(f.Response.Body)
		r.ToolCalls = append([]ToolCall(nil), f.Response.ToolCalls...)
		if f.Response.Thinking != nil {
			t := *f.Response.Thinking
			r.Thinking = &t
		}
		if f.Response.StopReason != nil {
			sr := *f.Response.StopReason
			r.StopReason = &sr
		}
		if f.Response.Stream != nil {
			si := *f.Response.Stream
			si.RawChunks = append([]StreamChunk(nil), f.Response.Stream.RawChunks...)
			r.Stream = &si
		}
		c.Response = &r
	}
	if f.Error != nil {
		e := *f.Error
		c.Error = &e
	}

	c.Metadata.InjectedParams = nil
	if f.Metadata.InjectedParams != nil {
		c.Metadata.InjectedParams = make(map[string]json.RawMessage, len(f.Metadata.InjectedParams))
		for k, v := range f.Metadata.InjectedParams {
			c.Metadata.InjectedParams[k] = cloneRaw(v)
		}
	}
	if f.Metadata.ContextUsagePct != nil {
		p := *f.Metadata.ContextUsagePct
		c.Metadata.ContextUsagePct = &p
	}

	c.Timestamps.RequestEnd = cloneTime(f.Timestamps.RequestEnd)
	c.Timestamps.ResponseStart = cloneTime(f.Timestamps.ResponseStart)
	c.Timestamps.ResponseEnd = cloneTime(f.Timestamps.ResponseEnd)
	if f.Timestamps.TTFBMs != nil {
		v := *f.Timestamps.TTFBMs
		c.Timestamps.TTFBMs = &v
	}

	c.Annotations.Tags = append([]string(nil), f.Annotations.Tags...)

	return &c
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneRaw(r json.RawMessage) json.RawMessage {
	if r == nil {
		return nil
	}
	return append(json.RawMessage(nil), r...)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// FlowSummary is the condensed record shape used by lifecycle events and the
// recent-flows listing.
type FlowSummary struct {
	ID             string    `json:"id"`
	Type           FlowType  `json:"flow_type"`
	State          FlowState `json:"state"`
	Model          string    `json:"model"`
	Provider       string    `json:"provider"`
	CreatedAt      time.Time `json:"created_at"`
	DurationMs     int64     `json:"duration_ms"`
	InputTokens    *int      `json:"input_tokens,omitempty"`
	OutputTokens   *int      `json:"output_tokens,omitempty"`
	HasError       bool      `json:"has_error"`
	HasToolCalls   bool      `json:"has_tool_calls"`
	HasThinking    bool      `json:"has_thinking"`
	ContentPreview string    `json:"content_preview,omitempty"`
	ChunkCount     *int      `json:"chunk_count,omitempty"`
}
