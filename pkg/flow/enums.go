package flow

import (
	"encoding/json"
	"fmt"
)

// FlowState is the lifecycle state of a flow.
type FlowState string

const (
	// StatePending means the request was admitted but no response data has
	// arrived yet.
	StatePending FlowState = "Pending"
	// StateStreaming means response chunks are being received.
	StateStreaming FlowState = "Streaming"
	// StateCompleted means the exchange finished successfully.
	StateCompleted FlowState = "Completed"
	// StateFailed means the exchange ended with an error.
	StateFailed FlowState = "Failed"
	// StateCancelled means the exchange was aborted before completion.
	StateCancelled FlowState = "Cancelled"
)

// Terminal reports whether the state is final. No transition out of a
// terminal state is permitted.
func (s FlowState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Valid reports whether s is a known flow state.
func (s FlowState) Valid() bool {
	switch s {
	case StatePending, StateStreaming, StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// CanTransition reports whether a state change from one state to another is
// legal. States are monotonic along Pending → Streaming → terminal; a
// self-transition is allowed (idempotent update).
func CanTransition(from, to FlowState) bool {
	if from == to {
		return true
	}
	if from.Terminal() {
		return false
	}
	switch from {
	case StatePending:
		return to == StateStreaming || to.Terminal()
	case StateStreaming:
		return to.Terminal()
	}
	return false
}

// FlowTypeKind enumerates the well-known flow types.
type FlowTypeKind string

const (
	TypeChatCompletions   FlowTypeKind = "ChatCompletions"
	TypeAnthropicMessages FlowTypeKind = "AnthropicMessages"
	TypeGeminiGenerate    FlowTypeKind = "GeminiGenerateContent"
	TypeEmbeddings        FlowTypeKind = "Embeddings"
	// TypeOther tags a flow type this version does not know about. The
	// original label is carried in FlowType.Other.
	TypeOther FlowTypeKind = "Other"
)

// FlowType identifies the API shape of a flow. Well-known kinds serialize as
// bare strings ("ChatCompletions"); unknown kinds serialize as
// {"Other": "<label>"} so the upstream label survives a round trip.
type FlowType struct {
	Kind  FlowTypeKind
	Other string
}

// ChatCompletions and friends construct well-known flow types.
func ChatCompletions() FlowType       { return FlowType{Kind: TypeChatCompletions} }
func AnthropicMessages() FlowType     { return FlowType{Kind: TypeAnthropicMessages} }
func GeminiGenerateContent() FlowType { return FlowType{Kind: TypeGeminiGenerate} }
func Embeddings() FlowType            { return FlowType{Kind: TypeEmbeddings} }

// OtherFlowType constructs the catch-all variant carrying the original label.
func OtherFlowType(label string) FlowType {
	return FlowType{Kind: TypeOther, Other: label}
}

// String returns the label used in filters, exports and logs.
func (t FlowType) String() string {
	if t.Kind == TypeOther {
		return t.Other
	}
	return string(t.Kind)
}

// Equal reports whether two flow types match, comparing Other labels for the
// catch-all variant.
func (t FlowType) Equal(o FlowType) bool {
	if t.Kind != o.Kind {
		return false
	}
	if t.Kind == TypeOther {
		return t.Other == o.Other
	}
	return true
}

// MarshalJSON implements json.Marshaler.
func (t FlowType) MarshalJSON() ([]byte, error) {
	if t.Kind == TypeOther {
		return json.Marshal(map[string]string{"Other": t.Other})
	}
	return json.Marshal(string(t.Kind))
}

// UnmarshalJSON implements json.Unmarshaler. Unrecognized string values are
// folded into the Other variant rather than rejected.
func (t *FlowType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch FlowTypeKind(s) {
		case TypeChatCompletions, TypeAnthropicMessages, TypeGeminiGenerate, TypeEmbeddings:
			t.Kind = FlowTypeKind(s)
			t.Other = ""
		default:
			t.Kind = TypeOther
			t.Other = s
		}
		return nil
	}

	var obj map[string]string
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("invalid flow type: %s", string(data))
	}
	if label, ok := obj["Other"]; ok {
		t.Kind = TypeOther
		t.Other = label
		return nil
	}
	return fmt.Errorf("invalid flow type object: %s", string(data))
}

// StopReason describes why the model stopped generating. Like FlowType it is
// an open union: well-known reasons serialize as bare strings and unknown
// reasons as {"other": "<label>"}.
type StopReason struct {
	Kind  string
	Other string
}

// Well-known stop reasons.
const (
	StopEnd           = "stop"
	StopLength        = "length"
	StopToolCalls     = "tool_calls"
	StopContentFilter = "content_filter"
	StopFunctionCall  = "function_call"
	StopEndTurn       = "end_turn"
	stopOther         = "other"
)

// NewStopReason folds a raw upstream label into a StopReason.
func NewStopReason(label string) StopReason {
	switch label {
	case StopEnd, StopLength, StopToolCalls, StopContentFilter, StopFunctionCall, StopEndTurn:
		return StopReason{Kind: label}
	}
	return StopReason{Kind: stopOther, Other: label}
}

// String returns the original label.
func (r StopReason) String() string {
	if r.Kind == stopOther {
		return r.Other
	}
	return r.Kind
}

// MarshalJSON implements json.Marshaler.
func (r StopReason) MarshalJSON() ([]byte, error) {
	if r.Kind == stopOther {
		return json.Marshal(map[string]string{"other": r.Other})
	}
	return json.Marshal(r.Kind)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *StopReason) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = NewStopReason(s)
		return nil
	}
	var obj map[string]string
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("invalid stop reason: %s", string(data))
	}
	if label, ok := obj["other"]; ok {
		r.Kind = stopOther
		r.Other = label
		return nil
	}
	return fmt.Errorf("invalid stop reason object: %s", string(data))
}

// ErrorKind classifies a flow error. The set is open: values outside the
// known constants are preserved as-is, which keeps the original upstream
// label without a separate catch-all payload.
type ErrorKind string

const (
	ErrorNetwork            ErrorKind = "network"
	ErrorTimeout            ErrorKind = "timeout"
	ErrorAuthentication     ErrorKind = "authentication"
	ErrorRateLimit          ErrorKind = "rate_limit"
	ErrorContentFilter      ErrorKind = "content_filter"
	ErrorServer             ErrorKind = "server_error"
	ErrorBadRequest         ErrorKind = "bad_request"
	ErrorModelUnavailable   ErrorKind = "model_unavailable"
	ErrorTokenLimitExceeded ErrorKind = "token_limit_exceeded"
	ErrorOther              ErrorKind = "other"
)

// Known reports whether the kind is one of the predefined constants.
func (k ErrorKind) Known() bool {
	switch k {
	case ErrorNetwork, ErrorTimeout, ErrorAuthentication, ErrorRateLimit,
		ErrorContentFilter, ErrorServer, ErrorBadRequest,
		ErrorModelUnavailable, ErrorTokenLimitExceeded, ErrorOther:
		return true
	}
	return false
}
