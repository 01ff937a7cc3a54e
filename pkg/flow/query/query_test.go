package query

import (
	"fmt"
	"testing"
	"time"

	"proxycast-hq/flowscope/pkg/flow"
)

func record(id, provider, model string, state flow.FlowState, created time.Time) *flow.FlowRecord {
	return &flow.FlowRecord{
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
			Created: created,
		},
	}
}

func withResponse(r *flow.FlowRecord, content string, tokens int) *flow.FlowRecord {
	r.Response = &flow.Response{
		StatusCode: 200,
		Content:    content,
		Usage:      flow.TokenUsage{TotalTokens: tokens},
	}
	return r
}

func TestMatchesConjunction(t *testing.T) {
	base := time.Now()
	r := record("f1", "kiro", "claude-sonnet-4", flow.StateCompleted, base)

	tests := []struct {
		name   string
		filter *flow.Filter
		want   bool
	}{
		{"nil filter", nil, true},
		{"provider and state both match", &flow.Filter{Providers: []string{"kiro"}, States: []flow.FlowState{flow.StateCompleted}}, true},
		{"provider matches, state does not", &flow.Filter{Providers: []string{"kiro"}, States: []flow.FlowState{flow.StateFailed}}, false},
		{"provider case-insensitive", &flow.Filter{Providers: []string{"Kiro"}}, true},
		{"wrong provider", &flow.Filter{Providers: []string{"openai"}}, false},
		{"model any-of", &flow.Filter{Models: []string{"gpt-4o", "claude-sonnet-4"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(r, tt.filter); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestContentSearch(t *testing.T) {
	r := withResponse(record("f1", "openai", "gpt-4o", flow.StateCompleted, time.Now()), "The Quick Brown Fox", 10)

	if !Matches(r, &flow.Filter{ContentSearch: "quick brown"}) {
		t.Error("expected case-insensitive content match")
	}
	if Matches(r, &flow.Filter{ContentSearch: "lazy dog"}) {
		t.Error("unexpected content match")
	}

	noResp := record("f2", "openai", "gpt-4o", flow.StatePending, time.Now())
	if Matches(noResp, &flow.Filter{ContentSearch: "anything"}) {
		t.Error("flow without response must not match content search")
	}
}

func TestRequestSearchDoesNotSpanMessages(t *testing.T) {
	r := record("f1", "openai", "gpt-4o", flow.StateCompleted, time.Now())
	r.Request.Messages = []flow.Message{
		{Role: "user", Content: "hello wor"},
		{Role: "assistant", Content: "ld again"},
	}

	if Matches(r, &flow.Filter{RequestSearch: "world"}) {
		t.Error("a match must not span message boundaries")
	}
	if !Matches(r, &flow.Filter{RequestSearch: "HELLO"}) {
		t.Error("expected case-insensitive match inside one message")
	}
}

func TestTagsAnyOf(t *testing.T) {
	r := record("f1", "openai", "gpt-4o", flow.StateCompleted, time.Now())
	r.Annotations.Tags = []string{"triage", "slow"}

	if !Matches(r, &flow.Filter{Tags: []string{"slow", "absent"}}) {
		t.Error("expected any-of tag match")
	}
	if Matches(r, &flow.Filter{Tags: []string{"absent"}}) {
		t.Error("unexpected tag match")
	}
}

func TestExpressionEval(t *testing.T) {
	base := time.Now()
	slow := withResponse(record("slow", "openai", "gpt-4o", flow.StateCompleted, base), "response text", 2000)
	slow.Timestamps.DurationMs = 5000
	failed := record("failed", "anthropic", "claude-sonnet-4", flow.StateFailed, base)
	failed.Error = &flow.FlowError{Kind: flow.ErrorRateLimit, Message: "429"}
	starred := withResponse(record("starred", "kiro", "claude-haiku", flow.StateCompleted, base), "short", 50)
	starred.Annotations.Starred = true
	starred.Annotations.Tags = []string{"triage"}

	records := []*flow.FlowRecord{slow, failed, starred}

	tests := []struct {
		expr string
		want []string
	}{
		{`provider == "openai"`, []string{"slow"}},
		{`provider != "openai"`, []string{"failed", "starred"}},
		{`total_tokens > 1000`, []string{"slow"}},
		{`duration >= 5000`, []string{"slow"}},
		{`has_error`, []string{"failed"}},
		{`not has_error`, []string{"slow", "starred"}},
		{`error_type == "rate_limit"`, []string{"failed"}},
		{`starred and tags contains "triage"`, []string{"starred"}},
		{`provider in ["openai", "anthropic"]`, []string{"slow", "failed"}},
		{`model contains "claude"`, []string{"failed", "starred"}},
		{`has_error or (total_tokens > 1000 and state == "completed")`, []string{"slow", "failed"}},
		{`state == "completed" and not starred`, []string{"slow"}},
		{`PROVIDER == "OpenAI"`, []string{"slow"}},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			pred, err := Parse(tt.expr)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			var got []string
			for _, r := range records {
				if pred(r) {
					got = append(got, r.ID)
				}
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("matched %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExpressionPrecedence(t *testing.T) {
	// and binds tighter than or: a or b and c == a or (b and c).
	r := record("f1", "openai", "gpt-4o", flow.StateCompleted, time.Now())

	pred, err := Parse(`provider == "openai" or provider == "none" and has_error`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !pred(r) {
		t.Error("left or-arm alone should satisfy the expression")
	}
}

func TestExpressionErrors(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"unknown field", `bogus == "x"`},
		{"unterminated string", `provider == "openai`},
		{"missing operand", `provider ==`},
		{"trailing input", `has_error extra`},
		{"empty parens", `()`},
		{"string with greater-than", `provider > "openai"`},
		{"numeric field with contains", `total_tokens contains "5"`},
		{"bare non-boolean field", `provider`},
		{"unclosed list", `provider in ["a", "b"`},
		{"incomplete operator", `total_tokens = 5`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.expr)
			if !flow.IsInvalidExpression(err) {
				t.Fatalf("expected invalid expression error, got %v", err)
			}
		})
	}
}

func TestExpressionErrorPosition(t *testing.T) {
	_, err := Parse(`provider == "openai" and bogus > 3`)
	var exprErr *flow.InvalidExpressionError
	if !asExprError(err, &exprErr) {
		t.Fatalf("expected InvalidExpressionError, got %v", err)
	}
	if exprErr.Token != "bogus" {
		t.Errorf("expected offending token bogus, got %q", exprErr.Token)
	}
	if exprErr.Position != 25 {
		t.Errorf("expected position 25, got %d", exprErr.Position)
	}
}

func asExprError(err error, target **flow.InvalidExpressionError) bool {
	e, ok := err.(*flow.InvalidExpressionError)
	if ok {
		*target = e
	}
	return ok
}

func TestSortWithTiebreak(t *testing.T) {
	base := time.Now()
	records := []*flow.FlowRecord{
		record("b", "openai", "gpt-4o", flow.StateCompleted, base),
		record("a", "openai", "gpt-4o", flow.StateCompleted, base),
		record("c", "openai", "gpt-4o", flow.StateCompleted, base.Add(-time.Second)),
	}

	sortRecords(records, flow.SortByCreatedAt, false)
	got := []string{records[0].ID, records[1].ID, records[2].ID}
	want := []string{"c", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ascending order %v, want %v", got, want)
		}
	}

	sortRecords(records, flow.SortByCreatedAt, true)
	got = []string{records[0].ID, records[1].ID, records[2].ID}
	want = []string{"b", "a", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("descending order %v, want %v", got, want)
		}
	}
}

func TestPagination(t *testing.T) {
	base := time.Now()
	var records []*flow.FlowRecord
	for i := 0; i < 45; i++ {
		records = append(records, record(fmt.Sprintf("f%02d", i), "openai", "gpt-4o", flow.StateCompleted, base.Add(time.Duration(i)*time.Millisecond)))
	}

	result, err := Run(records, Params{Page: 3, PageSize: 20})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Total != 45 || result.TotalPages != 3 {
		t.Errorf("total=%d total_pages=%d, want 45/3", result.Total, result.TotalPages)
	}
	if len(result.Flows) != 5 {
		t.Errorf("expected 5 flows on last page, got %d", len(result.Flows))
	}
	if result.HasNext || !result.HasPrev {
		t.Errorf("has_next=%v has_prev=%v, want false/true", result.HasNext, result.HasPrev)
	}

	beyond, err := Run(records, Params{Page: 9, PageSize: 20})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(beyond.Flows) != 0 {
		t.Errorf("page beyond the end must be empty, got %d flows", len(beyond.Flows))
	}
	if beyond.Total != 45 {
		t.Errorf("metadata must still reflect the full result set, total=%d", beyond.Total)
	}
}

func TestRunExpressionReplacesFilter(t *testing.T) {
	base := time.Now()
	records := []*flow.FlowRecord{
		withResponse(record("big", "openai", "gpt-4o", flow.StateCompleted, base), "x", 5000),
		withResponse(record("small", "openai", "gpt-4o", flow.StateCompleted, base), "x", 10),
		withResponse(record("other", "anthropic", "claude", flow.StateCompleted, base), "x", 5000),
	}

	// A structured filter that would exclude "other" must be ignored once an
	// expression is supplied.
	result, err := Run(records, Params{
		Filter:     &flow.Filter{Providers: []string{"openai"}},
		Expression: "total_tokens > 1000",
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Flows) != 2 {
		t.Fatalf("expected both high-token flows, got %d", len(result.Flows))
	}
	for _, f := range result.Flows {
		if f.ID != "big" && f.ID != "other" {
			t.Errorf("unexpected flow %q in result", f.ID)
		}
	}

	// The filter still applies on its own.
	result, err = Run(records, Params{
		Filter: &flow.Filter{Providers: []string{"anthropic"}},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Flows) != 1 || result.Flows[0].ID != "other" {
		t.Errorf("filter-only query returned %d flows", len(result.Flows))
	}
}

func TestSearchRanking(t *testing.T) {
	base := time.Now()

	modelHit := record("model-hit", "openai", "gpt-4o", flow.StateCompleted, base)
	contentHit := withResponse(record("content-hit", "anthropic", "claude", flow.StateCompleted, base), "talking about gpt-4o today", 10)
	miss := record("miss", "anthropic", "claude", flow.StateCompleted, base)

	results := Search([]*flow.FlowRecord{miss, contentHit, modelHit}, "gpt-4o", 10)
	if len(results) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(results))
	}
	if results[0].Flow.ID != "model-hit" {
		t.Errorf("model hit should outrank content hit, got %s first", results[0].Flow.ID)
	}
	if len(results[1].Snippets) == 0 {
		t.Errorf("content hit should carry a snippet")
	}

	if got := Search([]*flow.FlowRecord{modelHit, contentHit}, "gpt-4o", 1); len(got) != 1 {
		t.Errorf("limit not applied, got %d results", len(got))
	}
	if got := Search([]*flow.FlowRecord{modelHit}, "   ", 10); got != nil {
		t.Errorf("blank query must return nothing")
	}
}
