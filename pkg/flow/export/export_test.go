package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"proxycast-hq/flowscope/pkg/flow"
)

func sampleRecord(id string) *flow.FlowRecord {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ttfb := int64(200)
	return &flow.FlowRecord{
		ID:    id,
		Type:  flow.ChatCompletions(),
		State: flow.StateCompleted,
		Request: flow.Request{
			Method: "POST",
			Path:   "/v1/chat/completions",
			Headers: map[string]string{
				"Authorization": "Bearer sk-live-12345",
				"Content-Type":  "application/json",
			},
			Body:         []byte(`{"model":"gpt-4o"}`),
			Messages:     []flow.Message{{Role: "user", Content: "my secret key please"}},
			SystemPrompt: "be helpful",
			Model:        "gpt-4o",
			SizeBytes:    18,
			Timestamp:    start,
		},
		Response: &flow.Response{
			StatusCode: 200,
			StatusText: "OK",
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       []byte(`{"ok":true}`),
			Content:    "here is the answer",
			Usage:      flow.TokenUsage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30},
			SizeBytes:  11,
			Stream: &flow.StreamInfo{
				ChunkCount: 1,
				RawChunks:  []flow.StreamChunk{{Index: 0, ContentDelta: "here"}},
			},
		},
		Metadata: flow.Metadata{Provider: "openai"},
		Timestamps: flow.Timestamps{
			Created:      start,
			RequestStart: start,
			DurationMs:   1200,
			TTFBMs:       &ttfb,
		},
		Annotations: flow.Annotations{Tags: []string{"demo"}},
	}
}

func TestRedactionRulesApplySequentially(t *testing.T) {
	r, err := NewRedactor([]RedactionRule{
		{Pattern: "secret", Replacement: "REDACTED"},
		{Pattern: "REDACTED", Replacement: "***"},
	})
	if err != nil {
		t.Fatalf("NewRedactor failed: %v", err)
	}

	got := r.Apply("my secret key")
	if got != "my *** key" {
		t.Errorf("Apply = %q, want %q", got, "my *** key")
	}
}

func TestRedactorRejectsBadPattern(t *testing.T) {
	_, err := NewRedactor([]RedactionRule{{Pattern: "([unclosed", Replacement: "x"}})
	if !flow.IsSerializationFailure(err) {
		t.Fatalf("expected serialization error for bad pattern, got %v", err)
	}
}

func TestRedactRecordMasksCredentialHeaders(t *testing.T) {
	record := sampleRecord("f1")
	r, err := NewRedactor(nil)
	if err != nil {
		t.Fatal(err)
	}
	r.RedactRecord(record)

	if record.Request.Headers["Authorization"] != "[REDACTED]" {
		t.Errorf("authorization header not masked: %q", record.Request.Headers["Authorization"])
	}
	if record.Request.Headers["Content-Type"] != "application/json" {
		t.Errorf("non-sensitive header must be untouched")
	}
}

func TestPrepareStripsPayloadsAndIsolatesInput(t *testing.T) {
	record := sampleRecord("f1")

	prepared, err := Prepare([]*flow.FlowRecord{record}, Options{
		Redact:         true,
		RedactionRules: []RedactionRule{{Pattern: "secret", Replacement: "[HIDDEN]"}},
	})
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	out := prepared[0]
	if out.Request.Body != nil || out.Response.Body != nil {
		t.Error("raw bodies must be stripped by default")
	}
	if out.Response.Stream.RawChunks != nil {
		t.Error("stream chunks must be stripped by default")
	}
	if !strings.Contains(out.Request.Messages[0].Content, "[HIDDEN]") {
		t.Errorf("redaction not applied: %q", out.Request.Messages[0].Content)
	}

	// The original record is untouched.
	if record.Request.Body == nil || record.Request.Headers["Authorization"] != "Bearer sk-live-12345" {
		t.Error("Prepare must not mutate its input")
	}

	withRaw, err := Prepare([]*flow.FlowRecord{record}, Options{IncludeRaw: true, IncludeStreamChunks: true})
	if err != nil {
		t.Fatal(err)
	}
	if withRaw[0].Request.Body == nil || len(withRaw[0].Response.Stream.RawChunks) != 1 {
		t.Error("IncludeRaw/IncludeStreamChunks must keep payloads")
	}
}

func TestJSONExportRoundTrip(t *testing.T) {
	record := sampleRecord("f1")
	record.Type = flow.OtherFlowType("custom-endpoint")

	var buf bytes.Buffer
	err := Export(context.Background(), []*flow.FlowRecord{record}, Options{Format: FormatJSON, IncludeRaw: true, IncludeStreamChunks: true}, &buf)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	var decoded []*flow.FlowRecord
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("round trip decode failed: %v", err)
	}
	if len(decoded) != 1 {
		t.Fatalf("expected 1 record, got %d", len(decoded))
	}
	got := decoded[0]
	if got.ID != "f1" || got.State != flow.StateCompleted {
		t.Errorf("identity fields lost: %+v", got)
	}
	if !got.Type.Equal(record.Type) {
		t.Errorf("open flow type lost in round trip: %+v", got.Type)
	}
	if got.Response.Usage.TotalTokens != 30 {
		t.Errorf("usage lost: %+v", got.Response.Usage)
	}
}

func TestJSONLOneRecordPerLine(t *testing.T) {
	records := []*flow.FlowRecord{sampleRecord("f1"), sampleRecord("f2")}

	var buf bytes.Buffer
	if err := Export(context.Background(), records, Options{Format: FormatJSONL}, &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	for _, line := range lines {
		var rec flow.FlowRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Errorf("line is not valid JSON: %v", err)
		}
	}
}

func TestCSVExport(t *testing.T) {
	var buf bytes.Buffer
	if err := Export(context.Background(), []*flow.FlowRecord{sampleRecord("f1")}, Options{Format: FormatCSV}, &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header plus 1 row, got %d rows", len(rows))
	}
	if rows[0][0] != "id" {
		t.Errorf("first header column = %q, want id", rows[0][0])
	}
	if rows[1][0] != "f1" || rows[1][4] != "gpt-4o" {
		t.Errorf("unexpected data row: %v", rows[1])
	}
}

func TestMarkdownExport(t *testing.T) {
	var buf bytes.Buffer
	if err := Export(context.Background(), []*flow.FlowRecord{sampleRecord("f1")}, Options{Format: FormatMarkdown}, &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"## f1", "| Model | gpt-4o |", "### User", "### Response", "here is the answer"} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown output missing %q", want)
		}
	}
}

func TestHARExport(t *testing.T) {
	var buf bytes.Buffer
	if err := Export(context.Background(), []*flow.FlowRecord{sampleRecord("f1")}, Options{Format: FormatHAR, IncludeRaw: true}, &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	var doc harLog
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("HAR output is not valid JSON: %v", err)
	}
	if doc.Log.Version != "1.2" {
		t.Errorf("HAR version = %q, want 1.2", doc.Log.Version)
	}
	if len(doc.Log.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(doc.Log.Entries))
	}
	entry := doc.Log.Entries[0]
	if entry.Time != 1200 {
		t.Errorf("entry time = %d, want 1200", entry.Time)
	}
	if entry.Timings.Wait != 200 || entry.Timings.Receive != 1000 {
		t.Errorf("timings = %+v, want wait=200 receive=1000", entry.Timings)
	}
	if entry.Response.Status != 200 || entry.FlowID != "f1" {
		t.Errorf("entry fields wrong: %+v", entry)
	}
}

func TestFormatHelpers(t *testing.T) {
	if _, err := ParseFormat("bogus"); err == nil {
		t.Error("expected error for unknown format")
	}
	f, err := ParseFormat("MD")
	if err != nil || f != FormatMarkdown {
		t.Errorf("ParseFormat(MD) = %v, %v", f, err)
	}

	if got := FormatJSONL.ContentType(); got != "application/x-ndjson" {
		t.Errorf("jsonl content type = %q", got)
	}
	if got := FormatHAR.ContentType(); got != "application/json" {
		t.Errorf("har content type = %q", got)
	}

	ts := time.Date(2026, 3, 1, 10, 2, 3, 0, time.UTC)
	if got := Filename(FormatMarkdown, ts); got != "flows_20260301_100203.md" {
		t.Errorf("Filename = %q", got)
	}
}
