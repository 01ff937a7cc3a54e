package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"proxycast-hq/flowscope/pkg/flow"
)

// CSVExporter writes flows as a flat CSV table. Nested structures are
// collapsed: tags become a comma-joined string, token usage is split into
// columns.
type CSVExporter struct {
	// IncludeHeader writes a column-name row first.
	IncludeHeader bool
}

// Export writes the records to w in CSV format.
func (e *CSVExporter) Export(ctx context.Context, records []*flow.FlowRecord, w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if e.IncludeHeader {
		if err := writer.Write(e.headerRow()); err != nil {
			return flow.NewSerializationError("csv", err)
		}
	}

	for _, record := range records {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := writer.Write(e.recordToRow(record)); err != nil {
			return flow.NewSerializationError("csv", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return flow.NewSerializationError("csv", err)
	}
	return nil
}

func (e *CSVExporter) headerRow() []string {
	return []string{
		"id", "flow_type", "state", "provider", "model",
		"created", "duration_ms", "ttfb_ms",
		"status_code", "error_type", "error_message",
		"input_tokens", "output_tokens", "total_tokens",
		"content_length", "chunk_count",
		"starred", "tags", "comment",
	}
}

func (e *CSVExporter) recordToRow(record *flow.FlowRecord) []string {
	var statusCode, errorType, errorMessage string
	if record.Response != nil {
		statusCode = fmt.Sprintf("%d", record.Response.StatusCode)
	}
	if record.Error != nil {
		errorType = string(record.Error.Kind)
		errorMessage = record.Error.Message
	}

	var inputTokens, outputTokens int
	if record.Response != nil {
		inputTokens = record.Response.Usage.InputTokens
		outputTokens = record.Response.Usage.OutputTokens
	}

	ttfb := ""
	if record.Timestamps.TTFBMs != nil {
		ttfb = fmt.Sprintf("%d", *record.Timestamps.TTFBMs)
	}

	return []string{
		record.ID,
		record.Type.String(),
		string(record.State),
		record.Metadata.Provider,
		record.Request.Model,
		record.Timestamps.Created.Format(time.RFC3339),
		fmt.Sprintf("%d", record.Timestamps.DurationMs),
		ttfb,
		statusCode,
		errorType,
		errorMessage,
		fmt.Sprintf("%d", inputTokens),
		fmt.Sprintf("%d", outputTokens),
		fmt.Sprintf("%d", record.TotalTokens()),
		fmt.Sprintf("%d", record.ContentLength()),
		fmt.Sprintf("%d", record.ChunkCount()),
		fmt.Sprintf("%t", record.Annotations.Starred),
		strings.Join(record.Annotations.Tags, ","),
		record.Annotations.Comment,
	}
}
