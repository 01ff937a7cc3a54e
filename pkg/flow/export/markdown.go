package export

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"proxycast-hq/flowscope/pkg/flow"
)

// MarkdownExporter writes flows as a human-readable Markdown document, one
// section per flow with the conversation transcript inline.
type MarkdownExporter struct{}

// Export writes the records to w as Markdown.
func (e *MarkdownExporter) Export(ctx context.Context, records []*flow.FlowRecord, w io.Writer) error {
	var sb strings.Builder

	sb.WriteString("# Flow Export\n\n")
	fmt.Fprintf(&sb, "Exported %d flows.\n\n", len(records))

	for _, record := range records {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		e.writeFlow(&sb, record)
	}

	if _, err := io.WriteString(w, sb.String()); err != nil {
		return flow.NewSerializationError("markdown", err)
	}
	return nil
}

func (e *MarkdownExporter) writeFlow(sb *strings.Builder, record *flow.FlowRecord) {
	fmt.Fprintf(sb, "## %s\n\n", record.ID)

	fmt.Fprintf(sb, "| Field | Value |\n|---|---|\n")
	fmt.Fprintf(sb, "| State | %s |\n", record.State)
	fmt.Fprintf(sb, "| Type | %s |\n", record.Type.String())
	fmt.Fprintf(sb, "| Provider | %s |\n", record.Metadata.Provider)
	fmt.Fprintf(sb, "| Model | %s |\n", record.Request.Model)
	fmt.Fprintf(sb, "| Created | %s |\n", record.Timestamps.Created.Format(time.RFC3339))
	fmt.Fprintf(sb, "| Duration | %d ms |\n", record.Timestamps.DurationMs)
	fmt.Fprintf(sb, "| Tokens | %d |\n", record.TotalTokens())
	if record.Annotations.Starred {
		fmt.Fprintf(sb, "| Starred | yes |\n")
	}
	if len(record.Annotations.Tags) > 0 {
		fmt.Fprintf(sb, "| Tags | %s |\n", strings.Join(record.Annotations.Tags, ", "))
	}
	sb.WriteString("\n")

	if record.Request.SystemPrompt != "" {
		sb.WriteString("### System\n\n")
		writeFenced(sb, record.Request.SystemPrompt)
	}
	for _, msg := range record.Request.Messages {
		fmt.Fprintf(sb, "### %s\n\n", titleRole(msg.Role))
		writeFenced(sb, msg.Content)
	}

	if record.Response != nil && record.Response.Content != "" {
		sb.WriteString("### Response\n\n")
		writeFenced(sb, record.Response.Content)
	}
	if record.Error != nil {
		sb.WriteString("### Error\n\n")
		fmt.Fprintf(sb, "`%s`: %s\n\n", record.Error.Kind, record.Error.Message)
	}
	if record.Annotations.Comment != "" {
		sb.WriteString("### Comment\n\n")
		fmt.Fprintf(sb, "%s\n\n", record.Annotations.Comment)
	}
}

func titleRole(role string) string {
	if role == "" {
		return "Message"
	}
	return strings.ToUpper(role[:1]) + role[1:]
}

func writeFenced(sb *strings.Builder, text string) {
	sb.WriteString("```\n")
	sb.WriteString(text)
	if !strings.HasSuffix(text, "\n") {
		sb.WriteString("\n")
	}
	sb.WriteString("```\n\n")
}
