package export

import (
	"fmt"
	"strings"
	"time"
)

// Format enumerates the export formats.
type Format string

const (
	FormatJSON     Format = "json"
	FormatJSONL    Format = "jsonl"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatHAR      Format = "har"
)

// ParseFormat resolves a format name case-insensitively. "md" is accepted
// for markdown.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "json":
		return FormatJSON, nil
	case "jsonl", "ndjson":
		return FormatJSONL, nil
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "har":
		return FormatHAR, nil
	}
	return "", fmt.Errorf("unknown export format %q", name)
}

// ContentType returns the MIME type served with the format.
func (f Format) ContentType() string {
	switch f {
	case FormatJSONL:
		return "application/x-ndjson"
	case FormatCSV:
		return "text/csv"
	case FormatMarkdown:
		return "text/markdown"
	default:
		// JSON and HAR are both JSON on the wire.
		return "application/json"
	}
}

// Extension returns the file extension, without the dot.
func (f Format) Extension() string {
	switch f {
	case FormatMarkdown:
		return "md"
	default:
		return string(f)
	}
}

// Filename builds the suggested download name for an export taken at t.
func Filename(f Format, t time.Time) string {
	return fmt.Sprintf("flows_%s.%s", t.Format("20060102_150405"), f.Extension())
}

// Options control one export.
type Options struct {
	Format Format `json:"format"`

	// IncludeRaw keeps raw request/response bodies in the output. Off by
	// default: raw payloads dominate export size.
	IncludeRaw bool `json:"include_raw,omitempty"`

	// IncludeStreamChunks keeps the per-chunk stream transcript.
	IncludeStreamChunks bool `json:"include_stream_chunks,omitempty"`

	// Redact enables the redaction pass.
	Redact bool `json:"redact,omitempty"`

	// RedactionRules are applied in order when Redact is set. An empty list
	// with Redact set still masks credential-bearing headers.
	RedactionRules []RedactionRule `json:"redaction_rules,omitempty"`

	// Pretty indents JSON output.
	Pretty bool `json:"pretty,omitempty"`
}
