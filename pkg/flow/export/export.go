package export

import (
	"context"
	"encoding/json"
	"io"

	"proxycast-hq/flowscope/pkg/flow"
)

// Export prepares and serializes the records in the requested format.
func Export(ctx context.Context, records []*flow.FlowRecord, opts Options, w io.Writer) error {
	prepared, err := Prepare(records, opts)
	if err != nil {
		return err
	}

	switch opts.Format {
	case FormatJSON, "":
		return (&JSONExporter{Pretty: opts.Pretty}).Export(ctx, prepared, w)
	case FormatJSONL:
		return (&JSONLExporter{}).Export(ctx, prepared, w)
	case FormatCSV:
		return (&CSVExporter{IncludeHeader: true}).Export(ctx, prepared, w)
	case FormatMarkdown:
		return (&MarkdownExporter{}).Export(ctx, prepared, w)
	case FormatHAR:
		return (&HARExporter{}).Export(ctx, prepared, w)
	}
	return flow.NewSerializationError(string(opts.Format), errUnknownFormat(opts.Format))
}

type errUnknownFormat Format

func (e errUnknownFormat) Error() string { return "unknown export format " + string(e) }

// Prepare clones the records, strips payloads the options exclude and runs
// the redaction pass. Input records are never mutated.
func Prepare(records []*flow.FlowRecord, opts Options) ([]*flow.FlowRecord, error) {
	var redactor *Redactor
	if opts.Redact {
		var err error
		redactor, err = NewRedactor(opts.RedactionRules)
		if err != nil {
			return nil, err
		}
	}

	prepared := make([]*flow.FlowRecord, 0, len(records))
	for _, record := range records {
		clone := record.Clone()

		if !opts.IncludeRaw {
			clone.Request.Body = nil
			if clone.Response != nil {
				clone.Response.Body = nil
			}
		}
		if clone.Response != nil && clone.Response.Stream != nil && !opts.IncludeStreamChunks {
			clone.Response.Stream.RawChunks = nil
		}
		if redactor != nil {
			redactor.RedactRecord(clone)
		}

		prepared = append(prepared, clone)
	}
	return prepared, nil
}

// JSONExporter writes flows as one JSON array.
type JSONExporter struct {
	// Pretty enables indented output.
	Pretty bool
}

// Export writes the records to w as a JSON array.
func (e *JSONExporter) Export(ctx context.Context, records []*flow.FlowRecord, w io.Writer) error {
	if records == nil {
		records = []*flow.FlowRecord{}
	}

	var data []byte
	var err error
	if e.Pretty {
		data, err = json.MarshalIndent(records, "", "  ")
	} else {
		data, err = json.Marshal(records)
	}
	if err != nil {
		return flow.NewSerializationError("json", err)
	}
	if _, err := w.Write(data); err != nil {
		return flow.NewSerializationError("json", err)
	}
	return nil
}

// JSONLExporter writes flows as newline-delimited JSON, one record per line.
type JSONLExporter struct{}

// Export writes the records to w, one JSON object per line.
func (e *JSONLExporter) Export(ctx context.Context, records []*flow.FlowRecord, w io.Writer) error {
	enc := json.NewEncoder(w)
	for _, record := range records {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := enc.Encode(record); err != nil {
			return flow.NewSerializationError("jsonl", err)
		}
	}
	return nil
}
