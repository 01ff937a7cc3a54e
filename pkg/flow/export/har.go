package export

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"proxycast-hq/flowscope/pkg/flow"
)

// HARExporter writes flows as an HTTP Archive (HAR 1.2) document, one entry
// per flow. Tools that read HAR get the request/response pair with timings;
// LLM-specific fields travel in per-entry custom fields prefixed with
// underscore, as the format allows.
type HARExporter struct{}

type harLog struct {
	Log harLogBody `json:"log"`
}

type harLogBody struct {
	Version string     `json:"version"`
	Creator harCreator `json:"creator"`
	Entries []harEntry `json:"entries"`
}

type harCreator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type harEntry struct {
	StartedDateTime string      `json:"startedDateTime"`
	Time            int64       `json:"time"`
	Request         harRequest  `json:"request"`
	Response        harResponse `json:"response"`
	Timings         harTimings  `json:"timings"`

	Provider string   `json:"_provider,omitempty"`
	Model    string   `json:"_model,omitempty"`
	FlowID   string   `json:"_flowId"`
	State    string   `json:"_state"`
	Tokens   int      `json:"_totalTokens,omitempty"`
	Tags     []string `json:"_tags,omitempty"`
}

type harRequest struct {
	Method      string      `json:"method"`
	URL         string      `json:"url"`
	HTTPVersion string      `json:"httpVersion"`
	Headers     []harHeader `json:"headers"`
	QueryString []harHeader `json:"queryString"`
	HeadersSize int         `json:"headersSize"`
	BodySize    int64       `json:"bodySize"`
	PostData    *harBody    `json:"postData,omitempty"`
}

type harResponse struct {
	Status      int         `json:"status"`
	StatusText  string      `json:"statusText"`
	HTTPVersion string      `json:"httpVersion"`
	Headers     []harHeader `json:"headers"`
	Content     harBody     `json:"content"`
	RedirectURL string      `json:"redirectURL"`
	HeadersSize int         `json:"headersSize"`
	BodySize    int64       `json:"bodySize"`
}

type harHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type harBody struct {
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size,omitempty"`
	Text     string `json:"text,omitempty"`
}

type harTimings struct {
	Send    int64 `json:"send"`
	Wait    int64 `json:"wait"`
	Receive int64 `json:"receive"`
}

// Export writes the records to w as a HAR document.
func (e *HARExporter) Export(ctx context.Context, records []*flow.FlowRecord, w io.Writer) error {
	doc := harLog{
		Log: harLogBody{
			Version: "1.2",
			Creator: harCreator{Name: "flowscope", Version: "1.0"},
			Entries: make([]harEntry, 0, len(records)),
		},
	}

	for _, record := range records {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		doc.Log.Entries = append(doc.Log.Entries, e.entry(record))
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return flow.NewSerializationError("har", err)
	}
	if _, err := w.Write(data); err != nil {
		return flow.NewSerializationError("har", err)
	}
	return nil
}

func (e *HARExporter) entry(record *flow.FlowRecord) harEntry {
	entry := harEntry{
		StartedDateTime: record.Timestamps.RequestStart.Format(time.RFC3339Nano),
		Time:            record.Timestamps.DurationMs,
		FlowID:          record.ID,
		State:           string(record.State),
		Provider:        record.Metadata.Provider,
		Model:           record.Request.Model,
		Tokens:          record.TotalTokens(),
		Tags:            record.Annotations.Tags,
		Request: harRequest{
			Method:      record.Request.Method,
			URL:         record.Request.Path,
			HTTPVersion: "HTTP/1.1",
			Headers:     headerList(record.Request.Headers),
			QueryString: []harHeader{},
			HeadersSize: -1,
			BodySize:    record.Request.SizeBytes,
		},
		Timings: timings(record),
	}

	if len(record.Request.Body) > 0 {
		entry.Request.PostData = &harBody{
			MimeType: "application/json",
			Text:     string(record.Request.Body),
		}
	}

	if record.Response != nil {
		entry.Response = harResponse{
			Status:      record.Response.StatusCode,
			StatusText:  record.Response.StatusText,
			HTTPVersion: "HTTP/1.1",
			Headers:     headerList(record.Response.Headers),
			Content: harBody{
				MimeType: "application/json",
				Size:     record.Response.SizeBytes,
				Text:     string(record.Response.Body),
			},
			HeadersSize: -1,
			BodySize:    record.Response.SizeBytes,
		}
	} else {
		entry.Response = harResponse{
			HTTPVersion: "HTTP/1.1",
			Headers:     []harHeader{},
			Content:     harBody{MimeType: "application/json"},
			HeadersSize: -1,
			BodySize:    -1,
		}
	}

	return entry
}

// timings splits the measured duration into wait (to first byte) and receive
// phases. Without a TTFB measurement everything counts as wait.
func timings(record *flow.FlowRecord) harTimings {
	total := record.Timestamps.DurationMs
	if record.Timestamps.TTFBMs != nil && *record.Timestamps.TTFBMs <= total {
		return harTimings{
			Wait:    *record.Timestamps.TTFBMs,
			Receive: total - *record.Timestamps.TTFBMs,
		}
	}
	return harTimings{Wait: total}
}

func headerList(headers map[string]string) []harHeader {
	out := make([]harHeader, 0, len(headers))
	for name, value := range headers {
		out = append(out, harHeader{Name: name, Value: value})
	}
	return out
}
