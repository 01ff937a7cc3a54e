package export

import (
	"regexp"
	"strings"

	"proxycast-hq/flowscope/pkg/flow"
)

// RedactionRule is one pattern/replacement pair. Patterns are Go regular
// expressions; the replacement may reference capture groups.
type RedactionRule struct {
	Pattern     string `json:"pattern" yaml:"pattern"`
	Replacement string `json:"replacement" yaml:"replacement"`
}

// sensitiveHeaders are always masked when redaction is enabled, regardless
// of the rule list.
var sensitiveHeaders = map[string]bool{
	"authorization":       true,
	"proxy-authorization": true,
	"x-api-key":           true,
	"api-key":             true,
	"cookie":              true,
	"set-cookie":          true,
}

const headerMask = "[REDACTED]"

// Redactor applies an ordered rule list to the text fields of a flow.
type Redactor struct {
	rules []compiledRule
}

type compiledRule struct {
	re          *regexp.Regexp
	replacement string
}

// NewRedactor compiles the rules. A malformed pattern fails the whole
// redactor: exporting with a silently skipped rule would leak what the rule
// was meant to hide.
func NewRedactor(rules []RedactionRule) (*Redactor, error) {
	r := &Redactor{}
	for _, rule := range rules {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, flow.NewSerializationError("redaction", err)
		}
		r.rules = append(r.rules, compiledRule{re: re, replacement: rule.Replacement})
	}
	return r, nil
}

// Apply runs every rule over the text in order. A later rule operates on the
// output of an earlier one.
func (r *Redactor) Apply(text string) string {
	for _, rule := range r.rules {
		text = rule.re.ReplaceAllString(text, rule.replacement)
	}
	return text
}

// RedactRecord applies the rules to every operator-visible text field of the
// record and masks credential-bearing headers. The record is mutated in
// place; callers pass clones.
func (r *Redactor) RedactRecord(record *flow.FlowRecord) {
	record.Request.SystemPrompt = r.Apply(record.Request.SystemPrompt)
	for i := range record.Request.Messages {
		record.Request.Messages[i].Content = r.Apply(record.Request.Messages[i].Content)
	}
	maskHeaders(record.Request.Headers)
	if len(record.Request.Body) > 0 {
		record.Request.Body = []byte(r.Apply(string(record.Request.Body)))
	}

	if record.Response != nil {
		record.Response.Content = r.Apply(record.Response.Content)
		if record.Response.Thinking != nil {
			record.Response.Thinking.Text = r.Apply(record.Response.Thinking.Text)
		}
		maskHeaders(record.Response.Headers)
		if len(record.Response.Body) > 0 {
			record.Response.Body = []byte(r.Apply(string(record.Response.Body)))
		}
		if record.Response.Stream != nil {
			for i := range record.Response.Stream.RawChunks {
				chunk := &record.Response.Stream.RawChunks[i]
				chunk.Data = r.Apply(chunk.Data)
				chunk.ContentDelta = r.Apply(chunk.ContentDelta)
				chunk.ThinkingDelta = r.Apply(chunk.ThinkingDelta)
			}
		}
	}

	if record.Error != nil {
		record.Error.Message = r.Apply(record.Error.Message)
		record.Error.RawResponse = r.Apply(record.Error.RawResponse)
	}
	record.Annotations.Comment = r.Apply(record.Annotations.Comment)
}

func maskHeaders(headers map[string]string) {
	for name := range headers {
		if sensitiveHeaders[strings.ToLower(name)] {
			headers[name] = headerMask
		}
	}
}
