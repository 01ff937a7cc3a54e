package query

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"proxycast-hq/flowscope/pkg/flow"
)

// Predicate is a compiled filter expression, evaluated per record.
type Predicate func(*flow.FlowRecord) bool

// Parse compiles a filter expression into a predicate. The grammar, loosest
// binding first:
//
//	expr      = expr "or" expr
//	          | expr "and" expr
//	          | "not" expr
//	          | "(" expr ")"
//	          | predicate
//	predicate = field cmp value          cmp is == != > >= < <=
//	          | field "contains" string
//	          | field "in" "[" value {"," value} "]"
//	          | field                    boolean fields stand alone
//
// String comparison is case-insensitive. Unknown fields, type mismatches and
// malformed syntax fail with an InvalidExpressionError naming the position.
func Parse(input string) (Predicate, error) {
	tokens, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{input: input, tokens: tokens}
	pred, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, flow.NewInvalidExpressionError(input, tok.pos, tok.text, "unexpected trailing input")
	}
	return pred, nil
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokString
	tokNumber
	tokOp
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
)

type token struct {
	kind tokKind
	text string
	pos  int
}

func lex(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == '(':
			tokens = append(tokens, token{tokLParen, "(", i})
			i++
		case c == ')':
			tokens = append(tokens, token{tokRParen, ")", i})
			i++
		case c == '[':
			tokens = append(tokens, token{tokLBracket, "[", i})
			i++
		case c == ']':
			tokens = append(tokens, token{tokRBracket, "]", i})
			i++
		case c == ',':
			tokens = append(tokens, token{tokComma, ",", i})
			i++

		case c == '=' || c == '!' || c == '<' || c == '>':
			start := i
			i++
			if i < len(input) && input[i] == '=' {
				i++
			}
			op := input[start:i]
			if op == "=" || op == "!" {
				return nil, flow.NewInvalidExpressionError(input, start, op, "incomplete operator")
			}
			tokens = append(tokens, token{tokOp, op, start})

		case c == '"' || c == '\'':
			quote := c
			start := i
			i++
			var sb strings.Builder
			closed := false
			for i < len(input) {
				if input[i] == '\\' && i+1 < len(input) {
					sb.WriteByte(input[i+1])
					i += 2
					continue
				}
				if input[i] == quote {
					closed = true
					i++
					break
				}
				sb.WriteByte(input[i])
				i++
			}
			if !closed {
				return nil, flow.NewInvalidExpressionError(input, start, "", "unterminated string literal")
			}
			tokens = append(tokens, token{tokString, sb.String(), start})

		case c >= '0' && c <= '9':
			start := i
			for i < len(input) && (input[i] >= '0' && input[i] <= '9' || input[i] == '.') {
				i++
			}
			tokens = append(tokens, token{tokNumber, input[start:i], start})

		case unicode.IsLetter(rune(c)) || c == '_':
			start := i
			for i < len(input) && (unicode.IsLetter(rune(input[i])) || unicode.IsDigit(rune(input[i])) || input[i] == '_' || input[i] == '-' || input[i] == '.') {
				i++
			}
			tokens = append(tokens, token{tokIdent, input[start:i], start})

		default:
			return nil, flow.NewInvalidExpressionError(input, i, string(c), "unexpected character")
		}
	}
	tokens = append(tokens, token{tokEOF, "", len(input)})
	return tokens, nil
}

type parser struct {
	input  string
	tokens []token
	pos    int
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) errAt(tok token, reason string) error {
	return flow.NewInvalidExpressionError(p.input, tok.pos, tok.text, reason)
}

// keyword matches a bare identifier case-insensitively without consuming it.
func (p *parser) keyword(word string) bool {
	tok := p.peek()
	return tok.kind == tokIdent && strings.EqualFold(tok.text, word)
}

func (p *parser) parseExpr() (Predicate, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.keyword("or") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l, r := left, right
		left = func(rec *flow.FlowRecord) bool { return l(rec) || r(rec) }
	}
	return left, nil
}

func (p *parser) parseAnd() (Predicate, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.keyword("and") {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		l, r := left, right
		left = func(rec *flow.FlowRecord) bool { return l(rec) && r(rec) }
	}
	return left, nil
}

func (p *parser) parseUnary() (Predicate, error) {
	if p.keyword("not") {
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return func(rec *flow.FlowRecord) bool { return !inner(rec) }, nil
	}
	if p.peek().kind == tokLParen {
		p.next()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if tok := p.next(); tok.kind != tokRParen {
			return nil, p.errAt(tok, "expected closing parenthesis")
		}
		return inner, nil
	}
	return p.parsePredicate()
}

func (p *parser) parsePredicate() (Predicate, error) {
	tok := p.next()
	if tok.kind != tokIdent {
		return nil, p.errAt(tok, "expected a field name")
	}
	field, ok := fields[strings.ToLower(tok.text)]
	if !ok {
		return nil, p.errAt(tok, "unknown field")
	}

	op := p.peek()
	switch {
	case op.kind == tokOp:
		p.next()
		return p.parseComparison(tok, field, op)

	case op.kind == tokIdent && strings.EqualFold(op.text, "contains"):
		p.next()
		val := p.next()
		if val.kind != tokString && val.kind != tokIdent {
			return nil, p.errAt(val, "contains needs a string")
		}
		if field.str == nil {
			return nil, p.errAt(tok, "field does not support contains")
		}
		needle := strings.ToLower(val.text)
		get := field.str
		return func(rec *flow.FlowRecord) bool {
			for _, s := range get(rec) {
				if strings.Contains(strings.ToLower(s), needle) {
					return true
				}
			}
			return false
		}, nil

	case op.kind == tokIdent && strings.EqualFold(op.text, "in"):
		p.next()
		return p.parseMembership(tok, field)

	default:
		if field.boolean == nil {
			return nil, p.errAt(tok, "field needs a comparison")
		}
		return field.boolean, nil
	}
}

func (p *parser) parseComparison(fieldTok token, field fieldSpec, op token) (Predicate, error) {
	val := p.next()
	switch val.kind {
	case tokNumber:
		if field.number == nil {
			return nil, p.errAt(fieldTok, "field is not numeric")
		}
		want, err := strconv.ParseFloat(val.text, 64)
		if err != nil {
			return nil, p.errAt(val, "malformed number")
		}
		get := field.number
		cmp, err := numberCmp(op.text)
		if err != nil {
			return nil, p.errAt(op, err.Error())
		}
		return func(rec *flow.FlowRecord) bool { return cmp(get(rec), want) }, nil

	case tokString, tokIdent:
		if field.boolean != nil && (strings.EqualFold(val.text, "true") || strings.EqualFold(val.text, "false")) {
			want := strings.EqualFold(val.text, "true")
			get := field.boolean
			switch op.text {
			case "==":
				return func(rec *flow.FlowRecord) bool { return get(rec) == want }, nil
			case "!=":
				return func(rec *flow.FlowRecord) bool { return get(rec) != want }, nil
			default:
				return nil, p.errAt(op, "booleans support only == and !=")
			}
		}
		if field.str == nil {
			return nil, p.errAt(fieldTok, "field is not a string")
		}
		want := val.text
		get := field.str
		switch op.text {
		case "==":
			return func(rec *flow.FlowRecord) bool {
				for _, s := range get(rec) {
					if strings.EqualFold(s, want) {
						return true
					}
				}
				return false
			}, nil
		case "!=":
			return func(rec *flow.FlowRecord) bool {
				for _, s := range get(rec) {
					if strings.EqualFold(s, want) {
						return false
					}
				}
				return true
			}, nil
		default:
			return nil, p.errAt(op, "strings support only == and !=")
		}

	default:
		return nil, p.errAt(val, "expected a value")
	}
}

func (p *parser) parseMembership(fieldTok token, field fieldSpec) (Predicate, error) {
	if tok := p.next(); tok.kind != tokLBracket {
		return nil, p.errAt(tok, "in needs a bracketed list")
	}
	if field.str == nil {
		return nil, p.errAt(fieldTok, "field does not support in")
	}

	var wanted []string
	for {
		val := p.next()
		if val.kind != tokString && val.kind != tokIdent && val.kind != tokNumber {
			return nil, p.errAt(val, "expected a list value")
		}
		wanted = append(wanted, val.text)

		sep := p.next()
		if sep.kind == tokRBracket {
			break
		}
		if sep.kind != tokComma {
			return nil, p.errAt(sep, "expected , or ] in list")
		}
	}

	get := field.str
	return func(rec *flow.FlowRecord) bool {
		for _, s := range get(rec) {
			for _, w := range wanted {
				if strings.EqualFold(s, w) {
					return true
				}
			}
		}
		return false
	}, nil
}

func numberCmp(op string) (func(a, b float64) bool, error) {
	switch op {
	case "==":
		return func(a, b float64) bool { return a == b }, nil
	case "!=":
		return func(a, b float64) bool { return a != b }, nil
	case ">":
		return func(a, b float64) bool { return a > b }, nil
	case ">=":
		return func(a, b float64) bool { return a >= b }, nil
	case "<":
		return func(a, b float64) bool { return a < b }, nil
	case "<=":
		return func(a, b float64) bool { return a <= b }, nil
	}
	return nil, fmt.Errorf("unknown operator %q", op)
}

// fieldSpec describes one addressable field. String fields return every
// candidate value (tags return all of them); numeric and boolean accessors
// are nil when the field lacks that type.
type fieldSpec struct {
	str     func(*flow.FlowRecord) []string
	number  func(*flow.FlowRecord) float64
	boolean Predicate
}

func one(get func(*flow.FlowRecord) string) func(*flow.FlowRecord) []string {
	return func(rec *flow.FlowRecord) []string { return []string{get(rec)} }
}

var fields = map[string]fieldSpec{
	"provider": {str: one(func(r *flow.FlowRecord) string { return r.Metadata.Provider })},
	"model":    {str: one(func(r *flow.FlowRecord) string { return r.Request.Model })},
	"state":    {str: one(func(r *flow.FlowRecord) string { return string(r.State) })},
	"flow_type": {str: one(func(r *flow.FlowRecord) string {
		return r.Type.String()
	})},
	"credential_id": {str: one(func(r *flow.FlowRecord) string { return r.Metadata.CredentialID })},
	"marker":        {str: one(func(r *flow.FlowRecord) string { return r.Annotations.Marker })},
	"comment":       {str: one(func(r *flow.FlowRecord) string { return r.Annotations.Comment })},
	"content": {str: one(func(r *flow.FlowRecord) string {
		if r.Response == nil {
			return ""
		}
		return r.Response.Content
	})},
	"error_type": {str: one(func(r *flow.FlowRecord) string {
		if r.Error == nil {
			return ""
		}
		return string(r.Error.Kind)
	})},
	"stop_reason": {str: one(func(r *flow.FlowRecord) string {
		if r.Response == nil || r.Response.StopReason == nil {
			return ""
		}
		return r.Response.StopReason.String()
	})},
	"tags": {str: func(r *flow.FlowRecord) []string { return r.Annotations.Tags }},

	"total_tokens":  {number: func(r *flow.FlowRecord) float64 { return float64(r.TotalTokens()) }},
	"input_tokens":  {number: func(r *flow.FlowRecord) float64 { return float64(inputTokens(r)) }},
	"output_tokens": {number: func(r *flow.FlowRecord) float64 { return float64(outputTokens(r)) }},
	"duration":      {number: func(r *flow.FlowRecord) float64 { return float64(r.Timestamps.DurationMs) }},
	"duration_ms":   {number: func(r *flow.FlowRecord) float64 { return float64(r.Timestamps.DurationMs) }},
	"ttfb_ms": {number: func(r *flow.FlowRecord) float64 {
		if r.Timestamps.TTFBMs == nil {
			return 0
		}
		return float64(*r.Timestamps.TTFBMs)
	}},
	"content_length": {number: func(r *flow.FlowRecord) float64 { return float64(r.ContentLength()) }},
	"chunk_count":    {number: func(r *flow.FlowRecord) float64 { return float64(r.ChunkCount()) }},
	"retry_count":    {number: func(r *flow.FlowRecord) float64 { return float64(r.Metadata.RetryCount) }},
	"status_code": {number: func(r *flow.FlowRecord) float64 {
		if r.Response == nil {
			return 0
		}
		return float64(r.Response.StatusCode)
	}},

	"starred":        {boolean: func(r *flow.FlowRecord) bool { return r.Annotations.Starred }},
	"has_error":      {boolean: func(r *flow.FlowRecord) bool { return r.HasError() }},
	"has_tool_calls": {boolean: func(r *flow.FlowRecord) bool { return r.HasToolCalls() }},
	"has_thinking":   {boolean: func(r *flow.FlowRecord) bool { return r.HasThinking() }},
	"is_streaming":   {boolean: func(r *flow.FlowRecord) bool { return r.IsStreaming() }},
}

func inputTokens(r *flow.FlowRecord) int {
	if r.Response == nil {
		return 0
	}
	return r.Response.Usage.InputTokens
}

func outputTokens(r *flow.FlowRecord) int {
	if r.Response == nil {
		return 0
	}
	return r.Response.Usage.OutputTokens
}
