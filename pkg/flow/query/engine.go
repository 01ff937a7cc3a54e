package query

import (
	"sort"
	"strings"

	"proxycast-hq/flowscope/pkg/flow"
)

// DefaultPageSize is used when a query does not specify one.
const DefaultPageSize = 50

// MaxPageSize caps requested page sizes.
const MaxPageSize = 500

// Params describes one query. Filter and Expression are alternative match
// conditions, not combined: a non-empty Expression replaces the structured
// Filter entirely.
type Params struct {
	Filter     *flow.Filter `json:"filter,omitempty"`
	Expression string       `json:"expression,omitempty"`
	SortBy     flow.SortBy  `json:"sort_by,omitempty"`
	Descending bool         `json:"descending,omitempty"`
	Page       int          `json:"page,omitempty"`
	PageSize   int          `json:"page_size,omitempty"`
}

// QueryResult is one page of matching flows with pagination bookkeeping.
// Pages are 1-indexed; a page past the end is empty, not an error.
type QueryResult struct {
	Flows      []*flow.FlowRecord `json:"flows"`
	Total      int                `json:"total"`
	Page       int                `json:"page"`
	PageSize   int                `json:"page_size"`
	TotalPages int                `json:"total_pages"`
	HasNext    bool               `json:"has_next"`
	HasPrev    bool               `json:"has_prev"`
}

// Run filters, sorts and paginates a snapshot of flow records.
func Run(records []*flow.FlowRecord, params Params) (*QueryResult, error) {
	// An expression replaces the structured filter entirely.
	filter := params.Filter
	var pred Predicate
	if params.Expression != "" {
		var err error
		pred, err = Parse(params.Expression)
		if err != nil {
			return nil, err
		}
		filter = nil
	}

	matched := make([]*flow.FlowRecord, 0, len(records))
	for _, record := range records {
		if !Matches(record, filter) {
			continue
		}
		if pred != nil && !pred(record) {
			continue
		}
		matched = append(matched, record)
	}

	sortBy := params.SortBy
	if sortBy == "" {
		sortBy = flow.SortByCreatedAt
	}
	if !sortBy.Valid() {
		return nil, flow.NewInvalidExpressionError(string(sortBy), 0, string(sortBy), "unknown sort key")
	}
	sortRecords(matched, sortBy, params.Descending)

	return paginate(matched, params.Page, params.PageSize), nil
}

// sortRecords orders records by the sort key, breaking ties by id so the
// order is total and stable across calls.
func sortRecords(records []*flow.FlowRecord, sortBy flow.SortBy, descending bool) {
	less := func(a, b *flow.FlowRecord) bool {
		switch sortBy {
		case flow.SortByDuration:
			if a.Timestamps.DurationMs != b.Timestamps.DurationMs {
				return a.Timestamps.DurationMs < b.Timestamps.DurationMs
			}
		case flow.SortByTotalTokens:
			if at, bt := a.TotalTokens(), b.TotalTokens(); at != bt {
				return at < bt
			}
		case flow.SortByContentLength:
			if al, bl := a.ContentLength(), b.ContentLength(); al != bl {
				return al < bl
			}
		case flow.SortByModel:
			if a.Request.Model != b.Request.Model {
				return a.Request.Model < b.Request.Model
			}
		default:
			if !a.Timestamps.Created.Equal(b.Timestamps.Created) {
				return a.Timestamps.Created.Before(b.Timestamps.Created)
			}
		}
		return a.ID < b.ID
	}

	sort.Slice(records, func(i, j int) bool {
		if descending {
			return less(records[j], records[i])
		}
		return less(records[i], records[j])
	})
}

func paginate(records []*flow.FlowRecord, page, pageSize int) *QueryResult {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	if page <= 0 {
		page = 1
	}

	total := len(records)
	totalPages := (total + pageSize - 1) / pageSize
	if totalPages == 0 {
		totalPages = 1
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	pageFlows := []*flow.FlowRecord{}
	if start < total {
		if end > total {
			end = total
		}
		pageFlows = records[start:end]
	}

	return &QueryResult{
		Flows:      pageFlows,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1 && total > 0,
	}
}

// SearchResult is one ranked search hit.
type SearchResult struct {
	Flow     flow.FlowSummary `json:"flow"`
	Score    float64          `json:"score"`
	Snippets []string         `json:"snippets,omitempty"`
}

// Search ranks flows by relevance to a free-text query. Model and tag hits
// weigh more than content hits; ties fall to the more recent flow. At most
// limit results are returned (a non-positive limit means no cap).
func Search(records []*flow.FlowRecord, q string, limit int) []SearchResult {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil
	}
	needle := strings.ToLower(q)

	var results []SearchResult
	for _, record := range records {
		score, snippets := scoreRecord(record, needle)
		if score <= 0 {
			continue
		}
		results = append(results, SearchResult{
			Flow:     record.Summary(),
			Score:    score,
			Snippets: snippets,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].Flow.CreatedAt.Equal(results[j].Flow.CreatedAt) {
			return results[i].Flow.CreatedAt.After(results[j].Flow.CreatedAt)
		}
		return results[i].Flow.ID < results[j].Flow.ID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func scoreRecord(record *flow.FlowRecord, needle string) (float64, []string) {
	var score float64
	var snippets []string

	if strings.Contains(strings.ToLower(record.Request.Model), needle) {
		score += 5
	}
	if strings.Contains(strings.ToLower(record.Metadata.Provider), needle) {
		score += 4
	}
	for _, tag := range record.Annotations.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			score += 3
		}
	}
	if strings.Contains(strings.ToLower(record.Annotations.Comment), needle) {
		score += 2
		snippets = append(snippets, snippet(record.Annotations.Comment, needle))
	}

	if record.Response != nil {
		if n := strings.Count(strings.ToLower(record.Response.Content), needle); n > 0 {
			hits := float64(n)
			if hits > 5 {
				hits = 5
			}
			score += hits
			snippets = append(snippets, snippet(record.Response.Content, needle))
		}
	}
	for _, msg := range record.Request.Messages {
		if strings.Contains(strings.ToLower(msg.Content), needle) {
			score++
			snippets = append(snippets, snippet(msg.Content, needle))
			break
		}
	}

	return score, snippets
}

// snippet returns a short window of text around the first occurrence of the
// needle.
func snippet(text, needle string) string {
	const window = 40

	idx := strings.Index(strings.ToLower(text), needle)
	if idx < 0 {
		return ""
	}
	start := idx - window
	if start < 0 {
		start = 0
	}
	end := idx + len(needle) + window
	if end > len(text) {
		end = len(text)
	}

	out := text[start:end]
	if start > 0 {
		out = "..." + out
	}
	if end < len(text) {
		out += "..."
	}
	return out
}
