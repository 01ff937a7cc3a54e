package query

import (
	"strings"

	"proxycast-hq/flowscope/pkg/flow"
)

// Matches reports whether the record satisfies every populated criterion of
// the filter. A nil filter matches everything.
func Matches(record *flow.FlowRecord, filter *flow.Filter) bool {
	if filter == nil {
		return true
	}

	if filter.TimeRange != nil && !filter.TimeRange.Contains(record.Timestamps.Created) {
		return false
	}
	if len(filter.Providers) > 0 && !containsFold(filter.Providers, record.Metadata.Provider) {
		return false
	}
	if len(filter.Models) > 0 && !containsFold(filter.Models, record.Request.Model) {
		return false
	}
	if len(filter.States) > 0 {
		found := false
		for _, st := range filter.States {
			if st == record.State {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(filter.FlowTypes) > 0 {
		found := false
		for _, ft := range filter.FlowTypes {
			if ft.Equal(record.Type) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if filter.HasError != nil && record.HasError() != *filter.HasError {
		return false
	}
	if filter.HasToolCalls != nil && record.HasToolCalls() != *filter.HasToolCalls {
		return false
	}
	if filter.HasThinking != nil && record.HasThinking() != *filter.HasThinking {
		return false
	}
	if filter.IsStreaming != nil && record.IsStreaming() != *filter.IsStreaming {
		return false
	}

	if filter.ContentSearch != "" && !matchesContent(record, filter.ContentSearch) {
		return false
	}
	if filter.RequestSearch != "" && !matchesRequest(record, filter.RequestSearch) {
		return false
	}

	if filter.TokenRange != nil {
		total := record.TotalTokens()
		if filter.TokenRange.Min != nil && total < *filter.TokenRange.Min {
			return false
		}
		if filter.TokenRange.Max != nil && total > *filter.TokenRange.Max {
			return false
		}
	}
	if filter.LatencyRange != nil {
		d := record.Timestamps.DurationMs
		if filter.LatencyRange.MinMs != nil && d < *filter.LatencyRange.MinMs {
			return false
		}
		if filter.LatencyRange.MaxMs != nil && d > *filter.LatencyRange.MaxMs {
			return false
		}
	}

	if len(filter.Tags) > 0 {
		found := false
		for _, tag := range filter.Tags {
			if record.Annotations.HasTag(tag) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.StarredOnly && !record.Annotations.Starred {
		return false
	}
	if filter.CredentialID != "" && record.Metadata.CredentialID != filter.CredentialID {
		return false
	}

	return true
}

// matchesContent looks for the needle in the accumulated response content,
// case-insensitively.
func matchesContent(record *flow.FlowRecord, needle string) bool {
	if record.Response == nil {
		return false
	}
	return containsInsensitive(record.Response.Content, needle)
}

// matchesRequest looks for the needle in any single request message or the
// system prompt. A match never spans message boundaries.
func matchesRequest(record *flow.FlowRecord, needle string) bool {
	if containsInsensitive(record.Request.SystemPrompt, needle) {
		return true
	}
	for _, msg := range record.Request.Messages {
		if containsInsensitive(msg.Content, needle) {
			return true
		}
	}
	return false
}

func containsInsensitive(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func containsFold(list []string, value string) bool {
	for _, item := range list {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}
