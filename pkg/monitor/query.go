package monitor

import (
	"time"

	"proxycast-hq/flowscope/pkg/flow"
	"proxycast-hq/flowscope/pkg/flow/query"
	"proxycast-hq/flowscope/pkg/flow/stats"
)

// Query filters, sorts and paginates the resident flows.
func (m *Monitor) Query(params query.Params) (*query.QueryResult, error) {
	started := time.Now()
	result, err := query.Run(m.store.Snapshot(), params)
	if m.metrics != nil {
		m.metrics.ObserveQuery("query", time.Since(started))
	}
	return result, err
}

// Recent returns the newest flows, most recent first.
func (m *Monitor) Recent(limit int) ([]*flow.FlowRecord, error) {
	result, err := m.Query(query.Params{
		SortBy:     flow.SortByCreatedAt,
		Descending: true,
		Page:       1,
		PageSize:   limit,
	})
	if err != nil {
		return nil, err
	}
	return result.Flows, nil
}

// Search ranks resident flows against a free-text query.
func (m *Monitor) Search(q string, limit int) []query.SearchResult {
	started := time.Now()
	results := query.Search(m.store.Snapshot(), q, limit)
	if m.metrics != nil {
		m.metrics.ObserveQuery("search", time.Since(started))
	}
	return results
}

// AllTags returns every distinct tag across resident flows.
func (m *Monitor) AllTags() []string {
	return m.store.AllTags()
}

// Stats aggregates summary statistics, optionally restricted by a filter.
func (m *Monitor) Stats(filter *flow.Filter) *stats.FlowStats {
	started := time.Now()
	s := stats.Compute(m.filtered(filter))
	if m.metrics != nil {
		m.metrics.ObserveQuery("stats", time.Since(started))
	}
	return s
}

// EnhancedStats aggregates time-series and distribution statistics,
// optionally restricted by a filter. The request rate comes from the bus's
// sliding-window tracker.
func (m *Monitor) EnhancedStats(filter *flow.Filter, opts stats.Options) *stats.EnhancedStats {
	started := time.Now()
	opts.RequestRate = m.bus.Rate().Rate()
	es := stats.ComputeEnhanced(m.filtered(filter), opts)
	if m.metrics != nil {
		m.metrics.ObserveQuery("stats", time.Since(started))
	}
	return es
}

func (m *Monitor) filtered(filter *flow.Filter) []*flow.FlowRecord {
	snapshot := m.store.Snapshot()
	if filter == nil {
		return snapshot
	}
	matched := snapshot[:0]
	for _, record := range snapshot {
		if query.Matches(record, filter) {
			matched = append(matched, record)
		}
	}
	return matched
}
