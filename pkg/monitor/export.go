package monitor

import (
	"context"
	"fmt"
	"io"
	"time"

	"proxycast-hq/flowscope/pkg/flow"
	"proxycast-hq/flowscope/pkg/flow/export"
	"proxycast-hq/flowscope/pkg/flow/stats"
)

// ExportRequest selects flows and the serialization to apply. Filter and
// FlowIDs are mutually exclusive; with neither, every resident flow is
// exported.
type ExportRequest struct {
	Options export.Options `json:"options"`
	Filter  *flow.Filter   `json:"filter,omitempty"`
	FlowIDs []string       `json:"flow_ids,omitempty"`
}

// ExportResult describes the produced download.
type ExportResult struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	FlowCount   int    `json:"flow_count"`
}

// Export serializes the selected flows to w.
func (m *Monitor) Export(ctx context.Context, req ExportRequest, w io.Writer) (*ExportResult, error) {
	if req.Filter != nil && len(req.FlowIDs) > 0 {
		return nil, fmt.Errorf("export selection: filter and flow_ids are mutually exclusive")
	}

	var records []*flow.FlowRecord
	if len(req.FlowIDs) > 0 {
		for _, id := range req.FlowIDs {
			record, err := m.store.Get(id)
			if err != nil {
				return nil, err
			}
			records = append(records, record)
		}
	} else {
		records = m.filtered(req.Filter)
	}

	if req.Options.Format == "" {
		req.Options.Format = export.FormatJSON
	}
	if err := export.Export(ctx, records, req.Options, w); err != nil {
		return nil, err
	}

	if m.metrics != nil {
		m.metrics.RecordExport(string(req.Options.Format))
	}
	return &ExportResult{
		Filename:    export.Filename(req.Options.Format, time.Now()),
		ContentType: req.Options.Format.ContentType(),
		FlowCount:   len(records),
	}, nil
}

// ExportReport serializes aggregated statistics to w.
func (m *Monitor) ExportReport(ctx context.Context, filter *flow.Filter, format export.ReportFormat, w io.Writer) error {
	es := m.EnhancedStats(filter, stats.Options{})
	if err := export.ExportReport(es, format, w); err != nil {
		return err
	}
	if m.metrics != nil {
		m.metrics.RecordExport("report_" + string(format))
	}
	return nil
}

// ExportSearch serializes the flows behind a ranked search, preserving rank
// order.
func (m *Monitor) ExportSearch(ctx context.Context, q string, limit int, opts export.Options, w io.Writer) (*ExportResult, error) {
	hits := m.Search(q, limit)
	if len(hits) == 0 {
		if opts.Format == "" {
			opts.Format = export.FormatJSON
		}
		if err := export.Export(ctx, nil, opts, w); err != nil {
			return nil, err
		}
		return &ExportResult{
			Filename:    export.Filename(opts.Format, time.Now()),
			ContentType: opts.Format.ContentType(),
		}, nil
	}

	ids := make([]string, 0, len(hits))
	for _, hit := range hits {
		ids = append(ids, hit.Flow.ID)
	}
	return m.Export(ctx, ExportRequest{Options: opts, FlowIDs: ids}, w)
}
