package server

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"
	"time"

	"proxycast-hq/flowscope/pkg/flow"
	"proxycast-hq/flowscope/pkg/flow/events"
	"proxycast-hq/flowscope/pkg/flow/export"
	"proxycast-hq/flowscope/pkg/flow/query"
	"proxycast-hq/flowscope/pkg/flow/stats"
	"proxycast-hq/flowscope/pkg/flow/store"
	"proxycast-hq/flowscope/pkg/monitor"
)

type queryRequest struct {
	Filter   *flow.Filter `json:"filter"`
	SortBy   flow.SortBy  `json:"sort_by"`
	SortDesc bool         `json:"sort_desc"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := s.monitor.Query(query.Params{
		Filter:     req.Filter,
		SortBy:     req.SortBy,
		Descending: req.SortDesc,
		Page:       req.Page,
		PageSize:   req.PageSize,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type expressionQueryRequest struct {
	FilterExpr string      `json:"filter_expr"`
	SortBy     flow.SortBy `json:"sort_by"`
	SortDesc   bool        `json:"sort_desc"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
}

func (s *Server) handleQueryExpression(w http.ResponseWriter, r *http.Request) {
	var req expressionQueryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := s.monitor.Query(query.Params{
		Expression: req.FilterExpr,
		SortBy:     req.SortBy,
		Descending: req.SortDesc,
		Page:       req.Page,
		PageSize:   req.PageSize,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeErrorMessage(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	flows, err := s.monitor.Recent(limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, flows)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Limit <= 0 {
		req.Limit = 50
	}
	writeJSON(w, http.StatusOK, s.monitor.Search(req.Query, req.Limit))
}

func (s *Server) handleGetFlow(w http.ResponseWriter, r *http.Request) {
	record, err := s.monitor.GetFlow(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleDeleteFlow(w http.ResponseWriter, r *http.Request) {
	if err := s.monitor.DeleteFlow(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, true)
}

func (s *Server) handleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.monitor.DeleteFlows(req.IDs))
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var policy store.CleanupPolicy
	if !decodeJSON(w, r, &policy) {
		return
	}

	result, err := s.monitor.Cleanup(policy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filter *flow.Filter `json:"filter"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.monitor.Stats(req.Filter))
}

type enhancedStatsRequest struct {
	Filter    *flow.Filter    `json:"filter"`
	TimeRange *flow.TimeRange `json:"time_range"`
	Interval  string          `json:"interval"`
	Buckets   []int64         `json:"buckets"`
}

func (req *enhancedStatsRequest) options(w http.ResponseWriter) (stats.Options, bool) {
	opts := stats.Options{LatencyBuckets: req.Buckets, TimeRange: req.TimeRange}
	if req.Interval != "" {
		d, err := time.ParseDuration(req.Interval)
		if err != nil || d <= 0 {
			writeErrorMessage(w, http.StatusBadRequest, "invalid_request",
				"interval must be a positive duration such as \"1m\" or \"1h\"")
			return opts, false
		}
		opts.TrendInterval = d
	}
	return opts, true
}

func (s *Server) handleEnhancedStats(w http.ResponseWriter, r *http.Request) {
	var req enhancedStatsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	opts, ok := req.options(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.monitor.EnhancedStats(req.Filter, opts))
}

func (s *Server) handleRequestTrend(w http.ResponseWriter, r *http.Request) {
	var req enhancedStatsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	opts, ok := req.options(w)
	if !ok {
		return
	}
	es := s.monitor.EnhancedStats(req.Filter, opts)
	writeJSON(w, http.StatusOK, map[string]any{
		"points":     es.RequestTrend,
		"time_range": es.TimeRange,
	})
}

func (s *Server) handleTokenDistribution(w http.ResponseWriter, r *http.Request) {
	var req enhancedStatsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	opts, ok := req.options(w)
	if !ok {
		return
	}
	es := s.monitor.EnhancedStats(req.Filter, opts)
	writeJSON(w, http.StatusOK, es.TokenByModel)
}

func (s *Server) handleLatencyHistogram(w http.ResponseWriter, r *http.Request) {
	var req enhancedStatsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	opts, ok := req.options(w)
	if !ok {
		return
	}
	es := s.monitor.EnhancedStats(req.Filter, opts)
	writeJSON(w, http.StatusOK, es.LatencyHistogram)
}

type exportRequest struct {
	Format              string                 `json:"format"`
	Filter              *flow.Filter           `json:"filter"`
	FlowIDs             []string               `json:"flow_ids"`
	IncludeRaw          bool                   `json:"include_raw"`
	IncludeStreamChunks bool                   `json:"include_stream_chunks"`
	RedactSensitive     bool                   `json:"redact_sensitive"`
	RedactionRules      []export.RedactionRule `json:"redaction_rules"`
	Pretty              bool                   `json:"pretty"`
}

type exportResponse struct {
	Data     string `json:"data"`
	Count    int    `json:"count"`
	Format   string `json:"format"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	format, err := export.ParseFormat(req.Format)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var buf bytes.Buffer
	result, err := s.monitor.Export(r.Context(), monitor.ExportRequest{
		Options: export.Options{
			Format:              format,
			IncludeRaw:          req.IncludeRaw,
			IncludeStreamChunks: req.IncludeStreamChunks,
			Redact:              req.RedactSensitive,
			RedactionRules:      req.RedactionRules,
			Pretty:              req.Pretty,
		},
		Filter:  req.Filter,
		FlowIDs: req.FlowIDs,
	}, &buf)
	if err != nil {
		if strings.Contains(err.Error(), "mutually exclusive") {
			writeErrorMessage(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, exportResponse{
		Data:     buf.String(),
		Count:    result.FlowCount,
		Format:   string(format),
		Filename: result.Filename,
		MimeType: result.ContentType,
	})
}

func (s *Server) handleExportReport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filter *flow.Filter `json:"filter"`
		Format string       `json:"format"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	format, err := export.ParseReportFormat(req.Format)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var buf bytes.Buffer
	if err := s.monitor.ExportReport(r.Context(), req.Filter, format, &buf); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"data":   buf.String(),
		"format": string(format),
	})
}

func (s *Server) handleUpdateAnnotations(w http.ResponseWriter, r *http.Request) {
	var patch store.AnnotationsPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	annotations, err := s.monitor.UpdateAnnotations(r.PathValue("id"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, annotations)
}

func (s *Server) handleToggleStar(w http.ResponseWriter, r *http.Request) {
	starred, err := s.monitor.ToggleStar(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, starred)
}

func (s *Server) handleAddTags(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tags []string `json:"tags"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	tags, err := s.monitor.AddTags(r.PathValue("id"), req.Tags...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

func (s *Server) handleRemoveTags(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("tags")
	var remove []string
	for _, tag := range strings.Split(raw, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			remove = append(remove, tag)
		}
	}

	tags, err := s.monitor.RemoveTags(r.PathValue("id"), remove...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

func (s *Server) handleSetComment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Comment string `json:"comment"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	annotations, err := s.monitor.SetComment(r.PathValue("id"), req.Comment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, annotations.Comment)
}

func (s *Server) handleSetMarker(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Marker string `json:"marker"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	annotations, err := s.monitor.SetMarker(r.PathValue("id"), req.Marker)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, annotations.Marker)
}

func (s *Server) handleAllTags(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.AllTags())
}

func (s *Server) handleGetThresholds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.ThresholdConfig())
}

func (s *Server) handleSetThresholds(w http.ResponseWriter, r *http.Request) {
	var cfg events.ThresholdConfig
	if !decodeJSON(w, r, &cfg) {
		return
	}
	if cfg.LatencyThresholdMs < 0 || cfg.TokenThreshold < 0 {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_request", "thresholds must not be negative")
		return
	}
	s.monitor.SetThresholdConfig(cfg)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRequestRate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.RequestRate())
}

func (s *Server) handleSetRateWindow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WindowSeconds float64 `json:"window_seconds"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.monitor.SetRateWindow(time.Duration(req.WindowSeconds * float64(time.Second))); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.Debug())
}

func (s *Server) handleSetEnabled(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	s.monitor.SetEnabled(req.Enabled)
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": s.monitor.Enabled()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"enabled": s.monitor.Enabled(),
		"flows":   s.monitor.Store().Len(),
	})
}
