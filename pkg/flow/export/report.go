package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"proxycast-hq/flowscope/pkg/flow"
	"proxycast-hq/flowscope/pkg/flow/stats"
)

// ReportFormat enumerates the statistics report formats.
type ReportFormat string

const (
	ReportJSON     ReportFormat = "json"
	ReportMarkdown ReportFormat = "markdown"
	ReportCSV      ReportFormat = "csv"
)

// ParseReportFormat resolves a report format name.
func ParseReportFormat(name string) (ReportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "json":
		return ReportJSON, nil
	case "markdown", "md":
		return ReportMarkdown, nil
	case "csv":
		return ReportCSV, nil
	}
	return "", fmt.Errorf("unknown report format %q", name)
}

// ContentType returns the MIME type served with the report format.
func (f ReportFormat) ContentType() string {
	switch f {
	case ReportMarkdown:
		return "text/markdown"
	case ReportCSV:
		return "text/csv"
	default:
		return "application/json"
	}
}

// ExportReport serializes an aggregated statistics view.
func ExportReport(s *stats.EnhancedStats, format ReportFormat, w io.Writer) error {
	switch format {
	case ReportJSON, "":
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return flow.NewSerializationError("json", err)
		}
		_, err = w.Write(data)
		if err != nil {
			return flow.NewSerializationError("json", err)
		}
		return nil
	case ReportMarkdown:
		return reportMarkdown(s, w)
	case ReportCSV:
		return reportCSV(s, w)
	}
	return flow.NewSerializationError(string(format), fmt.Errorf("unknown report format"))
}

func reportMarkdown(s *stats.EnhancedStats, w io.Writer) error {
	var sb strings.Builder

	sb.WriteString("# Flow Statistics\n\n")
	fmt.Fprintf(&sb, "| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&sb, "| Total flows | %d |\n", s.TotalFlows)
	fmt.Fprintf(&sb, "| Active flows | %d |\n", s.ActiveFlows)
	fmt.Fprintf(&sb, "| Completed | %d |\n", s.CompletedFlows)
	fmt.Fprintf(&sb, "| Failed | %d |\n", s.FailedFlows)
	fmt.Fprintf(&sb, "| Success rate | %.1f%% |\n", s.SuccessRate*100)
	fmt.Fprintf(&sb, "| Avg latency | %.0f ms |\n", s.AvgLatencyMs)
	fmt.Fprintf(&sb, "| Total tokens | %d |\n", s.TotalTokens)
	fmt.Fprintf(&sb, "| Request rate | %.2f req/s |\n", s.RequestRate)
	sb.WriteString("\n")

	if len(s.ByProvider) > 0 {
		sb.WriteString("## Flows by Provider\n\n| Provider | Flows |\n|---|---|\n")
		for _, provider := range sortedKeys(s.ByProvider) {
			fmt.Fprintf(&sb, "| %s | %d |\n", provider, s.ByProvider[provider])
		}
		sb.WriteString("\n")
	}

	if len(s.TokenByModel) > 0 {
		sb.WriteString("## Tokens by Model\n\n| Model | Flows | Total | Avg |\n|---|---|---|---|\n")
		models := make([]string, 0, len(s.TokenByModel))
		for model := range s.TokenByModel {
			models = append(models, model)
		}
		sort.Strings(models)
		for _, model := range models {
			d := s.TokenByModel[model]
			fmt.Fprintf(&sb, "| %s | %d | %d | %.0f |\n", model, d.Count, d.TotalTokens, d.AvgTokens)
		}
		sb.WriteString("\n")
	}

	if len(s.LatencyHistogram) > 0 {
		sb.WriteString("## Latency\n\n| Bucket | Flows |\n|---|---|\n")
		for _, bucket := range s.LatencyHistogram {
			fmt.Fprintf(&sb, "| %s | %d |\n", bucket.Label, bucket.Count)
		}
		sb.WriteString("\n")
	}

	if _, err := io.WriteString(w, sb.String()); err != nil {
		return flow.NewSerializationError("markdown", err)
	}
	return nil
}

func reportCSV(s *stats.EnhancedStats, w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	rows := [][]string{
		{"metric", "value"},
		{"total_flows", fmt.Sprintf("%d", s.TotalFlows)},
		{"active_flows", fmt.Sprintf("%d", s.ActiveFlows)},
		{"completed_flows", fmt.Sprintf("%d", s.CompletedFlows)},
		{"failed_flows", fmt.Sprintf("%d", s.FailedFlows)},
		{"success_rate", fmt.Sprintf("%.4f", s.SuccessRate)},
		{"avg_latency_ms", fmt.Sprintf("%.2f", s.AvgLatencyMs)},
		{"total_input_tokens", fmt.Sprintf("%d", s.TotalInputTokens)},
		{"total_output_tokens", fmt.Sprintf("%d", s.TotalOutputTokens)},
		{"total_tokens", fmt.Sprintf("%d", s.TotalTokens)},
		{"request_rate", fmt.Sprintf("%.4f", s.RequestRate)},
	}
	for _, provider := range sortedKeys(s.ByProvider) {
		rows = append(rows, []string{"by_provider." + provider, fmt.Sprintf("%d", s.ByProvider[provider])})
	}
	for _, model := range sortedKeys(s.ByModel) {
		rows = append(rows, []string{"by_model." + model, fmt.Sprintf("%d", s.ByModel[model])})
	}

	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return flow.NewSerializationError("csv", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return flow.NewSerializationError("csv", err)
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
