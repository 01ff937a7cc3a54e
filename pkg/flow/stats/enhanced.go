package stats

import (
	"fmt"
	"sort"
	"time"

	"proxycast-hq/flowscope/pkg/flow"
)

// DefaultLatencyBuckets are the histogram bucket upper bounds, in
// milliseconds, used when the caller does not supply any.
var DefaultLatencyBuckets = []int64{100, 250, 500, 1000, 2500, 5000, 10000, 30000}

// TrendPoint is one interval of the request trend series.
type TrendPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Count     int       `json:"count"`
}

// Distribution summarizes token usage for one model.
type Distribution struct {
	Count        int     `json:"count"`
	TotalTokens  int     `json:"total_tokens"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	AvgTokens    float64 `json:"avg_tokens"`
}

// HistogramBucket is one labelled latency bucket.
type HistogramBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// TimeRange bounds the flows an enhanced-stats result was computed over.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// EnhancedStats extends the summary statistics with time-series and
// distribution views.
type EnhancedStats struct {
	FlowStats

	RequestTrend      []TrendPoint            `json:"request_trend"`
	TokenByModel      map[string]Distribution `json:"token_by_model"`
	SuccessByProvider map[string]float64      `json:"success_by_provider"`
	LatencyHistogram  []HistogramBucket       `json:"latency_histogram"`
	ErrorDistribution map[string]int          `json:"error_distribution"`
	RequestRate       float64                 `json:"request_rate"`
	TimeRange         *TimeRange              `json:"time_range,omitempty"`
}

// Options control the enhanced aggregation.
type Options struct {
	// TrendInterval is the bucket width of the request trend series.
	// Default: one minute.
	TrendInterval time.Duration

	// LatencyBuckets are histogram upper bounds in milliseconds, ascending.
	// Default: DefaultLatencyBuckets.
	LatencyBuckets []int64

	// RequestRate is the externally measured requests-per-second figure,
	// copied into the result.
	RequestRate float64

	// TimeRange restricts aggregation to flows created inside it. The trend
	// series then spans the full requested range, empty edge intervals
	// included, and the result reports the requested bounds rather than the
	// observed ones.
	TimeRange *flow.TimeRange
}

// ComputeEnhanced aggregates summary plus time-series statistics.
func ComputeEnhanced(records []*flow.FlowRecord, opts Options) *EnhancedStats {
	if opts.TrendInterval <= 0 {
		opts.TrendInterval = time.Minute
	}
	if len(opts.LatencyBuckets) == 0 {
		opts.LatencyBuckets = DefaultLatencyBuckets
	}
	if opts.TimeRange != nil {
		kept := make([]*flow.FlowRecord, 0, len(records))
		for _, record := range records {
			if opts.TimeRange.Contains(record.Timestamps.Created) {
				kept = append(kept, record)
			}
		}
		records = kept
	}

	es := &EnhancedStats{
		FlowStats:         *Compute(records),
		TokenByModel:      make(map[string]Distribution),
		SuccessByProvider: make(map[string]float64),
		ErrorDistribution: make(map[string]int),
		RequestRate:       opts.RequestRate,
	}

	es.RequestTrend = requestTrend(records, opts.TrendInterval, opts.TimeRange)
	es.LatencyHistogram = LatencyHistogram(records, opts.LatencyBuckets)

	type providerOutcome struct{ completed, finished int }
	outcomes := make(map[string]*providerOutcome)

	for _, record := range records {
		if record.Response != nil && record.Request.Model != "" {
			d := es.TokenByModel[record.Request.Model]
			d.Count++
			d.TotalTokens += record.Response.Usage.TotalTokens
			d.InputTokens += record.Response.Usage.InputTokens
			d.OutputTokens += record.Response.Usage.OutputTokens
			es.TokenByModel[record.Request.Model] = d
		}

		if record.State.Terminal() && record.Metadata.Provider != "" {
			o := outcomes[record.Metadata.Provider]
			if o == nil {
				o = &providerOutcome{}
				outcomes[record.Metadata.Provider] = o
			}
			o.finished++
			if record.State == flow.StateCompleted {
				o.completed++
			}
		}

		if record.Error != nil {
			es.ErrorDistribution[string(record.Error.Kind)]++
		}

		created := record.Timestamps.Created
		if es.TimeRange == nil {
			es.TimeRange = &TimeRange{Start: created, End: created}
		} else {
			if created.Before(es.TimeRange.Start) {
				es.TimeRange.Start = created
			}
			if created.After(es.TimeRange.End) {
				es.TimeRange.End = created
			}
		}
	}

	for model, d := range es.TokenByModel {
		if d.Count > 0 {
			d.AvgTokens = float64(d.TotalTokens) / float64(d.Count)
			es.TokenByModel[model] = d
		}
	}
	for provider, o := range outcomes {
		es.SuccessByProvider[provider] = float64(o.completed) / float64(o.finished)
	}

	if opts.TimeRange != nil {
		if es.TimeRange == nil {
			es.TimeRange = &TimeRange{}
		}
		if opts.TimeRange.Start != nil {
			es.TimeRange.Start = *opts.TimeRange.Start
		}
		if opts.TimeRange.End != nil {
			es.TimeRange.End = *opts.TimeRange.End
		}
	}

	return es
}

// requestTrend buckets flow creation times into fixed intervals, emitting a
// point per interval, gaps included. The series covers the earliest through
// the latest flow, widened to the bounds of span when one is given, so a
// requested window keeps its empty edge intervals.
func requestTrend(records []*flow.FlowRecord, interval time.Duration, span *flow.TimeRange) []TrendPoint {
	counts := make(map[int64]int)
	var minBucket, maxBucket int64
	have := false
	observe := func(t time.Time) int64 {
		bucket := t.Truncate(interval).UnixNano()
		if !have {
			minBucket, maxBucket = bucket, bucket
			have = true
			return bucket
		}
		if bucket < minBucket {
			minBucket = bucket
		}
		if bucket > maxBucket {
			maxBucket = bucket
		}
		return bucket
	}

	for _, record := range records {
		counts[observe(record.Timestamps.Created)]++
	}
	if span != nil {
		if span.Start != nil {
			observe(*span.Start)
		}
		if span.End != nil {
			observe(*span.End)
		}
	}
	if !have {
		return []TrendPoint{}
	}

	var trend []TrendPoint
	for b := minBucket; b <= maxBucket; b += int64(interval) {
		trend = append(trend, TrendPoint{
			Timestamp: time.Unix(0, b),
			Count:     counts[b],
		})
	}
	return trend
}

// LatencyHistogram buckets measured flow durations against ascending upper
// bounds. The label of the first bucket is "0-<b0>ms", subsequent ones
// "<prev>-<bound>ms", and everything past the last bound lands in a final
// ">?ms" overflow bucket. Flows without a measured duration are skipped.
func LatencyHistogram(records []*flow.FlowRecord, bounds []int64) []HistogramBucket {
	bounds = append([]int64{}, bounds...)
	sort.Slice(bounds, func(i, j int) bool { return bounds[i] < bounds[j] })

	buckets := make([]HistogramBucket, len(bounds)+1)
	prev := int64(0)
	for i, bound := range bounds {
		buckets[i].Label = fmt.Sprintf("%d-%dms", prev, bound)
		prev = bound
	}
	buckets[len(bounds)].Label = fmt.Sprintf(">%dms", prev)

	for _, record := range records {
		d := record.Timestamps.DurationMs
		if d <= 0 {
			continue
		}
		placed := false
		for i, bound := range bounds {
			if d <= bound {
				buckets[i].Count++
				placed = true
				break
			}
		}
		if !placed {
			buckets[len(bounds)].Count++
		}
	}

	return buckets
}
