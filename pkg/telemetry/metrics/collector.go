package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config contains configuration for metrics collection.
type Config struct {
	// Enabled toggles metrics collection and the /metrics endpoint.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Namespace is the metric name prefix. Default: "flowscope".
	Namespace string `json:"namespace" yaml:"namespace"`

	// Subsystem is the second name segment. Default: "monitor".
	Subsystem string `json:"subsystem" yaml:"subsystem"`

	// DurationBuckets are the flow duration histogram buckets in seconds.
	DurationBuckets []float64 `json:"duration_buckets" yaml:"duration_buckets"`
}

// DefaultConfig returns the default metrics configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:   true,
		Namespace: "flowscope",
		Subsystem: "monitor",
		// LLM request latencies run 100ms to 30s.
		DurationBuckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	}
}

// Collector owns the Prometheus registry and all flow monitor metrics.
type Collector struct {
	config   *Config
	registry *prometheus.Registry

	flowsTotal     *prometheus.CounterVec
	flowDuration   *prometheus.HistogramVec
	tokensTotal    *prometheus.CounterVec
	storeFlows     prometheus.Gauge
	evictionsTotal prometheus.Counter
	eventsDropped  prometheus.Counter
	subscribers    prometheus.Gauge
	queryDuration  *prometheus.HistogramVec
	exportsTotal   *prometheus.CounterVec
}

// NewCollector creates a collector and registers its metrics. A nil registry
// gets a fresh one.
func NewCollector(cfg *Config, registry *prometheus.Registry) *Collector {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "flowscope"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "monitor"
	}
	if len(cfg.DurationBuckets) == 0 {
		cfg.DurationBuckets = DefaultConfig().DurationBuckets
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		config:   cfg,
		registry: registry,

		flowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "flows_total",
				Help:      "Total number of finished flows",
			},
			[]string{"provider", "model", "state"},
		),
		flowDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "flow_duration_seconds",
				Help:      "Duration of finished flows in seconds",
				Buckets:   cfg.DurationBuckets,
			},
			[]string{"provider", "model"},
		),
		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "flow_tokens_total",
				Help:      "Total tokens across finished flows",
			},
			[]string{"provider", "model", "type"},
		),
		storeFlows: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "store_flows",
				Help:      "Current number of flows resident in the store",
			},
		),
		evictionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "store_evictions_total",
				Help:      "Total flows evicted to hold the occupancy ceiling",
			},
		),
		eventsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "events_dropped_total",
				Help:      "Events discarded because a subscriber queue was full",
			},
		),
		subscribers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "event_subscribers",
				Help:      "Currently attached event subscribers",
			},
		),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "query_duration_seconds",
				Help:      "Flow query latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"kind"},
		),
		exportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "exports_total",
				Help:      "Total exports by format",
			},
			[]string{"format"},
		),
	}

	registry.MustRegister(
		c.flowsTotal,
		c.flowDuration,
		c.tokensTotal,
		c.storeFlows,
		c.evictionsTotal,
		c.eventsDropped,
		c.subscribers,
		c.queryDuration,
		c.exportsTotal,
	)

	return c
}

// Registry returns the underlying Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// RecordFlow records a finished flow.
func (c *Collector) RecordFlow(provider, model, state string, duration time.Duration, inputTokens, outputTokens int) {
	c.flowsTotal.WithLabelValues(provider, model, state).Inc()
	if duration > 0 {
		c.flowDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	}
	if inputTokens > 0 {
		c.tokensTotal.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		c.tokensTotal.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	}
}

// SetStoreOccupancy updates the store occupancy gauge.
func (c *Collector) SetStoreOccupancy(flows int) {
	c.storeFlows.Set(float64(flows))
}

// RecordEvictions adds newly evicted flows.
func (c *Collector) RecordEvictions(n int64) {
	if n > 0 {
		c.evictionsTotal.Add(float64(n))
	}
}

// RecordDroppedEvents adds newly dropped events.
func (c *Collector) RecordDroppedEvents(n int64) {
	if n > 0 {
		c.eventsDropped.Add(float64(n))
	}
}

// SetSubscribers updates the subscriber gauge.
func (c *Collector) SetSubscribers(n int) {
	c.subscribers.Set(float64(n))
}

// ObserveQuery records one query's latency. Kind is "query", "search" or
// "stats".
func (c *Collector) ObserveQuery(kind string, duration time.Duration) {
	c.queryDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordExport counts one export.
func (c *Collector) RecordExport(format string) {
	c.exportsTotal.WithLabelValues(format).Inc()
}
