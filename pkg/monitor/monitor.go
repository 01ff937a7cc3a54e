package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"proxycast-hq/flowscope/pkg/flow"
	"proxycast-hq/flowscope/pkg/flow/archive"
	"proxycast-hq/flowscope/pkg/flow/events"
	"proxycast-hq/flowscope/pkg/flow/retention"
	"proxycast-hq/flowscope/pkg/flow/store"
	"proxycast-hq/flowscope/pkg/telemetry/metrics"
)

// Config contains configuration for the flow monitor.
type Config struct {
	// Enabled is the initial monitoring state. It can be toggled at runtime.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// MaxFlows is the in-memory occupancy ceiling.
	MaxFlows int `json:"max_flows" yaml:"max_flows"`

	// EvictStreaming permits evicting streaming flows under memory pressure.
	EvictStreaming bool `json:"evict_streaming" yaml:"evict_streaming"`

	// FlowDir is the per-flow backing file directory. Empty disables backing
	// files.
	FlowDir string `json:"flow_dir" yaml:"flow_dir"`

	// QueueSize is the per-subscriber event queue capacity.
	QueueSize int `json:"queue_size" yaml:"queue_size"`

	// RateWindow is the request-rate tracker window.
	RateWindow time.Duration `json:"rate_window" yaml:"rate_window"`

	// Thresholds is the initial threshold configuration.
	Thresholds events.ThresholdConfig `json:"thresholds" yaml:"thresholds"`

	// Archive configures the SQLite archive. Nil disables archiving.
	Archive *archive.Config `json:"archive,omitempty" yaml:"archive,omitempty"`

	// ArchiveTerminal writes every flow to the archive as it finishes.
	ArchiveTerminal bool `json:"archive_terminal" yaml:"archive_terminal"`

	// Retention configures scheduled pruning. Nil uses defaults with the
	// scheduler disabled.
	Retention *retention.Config `json:"retention,omitempty" yaml:"retention,omitempty"`
}

// DefaultConfig returns the default monitor configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:        true,
		MaxFlows:       store.DefaultMaxFlows,
		EvictStreaming: true,
		QueueSize:      events.DefaultQueueSize,
		RateWindow:     time.Minute,
		Thresholds:     events.DefaultThresholdConfig(),
	}
}

// Monitor is the flow monitoring engine.
type Monitor struct {
	config  *Config
	store   *store.Store
	bus     *events.Bus
	archive *archive.Archive
	pruner  *retention.Pruner
	metrics *metrics.Collector
	logger  *slog.Logger

	enabled     atomic.Bool
	lastDropped atomic.Int64
	lastEvicted atomic.Int64
}

// New creates a monitor. The collector may be nil, disabling metrics.
func New(cfg *Config, collector *metrics.Collector) (*Monitor, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	bus := events.NewBus(&events.Config{
		QueueSize:  cfg.QueueSize,
		RateWindow: cfg.RateWindow,
		Thresholds: cfg.Thresholds,
	})

	storeCfg := &store.Config{
		MaxFlows:       cfg.MaxFlows,
		EvictStreaming: cfg.EvictStreaming,
	}
	if cfg.FlowDir != "" {
		files, err := store.NewFileBackend(cfg.FlowDir)
		if err != nil {
			return nil, err
		}
		storeCfg.Files = files
	}

	m := &Monitor{
		config:  cfg,
		store:   store.New(storeCfg, bus),
		bus:     bus,
		metrics: collector,
		logger:  slog.Default().With("component", "flow.monitor"),
	}
	m.enabled.Store(cfg.Enabled)

	if cfg.Archive != nil {
		a, err := archive.New(cfg.Archive)
		if err != nil {
			return nil, err
		}
		m.archive = a
	}
	m.pruner = retention.NewPruner(m.store, m.archive, cfg.Retention)

	return m, nil
}

// Start launches the retention scheduler. It returns immediately; pruning
// runs on the configured cron schedule until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) error {
	return m.pruner.Scheduler().Start(ctx)
}

// Close stops the scheduler and closes the archive.
func (m *Monitor) Close() error {
	m.pruner.Scheduler().Stop()
	if m.archive != nil {
		return m.archive.Close()
	}
	return nil
}

// Enabled reports whether monitoring is currently active.
func (m *Monitor) Enabled() bool { return m.enabled.Load() }

// SetEnabled toggles monitoring at runtime. Disabling does not drop resident
// flows; it only stops recording new activity.
func (m *Monitor) SetEnabled(enabled bool) {
	if m.enabled.Swap(enabled) != enabled {
		m.logger.Info("flow monitoring toggled", "enabled", enabled)
	}
}

// Bus returns the event bus.
func (m *Monitor) Bus() *events.Bus { return m.bus }

// Store returns the flow store.
func (m *Monitor) Store() *store.Store { return m.store }

// Archive returns the SQLite archive, or nil when archiving is disabled.
func (m *Monitor) Archive() *archive.Archive { return m.archive }

// Pruner returns the retention pruner.
func (m *Monitor) Pruner() *retention.Pruner { return m.pruner }

// StartFlow admits a new flow and returns its id, generating one when the
// record carries none. While monitoring is disabled the id is still returned
// but nothing is recorded.
func (m *Monitor) StartFlow(record *flow.FlowRecord) (string, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if !m.enabled.Load() {
		return record.ID, nil
	}

	if err := m.store.Create(record); err != nil {
		return "", err
	}
	m.syncGauges()
	return record.ID, nil
}

// UpdateFlow applies a patch to an in-flight flow.
func (m *Monitor) UpdateFlow(id string, patch store.Patch) (*flow.FlowRecord, error) {
	if !m.enabled.Load() {
		return nil, nil
	}
	return m.store.Update(id, patch)
}

// AppendChunk records one streaming chunk.
func (m *Monitor) AppendChunk(id string, chunk flow.StreamChunk) error {
	if !m.enabled.Load() {
		return nil
	}
	return m.store.AppendChunk(id, chunk)
}

// CompleteFlow finalizes a flow as successfully completed with its response
// snapshot.
func (m *Monitor) CompleteFlow(id string, response *flow.Response) (*flow.FlowRecord, error) {
	if !m.enabled.Load() {
		return nil, nil
	}

	now := time.Now()
	done := flow.StateCompleted
	record, err := m.store.Update(id, store.Patch{
		State:      &done,
		Response:   response,
		RequestEnd: &now,
	})
	if err != nil {
		return nil, err
	}
	m.finalize(record)
	return record, nil
}

// FailFlow finalizes a flow as failed with its classified error.
func (m *Monitor) FailFlow(id string, ferr flow.FlowError) (*flow.FlowRecord, error) {
	if !m.enabled.Load() {
		return nil, nil
	}

	now := time.Now()
	failed := flow.StateFailed
	record, err := m.store.Update(id, store.Patch{
		State:      &failed,
		Error:      &ferr,
		RequestEnd: &now,
	})
	if err != nil {
		return nil, err
	}
	m.finalize(record)
	return record, nil
}

// CancelFlow finalizes a flow as cancelled.
func (m *Monitor) CancelFlow(id string) (*flow.FlowRecord, error) {
	if !m.enabled.Load() {
		return nil, nil
	}

	now := time.Now()
	cancelled := flow.StateCancelled
	record, err := m.store.Update(id, store.Patch{
		State:      &cancelled,
		RequestEnd: &now,
	})
	if err != nil {
		return nil, err
	}
	m.finalize(record)
	return record, nil
}

// finalize records metrics and archives a flow that just reached a terminal
// state.
func (m *Monitor) finalize(record *flow.FlowRecord) {
	if m.metrics != nil {
		var input, output int
		if record.Response != nil {
			input = record.Response.Usage.InputTokens
			output = record.Response.Usage.OutputTokens
		}
		m.metrics.RecordFlow(
			record.Metadata.Provider,
			record.Request.Model,
			string(record.State),
			time.Duration(record.Timestamps.DurationMs)*time.Millisecond,
			input, output,
		)
	}
	m.syncGauges()

	if m.config.ArchiveTerminal && m.archive != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.archive.Store(ctx, record); err != nil {
			m.logger.Warn("failed to archive flow", "flow_id", record.ID, "error", err)
		}
	}
}

// syncGauges refreshes the store and bus gauges.
func (m *Monitor) syncGauges() {
	if m.metrics == nil {
		return
	}
	m.metrics.SetStoreOccupancy(m.store.Len())
	m.metrics.SetSubscribers(m.bus.SubscriberCount())

	dropped := m.bus.Dropped()
	m.metrics.RecordDroppedEvents(dropped - m.lastDropped.Swap(dropped))

	evicted := m.store.Evictions()
	m.metrics.RecordEvictions(evicted - m.lastEvicted.Swap(evicted))
}

// GetFlow returns a snapshot of one flow.
func (m *Monitor) GetFlow(id string) (*flow.FlowRecord, error) {
	return m.store.Get(id)
}

// DeleteFlow removes one flow regardless of state.
func (m *Monitor) DeleteFlow(id string) error {
	err := m.store.Delete(id)
	m.syncGauges()
	return err
}

// DeleteFlows removes the given flows and returns how many existed.
func (m *Monitor) DeleteFlows(ids []string) int {
	removed := m.store.DeleteBatch(ids)
	m.syncGauges()
	return removed
}

// Cleanup applies a bulk cleanup policy.
func (m *Monitor) Cleanup(policy store.CleanupPolicy) (*store.CleanupResult, error) {
	result, err := m.store.Cleanup(policy)
	m.syncGauges()
	return result, err
}

// Subscribe attaches a new event listener.
func (m *Monitor) Subscribe() *events.Subscriber {
	sub := m.bus.Subscribe()
	m.syncGauges()
	return sub
}

// ThresholdConfig returns the active threshold configuration.
func (m *Monitor) ThresholdConfig() events.ThresholdConfig {
	return m.bus.ThresholdConfig()
}

// SetThresholdConfig replaces the threshold configuration.
func (m *Monitor) SetThresholdConfig(cfg events.ThresholdConfig) {
	m.bus.SetThresholdConfig(cfg)
}

// RateInfo is the instantaneous request-rate reading.
type RateInfo struct {
	RequestsPerSecond float64 `json:"rate"`
	Count             int     `json:"count"`
	WindowSeconds     float64 `json:"window_seconds"`
}

// RequestRate returns the request rate over the sliding window.
func (m *Monitor) RequestRate() RateInfo {
	rate := m.bus.Rate()
	return RateInfo{
		RequestsPerSecond: rate.Rate(),
		Count:             rate.Count(),
		WindowSeconds:     rate.Window().Seconds(),
	}
}

// SetRateWindow changes the request-rate window width.
func (m *Monitor) SetRateWindow(window time.Duration) error {
	if window <= 0 {
		return fmt.Errorf("rate window must be positive")
	}
	m.bus.Rate().SetWindow(window)
	return nil
}
