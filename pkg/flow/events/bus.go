package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"proxycast-hq/flowscope/pkg/flow"
)

// DefaultQueueSize is the per-subscriber queue capacity used when the bus
// config does not specify one.
const DefaultQueueSize = 256

// Config contains configuration for the event bus.
type Config struct {
	// QueueSize is the bounded per-subscriber queue capacity.
	// Default: DefaultQueueSize.
	QueueSize int

	// RateWindow is the sliding window width of the request-rate tracker.
	// Default: 1 minute.
	RateWindow time.Duration

	// Thresholds is the initial threshold configuration.
	Thresholds ThresholdConfig
}

// DefaultConfig returns the default bus configuration.
func DefaultConfig() *Config {
	return &Config{
		QueueSize:  DefaultQueueSize,
		RateWindow: time.Minute,
		Thresholds: DefaultThresholdConfig(),
	}
}

// Bus fans out flow lifecycle events to subscribers. Publishing never blocks:
// when a subscriber's queue is full the oldest queued event is dropped to
// make room.
type Bus struct {
	mu         sync.RWMutex
	subs       map[uint64]*Subscriber
	nextSubID  uint64
	queueSize  int
	thresholds ThresholdConfig
	rate       *RateTracker
	dropped    atomic.Int64
	logger     *slog.Logger
}

// NewBus creates an event bus.
func NewBus(cfg *Config) *Bus {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Bus{
		subs:       make(map[uint64]*Subscriber),
		queueSize:  queueSize,
		thresholds: cfg.Thresholds,
		rate:       NewRateTracker(cfg.RateWindow),
		logger:     slog.Default().With("component", "flow.events"),
	}
}

// Subscriber is one listener on the bus. Events are read from Events();
// Close detaches the listener and closes the channel.
type Subscriber struct {
	id   uint64
	ch   chan Event
	bus  *Bus
	once sync.Once
}

// Events returns the subscriber's receive channel. The channel is closed by
// Close.
func (s *Subscriber) Events() <-chan Event { return s.ch }

// Close unsubscribes the listener. Safe to call at any time, including
// concurrently with publishes.
func (s *Subscriber) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		s.bus.mu.Unlock()
		close(s.ch)
	})
}

// Subscribe attaches a new listener. The listener sees only events published
// after this call.
func (b *Bus) Subscribe() *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSubID++
	sub := &Subscriber{
		id:  b.nextSubID,
		ch:  make(chan Event, b.queueSize),
		bus: b,
	}
	b.subs[sub.id] = sub
	return sub
}

// SubscriberCount returns the number of attached listeners.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns the total number of events discarded due to slow
// consumers.
func (b *Bus) Dropped() int64 { return b.dropped.Load() }

// Publish delivers an event to every current subscriber. FlowStarted events
// additionally feed the request-rate tracker. Publish never blocks on a slow
// consumer: the subscriber's oldest queued event is discarded instead.
func (b *Bus) Publish(event Event) {
	if event.Type == EventFlowStarted {
		b.rate.Record(time.Now())
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		select {
		case sub.ch <- event:
		default:
			// Queue full: drop the oldest event, then retry once. A racing
			// reader may have emptied the queue in between, so the retry can
			// still fail; the new event is dropped in that case.
			select {
			case <-sub.ch:
				b.dropped.Add(1)
			default:
			}
			select {
			case sub.ch <- event:
			default:
				b.dropped.Add(1)
			}
		}
	}
}

// CheckCompletion evaluates the threshold configuration against a completed
// flow's measured latency and token usage and publishes a ThresholdWarning
// when detection is enabled and at least one configured ceiling is exceeded.
// The check result is returned either way.
func (b *Bus) CheckCompletion(record *flow.FlowRecord) ThresholdCheckResult {
	b.mu.RLock()
	cfg := b.thresholds
	b.mu.RUnlock()

	result := cfg.Check(record)
	if cfg.Enabled && result.Breached() {
		b.logger.Warn("flow threshold breached",
			"flow_id", record.ID,
			"latency_exceeded", result.LatencyExceeded,
			"token_exceeded", result.TokenExceeded,
			"actual_latency_ms", result.ActualLatencyMs,
			"actual_tokens", result.ActualTokens,
		)
		b.Publish(ThresholdWarning(record.ID, result))
	}
	return result
}

// ThresholdConfig returns the active threshold configuration.
func (b *Bus) ThresholdConfig() ThresholdConfig {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.thresholds
}

// SetThresholdConfig replaces the threshold configuration. Subsequent
// completions are checked against the new values.
func (b *Bus) SetThresholdConfig(cfg ThresholdConfig) {
	b.mu.Lock()
	b.thresholds = cfg
	b.mu.Unlock()

	b.logger.Info("threshold config updated",
		"enabled", cfg.Enabled,
		"latency_threshold_ms", cfg.LatencyThresholdMs,
		"token_threshold", cfg.TokenThreshold,
	)
}

// Rate returns the request-rate tracker.
func (b *Bus) Rate() *RateTracker { return b.rate }
