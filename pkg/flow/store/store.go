package store

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"proxycast-hq/flowscope/pkg/flow"
	"proxycast-hq/flowscope/pkg/flow/events"
)

// DefaultMaxFlows is the occupancy ceiling used when the config does not
// specify one.
const DefaultMaxFlows = 1000

// Config contains configuration for the flow store.
type Config struct {
	// MaxFlows is the in-memory occupancy ceiling. Exceeding it triggers
	// eviction. Default: DefaultMaxFlows.
	MaxFlows int

	// EvictStreaming permits force-cancelling and evicting a streaming flow
	// when every resident flow is mid-stream. With it disabled, Create fails
	// with CapacityExceeded in that situation. Default: true.
	EvictStreaming bool

	// Files is the optional per-flow backing file store. Flow files are
	// written at admission and on terminal transitions, and removed together
	// with the in-memory record.
	Files *FileBackend
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxFlows:       DefaultMaxFlows,
		EvictStreaming: true,
	}
}

// Patch is a partial update applied to a flow record. Nil fields are left
// untouched. Delta fields append to the accumulated response content.
type Patch struct {
	State         *flow.FlowState
	Response      *flow.Response
	Error         *flow.FlowError
	RequestEnd    *time.Time
	ResponseStart *time.Time
	ResponseEnd   *time.Time
	RetryCount    *int
	ContentDelta  string
	ThinkingDelta string
	ToolCallDelta *flow.ToolCallDelta
}

// Store is the bounded, concurrent, in-memory flow container.
type Store struct {
	mu     sync.RWMutex
	flows  map[string]*flow.FlowRecord
	cfg    *Config
	bus    *events.Bus
	logger *slog.Logger

	evictions int64 // lifetime eviction count, for introspection
}

// New creates a flow store. The bus may be nil, in which case no events are
// published.
func New(cfg *Config, bus *events.Bus) *Store {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxFlows <= 0 {
		cfg.MaxFlows = DefaultMaxFlows
	}
	return &Store{
		flows:  make(map[string]*flow.FlowRecord),
		cfg:    cfg,
		bus:    bus,
		logger: slog.Default().With("component", "flow.store"),
	}
}

// Create inserts a new flow in the Pending state. It fails with DuplicateID
// if the id is taken and with CapacityExceeded if the store is full and no
// resident record is evictable.
func (s *Store) Create(record *flow.FlowRecord) error {
	if record.ID == "" {
		return fmt.Errorf("flow record has no id")
	}

	s.mu.Lock()

	if _, exists := s.flows[record.ID]; exists {
		s.mu.Unlock()
		return flow.NewDuplicateIDError(record.ID)
	}

	record.State = flow.StatePending
	if record.Timestamps.Created.IsZero() {
		record.Timestamps.Created = time.Now()
	}
	if record.Timestamps.RequestStart.IsZero() {
		record.Timestamps.RequestStart = record.Timestamps.Created
	}
	if record.Annotations.Tags == nil {
		record.Annotations.Tags = []string{}
	}

	// Make room before inserting so a full store of pinned streams rejects
	// the insert instead of overshooting the ceiling.
	var evicted []evictedFlow
	for len(s.flows) >= s.cfg.MaxFlows {
		victim := s.victimLocked()
		if victim == nil {
			max := s.cfg.MaxFlows
			s.mu.Unlock()
			s.publishRemovals(evicted)
			return flow.NewCapacityError(max)
		}
		evicted = append(evicted, s.evictLocked(victim))
	}

	s.flows[record.ID] = record

	summary := record.Summary()
	s.mu.Unlock()

	s.publishRemovals(evicted)
	s.publish(events.FlowStarted(summary))
	s.writeFile(record.ID)

	s.logger.Debug("flow created",
		"flow_id", record.ID,
		"provider", record.Metadata.Provider,
		"model", record.Request.Model,
	)

	return nil
}

// Update applies a patch to a flow and returns a snapshot of the updated
// record. It fails with NotFound for unknown ids and InvalidTransition when
// the patch would move the flow out of a terminal state or skip backwards.
func (s *Store) Update(id string, patch Patch) (*flow.FlowRecord, error) {
	s.mu.Lock()

	record, ok := s.flows[id]
	if !ok {
		s.mu.Unlock()
		return nil, flow.NewNotFoundError(id)
	}

	if patch.State != nil {
		if !patch.State.Valid() {
			from := record.State
			s.mu.Unlock()
			return nil, flow.NewInvalidTransitionError(id, from, *patch.State)
		}
		if !flow.CanTransition(record.State, *patch.State) {
			from := record.State
			s.mu.Unlock()
			return nil, flow.NewInvalidTransitionError(id, from, *patch.State)
		}
	}

	applyPatch(record, patch)

	snapshot := record.Clone()
	newState := record.State
	terminal := patch.State != nil && newState.Terminal()
	s.mu.Unlock()

	// One bus notification per successful update. Completion additionally
	// runs the threshold check; failure carries the error payload.
	switch {
	case terminal && newState == flow.StateCompleted:
		s.publish(events.FlowCompleted(id, snapshot.Summary()))
		if s.bus != nil {
			s.bus.CheckCompletion(snapshot)
		}
	case terminal && newState == flow.StateFailed:
		ferr := flow.FlowError{Kind: flow.ErrorOther, Message: "request failed", Timestamp: time.Now()}
		if snapshot.Error != nil {
			ferr = *snapshot.Error
		}
		s.publish(events.FlowFailed(id, ferr))
	default:
		s.publish(events.FlowUpdated(id, patchUpdate(patch, snapshot)))
	}

	if terminal {
		s.writeFile(id)
	}

	return snapshot, nil
}

// applyPatch mutates the live record. Callers must hold the write lock.
func applyPatch(record *flow.FlowRecord, patch Patch) {
	if patch.Response != nil {
		resp := *patch.Response
		resp.Usage.Normalize()
		record.Response = &resp
	}
	if patch.Error != nil {
		e := *patch.Error
		if e.Timestamp.IsZero() {
			e.Timestamp = time.Now()
		}
		record.Error = &e
	}
	if patch.RetryCount != nil {
		record.Metadata.RetryCount = *patch.RetryCount
	}

	if patch.ContentDelta != "" || patch.ThinkingDelta != "" {
		ensureResponse(record)
		record.Response.Content += patch.ContentDelta
		if patch.ThinkingDelta != "" {
			if record.Response.Thinking == nil {
				record.Response.Thinking = &flow.ThinkingContent{}
			}
			record.Response.Thinking.Text += patch.ThinkingDelta
		}
	}

	if patch.ResponseStart != nil {
		record.Timestamps.ResponseStart = patch.ResponseStart
		ttfb := patch.ResponseStart.Sub(record.Timestamps.RequestStart).Milliseconds()
		record.Timestamps.TTFBMs = &ttfb
	}
	if patch.ResponseEnd != nil {
		record.Timestamps.ResponseEnd = patch.ResponseEnd
	}
	if patch.RequestEnd != nil {
		record.Timestamps.RequestEnd = patch.RequestEnd
		record.Timestamps.DurationMs = patch.RequestEnd.Sub(record.Timestamps.RequestStart).Milliseconds()
	}

	if patch.State != nil {
		record.State = *patch.State
	}
}

// patchUpdate converts a patch into the incremental event payload.
func patchUpdate(patch Patch, snapshot *flow.FlowRecord) events.FlowUpdate {
	update := events.FlowUpdate{
		State:         patch.State,
		ContentDelta:  patch.ContentDelta,
		ThinkingDelta: patch.ThinkingDelta,
		ToolCallDelta: patch.ToolCallDelta,
	}
	if cc := snapshot.ChunkCount(); cc > 0 {
		update.ChunkCount = &cc
	}
	return update
}

// ensureResponse creates an empty response shell for accumulating streaming
// deltas before the final snapshot arrives.
func ensureResponse(record *flow.FlowRecord) {
	if record.Response == nil {
		record.Response = &flow.Response{
			Headers:        map[string]string{},
			TimestampStart: time.Now(),
		}
	}
}

// AppendChunk appends a streaming chunk to a flow, moving it from Pending to
// Streaming on the first chunk. Chunks arriving out of order are
// re-sequenced by index; a duplicate index is rejected.
func (s *Store) AppendChunk(id string, chunk flow.StreamChunk) error {
	s.mu.Lock()

	record, ok := s.flows[id]
	if !ok {
		s.mu.Unlock()
		return flow.NewNotFoundError(id)
	}
	if record.State.Terminal() {
		from := record.State
		s.mu.Unlock()
		return flow.NewInvalidTransitionError(id, from, flow.StateStreaming)
	}

	var stateChange *flow.FlowState
	if record.State == flow.StatePending {
		streaming := flow.StateStreaming
		record.State = streaming
		stateChange = &streaming
	}

	ensureResponse(record)
	if record.Response.Stream == nil {
		record.Response.Stream = &flow.StreamInfo{}
	}
	stream := record.Response.Stream

	if chunk.Timestamp.IsZero() {
		chunk.Timestamp = time.Now()
	}

	// Insert in index order. Arrival order is not the iteration contract.
	pos := sort.Search(len(stream.RawChunks), func(i int) bool {
		return stream.RawChunks[i].Index >= chunk.Index
	})
	if pos < len(stream.RawChunks) && stream.RawChunks[pos].Index == chunk.Index {
		s.mu.Unlock()
		return fmt.Errorf("duplicate stream chunk index %d for flow %s", chunk.Index, id)
	}
	stream.RawChunks = append(stream.RawChunks, flow.StreamChunk{})
	copy(stream.RawChunks[pos+1:], stream.RawChunks[pos:])
	stream.RawChunks[pos] = chunk
	stream.ChunkCount = len(stream.RawChunks)

	if record.Timestamps.ResponseStart == nil {
		ts := chunk.Timestamp
		record.Timestamps.ResponseStart = &ts
		ttfb := ts.Sub(record.Timestamps.RequestStart).Milliseconds()
		record.Timestamps.TTFBMs = &ttfb
		stream.FirstChunkLatencyMs = ttfb
	}
	if stream.ChunkCount > 1 {
		first := stream.RawChunks[0].Timestamp
		last := stream.RawChunks[stream.ChunkCount-1].Timestamp
		stream.AvgChunkIntervalMs = float64(last.Sub(first).Milliseconds()) / float64(stream.ChunkCount-1)
	}

	record.Response.Content += chunk.ContentDelta
	if chunk.ThinkingDelta != "" {
		if record.Response.Thinking == nil {
			record.Response.Thinking = &flow.ThinkingContent{}
		}
		record.Response.Thinking.Text += chunk.ThinkingDelta
	}

	chunkCount := stream.ChunkCount
	s.mu.Unlock()

	update := events.FlowUpdate{
		State:         stateChange,
		ContentDelta:  chunk.ContentDelta,
		ThinkingDelta: chunk.ThinkingDelta,
		ToolCallDelta: chunk.ToolCallDelta,
		ChunkCount:    &chunkCount,
	}
	s.publish(events.FlowUpdated(id, update))

	return nil
}

// Get returns a snapshot of one flow, or NotFound.
func (s *Store) Get(id string) (*flow.FlowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.flows[id]
	if !ok {
		return nil, flow.NewNotFoundError(id)
	}
	return record.Clone(), nil
}

// Snapshot returns deep copies of every resident flow. The result is a
// consistent view: mutations after the call are not reflected.
func (s *Store) Snapshot() []*flow.FlowRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*flow.FlowRecord, 0, len(s.flows))
	for _, record := range s.flows {
		out = append(out, record.Clone())
	}
	return out
}

// Delete removes one flow regardless of state. It fails with NotFound for
// unknown ids.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	record, ok := s.flows[id]
	if !ok {
		s.mu.Unlock()
		return flow.NewNotFoundError(id)
	}
	removed := evictedFlow{id: id, state: record.State}
	delete(s.flows, id)
	s.mu.Unlock()

	s.publishRemovals([]evictedFlow{removed})
	return nil
}

// DeleteBatch removes the given flows, skipping unknown ids, and returns the
// number removed.
func (s *Store) DeleteBatch(ids []string) int {
	s.mu.Lock()
	var removed []evictedFlow
	for _, id := range ids {
		if record, ok := s.flows[id]; ok {
			removed = append(removed, evictedFlow{id: id, state: record.State})
			delete(s.flows, id)
		}
	}
	s.mu.Unlock()

	s.publishRemovals(removed)
	return len(removed)
}

// Len returns the current occupancy.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.flows)
}

// ActiveCount returns the number of non-terminal flows.
func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, record := range s.flows {
		if !record.State.Terminal() {
			count++
		}
	}
	return count
}

// IDs returns the ids of all resident flows.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.flows))
	for id := range s.flows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MaxFlows returns the configured occupancy ceiling.
func (s *Store) MaxFlows() int { return s.cfg.MaxFlows }

// Evictions returns the lifetime eviction count.
func (s *Store) Evictions() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.evictions
}

// evictedFlow records what eviction or deletion removed, for staged event
// emission and file removal outside the lock.
type evictedFlow struct {
	id             string
	state          flow.FlowState
	forceCancelled bool
}

// victimLocked picks the next record to evict: oldest terminal by creation
// time, else oldest pending, else (when permitted) oldest streaming. Returns
// nil when nothing is evictable. Callers must hold the write lock.
func (s *Store) victimLocked() *flow.FlowRecord {
	var oldestTerminal, oldestPending, oldestStreaming *flow.FlowRecord

	for _, record := range s.flows {
		switch {
		case record.State.Terminal():
			if oldestTerminal == nil || record.Timestamps.Created.Before(oldestTerminal.Timestamps.Created) {
				oldestTerminal = record
			}
		case record.State == flow.StatePending:
			if oldestPending == nil || record.Timestamps.Created.Before(oldestPending.Timestamps.Created) {
				oldestPending = record
			}
		default:
			if oldestStreaming == nil || record.Timestamps.Created.Before(oldestStreaming.Timestamps.Created) {
				oldestStreaming = record
			}
		}
	}

	if oldestTerminal != nil {
		return oldestTerminal
	}
	if oldestPending != nil {
		return oldestPending
	}
	if s.cfg.EvictStreaming {
		return oldestStreaming
	}
	return nil
}

// evictLocked removes the victim, force-cancelling it first when it is
// mid-stream. Callers must hold the write lock.
func (s *Store) evictLocked(victim *flow.FlowRecord) evictedFlow {
	ev := evictedFlow{id: victim.ID, state: victim.State}
	if victim.State == flow.StateStreaming {
		victim.State = flow.StateCancelled
		ev.forceCancelled = true
	}
	delete(s.flows, victim.ID)
	s.evictions++
	return ev
}

// publishRemovals emits the event sequence for removed flows and removes
// their backing files. Must be called without the lock held.
func (s *Store) publishRemovals(removed []evictedFlow) {
	for _, ev := range removed {
		if ev.forceCancelled {
			cancelled := flow.StateCancelled
			s.publish(events.FlowUpdated(ev.id, events.FlowUpdate{State: &cancelled}))
			s.logger.Warn("streaming flow cancelled by eviction", "flow_id", ev.id)
		}
		s.publish(events.FlowDeleted(ev.id))
		if s.cfg.Files != nil {
			if _, err := s.cfg.Files.Remove(ev.id); err != nil {
				s.logger.Warn("failed to remove flow backing file", "flow_id", ev.id, "error", err)
			}
		}
	}
}

// publish sends an event when a bus is attached.
func (s *Store) publish(event events.Event) {
	if s.bus != nil {
		s.bus.Publish(event)
	}
}

// writeFile persists a flow's backing file. Must be called without the lock
// held; the record is re-read under the read lock to get a stable snapshot.
func (s *Store) writeFile(id string) {
	if s.cfg.Files == nil {
		return
	}
	record, err := s.Get(id)
	if err != nil {
		return
	}
	if err := s.cfg.Files.Write(record); err != nil {
		s.logger.Warn("failed to write flow backing file", "flow_id", id, "error", err)
	}
}
