package store

import (
	"fmt"
	"os"
	"sort"
	"time"

	"proxycast-hq/flowscope/pkg/flow"
	"proxycast-hq/flowscope/pkg/flow/events"
)

// CleanupType selects a bulk cleanup strategy.
type CleanupType string

const (
	// CleanupAll removes every finished flow.
	CleanupAll CleanupType = "All"
	// CleanupByTime removes finished flows created before a cutoff.
	CleanupByTime CleanupType = "ByTime"
	// CleanupByCount removes the oldest finished flows until occupancy is at
	// or below a target.
	CleanupByCount CleanupType = "ByCount"
	// CleanupByStatus removes flows in the given terminal states.
	CleanupByStatus CleanupType = "ByStatus"
	// CleanupByProvider removes finished flows routed through one provider.
	CleanupByProvider CleanupType = "ByProvider"
	// CleanupBySize removes the oldest finished flows until the backing files
	// fit a byte budget.
	CleanupBySize CleanupType = "BySize"
)

// CleanupPolicy describes one bulk cleanup request. Exactly the fields of the
// selected type must be set; Validate rejects anything else. Cleanup never
// touches flows that are still pending or streaming.
type CleanupPolicy struct {
	Type CleanupType `json:"type"`

	// ByTime: remove flows created before the cutoff. Either an age or an
	// absolute instant; when both are set, Before wins.
	OlderThan time.Duration `json:"older_than,omitempty"`
	Before    *time.Time    `json:"before,omitempty"`

	// ByCount: keep at most this many flows, removing the oldest finished
	// ones beyond it.
	KeepCount int `json:"keep_count,omitempty"`

	// ByStatus: terminal states to remove.
	States []flow.FlowState `json:"states,omitempty"`

	// ByProvider: provider whose flows are removed.
	Provider string `json:"provider,omitempty"`

	// BySize: byte budget for the backing files.
	MaxBytes int64 `json:"max_bytes,omitempty"`
}

// Validate checks the policy for internal consistency.
func (p *CleanupPolicy) Validate() error {
	switch p.Type {
	case CleanupAll:
		return nil
	case CleanupByTime:
		if p.Before == nil && p.OlderThan <= 0 {
			return flow.NewInvalidPolicyError(string(p.Type), "requires older_than or before")
		}
		return nil
	case CleanupByCount:
		if p.KeepCount < 0 {
			return flow.NewInvalidPolicyError(string(p.Type), "keep_count must be non-negative")
		}
		return nil
	case CleanupByStatus:
		if len(p.States) == 0 {
			return flow.NewInvalidPolicyError(string(p.Type), "requires at least one state")
		}
		for _, st := range p.States {
			if !st.Valid() {
				return flow.NewInvalidPolicyError(string(p.Type), fmt.Sprintf("unknown state %q", st))
			}
			if !st.Terminal() {
				return flow.NewInvalidPolicyError(string(p.Type), fmt.Sprintf("state %q is not terminal", st))
			}
		}
		return nil
	case CleanupByProvider:
		if p.Provider == "" {
			return flow.NewInvalidPolicyError(string(p.Type), "requires a provider")
		}
		return nil
	case CleanupBySize:
		if p.MaxBytes < 0 {
			return flow.NewInvalidPolicyError(string(p.Type), "max_bytes must be non-negative")
		}
		return nil
	default:
		return flow.NewInvalidPolicyError(string(p.Type), "unknown cleanup type")
	}
}

// CleanupResult reports what a cleanup pass removed. File removal failures
// are collected, not fatal: the in-memory record is gone either way.
type CleanupResult struct {
	CleanedCount int      `json:"cleaned_count"`
	CleanedFiles int      `json:"cleaned_files"`
	FreedBytes   int64    `json:"freed_bytes"`
	FileErrors   []string `json:"file_errors,omitempty"`
}

// Cleanup removes flows matching the policy and returns what was removed.
// Flows still pending or streaming are never touched.
func (s *Store) Cleanup(policy CleanupPolicy) (*CleanupResult, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	var removed []evictedFlow
	if policy.Type == CleanupBySize {
		removed = s.sizeVictims(policy.MaxBytes)
	} else {
		s.mu.Lock()
		for _, record := range s.cleanupVictimsLocked(policy) {
			removed = append(removed, evictedFlow{id: record.ID, state: record.State})
			delete(s.flows, record.ID)
		}
		s.mu.Unlock()
	}

	result := &CleanupResult{CleanedCount: len(removed)}
	for _, ev := range removed {
		s.publish(events.FlowDeleted(ev.id))
		if s.cfg.Files == nil {
			continue
		}
		freed, err := s.cfg.Files.Remove(ev.id)
		if err != nil {
			result.FileErrors = append(result.FileErrors, err.Error())
			continue
		}
		if freed > 0 {
			result.CleanedFiles++
			result.FreedBytes += freed
		}
	}

	s.logger.Info("flow cleanup finished",
		"type", string(policy.Type),
		"cleaned_count", result.CleanedCount,
		"cleaned_files", result.CleanedFiles,
		"freed_bytes", result.FreedBytes,
	)

	return result, nil
}

// finishedOldestLocked returns the terminal flows ordered oldest first, so
// count and size budgets shed from the old end. Callers must hold the lock.
func (s *Store) finishedOldestLocked() []*flow.FlowRecord {
	finished := make([]*flow.FlowRecord, 0, len(s.flows))
	for _, record := range s.flows {
		if record.State.Terminal() {
			finished = append(finished, record)
		}
	}
	sort.Slice(finished, func(i, j int) bool {
		ti, tj := finished[i].Timestamps.Created, finished[j].Timestamps.Created
		if ti.Equal(tj) {
			return finished[i].ID < finished[j].ID
		}
		return ti.Before(tj)
	})
	return finished
}

// cleanupVictimsLocked selects finished flows matching the policy. Callers
// must hold the write lock. The size policy has its own staged path in
// sizeVictims because it touches the filesystem.
func (s *Store) cleanupVictimsLocked(policy CleanupPolicy) []*flow.FlowRecord {
	finished := s.finishedOldestLocked()

	switch policy.Type {
	case CleanupAll:
		return finished

	case CleanupByTime:
		cutoff := time.Now().Add(-policy.OlderThan)
		if policy.Before != nil {
			cutoff = *policy.Before
		}
		var victims []*flow.FlowRecord
		for _, record := range finished {
			if record.Timestamps.Created.Before(cutoff) {
				victims = append(victims, record)
			}
		}
		return victims

	case CleanupByCount:
		excess := len(s.flows) - policy.KeepCount
		if excess <= 0 {
			return nil
		}
		if excess > len(finished) {
			excess = len(finished)
		}
		return finished[:excess]

	case CleanupByStatus:
		want := make(map[flow.FlowState]bool, len(policy.States))
		for _, st := range policy.States {
			want[st] = true
		}
		var victims []*flow.FlowRecord
		for _, record := range finished {
			if want[record.State] {
				victims = append(victims, record)
			}
		}
		return victims

	case CleanupByProvider:
		var victims []*flow.FlowRecord
		for _, record := range finished {
			if record.Metadata.Provider == policy.Provider {
				victims = append(victims, record)
			}
		}
		return victims
	}

	return nil
}

// sizeVictims removes the oldest finished flows until the backing files fit
// the byte budget. Directory sizing and per-file stats run with the lock
// released; a second locked pass deletes the chosen flows, skipping any that
// were removed in between.
func (s *Store) sizeVictims(maxBytes int64) []evictedFlow {
	if s.cfg.Files == nil {
		return nil
	}

	s.mu.RLock()
	finished := s.finishedOldestLocked()
	candidates := make([]string, len(finished))
	for i, record := range finished {
		candidates[i] = record.ID
	}
	s.mu.RUnlock()

	total, err := s.cfg.Files.TotalSize()
	if err != nil {
		s.logger.Warn("failed to size flow backing directory", "error", err)
		return nil
	}

	var chosen []string
	for _, id := range candidates {
		if total <= maxBytes {
			break
		}
		info, statErr := os.Stat(s.cfg.Files.Path(id))
		if statErr != nil {
			continue
		}
		chosen = append(chosen, id)
		total -= info.Size()
	}
	if len(chosen) == 0 {
		return nil
	}

	var removed []evictedFlow
	s.mu.Lock()
	for _, id := range chosen {
		record, ok := s.flows[id]
		if !ok {
			continue
		}
		removed = append(removed, evictedFlow{id: id, state: record.State})
		delete(s.flows, id)
	}
	s.mu.Unlock()
	return removed
}
