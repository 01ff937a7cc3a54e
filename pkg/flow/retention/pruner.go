package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"proxycast-hq/flowscope/pkg/flow/archive"
	"proxycast-hq/flowscope/pkg/flow/store"
)

// Config contains configuration for the retention pruner.
type Config struct {
	// MaxAge is how long finished flows stay in the in-memory store.
	// 0 keeps them until eviction or manual cleanup.
	MaxAge time.Duration `json:"max_age" yaml:"max_age"`

	// PruneSchedule is a cron expression for scheduled pruning.
	// Example: "0 3 * * *" (daily at 3 AM). Empty disables the scheduler.
	PruneSchedule string `json:"prune_schedule" yaml:"prune_schedule"`

	// ArchiveBeforeDelete writes finished flows to the archive before they
	// are pruned from the store.
	ArchiveBeforeDelete bool `json:"archive_before_delete" yaml:"archive_before_delete"`

	// ArchiveMaxAge is how long archived flows are kept. 0 keeps them
	// forever.
	ArchiveMaxAge time.Duration `json:"archive_max_age" yaml:"archive_max_age"`
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxAge:              24 * time.Hour,
		PruneSchedule:       "0 3 * * *",
		ArchiveBeforeDelete: false,
		ArchiveMaxAge:       0,
	}
}

// Pruner enforces the retention policy on the flow store and archive.
type Pruner struct {
	store     *store.Store
	archive   *archive.Archive
	config    *Config
	logger    *slog.Logger
	scheduler *Scheduler
}

// NewPruner creates a retention pruner. The archive may be nil, in which
// case ArchiveBeforeDelete and ArchiveMaxAge are inert.
func NewPruner(s *store.Store, a *archive.Archive, config *Config) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}

	p := &Pruner{
		store:   s,
		archive: a,
		config:  config,
		logger:  slog.Default().With("component", "flow.retention"),
	}
	p.scheduler = NewScheduler(p)
	return p
}

// Scheduler returns the cron scheduler driving this pruner.
func (p *Pruner) Scheduler() *Scheduler { return p.scheduler }

// Prune runs one retention pass and returns the number of flows removed
// from the in-memory store.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var total int64

	if p.config.MaxAge > 0 {
		cutoff := time.Now().Add(-p.config.MaxAge)

		if p.config.ArchiveBeforeDelete && p.archive != nil {
			if err := p.archiveOlderThan(ctx, cutoff); err != nil {
				return total, fmt.Errorf("archive before delete failed: %w", err)
			}
		}

		result, err := p.store.Cleanup(store.CleanupPolicy{
			Type:   store.CleanupByTime,
			Before: &cutoff,
		})
		if err != nil {
			return total, fmt.Errorf("prune by age failed: %w", err)
		}
		total += int64(result.CleanedCount)
		p.logger.Info("pruned flows by age",
			"deleted_count", result.CleanedCount,
			"freed_bytes", result.FreedBytes,
			"max_age", p.config.MaxAge,
		)
	}

	if p.archive != nil && p.config.ArchiveMaxAge > 0 {
		cutoff := time.Now().Add(-p.config.ArchiveMaxAge)
		removed, err := p.archive.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			return total, fmt.Errorf("archive prune failed: %w", err)
		}
		p.logger.Info("pruned archived flows", "deleted_count", removed, "archive_max_age", p.config.ArchiveMaxAge)
	}

	return total, nil
}

// archiveOlderThan writes every finished flow older than the cutoff to the
// archive. Archiving works on snapshots, so a concurrent update cannot tear
// a record.
func (p *Pruner) archiveOlderThan(ctx context.Context, cutoff time.Time) error {
	for _, record := range p.store.Snapshot() {
		if !record.State.Terminal() || !record.Timestamps.Created.Before(cutoff) {
			continue
		}
		if err := p.archive.Store(ctx, record); err != nil {
			return err
		}
	}
	return nil
}
