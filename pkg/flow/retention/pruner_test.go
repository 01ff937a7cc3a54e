package retention

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"proxycast-hq/flowscope/pkg/flow"
	"proxycast-hq/flowscope/pkg/flow/archive"
	"proxycast-hq/flowscope/pkg/flow/store"
)

func seedStore(t *testing.T, s *store.Store, id string, age time.Duration, terminal bool) {
	t.Helper()
	created := time.Now().Add(-age)
	record := &flow.FlowRecord{
		ID:   id,
		Type: flow.ChatCompletions(),
		Request: flow.Request{
			Model: "gpt-4o",
		},
		Metadata: flow.Metadata{Provider: "openai"},
		Timestamps: flow.Timestamps{
			Created:      created,
			RequestStart: created,
		},
	}
	if err := s.Create(record); err != nil {
		t.Fatalf("Create(%s) failed: %v", id, err)
	}
	if terminal {
		done := flow.StateCompleted
		if _, err := s.Update(id, store.Patch{State: &done}); err != nil {
			t.Fatalf("Update(%s) failed: %v", id, err)
		}
	}
}

func TestPruneByAgeSkipsActiveAndFresh(t *testing.T) {
	s := store.New(nil, nil)
	seedStore(t, s, "old-done", 48*time.Hour, true)
	seedStore(t, s, "old-active", 48*time.Hour, false)
	seedStore(t, s, "fresh-done", time.Hour, true)

	p := NewPruner(s, nil, &Config{MaxAge: 24 * time.Hour})
	deleted, err := p.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 pruned, got %d", deleted)
	}
	if _, err := s.Get("old-done"); !flow.IsNotFound(err) {
		t.Errorf("old finished flow should be pruned")
	}
	if _, err := s.Get("old-active"); err != nil {
		t.Errorf("active flow must survive pruning: %v", err)
	}
	if _, err := s.Get("fresh-done"); err != nil {
		t.Errorf("fresh flow must survive pruning: %v", err)
	}
}

func TestPruneDisabledByZeroMaxAge(t *testing.T) {
	s := store.New(nil, nil)
	seedStore(t, s, "ancient", 30*24*time.Hour, true)

	p := NewPruner(s, nil, &Config{MaxAge: 0})
	deleted, err := p.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("expected nothing pruned with MaxAge 0, got %d", deleted)
	}
}

func TestPruneArchivesBeforeDelete(t *testing.T) {
	cfg := archive.DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "flows.db")
	a, err := archive.New(cfg)
	if err != nil {
		t.Fatalf("archive.New failed: %v", err)
	}
	defer a.Close()

	s := store.New(nil, nil)
	seedStore(t, s, "old-done", 48*time.Hour, true)

	p := NewPruner(s, a, &Config{MaxAge: 24 * time.Hour, ArchiveBeforeDelete: true})
	if _, err := p.Prune(context.Background()); err != nil {
		t.Fatalf("Prune failed: %v", err)
	}

	if _, err := s.Get("old-done"); !flow.IsNotFound(err) {
		t.Errorf("flow should be gone from the store")
	}
	got, err := a.Get(context.Background(), "old-done")
	if err != nil {
		t.Fatalf("flow should be in the archive: %v", err)
	}
	if got.State != flow.StateCompleted {
		t.Errorf("archived state = %s", got.State)
	}
}

func TestSchedulerLifecycle(t *testing.T) {
	s := store.New(nil, nil)
	p := NewPruner(s, nil, &Config{MaxAge: time.Hour, PruneSchedule: "0 3 * * *"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := p.Scheduler()
	if err := sched.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !sched.IsRunning() {
		t.Error("scheduler should be running")
	}
	if sched.NextRun() == nil {
		t.Error("expected a next run time")
	}
	sched.Stop()
	if sched.IsRunning() {
		t.Error("scheduler should be stopped")
	}
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	s := store.New(nil, nil)
	p := NewPruner(s, nil, &Config{PruneSchedule: "not a cron line"})

	if err := p.Scheduler().Start(context.Background()); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}
