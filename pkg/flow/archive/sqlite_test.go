package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"proxycast-hq/flowscope/pkg/flow"
)

func testArchive(t *testing.T) *Archive {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "flows.db")
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func archivedRecord(id string, created time.Time) *flow.FlowRecord {
	return &flow.FlowRecord{
		ID:    id,
		Type:  flow.ChatCompletions(),
		State: flow.StateCompleted,
		Request: flow.Request{
			Model: "gpt-4o",
		},
		Response: &flow.Response{
			StatusCode: 200,
			Content:    "hello",
			Usage:      flow.TokenUsage{TotalTokens: 42},
		},
		Metadata: flow.Metadata{Provider: "openai"},
		Timestamps: flow.Timestamps{
			Created:    created,
			DurationMs: 120,
		},
	}
}

func TestStoreAndGet(t *testing.T) {
	a := testArchive(t)
	ctx := context.Background()

	record := archivedRecord("f1", time.Now().UTC())
	if err := a.Store(ctx, record); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	got, err := a.Get(ctx, "f1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ID != "f1" || got.State != flow.StateCompleted || got.Response.Content != "hello" {
		t.Errorf("archived record did not round-trip: %+v", got)
	}

	if _, err := a.Get(ctx, "missing"); !flow.IsNotFound(err) {
		t.Errorf("expected not-found for unknown id, got %v", err)
	}
}

func TestStoreReplacesExisting(t *testing.T) {
	a := testArchive(t)
	ctx := context.Background()

	record := archivedRecord("f1", time.Now().UTC())
	if err := a.Store(ctx, record); err != nil {
		t.Fatal(err)
	}
	record.Annotations.Comment = "annotated later"
	if err := a.Store(ctx, record); err != nil {
		t.Fatalf("re-store failed: %v", err)
	}

	count, err := a.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected 1 row after re-store, got %d", count)
	}
	got, err := a.Get(ctx, "f1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Annotations.Comment != "annotated later" {
		t.Errorf("re-store did not replace the record")
	}
}

func TestListNewestFirst(t *testing.T) {
	a := testArchive(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i, id := range []string{"old", "mid", "new"} {
		if err := a.Store(ctx, archivedRecord(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatal(err)
		}
	}

	records, err := a.List(ctx, 2, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 2 || records[0].ID != "new" || records[1].ID != "mid" {
		t.Errorf("unexpected list order: %v", ids(records))
	}
}

func TestDeleteOlderThan(t *testing.T) {
	a := testArchive(t)
	ctx := context.Background()

	base := time.Now().UTC()
	if err := a.Store(ctx, archivedRecord("old", base.Add(-2*time.Hour))); err != nil {
		t.Fatal(err)
	}
	if err := a.Store(ctx, archivedRecord("fresh", base)); err != nil {
		t.Fatal(err)
	}

	removed, err := a.DeleteOlderThan(ctx, base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("DeleteOlderThan failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	if _, err := a.Get(ctx, "fresh"); err != nil {
		t.Errorf("fresh record must survive: %v", err)
	}
}

func ids(records []*flow.FlowRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}
