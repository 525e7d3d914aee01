package index

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fnbdesign/git-notes-memory/internal/models"
)

func openTest(t *testing.T) *Service {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memory.db")
	s, err := Open(path, 4, zerolog.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleMemory(id, ns string) models.Memory {
	return models.Memory{
		ID:        id,
		CommitSHA: "deadbeef",
		Index:     0,
		Namespace: ns,
		Timestamp: time.Now().UTC(),
		Summary:   "database pooling works well",
		Content:   "using a connection pool improved throughput",
		Tags:      []string{"database", "performance"},
		Status:    models.StatusActive,
	}
}

func TestInsertAndGet(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	mem := sampleMemory("learnings:deadbeef:0", "learnings")
	if err := s.Insert(ctx, mem, mem.Summary+" "+mem.Content, []float32{0.1, 0.2, 0.3, 0.4}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.Get(ctx, mem.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected memory, got nil")
	}
	if got.Summary != mem.Summary || got.Namespace != mem.Namespace {
		t.Errorf("round trip mismatch: got %+v", got)
	}
	if len(got.Tags) != 2 {
		t.Errorf("expected 2 tags, got %v", got.Tags)
	}
}

func TestInsertRejectsWrongDimension(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	mem := sampleMemory("learnings:deadbeef:0", "learnings")
	if err := s.Insert(ctx, mem, "x", []float32{0.1, 0.2}); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestSearchTextMatchesAndEmptyQueryShortCircuits(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	mem := sampleMemory("learnings:deadbeef:0", "learnings")
	if err := s.Insert(ctx, mem, mem.Summary+" "+mem.Content, []float32{0.1, 0.2, 0.3, 0.4}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	results, err := s.SearchText(ctx, "database", 10, Filters{})
	if err != nil {
		t.Fatalf("search text: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}

	empty, err := s.SearchText(ctx, "   ", 10, Filters{})
	if err != nil || empty != nil {
		t.Errorf("expected nil, nil for blank query, got %v, %v", empty, err)
	}
}

func TestSearchVectorReturnsNearest(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	a := sampleMemory("learnings:deadbeef:0", "learnings")
	b := sampleMemory("learnings:deadbeef:1", "learnings")
	b.Summary = "unrelated topic entirely"
	b.Content = "nothing to do with databases"

	if err := s.Insert(ctx, a, a.Summary, []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("insert a: %v", err)
	}
	if err := s.Insert(ctx, b, b.Summary, []float32{0, 1, 0, 0}); err != nil {
		t.Fatalf("insert b: %v", err)
	}

	results, err := s.SearchVector(ctx, []float32{1, 0, 0, 0}, 1, Filters{})
	if err != nil {
		t.Fatalf("search vector: %v", err)
	}
	if len(results) != 1 || results[0].Memory.ID != a.ID {
		t.Fatalf("expected nearest match a, got %+v", results)
	}
}

func TestDeleteRemovesFromAllIndexes(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	mem := sampleMemory("learnings:deadbeef:0", "learnings")
	if err := s.Insert(ctx, mem, mem.Summary, []float32{0.1, 0.2, 0.3, 0.4}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.Delete(ctx, mem.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := s.Get(ctx, mem.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil after delete, got %+v", got)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	if sha, err := s.Checkpoint(ctx); err != nil || sha != "" {
		t.Fatalf("expected empty checkpoint initially, got %q, %v", sha, err)
	}
	if err := s.SetCheckpoint(ctx, "abc123"); err != nil {
		t.Fatalf("set checkpoint: %v", err)
	}
	sha, err := s.Checkpoint(ctx)
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if sha != "abc123" {
		t.Errorf("expected abc123, got %q", sha)
	}
}

func TestGetByNamespaceFiltersCorrectly(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	a := sampleMemory("learnings:deadbeef:0", "learnings")
	b := sampleMemory("blockers:deadbeef:0", "blockers")
	if err := s.Insert(ctx, a, a.Summary, []float32{0.1, 0.2, 0.3, 0.4}); err != nil {
		t.Fatalf("insert a: %v", err)
	}
	if err := s.Insert(ctx, b, b.Summary, []float32{0.2, 0.3, 0.4, 0.5}); err != nil {
		t.Fatalf("insert b: %v", err)
	}
	got, err := s.GetByNamespace(ctx, "learnings", "", 10)
	if err != nil {
		t.Fatalf("get by namespace: %v", err)
	}
	if len(got) != 1 || got[0].ID != a.ID {
		t.Fatalf("expected only learnings memory, got %+v", got)
	}
}
