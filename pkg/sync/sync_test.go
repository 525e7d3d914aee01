package sync

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fnbdesign/git-notes-memory/internal/config"
	"github.com/fnbdesign/git-notes-memory/internal/index"
	"github.com/fnbdesign/git-notes-memory/pkg/capture"
	"github.com/fnbdesign/git-notes-memory/pkg/embedding"
	"github.com/fnbdesign/git-notes-memory/pkg/notestore"
)

func newHarness(t *testing.T) (*Service, *capture.Service, *index.Service, *notestore.MemoryNoteStore) {
	t.Helper()
	cfg := config.Default()
	store := notestore.NewMemoryNoteStore()
	store.Commit(notestore.CommitMeta{SHA: "c1", Author: "tester", Message: "first"})

	idx, err := index.Open(filepath.Join(t.TempDir(), "memory.db"), cfg.EmbeddingDimension, zerolog.Nop())
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	embed := embedding.NewHashingService(cfg.EmbeddingDimension)
	cap := capture.New(store, cfg, filepath.Join(t.TempDir(), "capture.lock"), zerolog.Nop())
	svc := New(store, idx, embed, cfg, filepath.Join(t.TempDir(), "sync.lock"), zerolog.Nop())
	return svc, cap, idx, store
}

func TestIncrementalSyncIndexesNewCommit(t *testing.T) {
	ctx := context.Background()
	svc, cap, idx, _ := newHarness(t)

	if _, err := cap.Capture(ctx, capture.Input{
		Namespace: "learnings",
		Timestamp: time.Now(),
		Summary:   "database pooling works",
		Content:   "a pool of size 10 reduced latency",
		Tags:      []string{"database"},
		CommitSHA: "c1",
	}); err != nil {
		t.Fatalf("capture: %v", err)
	}

	stats, err := svc.IncrementalSync(ctx)
	if err != nil {
		t.Fatalf("incremental sync: %v", err)
	}
	if stats.Added != 1 {
		t.Errorf("expected 1 added, got %+v", stats)
	}

	results, err := idx.SearchText(ctx, "database", 10, index.Filters{})
	if err != nil {
		t.Fatalf("search text: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected indexed memory to be searchable, got %d results", len(results))
	}

	checkpoint, err := idx.Checkpoint(ctx)
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if checkpoint != "c1" {
		t.Errorf("expected checkpoint c1, got %q", checkpoint)
	}

	// a second incremental sync with nothing new should be a no-op
	stats2, err := svc.IncrementalSync(ctx)
	if err != nil {
		t.Fatalf("second incremental sync: %v", err)
	}
	if stats2.Scanned != 0 {
		t.Errorf("expected no commits scanned on second run, got %+v", stats2)
	}
}

func TestSyncDeletesRemovedBlocks(t *testing.T) {
	ctx := context.Background()
	svc, cap, idx, store := newHarness(t)

	if _, err := cap.Capture(ctx, capture.Input{
		Namespace: "learnings", Timestamp: time.Now(), Summary: "first note", CommitSHA: "c1",
	}); err != nil {
		t.Fatalf("capture: %v", err)
	}
	if _, err := svc.IncrementalSync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}

	ids, err := idx.GetAllIDs(ctx)
	if err != nil || len(ids) != 1 {
		t.Fatalf("expected 1 indexed id, got %v err=%v", ids, err)
	}

	// simulate the note blob being rewritten to empty (e.g. amended commit)
	if err := store.WriteNote(ctx, config.Default().NotesRef, "c1", ""); err != nil {
		t.Fatalf("write note: %v", err)
	}
	if _, err := svc.RebuildSync(ctx); err != nil {
		t.Fatalf("rebuild sync: %v", err)
	}

	ids, err = idx.GetAllIDs(ctx)
	if err != nil {
		t.Fatalf("get all ids: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected memory removed after blob rewrite, got %v", ids)
	}
}
