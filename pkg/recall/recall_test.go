package recall

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fnbdesign/git-notes-memory/internal/config"
	"github.com/fnbdesign/git-notes-memory/internal/index"
	"github.com/fnbdesign/git-notes-memory/internal/models"
	"github.com/fnbdesign/git-notes-memory/pkg/embedding"
	"github.com/fnbdesign/git-notes-memory/pkg/notestore"
)

func newHarness(t *testing.T) (*Service, *index.Service) {
	t.Helper()
	cfg := config.Default()
	idx, err := index.Open(filepath.Join(t.TempDir(), "memory.db"), cfg.EmbeddingDimension, zerolog.Nop())
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	store := notestore.NewMemoryNoteStore()
	store.Commit(notestore.CommitMeta{SHA: "c1", Author: "tester", Message: "initial"})
	embed := embedding.NewHashingService(cfg.EmbeddingDimension)
	svc := New(idx, embed, store, cfg, zerolog.Nop())
	return svc, idx
}

func seed(ctx context.Context, t *testing.T, idx *index.Service, embed embedding.Service, id, ns, summary, content string) {
	t.Helper()
	mem := models.Memory{
		ID: id, CommitSHA: "c1", Namespace: ns, Timestamp: time.Now().UTC(),
		Summary: summary, Content: content, Status: models.StatusActive,
	}
	vec, err := embed.Embed(ctx, summary+" "+content)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if err := idx.Insert(ctx, mem, summary+" "+content, vec); err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func TestSearchEmptyQueryShortCircuits(t *testing.T) {
	svc, _ := newHarness(t)
	results, err := svc.Search(context.Background(), "", 5, "", "", 0)
	if err != nil || results != nil {
		t.Errorf("expected nil, nil for empty query, got %v, %v", results, err)
	}
}

func TestSearchFindsSimilarMemory(t *testing.T) {
	ctx := context.Background()
	svc, idx := newHarness(t)
	cfg := config.Default()
	embed := embedding.NewHashingService(cfg.EmbeddingDimension)
	seed(ctx, t, idx, embed, "learnings:c1:0", "learnings", "database connection pooling", "pool size tuning improved latency")

	results, err := svc.Search(ctx, "database connection pooling", 5, "", "", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Similarity <= 0 {
		t.Errorf("expected positive similarity, got %v", results[0].Similarity)
	}
}

func TestHydrateSummaryLevelDoesNotTouchStore(t *testing.T) {
	ctx := context.Background()
	svc, _ := newHarness(t)
	mem := models.Memory{ID: "x", CommitSHA: "missing-commit", Summary: "s"}
	h, err := svc.Hydrate(ctx, mem, models.HydrationSummary)
	if err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if h.RawNote != "" {
		t.Errorf("expected empty raw note at summary level, got %q", h.RawNote)
	}
}

func TestHydrateFullLevelFailsOnMissingNote(t *testing.T) {
	ctx := context.Background()
	svc, _ := newHarness(t)
	mem := models.Memory{ID: "x", CommitSHA: "no-such-commit", Summary: "s"}
	if _, err := svc.Hydrate(ctx, mem, models.HydrationFull); err == nil {
		t.Fatal("expected error hydrating a memory whose note blob is missing")
	}
}

func TestGetSpecContextGroupsByNamespace(t *testing.T) {
	ctx := context.Background()
	svc, idx := newHarness(t)
	cfg := config.Default()
	embed := embedding.NewHashingService(cfg.EmbeddingDimension)

	for i, ns := range []string{"learnings", "learnings", "blockers"} {
		mem := models.Memory{
			ID: ns + ":c1:" + string(rune('0'+i)), CommitSHA: "c1", Namespace: ns, Spec: "spec-42",
			Timestamp: time.Now().UTC(), Summary: "note", Content: "body", Status: models.StatusActive,
		}
		vec, err := embed.Embed(ctx, mem.Summary+" "+mem.Content)
		if err != nil {
			t.Fatalf("embed: %v", err)
		}
		if err := idx.Insert(ctx, mem, mem.Summary+" "+mem.Content, vec); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	sc, err := svc.GetSpecContext(ctx, "spec-42")
	if err != nil {
		t.Fatalf("spec context: %v", err)
	}
	if len(sc.ByNamespace["learnings"]) != 2 || len(sc.ByNamespace["blockers"]) != 1 {
		t.Errorf("unexpected grouping: %+v", sc.ByNamespace)
	}
	if sc.EstimatedTokens <= 0 {
		t.Errorf("expected positive token estimate, got %d", sc.EstimatedTokens)
	}
}
