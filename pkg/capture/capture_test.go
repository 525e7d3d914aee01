package capture

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fnbdesign/git-notes-memory/internal/config"
	"github.com/fnbdesign/git-notes-memory/pkg/noteparser"
	"github.com/fnbdesign/git-notes-memory/pkg/notestore"
)

func newService(t *testing.T) (*Service, *notestore.MemoryNoteStore) {
	t.Helper()
	store := notestore.NewMemoryNoteStore()
	store.Commit(notestore.CommitMeta{SHA: "deadbeef", Author: "tester", Message: "initial commit"})
	cfg := config.Default()
	lockPath := filepath.Join(t.TempDir(), "capture.lock")
	return New(store, cfg, lockPath, zerolog.Nop()), store
}

func TestCaptureAppendsNoteAtHead(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	id, err := svc.Capture(ctx, Input{
		Namespace: "learnings",
		Timestamp: time.Now(),
		Summary:   "database pooling works",
		Content:   "pool size 10 reduced latency",
		Tags:      []string{"database"},
	})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if id != "learnings:deadbeef:0" {
		t.Errorf("expected learnings:deadbeef:0, got %q", id)
	}

	raw, ok, err := store.ReadNote(ctx, config.Default().NotesRef, "deadbeef")
	if err != nil || !ok {
		t.Fatalf("expected note written, ok=%v err=%v", ok, err)
	}
	notes := noteparser.ParseMulti(raw)
	if len(notes) != 1 {
		t.Fatalf("expected 1 note block, got %d", len(notes))
	}
	if notes[0].Get("summary") != "database pooling works" {
		t.Errorf("unexpected summary: %q", notes[0].Get("summary"))
	}
}

func TestCaptureAssignsIncrementingIndex(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	in := Input{Namespace: "progress", Timestamp: time.Now(), Summary: "first"}
	id1, err := svc.Capture(ctx, in)
	if err != nil {
		t.Fatalf("capture 1: %v", err)
	}
	in.Summary = "second"
	id2, err := svc.Capture(ctx, in)
	if err != nil {
		t.Fatalf("capture 2: %v", err)
	}
	if id1 != "progress:deadbeef:0" || id2 != "progress:deadbeef:1" {
		t.Errorf("expected incrementing indexes, got %q then %q", id1, id2)
	}
}

func TestCaptureRejectsInvalidNamespace(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Capture(context.Background(), Input{Namespace: "not-a-real-namespace", Summary: "x"})
	if err == nil {
		t.Fatal("expected error for invalid namespace")
	}
}

func TestCaptureRejectsOversizedContent(t *testing.T) {
	svc, _ := newService(t)
	cfg := config.Default()
	big := make([]byte, cfg.MaxContentBytes+1)
	_, err := svc.Capture(context.Background(), Input{Namespace: "learnings", Summary: "x", Content: string(big)})
	if err == nil {
		t.Fatal("expected error for oversized content")
	}
}
