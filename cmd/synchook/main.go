// Command synchook is the session-end hook: a lightweight incremental
// sync of the memory index, invoked when a session ends so memories
// captured during it are indexed for future retrieval. Ported from the
// Python stop hook this project's hooks replace: read optional JSON on
// stdin, run the sync, always emit {"continue": true} so the hook never
// blocks the caller's session-end flow.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/fnbdesign/git-notes-memory/internal/config"
	"github.com/fnbdesign/git-notes-memory/internal/index"
	"github.com/fnbdesign/git-notes-memory/pkg/embedding"
	"github.com/fnbdesign/git-notes-memory/pkg/notestore"
	syncsvc "github.com/fnbdesign/git-notes-memory/pkg/sync"
)

type hookOutput struct {
	Continue bool   `json:"continue"`
	Message  string `json:"message,omitempty"`
	Warning  string `json:"warning,omitempty"`
}

func main() {
	// Hook input may be empty; a decode failure is tolerated, not fatal.
	var input map[string]any
	_ = json.NewDecoder(os.Stdin).Decode(&input)

	output := hookOutput{Continue: true}

	cfg := config.Load()
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := runSync(cfg, log, &output); err != nil {
		output.Warning = fmt.Sprintf("memory sync failed: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(output)
}

func runSync(cfg config.Config, log zerolog.Logger, out *hookOutput) error {
	repoPath, err := os.Getwd()
	if err != nil {
		return err
	}
	store, err := notestore.Open(repoPath)
	if err != nil {
		return err
	}
	idx, err := index.Open(cfg.IndexPath, cfg.EmbeddingDimension, log)
	if err != nil {
		return err
	}
	defer idx.Close()

	embed := embedding.NewHashingService(cfg.EmbeddingDimension)
	svc := syncsvc.New(store, idx, embed, cfg, cfg.IndexPath+".sync.lock", log)

	stats, err := svc.IncrementalSync(context.Background())
	if errors.Is(err, syncsvc.ErrInProgress) {
		return nil // another sync holds the lock; not a failure
	}
	if err != nil {
		return err
	}
	if stats.Added > 0 || stats.Updated > 0 {
		out.Message = fmt.Sprintf("memory index synced: +%d new, ~%d updated", stats.Added, stats.Updated)
	}
	return nil
}
