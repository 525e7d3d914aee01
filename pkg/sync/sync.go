// Package sync implements SyncService: incrementally projects NoteStore
// state into IndexService. Concurrent sync calls are serialized by a
// cross-process advisory lock on the index file; a second caller bails
// out immediately with ErrInProgress rather than blocking.
package sync

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"github.com/fnbdesign/git-notes-memory/internal/config"
	"github.com/fnbdesign/git-notes-memory/internal/index"
	"github.com/fnbdesign/git-notes-memory/internal/memerr"
	"github.com/fnbdesign/git-notes-memory/internal/models"
	"github.com/fnbdesign/git-notes-memory/pkg/embedding"
	"github.com/fnbdesign/git-notes-memory/pkg/noteparser"
	"github.com/fnbdesign/git-notes-memory/pkg/notestore"
)

// ErrInProgress is returned when another process already holds the sync
// lock; it is not treated as a failure by callers such as the hook.
var ErrInProgress = errors.New("sync already in progress")

// Stats reports the outcome of a full or incremental sync.
type Stats struct {
	Scanned int
	Added   int
	Updated int
	Deleted int
	Errors  int
}

// Service is the SyncService.
type Service struct {
	store notestore.NoteStore
	idx   *index.Service
	embed embedding.Service
	cfg   config.Config
	lock  *flock.Flock
	log   zerolog.Logger

	mu sync.Mutex
}

func New(store notestore.NoteStore, idx *index.Service, embed embedding.Service, cfg config.Config, lockPath string, log zerolog.Logger) *Service {
	return &Service{store: store, idx: idx, embed: embed, cfg: cfg, lock: flock.New(lockPath), log: log}
}

// RebuildSync enumerates every commit on the notes ref, reparses and
// reindexes all of it, and advances the checkpoint to the tip.
func (s *Service) RebuildSync(ctx context.Context) (Stats, error) {
	return s.run(ctx, "")
}

// IncrementalSync reads the checkpoint and indexes only newer commits.
func (s *Service) IncrementalSync(ctx context.Context) (Stats, error) {
	checkpoint, err := s.idx.Checkpoint(ctx)
	if err != nil {
		return Stats{}, err
	}
	return s.run(ctx, checkpoint)
}

func (s *Service) run(ctx context.Context, afterSHA string) (Stats, error) {
	locked, err := s.lock.TryLock()
	if err != nil {
		return Stats{}, memerr.Wrap(memerr.CategoryIndex, "failed to acquire sync lock", "", err)
	}
	if !locked {
		return Stats{}, ErrInProgress
	}
	defer s.lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	commits, err := s.store.CommitsSince(ctx, afterSHA)
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	lastGood := afterSHA
	for _, commitSHA := range commits {
		added, updated, deleted, err := s.syncCommit(ctx, commitSHA)
		stats.Scanned++
		stats.Added += added
		stats.Updated += updated
		stats.Deleted += deleted
		if err != nil {
			stats.Errors++
			s.log.Warn().Err(err).Str("commit", commitSHA).Msg("sync failed for commit, checkpoint held")
			break // leave checkpoint at lastGood; caller sees the error and partial stats
		}
		lastGood = commitSHA
	}

	if lastGood != afterSHA {
		if err := s.idx.SetCheckpoint(ctx, lastGood); err != nil {
			return stats, err
		}
	}
	if stats.Errors > 0 {
		return stats, memerr.New(memerr.CategoryIndex, "sync stopped early due to a per-commit failure", "inspect logs and re-run incremental sync")
	}
	return stats, nil
}

// syncCommit derives every memory id from a commit's note blob and
// reconciles it against the index: upsert new/changed, delete removed.
func (s *Service) syncCommit(ctx context.Context, commitSHA string) (added, updated, deleted int, err error) {
	raw, _, err := s.store.ReadNote(ctx, s.cfg.NotesRef, commitSHA)
	if err != nil {
		return 0, 0, 0, err
	}

	// a missing or emptied blob parses to no notes, so the deletion pass
	// below still removes whatever was indexed for this commit
	parsed := noteparser.ParseMulti(raw)
	seen := make(map[string]bool, len(parsed))

	for i, note := range parsed {
		m := memoryFromNote(note, commitSHA, i)
		seen[m.ID] = true

		existing, getErr := s.idx.Get(ctx, m.ID)
		if getErr != nil {
			return added, updated, deleted, getErr
		}

		bodyText := m.Summary + " " + note.Body
		vec, embedErr := s.embed.Embed(ctx, bodyText)
		if embedErr != nil {
			return added, updated, deleted, memerr.Wrap(memerr.CategoryEmbedding, "failed to embed memory body", "", embedErr)
		}

		if err := s.idx.Insert(ctx, m, bodyText, vec); err != nil {
			return added, updated, deleted, err
		}
		if existing == nil {
			added++
		} else {
			updated++
		}
	}

	// any indexed memory for this commit that's no longer in the note
	// blob (block removed/rewritten) is deleted
	existingForCommit, err := s.idx.GetAllIDs(ctx)
	if err != nil {
		return added, updated, deleted, err
	}
	for _, id := range existingForCommit {
		if idCommitSHA(id) != commitSHA {
			continue
		}
		if seen[id] {
			continue
		}
		if err := s.idx.Delete(ctx, id); err != nil {
			return added, updated, deleted, err
		}
		deleted++
	}
	return added, updated, deleted, nil
}

// idCommitSHA extracts the commit-sha field of a "namespace:commitSHA:index"
// memory id. Splitting on ':' by position rather than substring-matching the
// sha avoids false positives when a namespace happens to contain it.
func idCommitSHA(id string) string {
	parts := strings.Split(id, ":")
	if len(parts) < 3 {
		return ""
	}
	return strings.Join(parts[1:len(parts)-1], ":")
}

func memoryFromNote(note *noteparser.ParsedNote, commitSHA string, index int) models.Memory {
	ns := note.Get("type")
	ts, err := time.Parse(time.RFC3339, note.Get("timestamp"))
	if err != nil {
		ts = time.Time{}
	}
	status := models.Status(note.Get("status"))
	if status == "" {
		status = models.StatusActive
	}
	return models.Memory{
		ID:        ns + ":" + commitSHA + ":" + strconv.Itoa(index),
		CommitSHA: commitSHA,
		Index:     index,
		Namespace: ns,
		Timestamp: ts,
		Summary:   note.Get("summary"),
		Content:   note.Body,
		Spec:      note.Get("spec"),
		Tags:      note.GetList("tags"),
		Phase:     note.Get("phase"),
		Status:    status,
		RelatesTo: note.GetList("relates_to"),
	}
}
