// Package capture implements CaptureService: validates a prospective
// memory and appends it to the notes store under a single-writer lock.
// Indexing is not performed inline; SyncService picks up the new note on
// its next run.
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/fnbdesign/git-notes-memory/internal/config"
	"github.com/fnbdesign/git-notes-memory/internal/memerr"
	"github.com/fnbdesign/git-notes-memory/internal/models"
	"github.com/fnbdesign/git-notes-memory/pkg/noteparser"
	"github.com/fnbdesign/git-notes-memory/pkg/notestore"
)

// Input is a prospective memory as supplied by a caller, prior to
// validation and id assignment.
type Input struct {
	Namespace string
	Timestamp time.Time
	Summary   string
	Content   string
	Spec      string
	Tags      []string
	Phase     string
	RelatesTo []string
	CommitSHA string // empty means HEAD
}

// Service validates and appends memories to the notes store.
type Service struct {
	store notestore.NoteStore
	cfg   config.Config
	lock  *flock.Flock
	log   zerolog.Logger
}

func New(store notestore.NoteStore, cfg config.Config, lockPath string, log zerolog.Logger) *Service {
	return &Service{store: store, cfg: cfg, lock: flock.New(lockPath), log: log}
}

// Capture validates in and appends it to the notes store, returning the
// new memory's id.
func (s *Service) Capture(ctx context.Context, in Input) (string, error) {
	if err := s.validate(in); err != nil {
		return "", err
	}

	commitSHA := in.CommitSHA
	if commitSHA == "" {
		sha, err := s.store.Head(ctx)
		if err != nil {
			return "", err // already NoCommitsError from the store
		}
		commitSHA = sha
	}

	locked, err := s.lockWithTimeout(ctx)
	if err != nil {
		return "", err
	}
	if !locked {
		return "", memerr.LockTimeoutError
	}
	defer s.lock.Unlock()

	existing, _, err := s.store.ReadNote(ctx, s.cfg.NotesRef, commitSHA)
	if err != nil {
		return "", memerr.Wrap(memerr.CategoryCapture, "failed to read existing note blob", "", err)
	}

	index := countBlocks(existing)
	id := fmt.Sprintf("%s:%s:%d", in.Namespace, commitSHA, index)

	mapping := noteparser.NewMapping(
		[2]string{"type", in.Namespace},
		[2]string{"spec", in.Spec},
		[2]string{"timestamp", in.Timestamp.UTC().Format(time.RFC3339)},
		[2]string{"summary", in.Summary},
		[2]string{"status", string(models.StatusActive)},
	)
	if len(in.Tags) > 0 {
		noteparser.SetList(mapping, "tags", in.Tags)
	}
	if in.Phase != "" {
		mapping.Content = append(mapping.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "phase"},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: in.Phase})
	}
	if len(in.RelatesTo) > 0 {
		noteparser.SetList(mapping, "relates_to", in.RelatesTo)
	}

	block, err := noteparser.Serialize(mapping, in.Content)
	if err != nil {
		return "", memerr.Wrap(memerr.CategoryCapture, "failed to serialize memory note", "", err)
	}

	updated := existing + block
	if err := s.store.WriteNote(ctx, s.cfg.NotesRef, commitSHA, updated); err != nil {
		return "", memerr.PermissionDeniedError.WithCause(err)
	}

	s.log.Info().Str("id", id).Str("namespace", in.Namespace).Msg("captured memory")
	return id, nil
}

func (s *Service) validate(in Input) error {
	if !config.ValidNamespace(in.Namespace) {
		return memerr.InvalidNamespaceError.WithCause(fmt.Errorf("namespace %q not in %v", in.Namespace, config.Namespaces))
	}
	if utf8.RuneCountInString(in.Summary) > s.cfg.MaxSummaryChars {
		return memerr.New(memerr.CategoryValidation, "summary exceeds max_summary_chars", "shorten the summary")
	}
	if len([]byte(in.Content)) > s.cfg.MaxContentBytes {
		return memerr.ContentTooLargeError
	}
	return nil
}

func (s *Service) lockWithTimeout(ctx context.Context) (bool, error) {
	lctx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.LockTimeoutSeconds*float64(time.Second)))
	defer cancel()
	ok, err := s.lock.TryLockContext(lctx, 25*time.Millisecond)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return false, nil
		}
		return false, memerr.Wrap(memerr.CategoryCapture, "failed to acquire notes lock", "", err)
	}
	return ok, nil
}

// countBlocks counts how many "---"/"---" note blocks already exist in
// raw, so the next block's index_within_commit is assigned correctly.
func countBlocks(raw string) int {
	return len(noteparser.ParseMulti(raw))
}

