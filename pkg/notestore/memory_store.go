package notestore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fnbdesign/git-notes-memory/internal/memerr"
)

// MemoryNoteStore is an in-process NoteStore fake: deterministic, no disk
// I/O, used by component tests that need a NoteStore without a real
// repository. Commits are appended in the order Commit is called.
type MemoryNoteStore struct {
	mu      sync.RWMutex
	commits []CommitMeta
	notes   map[string]map[string]string // ref -> commitSHA -> content
	files   map[string]map[string]string // commitSHA -> path -> content
}

// NewMemoryNoteStore returns an empty fake.
func NewMemoryNoteStore() *MemoryNoteStore {
	return &MemoryNoteStore{
		notes: make(map[string]map[string]string),
		files: make(map[string]map[string]string),
	}
}

// Commit appends a synthetic commit and returns its SHA.
func (m *MemoryNoteStore) Commit(meta CommitMeta) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if meta.SHA == "" {
		meta.SHA = fmt.Sprintf("commit-%04d", len(m.commits))
	}
	m.commits = append(m.commits, meta)
	return meta.SHA
}

// SetFile seeds a file's content as of a commit, for ReadFileAtCommit.
func (m *MemoryNoteStore) SetFile(sha, path, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files[sha] == nil {
		m.files[sha] = make(map[string]string)
	}
	m.files[sha][path] = content
}

func (m *MemoryNoteStore) Head(ctx context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.commits) == 0 {
		return "", memerr.NoCommitsError
	}
	return m.commits[len(m.commits)-1].SHA, nil
}

func (m *MemoryNoteStore) CommitsSince(ctx context.Context, afterSHA string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var shas []string
	started := afterSHA == ""
	for _, c := range m.commits {
		if started {
			shas = append(shas, c.SHA)
			continue
		}
		if c.SHA == afterSHA {
			started = true
		}
	}
	return shas, nil
}

func (m *MemoryNoteStore) ReadNote(ctx context.Context, ref, commitSHA string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byCommit, ok := m.notes[ref]
	if !ok {
		return "", false, nil
	}
	content, ok := byCommit[commitSHA]
	return content, ok, nil
}

func (m *MemoryNoteStore) WriteNote(ctx context.Context, ref, commitSHA, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.notes[ref] == nil {
		m.notes[ref] = make(map[string]string)
	}
	m.notes[ref][commitSHA] = content
	return nil
}

func (m *MemoryNoteStore) NotedCommits(ctx context.Context, ref string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byCommit := m.notes[ref]
	shas := make([]string, 0, len(byCommit))
	for sha := range byCommit {
		shas = append(shas, sha)
	}
	sort.Strings(shas)
	return shas, nil
}

func (m *MemoryNoteStore) CommitMetadata(ctx context.Context, sha string) (CommitMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.commits {
		if c.SHA == sha {
			return c, nil
		}
	}
	return CommitMeta{}, memerr.Wrap(memerr.CategoryRecall, "commit not found", "", fmt.Errorf("no such commit: %s", sha))
}

func (m *MemoryNoteStore) ReadFileAtCommit(ctx context.Context, sha, path string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	files, ok := m.files[sha]
	if !ok {
		return "", memerr.Wrap(memerr.CategoryRecall, "no files recorded for commit", "", fmt.Errorf("no such commit: %s", sha))
	}
	content, ok := files[path]
	if !ok {
		return "", memerr.Wrap(memerr.CategoryRecall, "file not found at commit", "", fmt.Errorf("no such file: %s", path))
	}
	return content, nil
}

var _ NoteStore = (*MemoryNoteStore)(nil)
var _ NoteStore = (*GitNoteStore)(nil)
