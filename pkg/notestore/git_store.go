package notestore

import (
	"context"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/fnbdesign/git-notes-memory/internal/memerr"
)

// GitNoteStore implements NoteStore against a real on-disk repository using
// go-git. Notes are stored the way `git notes` stores them: a notes ref
// points at a commit whose tree has one flat entry per noted object, named
// by the object's full hex SHA, containing the note blob.
type GitNoteStore struct {
	repo *git.Repository
}

// Open opens the repository rooted at path (a working tree or bare repo).
func Open(path string) (*GitNoteStore, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, memerr.Wrap(memerr.CategoryStorage, "failed to open git repository", "check the repository path", err)
	}
	return &GitNoteStore{repo: repo}, nil
}

func (g *GitNoteStore) Head(ctx context.Context) (string, error) {
	ref, err := g.repo.Head()
	if err != nil {
		return "", memerr.NoCommitsError.WithCause(err)
	}
	return ref.Hash().String(), nil
}

func (g *GitNoteStore) CommitsSince(ctx context.Context, afterSHA string) ([]string, error) {
	head, err := g.repo.Head()
	if err != nil {
		return nil, memerr.NoCommitsError.WithCause(err)
	}
	commitIter, err := g.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, memerr.Wrap(memerr.CategoryStorage, "failed to walk commit log", "", err)
	}
	defer commitIter.Close()

	var shas []string
	err = commitIter.ForEach(func(c *object.Commit) error {
		if c.Hash.String() == afterSHA {
			return object.ErrCanceled
		}
		shas = append(shas, c.Hash.String())
		return nil
	})
	if err != nil && err != object.ErrCanceled {
		return nil, memerr.Wrap(memerr.CategoryStorage, "failed to walk commit log", "", err)
	}

	// reverse to oldest-first (topological, ancestors-before-descendants)
	for i, j := 0, len(shas)-1; i < j; i, j = i+1, j-1 {
		shas[i], shas[j] = shas[j], shas[i]
	}
	return shas, nil
}

func (g *GitNoteStore) notesTip(ref string) (*object.Commit, error) {
	r, err := g.repo.Reference(plumbing.ReferenceName(ref), true)
	if err != nil {
		return nil, nil // ref doesn't exist yet; not an error
	}
	c, err := g.repo.CommitObject(r.Hash())
	if err != nil {
		return nil, memerr.Wrap(memerr.CategoryStorage, "notes ref points at a non-commit object", "", err)
	}
	return c, nil
}

func (g *GitNoteStore) ReadNote(ctx context.Context, ref, commitSHA string) (string, bool, error) {
	tip, err := g.notesTip(ref)
	if err != nil {
		return "", false, err
	}
	if tip == nil {
		return "", false, nil
	}
	tree, err := tip.Tree()
	if err != nil {
		return "", false, memerr.Wrap(memerr.CategoryStorage, "failed to read notes tree", "", err)
	}
	entry, err := tree.File(commitSHA)
	if err != nil {
		return "", false, nil
	}
	content, err := entry.Contents()
	if err != nil {
		return "", false, memerr.Wrap(memerr.CategoryStorage, "failed to read note blob", "", err)
	}
	return content, true, nil
}

func (g *GitNoteStore) NotedCommits(ctx context.Context, ref string) ([]string, error) {
	tip, err := g.notesTip(ref)
	if err != nil {
		return nil, err
	}
	if tip == nil {
		return nil, nil
	}
	tree, err := tip.Tree()
	if err != nil {
		return nil, memerr.Wrap(memerr.CategoryStorage, "failed to read notes tree", "", err)
	}
	var shas []string
	err = tree.Files().ForEach(func(f *object.File) error {
		shas = append(shas, f.Name)
		return nil
	})
	if err != nil {
		return nil, memerr.Wrap(memerr.CategoryStorage, "failed to enumerate notes tree", "", err)
	}
	return shas, nil
}

// WriteNote rewrites the notes tree with a single updated entry and
// commits it as a child of the current notes tip (or as a root commit if
// the ref doesn't exist yet). Callers are responsible for serializing
// concurrent writers (CaptureService holds the cross-process lock).
func (g *GitNoteStore) WriteNote(ctx context.Context, ref, commitSHA, content string) error {
	storer := g.repo.Storer

	blob := &plumbing.MemoryObject{}
	blob.SetType(plumbing.BlobObject)
	w, err := blob.Writer()
	if err != nil {
		return memerr.Wrap(memerr.CategoryCapture, "failed to open note blob writer", "", err)
	}
	if _, err := w.Write([]byte(content)); err != nil {
		return memerr.Wrap(memerr.CategoryCapture, "failed to write note blob", "", err)
	}
	blobHash, err := storer.SetEncodedObject(blob)
	if err != nil {
		return memerr.Wrap(memerr.CategoryCapture, "failed to store note blob", "permission denied writing notes", err)
	}

	var entries []object.TreeEntry
	tip, err := g.notesTip(ref)
	if err != nil {
		return err
	}
	var parents []plumbing.Hash
	if tip != nil {
		parents = []plumbing.Hash{tip.Hash}
		tree, err := tip.Tree()
		if err != nil {
			return memerr.Wrap(memerr.CategoryStorage, "failed to read notes tree", "", err)
		}
		for _, e := range tree.Entries {
			if e.Name == commitSHA {
				continue
			}
			entries = append(entries, e)
		}
	}
	entries = append(entries, object.TreeEntry{Name: commitSHA, Mode: filemode.Regular, Hash: blobHash})

	tree := &object.Tree{Entries: entries}
	treeObj := &plumbing.MemoryObject{}
	if err := tree.Encode(treeObj); err != nil {
		return memerr.Wrap(memerr.CategoryCapture, "failed to encode notes tree", "", err)
	}
	treeHash, err := storer.SetEncodedObject(treeObj)
	if err != nil {
		return memerr.Wrap(memerr.CategoryCapture, "failed to store notes tree", "permission denied writing notes", err)
	}

	now := time.Now()
	commit := &object.Commit{
		Author:       object.Signature{Name: "git-notes-memory", When: now},
		Committer:    object.Signature{Name: "git-notes-memory", When: now},
		Message:      fmt.Sprintf("note: %s", commitSHA),
		TreeHash:     treeHash,
		ParentHashes: parents,
	}
	commitObj := &plumbing.MemoryObject{}
	if err := commit.Encode(commitObj); err != nil {
		return memerr.Wrap(memerr.CategoryCapture, "failed to encode notes commit", "", err)
	}
	commitHash, err := storer.SetEncodedObject(commitObj)
	if err != nil {
		return memerr.Wrap(memerr.CategoryCapture, "failed to store notes commit", "permission denied writing notes", err)
	}

	refObj := plumbing.NewHashReference(plumbing.ReferenceName(ref), commitHash)
	if err := g.repo.Storer.SetReference(refObj); err != nil {
		return memerr.Wrap(memerr.CategoryCapture, "failed to update notes ref", "permission denied writing notes", err)
	}
	return nil
}

func (g *GitNoteStore) CommitMetadata(ctx context.Context, sha string) (CommitMeta, error) {
	c, err := g.repo.CommitObject(plumbing.NewHash(sha))
	if err != nil {
		return CommitMeta{}, memerr.Wrap(memerr.CategoryRecall, "failed to load commit metadata", "", err)
	}
	return CommitMeta{
		SHA:       c.Hash.String(),
		Author:    c.Author.Name,
		Message:   c.Message,
		Timestamp: c.Author.When.Unix(),
	}, nil
}

func (g *GitNoteStore) ReadFileAtCommit(ctx context.Context, sha, path string) (string, error) {
	c, err := g.repo.CommitObject(plumbing.NewHash(sha))
	if err != nil {
		return "", memerr.Wrap(memerr.CategoryRecall, "failed to load commit", "", err)
	}
	tree, err := c.Tree()
	if err != nil {
		return "", memerr.Wrap(memerr.CategoryRecall, "failed to load commit tree", "", err)
	}
	f, err := tree.File(path)
	if err != nil {
		return "", memerr.Wrap(memerr.CategoryRecall, "file not found at commit", "", err)
	}
	return f.Contents()
}

