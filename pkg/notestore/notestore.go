// Package notestore is the adapter over the commit-graph backing store: the
// external collaborator specified only at its interface in the memory-store
// contract. NoteStore exposes exactly the operations the contract names:
// listing commits, reading/writing the note attached to a commit on a
// namespaced ref, and fetching commit/file metadata.
package notestore

import "context"

// CommitMeta is the commit metadata NoteStore can report without touching
// the notes ref itself.
type CommitMeta struct {
	SHA       string
	Author    string
	Message   string
	Timestamp int64 // unix seconds
}

// NoteStore is the interface every component in this module programs
// against; GitNoteStore is the default implementation and MemoryNoteStore
// is a deterministic in-process fake for tests.
type NoteStore interface {
	// Head returns the tip commit SHA of the repository's primary branch.
	// NoCommitsError (via the returned error) if there are no commits.
	Head(ctx context.Context) (string, error)

	// CommitsSince lists commits newer than afterSHA (exclusive) up to and
	// including the current tip, oldest first (topological order). An
	// empty afterSHA lists every commit.
	CommitsSince(ctx context.Context, afterSHA string) ([]string, error)

	// ReadNote returns the raw note blob attached to commitSHA under ref,
	// or "" with ok=false if no note is attached.
	ReadNote(ctx context.Context, ref, commitSHA string) (content string, ok bool, err error)

	// WriteNote replaces (or creates) the note blob attached to commitSHA
	// under ref. Callers serialize concurrent writers (CaptureService holds
	// the cross-process lock); implementations do not.
	WriteNote(ctx context.Context, ref, commitSHA, content string) error

	// NotedCommits lists every commit SHA that currently has a note under
	// ref.
	NotedCommits(ctx context.Context, ref string) ([]string, error)

	// CommitMetadata fetches author/message/timestamp for a commit.
	CommitMetadata(ctx context.Context, sha string) (CommitMeta, error)

	// ReadFileAtCommit returns the content of path as it existed at sha.
	ReadFileAtCommit(ctx context.Context, sha, path string) (string, error)
}
