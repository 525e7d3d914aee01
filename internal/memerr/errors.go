// Package memerr defines the closed error taxonomy shared across the memory
// store: a fixed set of categories plus pre-built instances for every
// recoverable failure named by the external contract.
package memerr

import "fmt"

// Category is a closed classification of failure used to route recovery
// behavior at the caller.
type Category string

const (
	CategoryStorage    Category = "storage"
	CategoryIndex      Category = "index"
	CategoryEmbedding  Category = "embedding"
	CategoryParse      Category = "parse"
	CategoryCapture    Category = "capture"
	CategoryRecall     Category = "recall"
	CategoryValidation Category = "validation"
)

// MemoryError is the single error type returned across package boundaries.
// Hint is operator-facing: what to do about it, not what happened.
type MemoryError struct {
	Category Category
	Message  string
	Hint     string
	Cause    error
}

// Error renders category, message, the wrapped cause (if any), and the
// recovery hint (if any). The cause is folded in here rather than left for
// errors.Unwrap alone, since callers that only log err.Error() still need
// to see it — e.g. InvalidNamespaceError's cause enumerates the valid set.
func (e *MemoryError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Category, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Cause.Error())
	}
	if e.Hint != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Hint)
	}
	return msg
}

func (e *MemoryError) Unwrap() error { return e.Cause }

func New(cat Category, message, hint string) *MemoryError {
	return &MemoryError{Category: cat, Message: message, Hint: hint}
}

// Wrap attaches cause to a fresh error of the given category, preserving
// the cause for errors.Is/As chains.
func Wrap(cat Category, message, hint string, cause error) *MemoryError {
	return &MemoryError{Category: cat, Message: message, Hint: hint, Cause: cause}
}

// WithCause returns a copy of a pre-defined instance carrying cause, so
// callers can do `return memerr.LockTimeoutError.WithCause(err)` and still
// match the sentinel with errors.Is.
func (e *MemoryError) WithCause(cause error) *MemoryError {
	cp := *e
	cp.Cause = cause
	return &cp
}

// Pre-defined instances, one per named failure in the external contract.
var (
	NoCommitsError = New(CategoryCapture, "the notes ref has no commits to attach memories to",
		"make at least one commit in the repository before capturing")

	PermissionDeniedError = New(CategoryCapture, "permission denied writing notes",
		"check filesystem permissions on the git directory")

	IndexLockedError = New(CategoryIndex, "index is locked by another writer",
		"retry after the other writer completes, or raise the retry budget")

	SQLiteVecMissingError = New(CategoryIndex, "the vector-index extension is unavailable",
		"ensure the sqlite-vec extension is loadable by the sqlite3 driver")

	ModelOOMError = New(CategoryEmbedding, "out of memory loading the embedding model",
		"free memory or select a smaller embedding model")

	ModelCorruptedError = New(CategoryEmbedding, "embedding model file is corrupted",
		"re-download or re-export the embedding model")

	InvalidYAMLError = New(CategoryParse, "front matter is not valid YAML",
		"fix the YAML syntax or remove the malformed block")

	MissingFieldError = New(CategoryParse, "required front-matter field(s) missing",
		"add the missing field(s) and retry")

	LockTimeoutError = New(CategoryCapture, "timed out waiting for the notes-ref lock",
		"retry, or raise lock_timeout_seconds")

	InvalidNamespaceError = New(CategoryValidation, "namespace is not in the configured set",
		"use one of the configured namespaces")

	ContentTooLargeError = New(CategoryValidation, "content exceeds the configured byte cap",
		"shorten the content or raise max_content_bytes")

	InvalidGitRefError = New(CategoryValidation, "ref name is invalid or contains traversal",
		"use a plain ref name with no path traversal segments")

	PathTraversalError = New(CategoryValidation, "path contains traversal segments",
		"supply a path confined to the expected root")
)
