// Package index is the IndexService: the authoritative read-optimized
// projection of the notes store. It holds one embedded SQLite file with a
// memories table, an FTS5 full-text index, and a vec0 vector index, plus
// the sync checkpoint and schema version. Adapted from the teacher's
// single-file-embedded-store pattern (sqlite_store.go): a single *sql.DB
// guarded by an in-process RWMutex, schema applied via CREATE TABLE IF NOT
// EXISTS, and NullString scanning for optional columns.
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"
	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"github.com/fnbdesign/git-notes-memory/internal/memerr"
	"github.com/fnbdesign/git-notes-memory/internal/models"
)

const schemaVersion = 1

const schemaDDL = `
CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	commit_sha TEXT NOT NULL,
	idx INTEGER NOT NULL,
	namespace TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	summary TEXT NOT NULL,
	content TEXT NOT NULL,
	spec TEXT,
	tags TEXT,
	phase TEXT,
	status TEXT NOT NULL,
	relates_to TEXT
);

CREATE INDEX IF NOT EXISTS idx_memories_namespace ON memories(namespace);
CREATE INDEX IF NOT EXISTS idx_memories_spec ON memories(spec);
CREATE INDEX IF NOT EXISTS idx_memories_timestamp ON memories(timestamp);

CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
	id UNINDEXED, body_text, tokenize='porter unicode61'
);

CREATE TABLE IF NOT EXISTS sync_state (
	key TEXT PRIMARY KEY,
	value TEXT
);

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);
`

// Service is the SQLite-backed IndexService.
type Service struct {
	mu       sync.RWMutex
	db       *sql.DB
	dim      int
	lock     *flock.Flock
	log      zerolog.Logger
	vecReady bool
}

// Open creates or opens the index file at path, applies schema, and loads
// the vec0 virtual table at the configured dimension. Returns
// SQLiteVecMissingError if the vector extension cannot be loaded.
func Open(path string, dim int, log zerolog.Logger) (*Service, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, memerr.Wrap(memerr.CategoryIndex, "failed to open index file", "", err)
	}
	db.SetMaxOpenConns(1) // ncruces/go-sqlite3: single-writer, serialize via one conn

	s := &Service{db: db, dim: dim, lock: flock.New(path + ".lock"), log: log}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Service) initialize() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return memerr.Wrap(memerr.CategoryIndex, "failed to apply index schema", "", err)
	}

	vecDDL := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS memories_vec USING vec0(id TEXT PRIMARY KEY, embedding float[%d])`, s.dim)
	if _, err := s.db.Exec(vecDDL); err != nil {
		return memerr.SQLiteVecMissingError.WithCause(err)
	}
	s.vecReady = true

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&count); err != nil {
		return memerr.Wrap(memerr.CategoryIndex, "failed to read schema_version", "", err)
	}
	if count == 0 {
		if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, schemaVersion); err != nil {
			return memerr.Wrap(memerr.CategoryIndex, "failed to seed schema_version", "", err)
		}
	}
	return nil
}

func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// withWriteLock serializes writes across processes via the advisory file
// lock, on top of the in-process mutex, and retries on contention with
// bounded backoff before surfacing IndexLockedError.
func (s *Service) withWriteLock(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const attempts = 5
	backoff := 20 * time.Millisecond
	var locked bool
	var err error
	for i := 0; i < attempts; i++ {
		locked, err = s.lock.TryLock()
		if err == nil && locked {
			break
		}
		time.Sleep(backoff)
		backoff *= 2
	}
	if !locked {
		return memerr.IndexLockedError.WithCause(err)
	}
	defer s.lock.Unlock()
	return fn()
}

func tagsToString(tags []string) string  { return strings.Join(tags, "\x1f") }
func stringToTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\x1f")
}

// Insert upserts a memory and its embedding. On conflict all fields
// replace. Mismatched embedding dimension is a typed failure.
func (s *Service) Insert(ctx context.Context, m models.Memory, bodyText string, embedding []float32) error {
	if len(embedding) != s.dim {
		return memerr.New(memerr.CategoryIndex, fmt.Sprintf("embedding dimension %d does not match configured dimension %d", len(embedding), s.dim), "recompute the embedding at the configured dimension")
	}
	return s.withWriteLock(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return memerr.Wrap(memerr.CategoryIndex, "failed to begin write transaction", "", err)
		}
		defer tx.Rollback()

		_, err = tx.ExecContext(ctx, `
			INSERT INTO memories (id, commit_sha, idx, namespace, timestamp, summary, content, spec, tags, phase, status, relates_to)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				commit_sha=excluded.commit_sha, idx=excluded.idx, namespace=excluded.namespace,
				timestamp=excluded.timestamp, summary=excluded.summary, content=excluded.content,
				spec=excluded.spec, tags=excluded.tags, phase=excluded.phase, status=excluded.status,
				relates_to=excluded.relates_to
		`, m.ID, m.CommitSHA, m.Index, m.Namespace, m.Timestamp.UTC().Unix(), m.Summary, m.Content,
			nullableString(m.Spec), tagsToString(m.Tags), nullableString(m.Phase), string(m.Status), tagsToString(m.RelatesTo))
		if err != nil {
			return memerr.Wrap(memerr.CategoryIndex, "failed to upsert memory row", "", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM memories_fts WHERE id = ?`, m.ID); err != nil {
			return memerr.Wrap(memerr.CategoryIndex, "failed to clear fts row", "", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO memories_fts (id, body_text) VALUES (?, ?)`, m.ID, bodyText); err != nil {
			return memerr.Wrap(memerr.CategoryIndex, "failed to upsert fts row", "", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM memories_vec WHERE id = ?`, m.ID); err != nil {
			return memerr.Wrap(memerr.CategoryIndex, "failed to clear vector row", "", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO memories_vec (id, embedding) VALUES (?, ?)`, m.ID, encodeVector(embedding)); err != nil {
			return memerr.Wrap(memerr.CategoryIndex, "failed to upsert vector row", "", err)
		}

		if err := tx.Commit(); err != nil {
			return memerr.Wrap(memerr.CategoryIndex, "failed to commit write transaction", "", err)
		}
		return nil
	})
}

// Update replaces a memory's scalar fields without recomputing the vector
// or FTS rows unless the caller supplies a non-nil embedding/bodyText.
func (s *Service) Update(ctx context.Context, m models.Memory, bodyText string, embedding []float32) error {
	if embedding != nil {
		return s.Insert(ctx, m, bodyText, embedding)
	}
	return s.withWriteLock(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return memerr.Wrap(memerr.CategoryIndex, "failed to begin write transaction", "", err)
		}
		defer tx.Rollback()
		_, err = tx.ExecContext(ctx, `
			UPDATE memories SET commit_sha=?, idx=?, namespace=?, timestamp=?, summary=?, content=?,
				spec=?, tags=?, phase=?, status=?, relates_to=? WHERE id=?
		`, m.CommitSHA, m.Index, m.Namespace, m.Timestamp.UTC().Unix(), m.Summary, m.Content,
			nullableString(m.Spec), tagsToString(m.Tags), nullableString(m.Phase), string(m.Status), tagsToString(m.RelatesTo), m.ID)
		if err != nil {
			return memerr.Wrap(memerr.CategoryIndex, "failed to update memory row", "", err)
		}
		if bodyText != "" {
			if _, err := tx.ExecContext(ctx, `DELETE FROM memories_fts WHERE id = ?`, m.ID); err != nil {
				return memerr.Wrap(memerr.CategoryIndex, "failed to clear fts row", "", err)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO memories_fts (id, body_text) VALUES (?, ?)`, m.ID, bodyText); err != nil {
				return memerr.Wrap(memerr.CategoryIndex, "failed to upsert fts row", "", err)
			}
		}
		return tx.Commit()
	})
}

// Delete removes a memory's row from all three indexes atomically.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.withWriteLock(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return memerr.Wrap(memerr.CategoryIndex, "failed to begin write transaction", "", err)
		}
		defer tx.Rollback()
		if _, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id); err != nil {
			return memerr.Wrap(memerr.CategoryIndex, "failed to delete memory row", "", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM memories_fts WHERE id = ?`, id); err != nil {
			return memerr.Wrap(memerr.CategoryIndex, "failed to delete fts row", "", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM memories_vec WHERE id = ?`, id); err != nil {
			return memerr.Wrap(memerr.CategoryIndex, "failed to delete vector row", "", err)
		}
		return tx.Commit()
	})
}

func (s *Service) Get(ctx context.Context, id string) (*models.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, memorySelect+` WHERE id = ?`, id)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, memerr.Wrap(memerr.CategoryIndex, "failed to fetch memory", "", err)
	}
	return m, nil
}

// GetBatch preserves input order; missing ids are silently omitted.
func (s *Service) GetBatch(ctx context.Context, ids []string) ([]models.Memory, error) {
	byID := make(map[string]models.Memory, len(ids))
	for _, id := range ids {
		m, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if m != nil {
			byID[id] = *m
		}
	}
	out := make([]models.Memory, 0, len(ids))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Service) GetAllIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM memories`)
	if err != nil {
		return nil, memerr.Wrap(memerr.CategoryIndex, "failed to list memory ids", "", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, memerr.Wrap(memerr.CategoryIndex, "failed to scan memory id", "", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Filters narrows search_vector/search_text/list_recent results.
type Filters struct {
	Namespace string
	Spec      string
	Status    string
	SinceTS   *time.Time
}

func (f Filters) clause(args *[]any) string {
	var clauses []string
	if f.Namespace != "" {
		clauses = append(clauses, "namespace = ?")
		*args = append(*args, f.Namespace)
	}
	if f.Spec != "" {
		clauses = append(clauses, "spec = ?")
		*args = append(*args, f.Spec)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		*args = append(*args, f.Status)
	}
	if f.SinceTS != nil {
		clauses = append(clauses, "timestamp >= ?")
		*args = append(*args, f.SinceTS.UTC().Unix())
	}
	if len(clauses) == 0 {
		return ""
	}
	return " AND " + strings.Join(clauses, " AND ")
}

// VectorResult pairs a Memory with the vector index's distance metric
// (lower is better).
type VectorResult struct {
	Memory   models.Memory
	Distance float64
}

// SearchVector runs k-nearest-neighbor over the vec0 index, then applies
// filters. If fewer than k post-filter rows exist, returns what's available.
func (s *Service) SearchVector(ctx context.Context, query []float32, k int, filters Filters) ([]VectorResult, error) {
	if len(query) != s.dim {
		return nil, memerr.New(memerr.CategoryIndex, "query vector dimension mismatch", "embed with the configured dimension")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	args := []any{encodeVector(query), k * 4} // overfetch to survive post-filtering
	sqlStr := `
		SELECT m.` + memoryColumns + `, v.distance
		FROM memories_vec v
		JOIN memories m ON m.id = v.id
		WHERE v.embedding MATCH ? AND k = ?
	`
	var filterArgs []any
	sqlStr += filters.clause(&filterArgs)
	args = append(args, filterArgs...)
	sqlStr += ` ORDER BY v.distance LIMIT ?`
	args = append(args, k)

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, memerr.Wrap(memerr.CategoryIndex, "vector search failed", "", err)
	}
	defer rows.Close()

	var out []VectorResult
	for rows.Next() {
		m, dist, err := scanMemoryWithDistance(rows)
		if err != nil {
			return nil, memerr.Wrap(memerr.CategoryIndex, "failed to scan vector search row", "", err)
		}
		out = append(out, VectorResult{Memory: *m, Distance: dist})
	}
	return out, nil
}

// SearchText runs an FTS5 match; an empty/whitespace query returns nil
// without touching the database.
func (s *Service) SearchText(ctx context.Context, query string, limit int, filters Filters) ([]models.Memory, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	sqlStr := `
		SELECT m.` + memoryColumns + `
		FROM memories_fts f
		JOIN memories m ON m.id = f.id
		WHERE memories_fts MATCH ?
	`
	var filterArgs []any
	sqlStr += filters.clause(&filterArgs)
	sqlStr += ` ORDER BY rank LIMIT ?`
	args := append([]any{query}, filterArgs...)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, memerr.Wrap(memerr.CategoryIndex, "text search failed", "", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

func (s *Service) GetByNamespace(ctx context.Context, ns, spec string, limit int) ([]models.Memory, error) {
	return s.queryFiltered(ctx, Filters{Namespace: ns, Spec: spec}, limit)
}

func (s *Service) GetBySpec(ctx context.Context, spec, ns string, limit int) ([]models.Memory, error) {
	return s.queryFiltered(ctx, Filters{Spec: spec, Namespace: ns}, limit)
}

func (s *Service) ListRecent(ctx context.Context, limit int, ns, spec string) ([]models.Memory, error) {
	return s.queryFiltered(ctx, Filters{Namespace: ns, Spec: spec}, limit)
}

func (s *Service) queryFiltered(ctx context.Context, filters Filters, limit int) ([]models.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var args []any
	sqlStr := memorySelect + ` WHERE 1=1` + filters.clause(&args) + ` ORDER BY timestamp DESC`
	if limit > 0 {
		sqlStr += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, memerr.Wrap(memerr.CategoryIndex, "filtered query failed", "", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

const memoryColumns = `id, commit_sha, idx, namespace, timestamp, summary, content, spec, tags, phase, status, relates_to`
const memorySelect = `SELECT ` + memoryColumns + ` FROM memories`

type scanner interface {
	Scan(dest ...any) error
}

func scanMemory(row scanner) (*models.Memory, error) {
	var m models.Memory
	var ts int64
	var spec, tags, phase, relatesTo sql.NullString
	err := row.Scan(&m.ID, &m.CommitSHA, &m.Index, &m.Namespace, &ts, &m.Summary, &m.Content,
		&spec, &tags, &phase, &m.Status, &relatesTo)
	if err != nil {
		return nil, err
	}
	m.Timestamp = time.Unix(ts, 0).UTC()
	m.Spec = spec.String
	m.Tags = stringToTags(tags.String)
	m.Phase = phase.String
	m.RelatesTo = stringToTags(relatesTo.String)
	return &m, nil
}

func scanMemoryWithDistance(row scanner) (*models.Memory, float64, error) {
	var m models.Memory
	var ts int64
	var spec, tags, phase, relatesTo sql.NullString
	var dist float64
	err := row.Scan(&m.ID, &m.CommitSHA, &m.Index, &m.Namespace, &ts, &m.Summary, &m.Content,
		&spec, &tags, &phase, &m.Status, &relatesTo, &dist)
	if err != nil {
		return nil, 0, err
	}
	m.Timestamp = time.Unix(ts, 0).UTC()
	m.Spec = spec.String
	m.Tags = stringToTags(tags.String)
	m.Phase = phase.String
	m.RelatesTo = stringToTags(relatesTo.String)
	return &m, dist, nil
}

func scanMemories(rows *sql.Rows) ([]models.Memory, error) {
	var out []models.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// encodeVector renders a float32 vector as the JSON array literal the
// sqlite-vec extension accepts for vec0 MATCH/insert parameters.
func encodeVector(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// Checkpoint returns the last fully-indexed commit SHA, or "" if none.
func (s *Service) Checkpoint(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM sync_state WHERE key = 'checkpoint'`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", memerr.Wrap(memerr.CategoryIndex, "failed to read checkpoint", "", err)
	}
	return v, nil
}

// SetCheckpoint advances the checkpoint row; called only after all work
// for a commit has succeeded, so a mid-commit failure leaves it untouched.
func (s *Service) SetCheckpoint(ctx context.Context, sha string) error {
	return s.withWriteLock(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO sync_state (key, value) VALUES ('checkpoint', ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, sha)
		if err != nil {
			return memerr.Wrap(memerr.CategoryIndex, "failed to advance checkpoint", "", err)
		}
		return nil
	})
}
