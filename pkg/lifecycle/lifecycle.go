// Package lifecycle implements LifecycleManager: the age/relevance-driven
// state machine that moves memories through active -> resolved/archived
// -> tombstone -> garbage-collected, including content compression on
// archive and tombstone redaction.
package lifecycle

import (
	"bytes"
	"compress/flate"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fnbdesign/git-notes-memory/internal/config"
	"github.com/fnbdesign/git-notes-memory/internal/index"
	"github.com/fnbdesign/git-notes-memory/internal/memerr"
	"github.com/fnbdesign/git-notes-memory/internal/models"
)

// ArchivedContentPrefix marks compressed, base64-wrapped content.
const ArchivedContentPrefix = "[ARCHIVED]"

// TombstoneSummary replaces a tombstoned memory's summary.
const TombstoneSummary = "[DELETED]"

// Stats summarizes one process_lifecycle / garbage_collect pass.
type Stats struct {
	Scanned    int
	Archived   int
	Tombstoned int
	Deleted    int
	Errors     int
	Skipped    int
}

// Processed is the sum of state-changing outcomes.
func (s Stats) Processed() int { return s.Archived + s.Tombstoned + s.Deleted }

// Manager is the LifecycleManager.
type Manager struct {
	idx *index.Service
	cfg config.Config
	log zerolog.Logger
	now func() time.Time
}

func New(idx *index.Service, cfg config.Config, log zerolog.Logger) *Manager {
	return &Manager{idx: idx, cfg: cfg, log: log, now: time.Now}
}

// AgeDays is max(0, now-m.Timestamp) in days; a zero timestamp is treated
// as "no timestamp" and yields 0.
func (m *Manager) AgeDays(mem models.Memory) float64 {
	if mem.Timestamp.IsZero() {
		return 0
	}
	d := m.now().UTC().Sub(mem.Timestamp.UTC()).Hours() / 24
	if d < 0 {
		return 0
	}
	return d
}

// Relevance is the exponential temporal-decay score, clamped to
// [min_relevance_for_active, 1]. A zero timestamp yields 0.5.
func (m *Manager) Relevance(mem models.Memory) float64 {
	if mem.Timestamp.IsZero() {
		return 0.5
	}
	age := m.AgeDays(mem)
	r := math.Pow(2, -age/m.cfg.HalfLifeDays)
	return clamp(r, m.cfg.MinRelevanceForActive, 1)
}

// CalculateTemporalDecay is the shared decay function used by both
// relevance scoring here and the reranker's recency signal.
func CalculateTemporalDecay(ageDays, halfLifeDays float64) float64 {
	if ageDays <= 0 {
		return 1.0
	}
	return math.Pow(2, -ageDays/halfLifeDays)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (m *Manager) shouldArchive(mem models.Memory) bool {
	return mem.Status == models.StatusActive &&
		m.AgeDays(mem) >= m.cfg.ArchiveAgeDays &&
		m.Relevance(mem) < m.cfg.MinRelevanceForActive
}

func (m *Manager) shouldTombstone(mem models.Memory) bool {
	return (mem.Status == models.StatusArchived || mem.Status == models.StatusResolved) &&
		m.AgeDays(mem) >= m.cfg.TombstoneAgeDays
}

func (m *Manager) shouldGC(mem models.Memory) bool {
	return mem.Status == models.StatusTombstone && m.AgeDays(mem) >= m.cfg.GCAgeDays
}

// permitted transitions, per the state diagram in §4.I.
var transitions = map[models.Status]map[models.Status]bool{
	models.StatusActive: {
		models.StatusResolved: true,
		models.StatusArchived: true,
		models.StatusTombstone: true,
	},
	models.StatusResolved: {
		models.StatusArchived: true,
	},
	models.StatusArchived: {
		models.StatusTombstone: true,
		models.StatusActive:    true, // restore
	},
	models.StatusTombstone: {
		models.StatusActive: true, // restore
	},
}

// Transition attempts to move mem from its current status to target.
// Returns ok=false (not an error) if the edge isn't permitted.
func (m *Manager) Transition(ctx context.Context, mem *models.Memory, target models.Status) (ok bool, err error) {
	if mem.Status == target {
		return false, nil
	}
	if !transitions[mem.Status][target] {
		return false, nil
	}

	switch target {
	case models.StatusArchived:
		mem.Content = compressIfNeeded(mem.Content, m.cfg.CompressionLevel)
	case models.StatusTombstone:
		mem.Summary = TombstoneSummary
		mem.Content = ""
	case models.StatusActive:
		if mem.Status == models.StatusArchived && strings.HasPrefix(mem.Content, ArchivedContentPrefix) {
			decompressed, derr := Decompress(mem.Content)
			if derr != nil {
				return false, derr
			}
			mem.Content = decompressed
		}
	}
	mem.Status = target

	if err := m.idx.Update(ctx, *mem, mem.Summary+" "+mem.Content, nil); err != nil {
		return false, err
	}
	return true, nil
}

// ProcessLifecycle scans every memory id and applies should_archive /
// should_tombstone in order. dryRun computes stats without writing.
func (m *Manager) ProcessLifecycle(ctx context.Context, dryRun bool) (Stats, error) {
	ids, err := m.idx.GetAllIDs(ctx)
	if err != nil {
		return Stats{}, err
	}
	var stats Stats
	const batchSize = 100
	for i := 0; i < len(ids); i += batchSize {
		end := min(i+batchSize, len(ids))
		batch, err := m.idx.GetBatch(ctx, ids[i:end])
		if err != nil {
			return stats, err
		}
		for _, mem := range batch {
			stats.Scanned++
			target, do := m.nextTransition(mem)
			if !do {
				stats.Skipped++
				continue
			}
			if dryRun {
				m.tallyDry(&stats, target)
				continue
			}
			ok, err := m.Transition(ctx, &mem, target)
			if err != nil {
				stats.Errors++
				continue
			}
			if !ok {
				stats.Skipped++
				continue
			}
			m.tallyDry(&stats, target)
		}
	}
	return stats, nil
}

func (m *Manager) nextTransition(mem models.Memory) (models.Status, bool) {
	if m.shouldArchive(mem) {
		return models.StatusArchived, true
	}
	if m.shouldTombstone(mem) {
		return models.StatusTombstone, true
	}
	return "", false
}

func (m *Manager) tallyDry(stats *Stats, target models.Status) {
	switch target {
	case models.StatusArchived:
		stats.Archived++
	case models.StatusTombstone:
		stats.Tombstoned++
	}
}

// GarbageCollect hard-deletes tombstones past gc_age_days.
func (m *Manager) GarbageCollect(ctx context.Context) (Stats, error) {
	ids, err := m.idx.GetAllIDs(ctx)
	if err != nil {
		return Stats{}, err
	}
	var stats Stats
	const batchSize = 100
	for i := 0; i < len(ids); i += batchSize {
		end := min(i+batchSize, len(ids))
		batch, err := m.idx.GetBatch(ctx, ids[i:end])
		if err != nil {
			return stats, err
		}
		for _, mem := range batch {
			stats.Scanned++
			if !m.shouldGC(mem) {
				stats.Skipped++
				continue
			}
			if err := m.idx.Delete(ctx, mem.ID); err != nil {
				stats.Errors++
				continue
			}
			stats.Deleted++
		}
	}
	return stats, nil
}

// ArchiveBatch archives every id in ids that is eligible, skipping (not
// erroring) the ones that aren't.
func (m *Manager) ArchiveBatch(ctx context.Context, ids []string) (Stats, error) {
	var stats Stats
	batch, err := m.idx.GetBatch(ctx, ids)
	if err != nil {
		return stats, err
	}
	for _, mem := range batch {
		stats.Scanned++
		ok, err := m.Transition(ctx, &mem, models.StatusArchived)
		if err != nil {
			stats.Errors++
			continue
		}
		if !ok {
			stats.Skipped++
			continue
		}
		stats.Archived++
	}
	return stats, nil
}

func compressIfNeeded(content string, level int) string {
	if strings.HasPrefix(content, ArchivedContentPrefix) {
		return content // idempotent
	}
	compressed, err := Compress(content, level)
	if err != nil {
		return content
	}
	return compressed
}

// Compress deflate-compresses s at level (1-9) and returns it base64-wrapped
// and prefixed with ArchivedContentPrefix.
func Compress(s string, level int) (string, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, level)
	if err != nil {
		return "", memerr.Wrap(memerr.CategoryStorage, "failed to create compressor", "", err)
	}
	if _, err := w.Write([]byte(s)); err != nil {
		return "", memerr.Wrap(memerr.CategoryStorage, "failed to compress content", "", err)
	}
	if err := w.Close(); err != nil {
		return "", memerr.Wrap(memerr.CategoryStorage, "failed to flush compressor", "", err)
	}
	return ArchivedContentPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Decompress reverses Compress. Malformed input is a typed failure.
func Decompress(s string) (string, error) {
	if !strings.HasPrefix(s, ArchivedContentPrefix) {
		return "", memerr.New(memerr.CategoryStorage, "content is not archive-compressed", fmt.Sprintf("expected prefix %q", ArchivedContentPrefix))
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(s, ArchivedContentPrefix))
	if err != nil {
		return "", memerr.Wrap(memerr.CategoryStorage, "malformed archived content", "", err)
	}
	r := flate.NewReader(bytes.NewReader(raw))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return "", memerr.Wrap(memerr.CategoryStorage, "failed to decompress archived content", "", err)
	}
	return string(out), nil
}

// CompressionRatio is compressed-length / original-length.
func CompressionRatio(original, compressed string) float64 {
	if len(original) == 0 {
		return 0
	}
	return float64(len(compressed)) / float64(len(original))
}
