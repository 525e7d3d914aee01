package pattern

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fnbdesign/git-notes-memory/internal/config"
	"github.com/fnbdesign/git-notes-memory/internal/models"
	"github.com/fnbdesign/git-notes-memory/pkg/lifecycle"
)

func memo(id, ns, summary string, tags []string) models.Memory {
	return models.Memory{
		ID:        id,
		Namespace: ns,
		Summary:   summary,
		Content:   summary,
		Tags:      tags,
		Timestamp: time.Now(),
		Status:    models.StatusActive,
	}
}

func TestDetectPatternsFindsDatabaseCluster(t *testing.T) {
	cfg := config.Default()
	lc := lifecycle.New(nil, cfg, zerolog.Nop())
	m := New(cfg, lc)

	memories := []models.Memory{
		memo("a", "learnings", "database connection pooling works well", []string{"database"}),
		memo("b", "learnings", "database schema migration succeeded", []string{"database"}),
		memo("c", "progress", "database indexing improved latency", []string{"database"}),
	}

	patterns := m.DetectPatterns(memories, 2, 5)
	if len(patterns) == 0 {
		t.Fatal("expected at least one candidate pattern")
	}

	found := false
	for _, p := range patterns {
		if p.OccurrenceCount == 3 && p.Status == models.PatternCandidate {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a candidate pattern with occurrence_count == 3, got %+v", patterns)
	}
}

func TestPatternLifecycleTransitions(t *testing.T) {
	cfg := config.Default()
	lc := lifecycle.New(nil, cfg, zerolog.Nop())
	m := New(cfg, lc)

	memories := []models.Memory{
		memo("a", "learnings", "workflow step sequence documented", nil),
		memo("b", "learnings", "workflow step process refined", nil),
	}
	patterns := m.DetectPatterns(memories, 2, 5)
	if len(patterns) == 0 {
		t.Fatal("expected at least one candidate pattern")
	}
	name := patterns[0].Name

	if m.PromotePattern(name) {
		t.Error("promote should fail before validate")
	}
	if !m.ValidatePattern(name) {
		t.Error("validate should succeed from candidate")
	}
	if !m.PromotePattern(name) {
		t.Error("promote should succeed from validated")
	}
	if !m.DeprecatePattern(name) {
		t.Error("deprecate should succeed from any status")
	}
}

func TestAddEvidenceRecomputesConfidenceFromFormula(t *testing.T) {
	cfg := config.Default()
	lc := lifecycle.New(nil, cfg, zerolog.Nop())
	m := New(cfg, lc)

	memories := []models.Memory{
		memo("a", "learnings", "database connection pooling works well", []string{"database"}),
		memo("b", "learnings", "database schema migration succeeded", []string{"database"}),
		memo("c", "progress", "database indexing improved latency", []string{"database"}),
	}
	patterns := m.DetectPatterns(memories, 2, 5)
	if len(patterns) == 0 {
		t.Fatal("expected at least one candidate pattern")
	}
	name := patterns[0].Name
	before := patterns[0].Confidence

	d := memo("d", "learnings", "database connection pooling works well", []string{"database"})
	m.AddEvidence(name, "d", d)

	p := m.patterns[lowerKey(name)]
	if p.OccurrenceCount != 4 {
		t.Errorf("expected occurrence_count 4 after AddEvidence, got %d", p.OccurrenceCount)
	}
	st := m.scores[lowerKey(name)]
	want := m.confidenceFrom(st, p.OccurrenceCount)
	if p.Confidence != want {
		t.Errorf("expected confidence recomputed from the formula (%f), got %f (before=%f)", want, p.Confidence, before)
	}
}

func lowerKey(s string) string { return strings.ToLower(s) }
