// Package pattern implements PatternManager: term extraction over a
// memory corpus, greedy Jaccard clustering, idf-weighted scoring,
// keyword-based type classification, and the
// candidate -> validated -> promoted -> deprecated lifecycle with
// evidence tracking. The candidate bookkeeping is adapted from the
// teacher's CandidateRegistry (pkg/scanner/discovery/registry.go): a
// map keyed by a canonical term, tracking a count and a promotion
// threshold — generalized here from single-token counts to whole
// evidence sets, since a Pattern's "occurrence" is a memory id, not an
// incremented counter.
package pattern

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/coregx/ahocorasick"

	"github.com/fnbdesign/git-notes-memory/internal/config"
	"github.com/fnbdesign/git-notes-memory/internal/models"
	"github.com/fnbdesign/git-notes-memory/pkg/lifecycle"
	"github.com/fnbdesign/git-notes-memory/pkg/pool"
	"github.com/fnbdesign/git-notes-memory/pkg/tokenize"
)

// typeKeywords classifies a cluster by keyword hits, per pattern type.
var typeKeywords = map[models.PatternType][]string{
	models.PatternSuccess:     {"success", "solved", "worked", "improved"},
	models.PatternAntiPattern: {"error", "failed", "avoid", "bug"},
	models.PatternWorkflow:    {"process", "workflow", "step", "sequence"},
	models.PatternDecision:    {"decision", "chose", "tradeoff"},
}

// namespaceHints biases classification toward a type for memories in a
// given namespace.
var namespaceHints = map[string]models.PatternType{
	"blockers":  models.PatternAntiPattern,
	"decisions": models.PatternDecision,
}

// Manager is the PatternManager. Registrations live in-process: a
// Manager instance is the "separate persistent store" the spec allows
// implementers to omit; a caller wanting durability backs it with
// IndexService under a dedicated namespace (left to the caller, per the
// spec's open question).
type Manager struct {
	cfg       config.Config
	lifecycle *lifecycle.Manager
	classifier *ahocorasick.Automaton
	classTerms []string
	classType  []models.PatternType

	patterns map[string]*models.Pattern // keyed by lower(name)
	scores   map[string]*scoreState     // keyed by lower(name), confidence formula inputs
	now      func() time.Time
}

// scoreState holds the formula components behind a Pattern's confidence,
// so AddEvidence can recompute it rather than bump it by a flat amount.
// normalized is the corpus-derived term score fixed at detection time (a
// fresh value would need the whole corpus, which AddEvidence isn't given);
// recencySum/recencyCount track the running average of
// LifecycleManager.Relevance over the pattern's evidence, updated as
// evidence is added.
type scoreState struct {
	normalized   float64
	recencySum   float64
	recencyCount int
}

func New(cfg config.Config, lc *lifecycle.Manager) *Manager {
	m := &Manager{
		cfg:      cfg,
		lifecycle: lc,
		patterns: make(map[string]*models.Pattern),
		scores:   make(map[string]*scoreState),
		now:      time.Now,
	}
	m.buildClassifier()
	return m
}

// confidenceFrom applies the same weighted formula DetectPatterns uses
// (0.6 corpus-term-score + 0.2 recency + 0.2 evidence-ratio) to st and the
// pattern's current occurrence count.
func (m *Manager) confidenceFrom(st *scoreState, occurrenceCount int) float64 {
	recencyBoost := 0.0
	if st.recencyCount > 0 {
		recencyBoost = st.recencySum / float64(st.recencyCount)
	}
	evidenceRatio := math.Min(1, float64(occurrenceCount)/float64(max(m.cfg.MinOccurrencesPromotion, 1)))
	return clamp(st.normalized*0.6+recencyBoost*0.2+evidenceRatio*0.2, 0, 1)
}

func (m *Manager) buildClassifier() {
	for t, words := range typeKeywords {
		for _, w := range words {
			m.classTerms = append(m.classTerms, w)
			m.classType = append(m.classType, t)
		}
	}
	automaton, err := ahocorasick.NewBuilder().
		AddStrings(m.classTerms).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err == nil {
		m.classifier = automaton
	}
}

// terms extracts the lowercase, stop-word-filtered content terms of a
// memory: summary + content + tags, tokenized on non-alphanumeric
// boundaries with tokens under 2 chars dropped.
func terms(mem models.Memory) []string {
	joined := mem.Summary + " " + mem.Content + " " + strings.Join(mem.Tags, " ")
	return tokenize.ContentWords(joined)
}

// termsInto is terms using a pooled buffer, for the per-memory extraction
// loop inside DetectPatterns where the result is consumed (copied into the
// term->memory postings map) before the next memory is processed.
func termsInto(dst []string, mem models.Memory) []string {
	joined := mem.Summary + " " + mem.Content + " " + strings.Join(mem.Tags, " ")
	return tokenize.ContentWordsInto(dst, joined)
}

type cluster struct {
	terms    []string
	evidence map[string]bool
}

func (c *cluster) orderedEvidence() []string {
	ids := make([]string, 0, len(c.evidence))
	for id := range c.evidence {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DetectPatterns runs the full detection algorithm: term extraction,
// greedy Jaccard clustering, idf-weighted scoring, type classification,
// naming, and candidate construction.
func (m *Manager) DetectPatterns(memories []models.Memory, minOccurrences, maxCandidates int) []*models.Pattern {
	termToMemories := make(map[string]map[string]bool)
	buf := pool.GetStringSlice()
	for _, mem := range memories {
		buf = termsInto(buf[:0], mem)
		for _, t := range buf {
			if termToMemories[t] == nil {
				termToMemories[t] = make(map[string]bool)
			}
			termToMemories[t][mem.ID] = true
		}
	}
	pool.PutStringSlice(buf)

	type candidateTerm struct {
		term  string
		count int
	}
	var candidates []candidateTerm
	for t, set := range termToMemories {
		if len(set) >= minOccurrences {
			candidates = append(candidates, candidateTerm{t, len(set)})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].count != candidates[j].count {
			return candidates[i].count > candidates[j].count
		}
		return candidates[i].term < candidates[j].term
	})

	assigned := make(map[string]bool, len(candidates))
	var clusters []*cluster
	for _, c := range candidates {
		if assigned[c.term] {
			continue
		}
		cl := &cluster{terms: []string{c.term}, evidence: cloneSet(termToMemories[c.term])}
		assigned[c.term] = true

		for _, other := range candidates {
			if assigned[other.term] {
				continue
			}
			if jaccardSets(cl.evidence, termToMemories[other.term]) >= m.cfg.PatternClusterJaccard {
				cl.terms = append(cl.terms, other.term)
				for id := range termToMemories[other.term] {
					cl.evidence[id] = true
				}
				assigned[other.term] = true
			}
		}
		clusters = append(clusters, cl)
	}

	total := len(memories)
	byID := make(map[string]models.Memory, total)
	for _, mem := range memories {
		byID[mem.ID] = mem
	}

	type scored struct {
		cl            *cluster
		raw           float64
		recencyBoost  float64
		normalized    float64
	}
	var rawScores []scored
	maxRaw := 0.0
	for _, cl := range clusters {
		raw := float64(len(cl.evidence)) / float64(max(total, 1))
		var idfSum float64
		for _, t := range cl.terms {
			idfSum += math.Log(1 + float64(total)/float64(max(len(termToMemories[t]), 1)))
		}
		raw *= idfSum

		var recencySum float64
		for id := range cl.evidence {
			if mem, ok := byID[id]; ok {
				recencySum += m.lifecycle.Relevance(mem)
			}
		}
		recencyBoost := 0.0
		if len(cl.evidence) > 0 {
			recencyBoost = recencySum / float64(len(cl.evidence))
		}

		rawScores = append(rawScores, scored{cl: cl, raw: raw, recencyBoost: recencyBoost})
		if raw > maxRaw {
			maxRaw = raw
		}
	}
	for i := range rawScores {
		if maxRaw > 0 {
			rawScores[i].normalized = rawScores[i].raw / maxRaw
		}
	}

	sort.Slice(rawScores, func(i, j int) bool { return rawScores[i].normalized > rawScores[j].normalized })
	if len(rawScores) > maxCandidates {
		rawScores = rawScores[:maxCandidates]
	}

	now := m.now().UTC()
	var out []*models.Pattern
	for _, s := range rawScores {
		pt := m.classify(s.cl, byID)
		st := &scoreState{
			normalized:   s.normalized,
			recencySum:   s.recencyBoost * float64(len(s.cl.evidence)),
			recencyCount: len(s.cl.evidence),
		}
		confidence := m.confidenceFrom(st, len(s.cl.evidence))
		p := &models.Pattern{
			Name:            patternName(s.cl.terms, pt),
			Type:            pt,
			Tags:            topTerms(s.cl.terms, 3),
			Evidence:        s.cl.orderedEvidence(),
			Confidence:      confidence,
			Status:          models.PatternCandidate,
			FirstSeen:       now,
			LastSeen:        now,
			OccurrenceCount: len(s.cl.evidence),
		}
		key := strings.ToLower(p.Name)
		m.patterns[key] = p
		m.scores[key] = st
		out = append(out, p)
	}
	return out
}

func (m *Manager) classify(cl *cluster, byID map[string]models.Memory) models.PatternType {
	hits := make(map[models.PatternType]int)
	text := strings.Join(cl.terms, " ")
	if m.classifier != nil {
		for _, match := range m.classifier.FindAllOverlapping([]byte(text)) {
			if match.PatternID >= 0 && match.PatternID < len(m.classType) {
				hits[m.classType[match.PatternID]]++
			}
		}
	}
	for id := range cl.evidence {
		if mem, ok := byID[id]; ok {
			if hint, ok := namespaceHints[mem.Namespace]; ok {
				hits[hint]++
			}
		}
	}

	best := models.PatternTechnical
	bestCount := 0
	for _, t := range []models.PatternType{models.PatternSuccess, models.PatternAntiPattern, models.PatternWorkflow, models.PatternDecision} {
		if hits[t] > bestCount {
			best = t
			bestCount = hits[t]
		}
	}
	return best
}

func patternName(terms []string, t models.PatternType) string {
	top := topTerms(terms, 3)
	titled := make([]string, len(top))
	for i, term := range top {
		titled[i] = strings.Title(term)
	}
	return fmt.Sprintf("%s (%s)", strings.Join(titled, " "), titleCase(string(t)))
}

func titleCase(s string) string {
	parts := strings.Split(s, "_")
	for i, p := range parts {
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

func topTerms(terms []string, n int) []string {
	if len(terms) <= n {
		out := append([]string(nil), terms...)
		return out
	}
	return append([]string(nil), terms[:n]...)
}

// ValidatePattern transitions a candidate to validated.
func (m *Manager) ValidatePattern(name string) bool {
	p, ok := m.patterns[strings.ToLower(name)]
	if !ok || p.Status != models.PatternCandidate {
		return false
	}
	p.Status = models.PatternValidated
	return true
}

// PromotePattern transitions a validated pattern to promoted.
func (m *Manager) PromotePattern(name string) bool {
	p, ok := m.patterns[strings.ToLower(name)]
	if !ok || p.Status != models.PatternValidated {
		return false
	}
	p.Status = models.PatternPromoted
	return true
}

// DeprecatePattern moves any pattern to deprecated.
func (m *Manager) DeprecatePattern(name string) bool {
	p, ok := m.patterns[strings.ToLower(name)]
	if !ok {
		return false
	}
	p.Status = models.PatternDeprecated
	return true
}

// AddEvidence attaches a new memory to an existing pattern, bumps its
// occurrence count, and recomputes confidence from the same weighted
// formula DetectPatterns uses rather than an arbitrary increment: the
// recency term folds in mem's relevance and the evidence-ratio term
// reflects the new occurrence count, while the corpus-derived normalized
// term stays fixed at its value from the detection pass (AddEvidence
// sees one memory, not the whole corpus).
func (m *Manager) AddEvidence(name, memID string, mem models.Memory) {
	key := strings.ToLower(name)
	p, ok := m.patterns[key]
	if !ok {
		return
	}
	for _, id := range p.Evidence {
		if id == memID {
			return
		}
	}
	p.Evidence = append(p.Evidence, memID)
	p.OccurrenceCount = len(p.Evidence)
	p.LastSeen = m.now().UTC()

	st, ok := m.scores[key]
	if !ok {
		st = &scoreState{}
		m.scores[key] = st
	}
	st.recencySum += m.lifecycle.Relevance(mem)
	st.recencyCount++
	p.Confidence = m.confidenceFrom(st, p.OccurrenceCount)

	if p.Status == models.PatternCandidate && p.Confidence >= m.cfg.MinConfidenceValidation {
		p.Status = models.PatternValidated
	}
}

// FindMatchingPatterns extracts terms from memory and scores every
// non-deprecated pattern by tag-overlap against those terms.
func (m *Manager) FindMatchingPatterns(memory models.Memory, minTermOverlap float64) []struct {
	Pattern *models.Pattern
	Score   float64
} {
	memTerms := make(map[string]bool)
	for _, t := range terms(memory) {
		memTerms[t] = true
	}

	var out []struct {
		Pattern *models.Pattern
		Score   float64
	}
	for _, p := range m.patterns {
		if p.Status == models.PatternDeprecated || len(p.Tags) == 0 {
			continue
		}
		hits := 0
		for _, tag := range p.Tags {
			if memTerms[strings.ToLower(tag)] {
				hits++
			}
		}
		score := float64(hits) / float64(len(p.Tags))
		if score >= minTermOverlap {
			out = append(out, struct {
				Pattern *models.Pattern
				Score   float64
			}{p, score})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// ListPatterns returns patterns optionally filtered by status/type,
// sorted by confidence desc (ties in name order).
func (m *Manager) ListPatterns(status models.PatternStatus, patternType models.PatternType) []*models.Pattern {
	var out []*models.Pattern
	for _, p := range m.patterns {
		if status != "" && p.Status != status {
			continue
		}
		if patternType != "" && p.Type != patternType {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

func jaccardSets(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for id := range a {
		if b[id] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func cloneSet(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
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
