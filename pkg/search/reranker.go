package search

import (
	"sort"

	"github.com/fnbdesign/git-notes-memory/internal/models"
	"github.com/fnbdesign/git-notes-memory/pkg/lifecycle"
)

// Weights holds the four rank-factor coefficients. The spec's defaults
// are all 0.25 (ranking-weight defaults are not explicit in the source;
// see DESIGN.md).
type Weights struct {
	Recency   float64
	Namespace float64
	Spec      float64
	Tags      float64
}

// DefaultWeights is the sane-default weighting.
var DefaultWeights = Weights{Recency: 0.25, Namespace: 0.25, Spec: 0.25, Tags: 0.25}

// namespacePriority is the fixed priority table.
var namespacePriority = map[string]float64{
	"decisions": 1.0,
	"learnings": 0.9,
	"blockers":  0.8,
	"progress":  0.7,
}

func namespaceScore(ns, targetNamespace string) float64 {
	score, ok := namespacePriority[ns]
	if !ok {
		score = 0.5
	}
	if targetNamespace != "" && ns == targetNamespace {
		score = 1.0
	}
	return score
}

// RankFactors is the per-result breakdown that produced BoostedScore.
type RankFactors struct {
	Recency   float64
	Namespace float64
	Spec      float64
	Tags      float64
}

// RankedResult is a raw result after reranking.
type RankedResult struct {
	Memory        models.Memory
	OriginalScore float64
	BoostedScore  float64
	RankFactors   RankFactors
}

// ResultReranker boosts raw vector/text results by recency, namespace
// priority, spec match, and tag overlap.
type ResultReranker struct {
	weights      Weights
	halfLifeDays float64
}

// NewResultReranker builds a reranker with the given weights and the
// half-life used for the recency factor (shared with LifecycleManager's
// relevance scoring).
func NewResultReranker(weights Weights, halfLifeDays float64) *ResultReranker {
	return &ResultReranker{weights: weights, halfLifeDays: halfLifeDays}
}

// RawResult is an unranked hit from IndexService.SearchVector.
type RawResult struct {
	Memory   models.Memory
	Distance float64
}

// Rerank sorts raw results ascending by boosted_score (lower is better).
// targetTags/targetSpec/targetNamespace may be empty to disable that
// factor's boost (it still contributes its base score).
func (r *ResultReranker) Rerank(raw []RawResult, ageDaysOf func(models.Memory) float64, targetNamespace, targetSpec string, targetTags []string) []RankedResult {
	targetSet := make(map[string]bool, len(targetTags))
	for _, t := range targetTags {
		targetSet[t] = true
	}

	out := make([]RankedResult, 0, len(raw))
	for _, res := range raw {
		age := ageDaysOf(res.Memory)
		recency := lifecycle.CalculateTemporalDecay(age, r.halfLifeDays)
		ns := namespaceScore(res.Memory.Namespace, targetNamespace)
		spec := 0.0
		if targetSpec != "" && res.Memory.Spec == targetSpec {
			spec = 1.0
		}
		tags := jaccard(res.Memory.Tags, targetSet)

		boost := r.weights.Recency*recency + r.weights.Namespace*ns + r.weights.Spec*spec + r.weights.Tags*tags
		boosted := res.Distance - boost
		if boosted < 0 {
			boosted = 0
		}

		out = append(out, RankedResult{
			Memory:        res.Memory,
			OriginalScore: res.Distance,
			BoostedScore:  boosted,
			RankFactors:   RankFactors{Recency: recency, Namespace: ns, Spec: spec, Tags: tags},
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].BoostedScore < out[j].BoostedScore })
	return out
}

func jaccard(tags []string, targetSet map[string]bool) float64 {
	if len(tags) == 0 || len(targetSet) == 0 {
		return 0
	}
	seen := make(map[string]bool, len(tags))
	intersection := 0
	for _, t := range tags {
		if seen[t] {
			continue
		}
		seen[t] = true
		if targetSet[t] {
			intersection++
		}
	}
	union := len(seen)
	for t := range targetSet {
		if !seen[t] {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
