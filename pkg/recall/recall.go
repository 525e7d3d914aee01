// Package recall implements RecallService: the read API over IndexService
// with hydration levels and spec-context aggregation.
package recall

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/fnbdesign/git-notes-memory/internal/config"
	"github.com/fnbdesign/git-notes-memory/internal/index"
	"github.com/fnbdesign/git-notes-memory/internal/memerr"
	"github.com/fnbdesign/git-notes-memory/internal/models"
	"github.com/fnbdesign/git-notes-memory/pkg/embedding"
	"github.com/fnbdesign/git-notes-memory/pkg/notestore"
	"github.com/fnbdesign/git-notes-memory/pkg/search"
)

// Service is the RecallService.
type Service struct {
	idx       *index.Service
	embed     embedding.Service
	store     notestore.NoteStore
	cfg       config.Config
	log       zerolog.Logger
	optimizer *search.SearchOptimizer
}

// New wires a SearchOptimizer (expansion, cache, and rerank) into every
// Search call by default, matching spec §2's "recall (G) queries (D)
// possibly via (H)" composition; WithOptimizer swaps in a custom domain
// phrase table for callers that have one.
func New(idx *index.Service, embed embedding.Service, store notestore.NoteStore, cfg config.Config, log zerolog.Logger) *Service {
	return &Service{
		idx:       idx,
		embed:     embed,
		store:     store,
		cfg:       cfg,
		log:       log,
		optimizer: search.NewSearchOptimizer(cfg, nil, cfg.MaxQueryExpansions, search.DefaultWeights),
	}
}

// WithOptimizer replaces the default optimizer, e.g. with one built from a
// domain-specific phrase table. Returns s for chaining off New.
func (s *Service) WithOptimizer(opt *search.SearchOptimizer) *Service {
	s.optimizer = opt
	return s
}

func similarity(distance float64) float64 { return 1 / (1 + distance) }

// memoryAgeDays is LifecycleManager.AgeDays's clamp-at-zero formula,
// written out here so Search needs no LifecycleManager instance.
func memoryAgeDays(mem models.Memory, now time.Time) float64 {
	if mem.Timestamp.IsZero() {
		return 0
	}
	d := now.UTC().Sub(mem.Timestamp.UTC()).Hours() / 24
	if d < 0 {
		return 0
	}
	return d
}

// filterSimilarity drops results below min, filtering in place.
func filterSimilarity(in []models.MemoryResult, min float64) []models.MemoryResult {
	out := in[:0]
	for _, r := range in {
		if r.Similarity >= min {
			out = append(out, r)
		}
	}
	return out
}

// Search expands query via the optimizer, checks its cache, embeds the
// original query text for the vector search (expansions feed reranking's
// tag overlap rather than the embedding itself, to avoid semantic drift),
// reranks by recency/namespace/spec/tags, and post-filters by
// minSimilarity. An empty query returns nil without contacting the
// embedder.
func (s *Service) Search(ctx context.Context, query string, k int, namespace, spec string, minSimilarity float64) ([]models.MemoryResult, error) {
	if query == "" {
		return nil, nil
	}

	sq := s.optimizer.Expander.Expand(query, map[string]string{"namespace": namespace, "spec": spec})
	cacheKey := sq.CacheKey()
	if cached, ok := s.optimizer.Cache.Get(cacheKey); ok {
		return filterSimilarity(cached, minSimilarity), nil
	}

	vec, err := s.embed.Embed(ctx, query)
	if err != nil {
		return nil, memerr.Wrap(memerr.CategoryEmbedding, "failed to embed query", "", err)
	}
	hits, err := s.idx.SearchVector(ctx, vec, k, index.Filters{Namespace: namespace, Spec: spec})
	if err != nil {
		return nil, err
	}

	raw := make([]search.RawResult, 0, len(hits))
	for _, h := range hits {
		raw = append(raw, search.RawResult{Memory: h.Memory, Distance: h.Distance})
	}
	now := time.Now()
	ranked := s.optimizer.Reranker.Rerank(raw, func(mem models.Memory) float64 {
		return memoryAgeDays(mem, now)
	}, namespace, spec, sq.ExpandedTerms)

	out := make([]models.MemoryResult, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, models.MemoryResult{Memory: r.Memory, Distance: r.OriginalScore, Similarity: similarity(r.BoostedScore)})
	}
	s.optimizer.Cache.Set(cacheKey, out)
	return filterSimilarity(out, minSimilarity), nil
}

// SearchText is a pass-through wrapper over IndexService.SearchText.
func (s *Service) SearchText(ctx context.Context, query string, limit int, namespace, spec string) ([]models.Memory, error) {
	return s.idx.SearchText(ctx, query, limit, index.Filters{Namespace: namespace, Spec: spec})
}

func (s *Service) Get(ctx context.Context, id string) (*models.Memory, error) {
	return s.idx.Get(ctx, id)
}

func (s *Service) GetBatch(ctx context.Context, ids []string) ([]models.Memory, error) {
	return s.idx.GetBatch(ctx, ids)
}

func (s *Service) GetByNamespace(ctx context.Context, ns, spec string, limit int) ([]models.Memory, error) {
	return s.idx.GetByNamespace(ctx, ns, spec, limit)
}

func (s *Service) GetBySpec(ctx context.Context, spec, ns string, limit int) ([]models.Memory, error) {
	return s.idx.GetBySpec(ctx, spec, ns, limit)
}

func (s *Service) ListRecent(ctx context.Context, limit int, namespace, spec string) ([]models.Memory, error) {
	return s.idx.ListRecent(ctx, limit, namespace, spec)
}

// Hydrate loads additional fields per level. Failures loading optional
// parts (commit metadata) degrade to empty fields; a required-part
// failure (the raw note blob itself, for FULL/FILES) surfaces a typed
// recall error.
func (s *Service) Hydrate(ctx context.Context, mem models.Memory, level models.HydrationLevel) (models.HydratedMemory, error) {
	h := models.HydratedMemory{Memory: mem}
	if level == models.HydrationSummary {
		return h, nil
	}

	raw, ok, err := s.store.ReadNote(ctx, s.cfg.NotesRef, mem.CommitSHA)
	if err != nil || !ok {
		return models.HydratedMemory{}, memerr.Wrap(memerr.CategoryRecall, "failed to load raw note for hydration", "", err)
	}
	h.RawNote = raw

	if meta, err := s.store.CommitMetadata(ctx, mem.CommitSHA); err == nil {
		h.Commit = &models.CommitInfo{SHA: meta.SHA, Author: meta.Author, Message: meta.Message}
	} else {
		s.log.Warn().Err(err).Str("commit", mem.CommitSHA).Msg("failed to hydrate commit metadata, degrading to empty")
	}

	if level == models.HydrationFiles {
		h.Files = make(map[string]string)
		// File paths changed by a commit are outside NoteStore's minimal
		// interface (it exposes read-at-path, not list-changed-paths);
		// callers that know which paths they want populate Files
		// themselves via ReadFileAtCommit. Left empty here by design.
	}

	return h, nil
}

// GetSpecContext aggregates every memory for spec, grouped by namespace,
// with a token-count estimate.
func (s *Service) GetSpecContext(ctx context.Context, spec string) (models.SpecContext, error) {
	memories, err := s.idx.GetBySpec(ctx, spec, "", 0)
	if err != nil {
		return models.SpecContext{}, err
	}
	byNS := make(map[string][]models.Memory)
	var chars int
	for _, m := range memories {
		byNS[m.Namespace] = append(byNS[m.Namespace], m)
		chars += len(m.Summary) + len(m.Content)
	}
	return models.SpecContext{
		Spec:            spec,
		ByNamespace:     byNS,
		EstimatedTokens: int(math.Ceil(float64(chars) * s.cfg.TokensPerChar)),
	}, nil
}

// RecallSimilar embeds memory.Summary+Content and searches for similar
// memories, optionally excluding the memory's own id.
func (s *Service) RecallSimilar(ctx context.Context, memory models.Memory, k int, excludeSelf bool) ([]models.MemoryResult, error) {
	text := memory.Summary
	if memory.Content != "" {
		text += " " + memory.Content
	}
	results, err := s.Search(ctx, text, k, "", "", 0)
	if err != nil {
		return nil, err
	}
	if !excludeSelf {
		return results, nil
	}
	out := results[:0]
	for _, r := range results {
		if r.Memory.ID != memory.ID {
			out = append(out, r)
		}
	}
	return out, nil
}
