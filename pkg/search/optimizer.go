package search

import (
	"sync"
	"time"

	"github.com/fnbdesign/git-notes-memory/internal/config"
)

// SearchOptimizer composes the expander, reranker, and cache behind one
// accessor, matching the shape RecallService depends on.
type SearchOptimizer struct {
	Expander *QueryExpander
	Reranker *ResultReranker
	Cache    *SearchCache
}

func NewSearchOptimizer(cfg config.Config, domain map[string][]string, maxExpansions int, weights Weights) *SearchOptimizer {
	return &SearchOptimizer{
		Expander: NewQueryExpander(domain, maxExpansions),
		Reranker: NewResultReranker(weights, cfg.HalfLifeDays),
		Cache:    NewSearchCache(cfg.CacheMaxSize, time.Duration(cfg.CacheTTLSeconds*float64(time.Second))),
	}
}

// Per §9's singleton design note: a lazily-constructed per-process
// instance behind a thin accessor that supports Reset for tests, never a
// globally captured mutable value tests can't intercept.
var (
	defaultMu       sync.Mutex
	defaultInstance *SearchOptimizer
)

// Default lazily constructs (once) and returns the process-wide optimizer.
func Default(cfg config.Config, domain map[string][]string, maxExpansions int, weights Weights) *SearchOptimizer {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultInstance == nil {
		defaultInstance = NewSearchOptimizer(cfg, domain, maxExpansions, weights)
	}
	return defaultInstance
}

// ResetDefault clears the singleton so tests can rebuild it from scratch.
func ResetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultInstance = nil
}
