package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fnbdesign/git-notes-memory/internal/models"
)

func TestSearchCacheGetSetRoundTrip(t *testing.T) {
	c := NewSearchCache(2, time.Minute)
	results := []models.MemoryResult{{Memory: models.Memory{ID: "a"}}}

	c.Set("k1", results)
	got, ok := c.Get("k1")
	require.True(t, ok)
	assert.Equal(t, results, got)
}

func TestSearchCacheEvictsLRU(t *testing.T) {
	c := NewSearchCache(2, time.Minute)
	c.Set("a", nil)
	c.Set("b", nil)
	c.Set("c", nil) // evicts "a"

	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)
}

func TestSearchCacheExpires(t *testing.T) {
	c := NewSearchCache(2, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }
	c.Set("k", []models.MemoryResult{})

	c.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestSearchCacheInvalidate(t *testing.T) {
	c := NewSearchCache(10, time.Minute)
	c.Set("ns:decisions:foo", nil)
	c.Set("ns:decisions:bar", nil)
	c.Set("ns:learnings:baz", nil)

	removed := c.Invalidate("decisions")
	assert.Equal(t, 2, removed)
	stats := c.Stats()
	assert.Equal(t, 1, stats.Size)
}

func TestQueryExpanderCacheKeyDeterministic(t *testing.T) {
	e := NewQueryExpander(map[string][]string{"frontend": {"react", "vue", "ui"}}, 10)
	q1 := e.Expand("database bug", nil)
	q2 := e.Expand("database bug", nil)
	assert.Equal(t, q1.CacheKey(), q2.CacheKey())
	assert.Len(t, q1.CacheKey(), 16)
}

func TestResultRerankerOrdersByBoostedScore(t *testing.T) {
	r := NewResultReranker(DefaultWeights, 30)
	raw := []RawResult{
		{Memory: models.Memory{ID: "a", Namespace: "decisions", Spec: "proj", Tags: []string{"db"}}, Distance: 0.30},
		{Memory: models.Memory{ID: "b", Namespace: "progress", Spec: "other", Tags: nil}, Distance: 0.28},
	}
	ranked := r.Rerank(raw, func(models.Memory) float64 { return 0 }, "decisions", "proj", []string{"db"})
	require.Len(t, ranked, 2)
	assert.Equal(t, "a", ranked[0].Memory.ID)
}
