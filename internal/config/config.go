// Package config builds the single immutable configuration record every
// component is constructed with. There is no mutable process-wide bag:
// Load is called once at process start and the result is passed down.
package config

import (
	"os"
	"strconv"
)

// Config is passed by value into every component constructor.
type Config struct {
	HalfLifeDays           float64
	ArchiveAgeDays         float64
	TombstoneAgeDays       float64
	GCAgeDays              float64
	MinRelevanceForActive  float64
	CompressionLevel       int
	LockTimeoutSeconds     float64
	CacheMaxSize           int
	CacheTTLSeconds        float64
	MaxContentBytes        int
	MaxSummaryChars        int
	TokensPerChar          float64
	EmbeddingDimension     int
	NotesRef               string
	IndexPath              string
	MinOccurrencesCandidate  int
	MinOccurrencesPromotion  int
	MinConfidenceValidation  float64
	PatternClusterJaccard    float64
	MaxQueryExpansions       int
}

// Default returns the spec's documented defaults.
func Default() Config {
	return Config{
		HalfLifeDays:            30,
		ArchiveAgeDays:          90,
		TombstoneAgeDays:        180,
		GCAgeDays:               365,
		MinRelevanceForActive:   0.1,
		CompressionLevel:        6,
		LockTimeoutSeconds:      5,
		CacheMaxSize:            256,
		CacheTTLSeconds:         300,
		MaxContentBytes:         64 * 1024,
		MaxSummaryChars:         280,
		TokensPerChar:           0.25,
		EmbeddingDimension:      384,
		NotesRef:                "refs/notes/memory",
		IndexPath:               "memory_index.db",
		MinOccurrencesCandidate: 3,
		MinOccurrencesPromotion: 5,
		MinConfidenceValidation: 0.5,
		PatternClusterJaccard:   0.3,
		MaxQueryExpansions:      10,
	}
}

// Load overlays Default with whatever of the named environment variables
// is set, per the external-interfaces environment variable list.
func Load() Config {
	c := Default()
	floatEnv("HALF_LIFE_DAYS", &c.HalfLifeDays)
	floatEnv("ARCHIVE_AGE_DAYS", &c.ArchiveAgeDays)
	floatEnv("TOMBSTONE_AGE_DAYS", &c.TombstoneAgeDays)
	floatEnv("GC_AGE_DAYS", &c.GCAgeDays)
	floatEnv("MIN_RELEVANCE_FOR_ACTIVE", &c.MinRelevanceForActive)
	intEnv("COMPRESSION_LEVEL", &c.CompressionLevel)
	floatEnv("LOCK_TIMEOUT_SECONDS", &c.LockTimeoutSeconds)
	intEnv("CACHE_MAX_SIZE", &c.CacheMaxSize)
	floatEnv("CACHE_TTL_SECONDS", &c.CacheTTLSeconds)
	intEnv("MAX_CONTENT_BYTES", &c.MaxContentBytes)
	intEnv("MAX_SUMMARY_CHARS", &c.MaxSummaryChars)
	floatEnv("TOKENS_PER_CHAR", &c.TokensPerChar)
	intEnv("MAX_QUERY_EXPANSIONS", &c.MaxQueryExpansions)
	if v := os.Getenv("NOTES_REF"); v != "" {
		c.NotesRef = v
	}
	if v := os.Getenv("INDEX_PATH"); v != "" {
		c.IndexPath = v
	}
	return c
}

func floatEnv(name string, dst *float64) {
	if v := os.Getenv(name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func intEnv(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Namespaces is the closed set a Memory's namespace must belong to.
var Namespaces = []string{"inception", "decisions", "learnings", "progress", "blockers", "patterns"}

// ValidNamespace reports whether ns is one of Namespaces.
func ValidNamespace(ns string) bool {
	for _, n := range Namespaces {
		if n == ns {
			return true
		}
	}
	return false
}
