// Package search implements SearchOptimizer's three sub-parts: the
// QueryExpander, the ResultReranker, and the SearchCache.
package search

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/coregx/ahocorasick"
	trie "github.com/derekparker/trie/v3"

	"github.com/fnbdesign/git-notes-memory/pkg/tokenize"
)

// SearchQuery is the expander's output.
type SearchQuery struct {
	Original      string
	ExpandedTerms []string
	Filters       map[string]string
}

// CacheKey is the 16-hex-char prefix of the SHA-256 of a canonical
// rendering of (original, sorted expansions, sorted filters).
func (q SearchQuery) CacheKey() string {
	var b strings.Builder
	b.WriteString(q.Original)
	b.WriteByte('\x00')

	expanded := append([]string(nil), q.ExpandedTerms...)
	sort.Strings(expanded)
	b.WriteString(strings.Join(expanded, ","))
	b.WriteByte('\x00')

	keys := make([]string, 0, len(q.Filters))
	for k := range q.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(q.Filters[k])
		b.WriteByte(';')
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:16]
}

// QueryExpander tokenizes a query and attaches synonyms from a fixed
// table, optionally extended with domain-specific multi-word expansions
// matched by an Aho-Corasick automaton (the same matching engine the
// teacher uses for entity scanning, repurposed here for phrase lookup).
type QueryExpander struct {
	synonyms      *trie.Trie[[]string]
	domainMatcher *ahocorasick.Automaton
	domainPhrases []string
	domainIndex   map[string][]string
	maxExpansions int
}

// defaultSynonyms is the fixed synonym table; NewQueryExpander extends it
// with any domain table supplied by the caller.
var defaultSynonyms = map[string][]string{
	"db":       {"database", "storage"},
	"database": {"db", "storage", "sql"},
	"ui":       {"frontend", "interface", "ux"},
	"api":      {"endpoint", "interface", "service"},
	"bug":      {"defect", "issue", "error"},
	"fix":      {"resolve", "patch", "repair"},
	"perf":     {"performance", "latency", "speed"},
	"auth":     {"authentication", "authorization", "login"},
}

// NewQueryExpander builds an expander. domain maps a multi-word phrase
// (e.g. "frontend") to its expansion set (e.g. {react, vue, ui}); it is
// matched against the whole query text, not per-token.
func NewQueryExpander(domain map[string][]string, maxExpansions int) *QueryExpander {
	t := trie.New[[]string]()
	for k, v := range defaultSynonyms {
		t.Add(k, v)
	}

	var phrases []string
	for phrase := range domain {
		phrases = append(phrases, phrase)
	}
	var matcher *ahocorasick.Automaton
	if len(phrases) > 0 {
		m, err := ahocorasick.NewBuilder().
			AddStrings(phrases).
			SetMatchKind(ahocorasick.LeftmostLongest).
			SetPrefilter(true).
			Build()
		if err == nil {
			matcher = m
		}
	}

	return &QueryExpander{
		synonyms:      t,
		domainMatcher: matcher,
		domainPhrases: phrases,
		domainIndex:   domain,
		maxExpansions: maxExpansions,
	}
}

// Expand tokenizes q, looks up per-token synonyms plus any domain phrase
// hits, caps the total at maxExpansions*2, and returns a SearchQuery.
func (e *QueryExpander) Expand(q string, filters map[string]string) SearchQuery {
	tokens := tokenize.Words(q, 1)

	seen := make(map[string]bool, len(tokens))
	var expanded []string
	add := func(term string) {
		if seen[term] {
			return
		}
		seen[term] = true
		expanded = append(expanded, term)
	}
	for _, t := range tokens {
		add(t)
	}

	cap := e.maxExpansions * 2
	for _, t := range tokens {
		if len(expanded) >= cap {
			break
		}
		if syns, ok := e.synonyms.Find(t); ok {
			for _, s := range syns {
				if len(expanded) >= cap {
					break
				}
				add(s)
			}
		}
	}

	if e.domainMatcher != nil {
		canonical := strings.ToLower(q)
		for _, m := range e.domainMatcher.FindAllOverlapping([]byte(canonical)) {
			if len(expanded) >= cap {
				break
			}
			if m.PatternID < 0 || m.PatternID >= len(e.domainPhrases) {
				continue
			}
			phrase := e.domainPhrases[m.PatternID]
			for _, s := range e.domainIndex[phrase] {
				if len(expanded) >= cap {
					break
				}
				add(s)
			}
		}
	}

	return SearchQuery{Original: q, ExpandedTerms: expanded, Filters: filters}
}
