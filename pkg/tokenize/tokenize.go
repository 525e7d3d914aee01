// Package tokenize provides the lowercase, non-alphanumeric-boundary
// tokenization shared by QueryExpander and PatternManager term extraction.
// Adapted from the teacher's Aho-Corasick canonicalizer
// (pkg/implicit-matcher/dictionary.go): here there is no multiword-joiner
// preservation, since neither consumer needs to keep "Jean-Luc" together —
// every non-alphanumeric rune is a hard boundary.
package tokenize

import (
	"strings"
	"unicode"

	"github.com/orsinium-labs/stopwords"
)

var english = stopwords.MustGet("en")

// Words splits s on non-alphanumeric boundaries, lowercases, and drops
// tokens of length <= minLen.
func Words(s string, minLen int) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > minLen {
			tokens = append(tokens, cur.String())
		}
		cur.Reset()
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(unicode.ToLower(r))
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// ContentWords is Words with stop-word filtering, for term extraction
// (PatternManager step 1): tokens shorter than 2 chars or in the fixed
// stop-word set are dropped.
func ContentWords(s string) []string {
	return ContentWordsInto(make([]string, 0, 8), s)
}

// ContentWordsInto is ContentWords appending into a caller-supplied buffer,
// so a hot caller can reuse a pooled slice instead of allocating per call.
func ContentWordsInto(dst []string, s string) []string {
	for _, w := range Words(s, 1) {
		if english.Contains(w) {
			continue
		}
		dst = append(dst, w)
	}
	return dst
}
