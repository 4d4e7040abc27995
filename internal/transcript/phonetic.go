// Package transcript post-processes decoded utterance text before it
// reaches the dialogue layer: domain vocabulary the speech model mangles
// (product names, extensions, jargon) is re-aligned phonetically.
package transcript

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Matcher aligns a spoken word (or short phrase) against a fixed vocabulary
// using Double Metaphone codes filtered by Jaro-Winkler similarity.
// Read-only after construction, safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// MatcherOption configures a Matcher.
type MatcherOption func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score accepted for a
// phonetically-overlapping vocabulary term. Default 0.70.
func WithPhoneticThreshold(v float64) MatcherOption {
	return func(m *Matcher) { m.phoneticThreshold = v }
}

// WithFuzzyThreshold sets the minimum score for the pure-similarity
// fallback used when no phonetic overlap exists. Default 0.85.
func WithFuzzyThreshold(v float64) MatcherOption {
	return func(m *Matcher) { m.fuzzyThreshold = v }
}

// NewMatcher creates a Matcher with default thresholds.
func NewMatcher(opts ...MatcherOption) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match returns the vocabulary term most phonetically similar to word, its
// similarity score, and whether any term cleared the thresholds. When
// matched is false, corrected equals word unchanged.
func (m *Matcher) Match(word string, vocabulary []string) (corrected string, score float64, matched bool) {
	wordLower := strings.ToLower(strings.TrimSpace(word))
	if wordLower == "" || len(vocabulary) == 0 {
		return word, 0, false
	}
	wordCodes := metaphoneCodes(wordLower)

	var (
		bestTerm     string
		bestScore    float64
		bestPhonetic bool
	)
	for _, term := range vocabulary {
		termLower := strings.ToLower(strings.TrimSpace(term))
		if termLower == "" {
			continue
		}
		jw := similarity(wordLower, termLower)
		phonetic := codesOverlap(wordCodes, metaphoneCodes(termLower))

		switch {
		case phonetic && jw >= m.phoneticThreshold:
			if !bestPhonetic || jw > bestScore {
				bestTerm, bestScore, bestPhonetic = term, jw, true
			}
		case !phonetic && !bestPhonetic && jw >= m.fuzzyThreshold && jw > bestScore:
			bestTerm, bestScore = term, jw
		}
	}

	if bestTerm == "" {
		return word, 0, false
	}
	return bestTerm, bestScore, true
}

// metaphoneCodes returns the union of Double Metaphone codes over the
// whitespace-separated tokens of s.
func metaphoneCodes(s string) map[string]struct{} {
	codes := make(map[string]struct{}, 4)
	for _, tok := range strings.Fields(s) {
		p, alt := matchr.DoubleMetaphone(tok)
		if p != "" {
			codes[p] = struct{}{}
		}
		if alt != "" {
			codes[alt] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}

// similarity is the best Jaro-Winkler score across full-string and
// space-stripped comparisons, which handles one spoken phrase mapping onto
// one compound vocabulary term ("any desk" vs "AnyDesk").
func similarity(a, b string) float64 {
	score := matchr.JaroWinkler(a, b, false)
	aj := strings.ReplaceAll(a, " ", "")
	bj := strings.ReplaceAll(b, " ", "")
	if aj != a || bj != b {
		if s := matchr.JaroWinkler(aj, bj, false); s > score {
			score = s
		}
	}
	return score
}
