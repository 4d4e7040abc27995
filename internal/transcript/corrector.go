package transcript

import (
	"strings"
	"unicode"
)

// Corrector rewrites decoded utterance text so that mangled vocabulary
// terms appear in their canonical spelling. It tries two-word spans first,
// then single words, so "any desk" can become "AnyDesk" before "any" or
// "desk" are considered alone.
//
// Safe for concurrent use.
type Corrector struct {
	matcher    *Matcher
	vocabulary []string
}

// NewCorrector creates a corrector over the given vocabulary. A nil or
// empty vocabulary yields a corrector that returns text unchanged.
func NewCorrector(vocabulary []string, opts ...MatcherOption) *Corrector {
	return &Corrector{
		matcher:    NewMatcher(opts...),
		vocabulary: vocabulary,
	}
}

// Correct returns text with vocabulary-aligned words replaced. Leading and
// trailing punctuation on each word is preserved.
func (c *Corrector) Correct(text string) string {
	if len(c.vocabulary) == 0 || strings.TrimSpace(text) == "" {
		return text
	}

	words := strings.Fields(text)
	out := make([]string, 0, len(words))

	for i := 0; i < len(words); i++ {
		// Two-word span first.
		if i+1 < len(words) {
			lead1, core1, _ := splitPunct(words[i])
			_, core2, trail2 := splitPunct(words[i+1])
			if core1 != "" && core2 != "" {
				span := core1 + " " + core2
				if term, _, ok := c.matcher.Match(span, c.vocabulary); ok {
					out = append(out, lead1+term+trail2)
					i++
					continue
				}
			}
		}

		lead, core, trail := splitPunct(words[i])
		if core == "" {
			out = append(out, words[i])
			continue
		}
		if term, _, ok := c.matcher.Match(core, c.vocabulary); ok {
			out = append(out, lead+term+trail)
		} else {
			out = append(out, words[i])
		}
	}
	return strings.Join(out, " ")
}

// splitPunct splits a token into leading punctuation, the core word, and
// trailing punctuation.
func splitPunct(tok string) (lead, core, trail string) {
	start := 0
	for start < len(tok) && isPunct(rune(tok[start])) {
		start++
	}
	end := len(tok)
	for end > start && isPunct(rune(tok[end-1])) {
		end--
	}
	return tok[:start], tok[start:end], tok[end:]
}

func isPunct(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}
