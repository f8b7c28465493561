// Package phonetic matches misrecognized words against a known vocabulary
// using Double Metaphone phonetic encoding ranked by Jaro-Winkler string
// similarity.
//
// Speech decoders routinely garble proper nouns and project jargon that were
// never in their training data ("Kubernetes" becomes "cooper netties"). The
// matcher recovers such terms in two passes:
//
//  1. Phonetic filtering: Double Metaphone codes are computed for the input
//     and for each vocabulary term. A term whose code set overlaps with the
//     input's becomes a candidate.
//  2. Jaro-Winkler ranking: among candidates, the term with the highest
//     similarity to the original string wins, provided it clears the
//     phonetic threshold. When no phonetic candidate exists, a fallback pass
//     accepts a term on string similarity alone at a stricter threshold.
//
// Multi-word terms ("pull request", "Eldrinax Tower") are supported; the
// matcher also scores token pairs so a single spoken word can align with one
// word of a longer term.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically matched term to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic candidate exists and the matcher falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher resolves words to vocabulary terms by pronunciation similarity.
// It is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a Matcher configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match finds the vocabulary term most phonetically similar to word.
//
// word may be a single word or a space-separated phrase. When matched is
// false, corrected equals word unchanged and confidence is 0.
func (m *Matcher) Match(word string, vocabulary []string) (corrected string, confidence float64, matched bool) {
	if len(vocabulary) == 0 || strings.TrimSpace(word) == "" {
		return word, 0, false
	}

	wordLower := strings.ToLower(strings.TrimSpace(word))
	wordTokens := strings.Fields(wordLower)
	inputCodes := codesForTokens(wordTokens)

	type candidate struct {
		term     string
		score    float64
		phonetic bool
	}
	var best candidate

	for _, term := range vocabulary {
		termLower := strings.ToLower(strings.TrimSpace(term))
		if termLower == "" {
			continue
		}
		if termLower == wordLower {
			// Already correct. Report no match so the caller leaves the
			// original casing alone.
			return word, 0, false
		}
		termTokens := strings.Fields(termLower)

		phoneticHit := codesOverlap(inputCodes, codesForTokens(termTokens))
		score := similarity(wordTokens, termTokens, wordLower, termLower)

		if phoneticHit {
			if score >= m.phoneticThreshold {
				if !best.phonetic || score > best.score {
					best = candidate{term: term, score: score, phonetic: true}
				}
			}
		} else if !best.phonetic {
			if score >= m.fuzzyThreshold && score > best.score {
				best = candidate{term: term, score: score, phonetic: false}
			}
		}
	}

	if best.term != "" {
		return best.term, best.score, true
	}
	return word, 0, false
}

// codesForTokens returns the union of the Double Metaphone codes of the
// tokens. Empty codes are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// similarity computes the highest Jaro-Winkler score between the input and
// the term: full strings, space-stripped strings, and the best token pair.
// The space-stripped pass handles a term heard as two words ("git hub" vs
// "github").
func similarity(inputTokens, termTokens []string, inputFull, termFull string) float64 {
	score := matchr.JaroWinkler(inputFull, termFull, false)

	if len(inputTokens) > 1 || len(termTokens) > 1 {
		joined1 := strings.Join(inputTokens, "")
		joined2 := strings.Join(termTokens, "")
		if s := matchr.JaroWinkler(joined1, joined2, false); s > score {
			score = s
		}
	}

	for _, it := range inputTokens {
		for _, tt := range termTokens {
			if s := matchr.JaroWinkler(it, tt, false); s > score {
				score = s
			}
		}
	}
	return score
}
