// Package phonetic implements the transcript.PhoneticMatcher interface using
// Double Metaphone phonetic encoding combined with Jaro-Winkler string
// similarity for ranked candidate selection.
//
// The algorithm proceeds in two stages:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     each token of the input phrase and, once at construction, for each
//     token of every hotword. If any input code overlaps with any hotword
//     code, the hotword becomes a phonetic candidate.
//
//  2. Jaro-Winkler ranking: among phonetic candidates, the hotword with the
//     highest Jaro-Winkler similarity (computed on the original strings,
//     case-insensitive) is selected, provided its score exceeds the
//     configurable phonetic threshold.
//
//     When no phonetic candidate clears its threshold, a secondary pass
//     accepts a pure string-similarity match against a higher fuzzy
//     threshold (default 0.85).
//
// Similarity is scored on the whole phrase: the full strings are compared
// and, for multi-token inputs or hotwords, the space-stripped concatenations
// as well. Individual token pairs are never scored; a shared filler token
// ("to", "of") would let an unrelated window score a perfect match.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched hotword to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic candidate is found and the matcher falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// entry is one hotword with its precomputed comparison data.
type entry struct {
	// name is the canonical spelling, returned on a match.
	name string

	// lower and tokens are the case-folded forms used for scoring.
	lower  string
	tokens []string

	// codes is the union of Double Metaphone codes across tokens.
	codes map[string]struct{}
}

// Matcher resolves phrases against a fixed hotword list. It implements
// transcript.PhoneticMatcher. All methods are safe for concurrent use; the
// Matcher is read-only after construction.
type Matcher struct {
	entries           []entry
	maxWords          int
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Matcher] for the given hotwords. Blank hotwords are
// skipped. Default thresholds are 0.70 for phonetic matches and 0.85 for
// fuzzy fallback matches.
func New(hotwords []string, opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}

	for _, hw := range hotwords {
		lower := strings.ToLower(strings.TrimSpace(hw))
		if lower == "" {
			continue
		}
		tokens := strings.Fields(lower)
		m.entries = append(m.entries, entry{
			name:   strings.TrimSpace(hw),
			lower:  lower,
			tokens: tokens,
			codes:  codesForTokens(tokens),
		})
		if len(tokens) > m.maxWords {
			m.maxWords = len(tokens)
		}
	}
	return m
}

// MaxWords reports the token count of the longest hotword, zero when the
// list is empty.
func (m *Matcher) MaxWords() int { return m.maxWords }

// Match attempts to find the hotword most phonetically similar to phrase.
//
// phrase may be a single token or a space-separated n-gram. Candidates that
// share a Double Metaphone code with the input are ranked against the
// phonetic threshold; the rest against the stricter fuzzy threshold. A
// phonetic candidate always beats a fuzzy one regardless of score.
//
// Return values follow the transcript.PhoneticMatcher contract: when matched
// is false, corrected equals phrase unchanged and confidence is 0.
func (m *Matcher) Match(phrase string) (corrected string, confidence float64, matched bool) {
	if len(m.entries) == 0 || strings.TrimSpace(phrase) == "" {
		return phrase, 0, false
	}

	phraseLower := strings.ToLower(strings.TrimSpace(phrase))
	phraseTokens := strings.Fields(phraseLower)
	inputCodes := codesForTokens(phraseTokens)

	type candidate struct {
		name     string
		score    float64
		phonetic bool
	}

	var best candidate

	for _, e := range m.entries {
		phoneticMatch := codesOverlap(inputCodes, e.codes)
		score := phraseScore(phraseTokens, e.tokens, phraseLower, e.lower)

		if phoneticMatch {
			if score >= m.phoneticThreshold {
				if !best.phonetic || score > best.score {
					best = candidate{name: e.name, score: score, phonetic: true}
				}
			}
		} else if !best.phonetic {
			if score >= m.fuzzyThreshold && score > best.score {
				best = candidate{name: e.name, score: score, phonetic: false}
			}
		}
	}

	if best.name != "" {
		return best.name, best.score, true
	}
	return phrase, 0, false
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes (produced when a token has no usable phonemes)
// are excluded.
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

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	// Iterate over the smaller set.
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

// phraseScore computes the Jaro-Winkler similarity between the input phrase
// and a hotword. The full strings are compared; when either side has more
// than one token, the space-stripped concatenations are compared too and the
// higher score wins. That handles word boundary mismatches such as
// "alexander platz" against "Alexanderplatz".
func phraseScore(inputTokens, hotwordTokens []string, inputFull, hotwordFull string) float64 {
	score := matchr.JaroWinkler(inputFull, hotwordFull, false)

	if len(inputTokens) > 1 || len(hotwordTokens) > 1 {
		concatIn := strings.Join(inputTokens, "")
		concatHW := strings.Join(hotwordTokens, "")
		if s := matchr.JaroWinkler(concatIn, concatHW, false); s > score {
			score = s
		}
	}

	return score
}
