package orchestrator

import (
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"
)

// fuzzyThreshold is the minimum Jaro-Winkler score for a query token to count
// as a capability hit. Exact substring containment always counts.
const fuzzyThreshold = 0.88

// ruleMatcher scores agents by keyword overlap between the query and their
// capability lists. It backs the orchestrator when no LLM is available.
type ruleMatcher struct{}

func newRuleMatcher() *ruleMatcher { return &ruleMatcher{} }

// match picks the enabled agent whose capabilities best cover the query,
// defaulting to [DefaultAgent].
func (r *ruleMatcher) match(query string, agents []AgentInfo) Decision {
	tokens := tokenize(query)

	best := Decision{
		SelectedAgent: DefaultAgent,
		Confidence:    0.5,
		Reasoning:     "no capability matched, defaulting to chat",
		Parameters:    map[string]any{},
	}
	bestScore := 0

	lowered := strings.ToLower(query)
	for _, a := range agents {
		if !a.Enabled || a.Name == DefaultAgent {
			continue
		}
		score, hit := scoreAgent(lowered, tokens, a)
		if score > bestScore {
			bestScore = score
			best = Decision{
				SelectedAgent: a.Name,
				Confidence:    0.9,
				Reasoning:     fmt.Sprintf("capability %q matched the query", hit),
				Parameters:    map[string]any{},
			}
		}
	}
	return best
}

// scoreAgent counts capability hits; the first hit is reported for reasoning.
func scoreAgent(query string, tokens []string, a AgentInfo) (int, string) {
	score := 0
	firstHit := ""
	for _, capability := range a.Capabilities {
		c := strings.ToLower(capability)
		if c == "" {
			continue
		}
		if strings.Contains(query, c) || fuzzyHit(tokens, c) {
			score++
			if firstHit == "" {
				firstHit = capability
			}
		}
	}
	return score, firstHit
}

// fuzzyHit tolerates ASR misspellings via Jaro-Winkler token similarity.
func fuzzyHit(tokens []string, capability string) bool {
	for _, tok := range tokens {
		if matchr.JaroWinkler(tok, capability, false) >= fuzzyThreshold {
			return true
		}
	}
	return false
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '?' || r == '!' || r == ';'
	})
}
