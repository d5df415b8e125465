package transcript

import (
	"context"
	"sort"
	"strings"

	"github.com/kiwivoice/kiwi/internal/transcript/llmcorrect"
	"github.com/kiwivoice/kiwi/pkg/provider/asr"
)

const defaultLLMConfidenceThreshold = 0.5

// PipelineOption is a functional option for configuring a [CorrectionPipeline].
type PipelineOption func(*CorrectionPipeline)

// WithPhoneticMatcher attaches a [PhoneticMatcher] as the first correction
// stage. When nil (the default), the phonetic stage is skipped entirely.
func WithPhoneticMatcher(m PhoneticMatcher) PipelineOption {
	return func(p *CorrectionPipeline) {
		p.phonetic = m
	}
}

// WithLLMCorrector attaches an [llmcorrect.Corrector] as the second
// correction stage. When nil (the default), the LLM stage is skipped
// entirely.
func WithLLMCorrector(c *llmcorrect.Corrector) PipelineOption {
	return func(p *CorrectionPipeline) {
		p.llmCorrector = c
	}
}

// WithLLMOnLowConfidence sets the recognition confidence below which the
// utterance is submitted to the LLM corrector (when one is configured).
// Default: 0.5.
//
// Utterances whose [asr.Result] confidence is zero, meaning the backend
// reported none, are always submitted.
func WithLLMOnLowConfidence(threshold float64) PipelineOption {
	return func(p *CorrectionPipeline) {
		p.llmThreshold = threshold
	}
}

// CorrectionPipeline is the two-stage hotword correction implementation of
// [Pipeline]. Stages are optional and are applied in order:
//
//  1. [PhoneticMatcher]: fast, in-process phonetic hotword alignment. Runs
//     on every utterance.
//  2. [llmcorrect.Corrector]: LLM review, gated on recognition confidence.
//
// CorrectionPipeline is safe for concurrent use.
type CorrectionPipeline struct {
	phonetic     PhoneticMatcher
	llmCorrector *llmcorrect.Corrector
	llmThreshold float64
}

var _ Pipeline = (*CorrectionPipeline)(nil)

// NewPipeline constructs a [CorrectionPipeline] with the supplied options.
// By default both stages are disabled; use [WithPhoneticMatcher] and
// [WithLLMCorrector] to activate them.
func NewPipeline(opts ...PipelineOption) *CorrectionPipeline {
	p := &CorrectionPipeline{
		llmThreshold: defaultLLMConfidenceThreshold,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Correct applies the configured correction stages to res and returns a
// [Corrected].
//
// Pipeline flow:
//  1. The utterance text is tokenised into whitespace-separated tokens.
//  2. When a [PhoneticMatcher] is configured, n-gram windows up to
//     [PhoneticMatcher.MaxWords] tokens are scored against the hotword
//     list at every position; the best-scoring non-overlapping windows
//     are substituted.
//  3. When an [llmcorrect.Corrector] is configured and the recognition
//     confidence is below the review threshold (or the backend reported
//     none), the model reviews the phonetically-corrected text.
//  4. Phonetic and LLM corrections are merged into the final [Corrected].
//
// Context cancellation is respected: if ctx is done before the LLM stage
// completes, an error is returned.
func (p *CorrectionPipeline) Correct(ctx context.Context, res asr.Result) (*Corrected, error) {
	result := &Corrected{
		Original:    res,
		Corrections: []Correction{},
	}

	workingText := res.Text
	var phoneticCorrections []Correction

	if p.phonetic != nil {
		workingText, phoneticCorrections = p.applyPhonetic(workingText)
	}

	var llmCorrections []Correction

	if p.llmCorrector != nil && p.needsReview(res.Confidence) {
		correctedText, rawCorrections, err := p.llmCorrector.Correct(ctx, workingText)
		if err != nil {
			return nil, err
		}
		workingText = correctedText
		for _, rc := range rawCorrections {
			llmCorrections = append(llmCorrections, Correction{
				Original:   rc.Original,
				Corrected:  rc.Corrected,
				Confidence: rc.Confidence,
				Method:     "llm",
			})
		}
	}

	result.Text = workingText
	result.Corrections = append(result.Corrections, phoneticCorrections...)
	result.Corrections = append(result.Corrections, llmCorrections...)

	return result, nil
}

// needsReview reports whether the recognition confidence warrants an LLM
// pass. Zero confidence means the backend reported none; those always go to
// review.
func (p *CorrectionPipeline) needsReview(confidence float64) bool {
	return confidence <= 0 || confidence < p.llmThreshold
}

// windowMatch is one candidate hotword substitution found during the
// phonetic scan: the token window [start, start+n) matched hotword at conf.
type windowMatch struct {
	start   int
	n       int
	hotword string
	conf    float64
}

// applyPhonetic runs the phonetic stage over text and returns the corrected
// text with the list of substitutions applied.
//
// Every n-gram window up to [PhoneticMatcher.MaxWords] tokens is scored at
// every position, then candidates are accepted best-score-first, skipping
// any that overlap an already accepted window. Candidates compete globally
// rather than left to right: in "drive to checkpoint charly" the window
// "to checkpoint" also clears the threshold against "Checkpoint Charlie",
// but the stronger "checkpoint charly" one token later must win.
func (p *CorrectionPipeline) applyPhonetic(text string) (string, []Correction) {
	maxWords := p.phonetic.MaxWords()
	tokens := strings.Fields(text)
	if maxWords == 0 || len(tokens) == 0 {
		return text, nil
	}

	var candidates []windowMatch
	for i := range tokens {
		maxN := min(maxWords, len(tokens)-i)
		for n := maxN; n >= 1; n-- {
			window := strings.Join(tokens[i:i+n], " ")
			hotword, conf, ok := p.phonetic.Match(window)
			if !ok {
				continue
			}
			candidates = append(candidates, windowMatch{start: i, n: n, hotword: hotword, conf: conf})
		}
	}
	if len(candidates) == 0 {
		return text, nil
	}

	// Higher confidence first, longer window on equal confidence. The
	// stable sort keeps equal candidates in scan order, so ties resolve
	// leftmost.
	sort.SliceStable(candidates, func(a, b int) bool {
		if candidates[a].conf != candidates[b].conf {
			return candidates[a].conf > candidates[b].conf
		}
		return candidates[a].n > candidates[b].n
	})

	taken := make([]bool, len(tokens))
	var accepted []windowMatch
	for _, c := range candidates {
		overlaps := false
		for j := c.start; j < c.start+c.n; j++ {
			if taken[j] {
				overlaps = true
				break
			}
		}
		if overlaps {
			continue
		}
		for j := c.start; j < c.start+c.n; j++ {
			taken[j] = true
		}
		accepted = append(accepted, c)
	}
	sort.Slice(accepted, func(a, b int) bool { return accepted[a].start < accepted[b].start })

	var output []string
	var corrections []Correction

	i := 0
	for _, m := range accepted {
		output = append(output, tokens[i:m.start]...)
		output = append(output, strings.Fields(m.hotword)...)

		window := strings.Join(tokens[m.start:m.start+m.n], " ")
		if m.hotword != window {
			corrections = append(corrections, Correction{
				Original:   window,
				Corrected:  m.hotword,
				Confidence: m.conf,
				Method:     "phonetic",
			})
		}
		i = m.start + m.n
	}
	output = append(output, tokens[i:]...)

	return strings.Join(output, " "), corrections
}
