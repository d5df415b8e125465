// Package llmcorrect implements a language-model review stage that fixes
// hotword misspellings the phonetic matcher could not resolve.
//
// The [Corrector] sends the utterance text to an [llm.Provider] along with
// the hotword list. The model is instructed, via a conservative system
// prompt, to fix only spans that look like misheard hotwords and to
// return a structured JSON response containing the corrected text and an
// itemised list of substitutions.
//
// Model output is never trusted as-is. Every token-level change between the
// input and the returned text is cross-checked against the declared
// substitution list, and undeclared changes are reverted (see verify.go).
// When the response cannot be parsed at all, the corrector returns the
// original text unchanged rather than surfacing an error, so a flaky model
// cannot stall the recognition path.
package llmcorrect

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kiwivoice/kiwi/pkg/provider/llm"
	"github.com/kiwivoice/kiwi/pkg/types"
)

const defaultTemperature = 0.1

// systemPromptTemplate is the base system prompt. The hotword list is
// interpolated once at construction.
const systemPromptTemplate = `You are a transcript correction assistant for an in-car voice assistant.

Your task: fix misheard names in the driver's transcribed utterance.

Rules:
- ONLY correct spans that appear to be misheard versions of the known names listed below (contacts, places, vehicle features).
- Do NOT change ordinary words, grammar, punctuation, numbers, or sentence structure.
- Be conservative. If you are not confident a span is a misheard name, leave it unchanged.
- Corrected names must match the canonical spelling from the list exactly.

Known names:
%s

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{
  "corrected_text": "<full corrected utterance>",
  "corrections": [
    {"original": "<original span>", "corrected": "<corrected span>", "confidence": <0.0-1.0>}
  ]
}

If no corrections are needed, return an empty corrections array and corrected_text equal to the input.`

// Correction captures a single substitution produced by the LLM review. The
// pipeline maps these to transcript.Correction values with Method "llm".
type Correction struct {
	// Original is the span as it appeared in the input utterance.
	Original string

	// Corrected is the replacement hotword suggested by the model.
	Corrected string

	// Confidence is the model's reported confidence for this substitution
	// (0.0-1.0).
	Confidence float64
}

// llmResponse is the expected JSON structure returned by the model.
type llmResponse struct {
	CorrectedText string `json:"corrected_text"`
	Corrections   []struct {
		Original   string  `json:"original"`
		Corrected  string  `json:"corrected"`
		Confidence float64 `json:"confidence"`
	} `json:"corrections"`
}

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithTemperature sets the sampling temperature. Lower values produce more
// deterministic corrections. Default: 0.1.
func WithTemperature(temp float64) Option {
	return func(c *Corrector) {
		c.temperature = temp
	}
}

// Corrector uses an [llm.Provider] to fix hotword misspellings in utterance
// text. The hotword list is fixed at construction. Safe for concurrent use.
//
// To use a specific model for correction, construct the [llm.Provider] with
// that model configured rather than overriding per request.
type Corrector struct {
	llm          llm.Provider
	systemPrompt string
	hotwords     int
	temperature  float64
}

// New returns a [Corrector] backed by provider, reviewing against hotwords.
// With an empty hotword list [Corrector.Correct] is a no-op.
func New(provider llm.Provider, hotwords []string, opts ...Option) *Corrector {
	c := &Corrector{
		llm:          provider,
		systemPrompt: buildSystemPrompt(hotwords),
		hotwords:     len(hotwords),
		temperature:  defaultTemperature,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Correct sends text to the model and asks it to fix hotword misspellings.
// The returned text has passed token-level verification: only changes the
// model declared in its corrections list survive, everything else is
// reverted to the input.
//
// When the model response is unparseable, Correct returns the original text
// unchanged with nil corrections and a nil error. The recognition path must
// continue regardless of model quality.
//
// Context cancellation and transport errors are returned as non-nil errors.
func (c *Corrector) Correct(ctx context.Context, text string) (string, []Correction, error) {
	if c.hotwords == 0 {
		return text, nil, nil
	}

	req := llm.CompletionRequest{
		SystemPrompt: c.systemPrompt,
		Temperature:  c.temperature,
		Messages: []types.Message{
			{Role: "user", Content: text},
		},
	}

	resp, err := c.llm.Complete(ctx, req)
	if err != nil {
		return text, nil, fmt.Errorf("llmcorrect: complete: %w", err)
	}

	corrected, corrections, parseErr := parseResponse(resp.Content, text)
	if parseErr != nil {
		// Unparseable response: return the input unchanged, no error.
		return text, nil, nil
	}

	verified, verifiedCorrections := verifyCorrectedText(text, corrected, corrections)
	return verified, verifiedCorrections, nil
}

// buildSystemPrompt formats the system prompt template with the hotword list.
func buildSystemPrompt(hotwords []string) string {
	var sb strings.Builder
	for _, hw := range hotwords {
		sb.WriteString("- ")
		sb.WriteString(hw)
		sb.WriteByte('\n')
	}
	return fmt.Sprintf(systemPromptTemplate, sb.String())
}

// parseResponse attempts to unmarshal the model output into an
// [llmResponse]. It strips markdown code fences before parsing.
func parseResponse(content, originalText string) (string, []Correction, error) {
	cleaned := stripMarkdown(content)

	var r llmResponse
	if err := json.Unmarshal([]byte(cleaned), &r); err != nil {
		return "", nil, fmt.Errorf("llmcorrect: parse response: %w", err)
	}

	if r.CorrectedText == "" {
		return originalText, nil, nil
	}

	corrections := make([]Correction, 0, len(r.Corrections))
	for _, c := range r.Corrections {
		if c.Original == c.Corrected || c.Original == "" {
			continue
		}
		corrections = append(corrections, Correction{
			Original:   c.Original,
			Corrected:  c.Corrected,
			Confidence: c.Confidence,
		})
	}

	return r.CorrectedText, corrections, nil
}

// stripMarkdown removes optional markdown code fences (```json ... ```)
// that some models wrap around JSON output.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
