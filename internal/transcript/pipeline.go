// Package transcript defines the hotword correction pipeline that runs
// between speech recognition and dispatch.
//
// General-purpose ASR models are weakest exactly where an in-car assistant
// needs them most: contact names, place names, and vehicle feature names.
// "Arjun" comes back as "arjoon", "Checkpoint Charlie" as "checkpoint
// charly". The [Pipeline] repairs these against a fixed hotword list using a
// two-stage strategy:
//
//  1. Phonetic matching ([PhoneticMatcher]): in-process alignment of n-gram
//     windows against the hotword list using pronunciation codes and string
//     similarity. No network calls, cheap enough for every utterance.
//
//  2. LLM review: when the recognizer reports low confidence for the whole
//     utterance, a language model gets one pass to fix hotword misspellings
//     the phonetic stage missed. Its output is verified token by token
//     against the declared substitutions, so a chatty model cannot rewrite
//     the utterance.
//
// Each [Correction] records which stage produced the substitution and its
// confidence, so the tracker and the evaluator can audit what was changed.
//
// Implementations of both interfaces must be safe for concurrent use.
package transcript

import (
	"context"

	"github.com/kiwivoice/kiwi/pkg/provider/asr"
)

// Correction captures a single substitution made by the pipeline.
type Correction struct {
	// Original is the span as produced by the recognizer.
	Original string

	// Corrected is the hotword that replaced it.
	Corrected string

	// Confidence is the pipeline's confidence in this substitution (0.0-1.0).
	Confidence float64

	// Method describes which stage produced this substitution.
	// Well-known values:
	//   "phonetic" - produced by a [PhoneticMatcher].
	//   "llm"      - produced by the language-model review pass.
	Method string
}

// Corrected is the output of a [Pipeline.Correct] call. It pairs the raw
// recognition with the corrected text and an itemised record of every
// substitution applied.
type Corrected struct {
	// Original is the recognition as received from the ASR engine.
	Original asr.Result

	// Text is the corrected utterance text with all substitutions applied.
	// This is what flows downstream to the orchestrator.
	Text string

	// Corrections is the ordered list of substitutions applied to produce
	// Text. An empty (non-nil) slice means nothing needed fixing.
	Corrections []Correction
}

// Pipeline applies hotword corrections to a raw recognition result.
//
// Implementations must be safe for concurrent use.
type Pipeline interface {
	// Correct processes res and returns a [Corrected] holding the repaired
	// text and every substitution made.
	//
	// Returns a non-nil *Corrected on success. When no corrections apply,
	// Text equals res.Text and Corrections is an empty (non-nil) slice.
	Correct(ctx context.Context, res asr.Result) (*Corrected, error)
}

// PhoneticMatcher resolves a spoken phrase to a known hotword based on
// pronunciation similarity. It is the first stage of the correction pipeline
// and must be fast enough for the real-time path.
//
// The hotword list is fixed at construction; implementations precompute
// whatever per-hotword data they need.
//
// Implementations must be safe for concurrent use.
type PhoneticMatcher interface {
	// Match attempts to find the hotword most phonetically similar to phrase.
	// phrase may be a single token or a space-separated n-gram.
	//
	// Return values:
	//   corrected  - the best-matching hotword in its canonical spelling.
	//   confidence - similarity score in [0.0, 1.0] where 1.0 is exact.
	//   matched    - true when a sufficiently similar hotword was found.
	//
	// When matched is false, corrected equals phrase unchanged and confidence
	// is 0. Implementations define their own similarity thresholds.
	Match(phrase string) (corrected string, confidence float64, matched bool)

	// MaxWords reports the token count of the longest hotword. The pipeline
	// uses it to bound the n-gram window size. Zero means no hotwords are
	// configured and the phonetic stage is a no-op.
	MaxWords() int
}
