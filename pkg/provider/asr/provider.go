// Package asr defines the Engine interface for speech recognition backends.
//
// Kiwi's VAD stage already segments utterances, so recognition is a batch
// operation: the engine receives one complete utterance of PCM audio and
// returns one transcript. Implementations must be safe for concurrent use,
// though the ASR adapter serialises requests (one utterance in flight at a
// time) as a matter of pipeline policy.
package asr

import "context"

// Result is a recognition outcome.
type Result struct {
	// Text is the transcribed speech.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). Zero when the
	// backend does not report confidence.
	Confidence float64

	// Language is the detected or configured language code, when known.
	Language string
}

// Engine is the interface all recognition backends implement.
type Engine interface {
	// Recognize transcribes one utterance of 16-bit little-endian mono PCM.
	Recognize(ctx context.Context, pcm []byte, sampleRate int) (Result, error)
}
