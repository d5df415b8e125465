// Package tts defines the Engine interface for text-to-speech backends.
//
// A TTS engine synthesises one response at a time and plays it to completion;
// the pipeline holds the speaking state for the duration of the call, so
// Speak blocks until playback ends or ctx is cancelled.
//
// Implementations must be safe for concurrent use, though the TTS adapter
// serialises speak requests as a matter of pipeline policy.
package tts

import "context"

// Engine is the abstraction over any TTS backend.
type Engine interface {
	// Speak synthesises text and plays it. It returns once playback has
	// finished, or earlier with ctx.Err() on cancellation.
	Speak(ctx context.Context, text string) error
}
