// Package wakeword defines the Engine interface for wakeword detection backends.
//
// A wakeword engine continuously scores incoming audio frames against one or
// more keyword models. Detection is frame-synchronous: Process returns
// immediately with the best-scoring keyword for the accumulated window, or a
// zero Hit when nothing fired.
//
// Implementations must be safe for concurrent use.
package wakeword

import "context"

// Hit is a wakeword detection.
type Hit struct {
	// Keyword is the detected keyword's name.
	Keyword string

	// Confidence is the detection score (0.0–1.0).
	Confidence float64
}

// Detected reports whether the hit is a real detection.
func (h Hit) Detected() bool { return h.Keyword != "" }

// Engine is the interface all wakeword backends implement.
type Engine interface {
	// Process scores one frame of 16-bit little-endian mono PCM. A zero Hit
	// means no keyword fired for this frame.
	Process(ctx context.Context, pcm []byte, sampleRate int) (Hit, error)

	// Keywords lists the keyword models this engine scores against.
	Keywords() []string
}
