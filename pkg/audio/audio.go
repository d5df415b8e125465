// Package audio defines the capture-side audio abstractions.
//
// A Source produces a stream of fixed-size PCM frames. The audio adapter
// pulls frames from the configured source and fans them out on the bus's
// direct frame path; whether the frames come from a microphone bridge, a
// network stream, or a WAV file is invisible to the rest of the pipeline.
package audio

import (
	"context"

	"github.com/kiwivoice/kiwi/pkg/types"
)

// Source is a stream of captured audio frames.
type Source interface {
	// Start begins capture and returns the frame channel. The channel is
	// closed when the source ends or ctx is cancelled. Start may be called
	// only once.
	Start(ctx context.Context) (<-chan types.AudioFrame, error)

	// Close releases capture resources. Calling Close more than once is safe.
	Close() error
}
