// Package mock provides a scripted audio.Source for tests.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/kiwivoice/kiwi/pkg/audio"
	"github.com/kiwivoice/kiwi/pkg/types"
)

// Source emits a fixed sequence of frames and then closes its channel.
type Source struct {
	Frames []types.AudioFrame

	mu      sync.Mutex
	started bool
	closed  bool
}

var _ audio.Source = (*Source)(nil)

// New creates a source that will emit frames.
func New(frames ...types.AudioFrame) *Source {
	return &Source{Frames: frames}
}

// Silence builds n silent frames of the given byte size.
func Silence(n, size int) []types.AudioFrame {
	frames := make([]types.AudioFrame, n)
	for i := range frames {
		frames[i] = types.AudioFrame{Data: make([]byte, size), SampleRate: 16000, Channels: 1}
	}
	return frames
}

// Start implements audio.Source.
func (s *Source) Start(ctx context.Context) (<-chan types.AudioFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil, fmt.Errorf("mock source: already started")
	}
	s.started = true

	out := make(chan types.AudioFrame)
	go func() {
		defer close(out)
		for _, f := range s.Frames {
			select {
			case out <- f:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close implements audio.Source.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
