// Package mock provides a recording tts.Engine for tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/kiwivoice/kiwi/pkg/provider/tts"
)

// Engine records every spoken text.
type Engine struct {
	// Err, when non-nil, is returned by every Speak call.
	Err error

	// Delay simulates playback time.
	Delay time.Duration

	mu     sync.Mutex
	spoken []string
}

var _ tts.Engine = (*Engine)(nil)

// New creates an empty recording engine.
func New() *Engine { return &Engine{} }

// Spoken returns a copy of every text spoken so far, in order.
func (e *Engine) Spoken() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.spoken))
	copy(out, e.spoken)
	return out
}

// Speak implements tts.Engine.
func (e *Engine) Speak(ctx context.Context, text string) error {
	if e.Delay > 0 {
		select {
		case <-time.After(e.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if e.Err != nil {
		return e.Err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.spoken = append(e.spoken, text)
	return nil
}
