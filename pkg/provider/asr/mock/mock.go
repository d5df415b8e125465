// Package mock provides a scriptable asr.Engine for tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/kiwivoice/kiwi/pkg/provider/asr"
)

// Engine is a mock asr.Engine serving transcripts from a FIFO script.
type Engine struct {
	// Err, when non-nil, is returned by every call.
	Err error

	// Delay simulates recognition latency.
	Delay time.Duration

	// Default is served when the script is empty.
	Default asr.Result

	mu     sync.Mutex
	script []asr.Result
	calls  int
}

var _ asr.Engine = (*Engine)(nil)

// New creates a mock engine that recognizes every utterance as text.
func New(text string) *Engine {
	return &Engine{Default: asr.Result{Text: text, Confidence: 0.95}}
}

// Enqueue appends results served in order before falling back to Default.
func (e *Engine) Enqueue(results ...asr.Result) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.script = append(e.script, results...)
	return e
}

// Calls reports how many recognitions have been requested.
func (e *Engine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Recognize implements asr.Engine.
func (e *Engine) Recognize(ctx context.Context, pcm []byte, sampleRate int) (asr.Result, error) {
	if e.Delay > 0 {
		select {
		case <-time.After(e.Delay):
		case <-ctx.Done():
			return asr.Result{}, ctx.Err()
		}
	}
	if e.Err != nil {
		return asr.Result{}, e.Err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if len(e.script) > 0 {
		res := e.script[0]
		e.script = e.script[1:]
		return res, nil
	}
	return e.Default, nil
}
