// Package mock provides a scriptable wakeword.Engine for tests.
package mock

import (
	"context"
	"sync"

	"github.com/kiwivoice/kiwi/pkg/provider/wakeword"
)

// Engine replays a scripted sequence of hits, one per Process call. After
// the script is exhausted, Process reports no detection.
type Engine struct {
	// Err, when non-nil, is returned by every call.
	Err error

	mu     sync.Mutex
	script []wakeword.Hit
	calls  int
}

var _ wakeword.Engine = (*Engine)(nil)

// New creates an engine that replays script.
func New(script ...wakeword.Hit) *Engine {
	return &Engine{script: script}
}

// HitOn returns a script of n-1 misses followed by one detection, which is
// convenient for "fires on the nth frame" tests.
func HitOn(n int, keyword string) []wakeword.Hit {
	script := make([]wakeword.Hit, n)
	script[n-1] = wakeword.Hit{Keyword: keyword, Confidence: 0.9}
	return script
}

// Calls reports how many frames have been processed.
func (e *Engine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Process implements wakeword.Engine.
func (e *Engine) Process(ctx context.Context, pcm []byte, sampleRate int) (wakeword.Hit, error) {
	if e.Err != nil {
		return wakeword.Hit{}, e.Err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if len(e.script) == 0 {
		return wakeword.Hit{}, nil
	}
	hit := e.script[0]
	e.script = e.script[1:]
	return hit, nil
}

// Keywords implements wakeword.Engine.
func (e *Engine) Keywords() []string { return []string{"mock"} }
