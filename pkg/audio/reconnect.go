package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kiwivoice/kiwi/pkg/types"
)

// Default reconnection parameters.
const (
	defaultMaxRetries = 10
	defaultBackoff    = 1 * time.Second
	defaultMaxBackoff = 30 * time.Second
)

// Reconnector wraps a Source factory and transparently reopens the capture
// device when its frame stream ends unexpectedly. Downstream consumers see
// one continuous frame channel across device drops; the channel closes only
// on Close, context cancellation, or retry exhaustion.
//
// A Source's Start may be called once, so every reconnection attempt builds
// a fresh source through the factory.
//
// All methods are safe for concurrent use.
type Reconnector struct {
	open        func() (Source, error)
	maxRetries  int
	backoff     time.Duration
	maxBackoff  time.Duration
	onReconnect func(attempt int)

	mu       sync.Mutex
	current  Source
	started  bool
	done     chan struct{}
	stopOnce sync.Once
}

// ReconnectorConfig configures a [Reconnector].
type ReconnectorConfig struct {
	// Open builds a fresh source. Called once at Start and once per
	// reconnection attempt. Must not be nil.
	Open func() (Source, error)

	// MaxRetries is the maximum number of consecutive reconnection attempts
	// before the stream is abandoned. Defaults to 10 if zero.
	MaxRetries int

	// Backoff is the initial delay between retries. Doubles each attempt up
	// to MaxBackoff. Defaults to 1s if zero.
	Backoff time.Duration

	// MaxBackoff is the upper limit on the retry delay. Defaults to 30s if
	// zero.
	MaxBackoff time.Duration

	// OnReconnect is called after a successful reconnection with the attempt
	// number that succeeded. May be nil.
	OnReconnect func(attempt int)
}

// NewReconnector creates a [Reconnector] with the given configuration.
func NewReconnector(cfg ReconnectorConfig) *Reconnector {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	return &Reconnector{
		open:        cfg.Open,
		maxRetries:  maxRetries,
		backoff:     backoff,
		maxBackoff:  maxBackoff,
		onReconnect: cfg.OnReconnect,
		done:        make(chan struct{}),
	}
}

// Start opens the first source and begins pumping its frames. The initial
// open is not retried: a device that is absent at startup is a configuration
// problem, not a transient drop.
func (r *Reconnector) Start(ctx context.Context) (<-chan types.AudioFrame, error) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return nil, fmt.Errorf("audio: reconnector already started")
	}
	r.started = true
	r.mu.Unlock()

	src, err := r.open()
	if err != nil {
		return nil, fmt.Errorf("audio: reconnector initial open: %w", err)
	}
	frames, err := src.Start(ctx)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("audio: reconnector initial start: %w", err)
	}

	r.mu.Lock()
	r.current = src
	r.mu.Unlock()

	out := make(chan types.AudioFrame, 16)
	go r.pump(ctx, frames, out)
	return out, nil
}

// Close stops pumping and releases the current source. Calling Close more
// than once is safe.
func (r *Reconnector) Close() error {
	r.stopOnce.Do(func() {
		close(r.done)
	})

	r.mu.Lock()
	src := r.current
	r.current = nil
	r.mu.Unlock()

	if src != nil {
		return src.Close()
	}
	return nil
}

// pump copies frames from the active source to out, reopening the source
// when its channel closes while the stream should still be live.
func (r *Reconnector) pump(ctx context.Context, frames <-chan types.AudioFrame, out chan<- types.AudioFrame) {
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case frame, ok := <-frames:
			if !ok {
				// Stream ended. If we are shutting down this is expected;
				// otherwise the device dropped and we try to get it back.
				select {
				case <-ctx.Done():
					return
				case <-r.done:
					return
				default:
				}
				next, err := r.reopen(ctx)
				if err != nil {
					slog.Error("audio source lost, giving up", "error", err)
					return
				}
				frames = next
				continue
			}
			select {
			case out <- frame:
			case <-ctx.Done():
				return
			case <-r.done:
				return
			}
		}
	}
}

// reopen closes the dead source and retries the factory with exponential
// backoff until a fresh stream starts or the retry budget is spent.
func (r *Reconnector) reopen(ctx context.Context) (<-chan types.AudioFrame, error) {
	r.mu.Lock()
	if r.current != nil {
		r.current.Close()
		r.current = nil
	}
	r.mu.Unlock()

	delay := r.backoff
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		slog.Warn("audio source dropped, reconnecting",
			"attempt", attempt, "max_retries", r.maxRetries, "delay", delay)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-r.done:
			return nil, fmt.Errorf("audio: reconnector stopped")
		case <-time.After(delay):
		}

		src, err := r.open()
		if err == nil {
			var frames <-chan types.AudioFrame
			frames, err = src.Start(ctx)
			if err == nil {
				r.mu.Lock()
				r.current = src
				r.mu.Unlock()
				if r.onReconnect != nil {
					r.onReconnect(attempt)
				}
				slog.Info("audio source reconnected", "attempt", attempt)
				return frames, nil
			}
			src.Close()
		}
		slog.Warn("audio reconnect attempt failed", "attempt", attempt, "error", err)

		delay *= 2
		if delay > r.maxBackoff {
			delay = r.maxBackoff
		}
	}
	return nil, fmt.Errorf("audio: reconnect failed after %d attempts", r.maxRetries)
}

// Compile-time check that Reconnector satisfies Source.
var _ Source = (*Reconnector)(nil)
