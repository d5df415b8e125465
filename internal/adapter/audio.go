package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kiwivoice/kiwi/internal/bus"
	"github.com/kiwivoice/kiwi/pkg/audio"
	"github.com/kiwivoice/kiwi/pkg/types"
)

// AudioAdapter pumps frames from the capture source onto the bus's direct
// frame path. It is the head of the pipeline; everything downstream reacts to
// the frames it publishes.
type AudioAdapter struct {
	bus    *bus.Bus
	source audio.Source
	log    *slog.Logger
	stats  *stats

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

var _ Module = (*AudioAdapter)(nil)

// AudioDeps carries the audio adapter's dependencies.
type AudioDeps struct {
	Bus    *bus.Bus
	Source audio.Source
	Logger *slog.Logger
}

func NewAudioAdapter(deps AudioDeps) *AudioAdapter {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &AudioAdapter{
		bus:    deps.Bus,
		source: deps.Source,
		log:    log.With("module", "audio"),
		stats:  newStats(),
	}
}

func (a *AudioAdapter) Name() string { return "audio" }

func (a *AudioAdapter) Initialize(context.Context) error {
	if a.bus == nil || a.source == nil {
		return fmt.Errorf("adapter: audio: bus and source are required")
	}
	return nil
}

// Start begins the capture loop on its own goroutine. The loop outlives the
// start call's context and runs until Stop.
func (a *AudioAdapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return fmt.Errorf("adapter: audio: already started")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	frames, err := a.source.Start(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("adapter: audio: start source: %w", err)
	}

	a.cancel = cancel
	a.done = make(chan struct{})
	go a.pump(frames, a.done)
	return nil
}

func (a *AudioAdapter) pump(frames <-chan types.AudioFrame, done chan struct{}) {
	defer close(done)
	for frame := range frames {
		a.stats.inc("frames_published")
		a.bus.PublishFrame(frame)
	}
	a.log.Info("capture stream ended")
}

func (a *AudioAdapter) Stop(context.Context) error {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (a *AudioAdapter) Cleanup() error {
	if err := a.source.Close(); err != nil {
		return fmt.Errorf("adapter: audio: close source: %w", err)
	}
	return nil
}

func (a *AudioAdapter) Statistics() map[string]any { return a.stats.snapshot() }
