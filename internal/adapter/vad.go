package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kiwivoice/kiwi/internal/bus"
	"github.com/kiwivoice/kiwi/internal/event"
	"github.com/kiwivoice/kiwi/internal/statemachine"
	"github.com/kiwivoice/kiwi/pkg/provider/vad"
	"github.com/kiwivoice/kiwi/pkg/types"
)

// VADAdapter gates the frame stream by interaction state: it runs the
// detector only between wakeword and recognition, buffers the frames of an
// active speech segment, and emits the complete utterance on speech end. A
// wake window with no speech at all times out back to idle.
type VADAdapter struct {
	bus     *bus.Bus
	engine  vad.Engine
	machine *statemachine.Machine
	cfg     VADConfig
	log     *slog.Logger
	stats   *stats

	mu      sync.Mutex
	session vad.Session
	buffer  []byte
	started time.Time
	rate    int
	running bool
}

var _ Module = (*VADAdapter)(nil)

// VADConfig tunes the detector session and the post-wakeword window.
type VADConfig struct {
	SampleRate        int
	FrameSizeMs       int
	SpeechThreshold   float64
	SilenceHangoverMs int

	// WakeTimeout is how long the machine may sit awake with no speech
	// before falling back to idle. Default: 8s.
	WakeTimeout time.Duration
}

// VADDeps carries the VAD adapter's dependencies.
type VADDeps struct {
	Bus     *bus.Bus
	Engine  vad.Engine
	Machine *statemachine.Machine
	Config  VADConfig
	Logger  *slog.Logger
}

func NewVADAdapter(deps VADDeps) *VADAdapter {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	cfg := deps.Config
	if cfg.WakeTimeout <= 0 {
		cfg.WakeTimeout = 8 * time.Second
	}
	return &VADAdapter{
		bus:     deps.Bus,
		engine:  deps.Engine,
		machine: deps.Machine,
		cfg:     cfg,
		log:     log.With("module", "vad"),
		stats:   newStats(),
	}
}

func (a *VADAdapter) Name() string { return "vad" }

func (a *VADAdapter) Initialize(context.Context) error {
	if a.bus == nil || a.engine == nil || a.machine == nil {
		return fmt.Errorf("adapter: vad: bus, engine, and machine are required")
	}
	session, err := a.engine.NewSession(vad.Config{
		SampleRate:        a.cfg.SampleRate,
		FrameSizeMs:       a.cfg.FrameSizeMs,
		SpeechThreshold:   a.cfg.SpeechThreshold,
		SilenceHangoverMs: a.cfg.SilenceHangoverMs,
	})
	if err != nil {
		return fmt.Errorf("adapter: vad: create session: %w", err)
	}
	a.session = session
	a.bus.RegisterFrameConsumer(a.onFrame)
	return nil
}

func (a *VADAdapter) Start(context.Context) error {
	a.mu.Lock()
	a.running = true
	a.mu.Unlock()
	return nil
}

func (a *VADAdapter) Stop(context.Context) error {
	a.mu.Lock()
	a.running = false
	a.buffer = nil
	if a.session != nil {
		a.session.Reset()
	}
	a.mu.Unlock()
	return nil
}

func (a *VADAdapter) Cleanup() error {
	if a.session == nil {
		return nil
	}
	if err := a.session.Close(); err != nil {
		return fmt.Errorf("adapter: vad: close session: %w", err)
	}
	return nil
}

func (a *VADAdapter) Statistics() map[string]any { return a.stats.snapshot() }

func (a *VADAdapter) onFrame(frame types.AudioFrame) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return
	}

	switch a.machine.State() {
	case statemachine.StateAwake:
		if a.machine.TimeInState() > a.cfg.WakeTimeout {
			a.timeoutLocked()
			return
		}
	case statemachine.StateListening:
	default:
		return
	}

	ev, err := a.session.ProcessFrame(frame.Data)
	if err != nil {
		a.stats.inc("errors")
		a.log.Warn("detector error", "error", err)
		return
	}

	switch ev.Type {
	case vad.SpeechStart:
		if _, ok := a.machine.Fire(statemachine.TriggerSpeechStart, "vad"); !ok {
			return
		}
		a.stats.inc("segments_started")
		a.buffer = append(a.buffer[:0], frame.Data...)
		a.started = time.Now()
		a.rate = frame.SampleRate
		a.bus.Publish(event.New(event.KindVADSpeechStart, a.Name()))

	case vad.SpeechContinue:
		a.buffer = append(a.buffer, frame.Data...)

	case vad.SpeechEnd:
		a.buffer = append(a.buffer, frame.Data...)
		if _, ok := a.machine.Fire(statemachine.TriggerSpeechEnd, "vad"); !ok {
			a.buffer = nil
			return
		}
		a.stats.inc("segments_completed")
		segment := event.SpeechSegment{
			Audio:      append([]byte(nil), a.buffer...),
			SampleRate: a.rate,
			Duration:   time.Since(a.started),
		}
		a.buffer = nil
		out := event.New(event.KindVADSpeechEnd, a.Name())
		out.Payload = segment
		a.bus.Publish(out)
	}
}

// timeoutLocked expires the post-wakeword window. Caller holds a.mu.
func (a *VADAdapter) timeoutLocked() {
	if _, ok := a.machine.Fire(statemachine.TriggerWakeTimeout, "no speech in wake window"); !ok {
		return
	}
	a.stats.inc("wake_timeouts")
	a.session.Reset()
	a.buffer = nil
	a.bus.Publish(event.New(event.KindWakewordTimeout, a.Name()))
}
