package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiwivoice/kiwi/internal/bus"
	"github.com/kiwivoice/kiwi/internal/event"
	"github.com/kiwivoice/kiwi/internal/statemachine"
	"github.com/kiwivoice/kiwi/pkg/provider/tts"
)

// TTSAdapter speaks agent responses. Requests are serialized through the
// worker queue, so overlapping responses play one after another and the
// speaking state brackets each playback.
type TTSAdapter struct {
	bus     *bus.Bus
	engine  tts.Engine
	machine *statemachine.Machine
	log     *slog.Logger
	stats   *stats

	sub *bus.Subscription
}

var _ Module = (*TTSAdapter)(nil)

// TTSDeps carries the TTS adapter's dependencies.
type TTSDeps struct {
	Bus     *bus.Bus
	Engine  tts.Engine
	Machine *statemachine.Machine
	Logger  *slog.Logger
}

func NewTTSAdapter(deps TTSDeps) *TTSAdapter {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &TTSAdapter{
		bus:     deps.Bus,
		engine:  deps.Engine,
		machine: deps.Machine,
		log:     log.With("module", "tts"),
		stats:   newStats(),
	}
}

func (a *TTSAdapter) Name() string { return "tts" }

func (a *TTSAdapter) Initialize(context.Context) error {
	if a.bus == nil || a.engine == nil || a.machine == nil {
		return fmt.Errorf("adapter: tts: bus, engine, and machine are required")
	}
	sub, err := a.bus.Subscribe(event.KindTTSSpeakRequest, a.onSpeak, bus.WithWorker(16))
	if err != nil {
		return fmt.Errorf("adapter: tts: %w", err)
	}
	a.sub = sub
	return nil
}

func (a *TTSAdapter) Start(context.Context) error { return nil }

func (a *TTSAdapter) Stop(context.Context) error {
	if a.sub != nil {
		a.bus.Unsubscribe(a.sub)
		a.sub = nil
	}
	return nil
}

func (a *TTSAdapter) Cleanup() error { return nil }

func (a *TTSAdapter) Statistics() map[string]any { return a.stats.snapshot() }

func (a *TTSAdapter) onSpeak(ev event.Event) {
	req, ok := ev.Payload.(event.SpeakRequest)
	if !ok || req.Text == "" {
		return
	}

	a.machine.Fire(statemachine.TriggerSpeakStart, "tts")
	start := event.New(event.KindTTSSpeakStart, a.Name())
	start.MessageID = ev.MessageID
	a.bus.Publish(start)

	began := time.Now()
	err := a.engine.Speak(context.Background(), req.Text)
	a.machine.Fire(statemachine.TriggerSpeakEnd, "tts")

	if err != nil {
		a.stats.inc("errors")
		a.log.Warn("playback failed", "error", err)
		out := event.New(event.KindTTSSpeakError, a.Name())
		out.MessageID = ev.MessageID
		out.Payload = err
		a.bus.Publish(out)
		return
	}

	a.stats.inc("utterances")
	a.log.Debug("spoke response", "chars", len(req.Text), "took", time.Since(began))
	end := event.New(event.KindTTSSpeakEnd, a.Name())
	end.MessageID = ev.MessageID
	a.bus.Publish(end)
}
