package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/kiwivoice/kiwi/internal/bus"
	"github.com/kiwivoice/kiwi/internal/event"
	"github.com/kiwivoice/kiwi/internal/statemachine"
	"github.com/kiwivoice/kiwi/pkg/provider/wakeword"
	"github.com/kiwivoice/kiwi/pkg/types"
)

// WakewordAdapter scans the frame stream for the wake keyword. It listens
// only while the machine is idle or speaking (barge-in); frames in every
// other state are ignored so the detector cannot re-trigger mid-interaction.
type WakewordAdapter struct {
	bus     *bus.Bus
	engine  wakeword.Engine
	machine *statemachine.Machine
	log     *slog.Logger
	stats   *stats

	running atomic.Bool
}

var _ Module = (*WakewordAdapter)(nil)

// WakewordDeps carries the wakeword adapter's dependencies.
type WakewordDeps struct {
	Bus     *bus.Bus
	Engine  wakeword.Engine
	Machine *statemachine.Machine
	Logger  *slog.Logger
}

func NewWakewordAdapter(deps WakewordDeps) *WakewordAdapter {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &WakewordAdapter{
		bus:     deps.Bus,
		engine:  deps.Engine,
		machine: deps.Machine,
		log:     log.With("module", "wakeword"),
		stats:   newStats(),
	}
}

func (a *WakewordAdapter) Name() string { return "wakeword" }

func (a *WakewordAdapter) Initialize(context.Context) error {
	if a.bus == nil || a.engine == nil || a.machine == nil {
		return fmt.Errorf("adapter: wakeword: bus, engine, and machine are required")
	}
	a.bus.RegisterFrameConsumer(a.onFrame)
	a.log.Info("scanning for keywords", "keywords", a.engine.Keywords())
	return nil
}

func (a *WakewordAdapter) Start(context.Context) error {
	a.running.Store(true)
	return nil
}

func (a *WakewordAdapter) Stop(context.Context) error {
	a.running.Store(false)
	return nil
}

func (a *WakewordAdapter) Cleanup() error { return nil }

func (a *WakewordAdapter) Statistics() map[string]any { return a.stats.snapshot() }

func (a *WakewordAdapter) onFrame(frame types.AudioFrame) {
	if !a.running.Load() {
		return
	}
	switch a.machine.State() {
	case statemachine.StateIdle, statemachine.StateSpeaking:
	default:
		return
	}

	hit, err := a.engine.Process(context.Background(), frame.Data, frame.SampleRate)
	if err != nil {
		a.stats.inc("errors")
		a.log.Warn("detector error", "error", err)
		return
	}
	if !hit.Detected() {
		return
	}

	if _, ok := a.machine.Fire(statemachine.TriggerWakeword, "keyword "+hit.Keyword); !ok {
		return
	}
	a.stats.inc("detections")
	a.log.Info("wakeword detected", "keyword", hit.Keyword, "confidence", hit.Confidence)

	ev := event.New(event.KindWakewordDetected, a.Name())
	ev.Payload = event.WakewordHit{Keyword: hit.Keyword, Confidence: hit.Confidence}
	a.bus.Publish(ev)
}
