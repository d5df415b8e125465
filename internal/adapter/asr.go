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
	"github.com/kiwivoice/kiwi/internal/tracker"
	"github.com/kiwivoice/kiwi/internal/transcript"
	"github.com/kiwivoice/kiwi/pkg/provider/asr"
)

// ASRAdapter recognizes completed speech segments. One utterance is in flight
// at a time: a segment that arrives while the previous utterance is still
// being handled downstream is dropped, and the drop is recorded on the
// in-flight trace so the evaluator can see it.
type ASRAdapter struct {
	bus       *bus.Bus
	engine    asr.Engine
	machine   *statemachine.Machine
	tracker   *tracker.Tracker
	corrector transcript.Pipeline
	userID    string
	log       *slog.Logger
	stats     *stats

	sub *bus.Subscription

	mu       sync.Mutex
	inflight string
}

var _ Module = (*ASRAdapter)(nil)

// ASRDeps carries the ASR adapter's dependencies.
type ASRDeps struct {
	Bus     *bus.Bus
	Engine  asr.Engine
	Machine *statemachine.Machine
	Tracker *tracker.Tracker

	// Corrector repairs misheard hotwords in recognized text before it is
	// dispatched. Optional; nil disables correction.
	Corrector transcript.Pipeline

	// UserID is the identity attached to recognized utterances. The capture
	// path is single-speaker; multi-user routing happens upstream of Kiwi.
	UserID string

	Logger *slog.Logger
}

func NewASRAdapter(deps ASRDeps) *ASRAdapter {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	user := deps.UserID
	if user == "" {
		user = "driver"
	}
	return &ASRAdapter{
		bus:       deps.Bus,
		engine:    deps.Engine,
		machine:   deps.Machine,
		tracker:   deps.Tracker,
		corrector: deps.Corrector,
		userID:    user,
		log:       log.With("module", "asr"),
		stats:     newStats(),
	}
}

func (a *ASRAdapter) Name() string { return "asr" }

func (a *ASRAdapter) Initialize(context.Context) error {
	if a.bus == nil || a.engine == nil || a.machine == nil || a.tracker == nil {
		return fmt.Errorf("adapter: asr: bus, engine, machine, and tracker are required")
	}
	sub, err := a.bus.Subscribe(event.KindVADSpeechEnd, a.onSegment, bus.WithWorker(4))
	if err != nil {
		return fmt.Errorf("adapter: asr: %w", err)
	}
	a.sub = sub

	// Downstream completion releases the single-utterance gate.
	_, err = a.bus.Subscribe(event.KindAgentResponse, a.onAgentResponse)
	if err != nil {
		return fmt.Errorf("adapter: asr: %w", err)
	}
	return nil
}

func (a *ASRAdapter) Start(context.Context) error { return nil }

func (a *ASRAdapter) Stop(context.Context) error {
	if a.sub != nil {
		a.bus.Unsubscribe(a.sub)
		a.sub = nil
	}
	return nil
}

func (a *ASRAdapter) Cleanup() error { return nil }

func (a *ASRAdapter) Statistics() map[string]any { return a.stats.snapshot() }

func (a *ASRAdapter) onSegment(ev event.Event) {
	segment, ok := ev.Payload.(event.SpeechSegment)
	if !ok {
		return
	}

	start := time.Now()
	result, err := a.engine.Recognize(context.Background(), segment.Audio, segment.SampleRate)
	latency := time.Since(start)

	if err != nil {
		a.stats.inc("failures")
		a.log.Warn("recognition failed", "error", err, "latency", latency)
		a.machine.Fire(statemachine.TriggerRecognizeErr, err.Error())
		out := event.New(event.KindASRFailed, a.Name())
		out.Payload = event.ASRFailure{Reason: "recognition error", Err: err}
		a.bus.Publish(out)
		return
	}
	if result.Text == "" {
		a.stats.inc("empty_results")
		a.machine.Fire(statemachine.TriggerRecognizeErr, "empty transcript")
		out := event.New(event.KindASRFailed, a.Name())
		out.Payload = event.ASRFailure{Reason: "empty transcript"}
		a.bus.Publish(out)
		return
	}

	text := a.correct(result)

	a.mu.Lock()
	if a.inflight != "" {
		busyID := a.inflight
		a.mu.Unlock()
		a.stats.inc("busy_drops")
		a.log.Warn("utterance dropped, previous message still in flight",
			"text", text, "inflight", busyID)
		if err := a.tracker.Append(busyID, "asr", text, "busy"); err != nil {
			a.log.Warn("busy drop not recorded", "error", err)
		}
		return
	}
	id := a.tracker.Begin(text)
	a.inflight = id
	a.mu.Unlock()

	a.stats.inc("recognitions")
	a.tracker.Append(id, "asr", fmt.Sprintf("%d bytes", len(segment.Audio)), text)
	if text != result.Text {
		a.tracker.Append(id, "hotwords", result.Text, text)
	}
	a.machine.Fire(statemachine.TriggerRecognized, "asr")
	a.log.Info("recognized", "text", text, "confidence", result.Confidence, "latency", latency)

	out := event.New(event.KindASRSuccess, a.Name())
	out.MessageID = id
	out.Payload = event.ASRResult{
		Text:       text,
		Confidence: result.Confidence,
		UserID:     a.userID,
		Latency:    latency,
	}
	a.bus.Publish(out)
}

// correct runs the hotword corrector over a recognition and returns the text
// to dispatch. Correction failures fall back to the raw text; the utterance
// must reach the orchestrator either way.
func (a *ASRAdapter) correct(result asr.Result) string {
	if a.corrector == nil {
		return result.Text
	}
	fixed, err := a.corrector.Correct(context.Background(), result)
	if err != nil {
		a.stats.inc("correction_failures")
		a.log.Warn("hotword correction failed", "error", err)
		return result.Text
	}
	if len(fixed.Corrections) > 0 {
		a.stats.add("hotword_corrections", int64(len(fixed.Corrections)))
		a.log.Debug("hotwords corrected",
			"raw", result.Text, "corrected", fixed.Text, "count", len(fixed.Corrections))
	}
	return fixed.Text
}

// onAgentResponse clears the in-flight gate once the utterance reaches a
// settled status. waiting_input settles too: the pipeline is idle again,
// waiting for the user's answer.
func (a *ASRAdapter) onAgentResponse(ev event.Event) {
	if ev.MessageID == "" {
		return
	}
	a.mu.Lock()
	if a.inflight == ev.MessageID {
		a.inflight = ""
	}
	a.mu.Unlock()
}
