package observe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/kiwivoice/kiwi/internal/bus"
	"github.com/kiwivoice/kiwi/internal/event"
	"github.com/kiwivoice/kiwi/internal/session"
)

// Bridge feeds pipeline activity from the event bus into the OTel
// instruments. It subscribes to the pipeline's event kinds, counts every
// publication, derives stage latencies (ASR from the recognition payload, TTS
// by bracketing speak start/end per correlation id), and keeps the
// active-session gauge in step with the session manager.
type Bridge struct {
	bus      *bus.Bus
	metrics  *Metrics
	sessions *session.Manager

	subs []*bus.Subscription

	mu           sync.Mutex
	speakStarted map[string]time.Time
	lastSessions int64
}

// BridgeDeps carries the bridge's dependencies. Sessions is optional; without
// it the active-session gauge stays at zero.
type BridgeDeps struct {
	Bus      *bus.Bus
	Metrics  *Metrics
	Sessions *session.Manager
}

// NewBridge creates a Bridge. Call [Bridge.Attach] to start recording.
func NewBridge(deps BridgeDeps) *Bridge {
	return &Bridge{
		bus:          deps.Bus,
		metrics:      deps.Metrics,
		sessions:     deps.Sessions,
		speakStarted: make(map[string]time.Time),
	}
}

// counted is every kind the bridge counts; latency derivation hangs off a
// subset of them.
var counted = []event.Kind{
	event.KindWakewordDetected,
	event.KindWakewordTimeout,
	event.KindVADSpeechStart,
	event.KindVADSpeechEnd,
	event.KindASRSuccess,
	event.KindASRFailed,
	event.KindStateChanged,
	event.KindAgentDispatchRequest,
	event.KindAgentResponse,
	event.KindSessionExpired,
	event.KindTTSSpeakRequest,
	event.KindTTSSpeakStart,
	event.KindTTSSpeakEnd,
	event.KindTTSSpeakError,
}

// Attach subscribes the bridge to the bus.
func (b *Bridge) Attach() error {
	for _, kind := range counted {
		sub, err := b.bus.Subscribe(kind, b.onEvent)
		if err != nil {
			return fmt.Errorf("observe: bridge: %w", err)
		}
		b.subs = append(b.subs, sub)
	}
	return nil
}

// Detach unsubscribes the bridge.
func (b *Bridge) Detach() {
	for _, sub := range b.subs {
		b.bus.Unsubscribe(sub)
	}
	b.subs = nil
}

func (b *Bridge) onEvent(ev event.Event) {
	ctx := context.Background()
	b.metrics.BusEvents.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", string(ev.Kind))))

	switch ev.Kind {
	case event.KindASRSuccess:
		if result, ok := ev.Payload.(event.ASRResult); ok && result.Latency > 0 {
			b.metrics.ASRDuration.Record(ctx, result.Latency.Seconds())
		}
		b.metrics.RecordProviderRequest(ctx, "asr", "recognize", "ok")

	case event.KindASRFailed:
		b.metrics.RecordProviderError(ctx, "asr", "recognize")

	case event.KindAgentResponse:
		if resp, ok := ev.Payload.(event.AgentResponse); ok {
			b.metrics.RecordAgentResponse(ctx, resp.Agent, string(resp.Status))
		}
		b.syncSessionGauge(ctx)

	case event.KindAgentDispatchRequest, event.KindSessionExpired:
		b.syncSessionGauge(ctx)

	case event.KindTTSSpeakStart:
		if ev.MessageID != "" {
			b.mu.Lock()
			b.speakStarted[ev.MessageID] = ev.Timestamp
			b.mu.Unlock()
		}

	case event.KindTTSSpeakEnd:
		if started, ok := b.takeSpeakStart(ev.MessageID); ok {
			b.metrics.TTSDuration.Record(ctx, ev.Timestamp.Sub(started).Seconds())
		}
		b.metrics.RecordProviderRequest(ctx, "tts", "speak", "ok")

	case event.KindTTSSpeakError:
		b.takeSpeakStart(ev.MessageID)
		b.metrics.RecordProviderError(ctx, "tts", "speak")
	}
}

func (b *Bridge) takeSpeakStart(messageID string) (time.Time, bool) {
	if messageID == "" {
		return time.Time{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	started, ok := b.speakStarted[messageID]
	if ok {
		delete(b.speakStarted, messageID)
	}
	return started, ok
}

// syncSessionGauge moves the up-down counter to the manager's current total.
// Reconciling against Stats keeps the gauge exact regardless of which event
// triggered the change.
func (b *Bridge) syncSessionGauge(ctx context.Context) {
	if b.sessions == nil {
		return
	}
	var total int64
	for _, n := range b.sessions.Stats() {
		total += int64(n)
	}

	b.mu.Lock()
	delta := total - b.lastSessions
	b.lastSessions = total
	b.mu.Unlock()

	if delta != 0 {
		b.metrics.ActiveSessions.Add(ctx, delta)
	}
}
