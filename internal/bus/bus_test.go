package bus

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/kiwivoice/kiwi/internal/event"
	"github.com/kiwivoice/kiwi/pkg/types"
)

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	b := New(slog.Default())
	t.Cleanup(b.Close)
	return b
}

// collector records events delivered to it, safe for concurrent appends.
type collector struct {
	mu  sync.Mutex
	evs []event.Event
}

func (c *collector) handle(ev event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evs = append(c.evs, ev)
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.evs)
}

func (c *collector) texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.evs))
	for _, ev := range c.evs {
		if r, ok := ev.Payload.(event.ASRResult); ok {
			out = append(out, r.Text)
		}
	}
	return out
}

func asrEvent(text string) event.Event {
	ev := event.New(event.KindASRSuccess, "test")
	ev.Payload = event.ASRResult{Text: text}
	return ev
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestPublishDeliversToMatchingSubscribersOnly(t *testing.T) {
	t.Parallel()
	b := newTestBus(t)

	var asr, tts collector
	if _, err := b.Subscribe(event.KindASRSuccess, asr.handle); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := b.Subscribe(event.KindTTSSpeakRequest, tts.handle); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	b.Publish(asrEvent("hello"))

	if got := asr.len(); got != 1 {
		t.Errorf("asr subscriber got %d events, want 1", got)
	}
	if got := tts.len(); got != 0 {
		t.Errorf("tts subscriber got %d events, want 0", got)
	}
}

func TestWorkerSubscriberPreservesFIFOOrder(t *testing.T) {
	t.Parallel()
	b := newTestBus(t)

	var c collector
	if _, err := b.Subscribe(event.KindASRSuccess, c.handle, WithWorker(64)); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	want := []string{"one", "two", "three", "four", "five"}
	for _, text := range want {
		b.Publish(asrEvent(text))
	}

	waitFor(t, func() bool { return c.len() == len(want) })

	got := c.texts()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("delivery order %v, want %v", got, want)
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()
	b := newTestBus(t)

	var c collector
	sub, err := b.Subscribe(event.KindASRSuccess, c.handle)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	b.Publish(asrEvent("before"))
	b.Unsubscribe(sub)
	b.Publish(asrEvent("after"))

	if got := c.len(); got != 1 {
		t.Errorf("got %d events after unsubscribe, want 1", got)
	}
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	t.Parallel()
	b := New(slog.Default())

	var c collector
	if _, err := b.Subscribe(event.KindASRSuccess, c.handle); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	b.Close()
	b.Publish(asrEvent("late")) // must not panic or deliver
	b.PublishFrame(types.AudioFrame{Data: []byte{0, 0}})

	if got := c.len(); got != 0 {
		t.Errorf("got %d events after close, want 0", got)
	}
}

func TestSubscribeAfterCloseFails(t *testing.T) {
	t.Parallel()
	b := New(slog.Default())
	b.Close()

	if _, err := b.Subscribe(event.KindASRSuccess, func(event.Event) {}); err == nil {
		t.Fatal("expected error subscribing to a closed bus")
	}
}

func TestPanickingHandlerDoesNotAffectOthers(t *testing.T) {
	t.Parallel()
	b := newTestBus(t)

	if _, err := b.Subscribe(event.KindASRSuccess, func(event.Event) {
		panic("boom")
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	var c collector
	if _, err := b.Subscribe(event.KindASRSuccess, c.handle); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	b.Publish(asrEvent("survives"))

	if got := c.len(); got != 1 {
		t.Errorf("second subscriber got %d events, want 1", got)
	}
}

func TestFrameConsumersReceiveFramesDirectly(t *testing.T) {
	t.Parallel()
	b := newTestBus(t)

	var (
		mu     sync.Mutex
		frames int
		bytes  int
	)
	b.RegisterFrameConsumer(func(f types.AudioFrame) {
		mu.Lock()
		defer mu.Unlock()
		frames++
		bytes += len(f.Data)
	})

	for i := 0; i < 10; i++ {
		b.PublishFrame(types.AudioFrame{Data: make([]byte, 320), SampleRate: 16000, Channels: 1})
	}

	mu.Lock()
	defer mu.Unlock()
	if frames != 10 {
		t.Errorf("got %d frames, want 10", frames)
	}
	if bytes != 3200 {
		t.Errorf("got %d bytes, want 3200", bytes)
	}
}

func TestConcurrentPublishIsSafe(t *testing.T) {
	t.Parallel()
	b := newTestBus(t)

	var c collector
	if _, err := b.Subscribe(event.KindASRSuccess, c.handle, WithWorker(1024)); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	const publishers, perPublisher = 8, 50
	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perPublisher; i++ {
				b.Publish(asrEvent("x"))
			}
		}()
	}
	wg.Wait()

	waitFor(t, func() bool { return c.len() == publishers*perPublisher })
}
