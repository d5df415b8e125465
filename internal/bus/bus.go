// Package bus implements the typed publish/subscribe event bus that connects
// the pipeline adapters.
//
// Dispatch is synchronous by default: Publish invokes every matching handler
// on the caller's goroutine, in subscription order. Subscribers whose work is
// slow or blocking opt into a dedicated worker goroutine with [WithWorker];
// events for such subscribers are enqueued and delivered one at a time in
// FIFO order, so a slow handler never stalls the publisher or reorders its
// own deliveries.
//
// Audio frames arrive at a much higher rate than every other event kind, so
// frame consumers register through [Bus.RegisterFrameConsumer] and receive
// raw frames directly without an [event.Event] allocation per frame.
//
// All methods are safe for concurrent use.
package bus

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/kiwivoice/kiwi/internal/event"
	"github.com/kiwivoice/kiwi/pkg/types"
)

// Handler processes one event. Handlers must not retain the event's payload
// maps beyond the call unless they copy them.
type Handler func(event.Event)

// FrameConsumer processes one audio frame on the capture goroutine. It must
// return quickly; heavy work belongs behind a worker subscription instead.
type FrameConsumer func(types.AudioFrame)

// Subscription identifies an active subscription so it can be cancelled.
type Subscription struct {
	kind   event.Kind
	id     uint64
	worker *worker
}

// SubscribeOption customises a subscription.
type SubscribeOption func(*subscribeConfig)

type subscribeConfig struct {
	queueSize int
}

// WithWorker runs the handler on a dedicated goroutine fed by a FIFO queue of
// the given capacity. When the queue is full, Publish drops the event for
// this subscriber and logs a warning rather than blocking the publisher.
func WithWorker(queueSize int) SubscribeOption {
	return func(c *subscribeConfig) {
		if queueSize <= 0 {
			queueSize = 16
		}
		c.queueSize = queueSize
	}
}

type subscriber struct {
	id      uint64
	handler Handler
	worker  *worker
}

type worker struct {
	queue chan event.Event
	done  chan struct{}
}

// Bus routes events from publishers to subscribers.
type Bus struct {
	log *slog.Logger

	mu     sync.RWMutex
	nextID uint64
	subs   map[event.Kind][]*subscriber
	frames []FrameConsumer
	closed bool
}

// New creates an empty bus. A nil logger falls back to [slog.Default].
func New(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{
		log:  log,
		subs: make(map[event.Kind][]*subscriber),
	}
}

// Subscribe registers handler for all events of the given kind and returns a
// [Subscription] for later cancellation. Subscribing after Close returns an
// error.
func (b *Bus) Subscribe(kind event.Kind, handler Handler, opts ...SubscribeOption) (*Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("bus: subscribe %s: nil handler", kind)
	}

	var cfg subscribeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("bus: subscribe %s: bus is closed", kind)
	}

	b.nextID++
	sub := &subscriber{id: b.nextID, handler: handler}

	if cfg.queueSize > 0 {
		w := &worker{
			queue: make(chan event.Event, cfg.queueSize),
			done:  make(chan struct{}),
		}
		sub.worker = w
		go b.runWorker(w, handler)
	}

	b.subs[kind] = append(b.subs[kind], sub)
	return &Subscription{kind: kind, id: sub.id, worker: sub.worker}, nil
}

// Unsubscribe removes a subscription. Events already queued for a worker
// subscription are still delivered before the worker exits. Unsubscribing an
// unknown or already-removed subscription is a no-op.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	list := b.subs[sub.kind]
	for i, s := range list {
		if s.id == sub.id {
			b.subs[sub.kind] = append(list[:i], list[i+1:]...)
			break
		}
	}
	b.mu.Unlock()

	if sub.worker != nil {
		close(sub.worker.queue)
		<-sub.worker.done
	}
}

// Publish delivers ev to every subscriber of ev.Kind. Synchronous handlers
// run inline; worker handlers receive the event through their queue. After
// Close, Publish drops the event silently.
func (b *Bus) Publish(ev event.Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	// Snapshot so handlers can (un)subscribe without deadlocking.
	list := make([]*subscriber, len(b.subs[ev.Kind]))
	copy(list, b.subs[ev.Kind])
	b.mu.RUnlock()

	for _, sub := range list {
		if sub.worker != nil {
			select {
			case sub.worker.queue <- ev:
			default:
				b.log.Warn("bus: worker queue full, dropping event",
					"kind", ev.Kind, "source", ev.Source)
			}
			continue
		}
		b.invoke(sub.handler, ev)
	}
}

// RegisterFrameConsumer adds a consumer to the direct audio frame path.
// Frame consumers cannot be removed individually; they live until Close.
func (b *Bus) RegisterFrameConsumer(fn FrameConsumer) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.frames = append(b.frames, fn)
}

// PublishFrame hands an audio frame to every registered frame consumer on
// the caller's goroutine. After Close, frames are dropped.
func (b *Bus) PublishFrame(frame types.AudioFrame) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	consumers := b.frames
	b.mu.RUnlock()

	for _, fn := range consumers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.log.Error("bus: frame consumer panicked", "panic", r)
				}
			}()
			fn(frame)
		}()
	}
}

// Close stops the bus: subsequent publishes are dropped, worker goroutines
// drain their queues and exit. Close is idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true

	var workers []*worker
	for _, list := range b.subs {
		for _, s := range list {
			if s.worker != nil {
				workers = append(workers, s.worker)
			}
		}
	}
	b.subs = make(map[event.Kind][]*subscriber)
	b.frames = nil
	b.mu.Unlock()

	for _, w := range workers {
		close(w.queue)
		<-w.done
	}
}

func (b *Bus) runWorker(w *worker, handler Handler) {
	defer close(w.done)
	for ev := range w.queue {
		b.invoke(handler, ev)
	}
}

// invoke runs a handler with panic isolation: a panicking subscriber is
// logged and skipped, it never takes down the publisher or the worker.
func (b *Bus) invoke(handler Handler, ev event.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("bus: handler panicked",
				"kind", ev.Kind, "source", ev.Source, "panic", r)
		}
	}()
	handler(ev)
}
