package hotctx

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kiwivoice/kiwi/internal/bus"
	"github.com/kiwivoice/kiwi/internal/event"
	"github.com/kiwivoice/kiwi/internal/memory"
)

const (
	// prefetchTimeout bounds one speculative recall.
	prefetchTimeout = 3 * time.Second

	// minWarmLen skips fragments too short to recall anything useful.
	minWarmLen = 4
)

// PreFetcher speculatively runs semantic recall ahead of context assembly.
//
// Attached to the event bus it warms the recall cache twice per turn: from
// partial recognition results while the user is still speaking (engines that
// stream partials), and from the final recognition result, which overlaps
// the embedding round-trip with the routing decision's model call. A speech
// start resets the cache so one turn's recall never bleeds into the next.
//
// All exported methods are goroutine-safe.
type PreFetcher struct {
	recaller Recaller
	topK     int
	log      *slog.Logger

	mu      sync.Mutex
	current *warmEntry
	attach  *bus.Bus
	subs    []*bus.Subscription
}

// warmEntry is one in-flight or finished speculative recall. The results are
// published by closing done; readers must wait on it before touching the
// result fields.
type warmEntry struct {
	query   string // normalized
	done    chan struct{}
	results []memory.Recalled
	ok      bool
}

// PreFetchOption is a functional option for [NewPreFetcher].
type PreFetchOption func(*PreFetcher)

// WithPreFetchTopK sets how many exchanges one warm recalls. Defaults to 3,
// matching the assembler's recall cap.
func WithPreFetchTopK(k int) PreFetchOption {
	return func(p *PreFetcher) { p.topK = k }
}

// WithPreFetchLogger sets the logger. Defaults to [slog.Default].
func WithPreFetchLogger(log *slog.Logger) PreFetchOption {
	return func(p *PreFetcher) { p.log = log }
}

// NewPreFetcher creates a [PreFetcher] recalling through recaller. Call
// [PreFetcher.Attach] to start it warming from bus events.
func NewPreFetcher(recaller Recaller, opts ...PreFetchOption) *PreFetcher {
	p := &PreFetcher{
		recaller: recaller,
		topK:     3,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Attach subscribes the pre-fetcher to b. Speech starts reset the cache;
// partial and final recognition results trigger warms on worker queues so a
// slow recall never blocks bus dispatch.
func (p *PreFetcher) Attach(b *bus.Bus) error {
	reset, err := b.Subscribe(event.KindVADSpeechStart, func(event.Event) { p.Reset() })
	if err != nil {
		return fmt.Errorf("pre-fetch: subscribe speech start: %w", err)
	}
	partial, err := b.Subscribe(event.KindASRPartialResult, p.onRecognition, bus.WithWorker(8))
	if err != nil {
		b.Unsubscribe(reset)
		return fmt.Errorf("pre-fetch: subscribe partial results: %w", err)
	}
	final, err := b.Subscribe(event.KindASRSuccess, p.onRecognition, bus.WithWorker(8))
	if err != nil {
		b.Unsubscribe(reset)
		b.Unsubscribe(partial)
		return fmt.Errorf("pre-fetch: subscribe recognitions: %w", err)
	}

	p.mu.Lock()
	p.attach = b
	p.subs = []*bus.Subscription{reset, partial, final}
	p.mu.Unlock()
	return nil
}

// Detach removes the bus subscriptions added by [PreFetcher.Attach].
func (p *PreFetcher) Detach() {
	p.mu.Lock()
	b, subs := p.attach, p.subs
	p.attach, p.subs = nil, nil
	p.mu.Unlock()

	if b == nil {
		return
	}
	for _, s := range subs {
		b.Unsubscribe(s)
	}
}

func (p *PreFetcher) onRecognition(ev event.Event) {
	res, ok := ev.Payload.(event.ASRResult)
	if !ok {
		return
	}
	p.Warm(res.Text)
}

// Warm runs a speculative recall for text and caches the result. A warm
// whose text the current warm already extends is skipped, so a late partial
// can never replace the recall of the full utterance. Recall errors are
// logged and swallowed; a failed warm reads as a cache miss.
func (p *PreFetcher) Warm(text string) {
	norm := normalizeQuery(text)
	if len(norm) < minWarmLen {
		return
	}

	p.mu.Lock()
	if cur := p.current; cur != nil && strings.HasPrefix(cur.query, norm) {
		p.mu.Unlock()
		return
	}
	e := &warmEntry{query: norm, done: make(chan struct{})}
	p.current = e
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), prefetchTimeout)
	defer cancel()

	hits, err := p.recaller.Related(ctx, text, p.topK)
	if err != nil {
		p.log.Debug("speculative recall failed", "error", err)
	} else {
		e.results = hits
		e.ok = true
	}
	close(e.done)
}

// Take returns the cached recall for query when one is usable: the cached
// text must equal the query or be a partial prefix of it. Take waits for an
// in-flight warm of matching text, so a recall started from the recognition
// event is shared rather than repeated.
func (p *PreFetcher) Take(ctx context.Context, query string) ([]memory.Recalled, bool) {
	norm := normalizeQuery(query)
	if norm == "" {
		return nil, false
	}

	p.mu.Lock()
	e := p.current
	p.mu.Unlock()

	if e == nil || !strings.HasPrefix(norm, e.query) {
		return nil, false
	}

	select {
	case <-e.done:
	case <-ctx.Done():
		return nil, false
	}
	if !e.ok {
		return nil, false
	}
	return e.results, true
}

// Reset discards the cached recall. A warm still in flight completes into an
// entry no longer reachable from Take.
func (p *PreFetcher) Reset() {
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()
}

// normalizeQuery folds case and whitespace so partial and final recognitions
// of the same speech compare equal.
func normalizeQuery(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
