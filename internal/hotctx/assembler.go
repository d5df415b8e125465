// Package hotctx assembles the per-turn grounding context injected into
// routing and agent prompts.
//
// Four sources are fetched concurrently for every utterance:
//
//  1. The user's session stack: the active dialogue and how many paused
//     ones sit beneath it.
//  2. The conversation view: recent turns, the rolling history summary, and
//     the distilled long-term record.
//  3. Semantic recall of related past exchanges from the vector index.
//  4. A vehicle state snapshot.
//
// Semantic recall is the only fetch that leaves the process. A [PreFetcher]
// attached to the event bus warms it from recognition events, so by the time
// the routing decision needs the context the recall is usually cache-hot.
// Use [FormatPromptContext] to render a [TurnContext] into prompt text.
package hotctx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kiwivoice/kiwi/internal/execution"
	"github.com/kiwivoice/kiwi/internal/memory"
	"github.com/kiwivoice/kiwi/internal/session"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sources
// ─────────────────────────────────────────────────────────────────────────────

// Recaller is the semantic recall surface of the memory subsystem.
type Recaller interface {
	Related(ctx context.Context, query string, topK int) ([]memory.Recalled, error)
}

// MemorySource is the conversation view the assembler reads.
type MemorySource interface {
	Recaller
	Recent(n int) []memory.ShortTermMemory
	HistorySummary() string
	LongTerm() memory.LongTermMemory
}

// SessionSource exposes a user's session stack.
type SessionSource interface {
	Active(user string) (session.Session, bool)
	Stack(user string) []session.Session
}

// VehicleSource provides the live vehicle snapshot.
type VehicleSource interface {
	Snapshot() execution.VehicleState
}

var (
	_ MemorySource  = (*memory.Manager)(nil)
	_ SessionSource = (*session.Manager)(nil)
	_ VehicleSource = (*execution.StateStore)(nil)
)

// ─────────────────────────────────────────────────────────────────────────────
// Public types
// ─────────────────────────────────────────────────────────────────────────────

// TurnContext is the assembled grounding for one utterance. Recent and
// Related are never nil; the pointer fields are nil when the backing source
// is absent.
type TurnContext struct {
	// ActiveSession is the user's current top-of-stack session, nil when
	// idle.
	ActiveSession *session.Session

	// StackDepth counts the user's open sessions, the active one included.
	StackDepth int

	// Recent holds the last turns of conversation, oldest first.
	Recent []memory.ShortTermMemory

	// Related holds past exchanges semantically close to the utterance.
	Related []memory.Recalled

	// HistorySummary condenses conversation that aged out of Recent.
	HistorySummary string

	// LongTerm is the distilled user record.
	LongTerm *memory.LongTermMemory

	// Vehicle is a point-in-time copy of the vehicle state.
	Vehicle *execution.VehicleState

	// AssemblyDuration records how long [Assembler.Assemble] took.
	AssemblyDuration time.Duration
}

// ─────────────────────────────────────────────────────────────────────────────
// Assembler
// ─────────────────────────────────────────────────────────────────────────────

// Assembler concurrently fetches every context source and combines them into
// a [TurnContext].
type Assembler struct {
	sessions SessionSource
	mem      MemorySource
	vehicle  VehicleSource
	prefetch *PreFetcher

	recentTurns  int
	relatedTurns int
	log          *slog.Logger
}

// Option is a functional option for [NewAssembler].
type Option func(*Assembler)

// WithRecentTurns sets how many recent conversation turns are included in
// [TurnContext.Recent]. Defaults to 5.
func WithRecentTurns(n int) Option {
	return func(a *Assembler) { a.recentTurns = n }
}

// WithRelatedTurns caps the semantic recall in [TurnContext.Related].
// Defaults to 3.
func WithRelatedTurns(n int) Option {
	return func(a *Assembler) { a.relatedTurns = n }
}

// WithVehicleState adds a vehicle snapshot to every assembly.
func WithVehicleState(v VehicleSource) Option {
	return func(a *Assembler) { a.vehicle = v }
}

// WithPreFetcher makes Assemble consult p before running a fresh recall.
func WithPreFetcher(p *PreFetcher) Option {
	return func(a *Assembler) { a.prefetch = p }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(a *Assembler) { a.log = log }
}

// NewAssembler creates an [Assembler]. Both sources may be nil: a nil
// sessions leaves the session fields empty, a nil mem disables the
// conversation view and recall. Apply [Option] values to override defaults.
func NewAssembler(sessions SessionSource, mem MemorySource, opts ...Option) *Assembler {
	a := &Assembler{
		sessions:     sessions,
		mem:          mem,
		recentTurns:  5,
		relatedTurns: 3,
		log:          slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Assemble fetches all context sources in parallel and returns a fully
// populated [TurnContext].
//
// A failed semantic recall degrades to an empty Related slice instead of
// failing the turn; the voice path must keep moving when the vector index
// is unreachable. The only error Assemble returns is context cancellation,
// wrapped with a "turn context: " prefix.
func (a *Assembler) Assemble(ctx context.Context, userID, query string) (*TurnContext, error) {
	start := time.Now()
	tc := &TurnContext{
		Recent:  []memory.ShortTermMemory{},
		Related: []memory.Recalled{},
	}

	eg, egCtx := errgroup.WithContext(ctx)

	if a.mem != nil {
		// Semantic recall: prefetched when possible, fresh otherwise.
		eg.Go(func() error {
			if a.prefetch != nil {
				if hits, ok := a.prefetch.Take(egCtx, query); ok {
					tc.Related = hits
					return nil
				}
			}
			hits, err := a.mem.Related(egCtx, query, a.relatedTurns)
			if err != nil {
				if egCtx.Err() != nil {
					return fmt.Errorf("turn context: related recall: %w", err)
				}
				a.log.Warn("related recall failed, assembling without it", "error", err)
				return nil
			}
			tc.Related = hits
			return nil
		})

		// Conversation view.
		eg.Go(func() error {
			tc.Recent = a.mem.Recent(a.recentTurns)
			tc.HistorySummary = a.mem.HistorySummary()
			lt := a.mem.LongTerm()
			tc.LongTerm = &lt
			return nil
		})
	}

	if a.sessions != nil {
		eg.Go(func() error {
			if active, ok := a.sessions.Active(userID); ok {
				tc.ActiveSession = &active
			}
			tc.StackDepth = len(a.sessions.Stack(userID))
			return nil
		})
	}

	if a.vehicle != nil {
		eg.Go(func() error {
			snap := a.vehicle.Snapshot()
			tc.Vehicle = &snap
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("turn context: %w", err)
	}

	tc.AssemblyDuration = time.Since(start)
	return tc, nil
}
