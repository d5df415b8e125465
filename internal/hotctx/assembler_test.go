package hotctx_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kiwivoice/kiwi/internal/execution"
	"github.com/kiwivoice/kiwi/internal/hotctx"
	"github.com/kiwivoice/kiwi/internal/memory"
	"github.com/kiwivoice/kiwi/internal/session"
)

// TestAssemble_AllSources verifies that every context component is populated
// when all sources are wired.
func TestAssemble_AllSources(t *testing.T) {
	t.Parallel()

	mem := &stubMemory{
		recent: turns("good morning", "play some jazz", "navigate home"),
		related: []memory.Recalled{
			recalled("turn on the seat heating", "Seat heating is on.", 0.91),
			recalled("make it warmer", "Temperature raised to 24 degrees.", 0.84),
		},
		summary: "The driver asked about charging stations near Munich.",
		longTerm: memory.LongTermMemory{
			Profile:     map[string]any{"name": "Sam"},
			Preferences: map[string]any{"music": []any{"jazz"}},
		},
	}
	sessions := &stubSessions{
		active: &session.Session{ID: "s-1", Agent: "navigation_agent", State: session.StateRunning},
		depth:  2,
	}
	vehicle := &stubVehicle{snap: execution.DefaultVehicleState()}

	a := hotctx.NewAssembler(sessions, mem, hotctx.WithVehicleState(vehicle))
	tc, err := a.Assemble(context.Background(), "driver", "drive to the office")
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	if len(tc.Recent) != 3 {
		t.Errorf("len(Recent) = %d, want 3", len(tc.Recent))
	}
	if len(tc.Related) != 2 {
		t.Errorf("len(Related) = %d, want 2", len(tc.Related))
	}
	if tc.HistorySummary != mem.summary {
		t.Errorf("HistorySummary = %q, want %q", tc.HistorySummary, mem.summary)
	}
	if tc.LongTerm == nil || tc.LongTerm.Profile["name"] != "Sam" {
		t.Errorf("LongTerm not carried over: %+v", tc.LongTerm)
	}
	if tc.ActiveSession == nil || tc.ActiveSession.Agent != "navigation_agent" {
		t.Errorf("ActiveSession not carried over: %+v", tc.ActiveSession)
	}
	if tc.StackDepth != 2 {
		t.Errorf("StackDepth = %d, want 2", tc.StackDepth)
	}
	if tc.Vehicle == nil {
		t.Fatal("Vehicle is nil")
	}
	if tc.AssemblyDuration <= 0 {
		t.Error("AssemblyDuration should be positive")
	}
}

// TestAssemble_NoMemory verifies that a nil memory source leaves the
// conversation fields empty but non-nil where the contract demands it.
func TestAssemble_NoMemory(t *testing.T) {
	t.Parallel()

	sessions := &stubSessions{}
	a := hotctx.NewAssembler(sessions, nil)

	tc, err := a.Assemble(context.Background(), "driver", "hello")
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if tc.Recent == nil || len(tc.Recent) != 0 {
		t.Errorf("Recent = %v, want empty non-nil slice", tc.Recent)
	}
	if tc.Related == nil || len(tc.Related) != 0 {
		t.Errorf("Related = %v, want empty non-nil slice", tc.Related)
	}
	if tc.LongTerm != nil {
		t.Errorf("LongTerm = %+v, want nil", tc.LongTerm)
	}
	if tc.ActiveSession != nil {
		t.Errorf("ActiveSession = %+v, want nil", tc.ActiveSession)
	}
}

// TestAssemble_NilSessions verifies that the assembler works without a
// session source.
func TestAssemble_NilSessions(t *testing.T) {
	t.Parallel()

	mem := &stubMemory{recent: turns("hello")}
	a := hotctx.NewAssembler(nil, mem)

	tc, err := a.Assemble(context.Background(), "driver", "hello")
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if tc.ActiveSession != nil || tc.StackDepth != 0 {
		t.Errorf("session fields populated without a source: %+v depth %d",
			tc.ActiveSession, tc.StackDepth)
	}
	if len(tc.Recent) != 1 {
		t.Errorf("len(Recent) = %d, want 1", len(tc.Recent))
	}
}

// TestAssemble_RecallFailureDegrades verifies that a failed semantic recall
// does not fail assembly; the turn proceeds without related exchanges.
func TestAssemble_RecallFailureDegrades(t *testing.T) {
	t.Parallel()

	mem := &stubMemory{
		recent:     turns("good morning"),
		relatedErr: errors.New("vector index unreachable"),
	}
	a := hotctx.NewAssembler(&stubSessions{}, mem)

	tc, err := a.Assemble(context.Background(), "driver", "play jazz")
	if err != nil {
		t.Fatalf("Assemble() error = %v, want degraded success", err)
	}
	if len(tc.Related) != 0 {
		t.Errorf("len(Related) = %d, want 0", len(tc.Related))
	}
	if len(tc.Recent) != 1 {
		t.Errorf("len(Recent) = %d, want 1; other components must still assemble", len(tc.Recent))
	}
}

// TestAssemble_Options verifies that the turn-count options reach the
// underlying source calls.
func TestAssemble_Options(t *testing.T) {
	t.Parallel()

	mem := &stubMemory{recent: turns("a", "b", "c")}
	a := hotctx.NewAssembler(&stubSessions{}, mem,
		hotctx.WithRecentTurns(2),
		hotctx.WithRelatedTurns(7),
	)

	if _, err := a.Assemble(context.Background(), "driver", "anything"); err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if got := mem.lastRecentN(); got != 2 {
		t.Errorf("Recent called with n = %d, want 2", got)
	}
	if got := mem.lastRelatedTopK(); got != 7 {
		t.Errorf("Related called with topK = %d, want 7", got)
	}
}

// TestAssemble_PreFetchHit verifies that a warmed pre-fetch replaces the
// fresh recall entirely.
func TestAssemble_PreFetchHit(t *testing.T) {
	t.Parallel()

	warmed := []memory.Recalled{recalled("last jazz request", "Playing jazz.", 0.95)}
	pf := hotctx.NewPreFetcher(&stubRecaller{results: warmed})
	pf.Warm("play some jazz")

	mem := &stubMemory{related: []memory.Recalled{recalled("cold", "cold", 0.9)}}
	a := hotctx.NewAssembler(&stubSessions{}, mem, hotctx.WithPreFetcher(pf))

	tc, err := a.Assemble(context.Background(), "driver", "play some jazz")
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if len(tc.Related) != 1 || tc.Related[0].Query != "last jazz request" {
		t.Errorf("Related = %+v, want the pre-fetched exchange", tc.Related)
	}
	if calls := mem.relatedCallCount(); calls != 0 {
		t.Errorf("memory recall ran %d times despite pre-fetch hit", calls)
	}
}

// TestAssemble_PreFetchMissFallsThrough verifies that an unmatched pre-fetch
// falls back to a fresh recall.
func TestAssemble_PreFetchMissFallsThrough(t *testing.T) {
	t.Parallel()

	pf := hotctx.NewPreFetcher(&stubRecaller{})
	pf.Warm("navigate home")

	mem := &stubMemory{related: []memory.Recalled{recalled("fresh", "fresh", 0.9)}}
	a := hotctx.NewAssembler(&stubSessions{}, mem, hotctx.WithPreFetcher(pf))

	tc, err := a.Assemble(context.Background(), "driver", "play some jazz")
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if calls := mem.relatedCallCount(); calls != 1 {
		t.Errorf("memory recall ran %d times, want 1", calls)
	}
	if len(tc.Related) != 1 || tc.Related[0].Query != "fresh" {
		t.Errorf("Related = %+v, want the fresh recall", tc.Related)
	}
}

// TestAssemble_ContextCancellation verifies that a pre-cancelled context
// aborts assembly with an error.
func TestAssemble_ContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := hotctx.NewAssembler(&stubSessions{}, &stubMemory{})
	if _, err := a.Assemble(ctx, "driver", "hello"); err == nil {
		t.Fatal("expected error from cancelled context, got nil")
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// test doubles
// ─────────────────────────────────────────────────────────────────────────────

func turns(queries ...string) []memory.ShortTermMemory {
	out := make([]memory.ShortTermMemory, len(queries))
	for i, q := range queries {
		out[i] = memory.ShortTermMemory{
			Query:     q,
			Response:  "ok",
			Timestamp: time.Now().Add(-time.Duration(len(queries)-i) * time.Minute),
		}
	}
	return out
}

func recalled(query, response string, score float64) memory.Recalled {
	return memory.Recalled{
		ShortTermMemory: memory.ShortTermMemory{
			Query:     query,
			Response:  response,
			Timestamp: time.Now().Add(-2 * time.Hour),
		},
		Score: score,
	}
}

type stubMemory struct {
	recent     []memory.ShortTermMemory
	related    []memory.Recalled
	relatedErr error
	summary    string
	longTerm   memory.LongTermMemory

	mu           sync.Mutex
	recentN      int
	relatedTopK  int
	relatedCalls int
}

var _ hotctx.MemorySource = (*stubMemory)(nil)

func (s *stubMemory) Recent(n int) []memory.ShortTermMemory {
	s.mu.Lock()
	s.recentN = n
	s.mu.Unlock()
	if n > len(s.recent) {
		n = len(s.recent)
	}
	return append([]memory.ShortTermMemory{}, s.recent[len(s.recent)-n:]...)
}

func (s *stubMemory) Related(ctx context.Context, query string, topK int) ([]memory.Recalled, error) {
	s.mu.Lock()
	s.relatedTopK = topK
	s.relatedCalls++
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.relatedErr != nil {
		return nil, s.relatedErr
	}
	return s.related, nil
}

func (s *stubMemory) HistorySummary() string { return s.summary }

func (s *stubMemory) LongTerm() memory.LongTermMemory { return s.longTerm }

func (s *stubMemory) lastRecentN() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recentN
}

func (s *stubMemory) lastRelatedTopK() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.relatedTopK
}

func (s *stubMemory) relatedCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.relatedCalls
}

type stubSessions struct {
	active *session.Session
	depth  int
}

var _ hotctx.SessionSource = (*stubSessions)(nil)

func (s *stubSessions) Active(string) (session.Session, bool) {
	if s.active == nil {
		return session.Session{}, false
	}
	return *s.active, true
}

func (s *stubSessions) Stack(string) []session.Session {
	return make([]session.Session, s.depth)
}

type stubVehicle struct {
	snap execution.VehicleState
}

var _ hotctx.VehicleSource = (*stubVehicle)(nil)

func (s *stubVehicle) Snapshot() execution.VehicleState { return s.snap }
