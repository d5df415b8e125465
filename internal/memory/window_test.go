package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	llmmock "github.com/kiwivoice/kiwi/pkg/provider/llm/mock"
)

// fixedTurn builds a turn whose token estimate is exactly 20.
func fixedTurn(i int) ShortTermMemory {
	return ShortTermMemory{
		Query:    strings.Repeat("q", 40),
		Response: strings.Repeat("r", 40),
		ID:       string(rune('a' + i)),
	}
}

func TestWindowHoldsTurnsBelowThreshold(t *testing.T) {
	t.Parallel()
	sum := &stubSummariser{summary: "unused"}
	w := NewDialogWindow(DialogWindowConfig{MaxTokens: 100, Summariser: sum})
	ctx := context.Background()

	// Three 20-token turns stay under the 75-token threshold.
	for i := 0; i < 3; i++ {
		if err := w.Absorb(ctx, fixedTurn(i)); err != nil {
			t.Fatalf("absorb: %v", err)
		}
	}

	if got := w.Held(); got != 3 {
		t.Errorf("held = %d, want 3", got)
	}
	if got := sum.calls(); got != 0 {
		t.Errorf("summariser calls = %d, want 0", got)
	}
	if got := w.Summary(); got != "" {
		t.Errorf("summary = %q, want empty", got)
	}
	if got := w.TokenEstimate(); got != 60 {
		t.Errorf("token estimate = %d, want 60", got)
	}
}

func TestWindowCompressesOldestHalfOverThreshold(t *testing.T) {
	t.Parallel()
	sum := &stubSummariser{summary: "earlier: settings changed"}
	w := NewDialogWindow(DialogWindowConfig{MaxTokens: 100, Summariser: sum})
	ctx := context.Background()

	// The fourth 20-token turn pushes the estimate to 80, over the threshold.
	for i := 0; i < 4; i++ {
		if err := w.Absorb(ctx, fixedTurn(i)); err != nil {
			t.Fatalf("absorb: %v", err)
		}
	}

	if got := sum.calls(); got != 1 {
		t.Fatalf("summariser calls = %d, want 1", got)
	}
	seen := sum.lastTurns()
	if len(seen) != 2 {
		t.Fatalf("summarised %d turns, want the oldest 2", len(seen))
	}
	if seen[0].ID != "a" || seen[1].ID != "b" {
		t.Errorf("summarised ids = %s,%s, want a,b", seen[0].ID, seen[1].ID)
	}
	if got := w.Held(); got != 2 {
		t.Errorf("held after compression = %d, want 2", got)
	}
	if got := w.Summary(); got != "earlier: settings changed" {
		t.Errorf("summary = %q", got)
	}
}

func TestWindowSummariesAccumulateInOrder(t *testing.T) {
	t.Parallel()
	sum := &stubSummariser{script: []string{"first", "second"}}
	w := NewDialogWindow(DialogWindowConfig{MaxTokens: 100, Summariser: sum})
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		if err := w.Absorb(ctx, fixedTurn(i)); err != nil {
			t.Fatalf("absorb %d: %v", i, err)
		}
	}

	if got := sum.calls(); got < 2 {
		t.Fatalf("summariser calls = %d, want at least 2", got)
	}
	summary := w.Summary()
	if !strings.Contains(summary, "first") || !strings.Contains(summary, "second") {
		t.Errorf("summary = %q, want both segments", summary)
	}
	if strings.Index(summary, "first") > strings.Index(summary, "second") {
		t.Errorf("summary order wrong: %q", summary)
	}
}

func TestWindowCompressionFailureKeepsTurns(t *testing.T) {
	t.Parallel()
	sum := &stubSummariser{err: errors.New("model down")}
	w := NewDialogWindow(DialogWindowConfig{MaxTokens: 100, Summariser: sum})
	ctx := context.Background()

	var absorbErr error
	for i := 0; i < 4; i++ {
		if err := w.Absorb(ctx, fixedTurn(i)); err != nil {
			absorbErr = err
		}
	}

	if absorbErr == nil {
		t.Fatal("expected an error from the failed compression")
	}
	if got := w.Held(); got != 4 {
		t.Errorf("held = %d, want all 4 turns kept on failure", got)
	}
	if got := w.Summary(); got != "" {
		t.Errorf("summary = %q, want empty", got)
	}
}

func TestWindowReset(t *testing.T) {
	t.Parallel()
	sum := &stubSummariser{summary: "s"}
	w := NewDialogWindow(DialogWindowConfig{MaxTokens: 100, Summariser: sum})

	_ = w.Absorb(context.Background(), fixedTurn(0))
	w.Reset()

	if w.Held() != 0 || w.Summary() != "" || w.TokenEstimate() != 0 {
		t.Error("reset did not clear the window")
	}
}

func TestLLMSummariserFormatsTranscript(t *testing.T) {
	t.Parallel()
	model := llmmock.New("  the user changed the cabin temperature  ")
	s := NewLLMSummariser(model)

	got, err := s.Summarise(context.Background(), []ShortTermMemory{
		{Query: "set temperature to 22", Response: "done", Agent: "vehicle_agent"},
		{Query: "thanks", Response: "you're welcome"},
	})
	if err != nil {
		t.Fatalf("summarise: %v", err)
	}
	if got != "the user changed the cabin temperature" {
		t.Errorf("summary = %q, want trimmed model output", got)
	}

	reqs := model.Requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	transcript := reqs[0].Messages[0].Content
	if !strings.Contains(transcript, "[user]: set temperature to 22") {
		t.Errorf("transcript missing user line: %q", transcript)
	}
	if !strings.Contains(transcript, "[vehicle_agent]: done") {
		t.Errorf("transcript missing agent line: %q", transcript)
	}
	if !strings.Contains(transcript, "[assistant]: you're welcome") {
		t.Errorf("transcript missing fallback speaker: %q", transcript)
	}
}

func TestLLMSummariserEmptyInput(t *testing.T) {
	t.Parallel()
	model := llmmock.New("never called")
	s := NewLLMSummariser(model)

	got, err := s.Summarise(context.Background(), nil)
	if err != nil {
		t.Fatalf("summarise: %v", err)
	}
	if got != "" {
		t.Errorf("summary = %q, want empty", got)
	}
	if len(model.Requests()) != 0 {
		t.Error("empty input must not reach the model")
	}
}

// stubSummariser records calls and serves scripted summaries.
type stubSummariser struct {
	summary string
	script  []string
	err     error

	mu    sync.Mutex
	seen  [][]ShortTermMemory
	count int
}

func (s *stubSummariser) Summarise(_ context.Context, turns []ShortTermMemory) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	cp := make([]ShortTermMemory, len(turns))
	copy(cp, turns)
	s.seen = append(s.seen, cp)
	idx := s.count
	s.count++
	if idx < len(s.script) {
		return s.script[idx], nil
	}
	return s.summary, nil
}

func (s *stubSummariser) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *stubSummariser) lastTurns() []ShortTermMemory {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.seen) == 0 {
		return nil
	}
	return s.seen[len(s.seen)-1]
}
