package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// charsPerToken is the heuristic ratio used for token estimation.
// English text averages roughly 4 characters per token across common
// LLM tokenizers. This avoids pulling in a tokenizer dependency.
const charsPerToken = 4

// DialogWindow holds conversation turns that aged out of the short-term ring
// and keeps them within a token budget. When the estimated token count
// exceeds thresholdRatio times maxTokens, the oldest half of the held turns
// is compressed into a summary. [DialogWindow.Summary] then yields a compact
// account of everything that no longer fits in recent history.
//
// All methods are safe for concurrent use.
type DialogWindow struct {
	maxTokens      int
	thresholdRatio float64
	summariser     Summariser

	mu            sync.Mutex
	currentTokens int
	turns         []ShortTermMemory
	summaries     []string
}

// DialogWindowConfig configures a [DialogWindow].
type DialogWindowConfig struct {
	// MaxTokens is the budget for held turns plus accumulated summaries.
	// Defaults to 2000 if zero.
	MaxTokens int

	// ThresholdRatio is the fraction of MaxTokens at which compression is
	// triggered. Defaults to 0.75 if zero or negative.
	ThresholdRatio float64

	// Summariser compresses the oldest turns when the threshold is exceeded.
	// Must not be nil.
	Summariser Summariser
}

// NewDialogWindow creates a [DialogWindow] with the given configuration.
func NewDialogWindow(cfg DialogWindowConfig) *DialogWindow {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2000
	}
	ratio := cfg.ThresholdRatio
	if ratio <= 0 {
		ratio = 0.75
	}
	return &DialogWindow{
		maxTokens:      maxTokens,
		thresholdRatio: ratio,
		summariser:     cfg.Summariser,
		turns:          make([]ShortTermMemory, 0),
		summaries:      make([]string, 0),
	}
}

// Absorb takes ownership of turns evicted from recent history. If the
// accumulated token estimate exceeds threshold times maxTokens, the oldest
// half of the held turns is compressed into a summary.
func (w *DialogWindow) Absorb(ctx context.Context, turns ...ShortTermMemory) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, t := range turns {
		w.turns = append(w.turns, t)
		w.currentTokens += estimateTurnTokens(t)
	}

	threshold := int(float64(w.maxTokens) * w.thresholdRatio)
	if w.currentTokens > threshold && len(w.turns) > 1 {
		if err := w.compressOldest(ctx); err != nil {
			return fmt.Errorf("memory: window compression: %w", err)
		}
	}

	return nil
}

// Summary returns the accumulated summaries joined in chronological order,
// or the empty string when nothing has been compressed yet.
func (w *DialogWindow) Summary() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return strings.Join(w.summaries, "\n")
}

// TokenEstimate returns the current estimated token count, including
// summary tokens.
func (w *DialogWindow) TokenEstimate() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentTokens
}

// Held returns how many absorbed turns are not yet compressed.
func (w *DialogWindow) Held() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.turns)
}

// Reset clears all held turns and summaries.
func (w *DialogWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.turns = w.turns[:0]
	w.summaries = w.summaries[:0]
	w.currentTokens = 0
}

// compressOldest folds the oldest half of the held turns into a summary.
// Must be called with w.mu held.
func (w *DialogWindow) compressOldest(ctx context.Context) error {
	half := len(w.turns) / 2
	if half == 0 {
		half = 1
	}

	toSummarise := make([]ShortTermMemory, half)
	copy(toSummarise, w.turns[:half])

	// Temporarily release the lock for the (potentially slow) LLM call.
	w.mu.Unlock()
	summary, err := w.summariser.Summarise(ctx, toSummarise)
	w.mu.Lock()
	if err != nil {
		return err
	}

	removedTokens := 0
	for _, t := range w.turns[:half] {
		removedTokens += estimateTurnTokens(t)
	}

	w.turns = w.turns[half:]
	w.currentTokens -= removedTokens

	if summary != "" {
		w.summaries = append(w.summaries, summary)
		w.currentTokens += len(summary) / charsPerToken
	}

	return nil
}

// estimateTurnTokens returns a rough token count for one turn using the
// 1-token-per-4-characters heuristic.
func estimateTurnTokens(t ShortTermMemory) int {
	chars := len(t.Query) + len(t.Response) + len(t.Agent)
	for _, tool := range t.ToolsUsed {
		chars += len(tool)
	}
	tokens := chars / charsPerToken
	if tokens == 0 && chars > 0 {
		tokens = 1
	}
	return tokens
}
