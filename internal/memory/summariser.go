package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/kiwivoice/kiwi/pkg/provider/llm"
	"github.com/kiwivoice/kiwi/pkg/types"
)

// summarisationPrompt is the system prompt sent to the LLM when compressing
// older conversation turns.
const summarisationPrompt = `Summarise the following conversation between a driver and an in-car voice assistant.
Preserve: stated facts, requests and whether they were fulfilled, vehicle settings that were
changed, preferences the user expressed, and any unresolved questions.
Be concise but keep every detail a future reply might depend on.`

// Summariser produces a concise summary of a run of conversation turns.
type Summariser interface {
	// Summarise condenses the given turns into a short summary string.
	Summarise(ctx context.Context, turns []ShortTermMemory) (string, error)
}

// LLMSummariser uses an LLM provider to summarise conversations.
type LLMSummariser struct {
	llm llm.Provider
}

// NewLLMSummariser creates a new [LLMSummariser] backed by the given provider.
func NewLLMSummariser(provider llm.Provider) *LLMSummariser {
	return &LLMSummariser{llm: provider}
}

// Summarise formats the turns into a readable transcript and asks the model
// for a condensed summary.
func (s *LLMSummariser) Summarise(ctx context.Context, turns []ShortTermMemory) (string, error) {
	if len(turns) == 0 {
		return "", nil
	}

	var sb strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&sb, "[user]: %s\n", t.Query)
		speaker := "assistant"
		if t.Agent != "" {
			speaker = t.Agent
		}
		fmt.Fprintf(&sb, "[%s]: %s\n", speaker, t.Response)
	}

	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: summarisationPrompt,
		Messages: []types.Message{
			{
				Role:    "user",
				Content: sb.String(),
			},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("memory: summarise: %w", err)
	}

	return strings.TrimSpace(resp.Content), nil
}

var _ Summariser = (*LLMSummariser)(nil)
