package agent

import (
	"context"
	"log/slog"

	"github.com/kiwivoice/kiwi/internal/hotctx"
	"github.com/kiwivoice/kiwi/pkg/provider/llm"
	"github.com/kiwivoice/kiwi/pkg/types"
)

// ChatAgent is the simple agent shape: one LLM turn, no tools, always
// terminal. It is the routing default for small talk and anything no
// specialist claims.
type ChatAgent struct {
	info  Info
	model llm.Provider
	log   *slog.Logger
}

var _ Agent = (*ChatAgent)(nil)

// NewChatAgent creates a ChatAgent. A nil model degrades to a fixed apology
// so the pipeline stays alive without an LLM backend.
func NewChatAgent(info Info, model llm.Provider, log *slog.Logger) *ChatAgent {
	if log == nil {
		log = slog.Default()
	}
	return &ChatAgent{info: info, model: model, log: log.With("agent", info.Name)}
}

// Info implements Agent.
func (a *ChatAgent) Info() Info { return a.info }

// Handle implements Agent.
func (a *ChatAgent) Handle(ctx context.Context, query string, actx *Context) (Response, error) {
	if a.model == nil {
		return Response{
			Agent: a.info.Name, Query: query, Status: StatusCompleted,
			Message: "Sorry, I cannot chat right now.",
		}, nil
	}

	messages := historyMessages(actx)
	messages = append(messages, types.Message{Role: "user", Content: query})

	resp, err := a.model.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: a.systemPrompt(actx),
		Messages:     messages,
		Temperature:  0.7,
	})
	if err != nil {
		a.log.Warn("chat completion failed", "error", err)
		return errorResponse(a.info.Name, query, "Sorry, I could not process that."), nil
	}

	return Response{
		Agent: a.info.Name, Query: query, Status: StatusCompleted,
		Message: resp.Content,
	}, nil
}

func (a *ChatAgent) systemPrompt(actx *Context) string {
	prompt := "You are a friendly in-car voice assistant. Answer briefly and naturally; replies are spoken aloud."
	if block := hotctx.FormatPromptContext(actx.TurnOrEmpty()); block != "" {
		prompt += "\n\n" + block
	}
	return prompt
}

// historyMessages converts recent memory turns into chat messages.
func historyMessages(actx *Context) []types.Message {
	recent := actx.TurnOrEmpty().Recent
	if len(recent) == 0 {
		return nil
	}
	out := make([]types.Message, 0, len(recent)*2)
	for _, turn := range recent {
		if turn.Query != "" {
			out = append(out, types.Message{Role: "user", Content: turn.Query})
		}
		if turn.Response != "" {
			out = append(out, types.Message{Role: "assistant", Content: turn.Response})
		}
	}
	return out
}
