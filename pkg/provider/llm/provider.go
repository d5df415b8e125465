// Package llm defines the Provider interface for large language model backends.
//
// A Provider wraps a chat-completion API and surfaces it in two modes:
// streaming (token chunks over a channel) and blocking (a single response).
// The orchestrator, the agent runtime, and the memory distiller all consume
// this interface; which concrete backend sits behind it is a config concern.
//
// Implementors must be safe for concurrent use. Channels returned by
// StreamCompletion must be closed by the implementation when the stream ends
// or when the supplied context is cancelled.
package llm

import (
	"context"

	"github.com/kiwivoice/kiwi/pkg/types"
)

// CompletionRequest carries everything the LLM needs to produce a response.
// Callers should treat a zero-value request as invalid; at minimum Messages
// must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is
	// typically from the "user" role and drives the response.
	Messages []types.Message

	// SystemPrompt is an optional high-priority instruction injected before
	// the conversation history.
	SystemPrompt string

	// Tools is the set of function/tool definitions offered to the model.
	// The model may choose to call one or more of them in its response.
	// Callers should check Capabilities().SupportsToolCalling first.
	Tools []types.ToolDefinition

	// Temperature controls output randomness in the range [0.0, 2.0]. Zero
	// requests the provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int
}

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages
	// and system prompt.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// CompletionResponse is the result of a blocking completion.
type CompletionResponse struct {
	// Content is the assistant's text reply. Empty when the model chose to
	// call tools instead.
	Content string

	// ToolCalls are the tool invocations the model requested, if any.
	ToolCalls []types.ToolCall

	// Usage is token accounting, when the backend reports it.
	Usage Usage
}

// Chunk is one increment of a streaming completion.
type Chunk struct {
	// Text is the token delta for this chunk.
	Text string

	// ToolCalls carries complete accumulated tool calls; populated only on
	// the final chunk of a tool-calling turn.
	ToolCalls []types.ToolCall

	// FinishReason is non-empty on the final chunk ("stop", "tool_calls",
	// "error", ...).
	FinishReason string
}

// Provider is the interface all LLM backends implement.
type Provider interface {
	// Complete performs a blocking completion.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// StreamCompletion performs a streaming completion. The returned channel
	// is closed when the stream ends; a chunk with FinishReason "error"
	// reports a mid-stream failure.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Capabilities describes the configured model.
	Capabilities() types.ModelCapabilities
}
