// Package mock provides a scriptable llm.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/kiwivoice/kiwi/pkg/provider/llm"
	"github.com/kiwivoice/kiwi/pkg/types"
)

// Provider is a mock llm.Provider. Responses are served from a FIFO script;
// when the script is exhausted, Default is returned. All fields are safe to
// set before first use; method calls are safe for concurrent use.
type Provider struct {
	// Err, when non-nil, is returned by every call.
	Err error

	// Default is served when the script is empty.
	Default llm.CompletionResponse

	// Caps is returned by Capabilities.
	Caps types.ModelCapabilities

	mu       sync.Mutex
	script   []llm.CompletionResponse
	requests []llm.CompletionRequest
}

var _ llm.Provider = (*Provider)(nil)

// New creates a mock provider that answers every request with text.
func New(text string) *Provider {
	return &Provider{
		Default: llm.CompletionResponse{Content: text},
		Caps: types.ModelCapabilities{
			SupportsToolCalling: true,
			SupportsStreaming:   true,
			ContextWindow:       8192,
			MaxOutputTokens:     1024,
		},
	}
}

// Enqueue appends responses to the script, served in order.
func (p *Provider) Enqueue(resps ...llm.CompletionResponse) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.script = append(p.script, resps...)
	return p
}

// EnqueueText is shorthand for Enqueue with a text-only response.
func (p *Provider) EnqueueText(texts ...string) *Provider {
	for _, t := range texts {
		p.Enqueue(llm.CompletionResponse{Content: t})
	}
	return p
}

// EnqueueToolCall appends a response that requests a single tool call.
func (p *Provider) EnqueueToolCall(id, name, arguments string) *Provider {
	return p.Enqueue(llm.CompletionResponse{
		ToolCalls: []types.ToolCall{{ID: id, Name: name, Arguments: arguments}},
	})
}

// Requests returns a copy of every request seen so far.
func (p *Provider) Requests() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.CompletionRequest, len(p.requests))
	copy(out, p.requests)
	return out
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Err != nil {
		return nil, p.Err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)

	resp := p.Default
	if len(p.script) > 0 {
		resp = p.script[0]
		p.script = p.script[1:]
	}
	return &resp, nil
}

// StreamCompletion implements llm.Provider by emitting the blocking response
// as a single chunk.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	resp, err := p.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	ch := make(chan llm.Chunk, 2)
	ch <- llm.Chunk{Text: resp.Content, ToolCalls: resp.ToolCalls, FinishReason: "stop"}
	close(ch)
	return ch, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() types.ModelCapabilities { return p.Caps }
