// Package types defines the shared types used across all Kiwi packages.
//
// These types form the lingua franca between providers, adapters, the agent
// runtime, and the memory subsystem. They are intentionally minimal — each
// package defines its own domain types, but cross-cutting data structures live
// here to avoid circular imports.
package types

import "time"

// AudioFrame represents a single frame of audio flowing through the pipeline.
// Frames are the atomic unit of audio transport — captured from the input
// device, scanned by the wakeword engine, gated by VAD, and batched for ASR.
type AudioFrame struct {
	// PCM audio data, 16-bit little-endian.
	Data []byte

	// SampleRate in Hz (e.g., 16000 for ASR input).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Message is one entry of an LLM conversation.
type Message struct {
	// Role: "system", "user", "assistant", or "tool".
	Role string

	// Content is the message text.
	Content string

	// Name optionally labels the participant.
	Name string

	// ToolCalls carries the tool invocations an assistant turn requested.
	ToolCalls []ToolCall

	// ToolCallID links a "tool" role message back to the call it answers.
	ToolCallID string
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	// ID is assigned by the provider and echoed back in the result message.
	ID string

	// Name of the tool to invoke.
	Name string

	// Arguments as a JSON-encoded string, exactly as the model produced them.
	Arguments string
}

// ToolDefinition describes a tool offered to the model alongside a request.
type ToolDefinition struct {
	// Name the model uses to address the tool.
	Name string

	// Description tells the model when the tool applies.
	Description string

	// Parameters is the tool's input contract as a JSON Schema document.
	Parameters map[string]any
}

// ModelCapabilities describes what an LLM model supports, so callers can
// decide between native tool calling and prompt-embedded fallbacks.
type ModelCapabilities struct {
	// ContextWindow is the combined input and output token limit.
	ContextWindow int

	// MaxOutputTokens bounds a single completion.
	MaxOutputTokens int

	// SupportsToolCalling reports native function/tool calling.
	SupportsToolCalling bool

	// SupportsVision reports image input support.
	SupportsVision bool

	// SupportsStreaming reports streaming completion support.
	SupportsStreaming bool
}
