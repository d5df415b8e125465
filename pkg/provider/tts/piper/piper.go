// Package piper implements tts.Engine against a local Piper HTTP server.
//
// Piper's server mode accepts a plain-text POST and answers with a complete
// WAV file. Playback is delegated to an injected sink so the engine stays
// free of sound-device dependencies; the audio adapter supplies a player for
// the configured output device, and tests supply a buffer.
//
// Usage:
//
//	e, err := piper.New("http://localhost:5000", piper.WithSink(player))
//	err = e.Speak(ctx, "turning on the lights")
package piper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kiwivoice/kiwi/pkg/provider/tts"
)

// Sink receives a complete synthesised WAV clip for playback. It should
// block until playback finishes.
type Sink func(ctx context.Context, wav []byte) error

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithSink sets the playback sink. The default sink discards audio, which is
// useful for headless and evaluation runs.
func WithSink(sink Sink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithTimeout bounds each synthesis request. Defaults to 30s.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.client.Timeout = d }
}

// Engine implements tts.Engine backed by a Piper HTTP server.
type Engine struct {
	serverURL string
	client    *http.Client
	sink      Sink
}

var _ tts.Engine = (*Engine)(nil)

// New creates an Engine talking to serverURL (e.g., "http://localhost:5000").
func New(serverURL string, opts ...Option) (*Engine, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("piper: server URL must not be empty")
	}
	e := &Engine{
		serverURL: serverURL,
		client:    &http.Client{Timeout: 30 * time.Second},
		sink:      func(context.Context, []byte) error { return nil },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Speak implements tts.Engine.
func (e *Engine) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.serverURL, bytes.NewBufferString(text))
	if err != nil {
		return fmt.Errorf("piper: build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("piper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("piper: server returned %s: %s", resp.Status, body)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("piper: read audio: %w", err)
	}
	if err := e.sink(ctx, wav); err != nil {
		return fmt.Errorf("piper: playback: %w", err)
	}
	return nil
}
