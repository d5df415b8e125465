// Package oww implements wakeword.Engine against a running openWakeWord
// scoring server.
//
// The server accepts raw PCM frames at POST /score and answers with a JSON
// map of keyword → score. The engine reports the best-scoring keyword above
// the configured threshold.
//
// Usage:
//
//	e, err := oww.New("http://localhost:9002", oww.WithThreshold(0.6))
//	hit, err := e.Process(ctx, frame, 16000)
package oww

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/kiwivoice/kiwi/pkg/provider/wakeword"
)

const defaultThreshold = 0.5

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithThreshold sets the minimum score for a detection. Defaults to 0.5.
func WithThreshold(t float64) Option {
	return func(e *Engine) { e.threshold = t }
}

// WithTimeout bounds each scoring request. Defaults to 2s; scoring sits on
// the frame path, so keep this tight.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.client.Timeout = d }
}

// Engine implements wakeword.Engine backed by an openWakeWord HTTP server.
type Engine struct {
	serverURL string
	threshold float64
	client    *http.Client

	keywords []string
}

var _ wakeword.Engine = (*Engine)(nil)

// New creates an Engine talking to serverURL (e.g., "http://localhost:9002").
func New(serverURL string, opts ...Option) (*Engine, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("oww: server URL must not be empty")
	}
	e := &Engine{
		serverURL: serverURL,
		threshold: defaultThreshold,
		client:    &http.Client{Timeout: 2 * time.Second},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Process implements wakeword.Engine.
func (e *Engine) Process(ctx context.Context, pcm []byte, sampleRate int) (wakeword.Hit, error) {
	if len(pcm) == 0 {
		return wakeword.Hit{}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.serverURL+"/score", bytes.NewReader(pcm))
	if err != nil {
		return wakeword.Hit{}, fmt.Errorf("oww: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Sample-Rate", strconv.Itoa(sampleRate))

	resp, err := e.client.Do(req)
	if err != nil {
		return wakeword.Hit{}, fmt.Errorf("oww: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return wakeword.Hit{}, fmt.Errorf("oww: server returned %s: %s", resp.Status, body)
	}

	var scores map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&scores); err != nil {
		return wakeword.Hit{}, fmt.Errorf("oww: decode scores: %w", err)
	}
	e.rememberKeywords(scores)

	var best wakeword.Hit
	for kw, score := range scores {
		if score >= e.threshold && score > best.Confidence {
			best = wakeword.Hit{Keyword: kw, Confidence: score}
		}
	}
	return best, nil
}

// Keywords implements wakeword.Engine. The list is learned from server
// responses; it is empty until the first successful Process call.
func (e *Engine) Keywords() []string {
	return e.keywords
}

func (e *Engine) rememberKeywords(scores map[string]float64) {
	if len(e.keywords) == len(scores) {
		return
	}
	kws := make([]string, 0, len(scores))
	for kw := range scores {
		kws = append(kws, kw)
	}
	sort.Strings(kws)
	e.keywords = kws
}
