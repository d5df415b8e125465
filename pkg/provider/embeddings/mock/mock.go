// Package mock provides a deterministic embeddings.Provider for tests.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
)

// Provider produces deterministic pseudo-embeddings derived from the input
// text. Identical texts always embed identically, so cosine-similarity
// assertions in tests are stable. Texts registered with SetVector return
// that exact vector instead.
type Provider struct {
	// Err, when non-nil, is returned by every call.
	Err error

	dims int

	mu    sync.Mutex
	fixed map[string][]float32
	calls int
}

// New creates a mock provider emitting vectors of the given dimension.
func New(dims int) *Provider {
	if dims <= 0 {
		dims = 8
	}
	return &Provider{dims: dims, fixed: make(map[string][]float32)}
}

// SetVector pins the exact vector returned for text.
func (p *Provider) SetVector(text string, vec []float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fixed[text] = vec
}

// Calls reports how many embed calls have been made.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Embed implements embeddings.Provider.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Err != nil {
		return nil, p.Err
	}

	p.mu.Lock()
	p.calls++
	if vec, ok := p.fixed[text]; ok {
		p.mu.Unlock()
		return vec, nil
	}
	p.mu.Unlock()

	return derive(text, p.dims), nil
}

// EmbedBatch implements embeddings.Provider.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int { return p.dims }

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string { return "mock-embeddings" }

// derive hashes the text into a unit vector.
func derive(text string, dims int) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, dims)
	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		v := float64(int64(seed)) / math.MaxInt64
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec
}
