// Package embeddings defines the Provider interface for text embedding backends.
//
// The memory subsystem embeds conversation rounds and recall queries through
// this interface; the vector store only ever sees the resulting float32
// vectors. Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the interface all embedding backends implement.
type Provider interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the length of the vectors this provider produces.
	Dimensions() int

	// ModelID identifies the underlying embedding model.
	ModelID() string
}
