// Package vectordb defines the vector store interface backing semantic
// memory recall.
//
// Documents live in named collections (short-term rounds and long-term
// profile fields use separate collections). Queries rank by cosine distance:
// 0 means identical direction, 2 means opposite; the memory layer converts
// distance into a similarity score as 1 - distance.
//
// Implementations must be safe for concurrent use.
package vectordb

import "context"

// Document is one stored entry.
type Document struct {
	// ID is unique within a collection; upserting an existing ID replaces
	// the document.
	ID string

	// Embedding is the document's vector. All documents in a collection must
	// share one dimensionality.
	Embedding []float32

	// Content is the original text the embedding was computed from.
	Content string

	// Metadata carries small string attributes (user id, agent name,
	// timestamps) for filtering and reconstruction.
	Metadata map[string]string
}

// Match is a query result.
type Match struct {
	Document

	// Distance is the cosine distance to the query vector, ascending order.
	Distance float64
}

// Store is the interface all vector store backends implement.
type Store interface {
	// Upsert inserts or replaces a document in the collection.
	Upsert(ctx context.Context, collection string, doc Document) error

	// Query returns the topK documents closest to embedding, most similar
	// first. An empty collection yields an empty slice.
	Query(ctx context.Context, collection string, embedding []float32, topK int) ([]Match, error)

	// Delete removes a document by ID. Deleting a missing document is a no-op.
	Delete(ctx context.Context, collection, id string) error

	// Close releases backend resources.
	Close() error
}
