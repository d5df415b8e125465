package vectordb

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Guard wraps a [Store] and makes all operations non-fatal. If the underlying
// store fails, operations return empty defaults and log warnings instead of
// propagating errors.
//
// This keeps the conversation pipeline running when the vector backend is
// temporarily unavailable (database restart, network partition): recall
// degrades to the in-memory ring and writes are dropped until the backend
// recovers. The Degraded method reports whether the store is currently
// experiencing failures, which the health endpoint surfaces as a readiness
// check.
//
// All methods are safe for concurrent use.
type Guard struct {
	store    Store
	degraded atomic.Bool
}

// NewGuard creates a Guard wrapping the given store.
func NewGuard(store Store) *Guard {
	return &Guard{store: store}
}

// Upsert attempts to write the document to the underlying store. On failure
// the error is logged and swallowed; the store is marked as degraded. On
// success the degraded flag is cleared.
func (g *Guard) Upsert(ctx context.Context, collection string, doc Document) error {
	err := g.store.Upsert(ctx, collection, doc)
	if err != nil {
		g.degraded.Store(true)
		slog.Warn("vector guard: upsert failed, dropping document",
			"collection", collection,
			"id", doc.ID,
			"error", err,
		)
		return nil
	}
	g.degraded.Store(false)
	return nil
}

// Query attempts a similarity search. On failure an empty slice is returned
// and the store is marked as degraded, so recall quietly degrades to whatever
// the caller holds in memory.
func (g *Guard) Query(ctx context.Context, collection string, embedding []float32, topK int) ([]Match, error) {
	matches, err := g.store.Query(ctx, collection, embedding, topK)
	if err != nil {
		g.degraded.Store(true)
		slog.Warn("vector guard: query failed, returning empty",
			"collection", collection,
			"error", err,
		)
		return []Match{}, nil
	}
	g.degraded.Store(false)
	return matches, nil
}

// Delete attempts to remove a document. On failure the error is logged and
// swallowed; the store is marked as degraded.
func (g *Guard) Delete(ctx context.Context, collection, id string) error {
	err := g.store.Delete(ctx, collection, id)
	if err != nil {
		g.degraded.Store(true)
		slog.Warn("vector guard: delete failed", "collection", collection, "id", id, "error", err)
		return nil
	}
	g.degraded.Store(false)
	return nil
}

// Close releases the underlying store. Close errors are real resource
// failures and are passed through.
func (g *Guard) Close() error {
	return g.store.Close()
}

// Degraded reports whether the store is currently operating in degraded mode
// (i.e., the most recent operation on the underlying store failed).
func (g *Guard) Degraded() bool {
	return g.degraded.Load()
}

// Compile-time check that Guard satisfies Store.
var _ Store = (*Guard)(nil)
