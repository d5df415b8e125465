// Package inmem implements vectordb.Store with an in-process map and exact
// cosine search.
//
// It backs tests and the degraded mode where no database is configured or
// reachable: memory recall keeps working for the life of the process, it
// just does not survive a restart. Exact search over the bounded short-term
// collections is cheap enough that no index is needed.
package inmem

import (
	"context"
	"fmt"
	"maps"
	"math"
	"sort"
	"sync"

	"github.com/kiwivoice/kiwi/pkg/vectordb"
)

// Store implements vectordb.Store in process memory.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]vectordb.Document
}

var _ vectordb.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{collections: make(map[string]map[string]vectordb.Document)}
}

// Upsert implements vectordb.Store.
func (s *Store) Upsert(ctx context.Context, collection string, doc vectordb.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if doc.ID == "" {
		return fmt.Errorf("inmem: upsert in %s: empty document id", collection)
	}
	if len(doc.Embedding) == 0 {
		return fmt.Errorf("inmem: upsert %s/%s: empty embedding", collection, doc.ID)
	}

	cp := doc
	cp.Embedding = append([]float32(nil), doc.Embedding...)
	cp.Metadata = maps.Clone(doc.Metadata)

	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]vectordb.Document)
		s.collections[collection] = coll
	}
	if existing, ok := coll[doc.ID]; ok && len(existing.Embedding) != len(doc.Embedding) {
		return fmt.Errorf("inmem: upsert %s/%s: dimension mismatch %d vs %d",
			collection, doc.ID, len(doc.Embedding), len(existing.Embedding))
	}
	coll[doc.ID] = cp
	return nil
}

// Query implements vectordb.Store.
func (s *Store) Query(ctx context.Context, collection string, embedding []float32, topK int) ([]vectordb.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []vectordb.Match{}, nil
	}

	s.mu.RLock()
	coll := s.collections[collection]
	matches := make([]vectordb.Match, 0, len(coll))
	for _, doc := range coll {
		if len(doc.Embedding) != len(embedding) {
			s.mu.RUnlock()
			return nil, fmt.Errorf("inmem: query %s: dimension mismatch %d vs %d",
				collection, len(embedding), len(doc.Embedding))
		}
		matches = append(matches, vectordb.Match{
			Document: doc,
			Distance: cosineDistance(embedding, doc.Embedding),
		})
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Delete implements vectordb.Store.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections[collection], id)
	return nil
}

// Close implements vectordb.Store.
func (s *Store) Close() error { return nil }

// cosineDistance is 1 - cosine similarity, matching pgvector's <=> operator.
func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
