// Package pgvector implements vectordb.Store on PostgreSQL with the pgvector
// extension.
//
// All collections share one table keyed by (collection, id); queries use the
// cosine distance operator (<=>) with an HNSW index. The schema is created
// on construction, so pointing the store at an empty database with the
// vector extension installed is enough.
package pgvector

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"

	"github.com/kiwivoice/kiwi/pkg/vectordb"
)

// Store implements vectordb.Store backed by a pgxpool connection pool.
type Store struct {
	pool *pgxpool.Pool
	dims int
}

var _ vectordb.Store = (*Store)(nil)

// New connects to the database at dsn and ensures the schema exists. dims is
// the embedding dimensionality; it is fixed per deployment because the
// column type carries it.
func New(ctx context.Context, dsn string, dims int) (*Store, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("pgvector: dims must be positive, got %d", dims)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgvector: connect: %w", err)
	}

	s := &Store{pool: pool, dims: dims}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS memory_vectors (
			    collection text        NOT NULL,
			    id         text        NOT NULL,
			    embedding  vector(%d)  NOT NULL,
			    content    text        NOT NULL DEFAULT '',
			    metadata   jsonb       NOT NULL DEFAULT '{}',
			    PRIMARY KEY (collection, id)
			)`, s.dims),
		`CREATE INDEX IF NOT EXISTS memory_vectors_embedding_idx
		    ON memory_vectors USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, q := range stmts {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("pgvector: ensure schema: %w", err)
		}
	}
	return nil
}

// Upsert implements vectordb.Store.
func (s *Store) Upsert(ctx context.Context, collection string, doc vectordb.Document) error {
	if len(doc.Embedding) != s.dims {
		return fmt.Errorf("pgvector: upsert %s/%s: embedding has %d dims, want %d",
			collection, doc.ID, len(doc.Embedding), s.dims)
	}

	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("pgvector: marshal metadata: %w", err)
	}

	const q = `
		INSERT INTO memory_vectors (collection, id, embedding, content, metadata)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (collection, id) DO UPDATE SET
		    embedding = EXCLUDED.embedding,
		    content   = EXCLUDED.content,
		    metadata  = EXCLUDED.metadata`

	_, err = s.pool.Exec(ctx, q, collection, doc.ID, pgv.NewVector(doc.Embedding), doc.Content, meta)
	if err != nil {
		return fmt.Errorf("pgvector: upsert %s/%s: %w", collection, doc.ID, err)
	}
	return nil
}

// Query implements vectordb.Store.
func (s *Store) Query(ctx context.Context, collection string, embedding []float32, topK int) ([]vectordb.Match, error) {
	if len(embedding) != s.dims {
		return nil, fmt.Errorf("pgvector: query %s: embedding has %d dims, want %d",
			collection, len(embedding), s.dims)
	}
	if topK <= 0 {
		return []vectordb.Match{}, nil
	}

	const q = `
		SELECT id, embedding, content, metadata,
		       embedding <=> $2 AS distance
		FROM   memory_vectors
		WHERE  collection = $1
		ORDER  BY distance
		LIMIT  $3`

	rows, err := s.pool.Query(ctx, q, collection, pgv.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("pgvector: query %s: %w", collection, err)
	}

	matches, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (vectordb.Match, error) {
		var (
			m    vectordb.Match
			vec  pgv.Vector
			meta []byte
		)
		if err := row.Scan(&m.ID, &vec, &m.Content, &meta, &m.Distance); err != nil {
			return vectordb.Match{}, err
		}
		m.Embedding = vec.Slice()
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &m.Metadata); err != nil {
				return vectordb.Match{}, err
			}
		}
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("pgvector: scan rows: %w", err)
	}
	if matches == nil {
		matches = []vectordb.Match{}
	}
	return matches, nil
}

// Delete implements vectordb.Store.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM memory_vectors WHERE collection = $1 AND id = $2`, collection, id)
	if err != nil {
		return fmt.Errorf("pgvector: delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// Close implements vectordb.Store.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
