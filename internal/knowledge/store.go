// Package knowledge provides vector similarity search over document
// chunks stored in PostgreSQL with pgvector.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/finsight-ai/finsight/internal/store"
)

// Querier is the subset of pgx operations the search path needs.
// *pgxpool.Pool satisfies it; tests provide a stub.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// ChunkWriter persists chunks; satisfied by *store.Store.
type ChunkWriter interface {
	AddChunk(ctx context.Context, chunk *store.DocumentChunk) (uuid.UUID, error)
}

// Store performs embedding generation and vector similarity search.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db       Querier
	chunks   ChunkWriter
	embedder ai.Embedder
	logger   *slog.Logger
}

// New creates a Store.
//
// Example (production):
//
//	ks := knowledge.New(pool, st, embedder, logger)
//
// Example (testing):
//
//	ks := knowledge.New(stubQuerier, stubWriter, stubEmbedder, nil)
func New(db Querier, chunks ChunkWriter, embedder ai.Embedder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, chunks: chunks, embedder: embedder, logger: logger}
}

// AddChunk embeds the chunk content and persists it.
// The chunk's Embedding field is ignored; a fresh embedding is generated.
func (s *Store) AddChunk(ctx context.Context, chunk *store.DocumentChunk) (uuid.UUID, error) {
	embedding, err := s.embed(ctx, chunk.Content)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to embed chunk %d of document %s: %w",
			chunk.ChunkIndex, chunk.DocumentID, err)
	}

	chunk.Embedding = embedding
	id, err := s.chunks.AddChunk(ctx, chunk)
	if err != nil {
		return uuid.Nil, err
	}

	s.logger.Debug("added chunk",
		"chunk_id", id,
		"document_id", chunk.DocumentID,
		"content_length", len(chunk.Content))
	return id, nil
}

// Search embeds the query and returns the most similar chunks ordered by
// similarity descending. Results below the configured threshold are
// excluded in SQL, not post-filtered.
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Result, error) {
	cfg := buildSearchConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	embedding, err := s.embed(queryCtx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("embedding generation timeout: %w", err)
		}
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	// <=> is pgvector's cosine distance operator; similarity = 1 - distance.
	rows, err := s.db.Query(queryCtx, `
		SELECT id, document_id, chunk_index, COALESCE(page_number, 0), content,
		       1 - (embedding <=> $1) AS similarity
		FROM document_chunks
		WHERE embedding IS NOT NULL
		  AND ($2::uuid IS NULL OR document_id = $2)
		  AND 1 - (embedding <=> $1) >= $3
		ORDER BY embedding <=> $1
		LIMIT $4`,
		pgvector.NewVector(embedding), nullableUUID(cfg.documentID), cfg.threshold, cfg.topK)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search query timeout: %w", err)
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0, cfg.topK)
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.ChunkIndex,
			&r.PageNumber, &r.Content, &r.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	s.logger.Debug("vector search completed",
		"query_length", len(query),
		"top_k", cfg.topK,
		"threshold", cfg.threshold,
		"results", len(results))
	return results, nil
}

// embed generates an embedding for one piece of text.
func (s *Store) embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			{Content: []*ai.Part{ai.NewTextPart(text)}},
		},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}
	return resp.Embeddings[0].Embedding, nil
}

// nullableUUID maps uuid.Nil to SQL NULL.
func nullableUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
