package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// CreateDocument inserts a new document record and returns it with its
// generated ID and timestamps.
func (s *Store) CreateDocument(ctx context.Context, filename, title string, pageCount int, metadata map[string]any) (*Document, error) {
	metaJSON, err := marshalMetadata(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document metadata: %w", err)
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO documents (filename, title, page_count, metadata)
		VALUES ($1, NULLIF($2, ''), $3, $4)
		RETURNING id, filename, COALESCE(title, ''), page_count, status, metadata, created_at, updated_at`,
		filename, title, pageCount, metaJSON)

	doc, err := scanDocument(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	s.logger.Debug("created document", "id", doc.ID, "filename", doc.Filename)
	return doc, nil
}

// GetDocument retrieves a document by ID.
// Returns ErrNotFound if the document does not exist.
func (s *Store) GetDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, filename, COALESCE(title, ''), page_count, status, metadata, created_at, updated_at
		FROM documents
		WHERE id = $1`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	return doc, nil
}

// ListDocuments lists documents ordered by creation time descending.
func (s *Store) ListDocuments(ctx context.Context, limit, offset int) ([]*Document, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, filename, COALESCE(title, ''), page_count, status, metadata, created_at, updated_at
		FROM documents
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// UpdateDocumentStatus transitions a document to a new processing status.
func (s *Store) UpdateDocumentStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE documents SET status = $2, updated_at = now() WHERE id = $1`,
		id, status)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return nil
}

// UpdateDocumentMetadata replaces a document's metadata JSON.
func (s *Store) UpdateDocumentMetadata(ctx context.Context, id uuid.UUID, metadata map[string]any) error {
	metaJSON, err := marshalMetadata(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal document metadata: %w", err)
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE documents SET metadata = $2, updated_at = now() WHERE id = $1`,
		id, metaJSON)
	if err != nil {
		return fmt.Errorf("failed to update document metadata: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return nil
}

// AddChunk inserts one chunk with its embedding.
func (s *Store) AddChunk(ctx context.Context, chunk *DocumentChunk) (uuid.UUID, error) {
	metaJSON, err := marshalMetadata(chunk.Metadata)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal chunk metadata: %w", err)
	}

	var id uuid.UUID
	err = s.db.QueryRow(ctx, `
		INSERT INTO document_chunks (document_id, chunk_index, content, page_number, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		chunk.DocumentID, chunk.ChunkIndex, chunk.Content, chunk.PageNumber,
		pgvector.NewVector(chunk.Embedding), metaJSON).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert chunk %d of document %s: %w",
			chunk.ChunkIndex, chunk.DocumentID, err)
	}
	return id, nil
}

// CountChunks returns the number of chunks stored for a document.
func (s *Store) CountChunks(ctx context.Context, documentID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `
		SELECT count(*) FROM document_chunks WHERE document_id = $1`,
		documentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks for document %s: %w", documentID, err)
	}
	return count, nil
}

// GetChunks retrieves all chunks of a document in index order, without
// embeddings. Intended for text analysis, not similarity search.
func (s *Store) GetChunks(ctx context.Context, documentID uuid.UUID) ([]*DocumentChunk, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, document_id, chunk_index, content, COALESCE(page_number, 0), metadata, created_at
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY chunk_index`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks for document %s: %w", documentID, err)
	}
	defer rows.Close()

	var chunks []*DocumentChunk
	for rows.Next() {
		var (
			c        DocumentChunk
			metaJSON []byte
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Content,
			&c.PageNumber, &metaJSON, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if err := json.Unmarshal(metaJSON, &c.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chunk metadata: %w", err)
		}
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

// scanDocument scans one documents row. The query must select columns in
// the canonical order with title coalesced to ''.
func scanDocument(row pgx.Row) (*Document, error) {
	var (
		doc       Document
		metaJSON  []byte
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&doc.ID, &doc.Filename, &doc.Title, &doc.PageCount,
		&doc.Status, &metaJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(metaJSON, &doc.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	doc.CreatedAt = createdAt
	doc.UpdatedAt = updatedAt
	return &doc, nil
}

// marshalMetadata encodes metadata as JSONB, mapping nil to an empty object.
func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(metadata)
}
