package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateSession creates a new chat session.
// documentID may be uuid.Nil for a session not scoped to a document.
func (s *Store) CreateSession(ctx context.Context, documentID uuid.UUID, name string) (*ChatSession, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO chat_sessions (document_id, session_name)
		VALUES ($1, $2)
		RETURNING id, document_id, session_name, created_at, last_activity`,
		nullableUUID(documentID), name)

	session, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Debug("created chat session", "id", session.ID, "name", session.SessionName)
	return session, nil
}

// GetSession retrieves a chat session by ID.
// Returns ErrNotFound if the session does not exist.
func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*ChatSession, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, document_id, session_name, created_at, last_activity
		FROM chat_sessions
		WHERE id = $1`, id)

	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return session, nil
}

// ListSessions lists chat sessions ordered by last activity descending.
func (s *Store) ListSessions(ctx context.Context, limit, offset int) ([]*ChatSession, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, document_id, session_name, created_at, last_activity
		FROM chat_sessions
		ORDER BY last_activity DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*ChatSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// TouchSession bumps a session's last_activity timestamp.
func (s *Store) TouchSession(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE chat_sessions SET last_activity = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteSession deletes a session and all its messages (CASCADE).
func (s *Store) DeleteSession(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM chat_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}

	s.logger.Debug("deleted chat session", "id", id)
	return nil
}

// AddMessage persists one conversation turn.
func (s *Store) AddMessage(ctx context.Context, msg *ChatMessage) (uuid.UUID, error) {
	chunksJSON, err := marshalNullableJSON(msg.RetrievedChunks)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal retrieved chunks: %w", err)
	}
	scoresJSON, err := marshalNullableJSON(msg.SimilarityScores)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal similarity scores: %w", err)
	}

	var id uuid.UUID
	err = s.db.QueryRow(ctx, `
		INSERT INTO chat_messages (session_id, role, content, token_count, retrieved_chunks, similarity_scores)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		msg.SessionID, msg.Role, msg.Content, msg.TokenCount, chunksJSON, scoresJSON).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert message: %w", err)
	}
	return id, nil
}

// SaveExchange persists one user/assistant turn and bumps the session's
// last activity in a single transaction, so a half-written turn never
// becomes visible history.
func (s *Store) SaveExchange(ctx context.Context, userMsg, assistantMsg *ChatMessage) error {
	return s.WithTx(ctx, func(tx *Store) error {
		if _, err := tx.AddMessage(ctx, userMsg); err != nil {
			return err
		}
		if _, err := tx.AddMessage(ctx, assistantMsg); err != nil {
			return err
		}
		return tx.TouchSession(ctx, userMsg.SessionID)
	})
}

// RecentMessages returns the most recent messages of a session in
// chronological order. The query fetches newest-first and the result is
// reversed so callers can feed it to the model directly.
func (s *Store) RecentMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]*ChatMessage, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, session_id, role, content, token_count, retrieved_chunks, similarity_scores, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var messages []*ChatMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func scanSession(row pgx.Row) (*ChatSession, error) {
	var (
		session ChatSession
		docID   *uuid.UUID
	)
	if err := row.Scan(&session.ID, &docID, &session.SessionName,
		&session.CreatedAt, &session.LastActivity); err != nil {
		return nil, err
	}
	if docID != nil {
		session.DocumentID = *docID
	}
	return &session, nil
}

func scanMessage(row pgx.Row) (*ChatMessage, error) {
	var (
		msg        ChatMessage
		chunksJSON []byte
		scoresJSON []byte
	)
	if err := row.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content,
		&msg.TokenCount, &chunksJSON, &scoresJSON, &msg.CreatedAt); err != nil {
		return nil, err
	}
	if chunksJSON != nil {
		if err := json.Unmarshal(chunksJSON, &msg.RetrievedChunks); err != nil {
			return nil, fmt.Errorf("failed to unmarshal retrieved chunks: %w", err)
		}
	}
	if scoresJSON != nil {
		if err := json.Unmarshal(scoresJSON, &msg.SimilarityScores); err != nil {
			return nil, fmt.Errorf("failed to unmarshal similarity scores: %w", err)
		}
	}
	return &msg, nil
}

// nullableUUID maps uuid.Nil to SQL NULL.
func nullableUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

// marshalNullableJSON encodes v as JSONB, mapping empty slices to SQL NULL.
func marshalNullableJSON[T any](v []T) ([]byte, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return json.Marshal(v)
}
