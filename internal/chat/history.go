package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// HistoryEntry is one persisted message returned by History.
type HistoryEntry struct {
	ID         uuid.UUID `json:"id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	TokenCount int       `json:"token_count"`
	Sources    []string  `json:"sources,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// SessionInfo summarizes one chat session.
type SessionInfo struct {
	ID           uuid.UUID `json:"id"`
	DocumentID   uuid.UUID `json:"document_id,omitempty"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// History returns a session's persisted messages in chronological order.
func (a *Agent) History(ctx context.Context, sessionID uuid.UUID, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	messages, err := a.store.RecentMessages(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}

	entries := make([]HistoryEntry, 0, len(messages))
	for _, msg := range messages {
		entries = append(entries, HistoryEntry{
			ID:         msg.ID,
			Role:       msg.Role,
			Content:    msg.Content,
			TokenCount: msg.TokenCount,
			Sources:    msg.RetrievedChunks,
			CreatedAt:  msg.CreatedAt,
		})
	}
	return entries, nil
}

// Session returns metadata for one chat session.
func (a *Agent) Session(ctx context.Context, sessionID uuid.UUID) (*SessionInfo, error) {
	session, err := a.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &SessionInfo{
		ID:           session.ID,
		DocumentID:   session.DocumentID,
		Name:         session.SessionName,
		CreatedAt:    session.CreatedAt,
		LastActivity: session.LastActivity,
	}, nil
}
