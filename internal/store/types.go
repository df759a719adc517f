// Package store provides PostgreSQL persistence for documents, chat
// sessions, and research tasks.
//
// All stores are safe for concurrent use: they hold no per-call state and
// every operation acquires its own connection from the pool.
package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound indicates the requested record does not exist.
// Check with errors.Is().
var ErrNotFound = errors.New("record not found")

// Document status values.
const (
	DocumentStatusPending    = "pending"
	DocumentStatusProcessing = "processing"
	DocumentStatusCompleted  = "completed"
	DocumentStatusFailed     = "failed"
)

// Research task status values.
const (
	TaskStatusPending    = "pending"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
	TaskStatusFailed     = "failed"
)

// Chat message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Document represents an ingested source document.
type Document struct {
	ID        uuid.UUID
	Filename  string
	Title     string
	PageCount int
	Status    string
	Metadata  map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DocumentChunk is a contiguous span of document text with its embedding.
type DocumentChunk struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	ChunkIndex int
	Content    string
	PageNumber int
	Embedding  []float32
	Metadata   map[string]any
	CreatedAt  time.Time
}

// ChatSession groups the messages of one conversation, optionally scoped
// to a single document.
type ChatSession struct {
	ID           uuid.UUID
	DocumentID   uuid.UUID // uuid.Nil when the session is not document-scoped
	SessionName  string
	CreatedAt    time.Time
	LastActivity time.Time
}

// ChatMessage is one persisted conversation turn.
type ChatMessage struct {
	ID               uuid.UUID
	SessionID        uuid.UUID
	Role             string
	Content          string
	TokenCount       int
	RetrievedChunks  []string
	SimilarityScores []float64
	CreatedAt        time.Time
}

// ResearchTask records one research run over a topic.
type ResearchTask struct {
	ID          uuid.UUID
	DocumentID  uuid.UUID // uuid.Nil for corpus-wide research
	Topic       string
	Status      string
	Findings    string
	Sources     []string
	ErrorLog    string
	CreatedAt   time.Time
	CompletedAt time.Time // zero when not yet completed
}
