package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateResearchTask inserts a task in the given status and returns it.
func (s *Store) CreateResearchTask(ctx context.Context, documentID uuid.UUID, topic, status string) (*ResearchTask, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO research_tasks (document_id, topic, status)
		VALUES ($1, $2, $3)
		RETURNING id, document_id, topic, status, findings, sources, error_log, created_at, completed_at`,
		nullableUUID(documentID), topic, status)

	task, err := scanResearchTask(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create research task: %w", err)
	}

	s.logger.Debug("created research task", "id", task.ID, "topic", task.Topic)
	return task, nil
}

// GetResearchTask retrieves a research task by ID.
// Returns ErrNotFound if the task does not exist.
func (s *Store) GetResearchTask(ctx context.Context, id uuid.UUID) (*ResearchTask, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, document_id, topic, status, findings, sources, error_log, created_at, completed_at
		FROM research_tasks
		WHERE id = $1`, id)

	task, err := scanResearchTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("research task %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get research task %s: %w", id, err)
	}
	return task, nil
}

// CompleteResearchTask records the outcome of a research run: findings,
// sources, terminal status, the joined error log, and the completion time.
func (s *Store) CompleteResearchTask(ctx context.Context, id uuid.UUID, findings string, sources []string, status, errorLog string) error {
	sourcesJSON, err := marshalNullableJSON(sources)
	if err != nil {
		return fmt.Errorf("failed to marshal sources: %w", err)
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE research_tasks
		SET findings = $2, sources = $3, status = $4,
		    error_log = NULLIF($5, ''), completed_at = now()
		WHERE id = $1`,
		id, findings, sourcesJSON, status, errorLog)
	if err != nil {
		return fmt.Errorf("failed to complete research task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("research task %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListResearchTasks lists tasks for a document, newest first.
// With documentID == uuid.Nil, lists tasks across all documents.
func (s *Store) ListResearchTasks(ctx context.Context, documentID uuid.UUID, limit, offset int) ([]*ResearchTask, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, document_id, topic, status, findings, sources, error_log, created_at, completed_at
		FROM research_tasks
		WHERE ($1::uuid IS NULL OR document_id = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		nullableUUID(documentID), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list research tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*ResearchTask
	for rows.Next() {
		task, err := scanResearchTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan research task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func scanResearchTask(row pgx.Row) (*ResearchTask, error) {
	var (
		task        ResearchTask
		docID       *uuid.UUID
		findings    *string
		sourcesJSON []byte
		errorLog    *string
		completedAt *time.Time
	)
	if err := row.Scan(&task.ID, &docID, &task.Topic, &task.Status,
		&findings, &sourcesJSON, &errorLog, &task.CreatedAt, &completedAt); err != nil {
		return nil, err
	}

	if docID != nil {
		task.DocumentID = *docID
	}
	if findings != nil {
		task.Findings = *findings
	}
	if sourcesJSON != nil {
		if err := json.Unmarshal(sourcesJSON, &task.Sources); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sources: %w", err)
		}
	}
	if errorLog != nil {
		task.ErrorLog = *errorLog
	}
	if completedAt != nil {
		task.CompletedAt = *completedAt
	}
	return &task, nil
}
