package chat

import (
	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/finsight-ai/finsight/internal/knowledge"
	"github.com/finsight-ai/finsight/internal/workflow"
)

// Node names of the chat state machine.
const (
	stepLoadContext = "load_context"
	stepAgent       = "agent"
	stepTools       = "tools"
	stepSave        = "save_interaction"
)

// SourcePreview is a truncated citation returned to the caller.
type SourcePreview struct {
	ChunkID         uuid.UUID `json:"chunk_id"`
	PageNumber      int       `json:"page_number"`
	SimilarityScore float64   `json:"similarity_score"`
	Preview         string    `json:"preview"`
}

// Result is the output contract of one chat turn.
type Result struct {
	Message      string          `json:"message"`
	SessionID    uuid.UUID       `json:"session_id"`
	SourcesUsed  []SourcePreview `json:"sources_used,omitempty"`
	ToolCalls    []string        `json:"tool_calls"`
	ResponseTime float64         `json:"response_time"` // seconds
	TokenCount   int             `json:"token_count"`
	Errors       []string        `json:"errors,omitempty"`
}

// state carries one chat turn through the workflow.
type state struct {
	workflow.BaseState

	UserMessage string
	SessionID   uuid.UUID
	DocumentID  uuid.UUID

	History  []*ai.Message // persisted turns loaded at start
	Exchange []*ai.Message // current turn: user message, model turns, tool results

	ToolCalls   []string
	ToolRounds  int
	SourcesUsed []knowledge.Result

	FinalResponse string
}

// lastMessage returns the newest message of the exchange, or nil.
func (s *state) lastMessage() *ai.Message {
	if len(s.Exchange) == 0 {
		return nil
	}
	return s.Exchange[len(s.Exchange)-1]
}

// pendingToolRequests returns the tool calls requested by the newest
// exchange message, if it is a model message.
func (s *state) pendingToolRequests() []*ai.ToolRequest {
	last := s.lastMessage()
	if last == nil || last.Role != ai.RoleModel {
		return nil
	}
	var reqs []*ai.ToolRequest
	for _, part := range last.Content {
		if part.ToolRequest != nil {
			reqs = append(reqs, part.ToolRequest)
		}
	}
	return reqs
}
