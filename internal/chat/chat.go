// Package chat implements the chat-with-tools workflow: load history,
// run the agent, execute requested document searches, loop until the
// model answers, then persist the turn.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/finsight-ai/finsight/internal/knowledge"
	"github.com/finsight-ai/finsight/internal/llm"
	"github.com/finsight-ai/finsight/internal/search"
	"github.com/finsight-ai/finsight/internal/store"
	"github.com/finsight-ai/finsight/internal/workflow"
)

// DefaultMaxToolRounds caps AGENT to TOOLS cycles within one turn. The
// model choosing to stop requesting tools is not a safety property, so
// after the cap the agent is forced to answer without tools.
const DefaultMaxToolRounds = 5

// generator is the generation collaborator; *llm.Client satisfies it.
type generator interface {
	Generate(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// retriever is the retrieval collaborator; *search.Tool satisfies it.
type retriever interface {
	Search(ctx context.Context, p search.Params) search.Result
}

// sessionStore is the persistence collaborator; *store.Store satisfies it.
type sessionStore interface {
	CreateSession(ctx context.Context, documentID uuid.UUID, name string) (*store.ChatSession, error)
	GetSession(ctx context.Context, id uuid.UUID) (*store.ChatSession, error)
	SaveExchange(ctx context.Context, userMsg, assistantMsg *store.ChatMessage) error
	RecentMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]*store.ChatMessage, error)
}

// Config configures an Agent.
type Config struct {
	Generator generator
	Retriever retriever
	Store     sessionStore

	// SearchTool is the registered Genkit tool whose schema the model
	// sees. The agent executes requested calls itself so each call can
	// be scoped to the turn's document.
	SearchTool ai.Tool

	MaxToolRounds      int // default 5
	HistoryWindow      int // turns passed to the model, default 6
	MaxHistoryMessages int // messages loaded from storage, default 10
	Logger             *slog.Logger
}

// Agent runs chat turns. One Agent serves concurrent sessions.
type Agent struct {
	gen           generator
	retriever     retriever
	store         sessionStore
	toolRefs      []ai.ToolRef
	maxToolRounds int
	historyWindow int
	maxHistory    int
	graph         *workflow.Graph[*state]
	logger        *slog.Logger
}

// New creates a chat Agent and compiles its workflow graph.
func New(cfg Config) (*Agent, error) {
	if cfg.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.SearchTool == nil {
		return nil, fmt.Errorf("search tool is required")
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = DefaultMaxToolRounds
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 6
	}
	if cfg.MaxHistoryMessages <= 0 {
		cfg.MaxHistoryMessages = 10
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	a := &Agent{
		gen:           cfg.Generator,
		retriever:     cfg.Retriever,
		store:         cfg.Store,
		toolRefs:      []ai.ToolRef{cfg.SearchTool},
		maxToolRounds: cfg.MaxToolRounds,
		historyWindow: cfg.HistoryWindow,
		maxHistory:    cfg.MaxHistoryMessages,
		logger:        cfg.Logger,
	}

	a.graph = workflow.New[*state]("chat", cfg.Logger).
		AddNode(stepLoadContext, a.loadContext, stepAgent).
		AddConditionalNode(stepAgent, a.agentTurn, a.routeAfterAgent).
		AddNode(stepTools, a.runTools, stepAgent).
		AddNode(stepSave, a.saveInteraction, workflow.End).
		SetEntry(stepLoadContext)

	if err := a.graph.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Chat processes one user message and returns the assistant's answer.
// With a zero session id, a new session is created.
func (a *Agent) Chat(ctx context.Context, message string, sessionID, documentID uuid.UUID) (*Result, error) {
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("message is required")
	}

	start := time.Now()

	if sessionID == uuid.Nil {
		name := "Chat Session - " + time.Now().Format("2006-01-02 15:04")
		session, err := a.store.CreateSession(ctx, documentID, name)
		if err != nil {
			return nil, fmt.Errorf("failed to create chat session: %w", err)
		}
		sessionID = session.ID
		a.logger.Info("created new chat session", "session_id", sessionID)
	}

	st := &state{
		UserMessage: message,
		SessionID:   sessionID,
		DocumentID:  documentID,
		Exchange:    []*ai.Message{ai.NewUserMessage(ai.NewTextPart(message))},
	}

	if err := a.graph.Run(ctx, st); err != nil {
		return nil, err
	}

	response := st.FinalResponse
	if response == "" {
		response = fallbackResponse
	}

	return &Result{
		Message:      response,
		SessionID:    sessionID,
		SourcesUsed:  sourcePreviews(st.SourcesUsed),
		ToolCalls:    st.ToolCalls,
		ResponseTime: time.Since(start).Seconds(),
		TokenCount:   estimateTokens(response),
		Errors:       st.Errors,
	}, nil
}

// loadContext seeds the history from storage. A missing session is
// non-fatal: the turn proceeds with empty history.
func (a *Agent) loadContext(ctx context.Context, st *state) error {
	messages, err := a.store.RecentMessages(ctx, st.SessionID, a.maxHistory)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load history: %w", err)
	}

	for _, msg := range messages {
		switch msg.Role {
		case store.RoleUser:
			st.History = append(st.History, ai.NewUserMessage(ai.NewTextPart(msg.Content)))
		case store.RoleAssistant:
			st.History = append(st.History, ai.NewModelMessage(ai.NewTextPart(msg.Content)))
		}
	}
	return nil
}

// agentTurn invokes the model with history, the current exchange, and
// the search tool. Once the tool-round cap is reached, tools are
// withheld so the model must produce a final answer.
func (a *Agent) agentTurn(ctx context.Context, st *state) error {
	req := llm.Request{
		System:   financialAnalystSystemPrompt,
		Messages: append(a.historyWindowOf(st), st.Exchange...),
	}
	if st.ToolRounds < a.maxToolRounds {
		req.Tools = a.toolRefs
		req.ReturnToolRequests = true
	}

	resp, err := a.gen.Generate(ctx, req)
	if err != nil {
		return fmt.Errorf("agent turn: %w", err)
	}

	if msg := resp.Message(); msg != nil {
		st.Exchange = append(st.Exchange, msg)
	}

	reqs := resp.ToolRequests()
	for _, tr := range reqs {
		st.ToolCalls = append(st.ToolCalls, tr.Name)
	}
	if len(reqs) == 0 {
		st.FinalResponse = resp.Text()
	}
	return nil
}

// routeAfterAgent is the selector driving the tool loop. Pure function
// of state: tool requests pending means run tools, otherwise save.
func (a *Agent) routeAfterAgent(st *state) string {
	if len(st.pendingToolRequests()) > 0 {
		return stepTools
	}
	return stepSave
}

// runTools executes each requested tool call scoped to the turn's
// document and appends a tool-result message per call.
func (a *Agent) runTools(ctx context.Context, st *state) error {
	st.ToolRounds++

	var parts []*ai.Part
	for _, tr := range st.pendingToolRequests() {
		if tr.Name != search.ToolName {
			parts = append(parts, ai.NewToolResponsePart(&ai.ToolResponse{
				Name:   tr.Name,
				Ref:    tr.Ref,
				Output: map[string]any{"error": fmt.Sprintf("unknown tool %q", tr.Name)},
			}))
			continue
		}

		query, topK := parseSearchInput(tr.Input)
		res := a.retriever.Search(ctx, search.Params{
			Query:      query,
			DocumentID: st.DocumentID,
			TopK:       topK,
		})
		st.SourcesUsed = append(st.SourcesUsed, res.Chunks...)

		parts = append(parts, ai.NewToolResponsePart(&ai.ToolResponse{
			Name: tr.Name,
			Ref:  tr.Ref,
			Output: map[string]any{
				"results":     res.FormattedResults,
				"sources":     res.FormattedSources,
				"chunk_count": len(res.Chunks),
				"error":       res.Error,
			},
		}))
	}

	if len(parts) == 0 {
		return fmt.Errorf("tools step reached with no pending tool requests")
	}

	st.Exchange = append(st.Exchange, &ai.Message{Role: ai.RoleTool, Content: parts})
	return nil
}

// saveInteraction persists the user turn and the final assistant turn
// and bumps the session's activity timestamp.
func (a *Agent) saveInteraction(ctx context.Context, st *state) error {
	response := st.FinalResponse
	if response == "" {
		response = fallbackResponse
	}

	var chunks []string
	var scores []float64
	for _, c := range st.SourcesUsed {
		chunks = append(chunks, truncate(c.Content, 200))
		scores = append(scores, c.Similarity)
	}

	userMsg := &store.ChatMessage{
		SessionID:  st.SessionID,
		Role:       store.RoleUser,
		Content:    st.UserMessage,
		TokenCount: estimateTokens(st.UserMessage),
	}
	assistantMsg := &store.ChatMessage{
		SessionID:        st.SessionID,
		Role:             store.RoleAssistant,
		Content:          response,
		TokenCount:       estimateTokens(response),
		RetrievedChunks:  chunks,
		SimilarityScores: scores,
	}
	if err := a.store.SaveExchange(ctx, userMsg, assistantMsg); err != nil {
		return fmt.Errorf("save exchange: %w", err)
	}
	return nil
}

// historyWindowOf returns the last N persisted turns for model context.
func (a *Agent) historyWindowOf(st *state) []*ai.Message {
	if len(st.History) <= a.historyWindow {
		return st.History
	}
	return st.History[len(st.History)-a.historyWindow:]
}

// parseSearchInput extracts the query and topK from a tool request's
// loosely typed input map.
func parseSearchInput(input any) (string, int) {
	m, ok := input.(map[string]any)
	if !ok {
		return "", 0
	}
	query, _ := m["query"].(string)
	topK := 0
	if f, ok := m["top_k"].(float64); ok {
		topK = int(f)
	}
	return query, topK
}

func sourcePreviews(chunks []knowledge.Result) []SourcePreview {
	previews := make([]SourcePreview, 0, len(chunks))
	for _, c := range chunks {
		previews = append(previews, SourcePreview{
			ChunkID:         c.ChunkID,
			PageNumber:      c.PageNumber,
			SimilarityScore: c.Similarity,
			Preview:         truncate(c.Content, 200),
		})
	}
	return previews
}

// estimateTokens approximates the token count of text.
// English averages roughly 1.3 tokens per word.
func estimateTokens(text string) int {
	return int(float64(len(strings.Fields(text))) * 1.3)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
