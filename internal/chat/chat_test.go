package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"

	"github.com/finsight-ai/finsight/internal/knowledge"
	"github.com/finsight-ai/finsight/internal/llm"
	"github.com/finsight-ai/finsight/internal/log"
	"github.com/finsight-ai/finsight/internal/search"
	"github.com/finsight-ai/finsight/internal/store"
)

func testLogger() log.Logger {
	return log.NewNop()
}

func testSearchTool(t *testing.T) ai.Tool {
	t.Helper()
	g := genkit.Init(context.Background())
	tool, err := search.Register(g, search.New(&nullSearcher{}, testLogger()))
	if err != nil {
		t.Fatalf("registering search tool: %v", err)
	}
	return tool
}

// nullSearcher backs the registered tool schema; the workflow never
// routes calls through it.
type nullSearcher struct{}

func (n *nullSearcher) Search(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Result, error) {
	return nil, nil
}

func textResponse(s string) *llm.Response {
	return llm.NewResponse(&ai.ModelResponse{
		Message: ai.NewModelMessage(ai.NewTextPart(s)),
	})
}

func toolRequestResponse(query string, topK float64) *llm.Response {
	return llm.NewResponse(&ai.ModelResponse{
		Message: &ai.Message{
			Role: ai.RoleModel,
			Content: []*ai.Part{ai.NewToolRequestPart(&ai.ToolRequest{
				Name:  search.ToolName,
				Input: map[string]any{"query": query, "top_k": topK},
			})},
		},
	})
}

// stubGenerator requests the search tool a scripted number of times,
// then answers with plain text.
type stubGenerator struct {
	calls     int
	toolCalls int // how many times to request tools before answering
	answer    string
	err       error
}

func (g *stubGenerator) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	if len(req.Tools) > 0 && g.toolCalls > 0 {
		g.toolCalls--
		return toolRequestResponse("revenue figures", 3), nil
	}
	return textResponse(g.answer), nil
}

type stubRetriever struct {
	calls  int
	params []search.Params
	result search.Result
}

func (r *stubRetriever) Search(ctx context.Context, p search.Params) search.Result {
	r.calls++
	r.params = append(r.params, p)
	return r.result
}

type stubSessionStore struct {
	sessions map[uuid.UUID]*store.ChatSession
	messages []*store.ChatMessage
	history  []*store.ChatMessage
	touched  bool
}

func newStubSessionStore() *stubSessionStore {
	return &stubSessionStore{sessions: make(map[uuid.UUID]*store.ChatSession)}
}

func (s *stubSessionStore) CreateSession(ctx context.Context, documentID uuid.UUID, name string) (*store.ChatSession, error) {
	session := &store.ChatSession{ID: uuid.New(), DocumentID: documentID, SessionName: name}
	s.sessions[session.ID] = session
	return session, nil
}

func (s *stubSessionStore) GetSession(ctx context.Context, id uuid.UUID) (*store.ChatSession, error) {
	session, ok := s.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return session, nil
}

func (s *stubSessionStore) SaveExchange(ctx context.Context, userMsg, assistantMsg *store.ChatMessage) error {
	userMsg.ID = uuid.New()
	assistantMsg.ID = uuid.New()
	s.messages = append(s.messages, userMsg, assistantMsg)
	s.touched = true
	return nil
}

func (s *stubSessionStore) RecentMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]*store.ChatMessage, error) {
	return s.history, nil
}

func newTestAgent(t *testing.T, gen generator, ret retriever, ss sessionStore) *Agent {
	t.Helper()
	a, err := New(Config{
		Generator:  gen,
		Retriever:  ret,
		Store:      ss,
		SearchTool: testSearchTool(t),
		Logger:     testLogger(),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return a
}

func TestChatDirectAnswer(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{answer: "The company is profitable."}
	ret := &stubRetriever{}
	ss := newStubSessionStore()

	a := newTestAgent(t, gen, ret, ss)

	result, err := a.Chat(context.Background(), "Is the company profitable?", uuid.Nil, uuid.Nil)
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	if result.Message != "The company is profitable." {
		t.Errorf("Message = %q", result.Message)
	}
	if result.SessionID == uuid.Nil {
		t.Error("a session should have been created")
	}
	if ret.calls != 0 {
		t.Errorf("retriever called %d times, want 0", ret.calls)
	}
	if len(ss.messages) != 2 {
		t.Fatalf("persisted %d messages, want user and assistant", len(ss.messages))
	}
	if ss.messages[0].Role != store.RoleUser || ss.messages[1].Role != store.RoleAssistant {
		t.Errorf("message roles = %q, %q", ss.messages[0].Role, ss.messages[1].Role)
	}
	if !ss.touched {
		t.Error("session activity should be bumped")
	}
}

func TestChatToolLoop(t *testing.T) {
	t.Parallel()

	documentID := uuid.New()
	gen := &stubGenerator{toolCalls: 2, answer: "Based on the document, revenue was $5M."}
	ret := &stubRetriever{result: search.Result{
		Chunks: []knowledge.Result{{
			ChunkID:    uuid.New(),
			PageNumber: 2,
			Content:    "Revenue: $5M in fiscal 2023.",
			Similarity: 0.9,
		}},
		FormattedResults: "[Page 2 | Similarity: 0.90]\nRevenue: $5M in fiscal 2023.\n",
		FormattedSources: "- Page 2, Chunk 0",
	}}
	ss := newStubSessionStore()

	a := newTestAgent(t, gen, ret, ss)

	result, err := a.Chat(context.Background(), "What was revenue?", uuid.Nil, documentID)
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	if ret.calls != 2 {
		t.Errorf("retriever called %d times, want 2", ret.calls)
	}
	for _, p := range ret.params {
		if p.DocumentID != documentID {
			t.Errorf("search scoped to %s, want turn document %s", p.DocumentID, documentID)
		}
	}
	if len(result.ToolCalls) != 2 {
		t.Errorf("ToolCalls = %v, want two entries", result.ToolCalls)
	}
	if len(result.SourcesUsed) != 2 {
		t.Errorf("SourcesUsed has %d previews, want 2", len(result.SourcesUsed))
	}
	if result.Message != "Based on the document, revenue was $5M." {
		t.Errorf("Message = %q", result.Message)
	}

	// The assistant message records truncated chunk content and scores.
	assistant := ss.messages[len(ss.messages)-1]
	if len(assistant.RetrievedChunks) != 2 || len(assistant.SimilarityScores) != 2 {
		t.Errorf("assistant message chunks=%d scores=%d, want 2 each",
			len(assistant.RetrievedChunks), len(assistant.SimilarityScores))
	}
}

func TestChatToolRoundCapForcesAnswer(t *testing.T) {
	t.Parallel()

	// The model would request tools forever; the cap must stop it.
	gen := &stubGenerator{toolCalls: 1000, answer: "Final answer without tools."}
	ret := &stubRetriever{result: search.Result{}}
	ss := newStubSessionStore()

	a := newTestAgent(t, gen, ret, ss)

	result, err := a.Chat(context.Background(), "Anything?", uuid.Nil, uuid.Nil)
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	if ret.calls != DefaultMaxToolRounds {
		t.Errorf("retriever called %d times, want cap of %d", ret.calls, DefaultMaxToolRounds)
	}
	if result.Message != "Final answer without tools." {
		t.Errorf("Message = %q, the final turn must answer without tools", result.Message)
	}
}

func TestChatEmptyMessage(t *testing.T) {
	t.Parallel()

	a := newTestAgent(t, &stubGenerator{}, &stubRetriever{}, newStubSessionStore())

	if _, err := a.Chat(context.Background(), "   ", uuid.Nil, uuid.Nil); err == nil {
		t.Fatal("expected error for blank message")
	}
}

func TestChatFallbackResponse(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{err: errors.New("model down")}
	ss := newStubSessionStore()

	a := newTestAgent(t, gen, &stubRetriever{}, ss)

	result, err := a.Chat(context.Background(), "Hello", uuid.Nil, uuid.Nil)
	if err != nil {
		t.Fatalf("generation failure must not abort the turn: %v", err)
	}

	if result.Message != fallbackResponse {
		t.Errorf("Message = %q, want fallback", result.Message)
	}
	if len(result.Errors) == 0 {
		t.Error("the generation failure should be reported in Errors")
	}
}

func TestRouteAfterAgent(t *testing.T) {
	t.Parallel()

	a := newTestAgent(t, &stubGenerator{}, &stubRetriever{}, newStubSessionStore())

	withRequest := &state{Exchange: []*ai.Message{{
		Role: ai.RoleModel,
		Content: []*ai.Part{ai.NewToolRequestPart(&ai.ToolRequest{
			Name:  search.ToolName,
			Input: map[string]any{"query": "x"},
		})},
	}}}
	if got := a.routeAfterAgent(withRequest); got != stepTools {
		t.Errorf("pending requests should route to tools, got %q", got)
	}

	plainText := &state{Exchange: []*ai.Message{ai.NewModelMessage(ai.NewTextPart("done"))}}
	if got := a.routeAfterAgent(plainText); got != stepSave {
		t.Errorf("plain answer should route to save, got %q", got)
	}
}

func TestLoadContextConvertsRoles(t *testing.T) {
	t.Parallel()

	ss := newStubSessionStore()
	ss.history = []*store.ChatMessage{
		{Role: store.RoleUser, Content: "first question"},
		{Role: store.RoleAssistant, Content: "first answer"},
	}

	a := newTestAgent(t, &stubGenerator{}, &stubRetriever{}, ss)

	st := &state{SessionID: uuid.New()}
	if err := a.loadContext(context.Background(), st); err != nil {
		t.Fatalf("loadContext failed: %v", err)
	}

	if len(st.History) != 2 {
		t.Fatalf("loaded %d history messages, want 2", len(st.History))
	}
	if st.History[0].Role != ai.RoleUser || st.History[1].Role != ai.RoleModel {
		t.Errorf("history roles = %q, %q", st.History[0].Role, st.History[1].Role)
	}
}

func TestParseSearchInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     any
		wantQuery string
		wantTopK  int
	}{
		{"full input", map[string]any{"query": "revenue", "top_k": float64(7)}, "revenue", 7},
		{"query only", map[string]any{"query": "revenue"}, "revenue", 0},
		{"wrong shape", "not a map", "", 0},
		{"nil input", nil, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			query, topK := parseSearchInput(tt.input)
			if query != tt.wantQuery || topK != tt.wantTopK {
				t.Errorf("parseSearchInput() = (%q, %d), want (%q, %d)",
					query, topK, tt.wantQuery, tt.wantTopK)
			}
		})
	}
}

func TestEstimateTokens(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"one", 1},
		{"ten words here to verify the thirteen token estimate works", 13},
	}
	for _, tt := range tests {
		if got := estimateTokens(tt.text); got != tt.want {
			t.Errorf("estimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := truncate("short", 200); got != "short" {
		t.Errorf("truncate same = %q", got)
	}
	long := strings.Repeat("a", 300)
	got := truncate(long, 200)
	if len(got) != 203 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncate long: len=%d suffix ok=%v", len(got), strings.HasSuffix(got, "..."))
	}
}
