package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/ai"
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

func textResponse(s string) *llm.Response {
	return llm.NewResponse(&ai.ModelResponse{
		Message: ai.NewModelMessage(ai.NewTextPart(s)),
	})
}

// stubGenerator answers differently per request shape: structured query,
// structured reflection, or plain summary text.
type stubGenerator struct {
	queryJSON      string
	reflectionJSON string
	summaryText    string
	err            error
	calls          int
}

func (g *stubGenerator) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	switch req.OutputType.(type) {
	case queryOutput:
		return textResponse(g.queryJSON), nil
	case reflectionOutput:
		return textResponse(g.reflectionJSON), nil
	default:
		return textResponse(g.summaryText), nil
	}
}

type stubRetriever struct {
	calls  int
	result search.Result
}

func (r *stubRetriever) Search(ctx context.Context, p search.Params) search.Result {
	r.calls++
	return r.result
}

type stubTaskStore struct {
	document      *store.Document
	documentErr   error
	task          *store.ResearchTask
	completedWith struct {
		findings string
		sources  []string
		status   string
		errorLog string
	}
	completeCalled bool
}

func (s *stubTaskStore) GetDocument(ctx context.Context, id uuid.UUID) (*store.Document, error) {
	if s.documentErr != nil {
		return nil, s.documentErr
	}
	return s.document, nil
}

func (s *stubTaskStore) CreateResearchTask(ctx context.Context, documentID uuid.UUID, topic, status string) (*store.ResearchTask, error) {
	s.task = &store.ResearchTask{ID: uuid.New(), DocumentID: documentID, Topic: topic, Status: status}
	return s.task, nil
}

func (s *stubTaskStore) CompleteResearchTask(ctx context.Context, id uuid.UUID, findings string, sources []string, status, errorLog string) error {
	s.completeCalled = true
	s.completedWith.findings = findings
	s.completedWith.sources = sources
	s.completedWith.status = status
	s.completedWith.errorLog = errorLog
	return nil
}

func newTestAgent(t *testing.T, gen generator, ret retriever, ts taskStore, maxLoops int) *Agent {
	t.Helper()
	a, err := New(Config{
		Generator:        gen,
		Retriever:        ret,
		Store:            ts,
		MaxResearchLoops: maxLoops,
		Logger:           testLogger(),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return a
}

func searchHit(page int, content string, sim float64) search.Result {
	return search.Result{
		Chunks: []knowledge.Result{{
			ChunkID:    uuid.New(),
			PageNumber: page,
			Content:    content,
			Similarity: sim,
		}},
		FormattedResults: fmt.Sprintf("[Page %d | Similarity: %.2f]\n%s\n", page, sim, content),
		FormattedSources: fmt.Sprintf("- Page %d, Chunk 0", page),
	}
}

func TestConductResearchBoundedLoop(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{
		queryJSON:      `{"query": "revenue growth drivers", "rationale": "core topic"}`,
		reflectionJSON: `{"knowledge_gap": "missing margins", "follow_up_query": "margin trends"}`,
		summaryText:    "Revenue grew 20% year over year.",
	}
	ret := &stubRetriever{result: searchHit(4, "Revenue increased by 20%.", 0.88)}
	ts := &stubTaskStore{document: &store.Document{ID: uuid.New()}}

	a := newTestAgent(t, gen, ret, ts, 3)

	result, err := a.ConductResearch(context.Background(), ts.document.ID, "revenue growth", "")
	if err != nil {
		t.Fatalf("ConductResearch failed: %v", err)
	}

	if ret.calls != 3 {
		t.Errorf("retriever called %d times, want exactly 3", ret.calls)
	}
	if result.Status != store.TaskStatusCompleted {
		t.Errorf("Status = %q, want %q", result.Status, store.TaskStatusCompleted)
	}
	if !strings.Contains(result.Summary, "## Research Summary: revenue growth") {
		t.Errorf("summary missing header:\n%s", result.Summary)
	}
	if !strings.Contains(result.Summary, "### Sources Used:") {
		t.Errorf("summary missing sources section:\n%s", result.Summary)
	}
	if !ts.completeCalled {
		t.Error("research task was never completed in the store")
	}
	if ts.completedWith.status != store.TaskStatusCompleted {
		t.Errorf("persisted status = %q", ts.completedWith.status)
	}
}

func TestConductResearchDocumentNotFound(t *testing.T) {
	t.Parallel()

	ts := &stubTaskStore{documentErr: store.ErrNotFound}
	a := newTestAgent(t, &stubGenerator{}, &stubRetriever{}, ts, 3)

	_, err := a.ConductResearch(context.Background(), uuid.New(), "anything", "")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if ts.task != nil {
		t.Error("no task should be created for a missing document")
	}
}

func TestConductResearchDegradesOnGenerationFailure(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{err: errors.New("model unavailable")}
	ret := &stubRetriever{result: searchHit(1, "Some content.", 0.7)}
	ts := &stubTaskStore{document: &store.Document{ID: uuid.New()}}

	a := newTestAgent(t, gen, ret, ts, 3)

	result, err := a.ConductResearch(context.Background(), ts.document.ID, "liquidity", "")
	if err != nil {
		t.Fatalf("generation failure must not abort the run: %v", err)
	}

	if result.Status != store.TaskStatusFailed {
		t.Errorf("Status = %q, want %q", result.Status, store.TaskStatusFailed)
	}
	if ts.completedWith.status != store.TaskStatusFailed {
		t.Errorf("persisted status = %q, want %q", ts.completedWith.status, store.TaskStatusFailed)
	}
	if len(result.Errors) == 0 {
		t.Error("errors should be recorded")
	}
	if ret.calls != 3 {
		t.Errorf("retriever called %d times, want 3 despite generator failures", ret.calls)
	}
	if !strings.Contains(result.Summary, "## Research Summary: liquidity") {
		t.Errorf("final summary should still be assembled:\n%s", result.Summary)
	}
	if !strings.Contains(ts.completedWith.errorLog, ";") && len(result.Errors) > 1 {
		t.Errorf("error log should join errors: %q", ts.completedWith.errorLog)
	}
}

func TestGenerateQueryCustomShortCircuit(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{}
	a := newTestAgent(t, gen, &stubRetriever{}, &stubTaskStore{document: &store.Document{}}, 3)

	st := &state{Topic: "debt", CustomQuery: "long term debt maturities"}
	if err := a.generateQuery(context.Background(), st); err != nil {
		t.Fatalf("generateQuery failed: %v", err)
	}
	if st.CurrentQuery != "long term debt maturities" {
		t.Errorf("CurrentQuery = %q", st.CurrentQuery)
	}
	if gen.calls != 0 {
		t.Errorf("generator should not be called with a custom query, got %d calls", gen.calls)
	}
}

func TestGenerateQueryFallsBackToTopic(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{err: errors.New("down")}
	a := newTestAgent(t, gen, &stubRetriever{}, &stubTaskStore{document: &store.Document{}}, 3)

	st := &state{Topic: "cash reserves"}
	if err := a.generateQuery(context.Background(), st); err == nil {
		t.Fatal("expected error from failed generation")
	}
	if st.CurrentQuery != "cash reserves" {
		t.Errorf("CurrentQuery = %q, want the topic as fallback", st.CurrentQuery)
	}
}

func TestVectorSearchCountsFailedLoops(t *testing.T) {
	t.Parallel()

	ret := &stubRetriever{result: search.Result{Error: "embedding service down"}}
	a := newTestAgent(t, &stubGenerator{}, ret, &stubTaskStore{document: &store.Document{}}, 3)

	st := &state{Topic: "x", CurrentQuery: "x"}
	err := a.vectorSearch(context.Background(), st)
	if err == nil {
		t.Fatal("expected error from failed search")
	}
	if st.LoopCount != 1 {
		t.Errorf("LoopCount = %d, want 1 even on failure", st.LoopCount)
	}
	if st.LatestResults != "No results found" {
		t.Errorf("LatestResults = %q", st.LatestResults)
	}
}

func TestSummarizeKeepsPriorSummaryOnError(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{err: errors.New("down")}
	a := newTestAgent(t, gen, &stubRetriever{}, &stubTaskStore{document: &store.Document{}}, 3)

	st := &state{Topic: "x", RunningSummary: "established findings", LatestResults: "new stuff"}
	if err := a.summarizeSources(context.Background(), st); err == nil {
		t.Fatal("expected error")
	}
	if st.RunningSummary != "established findings" {
		t.Errorf("RunningSummary = %q, prior summary must survive a failed refinement", st.RunningSummary)
	}
}

func TestRouteResearch(t *testing.T) {
	t.Parallel()

	a := newTestAgent(t, &stubGenerator{}, &stubRetriever{}, &stubTaskStore{document: &store.Document{}}, 3)

	tests := []struct {
		loops int
		want  string
	}{
		{0, stepVectorSearch},
		{2, stepVectorSearch},
		{3, stepFinalize},
		{5, stepFinalize},
	}
	for _, tt := range tests {
		st := &state{LoopCount: tt.loops}
		if got := a.routeResearch(st); got != tt.want {
			t.Errorf("routeResearch(loops=%d) = %q, want %q", tt.loops, got, tt.want)
		}
	}
}

func TestFinalizeSummaryDedupesSources(t *testing.T) {
	t.Parallel()

	a := newTestAgent(t, &stubGenerator{}, &stubRetriever{}, &stubTaskStore{document: &store.Document{}}, 3)

	st := &state{
		Topic:          "growth",
		RunningSummary: "Summary text.",
		SourcesGathered: []string{
			"- Page 1, Chunk 0\n- Page 2, Chunk 1",
			"- Page 1, Chunk 0\n- Page 3, Chunk 2",
		},
	}
	if err := a.finalizeSummary(context.Background(), st); err != nil {
		t.Fatalf("finalizeSummary failed: %v", err)
	}

	if n := strings.Count(st.FinalSummary, "- Page 1, Chunk 0"); n != 1 {
		t.Errorf("duplicate source appears %d times, want 1:\n%s", n, st.FinalSummary)
	}
	for _, want := range []string{"- Page 2, Chunk 1", "- Page 3, Chunk 2"} {
		if !strings.Contains(st.FinalSummary, want) {
			t.Errorf("missing source %q:\n%s", want, st.FinalSummary)
		}
	}
}

func TestReflectFallbackQueries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		gen       *stubGenerator
		wantQuery string
		wantErr   bool
	}{
		{
			name:      "generation failure falls back to the topic",
			gen:       &stubGenerator{err: errors.New("model unavailable")},
			wantQuery: "liquidity",
			wantErr:   true,
		},
		{
			name:      "unparsable reflection asks for additional information",
			gen:       &stubGenerator{reflectionJSON: "not json at all"},
			wantQuery: "Additional information about liquidity",
			wantErr:   true,
		},
		{
			name:      "missing follow-up query asks for more details",
			gen:       &stubGenerator{reflectionJSON: `{"knowledge_gap": "margins"}`},
			wantQuery: "More details about liquidity",
		},
		{
			name:      "valid reflection uses the proposed query",
			gen:       &stubGenerator{reflectionJSON: `{"knowledge_gap": "margins", "follow_up_query": "margin trends"}`},
			wantQuery: "margin trends",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := newTestAgent(t, tt.gen, &stubRetriever{}, &stubTaskStore{document: &store.Document{}}, 3)
			st := &state{Topic: "liquidity", RunningSummary: "what we know so far"}

			err := a.reflectOnSummary(context.Background(), st)
			if (err != nil) != tt.wantErr {
				t.Fatalf("reflectOnSummary err = %v, wantErr %v", err, tt.wantErr)
			}
			if st.CurrentQuery != tt.wantQuery {
				t.Errorf("CurrentQuery = %q, want %q", st.CurrentQuery, tt.wantQuery)
			}
		})
	}
}
