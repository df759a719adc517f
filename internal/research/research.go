// Package research implements the bounded iterative research workflow:
// generate query, retrieve, summarize, reflect on gaps, repeat or
// finalize. The loop count bounds total generation calls and guarantees
// termination regardless of reflection output.
package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/finsight-ai/finsight/internal/llm"
	"github.com/finsight-ai/finsight/internal/search"
	"github.com/finsight-ai/finsight/internal/store"
	"github.com/finsight-ai/finsight/internal/workflow"
)

// generator is the generation collaborator; *llm.Client satisfies it.
type generator interface {
	Generate(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// retriever is the retrieval collaborator; *search.Tool satisfies it.
type retriever interface {
	Search(ctx context.Context, p search.Params) search.Result
}

// taskStore is the persistence collaborator; *store.Store satisfies it.
type taskStore interface {
	GetDocument(ctx context.Context, id uuid.UUID) (*store.Document, error)
	CreateResearchTask(ctx context.Context, documentID uuid.UUID, topic, status string) (*store.ResearchTask, error)
	CompleteResearchTask(ctx context.Context, id uuid.UUID, findings string, sources []string, status, errorLog string) error
}

// Config configures an Agent. Loop parameters are read-only per run.
type Config struct {
	Generator           generator
	Retriever           retriever
	Store               taskStore
	MaxResearchLoops    int
	TopK                int
	SimilarityThreshold float64
	Logger              *slog.Logger
}

// Agent runs research workflows. One Agent serves concurrent runs; each
// run gets its own state.
type Agent struct {
	gen       generator
	retriever retriever
	store     taskStore
	maxLoops  int
	topK      int
	threshold float64
	graph     *workflow.Graph[*state]
	logger    *slog.Logger
}

// New creates a research Agent and compiles its workflow graph.
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
	if cfg.MaxResearchLoops <= 0 {
		cfg.MaxResearchLoops = 3
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 0.6
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	a := &Agent{
		gen:       cfg.Generator,
		retriever: cfg.Retriever,
		store:     cfg.Store,
		maxLoops:  cfg.MaxResearchLoops,
		topK:      cfg.TopK,
		threshold: cfg.SimilarityThreshold,
		logger:    cfg.Logger,
	}

	a.graph = workflow.New[*state]("research", cfg.Logger).
		AddNode(stepGenerateQuery, a.generateQuery, stepVectorSearch).
		AddNode(stepVectorSearch, a.vectorSearch, stepSummarize).
		AddNode(stepSummarize, a.summarizeSources, stepReflect).
		AddConditionalNode(stepReflect, a.reflectOnSummary, a.routeResearch).
		AddNode(stepFinalize, a.finalizeSummary, workflow.End).
		SetEntry(stepGenerateQuery)

	if err := a.graph.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// ConductResearch runs the full research loop for a topic over one
// document and persists the outcome as a ResearchTask.
//
// A missing document aborts the run before any step executes; every
// other failure degrades gracefully into the result's error list.
func (a *Agent) ConductResearch(ctx context.Context, documentID uuid.UUID, topic, customQuery string) (*Result, error) {
	a.logger.Info("starting research", "document_id", documentID, "topic", topic)

	// The topic cannot be analyzed without document metadata.
	if _, err := a.store.GetDocument(ctx, documentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("cannot research document %s: %w", documentID, err)
		}
		return nil, fmt.Errorf("failed to load document %s: %w", documentID, err)
	}

	task, err := a.store.CreateResearchTask(ctx, documentID, topic, store.TaskStatusInProgress)
	if err != nil {
		return nil, fmt.Errorf("failed to create research task: %w", err)
	}

	st := &state{
		Topic:       topic,
		DocumentID:  documentID,
		CustomQuery: customQuery,
	}

	if err := a.graph.Run(ctx, st); err != nil {
		// Structural failure (cancellation, step-cap): mark the task
		// failed with whatever was logged so far.
		st.RecordError(err)
		a.persistOutcome(ctx, task.ID, st, store.TaskStatusFailed)
		return nil, err
	}

	status := store.TaskStatusCompleted
	if st.HasErrors() {
		status = store.TaskStatusFailed
	}
	a.persistOutcome(ctx, task.ID, st, status)

	return &Result{
		TaskID:  task.ID,
		Summary: st.FinalSummary,
		Sources: st.FinalSources,
		Status:  status,
		Errors:  st.Errors,
	}, nil
}

// persistOutcome writes the terminal task record. A persistence failure
// is logged and appended to the state's errors; the in-memory result is
// still returned to the caller.
func (a *Agent) persistOutcome(ctx context.Context, taskID uuid.UUID, st *state, status string) {
	sources := make([]string, 0, len(st.FinalSources))
	for _, s := range st.FinalSources {
		sources = append(sources, fmt.Sprintf("Page %d: %s", s.Page, s.Content))
	}

	err := a.store.CompleteResearchTask(ctx, taskID, st.FinalSummary, sources,
		status, strings.Join(st.Errors, "; "))
	if err != nil {
		a.logger.Error("failed to persist research task",
			"task_id", taskID, "error", err)
		st.RecordError(fmt.Errorf("persist research task: %w", err))
	}
}

// generateQuery asks the model for a document-internal search query.
// A custom query from the caller short-circuits the call.
func (a *Agent) generateQuery(ctx context.Context, st *state) error {
	if st.CustomQuery != "" {
		st.CurrentQuery = st.CustomQuery
		return nil
	}

	system := fmt.Sprintf(queryWriterPrompt,
		time.Now().Format("January 2, 2006"), st.Topic)

	resp, err := a.gen.Generate(ctx, llm.Request{
		System: system,
		Messages: []*ai.Message{
			ai.NewUserMessage(ai.NewTextPart(
				"Generate a query for searching within this financial document:")),
		},
		OutputType: queryOutput{},
	})
	if err != nil {
		st.CurrentQuery = st.Topic
		return fmt.Errorf("query generation: %w", err)
	}

	var out queryOutput
	if err := resp.Output(&out); err != nil || out.Query == "" {
		st.CurrentQuery = fmt.Sprintf("Tell me about %s", st.Topic)
		return fmt.Errorf("query generation: %w", errOrEmpty(err))
	}

	st.CurrentQuery = out.Query
	return nil
}

// vectorSearch retrieves chunks for the current query. The loop counter
// advances by exactly 1 per call, success or failure, so the loop bound
// holds even when retrieval keeps failing.
func (a *Agent) vectorSearch(ctx context.Context, st *state) error {
	st.LoopCount++

	res := a.retriever.Search(ctx, search.Params{
		Query:               st.CurrentQuery,
		DocumentID:          st.DocumentID,
		TopK:                a.topK,
		SimilarityThreshold: a.threshold,
	})
	if res.Error != "" {
		st.LatestResults = "No results found"
		return fmt.Errorf("vector search: %s", res.Error)
	}

	st.RetrievedChunks = append(st.RetrievedChunks, res.Chunks...)
	st.LatestResults = res.FormattedResults
	if res.FormattedSources != "" {
		st.SourcesGathered = append(st.SourcesGathered, res.FormattedSources)
	}
	return nil
}

// summarizeSources refines the running summary with the latest results.
// The prior summary is always passed back in, never discarded.
func (a *Agent) summarizeSources(ctx context.Context, st *state) error {
	var prompt string
	if st.RunningSummary != "" {
		prompt = fmt.Sprintf(
			"<Existing Summary>\n%s\n</Existing Summary>\n\n"+
				"<New Context>\n%s\n</New Context>\n"+
				"Update the Existing Summary with the New Context on this topic:\n"+
				"<User Input>\n%s\n</User Input>\n",
			st.RunningSummary, st.LatestResults, st.Topic)
	} else {
		prompt = fmt.Sprintf(
			"<Context>\n%s\n</Context>\n"+
				"Create a Summary using the Context on this topic:\n"+
				"<User Input>\n%s\n</User Input>\n",
			st.LatestResults, st.Topic)
	}

	resp, err := a.gen.Generate(ctx, llm.Request{
		System:   summarizerPrompt,
		Messages: []*ai.Message{ai.NewUserMessage(ai.NewTextPart(prompt))},
	})
	if err != nil {
		// Keep the existing summary.
		return fmt.Errorf("summarization: %w", err)
	}

	st.RunningSummary = resp.Text()
	return nil
}

// reflectOnSummary identifies a knowledge gap and proposes exactly one
// follow-up query.
func (a *Agent) reflectOnSummary(ctx context.Context, st *state) error {
	prompt := fmt.Sprintf(
		"Reflect on our existing knowledge:\n===\n%s\n===\n"+
			"Identify a knowledge gap and generate a follow-up search query:",
		st.RunningSummary)

	resp, err := a.gen.Generate(ctx, llm.Request{
		System:     fmt.Sprintf(reflectionPrompt, st.Topic),
		Messages:   []*ai.Message{ai.NewUserMessage(ai.NewTextPart(prompt))},
		OutputType: reflectionOutput{},
	})
	if err != nil {
		st.CurrentQuery = st.Topic
		return fmt.Errorf("reflection: %w", err)
	}

	var out reflectionOutput
	if err := resp.Output(&out); err != nil {
		st.CurrentQuery = fmt.Sprintf("Additional information about %s", st.Topic)
		return fmt.Errorf("reflection: %w", err)
	}
	if out.FollowUpQuery == "" {
		st.CurrentQuery = fmt.Sprintf("More details about %s", st.Topic)
		return nil
	}

	st.CurrentQuery = out.FollowUpQuery
	return nil
}

// routeResearch loops back to retrieval until the configured bound.
// Pure function of state: no side effects.
func (a *Agent) routeResearch(st *state) string {
	if st.LoopCount < a.maxLoops {
		return stepVectorSearch
	}
	return stepFinalize
}

// finalizeSummary deduplicates gathered citations and assembles the
// final report.
func (a *Agent) finalizeSummary(_ context.Context, st *state) error {
	// Line-level, order-preserving, first-seen-wins dedup across loops.
	seen := make(map[string]struct{})
	var unique []string
	for _, block := range st.SourcesGathered {
		for _, line := range strings.Split(block, "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			if _, ok := seen[line]; ok {
				continue
			}
			seen[line] = struct{}{}
			unique = append(unique, line)
		}
	}

	st.FinalSummary = fmt.Sprintf("## Research Summary: %s\n\n%s\n\n### Sources Used:\n%s",
		st.Topic, st.RunningSummary, strings.Join(unique, "\n"))
	st.FinalSources = dedupeChunkSources(st)
	return nil
}

// dedupeChunkSources builds the structured source list, deduplicated by
// page and content prefix.
func dedupeChunkSources(st *state) []Source {
	type key struct {
		page   int
		prefix string
	}
	seen := make(map[key]struct{})
	sources := make([]Source, 0, len(st.RetrievedChunks))
	for _, c := range st.RetrievedChunks {
		prefix := c.Content
		if len(prefix) > 100 {
			prefix = prefix[:100]
		}
		k := key{page: c.PageNumber, prefix: prefix}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		sources = append(sources, Source{
			Page:           c.PageNumber,
			Content:        c.Content,
			RelevanceScore: c.Similarity,
		})
	}
	return sources
}

// errOrEmpty maps a nil error from an empty-but-valid output to a
// descriptive error for the log.
func errOrEmpty(err error) error {
	if err != nil {
		return err
	}
	return errors.New("empty structured output")
}
