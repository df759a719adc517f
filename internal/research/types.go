package research

import (
	"github.com/google/uuid"

	"github.com/finsight-ai/finsight/internal/knowledge"
	"github.com/finsight-ai/finsight/internal/workflow"
)

// Node names of the research state machine.
const (
	stepGenerateQuery = "generate_query"
	stepVectorSearch  = "vector_search"
	stepSummarize     = "summarize_sources"
	stepReflect       = "reflect_on_summary"
	stepFinalize      = "finalize_summary"
)

// Source is one deduplicated citation in the final result.
type Source struct {
	Page           int     `json:"page"`
	Content        string  `json:"content"`
	RelevanceScore float64 `json:"relevance_score"`
}

// Result is the output contract of one research run.
type Result struct {
	TaskID  uuid.UUID `json:"task_id"`
	Summary string    `json:"summary"`
	Sources []Source  `json:"sources"`
	Status  string    `json:"status"` // "completed" or "failed"
	Errors  []string  `json:"errors,omitempty"`
}

// state carries the accumulated fields of one run. It is created at
// invocation, mutated in place by each step, and discarded after the
// terminal step persists its results.
type state struct {
	workflow.BaseState

	Topic       string
	DocumentID  uuid.UUID
	CustomQuery string

	CurrentQuery    string
	RetrievedChunks []knowledge.Result // strictly appended, never replaced
	SourcesGathered []string           // formatted sources block per loop
	LatestResults   string             // formatted results of the last search
	RunningSummary  string
	LoopCount       int

	FinalSummary string
	FinalSources []Source
}

// queryOutput is the structured shape of the query-writer call.
type queryOutput struct {
	Query     string `json:"query" jsonschema_description:"A short search query over the document's own content"`
	Rationale string `json:"rationale,omitempty" jsonschema_description:"Why this query targets the topic"`
}

// reflectionOutput is the structured shape of the reflection call.
type reflectionOutput struct {
	KnowledgeGap  string `json:"knowledge_gap" jsonschema_description:"What the running summary still lacks"`
	FollowUpQuery string `json:"follow_up_query" jsonschema_description:"Exactly one follow-up search query addressing the gap"`
}
