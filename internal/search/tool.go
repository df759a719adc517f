package search

import (
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// ToolName is the Genkit tool name the chat agent uses to request a
// document search.
const ToolName = "search_document"

// MaxTopK bounds the number of results a model may request.
const MaxTopK = 20

// ToolInput defines the input schema for the search_document tool.
type ToolInput struct {
	Query string `json:"query" jsonschema_description:"The search query string"`
	TopK  int    `json:"top_k,omitempty" jsonschema_description:"Maximum results to return (1-20)"`
}

// ToolOutput defines the output returned to the model after a search.
type ToolOutput struct {
	Results string `json:"results"`
	Sources string `json:"sources,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Register registers the search_document tool with Genkit so the model
// can see its schema and emit tool-call requests against it.
//
// The handler searches across all documents. The chat workflow runs its
// own tool loop and scopes each call to its bound document, so this
// handler only runs when the tool is invoked outside a chat turn.
func Register(g *genkit.Genkit, t *Tool) (ai.Tool, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if t == nil {
		return nil, fmt.Errorf("search tool is required")
	}

	return genkit.DefineTool(g, ToolName,
		"Search the financial document for passages relevant to the query using semantic similarity. "+
			"Returns matched excerpts with page numbers and similarity scores plus a sources list. "+
			"Always use this before answering questions about the document. "+
			"Default topK: 5. Maximum topK: 20.",
		func(tc *ai.ToolContext, in ToolInput) (ToolOutput, error) {
			res := t.Search(tc, Params{
				Query: in.Query,
				TopK:  clampTopK(in.TopK, DefaultTopK),
			})
			return ToolOutput{
				Results: res.FormattedResults,
				Sources: res.FormattedSources,
				Error:   res.Error,
			}, nil
		}), nil
}

// clampTopK validates topK and returns a value within [1, MaxTopK].
// If topK <= 0, returns defaultVal.
func clampTopK(topK, defaultVal int) int {
	if topK <= 0 {
		return defaultVal
	}
	if topK > MaxTopK {
		return MaxTopK
	}
	return topK
}
