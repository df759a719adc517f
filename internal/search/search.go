// Package search provides the document retrieval tool used by the agent
// workflows. It wraps vector similarity search and formats results into
// citation-ready strings.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/finsight-ai/finsight/internal/knowledge"
)

const (
	// DefaultTopK is used when the caller passes a non-positive top-k.
	DefaultTopK = 5

	// DefaultSimilarityThreshold is used when the caller passes a
	// non-positive threshold or one above 1. Zero is treated as unset,
	// not as "admit everything".
	DefaultSimilarityThreshold = 0.6

	// DefaultMaxTokensPerSource bounds each formatted chunk.
	DefaultMaxTokensPerSource = 1000

	// charsPerToken approximates token length for truncation.
	charsPerToken = 4

	// dedupPrefixLen is the content prefix length used to collapse
	// near-duplicate chunks.
	dedupPrefixLen = 100

	// Relaxed retry parameters applied when a strict search returns
	// nothing. A high threshold commonly starves retrieval entirely.
	relaxedThreshold = 0.3
	relaxedMinTopK   = 12

	// separator joins formatted chunks in Result.FormattedResults.
	separator = "\n---\n"
)

// Searcher is the similarity-search primitive the tool wraps.
// *knowledge.Store satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Result, error)
}

// Params configures one search invocation. The document id is an explicit
// per-call parameter so a single shared Tool can serve concurrent chats
// against different documents without cross-request contamination.
type Params struct {
	Query               string
	DocumentID          uuid.UUID // uuid.Nil searches all documents
	TopK                int
	SimilarityThreshold float64
	MaxTokensPerSource  int
}

// Result is the tool's output. When the underlying search fails, Chunks is
// empty and Error carries the failure text; Search itself never returns an
// error because it is called from deep inside agent loops where an error
// would unwind the whole workflow.
type Result struct {
	Chunks           []knowledge.Result
	FormattedResults string
	FormattedSources string
	Error            string
}

// Tool formats vector search results for consumption by language models.
//
// Tool is safe for concurrent use by multiple goroutines.
type Tool struct {
	searcher Searcher
	logger   *slog.Logger
}

// New creates a retrieval Tool.
func New(searcher Searcher, logger *slog.Logger) *Tool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tool{searcher: searcher, logger: logger}
}

// Search runs a similarity search and formats the results.
//
// It deduplicates chunks by content prefix, truncates each chunk to the
// token budget, and builds both a citation-ready results block and a
// sources list. All failures are trapped and reported via Result.Error.
func (t *Tool) Search(ctx context.Context, p Params) Result {
	if p.TopK <= 0 {
		p.TopK = DefaultTopK
	}
	if p.SimilarityThreshold <= 0 || p.SimilarityThreshold > 1 {
		p.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if p.MaxTokensPerSource <= 0 {
		p.MaxTokensPerSource = DefaultMaxTokensPerSource
	}

	chunks, err := t.runSearch(ctx, p)
	if err != nil {
		t.logger.Warn("vector search failed", "query", p.Query, "error", err)
		return Result{Error: err.Error()}
	}
	// An empty result stays empty; the calling agent's prompt decides
	// how to phrase absence.
	if len(chunks) == 0 {
		return Result{}
	}

	deduped := dedupByPrefix(chunks)
	return Result{
		Chunks:           deduped,
		FormattedResults: formatResults(deduped, p.MaxTokensPerSource*charsPerToken),
		FormattedSources: formatSources(deduped),
	}
}

// runSearch performs the underlying search with one relaxation retry: if a
// strict threshold returns nothing, retry once with the threshold lowered
// and top-k raised.
func (t *Tool) runSearch(ctx context.Context, p Params) ([]knowledge.Result, error) {
	opts := []knowledge.SearchOption{
		knowledge.WithTopK(p.TopK),
		knowledge.WithThreshold(p.SimilarityThreshold),
	}
	if p.DocumentID != uuid.Nil {
		opts = append(opts, knowledge.WithDocument(p.DocumentID))
	}

	chunks, err := t.searcher.Search(ctx, p.Query, opts...)
	if err != nil {
		return nil, err
	}
	if len(chunks) > 0 || p.SimilarityThreshold <= relaxedThreshold {
		return chunks, nil
	}

	t.logger.Debug("no results above threshold, retrying relaxed",
		"threshold", p.SimilarityThreshold, "relaxed_threshold", relaxedThreshold)

	relaxedOpts := []knowledge.SearchOption{
		knowledge.WithTopK(max(p.TopK, relaxedMinTopK)),
		knowledge.WithThreshold(relaxedThreshold),
	}
	if p.DocumentID != uuid.Nil {
		relaxedOpts = append(relaxedOpts, knowledge.WithDocument(p.DocumentID))
	}
	return t.searcher.Search(ctx, p.Query, relaxedOpts...)
}

// dedupByPrefix collapses chunks sharing the same opening characters,
// keeping the first occurrence. Order is preserved.
func dedupByPrefix(chunks []knowledge.Result) []knowledge.Result {
	seen := make(map[string]struct{}, len(chunks))
	out := make([]knowledge.Result, 0, len(chunks))
	for _, c := range chunks {
		prefix := c.Content
		if len(prefix) > dedupPrefixLen {
			prefix = prefix[:dedupPrefixLen]
		}
		if _, ok := seen[prefix]; ok {
			continue
		}
		seen[prefix] = struct{}{}
		out = append(out, c)
	}
	return out
}

func formatResults(chunks []knowledge.Result, maxChars int) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		content := c.Content
		if len(content) > maxChars {
			content = content[:maxChars] + "..."
		}
		parts = append(parts, fmt.Sprintf("[Page %d | Similarity: %.2f]\n%s\n",
			c.PageNumber, c.Similarity, content))
	}
	return strings.Join(parts, separator)
}

func formatSources(chunks []knowledge.Result) string {
	lines := make([]string, 0, len(chunks))
	for _, c := range chunks {
		lines = append(lines, fmt.Sprintf("- Page %d, Chunk %d", c.PageNumber, c.ChunkIndex))
	}
	return strings.Join(lines, "\n")
}
