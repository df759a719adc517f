// Package extract runs the metadata extraction pipeline over ingested
// documents: structured financial facts, investment data, a document
// summary and structural statistics, all persisted to the document's
// metadata.
package extract

import (
	"context"
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

const (
	financialQuery  = "financial statements; revenue; profit; income; profit; cash flow; debt; equity; EBITDA; margin; growth; guidance; bookings"
	investmentQuery = "Investment, risks, market opportunity, business model, strategy, exit."

	extractTopK         = 12
	extractThreshold    = 0.55
	maxTokensPerSource  = 800
	maxChunkChars       = maxTokensPerSource * 4
	fullTextExcerptSize = 24000
	summaryMaxWords     = 200
)

type generator interface {
	Generate(ctx context.Context, req llm.Request) (*llm.Response, error)
	GenerateText(ctx context.Context, system, prompt string) (string, error)
}

type retriever interface {
	Search(ctx context.Context, p search.Params) search.Result
}

type docStore interface {
	GetDocument(ctx context.Context, id uuid.UUID) (*store.Document, error)
	GetChunks(ctx context.Context, documentID uuid.UUID) ([]*store.DocumentChunk, error)
	UpdateDocumentMetadata(ctx context.Context, id uuid.UUID, metadata map[string]any) error
}

// Config assembles an extraction Agent.
type Config struct {
	Generator generator
	Retriever retriever
	Store     docStore
	Logger    *slog.Logger
}

// Agent extracts structured metadata from a single document per run.
type Agent struct {
	gen    generator
	ret    retriever
	store  docStore
	graph  *workflow.Graph[*state]
	logger *slog.Logger
}

// New builds the extraction agent with its linear pipeline.
func New(cfg Config) (*Agent, error) {
	if cfg.Generator == nil {
		return nil, fmt.Errorf("extract: generator is required")
	}
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("extract: retriever is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("extract: store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &Agent{gen: cfg.Generator, ret: cfg.Retriever, store: cfg.Store, logger: logger}

	a.graph = workflow.New[*state]("metadata_extraction", logger).
		AddNode(stepLoad, a.loadDocument, stepFinancialFacts).
		AddNode(stepFinancialFacts, a.extractFinancialFacts, stepInvestmentData).
		AddNode(stepInvestmentData, a.extractInvestmentData, stepSummarize).
		AddNode(stepSummarize, a.summarizeDocument, stepPersist).
		AddNode(stepPersist, a.persist, workflow.End).
		SetEntry(stepLoad)

	if err := a.graph.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// ExtractMetadata runs the full pipeline for one document. The document
// must exist; every downstream failure degrades to an empty shape and is
// reported in Result.Errors instead of aborting the run.
func (a *Agent) ExtractMetadata(ctx context.Context, documentID uuid.UUID) (*Result, error) {
	if _, err := a.store.GetDocument(ctx, documentID); err != nil {
		return nil, fmt.Errorf("load document %s: %w", documentID, err)
	}

	st := &state{
		DocumentID:     documentID,
		FinancialFacts: EmptyFinancialFacts(),
		InvestmentData: EmptyInvestmentData(),
	}

	start := time.Now()
	if err := a.graph.Run(ctx, st); err != nil {
		return nil, fmt.Errorf("extraction run: %w", err)
	}
	a.logger.Info("metadata extraction finished",
		"document_id", documentID,
		"errors", len(st.Errors),
		"duration", time.Since(start))

	return &Result{
		DocumentID:     documentID,
		FinancialFacts: st.FinancialFacts,
		InvestmentData: st.InvestmentData,
		Structure:      st.Structure,
		Summary:        st.Summary,
		Errors:         st.Errors,
	}, nil
}

func (a *Agent) loadDocument(ctx context.Context, st *state) error {
	doc, err := a.store.GetDocument(ctx, st.DocumentID)
	if err != nil {
		return fmt.Errorf("get document: %w", err)
	}

	chunks, err := a.store.GetChunks(ctx, st.DocumentID)
	if err != nil {
		return fmt.Errorf("get chunks: %w", err)
	}
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, c.Content)
	}
	st.FullText = strings.Join(parts, "\n\n")
	st.ChunkCount = len(chunks)
	st.Images = imageRefsFromMetadata(doc.Metadata)
	st.Structure = AnalyzeStructure(st.FullText)

	if st.ChunkCount == 0 {
		return fmt.Errorf("document %s has no chunks", st.DocumentID)
	}
	return nil
}

func (a *Agent) extractFinancialFacts(ctx context.Context, st *state) error {
	content, pages := a.retrieveContent(ctx, st, financialQuery)

	var facts FinancialFacts
	resp, err := a.gen.Generate(ctx, llm.Request{
		System:     financialFactsSystemPrompt,
		Messages:   []*ai.Message{a.multimodalMessage(financialFactsUserTemplate, content, pages, st.Images)},
		OutputType: FinancialFacts{},
	})
	if err == nil {
		err = resp.Output(&facts)
	}
	if err != nil {
		a.logger.Warn("structured financial extraction failed, retrying on plain text",
			"document_id", st.DocumentID, "error", err)
		facts, err = a.financialFactsFromText(ctx, st)
	}
	if err != nil {
		st.FinancialFacts = HeuristicFinancialFacts(st.FullText)
		return fmt.Errorf("financial facts generation: %w", err)
	}
	if facts.IsEmpty() {
		if recovered := HeuristicFinancialFacts(st.FullText); !recovered.IsEmpty() {
			facts = recovered
		}
	}
	st.FinancialFacts = normalizeFinancialFacts(facts)
	return nil
}

// financialFactsFromText retries extraction on a plain text excerpt after
// the multimodal attempt failed.
func (a *Agent) financialFactsFromText(ctx context.Context, st *state) (FinancialFacts, error) {
	var facts FinancialFacts
	resp, err := a.gen.Generate(ctx, llm.Request{
		System: financialFactsSystemPrompt,
		Messages: []*ai.Message{ai.NewUserMessage(ai.NewTextPart(
			fmt.Sprintf(financialFactsUserTemplate, excerpt(st.FullText, fullTextExcerptSize))))},
		OutputType: FinancialFacts{},
	})
	if err != nil {
		return facts, err
	}
	if err := resp.Output(&facts); err != nil {
		return facts, err
	}
	return facts, nil
}

func (a *Agent) extractInvestmentData(ctx context.Context, st *state) error {
	content, pages := a.retrieveContent(ctx, st, investmentQuery)

	var data InvestmentData
	resp, err := a.gen.Generate(ctx, llm.Request{
		System:     investmentDataSystemPrompt,
		Messages:   []*ai.Message{a.multimodalMessage(investmentDataUserTemplate, content, pages, st.Images)},
		OutputType: InvestmentData{},
	})
	if err == nil {
		err = resp.Output(&data)
	}
	if err != nil {
		st.InvestmentData = EmptyInvestmentData()
		return fmt.Errorf("investment data generation: %w", err)
	}
	st.InvestmentData = normalizeInvestmentData(data)
	return nil
}

func (a *Agent) summarizeDocument(ctx context.Context, st *state) error {
	text, err := a.gen.GenerateText(ctx,
		fmt.Sprintf(documentSummarySystemPrompt, summaryMaxWords),
		fmt.Sprintf(documentSummaryUserTemplate, excerpt(st.FullText, fullTextExcerptSize)))
	if err != nil {
		return fmt.Errorf("document summary generation: %w", err)
	}
	st.Summary = strings.TrimSpace(text)
	return nil
}

func (a *Agent) persist(ctx context.Context, st *state) error {
	metadata := map[string]any{
		"financial_facts":         st.FinancialFacts,
		"investment_data":         st.InvestmentData,
		"document_structure":      st.Structure,
		"summary":                 st.Summary,
		"extraction_completed_at": time.Now().UTC().Format(time.RFC3339),
	}
	if err := a.store.UpdateDocumentMetadata(ctx, st.DocumentID, metadata); err != nil {
		a.logger.Error("persisting extracted metadata failed",
			"document_id", st.DocumentID, "error", err)
		return fmt.Errorf("persist metadata: %w", err)
	}
	return nil
}

// retrieveContent runs a scoped similarity search and formats the hits
// for the extraction prompt. On retrieval failure it degrades to a plain
// excerpt of the full text so extraction still has something to read.
func (a *Agent) retrieveContent(ctx context.Context, st *state, query string) (string, map[int]bool) {
	res := a.ret.Search(ctx, search.Params{
		Query:               query,
		DocumentID:          st.DocumentID,
		TopK:                extractTopK,
		SimilarityThreshold: extractThreshold,
		MaxTokensPerSource:  maxTokensPerSource,
	})
	if res.Error != "" || len(res.Chunks) == 0 {
		return excerpt(st.FullText, fullTextExcerptSize), nil
	}

	var b strings.Builder
	pages := make(map[int]bool, len(res.Chunks))
	for _, c := range res.Chunks {
		pages[c.PageNumber] = true
		fmt.Fprintf(&b, "\n---\nChunk from page %d with similarity score %.2f:\n%s\n---",
			c.PageNumber, c.Similarity, excerpt(c.Content, maxChunkChars))
	}
	return b.String(), pages
}

// multimodalMessage builds the user message: formatted text content plus
// the page images that overlap the retrieved pages. A nil page set means
// retrieval failed and the text is a blind excerpt, so no image can be
// matched to it and none are attached.
func (a *Agent) multimodalMessage(template, content string, pages map[int]bool, images []imageRef) *ai.Message {
	parts := []*ai.Part{ai.NewTextPart(fmt.Sprintf(template, content))}
	if pages == nil {
		return ai.NewUserMessage(parts...)
	}
	for _, img := range images {
		if !pages[img.PageNumber] || img.ImageURI == "" {
			continue
		}
		parts = append(parts, ai.NewMediaPart(img.MediaType, img.ImageURI))
	}
	return ai.NewUserMessage(parts...)
}

// imageRefsFromMetadata reads the page images recorded by ingestion.
func imageRefsFromMetadata(metadata map[string]any) []imageRef {
	raw, ok := metadata["extracted_images"].([]any)
	if !ok {
		return nil
	}
	refs := make([]imageRef, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		ref := imageRef{}
		if p, ok := m["page_number"].(float64); ok {
			ref.PageNumber = int(p)
		}
		if u, ok := m["image_uri"].(string); ok {
			ref.ImageURI = u
		}
		if t, ok := m["media_type"].(string); ok {
			ref.MediaType = t
		}
		refs = append(refs, ref)
	}
	return refs
}

// normalizeFinancialFacts fills currency and period defaults the model
// may have left blank.
func normalizeFinancialFacts(f FinancialFacts) FinancialFacts {
	if f.Revenue.Currency == "" {
		f.Revenue.Currency = "USD"
	}
	if f.Revenue.Period == "" {
		f.Revenue.Period = "annual"
	}
	if f.ProfitLoss.Currency == "" {
		f.ProfitLoss.Currency = "USD"
	}
	if f.CashFlow.Currency == "" {
		f.CashFlow.Currency = "USD"
	}
	return f
}

// normalizeInvestmentData replaces nil lists with empty ones so the
// persisted shape is total.
func normalizeInvestmentData(d InvestmentData) InvestmentData {
	if d.InvestmentHighlights == nil {
		d.InvestmentHighlights = []string{}
	}
	if d.RiskFactors == nil {
		d.RiskFactors = []string{}
	}
	if d.StrategicInitiatives == nil {
		d.StrategicInitiatives = []string{}
	}
	if d.BusinessModel.RevenueStreams == nil {
		d.BusinessModel.RevenueStreams = []string{}
	}
	if d.BusinessModel.KeyCustomers == nil {
		d.BusinessModel.KeyCustomers = []string{}
	}
	if d.ExitStrategy.PotentialBuyers == nil {
		d.ExitStrategy.PotentialBuyers = []string{}
	}
	return d
}

func excerpt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
