package extract

import (
	"github.com/google/uuid"

	"github.com/finsight-ai/finsight/internal/workflow"
)

// Node names of the extraction pipeline.
const (
	stepLoad           = "load_document"
	stepFinancialFacts = "extract_financial_facts"
	stepInvestmentData = "extract_investment_data"
	stepSummarize      = "summarize_document"
	stepPersist        = "persist"
)

// FinancialFacts is the fixed financial extraction shape. The schema is
// total: every key is always present, with nulls where the document gave
// nothing, so downstream consumers never branch on missing keys.
type FinancialFacts struct {
	Revenue      Revenue      `json:"revenue"`
	ProfitLoss   ProfitLoss   `json:"profit_loss"`
	CashFlow     CashFlow     `json:"cash_flow"`
	DebtEquity   DebtEquity   `json:"debt_equity"`
	OtherMetrics OtherMetrics `json:"other_metrics"`
}

type Revenue struct {
	CurrentYear  *float64 `json:"current_year"`
	PreviousYear *float64 `json:"previous_year"`
	Currency     string   `json:"currency"`
	Period       string   `json:"period" jsonschema_description:"annual, quarterly or monthly"`
}

type ProfitLoss struct {
	NetIncome       *float64 `json:"net_income"`
	GrossProfit     *float64 `json:"gross_profit"`
	OperatingProfit *float64 `json:"operating_profit"`
	Currency        string   `json:"currency"`
}

type CashFlow struct {
	OperatingCashFlow *float64 `json:"operating_cash_flow"`
	FreeCashFlow      *float64 `json:"free_cash_flow"`
	Currency          string   `json:"currency"`
}

type DebtEquity struct {
	TotalDebt         *float64 `json:"total_debt"`
	Equity            *float64 `json:"equity"`
	DebtToEquityRatio *float64 `json:"debt_to_equity_ratio"`
}

type OtherMetrics struct {
	EBITDA           *float64 `json:"ebitda"`
	MarginPercentage *float64 `json:"margin_percentage"`
	GrowthRate       *float64 `json:"growth_rate"`
}

// EmptyFinancialFacts returns the all-null shape with USD defaults.
func EmptyFinancialFacts() FinancialFacts {
	return FinancialFacts{
		Revenue:    Revenue{Currency: "USD", Period: "annual"},
		ProfitLoss: ProfitLoss{Currency: "USD"},
		CashFlow:   CashFlow{Currency: "USD"},
	}
}

// IsEmpty reports whether no numeric field was extracted.
func (f FinancialFacts) IsEmpty() bool {
	numbers := []*float64{
		f.Revenue.CurrentYear, f.Revenue.PreviousYear,
		f.ProfitLoss.NetIncome, f.ProfitLoss.GrossProfit, f.ProfitLoss.OperatingProfit,
		f.CashFlow.OperatingCashFlow, f.CashFlow.FreeCashFlow,
		f.DebtEquity.TotalDebt, f.DebtEquity.Equity, f.DebtEquity.DebtToEquityRatio,
		f.OtherMetrics.EBITDA, f.OtherMetrics.MarginPercentage, f.OtherMetrics.GrowthRate,
	}
	for _, n := range numbers {
		if n != nil {
			return false
		}
	}
	return true
}

// InvestmentData is the fixed investment extraction shape. Lists default
// to empty, not null.
type InvestmentData struct {
	InvestmentHighlights []string          `json:"investment_highlights"`
	RiskFactors          []string          `json:"risk_factors"`
	MarketOpportunity    MarketOpportunity `json:"market_opportunity"`
	BusinessModel        BusinessModel     `json:"business_model"`
	StrategicInitiatives []string          `json:"strategic_initiatives"`
	ExitStrategy         ExitStrategy      `json:"exit_strategy"`
}

type MarketOpportunity struct {
	MarketSize          *float64 `json:"market_size"`
	GrowthRate          *float64 `json:"growth_rate"`
	CompetitivePosition *string  `json:"competitive_position"`
}

type BusinessModel struct {
	Type           *string  `json:"type"`
	RevenueStreams []string `json:"revenue_streams"`
	KeyCustomers   []string `json:"key_customers"`
}

type ExitStrategy struct {
	Timeline        *string  `json:"timeline"`
	TargetMultiple  *float64 `json:"target_multiple"`
	PotentialBuyers []string `json:"potential_buyers"`
}

// EmptyInvestmentData returns the all-empty shape.
func EmptyInvestmentData() InvestmentData {
	return InvestmentData{
		InvestmentHighlights: []string{},
		RiskFactors:          []string{},
		BusinessModel:        BusinessModel{RevenueStreams: []string{}, KeyCustomers: []string{}},
		StrategicInitiatives: []string{},
		ExitStrategy:         ExitStrategy{PotentialBuyers: []string{}},
	}
}

// Structure holds the non-LLM structural statistics of a document.
type Structure struct {
	EstimatedSections           int     `json:"estimated_sections"`
	EstimatedTables             int     `json:"estimated_tables"`
	BulletPoints                int     `json:"bullet_points"`
	EstimatedReadingTimeMinutes int     `json:"estimated_reading_time_minutes"`
	ComplexityScore             float64 `json:"complexity_score"`
}

// Result is the output contract of one extraction run.
type Result struct {
	DocumentID     uuid.UUID      `json:"document_id"`
	FinancialFacts FinancialFacts `json:"financial_facts"`
	InvestmentData InvestmentData `json:"investment_data"`
	Structure      Structure      `json:"structure"`
	Summary        string         `json:"summary,omitempty"`
	Errors         []string       `json:"errors,omitempty"`
}

// imageRef locates one extracted page image recorded in the document's
// metadata.
type imageRef struct {
	PageNumber int    `json:"page_number"`
	ImageURI   string `json:"image_uri"`
	MediaType  string `json:"media_type,omitempty"`
}

// state carries one extraction run through the pipeline.
type state struct {
	workflow.BaseState

	DocumentID uuid.UUID

	FullText   string
	ChunkCount int
	Images     []imageRef
	Structure  Structure

	FinancialFacts FinancialFacts
	InvestmentData InvestmentData
	Summary        string
}
