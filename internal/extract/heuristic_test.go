package extract

import (
	"math"
	"testing"
)

func floatEq(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestNormalizeAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		number string
		unit   string
		want   float64
	}{
		{"5.2", "M", 5200000},
		{"5.2", "million", 5200000},
		{"1,250", "", 1250},
		{"3", "B", 3000000000},
		{"3", "billion", 3000000000},
		{"700", "k", 700000},
		{"700", "thousand", 700000},
		{"1.5", "T", 1500000000000},
		{"42", "", 42},
	}
	for _, tt := range tests {
		got, ok := normalizeAmount(tt.number, tt.unit)
		if !ok {
			t.Errorf("normalizeAmount(%q, %q) failed", tt.number, tt.unit)
			continue
		}
		if !floatEq(got, tt.want) {
			t.Errorf("normalizeAmount(%q, %q) = %v, want %v", tt.number, tt.unit, got, tt.want)
		}
	}
}

func TestFirstAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line string
		want float64
		none bool
	}{
		{"Revenue: $5.2M for FY2023", 5200000, false},
		{"Total of $1,250,000 recorded", 1250000, false},
		{"$3 billion in assets", 3000000000, false},
		{"no numbers here", 0, true},
	}
	for _, tt := range tests {
		got := firstAmount(tt.line)
		if tt.none {
			if got != nil {
				t.Errorf("firstAmount(%q) = %v, want nil", tt.line, *got)
			}
			continue
		}
		if got == nil {
			t.Errorf("firstAmount(%q) = nil, want %v", tt.line, tt.want)
			continue
		}
		if !floatEq(*got, tt.want) {
			t.Errorf("firstAmount(%q) = %v, want %v", tt.line, *got, tt.want)
		}
	}
}

func TestHeuristicFinancialFacts(t *testing.T) {
	t.Parallel()

	text := `ACME Corp Annual Report

Revenue: $5.2M for FY2023, up from prior year.
Net income reached $800k despite headwinds.
Gross profit of $2.1M on improved pricing.
EBITDA came in at $1.2 million.
Operating margin of 23.5% for the full year.
Growth of 18% over FY2022.
Total debt stands at $4M.
Equity of $8M at year end.`

	facts := HeuristicFinancialFacts(text)

	if facts.Revenue.CurrentYear == nil || !floatEq(*facts.Revenue.CurrentYear, 5200000) {
		t.Errorf("Revenue.CurrentYear = %v, want 5200000", facts.Revenue.CurrentYear)
	}
	if facts.Revenue.Currency != "USD" {
		t.Errorf("Currency = %q, want USD", facts.Revenue.Currency)
	}
	if facts.ProfitLoss.NetIncome == nil || !floatEq(*facts.ProfitLoss.NetIncome, 800000) {
		t.Errorf("NetIncome = %v, want 800000", facts.ProfitLoss.NetIncome)
	}
	if facts.ProfitLoss.GrossProfit == nil || !floatEq(*facts.ProfitLoss.GrossProfit, 2100000) {
		t.Errorf("GrossProfit = %v, want 2100000", facts.ProfitLoss.GrossProfit)
	}
	if facts.OtherMetrics.EBITDA == nil || !floatEq(*facts.OtherMetrics.EBITDA, 1200000) {
		t.Errorf("EBITDA = %v, want 1200000", facts.OtherMetrics.EBITDA)
	}
	if facts.OtherMetrics.MarginPercentage == nil || !floatEq(*facts.OtherMetrics.MarginPercentage, 23.5) {
		t.Errorf("MarginPercentage = %v, want 23.5", facts.OtherMetrics.MarginPercentage)
	}
	if facts.OtherMetrics.GrowthRate == nil || !floatEq(*facts.OtherMetrics.GrowthRate, 18) {
		t.Errorf("GrowthRate = %v, want 18", facts.OtherMetrics.GrowthRate)
	}
	if facts.DebtEquity.TotalDebt == nil || !floatEq(*facts.DebtEquity.TotalDebt, 4000000) {
		t.Errorf("TotalDebt = %v, want 4000000", facts.DebtEquity.TotalDebt)
	}
	if facts.DebtEquity.Equity == nil || !floatEq(*facts.DebtEquity.Equity, 8000000) {
		t.Errorf("Equity = %v, want 8000000", facts.DebtEquity.Equity)
	}
	if facts.DebtEquity.DebtToEquityRatio == nil || !floatEq(*facts.DebtEquity.DebtToEquityRatio, 0.5) {
		t.Errorf("DebtToEquityRatio = %v, want 0.5", facts.DebtEquity.DebtToEquityRatio)
	}
}

func TestHeuristicFinancialFactsNoMatches(t *testing.T) {
	t.Parallel()

	facts := HeuristicFinancialFacts("This document discusses strategy without any figures.")

	if !facts.IsEmpty() {
		t.Errorf("facts should be empty: %+v", facts)
	}
	if facts.Revenue.Currency != "USD" || facts.Revenue.Period != "annual" {
		t.Errorf("empty shape defaults missing: %+v", facts.Revenue)
	}
}

func TestIsEmpty(t *testing.T) {
	t.Parallel()

	facts := EmptyFinancialFacts()
	if !facts.IsEmpty() {
		t.Error("EmptyFinancialFacts should be empty")
	}

	v := 1.0
	facts.OtherMetrics.GrowthRate = &v
	if facts.IsEmpty() {
		t.Error("facts with a value should not be empty")
	}
}
