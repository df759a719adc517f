package extract

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	moneyRe   = regexp.MustCompile(`(?i)\$\s*([0-9]{1,3}(?:,?[0-9]{3})*(?:\.[0-9]+)?)\s*(trillion|billion|million|thousand|[tbmk]\b)?`)
	percentRe = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)\s*%`)
)

var unitMultipliers = map[string]float64{
	"k": 1e3, "thousand": 1e3,
	"m": 1e6, "million": 1e6,
	"b": 1e9, "billion": 1e9,
	"t": 1e12, "trillion": 1e12,
}

// normalizeAmount turns a matched number and optional scale unit into an
// absolute value, e.g. ("5.2", "M") becomes 5200000.
func normalizeAmount(number, unit string) (float64, bool) {
	cleaned := strings.NewReplacer(",", "", "$", "").Replace(number)
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	if unit != "" {
		if mult, ok := unitMultipliers[strings.ToLower(unit)]; ok {
			v *= mult
		}
	}
	return v, true
}

// firstAmount extracts the first dollar amount from s.
func firstAmount(s string) *float64 {
	m := moneyRe.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	v, ok := normalizeAmount(m[1], m[2])
	if !ok {
		return nil
	}
	return &v
}

// firstPercent extracts the first percentage from s.
func firstPercent(s string) *float64 {
	m := percentRe.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return &v
}

// amountField pairs keyword cues with the fact slot they fill. More
// specific cues must come before the generic ones that contain them.
type amountField struct {
	cues   []string
	assign func(*FinancialFacts, *float64)
}

var amountFields = []amountField{
	{[]string{"free cash flow"}, func(f *FinancialFacts, v *float64) { f.CashFlow.FreeCashFlow = v }},
	{[]string{"operating cash flow", "cash flow from operations"}, func(f *FinancialFacts, v *float64) { f.CashFlow.OperatingCashFlow = v }},
	{[]string{"gross profit"}, func(f *FinancialFacts, v *float64) { f.ProfitLoss.GrossProfit = v }},
	{[]string{"operating profit", "operating income"}, func(f *FinancialFacts, v *float64) { f.ProfitLoss.OperatingProfit = v }},
	{[]string{"net income", "net profit", "profit"}, func(f *FinancialFacts, v *float64) { f.ProfitLoss.NetIncome = v }},
	{[]string{"total debt", "debt"}, func(f *FinancialFacts, v *float64) { f.DebtEquity.TotalDebt = v }},
	{[]string{"equity"}, func(f *FinancialFacts, v *float64) { f.DebtEquity.Equity = v }},
	{[]string{"ebitda"}, func(f *FinancialFacts, v *float64) { f.OtherMetrics.EBITDA = v }},
	{[]string{"revenue", "sales", "turnover"}, func(f *FinancialFacts, v *float64) { f.Revenue.CurrentYear = v }},
}

// HeuristicFinancialFacts recovers what it can from raw text with keyword
// and amount patterns. It is the last extraction resort before the
// all-null shape and never fabricates values without a textual match.
func HeuristicFinancialFacts(text string) FinancialFacts {
	facts := EmptyFinancialFacts()
	assigned := make(map[int]bool)

	for _, line := range strings.Split(text, "\n") {
		lower := strings.ToLower(line)

		for i, field := range amountFields {
			if assigned[i] {
				continue
			}
			if !containsAnyCue(lower, field.cues) {
				continue
			}
			if v := firstAmount(line); v != nil {
				field.assign(&facts, v)
				assigned[i] = true
			}
		}

		if facts.OtherMetrics.MarginPercentage == nil && strings.Contains(lower, "margin") {
			facts.OtherMetrics.MarginPercentage = firstPercent(line)
		}
		if facts.OtherMetrics.GrowthRate == nil && strings.Contains(lower, "growth") {
			facts.OtherMetrics.GrowthRate = firstPercent(line)
		}
	}

	if facts.DebtEquity.TotalDebt != nil && facts.DebtEquity.Equity != nil && *facts.DebtEquity.Equity != 0 {
		ratio := *facts.DebtEquity.TotalDebt / *facts.DebtEquity.Equity
		facts.DebtEquity.DebtToEquityRatio = &ratio
	}
	return facts
}

func containsAnyCue(s string, cues []string) bool {
	for _, cue := range cues {
		if strings.Contains(s, cue) {
			return true
		}
	}
	return false
}
