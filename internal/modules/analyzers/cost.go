package analyzers

import (
	"github.com/shopspring/decimal"

	"github.com/folioanalytics/folio/internal/domain"
)

// CostAnalyzer totals trading costs over the reporting period.
type CostAnalyzer struct{}

func (CostAnalyzer) Name() string { return "cost" }

func (CostAnalyzer) Analyze(p domain.Portfolio) (Result, error) {
	res := Result{Analyzer: "cost", Metrics: map[string]decimal.Decimal{}}

	totalCommission := decimal.Zero
	totalTraded := decimal.Zero
	trades := p.AllTrades()
	for _, t := range trades {
		// Vendor reports commissions as negative cash flows.
		totalCommission = totalCommission.Add(t.CommissionBase.Abs())
		totalTraded = totalTraded.Add(t.ValueBase.Abs())
	}

	res.Metrics["total_commission"] = totalCommission
	res.Metrics["total_traded_value"] = totalTraded
	if len(trades) > 0 {
		res.Metrics["avg_commission_per_trade"] = totalCommission.Div(decimal.NewFromInt(int64(len(trades))))
	} else {
		res.Metrics["avg_commission_per_trade"] = decimal.Zero
	}
	if totalTraded.IsPositive() {
		res.Metrics["commission_drag"] = totalCommission.Div(totalTraded)
	} else {
		res.Metrics["commission_drag"] = decimal.Zero
	}

	return res, nil
}
