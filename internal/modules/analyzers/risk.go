package analyzers

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/folioanalytics/folio/internal/domain"
)

// concentrationWarning is the single-position weight above which the risk
// analyzer raises a note.
var concentrationWarning = decimal.RequireFromString("0.25")

// RiskAnalyzer reports concentration and asset-class exposure.
type RiskAnalyzer struct{}

func (RiskAnalyzer) Name() string { return "risk" }

func (RiskAnalyzer) Analyze(p domain.Portfolio) (Result, error) {
	res := Result{Analyzer: "risk", Metrics: map[string]decimal.Decimal{}}

	positions := p.AllPositions()
	res.Metrics["position_count"] = decimal.NewFromInt(int64(len(positions)))

	if p.TotalValueBase.IsZero() {
		res.Notes = append(res.Notes, "portfolio has no value; exposure metrics skipped")
		return res, nil
	}

	res.Metrics["cash_weight"] = p.TotalCashBase.Div(p.TotalValueBase)
	for class, value := range p.ValueByAssetClass {
		res.Metrics[string(class)+"_weight"] = value.Div(p.TotalValueBase)
	}

	largest := decimal.Zero
	largestSymbol := ""
	for _, pos := range positions {
		w := pos.MarketValueBase.Div(p.TotalValueBase)
		if w.GreaterThan(largest) {
			largest = w
			largestSymbol = pos.Symbol
		}
	}
	res.Metrics["largest_position_weight"] = largest

	if largest.GreaterThan(concentrationWarning) {
		res.Notes = append(res.Notes,
			fmt.Sprintf("%s is %s of the portfolio, above the %s concentration threshold",
				largestSymbol, largest.Round(4), concentrationWarning))
	}

	return res, nil
}
