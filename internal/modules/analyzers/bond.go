package analyzers

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/folioanalytics/folio/internal/domain"
	"github.com/folioanalytics/folio/internal/modules/calculations"
)

// BondAnalyzer aggregates fixed-income analytics across bond positions.
type BondAnalyzer struct{}

func (BondAnalyzer) Name() string { return "bond" }

func (BondAnalyzer) Analyze(p domain.Portfolio) (Result, error) {
	res := Result{Analyzer: "bond", Metrics: map[string]decimal.Decimal{}}

	totalValue := decimal.Zero
	weightedYTM := decimal.Zero
	weightedDuration := decimal.Zero
	totalDV01 := decimal.Zero
	count := 0
	missingAnalytics := 0

	for _, pos := range p.AllPositions() {
		if pos.AssetClass != domain.AssetClassBond {
			continue
		}
		count++
		totalValue = totalValue.Add(pos.MarketValueBase)

		if pos.YTM == nil || pos.Duration == nil {
			missingAnalytics++
			continue
		}
		weightedYTM = weightedYTM.Add(pos.YTM.Mul(pos.MarketValueBase))
		weightedDuration = weightedDuration.Add(pos.Duration.Mul(pos.MarketValueBase))
		totalDV01 = totalDV01.Add(calculations.DV01(pos.MarketValueBase, *pos.Duration))
	}

	res.Metrics["bond_count"] = decimal.NewFromInt(int64(count))
	res.Metrics["bond_value"] = totalValue
	if totalValue.IsPositive() {
		res.Metrics["weighted_ytm"] = weightedYTM.Div(totalValue)
		res.Metrics["weighted_duration"] = weightedDuration.Div(totalValue)
	} else {
		res.Metrics["weighted_ytm"] = decimal.Zero
		res.Metrics["weighted_duration"] = decimal.Zero
	}
	res.Metrics["total_dv01"] = totalDV01

	if count == 0 {
		res.Notes = append(res.Notes, "no bond positions held")
	}
	if missingAnalytics > 0 {
		res.Notes = append(res.Notes,
			fmt.Sprintf("%d bond positions without derived analytics (coupon bonds or missing maturity)", missingAnalytics))
	}

	return res, nil
}
