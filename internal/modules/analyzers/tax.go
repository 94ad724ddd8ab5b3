package analyzers

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/folioanalytics/folio/internal/domain"
	"github.com/folioanalytics/folio/internal/modules/calculations"
	"github.com/folioanalytics/folio/internal/modules/taxes"
)

// TaxAnalyzer surfaces wash-sale exposure and harvesting potential.
type TaxAnalyzer struct {
	Taxes   *taxes.Service
	TaxRate decimal.Decimal
	Now     func() time.Time // defaults to time.Now
}

func (TaxAnalyzer) Name() string { return "tax" }

func (a TaxAnalyzer) Analyze(p domain.Portfolio) (Result, error) {
	res := Result{Analyzer: "tax", Metrics: map[string]decimal.Decimal{}}

	now := time.Now
	if a.Now != nil {
		now = a.Now
	}

	report, err := a.Taxes.Detect(p.AllTrades(), p.AllPositions(), a.TaxRate, now())
	if err != nil {
		return res, fmt.Errorf("wash-sale scan failed: %w", err)
	}

	res.Metrics["violation_count"] = decimal.NewFromInt(int64(len(report.Violations)))
	res.Metrics["disallowed_losses"] = report.TotalDisallowed
	res.Metrics["harvest_candidates"] = decimal.NewFromInt(int64(len(report.HarvestCandidates)))
	res.Metrics["potential_tax_savings"] = report.TotalPotentialSaved

	// Zero-coupon bonds accrue taxable OID income without paying cash.
	// One year of constant-yield accrual from the current basis.
	phantom := decimal.Zero
	for _, pos := range p.AllPositions() {
		if !pos.IsZeroCouponBond() {
			continue
		}
		years := calculations.YearsBetween(now().Unix(), pos.MaturityDate.Unix())
		phantom = phantom.Add(calculations.PhantomIncome(
			pos.Quantity.Abs(), pos.CostBasisBase.Abs(), years, calculations.DaysPerYear))
	}
	res.Metrics["phantom_income_annual"] = phantom
	res.Metrics["phantom_income_tax"] = phantom.Mul(a.TaxRate)

	for _, v := range report.Violations {
		res.Notes = append(res.Notes,
			fmt.Sprintf("wash sale on %s: %s loss disallowed (repurchase %d days apart)",
				v.Symbol, v.DisallowedLoss, v.DaysApart))
	}

	return res, nil
}
