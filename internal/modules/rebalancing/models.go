package rebalancing

import (
	"github.com/shopspring/decimal"

	"github.com/folioanalytics/folio/internal/domain"
)

// AllocationTolerance is how far from 100 the target percentages may sum,
// in percentage points, before the plan is rejected.
var AllocationTolerance = decimal.RequireFromString("0.01")

// Options tunes a single plan generation. Zero values are valid: no
// commissions, no tax simulation.
type Options struct {
	CommissionFixed decimal.Decimal
	CommissionPct   decimal.Decimal // fraction of trade amount, e.g. 0.002

	// SimulateTaxImpact adds projected realized gain/loss and estimated tax
	// to every sell. Pure simulation; nothing is mutated.
	SimulateTaxImpact bool
	TaxRate           decimal.Decimal
}

// Target is a desired portfolio weight for one symbol, in percent.
type Target struct {
	Symbol        string          `json:"symbol"`
	TargetPercent decimal.Decimal `json:"target_percent"`
}

// Trade is one recommended rebalancing trade.
type Trade struct {
	Symbol       string           `json:"symbol"`
	Side         domain.TradeSide `json:"side"`
	Quantity     decimal.Decimal  `json:"quantity"` // positive magnitude
	Amount       decimal.Decimal  `json:"amount"`   // positive magnitude, base currency
	Price        decimal.Decimal  `json:"price"`
	DriftPercent decimal.Decimal  `json:"drift_percent"` // signed: target - current
	Commission   decimal.Decimal  `json:"commission"`

	// FullLiquidation marks a position absent from the targets: the plan
	// sells it entirely rather than silently keeping it.
	FullLiquidation bool `json:"full_liquidation,omitempty"`

	// Tax simulation fields, populated only when Options.SimulateTaxImpact.
	ProjectedRealizedPnL *decimal.Decimal `json:"projected_realized_pnl,omitempty"`
	EstimatedTax         *decimal.Decimal `json:"estimated_tax,omitempty"`
}

// Plan is the full output of one rebalancing run: the trades in execution
// order (sells first) plus the drift picture they correct.
type Plan struct {
	TotalValue      decimal.Decimal `json:"total_value"`
	Trades          []Trade         `json:"trades"`
	TotalCommission decimal.Decimal `json:"total_commission"`
	TotalSellAmount decimal.Decimal `json:"total_sell_amount"`
	TotalBuyAmount  decimal.Decimal `json:"total_buy_amount"`
}
