// Package domain provides the core ledger model: typed, immutable financial
// records produced by normalization and consumed by every engine.
//
// All monetary and quantity fields are decimal.Decimal. Values never pass
// through binary floating point between parsing, storage, and arithmetic.
// FX conversion into the base currency happens exactly once, at
// normalization time: the Base-suffixed fields hold the converted values and
// are always recomputed from the local value and FXRateToBase.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// UnknownAccountID marks an account section whose identifier could not be
// determined. Such accounts are kept for inspection but excluded from all
// cross-account aggregation.
const UnknownAccountID = "UNKNOWN"

// AssetClass classifies an instrument
type AssetClass string

const (
	AssetClassEquity AssetClass = "equity"
	AssetClassBond   AssetClass = "bond"
	AssetClassOption AssetClass = "option"
	AssetClassFund   AssetClass = "fund"
	AssetClassCash   AssetClass = "cash"
	AssetClassOther  AssetClass = "other"
)

// AssetClassFromCode maps a vendor asset-category code to an AssetClass.
// Unrecognized codes map to AssetClassOther rather than failing: partial
// classification beats aborting a whole document. The bool result reports
// whether the code was recognized so callers can attach a diagnostic.
func AssetClassFromCode(code string) (AssetClass, bool) {
	switch code {
	case "STK", "EQUITY", "STOCK":
		return AssetClassEquity, true
	case "BOND", "BILL", "FIXED":
		return AssetClassBond, true
	case "OPT", "FOP", "OPTION":
		return AssetClassOption, true
	case "FUND", "ETF", "MF":
		return AssetClassFund, true
	case "CASH", "FX":
		return AssetClassCash, true
	default:
		return AssetClassOther, false
	}
}

// TradeSide is the direction of a trade
type TradeSide string

const (
	TradeSideBuy  TradeSide = "BUY"
	TradeSideSell TradeSide = "SELL"
)

// Trade is a single executed trade as reported by the vendor.
// Trades are immutable once created; any update is a full re-derivation
// from a fresh source document.
type Trade struct {
	ID         string     `json:"id"`
	Symbol     string     `json:"symbol"`
	AssetClass AssetClass `json:"asset_class"`
	Side       TradeSide  `json:"side"`

	Quantity   decimal.Decimal `json:"quantity"` // signed magnitude
	Price      decimal.Decimal `json:"price"`
	Value      decimal.Decimal `json:"value"`
	Commission decimal.Decimal `json:"commission"`

	// RealizedPnL is the vendor-reported FIFO realized P&L for this trade.
	RealizedPnL decimal.Decimal `json:"realized_pnl"`

	Currency     string          `json:"currency"`
	FXRateToBase decimal.Decimal `json:"fx_rate_to_base"`

	// Base-currency values, converted exactly once at normalization.
	ValueBase       decimal.Decimal `json:"value_base"`
	CommissionBase  decimal.Decimal `json:"commission_base"`
	RealizedPnLBase decimal.Decimal `json:"realized_pnl_base"`

	TradeDate  time.Time `json:"trade_date"`
	SettleDate time.Time `json:"settle_date"`
	OrderTime  time.Time `json:"order_time"`
}

// IsLoss reports whether this trade realized a loss
func (t Trade) IsLoss() bool {
	return t.Side == TradeSideSell && t.RealizedPnLBase.IsNegative()
}

// Position is a single holding as of the report date.
// Mutated only by re-normalization from a fresh snapshot, never incrementally.
type Position struct {
	Symbol     string     `json:"symbol"`
	AssetClass AssetClass `json:"asset_class"`

	Quantity      decimal.Decimal `json:"quantity"` // signed (short positions negative)
	AvgCost       decimal.Decimal `json:"avg_cost"`
	CostBasis     decimal.Decimal `json:"cost_basis"`
	MarketPrice   decimal.Decimal `json:"market_price"`
	MarketValue   decimal.Decimal `json:"market_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`

	Currency     string          `json:"currency"`
	FXRateToBase decimal.Decimal `json:"fx_rate_to_base"`

	// Base-currency values, converted exactly once at normalization.
	CostBasisBase     decimal.Decimal `json:"cost_basis_base"`
	MarketValueBase   decimal.Decimal `json:"market_value_base"`
	UnrealizedPnLBase decimal.Decimal `json:"unrealized_pnl_base"`

	// Bond-only fields. CouponRate and MaturityDate come from the source
	// document; YTM and Duration are always derived, never sourced.
	CouponRate   *decimal.Decimal `json:"coupon_rate,omitempty"`
	MaturityDate *time.Time       `json:"maturity_date,omitempty"`
	YTM          *decimal.Decimal `json:"ytm,omitempty"`
	Duration     *decimal.Decimal `json:"duration,omitempty"`
}

// IsZeroCouponBond reports whether the position is a bond with no coupon,
// the only bond kind with full analytics support.
func (p Position) IsZeroCouponBond() bool {
	if p.AssetClass != AssetClassBond || p.MaturityDate == nil {
		return false
	}
	return p.CouponRate == nil || p.CouponRate.IsZero()
}

// CashBalance holds period cash activity for one currency within an account.
// The record with IsBaseSummary set is the vendor's base-currency aggregate;
// it takes precedence over per-currency records so FX conversion is never
// applied twice.
type CashBalance struct {
	Currency          string          `json:"currency"`
	IsBaseSummary     bool            `json:"is_base_summary"`
	StartingCash      decimal.Decimal `json:"starting_cash"`
	EndingCash        decimal.Decimal `json:"ending_cash"`
	Deposits          decimal.Decimal `json:"deposits"`
	Withdrawals       decimal.Decimal `json:"withdrawals"`
	Dividends         decimal.Decimal `json:"dividends"`
	Interest          decimal.Decimal `json:"interest"`
	Commissions       decimal.Decimal `json:"commissions"`
	Fees              decimal.Decimal `json:"fees"`
	NetTradesProceeds decimal.Decimal `json:"net_trades_proceeds"`
	FXRateToBase      decimal.Decimal `json:"fx_rate_to_base"`
}

// Account is everything normalized from one account section of the export.
type Account struct {
	ID           string        `json:"id"`
	Trades       []Trade       `json:"trades"`
	Positions    []Position    `json:"positions"`
	CashBalances []CashBalance `json:"cash_balances"`
	PeriodStart  time.Time     `json:"period_start"`
	PeriodEnd    time.Time     `json:"period_end"`
}

// IsUnknown reports whether the account id could not be parsed
func (a Account) IsUnknown() bool {
	return a.ID == UnknownAccountID
}

// EndingCashBase returns the account's ending cash in base currency.
// The base-summary record wins; otherwise per-currency records are summed,
// each converted by its own FX rate.
func (a Account) EndingCashBase() decimal.Decimal {
	for _, cb := range a.CashBalances {
		if cb.IsBaseSummary {
			return cb.EndingCash
		}
	}
	total := decimal.Zero
	for _, cb := range a.CashBalances {
		rate := cb.FXRateToBase
		if rate.IsZero() {
			rate = decimal.NewFromInt(1)
		}
		total = total.Add(cb.EndingCash.Mul(rate))
	}
	return total
}

// TotalPositionValueBase returns the sum of position market values in base currency
func (a Account) TotalPositionValueBase() decimal.Decimal {
	total := decimal.Zero
	for _, p := range a.Positions {
		total = total.Add(p.MarketValueBase)
	}
	return total
}
