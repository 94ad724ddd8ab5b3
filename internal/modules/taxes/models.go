package taxes

import (
	"time"

	"github.com/shopspring/decimal"
)

// WashSaleWindowDays is the exclusive window around a loss sale. A purchase
// of the same symbol strictly fewer than this many days before or after the
// sale disallows the loss; exactly 30 days apart is clean.
const WashSaleWindowDays = 30

// Violation is one loss sale disallowed by a nearby purchase of the same
// symbol. The disallowed loss is not deductible in the current period; it is
// added to the basis of the replacement purchase instead.
type Violation struct {
	Symbol         string          `json:"symbol"`
	SellTradeID    string          `json:"sell_trade_id"`
	SellDate       time.Time       `json:"sell_date"`
	BuyTradeID     string          `json:"buy_trade_id"`
	BuyDate        time.Time       `json:"buy_date"`
	DaysApart      int             `json:"days_apart"` // signed: negative when the buy precedes the sale
	DisallowedLoss decimal.Decimal `json:"disallowed_loss"`
	AddToBasis     decimal.Decimal `json:"add_to_basis"`
}

// HarvestCandidate is a currently-held losing position whose sale would
// realize a deductible loss, ranked by estimated tax savings.
type HarvestCandidate struct {
	Symbol              string          `json:"symbol"`
	Quantity            decimal.Decimal `json:"quantity"`
	UnrealizedLoss      decimal.Decimal `json:"unrealized_loss"` // negative
	EstimatedTaxSavings decimal.Decimal `json:"estimated_tax_savings"`
	WashSaleRisk        bool            `json:"wash_sale_risk"`
	WashSaleRiskReason  string          `json:"wash_sale_risk_reason,omitempty"`
	SuggestedSubstitute string          `json:"suggested_substitute,omitempty"`
}

// Report bundles the result of a full wash-sale scan.
type Report struct {
	Violations          []Violation        `json:"violations"`
	TotalDisallowed     decimal.Decimal    `json:"total_disallowed"`
	HarvestCandidates   []HarvestCandidate `json:"harvest_candidates"`
	TotalPotentialSaved decimal.Decimal    `json:"total_potential_savings"`
}
