package domain

import "github.com/shopspring/decimal"

// Portfolio is a cross-account aggregation. It is built by NewPortfolio and
// never mutated after construction.
type Portfolio struct {
	Accounts map[string]Account `json:"accounts"`

	// Excluded lists account ids that were left out of the totals
	// (currently only UNKNOWN accounts). They stay available in Accounts
	// for inspection.
	Excluded []string `json:"excluded,omitempty"`

	TotalValueBase decimal.Decimal `json:"total_value_base"` // positions + cash
	TotalCashBase  decimal.Decimal `json:"total_cash_base"`

	// ValueByAssetClass holds base-currency position value per asset class,
	// across all counted accounts.
	ValueByAssetClass map[AssetClass]decimal.Decimal `json:"value_by_asset_class"`
}

// NewPortfolio aggregates accounts into a Portfolio. Accounts with an
// UNKNOWN id are recorded in Excluded and never counted in totals.
func NewPortfolio(accounts map[string]Account) Portfolio {
	p := Portfolio{
		Accounts:          make(map[string]Account, len(accounts)),
		TotalValueBase:    decimal.Zero,
		TotalCashBase:     decimal.Zero,
		ValueByAssetClass: make(map[AssetClass]decimal.Decimal),
	}

	for id, acct := range accounts {
		p.Accounts[id] = acct
		if acct.IsUnknown() {
			p.Excluded = append(p.Excluded, id)
			continue
		}

		cash := acct.EndingCashBase()
		p.TotalCashBase = p.TotalCashBase.Add(cash)
		p.TotalValueBase = p.TotalValueBase.Add(cash)

		for _, pos := range acct.Positions {
			p.TotalValueBase = p.TotalValueBase.Add(pos.MarketValueBase)
			prev, ok := p.ValueByAssetClass[pos.AssetClass]
			if !ok {
				prev = decimal.Zero
			}
			p.ValueByAssetClass[pos.AssetClass] = prev.Add(pos.MarketValueBase)
		}
	}

	return p
}

// AllTrades returns the trades of every counted account
func (p Portfolio) AllTrades() []Trade {
	var trades []Trade
	for _, acct := range p.Accounts {
		if acct.IsUnknown() {
			continue
		}
		trades = append(trades, acct.Trades...)
	}
	return trades
}

// AllPositions returns the positions of every counted account
func (p Portfolio) AllPositions() []Position {
	var positions []Position
	for _, acct := range p.Accounts {
		if acct.IsUnknown() {
			continue
		}
		positions = append(positions, acct.Positions...)
	}
	return positions
}
