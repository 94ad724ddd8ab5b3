// Package rebalancing turns drift between current and target allocations
// into an ordered trade list. Pure planning: nothing is executed, nothing
// is mutated.
package rebalancing

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/folioanalytics/folio/internal/domain"
)

// ErrAllocationSum is returned when the target percentages do not sum to
// 100 within AllocationTolerance. The wrapped message names the actual sum.
type ErrAllocationSum struct {
	Sum decimal.Decimal
}

func (e ErrAllocationSum) Error() string {
	return fmt.Sprintf("target allocation must sum to 100, got %s", e.Sum)
}

var hundred = decimal.NewFromInt(100)

// Service generates rebalancing plans
type Service struct {
	log zerolog.Logger
}

// NewService creates a new rebalancing service
func NewService(log zerolog.Logger) *Service {
	return &Service{
		log: log.With().Str("service", "rebalancing").Logger(),
	}
}

// GenerateTrades computes the trade list that moves the portfolio from its
// current weights to the target weights. Sells come before buys, each group
// ordered by descending drift magnitude. A symbol held but absent from the
// targets is liquidated in full, explicitly, never silently kept.
func (s *Service) GenerateTrades(positions []domain.Position, targets []Target, opts Options) (Plan, error) {
	sum := decimal.Zero
	targetBySymbol := make(map[string]decimal.Decimal, len(targets))
	for _, t := range targets {
		sum = sum.Add(t.TargetPercent)
		targetBySymbol[t.Symbol] = t.TargetPercent
	}
	if sum.Sub(hundred).Abs().GreaterThan(AllocationTolerance) {
		return Plan{}, ErrAllocationSum{Sum: sum}
	}

	total := decimal.Zero
	for _, p := range positions {
		total = total.Add(p.MarketValueBase)
	}

	plan := Plan{
		TotalValue:      total,
		TotalCommission: decimal.Zero,
		TotalSellAmount: decimal.Zero,
		TotalBuyAmount:  decimal.Zero,
	}
	if total.IsZero() {
		return plan, nil
	}

	posBySymbol := make(map[string]domain.Position, len(positions))
	for _, p := range positions {
		posBySymbol[p.Symbol] = p
	}

	var trades []Trade
	for _, p := range positions {
		target, listed := targetBySymbol[p.Symbol]
		if !listed {
			target = decimal.Zero
		}

		current := p.MarketValueBase.Div(total).Mul(hundred)
		drift := target.Sub(current)
		if drift.IsZero() {
			continue
		}

		tr := s.buildTrade(p, drift, total, opts)
		tr.FullLiquidation = !listed
		if tr.FullLiquidation {
			// Override the drift-derived amounts: close the whole position.
			tr.Quantity = p.Quantity.Abs()
			tr.Amount = p.MarketValueBase.Abs()
			tr.Commission = commission(tr.Amount, opts)
		}
		trades = append(trades, tr)
	}

	// Targets for symbols not currently held become buys from zero. With no
	// position there is no market price, so the share count stays zero and
	// the dollar amount carries the intent.
	for _, t := range targets {
		if _, held := posBySymbol[t.Symbol]; held || t.TargetPercent.IsZero() {
			continue
		}
		amount := t.TargetPercent.Mul(total).Div(hundred)
		trades = append(trades, Trade{
			Symbol:       t.Symbol,
			Side:         domain.TradeSideBuy,
			Amount:       amount,
			DriftPercent: t.TargetPercent,
			Commission:   commission(amount, opts),
		})
	}

	sort.SliceStable(trades, func(i, j int) bool {
		// All sells precede all buys; the sells fund the buys.
		if trades[i].Side != trades[j].Side {
			return trades[i].Side == domain.TradeSideSell
		}
		return trades[i].DriftPercent.Abs().GreaterThan(trades[j].DriftPercent.Abs())
	})

	for _, tr := range trades {
		plan.TotalCommission = plan.TotalCommission.Add(tr.Commission)
		if tr.Side == domain.TradeSideSell {
			plan.TotalSellAmount = plan.TotalSellAmount.Add(tr.Amount)
		} else {
			plan.TotalBuyAmount = plan.TotalBuyAmount.Add(tr.Amount)
		}
	}
	plan.Trades = trades

	s.log.Debug().
		Int("trades", len(trades)).
		Str("total_value", total.String()).
		Msg("Generated rebalancing plan")

	return plan, nil
}

// buildTrade converts one symbol's drift into a trade sized in shares.
func (s *Service) buildTrade(p domain.Position, drift, total decimal.Decimal, opts Options) Trade {
	amount := drift.Mul(total).Div(hundred) // signed: negative means sell

	side := domain.TradeSideBuy
	if amount.IsNegative() {
		side = domain.TradeSideSell
	}
	absAmount := amount.Abs()

	priceBase := p.MarketPrice.Mul(p.FXRateToBase)
	var quantity decimal.Decimal
	if priceBase.IsPositive() {
		quantity = absAmount.Div(priceBase)
		// Cash instruments trade in fractional amounts; everything else in
		// whole shares, truncated toward zero.
		if p.AssetClass != domain.AssetClassCash {
			quantity = quantity.Truncate(0)
		}
	}

	tr := Trade{
		Symbol:       p.Symbol,
		Side:         side,
		Quantity:     quantity,
		Amount:       absAmount,
		Price:        priceBase,
		DriftPercent: drift,
		Commission:   commission(absAmount, opts),
	}

	if opts.SimulateTaxImpact && side == domain.TradeSideSell {
		s.simulateTax(&tr, p, opts.TaxRate)
	}

	return tr
}

// simulateTax projects the realized P&L of a proposed sell as the sold
// fraction of the position's unrealized P&L, and the tax due at the given
// rate. A projected loss yields negative tax, a saving.
func (s *Service) simulateTax(tr *Trade, p domain.Position, taxRate decimal.Decimal) {
	if p.MarketValueBase.IsZero() {
		return
	}
	fraction := tr.Amount.Div(p.MarketValueBase.Abs())
	if fraction.GreaterThan(decimal.NewFromInt(1)) {
		fraction = decimal.NewFromInt(1)
	}
	pnl := p.UnrealizedPnLBase.Mul(fraction)
	tax := pnl.Mul(taxRate)
	tr.ProjectedRealizedPnL = &pnl
	tr.EstimatedTax = &tax
}

func commission(amount decimal.Decimal, opts Options) decimal.Decimal {
	if amount.IsZero() {
		return decimal.Zero
	}
	return opts.CommissionFixed.Add(amount.Abs().Mul(opts.CommissionPct))
}
