package analyzers

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/folioanalytics/folio/internal/domain"
	"github.com/folioanalytics/folio/internal/modules/calculations"
)

// PerformanceAnalyzer summarizes realized trading performance.
type PerformanceAnalyzer struct{}

func (PerformanceAnalyzer) Name() string { return "performance" }

func (PerformanceAnalyzer) Analyze(p domain.Portfolio) (Result, error) {
	res := Result{Analyzer: "performance", Metrics: map[string]decimal.Decimal{}}

	trades := p.AllTrades()
	var pnls []decimal.Decimal
	realized := decimal.Zero
	for _, t := range trades {
		if t.Side != domain.TradeSideSell {
			continue
		}
		pnls = append(pnls, t.RealizedPnLBase)
		realized = realized.Add(t.RealizedPnLBase)
	}

	res.Metrics["trade_count"] = decimal.NewFromInt(int64(len(trades)))
	res.Metrics["realized_pnl"] = realized
	res.Metrics["win_rate"] = calculations.WinRate(pnls)
	res.Metrics["profit_factor"] = calculations.ProfitFactor(pnls)

	unrealized := decimal.Zero
	capitalBase := decimal.Zero
	for _, pos := range p.AllPositions() {
		unrealized = unrealized.Add(pos.UnrealizedPnLBase)
		capitalBase = capitalBase.Add(pos.CostBasisBase.Abs())
	}
	res.Metrics["unrealized_pnl"] = unrealized
	res.Metrics["max_drawdown_pct"] = maxDrawdownPercent(capitalBase, trades)

	if len(pnls) == 0 {
		res.Notes = append(res.Notes, "no closed trades in the reporting period")
	}
	if res.Metrics["profit_factor"].Equal(calculations.MaxProfitFactor) {
		res.Notes = append(res.Notes, fmt.Sprintf("profit factor capped at %s: no losing trades", calculations.MaxProfitFactor))
	}

	return res, nil
}

// maxDrawdownPercent builds an equity curve from the capital base plus
// cumulative realized P&L of sell trades in date order and returns its
// maximum drawdown. Zero when there is no capital to draw down from.
func maxDrawdownPercent(capitalBase decimal.Decimal, trades []domain.Trade) decimal.Decimal {
	if !capitalBase.IsPositive() {
		return decimal.Zero
	}

	sells := make([]domain.Trade, 0, len(trades))
	for _, t := range trades {
		if t.Side == domain.TradeSideSell {
			sells = append(sells, t)
		}
	}
	sort.Slice(sells, func(i, j int) bool {
		return sells[i].TradeDate.Before(sells[j].TradeDate)
	})

	equity := make([]decimal.Decimal, 0, len(sells)+1)
	equity = append(equity, capitalBase)
	running := capitalBase
	for _, t := range sells {
		running = running.Add(t.RealizedPnLBase)
		equity = append(equity, running)
	}

	return calculations.MaxDrawdown(equity).Percent
}
