package calculations

import (
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
)

// MaxProfitFactor is the documented large-but-finite sentinel returned when
// a period has gross profits and zero gross losses. Finite on purpose:
// callers serialize results to JSON, where infinity has no representation.
var MaxProfitFactor = decimal.NewFromInt(9999)

// ROI returns the simple return on investment in percent:
// (final - initial) / initial * 100. Zero initial value returns zero.
func ROI(initial, final decimal.Decimal) decimal.Decimal {
	if initial.IsZero() {
		return decimal.Zero
	}
	return final.Sub(initial).Div(initial).Mul(hundred)
}

// CAGR returns the compound annual growth rate:
// (final/initial)^(1/years) - 1. Zero initial, final, or years returns zero.
func CAGR(initial, final, years decimal.Decimal) decimal.Decimal {
	if initial.IsZero() || years.IsZero() || !initial.IsPositive() || !final.IsPositive() {
		return decimal.Zero
	}
	return pow(final.Div(initial), 1/years.InexactFloat64()).Sub(one)
}

// Sharpe returns the Sharpe ratio of a series of period returns:
// (mean - riskFreeRate) / sample standard deviation.
//
// Requires at least two observations; fewer, or a zero standard deviation,
// returns the zero sentinel (a single-trade portfolio is an ordinary state,
// not an error).
func Sharpe(returns []decimal.Decimal, riskFreeRate decimal.Decimal) decimal.Decimal {
	if len(returns) < 2 {
		return decimal.Zero
	}

	xs := make([]float64, len(returns))
	for i, r := range returns {
		xs[i] = r.InexactFloat64()
	}

	mean := stat.Mean(xs, nil)
	stddev := stat.StdDev(xs, nil)
	if stddev == 0 {
		return decimal.Zero
	}

	return decimal.NewFromFloat((mean - riskFreeRate.InexactFloat64()) / stddev)
}

// WinRate returns the percentage of winning trades among trades with
// nonzero P&L. Zero-P&L trades are excluded from both numerator and
// denominator. No decided trades returns zero.
func WinRate(pnls []decimal.Decimal) decimal.Decimal {
	winners := 0
	decided := 0
	for _, pnl := range pnls {
		if pnl.IsZero() {
			continue
		}
		decided++
		if pnl.IsPositive() {
			winners++
		}
	}
	if decided == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(winners)).Div(decimal.NewFromInt(int64(decided))).Mul(hundred)
}

// ProfitFactor returns gross profit divided by gross loss. No trades or no
// profits returns zero; profits with zero losses returns MaxProfitFactor.
func ProfitFactor(pnls []decimal.Decimal) decimal.Decimal {
	grossProfit := decimal.Zero
	grossLoss := decimal.Zero
	for _, pnl := range pnls {
		if pnl.IsPositive() {
			grossProfit = grossProfit.Add(pnl)
		} else {
			grossLoss = grossLoss.Add(pnl.Abs())
		}
	}
	if grossProfit.IsZero() {
		return decimal.Zero
	}
	if grossLoss.IsZero() {
		return MaxProfitFactor
	}
	return grossProfit.Div(grossLoss)
}

// Drawdown describes the worst peak-to-trough decline of a value series.
// PeakIndex and TroughIndex let callers reconstruct the drawdown window;
// both are -1 for an empty series.
type Drawdown struct {
	Percent     decimal.Decimal `json:"percent"`
	PeakIndex   int             `json:"peak_index"`
	TroughIndex int             `json:"trough_index"`
}

// MaxDrawdown returns the maximum drawdown of an ordered value series using
// running-peak tracking. The percentage is positive (5 means a 5% decline).
func MaxDrawdown(values []decimal.Decimal) Drawdown {
	if len(values) == 0 {
		return Drawdown{Percent: decimal.Zero, PeakIndex: -1, TroughIndex: -1}
	}

	worst := Drawdown{Percent: decimal.Zero, PeakIndex: 0, TroughIndex: 0}
	peak := values[0]
	peakIdx := 0

	for i, v := range values {
		if v.GreaterThan(peak) {
			peak = v
			peakIdx = i
			continue
		}
		if !peak.IsPositive() {
			continue
		}
		dd := peak.Sub(v).Div(peak).Mul(hundred)
		if dd.GreaterThan(worst.Percent) {
			worst = Drawdown{Percent: dd, PeakIndex: peakIdx, TroughIndex: i}
		}
	}

	return worst
}
