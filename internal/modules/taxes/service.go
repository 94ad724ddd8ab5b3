// Package taxes detects wash-sale violations and ranks tax-loss-harvesting
// opportunities. Pure calculation: inputs in, report out, nothing mutated.
package taxes

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/folioanalytics/folio/internal/domain"
)

// substitutes maps a symbol to a correlated-but-not-identical instrument
// that preserves market exposure through the wash-sale window.
var substitutes = map[string]string{
	"CSPX": "VUAA", // S&P 500 UCITS
	"VUAA": "CSPX",
	"SPY":  "VOO",
	"VOO":  "SPY",
	"QQQ":  "VGT",
	"INDA": "EPI", // India large-cap
	"VWO":  "IEMG",
	"IEMG": "VWO",
	"AGG":  "BND",
	"BND":  "AGG",
}

// classSubstitutes is the fallback suggestion when no symbol-specific
// substitute is known.
var classSubstitutes = map[domain.AssetClass]string{
	domain.AssetClassEquity: "a broad-market index fund in the same region",
	domain.AssetClassFund:   "a different issuer's fund tracking a similar index",
	domain.AssetClassBond:   "a bond fund of similar duration and credit quality",
	domain.AssetClassOption: "an option on a correlated underlying",
}

// Service runs wash-sale detection and harvesting analysis
type Service struct {
	log zerolog.Logger
}

// NewService creates a new taxes service
func NewService(log zerolog.Logger) *Service {
	return &Service{
		log: log.With().Str("service", "taxes").Logger(),
	}
}

// Detect scans realized trades for wash-sale violations and current
// positions for harvesting candidates. taxRate is a fraction in [0,1];
// asOf anchors the trailing-window risk check for candidates.
func (s *Service) Detect(trades []domain.Trade, positions []domain.Position, taxRate decimal.Decimal, asOf time.Time) (Report, error) {
	if taxRate.IsNegative() || taxRate.GreaterThan(decimal.NewFromInt(1)) {
		return Report{}, fmt.Errorf("tax rate must be a fraction in [0,1], got %s", taxRate)
	}

	report := Report{
		TotalDisallowed:     decimal.Zero,
		TotalPotentialSaved: decimal.Zero,
	}
	if len(trades) == 0 && len(positions) == 0 {
		return report, nil
	}

	report.Violations = s.findViolations(trades)
	for _, v := range report.Violations {
		report.TotalDisallowed = report.TotalDisallowed.Add(v.DisallowedLoss)
	}

	report.HarvestCandidates = s.findCandidates(trades, positions, taxRate, asOf)
	for _, c := range report.HarvestCandidates {
		report.TotalPotentialSaved = report.TotalPotentialSaved.Add(c.EstimatedTaxSavings)
	}

	s.log.Debug().
		Int("violations", len(report.Violations)).
		Int("candidates", len(report.HarvestCandidates)).
		Msg("Wash-sale scan complete")

	return report, nil
}

// findViolations pairs every loss sale with same-symbol purchases strictly
// inside the 30-day window, in either direction. Same-day repurchase counts;
// exactly 30 days apart does not.
func (s *Service) findViolations(trades []domain.Trade) []Violation {
	buysBySymbol := make(map[string][]domain.Trade)
	for _, t := range trades {
		if t.Side == domain.TradeSideBuy {
			sym := normalizeSymbol(t.Symbol)
			buysBySymbol[sym] = append(buysBySymbol[sym], t)
		}
	}

	var violations []Violation
	for _, sell := range trades {
		if !sell.IsLoss() {
			continue
		}
		for _, buy := range buysBySymbol[normalizeSymbol(sell.Symbol)] {
			days := daysBetween(sell.TradeDate, buy.TradeDate)
			if days <= -WashSaleWindowDays || days >= WashSaleWindowDays {
				continue
			}
			loss := sell.RealizedPnLBase.Abs()
			violations = append(violations, Violation{
				Symbol:         sell.Symbol,
				SellTradeID:    sell.ID,
				SellDate:       sell.TradeDate,
				BuyTradeID:     buy.ID,
				BuyDate:        buy.TradeDate,
				DaysApart:      days,
				DisallowedLoss: loss,
				AddToBasis:     loss,
			})
		}
	}

	sort.SliceStable(violations, func(i, j int) bool {
		if !violations[i].SellDate.Equal(violations[j].SellDate) {
			return violations[i].SellDate.Before(violations[j].SellDate)
		}
		return violations[i].Symbol < violations[j].Symbol
	})

	return violations
}

// findCandidates ranks unrealized-loss positions by estimated tax savings,
// flagging any whose sale today would itself trip the wash-sale rule.
func (s *Service) findCandidates(trades []domain.Trade, positions []domain.Position, taxRate decimal.Decimal, asOf time.Time) []HarvestCandidate {
	var candidates []HarvestCandidate

	for _, pos := range positions {
		if !pos.UnrealizedPnLBase.IsNegative() {
			continue
		}

		c := HarvestCandidate{
			Symbol:              pos.Symbol,
			Quantity:            pos.Quantity,
			UnrealizedLoss:      pos.UnrealizedPnLBase,
			EstimatedTaxSavings: pos.UnrealizedPnLBase.Abs().Mul(taxRate),
			SuggestedSubstitute: suggestSubstitute(pos),
		}

		for _, t := range trades {
			if t.Side != domain.TradeSideBuy || normalizeSymbol(t.Symbol) != normalizeSymbol(pos.Symbol) {
				continue
			}
			days := daysBetween(t.TradeDate, asOf)
			if days >= 0 && days < WashSaleWindowDays {
				c.WashSaleRisk = true
				c.WashSaleRiskReason = fmt.Sprintf("purchased %d days ago on %s", days, t.TradeDate.Format("2006-01-02"))
				break
			}
		}

		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].EstimatedTaxSavings.GreaterThan(candidates[j].EstimatedTaxSavings)
	})

	return candidates
}

func suggestSubstitute(pos domain.Position) string {
	if sub, ok := substitutes[normalizeSymbol(pos.Symbol)]; ok {
		return sub
	}
	return classSubstitutes[pos.AssetClass]
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// daysBetween returns whole calendar days from a to b, signed, ignoring the
// time-of-day component.
func daysBetween(a, b time.Time) int {
	au := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bu := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bu.Sub(au).Hours() / 24)
}
