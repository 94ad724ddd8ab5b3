// Package flexreport normalizes the vendor's multi-account XML export into
// the typed ledger model. Format errors fail fast; per-record problems
// substitute a documented default and surface a diagnostic instead of
// aborting the document.
package flexreport

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/folioanalytics/folio/internal/domain"
	"github.com/folioanalytics/folio/internal/modules/calculations"
)

var (
	// ErrEmptyDocument is returned for an empty or whitespace-only document.
	ErrEmptyDocument = errors.New("document is empty")
	// ErrInvalidFormat is returned when the document does not start with
	// '<'. No other format is accepted; the caller must re-fetch the source.
	ErrInvalidFormat = errors.New("document does not start with '<', not an XML export")
	// ErrUnsafeDocument is returned when the document carries a DOCTYPE or
	// entity declaration. Entity expansion is rejected outright rather than
	// parsed (XXE / billion-laughs defense).
	ErrUnsafeDocument = errors.New("document contains entity declarations and was rejected")
	// ErrAccountNotFound is returned when a requested account id is not in
	// the document.
	ErrAccountNotFound = errors.New("account not found in document")
)

// dateLayout is the vendor's fixed 8-digit date format.
const dateLayout = "20060102"

// baseSummaryCurrency marks the vendor's base-currency aggregate cash row.
const baseSummaryCurrency = "BASE_SUMMARY"

// bondFaceValue is the quote convention for bond prices: per 100 of face.
// Derived bond analytics (YTM, duration) are computed against this face.
var bondFaceValue = decimal.NewFromInt(100)

// Service normalizes raw vendor documents into domain Accounts.
type Service struct {
	baseCurrency string
	now          func() time.Time // injectable for deterministic tests
	log          zerolog.Logger
}

// NewService creates a new normalizer service
func NewService(baseCurrency string, log zerolog.Logger) *Service {
	return &Service{
		baseCurrency: baseCurrency,
		now:          time.Now,
		log:          log.With().Str("service", "flexreport").Logger(),
	}
}

// Normalize parses the document and returns a single account: the one with
// the given id, or the first account found when accountID is empty.
func (s *Service) Normalize(doc []byte, accountID string) (domain.Account, []domain.Diagnostic, error) {
	resp, err := s.parse(doc)
	if err != nil {
		return domain.Account{}, nil, err
	}

	for _, st := range resp.Statements {
		acct, diags := s.normalizeStatement(st)
		if accountID == "" || acct.ID == accountID {
			return acct, diags, nil
		}
	}

	return domain.Account{}, nil, fmt.Errorf("%w: %q", ErrAccountNotFound, accountID)
}

// NormalizeAll parses the document and returns every account present,
// keyed by account id. Zero usable accounts yields an empty map, not an
// error: callers decide whether that is fatal.
func (s *Service) NormalizeAll(doc []byte) (map[string]domain.Account, []domain.Diagnostic, error) {
	resp, err := s.parse(doc)
	if err != nil {
		return nil, nil, err
	}

	accounts := make(map[string]domain.Account, len(resp.Statements))
	var diags []domain.Diagnostic

	for _, st := range resp.Statements {
		acct, stDiags := s.normalizeStatement(st)
		diags = append(diags, stDiags...)

		key := acct.ID
		// Multiple unidentifiable sections must not overwrite each other.
		for n := 2; ; n++ {
			if _, exists := accounts[key]; !exists {
				break
			}
			key = fmt.Sprintf("%s#%d", acct.ID, n)
		}
		accounts[key] = acct
	}

	s.log.Debug().
		Int("accounts", len(accounts)).
		Int("diagnostics", len(diags)).
		Msg("Document normalized")

	return accounts, diags, nil
}

// parse validates and decodes the raw document.
func (s *Service) parse(doc []byte) (*flexQueryResponse, error) {
	trimmed := bytes.TrimSpace(doc)
	if len(trimmed) == 0 {
		return nil, ErrEmptyDocument
	}
	if trimmed[0] != '<' {
		return nil, ErrInvalidFormat
	}

	// Reject documents with DTDs before handing them to the decoder: Go's
	// decoder never fetches external entities, but internal entity
	// definitions could still expand, and this format never legitimately
	// carries a DOCTYPE.
	upper := bytes.ToUpper(trimmed)
	if bytes.Contains(upper, []byte("<!DOCTYPE")) || bytes.Contains(upper, []byte("<!ENTITY")) {
		return nil, ErrUnsafeDocument
	}

	dec := xml.NewDecoder(bytes.NewReader(trimmed))
	// Empty entity table: undeclared entity references fail instead of
	// expanding.
	dec.Entity = map[string]string{}

	var resp flexQueryResponse
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to parse export document: %w", err)
	}

	return &resp, nil
}

// normalizeStatement converts one account section into a domain.Account.
func (s *Service) normalizeStatement(st flexStatement) (domain.Account, []domain.Diagnostic) {
	var diags []domain.Diagnostic

	// Account id: explicit account-info field first, then the id attribute
	// on the enclosing section, then UNKNOWN.
	id := ""
	if st.AccountInfo != nil {
		id = strings.TrimSpace(st.AccountInfo.AccountID)
	}
	if id == "" {
		id = strings.TrimSpace(st.AccountID)
	}
	if id == "" {
		id = domain.UnknownAccountID
		diags = append(diags, domain.Diagnostic{
			Severity: domain.SeverityWarning,
			Code:     domain.DiagUnknownAccount,
			Message:  "account section has no identifier; excluded from aggregation",
		})
	}

	acct := domain.Account{ID: id}
	acct.PeriodStart = s.parseDate(st.FromDate, "fromDate", "account "+id, false, &diags)
	acct.PeriodEnd = s.parseDate(st.ToDate, "toDate", "account "+id, false, &diags)

	acct.CashBalances = s.normalizeCash(st.CashReports, id, &diags)

	for _, p := range st.Positions {
		acct.Positions = append(acct.Positions, s.normalizePosition(p, &diags))
	}
	for _, tr := range st.Trades {
		acct.Trades = append(acct.Trades, s.normalizeTrade(tr, &diags))
	}

	return acct, diags
}

// normalizeCash prefers the base-currency summary record; only when none
// exists does it fall back to the per-currency records, each of which then
// needs its own FX multiply at aggregation time.
func (s *Service) normalizeCash(records []cashReportRecord, accountID string, diags *[]domain.Diagnostic) []domain.CashBalance {
	if len(records) == 0 {
		return nil
	}

	var balances []domain.CashBalance
	haveSummary := false

	for _, rec := range records {
		record := fmt.Sprintf("cash report %s/%s", accountID, rec.Currency)
		cb := domain.CashBalance{
			Currency:      rec.Currency,
			IsBaseSummary: rec.Currency == baseSummaryCurrency,
			StartingCash:  s.parseDecimal(rec.StartingCash, "startingCash", record, diags),
			EndingCash:    s.parseDecimal(rec.EndingCash, "endingCash", record, diags),
			Deposits:      s.parseDecimal(rec.Deposits, "deposits", record, diags),
			Withdrawals:   s.parseDecimal(rec.Withdrawals, "withdrawals", record, diags),
			Dividends:     s.parseDecimal(rec.Dividends, "dividends", record, diags),
			Interest:      s.parseDecimal(rec.BrokerInterest, "brokerInterest", record, diags),
			Commissions:   s.parseDecimal(rec.Commissions, "commissions", record, diags),
			Fees:          s.parseDecimal(rec.OtherFees, "otherFees", record, diags),
		}
		sales := s.parseDecimal(rec.NetTradesSales, "netTradesSales", record, diags)
		purchases := s.parseDecimal(rec.NetTradesPurchases, "netTradesPurchases", record, diags)
		cb.NetTradesProceeds = sales.Add(purchases)

		if cb.IsBaseSummary {
			// Already in base currency; rate must stay 1 so it is never
			// converted a second time.
			cb.FXRateToBase = decimal.NewFromInt(1)
			haveSummary = true
		} else {
			cb.FXRateToBase = s.parseFXRate(rec.FXRateToBase, record, diags)
		}

		balances = append(balances, cb)
	}

	if !haveSummary {
		*diags = append(*diags, domain.Diagnostic{
			Severity: domain.SeverityInfo,
			Code:     domain.DiagNoCashSummary,
			Message:  "no base-currency summary record; per-currency balances will be FX-summed",
			Record:   "account " + accountID,
		})
	}

	return balances
}

func (s *Service) normalizePosition(p openPosition, diags *[]domain.Diagnostic) domain.Position {
	record := "position " + p.Symbol

	assetClass, recognized := domain.AssetClassFromCode(p.AssetCategory)
	if !recognized && p.AssetCategory != "" {
		*diags = append(*diags, domain.Diagnostic{
			Severity: domain.SeverityInfo,
			Code:     domain.DiagUnknownAssetClass,
			Message:  fmt.Sprintf("unrecognized asset category %q mapped to %q", p.AssetCategory, domain.AssetClassOther),
			Field:    "assetCategory",
			Record:   record,
		})
	}

	pos := domain.Position{
		Symbol:        strings.TrimSpace(p.Symbol),
		AssetClass:    assetClass,
		Quantity:      s.parseDecimal(p.Position, "position", record, diags),
		AvgCost:       s.parseDecimal(p.CostBasisPrice, "costBasisPrice", record, diags),
		CostBasis:     s.parseDecimal(p.CostBasisMoney, "costBasisMoney", record, diags),
		MarketPrice:   s.parseDecimal(p.MarkPrice, "markPrice", record, diags),
		MarketValue:   s.parseDecimal(p.PositionValue, "positionValue", record, diags),
		UnrealizedPnL: s.parseDecimal(p.FifoPnlUnrealized, "fifoPnlUnrealized", record, diags),
		Currency:      p.Currency,
		FXRateToBase:  s.parseFXRate(p.FXRateToBase, record, diags),
	}

	// FX conversion happens here and only here.
	pos.CostBasisBase = pos.CostBasis.Mul(pos.FXRateToBase)
	pos.MarketValueBase = pos.MarketValue.Mul(pos.FXRateToBase)
	pos.UnrealizedPnLBase = pos.UnrealizedPnL.Mul(pos.FXRateToBase)

	if p.CouponRate != "" {
		coupon := s.parseDecimal(p.CouponRate, "couponRate", record, diags)
		pos.CouponRate = &coupon
	}
	if p.Maturity != "" {
		maturity := s.parseDate(p.Maturity, "maturity", record, true, diags)
		pos.MaturityDate = &maturity
	}

	s.deriveBondAnalytics(&pos)

	return pos
}

// deriveBondAnalytics fills YTM and duration for zero-coupon bonds. These
// fields are always derived, never sourced; only zero-coupon bonds are
// supported.
func (s *Service) deriveBondAnalytics(pos *domain.Position) {
	if !pos.IsZeroCouponBond() {
		return
	}

	years := calculations.YearsBetween(s.now().Unix(), pos.MaturityDate.Unix())
	if !years.IsPositive() {
		return
	}

	ytm := calculations.ZeroCouponYTM(bondFaceValue, pos.MarketPrice, years)
	duration := calculations.ZeroCouponDuration(years)
	pos.YTM = &ytm
	pos.Duration = &duration
}

func (s *Service) normalizeTrade(tr tradeRecord, diags *[]domain.Diagnostic) domain.Trade {
	record := "trade " + tr.TradeID
	if tr.TradeID == "" {
		record = "trade " + tr.Symbol
	}

	assetClass, recognized := domain.AssetClassFromCode(tr.AssetCategory)
	if !recognized && tr.AssetCategory != "" {
		*diags = append(*diags, domain.Diagnostic{
			Severity: domain.SeverityInfo,
			Code:     domain.DiagUnknownAssetClass,
			Message:  fmt.Sprintf("unrecognized asset category %q mapped to %q", tr.AssetCategory, domain.AssetClassOther),
			Field:    "assetCategory",
			Record:   record,
		})
	}

	side := domain.TradeSideBuy
	if strings.EqualFold(tr.BuySell, "SELL") || strings.EqualFold(tr.BuySell, "SL") {
		side = domain.TradeSideSell
	}

	trade := domain.Trade{
		ID:           tr.TradeID,
		Symbol:       strings.TrimSpace(tr.Symbol),
		AssetClass:   assetClass,
		Side:         side,
		Quantity:     s.parseDecimal(tr.Quantity, "quantity", record, diags),
		Price:        s.parseDecimal(tr.TradePrice, "tradePrice", record, diags),
		Value:        s.parseDecimal(tr.TradeMoney, "tradeMoney", record, diags),
		Commission:   s.parseDecimal(tr.IBCommission, "ibCommission", record, diags),
		RealizedPnL:  s.parseDecimal(tr.FifoPnlRealized, "fifoPnlRealized", record, diags),
		Currency:     tr.Currency,
		FXRateToBase: s.parseFXRate(tr.FXRateToBase, record, diags),
	}

	// FX conversion happens here and only here.
	trade.ValueBase = trade.Value.Mul(trade.FXRateToBase)
	trade.CommissionBase = trade.Commission.Mul(trade.FXRateToBase)
	trade.RealizedPnLBase = trade.RealizedPnL.Mul(trade.FXRateToBase)

	trade.TradeDate = s.parseDate(tr.TradeDate, "tradeDate", record, true, diags)
	trade.SettleDate = s.parseDate(tr.SettleDateTarget, "settleDateTarget", record, false, diags)
	trade.OrderTime = s.parseOrderTime(tr.OrderTime, record, diags)

	return trade
}

// parseDecimal parses a monetary/quantity attribute. Empty values are zero;
// invalid values are zero plus a diagnostic. Neither aborts the document.
func (s *Service) parseDecimal(raw, field, record string, diags *[]domain.Diagnostic) decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero
	}
	// The vendor formats thousands with commas in some report variants.
	raw = strings.ReplaceAll(raw, ",", "")
	v, err := decimal.NewFromString(raw)
	if err != nil {
		*diags = append(*diags, domain.Diagnostic{
			Severity: domain.SeverityWarning,
			Code:     domain.DiagInvalidNumber,
			Message:  fmt.Sprintf("invalid number %q substituted with 0", raw),
			Field:    field,
			Record:   record,
		})
		return decimal.Zero
	}
	return v
}

// parseFXRate parses an FX-rate-to-base attribute. Missing or invalid rates
// default to 1 with a diagnostic: treating the value as already in base
// currency is less wrong than dropping the record.
func (s *Service) parseFXRate(raw, record string, diags *[]domain.Diagnostic) decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if raw != "" {
		if v, err := decimal.NewFromString(raw); err == nil && v.IsPositive() {
			return v
		}
	}
	*diags = append(*diags, domain.Diagnostic{
		Severity: domain.SeverityWarning,
		Code:     domain.DiagMissingFXRate,
		Message:  fmt.Sprintf("missing or invalid FX rate %q defaulted to 1", raw),
		Field:    "fxRateToBase",
		Record:   record,
	})
	return decimal.NewFromInt(1)
}

// parseDate parses the vendor's fixed 8-digit date. An unparseable date
// must not abort the document: when required, today is substituted and a
// diagnostic raised; otherwise the zero time is returned silently for an
// empty value.
func (s *Service) parseDate(raw, field, record string, required bool, diags *[]domain.Diagnostic) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" && !required {
		return time.Time{}
	}

	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t
	}

	fallback := s.today()
	*diags = append(*diags, domain.Diagnostic{
		Severity: domain.SeverityWarning,
		Code:     domain.DiagUnparseableDate,
		Message:  fmt.Sprintf("unparseable date %q substituted with %s", raw, fallback.Format("2006-01-02")),
		Field:    field,
		Record:   record,
	})
	return fallback
}

// parseOrderTime parses the vendor's "yyyymmdd;HHmmss" order timestamp.
// Absent or malformed timestamps are left zero without a diagnostic; the
// field is informational only.
func (s *Service) parseOrderTime(raw, record string, diags *[]domain.Diagnostic) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse("20060102;150405", raw); err == nil {
		return t
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t
	}
	return time.Time{}
}

func (s *Service) today() time.Time {
	now := s.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
