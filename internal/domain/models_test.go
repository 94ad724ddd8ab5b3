package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestAssetClassFromCode(t *testing.T) {
	tests := []struct {
		code       string
		want       AssetClass
		recognized bool
	}{
		{"STK", AssetClassEquity, true},
		{"BOND", AssetClassBond, true},
		{"BILL", AssetClassBond, true},
		{"OPT", AssetClassOption, true},
		{"ETF", AssetClassFund, true},
		{"CASH", AssetClassCash, true},
		{"CMDTY", AssetClassOther, false},
		{"", AssetClassOther, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got, recognized := AssetClassFromCode(tt.code)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.recognized, recognized)
		})
	}
}

func TestAccount_EndingCashBase_PrefersBaseSummary(t *testing.T) {
	acct := Account{
		ID: "U1234567",
		CashBalances: []CashBalance{
			{Currency: "EUR", EndingCash: d("1000"), FXRateToBase: d("1.1")},
			{Currency: "BASE_SUMMARY", IsBaseSummary: true, EndingCash: d("1100")},
		},
	}

	// The summary record is already in base currency; per-currency records
	// must not be FX-multiplied on top of it.
	assert.True(t, acct.EndingCashBase().Equal(d("1100")))
}

func TestAccount_EndingCashBase_SumsPerCurrencyWithFX(t *testing.T) {
	acct := Account{
		ID: "U1234567",
		CashBalances: []CashBalance{
			{Currency: "EUR", EndingCash: d("1000"), FXRateToBase: d("1.1")},
			{Currency: "USD", EndingCash: d("500"), FXRateToBase: d("1")},
			{Currency: "GBP", EndingCash: d("100")}, // missing rate defaults to 1
		},
	}

	assert.True(t, acct.EndingCashBase().Equal(d("1700")), "got %s", acct.EndingCashBase())
}

func TestNewPortfolio_ExcludesUnknownAccounts(t *testing.T) {
	accounts := map[string]Account{
		"U1": {
			ID: "U1",
			Positions: []Position{
				{Symbol: "CSPX", AssetClass: AssetClassFund, MarketValueBase: d("30000")},
			},
			CashBalances: []CashBalance{
				{IsBaseSummary: true, EndingCash: d("10000")},
			},
		},
		UnknownAccountID: {
			ID: UnknownAccountID,
			Positions: []Position{
				{Symbol: "GHOST", AssetClass: AssetClassEquity, MarketValueBase: d("99999")},
			},
		},
	}

	p := NewPortfolio(accounts)

	assert.True(t, p.TotalValueBase.Equal(d("40000")), "got %s", p.TotalValueBase)
	assert.True(t, p.TotalCashBase.Equal(d("10000")))
	assert.Equal(t, []string{UnknownAccountID}, p.Excluded)
	// Unknown account stays available for inspection
	assert.Contains(t, p.Accounts, UnknownAccountID)
	assert.Len(t, p.AllPositions(), 1)
}

func TestNewPortfolio_ValueByAssetClass(t *testing.T) {
	accounts := map[string]Account{
		"U1": {
			ID: "U1",
			Positions: []Position{
				{Symbol: "CSPX", AssetClass: AssetClassFund, MarketValueBase: d("30000")},
				{Symbol: "INDA", AssetClass: AssetClassFund, MarketValueBase: d("20000")},
				{Symbol: "STRIPS-2040", AssetClass: AssetClassBond, MarketValueBase: d("40000")},
			},
		},
	}

	p := NewPortfolio(accounts)

	assert.True(t, p.ValueByAssetClass[AssetClassFund].Equal(d("50000")))
	assert.True(t, p.ValueByAssetClass[AssetClassBond].Equal(d("40000")))
}

func TestPosition_IsZeroCouponBond(t *testing.T) {
	maturity := mustDate("2040-05-15")
	coupon := d("4.5")
	zero := decimal.Zero

	tests := []struct {
		name string
		pos  Position
		want bool
	}{
		{"zero coupon with maturity", Position{AssetClass: AssetClassBond, MaturityDate: &maturity}, true},
		{"explicit zero coupon", Position{AssetClass: AssetClassBond, MaturityDate: &maturity, CouponRate: &zero}, true},
		{"coupon bearing", Position{AssetClass: AssetClassBond, MaturityDate: &maturity, CouponRate: &coupon}, false},
		{"no maturity", Position{AssetClass: AssetClassBond}, false},
		{"equity", Position{AssetClass: AssetClassEquity, MaturityDate: &maturity}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pos.IsZeroCouponBond())
		})
	}
}
