package history

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folioanalytics/folio/internal/database"
	"github.com/folioanalytics/folio/internal/domain"
)

func setupRepo(t *testing.T) *Repository {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "portfolio.db"),
		Profile: database.ProfileStandard,
		Name:    "portfolio",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	return NewRepository(db.Conn(), zerolog.Nop())
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testAccount() domain.Account {
	coupon := decimal.Zero
	maturity := time.Date(2040, 5, 15, 0, 0, 0, 0, time.UTC)
	return domain.Account{
		ID:          "U1234567",
		PeriodStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
		Positions: []domain.Position{
			{
				Symbol: "CSPX", AssetClass: domain.AssetClassFund,
				Quantity: d("50"), AvgCost: d("480.10"), CostBasis: d("24005"),
				MarketPrice: d("512.30"), MarketValue: d("25615"),
				UnrealizedPnL: d("1610"), Currency: "USD", FXRateToBase: d("0.92"),
				CostBasisBase: d("22084.6"), MarketValueBase: d("23565.8"),
				UnrealizedPnLBase: d("1481.2"),
			},
			{
				Symbol: "STRIPS-2040", AssetClass: domain.AssetClassBond,
				Quantity: d("10000"), AvgCost: d("52.10"), CostBasis: d("5210"),
				MarketPrice: d("54.40"), MarketValue: d("5440"),
				UnrealizedPnL: d("230"), Currency: "USD", FXRateToBase: d("0.92"),
				CostBasisBase: d("4793.2"), MarketValueBase: d("5004.8"),
				UnrealizedPnLBase: d("211.6"),
				CouponRate: &coupon, MaturityDate: &maturity,
			},
		},
		CashBalances: []domain.CashBalance{
			{Currency: "BASE_SUMMARY", IsBaseSummary: true, EndingCash: d("6200"), FXRateToBase: d("1")},
		},
	}
}

func TestSaveSnapshotRoundTrip(t *testing.T) {
	repo := setupRepo(t)
	acct := testAccount()
	date := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SaveSnapshot(acct, date, "flex-report-42"))

	snap, err := repo.GetPortfolioSnapshot("U1234567", date)
	require.NoError(t, err)

	assert.Equal(t, "flex-report-42", snap.SourceRef)
	assert.Equal(t, "2024-01-01", snap.PeriodStart)
	assert.Equal(t, "2024-06-30", snap.PeriodEnd)
	assert.Equal(t, 2, snap.PositionCount)
	assert.True(t, snap.TotalValue.Equal(d("28570.6")), "got %s", snap.TotalValue)
	assert.True(t, snap.TotalCash.Equal(d("6200")))

	require.Len(t, snap.Positions, 2)
	cspx := snap.Positions[0]
	assert.Equal(t, "CSPX", cspx.Symbol)
	// Exact decimal equality after the TEXT round trip.
	assert.True(t, cspx.MarketValueBase.Equal(d("23565.8")))
	assert.True(t, cspx.FXRateToBase.Equal(d("0.92")))
	assert.Nil(t, cspx.CouponRate)

	bond := snap.Positions[1]
	require.NotNil(t, bond.CouponRate)
	assert.True(t, bond.CouponRate.IsZero())
	require.NotNil(t, bond.MaturityDate)
	assert.Equal(t, "2040-05-15", bond.MaturityDate.Format("2006-01-02"))
}

func TestSaveSnapshotIsIdempotent(t *testing.T) {
	repo := setupRepo(t)
	acct := testAccount()
	date := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SaveSnapshot(acct, date, "first"))

	// Re-import with a changed value replaces rather than duplicates.
	acct.Positions[0].MarketValueBase = d("24000")
	require.NoError(t, repo.SaveSnapshot(acct, date, "second"))

	snap, err := repo.GetPortfolioSnapshot("U1234567", date)
	require.NoError(t, err)
	assert.Equal(t, "second", snap.SourceRef)
	require.Len(t, snap.Positions, 2, "exactly one row per symbol")
	assert.True(t, snap.Positions[0].MarketValueBase.Equal(d("24000")))
}

func TestGetPortfolioSnapshotMissing(t *testing.T) {
	repo := setupRepo(t)

	_, err := repo.GetPortfolioSnapshot("U1234567", time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestGetPositionHistory(t *testing.T) {
	repo := setupRepo(t)
	acct := testAccount()

	dates := []time.Time{
		time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 29, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
	}
	for i, date := range dates {
		acct.Positions[0].MarketValueBase = d("23000").Add(decimal.NewFromInt(int64(i) * 100))
		require.NoError(t, repo.SaveSnapshot(acct, date, "doc"))
	}

	records, err := repo.GetPositionHistory("CSPX", "U1234567", dates[0], dates[2])
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "2024-06-28", records[0].SnapshotDate)
	assert.True(t, records[2].MarketValueBase.Equal(d("23200")))

	// Window excludes days outside [from, to].
	records, err = repo.GetPositionHistory("CSPX", "U1234567", dates[1], dates[1])
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestCompareSnapshots(t *testing.T) {
	repo := setupRepo(t)
	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)

	earlier := testAccount()
	require.NoError(t, repo.SaveSnapshot(earlier, from, "doc1"))

	later := testAccount()
	// CSPX quantity changes, STRIPS removed, INDA added, VWO value moves
	// with quantity unchanged.
	later.Positions[0].Quantity = d("60")
	later.Positions[0].MarketValueBase = d("28000")
	later.Positions = later.Positions[:1]
	later.Positions = append(later.Positions, domain.Position{
		Symbol: "INDA", AssetClass: domain.AssetClassFund,
		Quantity: d("100"), MarketValueBase: d("4800"),
		FXRateToBase: d("1"),
	})
	require.NoError(t, repo.SaveSnapshot(later, to, "doc2"))

	cmp, err := repo.CompareSnapshots("U1234567", from, to)
	require.NoError(t, err)

	require.Len(t, cmp.Added, 1)
	assert.Equal(t, "INDA", cmp.Added[0].Symbol)
	require.Len(t, cmp.Removed, 1)
	assert.Equal(t, "STRIPS-2040", cmp.Removed[0].Symbol)
	require.Len(t, cmp.Changed, 1)
	assert.Equal(t, "CSPX", cmp.Changed[0].Symbol)
	assert.True(t, cmp.Changed[0].QuantityDelta.Equal(d("10")))
	assert.True(t, cmp.Changed[0].ValueDelta.Equal(d("4434.2")))
}

func TestCompareSnapshotsExcludesUnchangedQuantity(t *testing.T) {
	repo := setupRepo(t)
	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)

	acct := testAccount()
	require.NoError(t, repo.SaveSnapshot(acct, from, "doc1"))

	// Value moves, quantity does not: excluded from "changed".
	acct.Positions[0].MarketValueBase = d("30000")
	require.NoError(t, repo.SaveSnapshot(acct, to, "doc2"))

	cmp, err := repo.CompareSnapshots("U1234567", from, to)
	require.NoError(t, err)
	assert.Empty(t, cmp.Added)
	assert.Empty(t, cmp.Removed)
	assert.Empty(t, cmp.Changed)
}

func TestGetPositionStatistics(t *testing.T) {
	repo := setupRepo(t)
	acct := testAccount()

	values := []string{"23565.8", "22100", "24900"}
	for i, v := range values {
		acct.Positions[0].MarketValueBase = d(v)
		date := time.Date(2024, 6, 28+i, 0, 0, 0, 0, time.UTC)
		require.NoError(t, repo.SaveSnapshot(acct, date, "doc"))
	}

	stats, err := repo.GetPositionStatistics("CSPX", "U1234567")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.SnapshotCount)
	assert.Equal(t, "2024-06-28", stats.FirstDate)
	assert.Equal(t, "2024-06-30", stats.LastDate)
	assert.True(t, stats.MinValue.Equal(d("22100")))
	assert.True(t, stats.MaxValue.Equal(d("24900")))
	assert.True(t, stats.LatestValue.Equal(d("24900")))

	_, err = repo.GetPositionStatistics("NOPE", "U1234567")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
