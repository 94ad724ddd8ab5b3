package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folioanalytics/folio/internal/database"
	"github.com/folioanalytics/folio/internal/domain"
	"github.com/folioanalytics/folio/internal/modules/flexreport"
	"github.com/folioanalytics/folio/internal/modules/history"
	"github.com/folioanalytics/folio/internal/modules/imports"
)

const sampleStatement = `<FlexQueryResponse queryName="Daily" type="AF">
  <FlexStatements count="1">
    <FlexStatement accountId="U1234567" fromDate="20240401" toDate="20240430">
      <AccountInformation accountId="U1234567" currency="USD" name="Test Account" />
      <CashReport>
        <CashReportCurrency accountId="U1234567" currency="BASE_SUMMARY" endingCash="6200" endingSettledCash="6200" />
        <CashReportCurrency accountId="U1234567" currency="USD" endingCash="6200" endingSettledCash="6200" fxRateToBase="1" />
      </CashReport>
      <OpenPositions>
        <OpenPosition accountId="U1234567" currency="USD" fxRateToBase="1" assetCategory="STK"
          symbol="CSPX" description="ISHARES CORE S&amp;P 500" position="42" markPrice="561.09"
          positionValue="23565.78" costBasisPrice="455.20" costBasisMoney="19118.40"
          fifoPnlUnrealized="4447.38" reportDate="20240430" />
      </OpenPositions>
      <Trades>
        <Trade accountId="U1234567" currency="USD" fxRateToBase="1" assetCategory="STK"
          symbol="CSPX" tradeDate="20240415" quantity="10" tradePrice="550.00"
          tradeMoney="5500" ibCommission="-1.50" fifoPnlRealized="0"
          buySell="BUY" orderTime="20240415;143000" />
      </Trades>
    </FlexStatement>
  </FlexStatements>
</FlexQueryResponse>`

type stubProvider struct {
	doc []byte
	err error
}

func (p *stubProvider) FetchLatest(ctx context.Context) ([]byte, error) {
	return p.doc, p.err
}

func setupJob(t *testing.T, provider DocumentProvider) (*SnapshotJob, *history.Repository, *imports.Repository) {
	t.Helper()

	log := zerolog.Nop()

	portfolioDB, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "portfolio.db"),
		Profile: database.ProfileStandard,
		Name:    "portfolio",
	})
	require.NoError(t, err)
	t.Cleanup(func() { portfolioDB.Close() })
	require.NoError(t, portfolioDB.Migrate())

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	t.Cleanup(func() { cacheDB.Close() })
	require.NoError(t, cacheDB.Migrate())

	flexSvc := flexreport.NewService("USD", log)
	historyRepo := history.NewRepository(portfolioDB.Conn(), log)
	importsRepo := imports.NewRepository(cacheDB.Conn(), log)

	return NewSnapshotJob(provider, flexSvc, historyRepo, importsRepo, log), historyRepo, importsRepo
}

func TestSnapshotJobRun(t *testing.T) {
	job, historyRepo, importsRepo := setupJob(t, &stubProvider{doc: []byte(sampleStatement)})

	require.NoError(t, job.Run())

	now := time.Now()
	snapshot, err := historyRepo.GetPortfolioSnapshot("U1234567", now)
	require.NoError(t, err)
	assert.Equal(t, "U1234567", snapshot.AccountID)
	assert.Len(t, snapshot.Positions, 1)
	assert.Equal(t, "CSPX", snapshot.Positions[0].Symbol)

	jobs, err := importsRepo.Recent(10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "scheduled:"+now.Format("2006-01-02"), jobs[0].SourceRef)
	assert.True(t, jobs[0].Saved)
}

func TestSnapshotJobSkipsUnknownAccounts(t *testing.T) {
	// Two statements without account ids normalize to UNKNOWN accounts
	// under distinct map keys. Neither may be snapshotted.
	const unidentifiable = `<FlexQueryResponse queryName="Daily" type="AF">
  <FlexStatements count="2">
    <FlexStatement fromDate="20240401" toDate="20240430">
      <OpenPositions>
        <OpenPosition currency="USD" fxRateToBase="1" assetCategory="STK"
          symbol="AAA" position="1" markPrice="30" positionValue="30" />
      </OpenPositions>
    </FlexStatement>
    <FlexStatement fromDate="20240401" toDate="20240430">
      <OpenPositions>
        <OpenPosition currency="USD" fxRateToBase="1" assetCategory="STK"
          symbol="BBB" position="2" markPrice="20" positionValue="40" />
      </OpenPositions>
    </FlexStatement>
  </FlexStatements>
</FlexQueryResponse>`

	job, historyRepo, importsRepo := setupJob(t, &stubProvider{doc: []byte(unidentifiable)})

	require.NoError(t, job.Run())

	_, err := historyRepo.GetPortfolioSnapshot(domain.UnknownAccountID, time.Now())
	assert.ErrorIs(t, err, sql.ErrNoRows)

	// The import is still recorded for audit, covering both sections.
	jobs, err := importsRepo.Recent(10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, 2, jobs[0].PositionCount)
	assert.ElementsMatch(t, []string{"UNKNOWN", "UNKNOWN#2"}, jobs[0].AccountIDs)
}

func TestSnapshotJobFetchError(t *testing.T) {
	fetchErr := errors.New("gateway timeout")
	job, _, importsRepo := setupJob(t, &stubProvider{err: fetchErr})

	err := job.Run()
	require.Error(t, err)
	assert.ErrorIs(t, err, fetchErr)

	jobs, err := importsRepo.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestSnapshotJobBadDocument(t *testing.T) {
	job, _, _ := setupJob(t, &stubProvider{doc: []byte("not xml")})

	require.Error(t, job.Run())
}

func TestSnapshotJobName(t *testing.T) {
	job, _, _ := setupJob(t, &stubProvider{})
	assert.Equal(t, "daily_snapshot", job.Name())
}
