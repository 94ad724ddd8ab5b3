package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folioanalytics/folio/internal/config"
	"github.com/folioanalytics/folio/internal/database"
	"github.com/folioanalytics/folio/internal/modules/analyzers"
	"github.com/folioanalytics/folio/internal/modules/flexreport"
	"github.com/folioanalytics/folio/internal/modules/history"
	"github.com/folioanalytics/folio/internal/modules/imports"
	"github.com/folioanalytics/folio/internal/modules/rebalancing"
	"github.com/folioanalytics/folio/internal/modules/taxes"
)

const testDocument = `<FlexQueryResponse queryName="folio">
  <FlexStatements count="1">
    <FlexStatement accountId="U1234567" fromDate="20240101" toDate="20240630">
      <CashReport>
        <CashReportCurrency currency="BASE_SUMMARY" startingCash="5000" endingCash="6200"/>
      </CashReport>
      <OpenPositions>
        <OpenPosition symbol="CSPX" assetCategory="STK" position="50" costBasisMoney="24005" markPrice="512.30" positionValue="25615" fifoPnlUnrealized="1610" currency="EUR" fxRateToBase="1"/>
        <OpenPosition symbol="INDA" assetCategory="ETF" position="100" costBasisMoney="5200" markPrice="48" positionValue="4800" fifoPnlUnrealized="-400" currency="EUR" fxRateToBase="1"/>
      </OpenPositions>
      <Trades>
        <Trade tradeID="1002" tradeDate="20240410" symbol="INDA" assetCategory="ETF" buySell="SELL" quantity="-30" tradePrice="48.00" tradeMoney="-1440" ibCommission="-1.00" fifoPnlRealized="-210" currency="EUR" fxRateToBase="1"/>
        <Trade tradeID="1003" tradeDate="20240425" symbol="INDA" assetCategory="ETF" buySell="BUY" quantity="30" tradePrice="47.00" tradeMoney="1410" ibCommission="-1.00" fifoPnlRealized="0" currency="EUR" fxRateToBase="1"/>
      </Trades>
    </FlexStatement>
  </FlexStatements>
</FlexQueryResponse>`

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	portfolioDB, err := database.New(database.Config{
		Path: filepath.Join(dir, "portfolio.db"), Profile: database.ProfileStandard, Name: "portfolio",
	})
	require.NoError(t, err)
	t.Cleanup(func() { portfolioDB.Close() })
	require.NoError(t, portfolioDB.Migrate())

	cacheDB, err := database.New(database.Config{
		Path: filepath.Join(dir, "cache.db"), Profile: database.ProfileCache, Name: "cache",
	})
	require.NoError(t, err)
	t.Cleanup(func() { cacheDB.Close() })
	require.NoError(t, cacheDB.Migrate())

	log := zerolog.Nop()
	taxSvc := taxes.NewService(log)
	cfg := config.Config{
		DataDir:         dir,
		BaseCurrency:    "EUR",
		Port:            0,
		CommissionFixed: decimal.NewFromInt(2),
		CommissionPct:   decimal.RequireFromString("0.002"),
		DefaultTaxRate:  decimal.RequireFromString("0.26"),
	}

	runner := analyzers.NewRunner([]analyzers.Analyzer{
		analyzers.PerformanceAnalyzer{},
		analyzers.BondAnalyzer{},
		analyzers.RiskAnalyzer{},
		analyzers.CostAnalyzer{},
		analyzers.TaxAnalyzer{Taxes: taxSvc, TaxRate: cfg.DefaultTaxRate},
	}, log)

	return New(Config{
		Log:         log,
		Config:      cfg,
		PortfolioDB: portfolioDB,
		CacheDB:     cacheDB,
		Flexreport:  flexreport.NewService("EUR", log),
		Taxes:       taxSvc,
		Rebalancing: rebalancing.NewService(log),
		Analyzers:   runner,
		History:     history.NewRepository(portfolioDB.Conn(), log),
		Imports:     imports.NewRepository(cacheDB.Conn(), log),
	})
}

func postJSON(t *testing.T, srv *Server, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestImportEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := postJSON(t, srv, "/api/import?save=true", map[string]string{
		"document":   testDocument,
		"source_ref": "flex-report-42",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		JobID    string          `json:"job_id"`
		Saved    bool            `json:"saved"`
		Accounts map[string]json.RawMessage `json:"accounts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Saved)
	assert.NotEmpty(t, resp.JobID)
	assert.Contains(t, resp.Accounts, "U1234567")

	// The saved snapshot is immediately queryable.
	req := httptest.NewRequest(http.MethodGet, "/api/import/jobs/"+resp.JobID, nil)
	jobRec := httptest.NewRecorder()
	srv.Router().ServeHTTP(jobRec, req)
	assert.Equal(t, http.StatusOK, jobRec.Code)
}

func TestImportEndpointRejectsBadDocument(t *testing.T) {
	srv := newTestServer(t)

	rec := postJSON(t, srv, "/api/import", map[string]string{"document": "not xml"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestWashSalesEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := postJSON(t, srv, "/api/taxes/wash-sales", map[string]string{
		"document": testDocument,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report taxes.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	// INDA: loss sale on Apr 10, repurchase Apr 25.
	require.Len(t, report.Violations, 1)
	assert.Equal(t, "INDA", report.Violations[0].Symbol)
	assert.Equal(t, 15, report.Violations[0].DaysApart)
}

func TestWashSalesEndpointRejectsBadRate(t *testing.T) {
	srv := newTestServer(t)

	rec := postJSON(t, srv, "/api/taxes/wash-sales", map[string]interface{}{
		"document": testDocument,
		"tax_rate": "1.7",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "1.7")
}

func TestRebalancingPlanEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := postJSON(t, srv, "/api/rebalancing/plan", map[string]interface{}{
		"document": testDocument,
		"targets": []map[string]interface{}{
			{"symbol": "CSPX", "target_percent": "50"},
			{"symbol": "INDA", "target_percent": "50"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		AccountID string           `json:"account_id"`
		Plan      rebalancing.Plan `json:"plan"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "U1234567", resp.AccountID)
	require.NotEmpty(t, resp.Plan.Trades)
	// Overweight CSPX is sold first.
	assert.Equal(t, "CSPX", resp.Plan.Trades[0].Symbol)
}

func TestRebalancingPlanRejectsBadAllocation(t *testing.T) {
	srv := newTestServer(t)

	rec := postJSON(t, srv, "/api/rebalancing/plan", map[string]interface{}{
		"document": testDocument,
		"targets": []map[string]interface{}{
			{"symbol": "CSPX", "target_percent": "50"},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "50")
}

func TestAnalysisEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := postJSON(t, srv, "/api/analysis/run", map[string]string{
		"document": testDocument,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Results []analyzers.Result `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 5)

	names := map[string]bool{}
	for _, r := range resp.Results {
		names[r.Analyzer] = true
	}
	for _, want := range []string{"performance", "bond", "risk", "cost", "tax"} {
		assert.True(t, names[want], "missing analyzer %s", want)
	}
}
