package imports

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folioanalytics/folio/internal/database"
	"github.com/folioanalytics/folio/internal/domain"
)

func setupRepo(t *testing.T) *Repository {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	return NewRepository(db.Conn(), zerolog.Nop())
}

func TestRecordAndGet(t *testing.T) {
	repo := setupRepo(t)

	accounts := map[string]domain.Account{
		"U1": {ID: "U1",
			Positions: make([]domain.Position, 3),
			Trades:    make([]domain.Trade, 2)},
		"U2": {ID: "U2",
			Positions: make([]domain.Position, 1)},
	}
	diags := []domain.Diagnostic{
		{Severity: domain.SeverityWarning, Code: domain.DiagMissingFXRate, Message: "defaulted to 1"},
	}

	id, err := repo.Record("flex-report-42", accounts, diags, true)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	job, err := repo.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "flex-report-42", job.SourceRef)
	assert.ElementsMatch(t, []string{"U1", "U2"}, job.AccountIDs)
	assert.Equal(t, 4, job.PositionCount)
	assert.Equal(t, 2, job.TradeCount)
	assert.True(t, job.Saved)
	require.Len(t, job.Diagnostics, 1)
	assert.Contains(t, job.Diagnostics[0], "missing_fx_rate")
}

func TestGetMissing(t *testing.T) {
	repo := setupRepo(t)

	_, err := repo.Get("nope")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRecent(t *testing.T) {
	repo := setupRepo(t)

	for i := 0; i < 3; i++ {
		_, err := repo.Record("doc", nil, nil, false)
		require.NoError(t, err)
	}

	jobs, err := repo.Recent(2)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	jobs, err = repo.Recent(0) // default limit
	require.NoError(t, err)
	assert.Len(t, jobs, 3)
}

func TestPrune(t *testing.T) {
	repo := setupRepo(t)

	_, err := repo.Record("doc", nil, nil, false)
	require.NoError(t, err)

	// Everything is newer than the cutoff.
	n, err := repo.Prune(24 * time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Negative retention puts the cutoff in the future.
	n, err = repo.Prune(-time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
