package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/folioanalytics/folio/internal/modules/flexreport"
	"github.com/folioanalytics/folio/internal/modules/history"
	"github.com/folioanalytics/folio/internal/modules/imports"
)

// DocumentProvider fetches the latest statement document from an
// external source. Retries and backoff belong to the provider, not
// the job.
type DocumentProvider interface {
	FetchLatest(ctx context.Context) ([]byte, error)
}

// SnapshotJob fetches the latest statement, normalizes it and persists
// a position snapshot for every account in the document.
type SnapshotJob struct {
	provider   DocumentProvider
	flexreport *flexreport.Service
	history    *history.Repository
	imports    *imports.Repository
	timeout    time.Duration
	log        zerolog.Logger
}

// NewSnapshotJob creates the daily snapshot job
func NewSnapshotJob(
	provider DocumentProvider,
	flexreportSvc *flexreport.Service,
	historyRepo *history.Repository,
	importsRepo *imports.Repository,
	log zerolog.Logger,
) *SnapshotJob {
	return &SnapshotJob{
		provider:   provider,
		flexreport: flexreportSvc,
		history:    historyRepo,
		imports:    importsRepo,
		timeout:    5 * time.Minute,
		log:        log.With().Str("job", "daily_snapshot").Logger(),
	}
}

// Name returns the job name
func (j *SnapshotJob) Name() string {
	return "daily_snapshot"
}

// Run fetches, normalizes and saves today's snapshot
func (j *SnapshotJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	doc, err := j.provider.FetchLatest(ctx)
	if err != nil {
		return fmt.Errorf("fetching statement: %w", err)
	}

	accounts, diags, err := j.flexreport.NormalizeAll(doc)
	if err != nil {
		return fmt.Errorf("normalizing statement: %w", err)
	}

	now := time.Now()
	snapshotDate := now.Format("2006-01-02")

	var saved []string
	for id, account := range accounts {
		// Check the account, not the map key: duplicate unidentifiable
		// sections are re-keyed with a suffix but keep the UNKNOWN id.
		if account.IsUnknown() {
			j.log.Warn().
				Int("positions", len(account.Positions)).
				Msg("Skipping records with unknown account")
			continue
		}

		if err := j.history.SaveSnapshot(account, now, "scheduled:"+snapshotDate); err != nil {
			return fmt.Errorf("saving snapshot for %s: %w", id, err)
		}
		saved = append(saved, id)
	}

	if j.imports != nil {
		if _, err := j.imports.Record("scheduled:"+snapshotDate, accounts, diags, true); err != nil {
			j.log.Warn().Err(err).Msg("Failed to record import job")
		}
	}

	j.log.Info().
		Str("date", snapshotDate).
		Strs("accounts", saved).
		Int("diagnostics", len(diags)).
		Msg("Snapshot saved")

	return nil
}
