package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/folioanalytics/folio/internal/database"
)

// MaintenanceJob performs daily database maintenance: integrity
// checks, WAL checkpoints and size reporting.
type MaintenanceJob struct {
	databases []*database.DB
	log       zerolog.Logger
}

// NewMaintenanceJob creates a new maintenance job
func NewMaintenanceJob(databases []*database.DB, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		databases: databases,
		log:       log.With().Str("job", "db_maintenance").Logger(),
	}
}

// Name returns the job name for the scheduler
func (j *MaintenanceJob) Name() string {
	return "db_maintenance"
}

// Run executes the maintenance job
func (j *MaintenanceJob) Run() error {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	for _, db := range j.databases {
		if err := db.QuickCheck(ctx); err != nil {
			return fmt.Errorf("integrity check failed for %s: %w", db.Name(), err)
		}

		// Checkpoint the WAL so it does not grow unbounded. Not
		// critical, so failures only warn.
		if _, err := db.Conn().Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			j.log.Warn().
				Str("database", db.Name()).
				Err(err).
				Msg("WAL checkpoint failed")
		}

		stats, err := db.GetStats()
		if err != nil {
			j.log.Warn().Str("database", db.Name()).Err(err).Msg("Failed to read stats")
			continue
		}

		j.log.Info().
			Str("database", db.Name()).
			Int64("size_bytes", stats.SizeBytes).
			Int64("wal_size_bytes", stats.WALSizeBytes).
			Int64("freelist_pages", stats.FreelistCount).
			Msg("Database maintenance completed")
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Msg("Maintenance run completed")

	return nil
}

// BackupJob runs scheduled backups through the backup service
type BackupJob struct {
	backup  *BackupService
	timeout time.Duration
}

// NewBackupJob creates a new backup job
func NewBackupJob(backup *BackupService) *BackupJob {
	return &BackupJob{backup: backup, timeout: 15 * time.Minute}
}

// Name returns the job name for the scheduler
func (j *BackupJob) Name() string {
	return "db_backup"
}

// Run creates and uploads a backup archive
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	return j.backup.CreateAndUploadBackup(ctx)
}
