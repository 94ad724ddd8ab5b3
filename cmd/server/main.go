// Package main is the entry point for the Folio portfolio analytics server.
// It normalizes broker statement exports into a typed portfolio model,
// computes bond and performance analytics, detects wash sales, generates
// rebalancing plans and maintains a position history in SQLite.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/folioanalytics/folio/internal/config"
	"github.com/folioanalytics/folio/internal/database"
	"github.com/folioanalytics/folio/internal/modules/analyzers"
	"github.com/folioanalytics/folio/internal/modules/flexreport"
	"github.com/folioanalytics/folio/internal/modules/history"
	"github.com/folioanalytics/folio/internal/modules/imports"
	"github.com/folioanalytics/folio/internal/modules/rebalancing"
	"github.com/folioanalytics/folio/internal/modules/taxes"
	"github.com/folioanalytics/folio/internal/reliability"
	"github.com/folioanalytics/folio/internal/scheduler"
	"github.com/folioanalytics/folio/internal/server"
	"github.com/folioanalytics/folio/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting Folio")

	// Position history is audit-grade data: the ledger profile trades
	// write speed for durability. The cache holds import job history
	// and can be rebuilt at any time.
	portfolioDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "portfolio.db"),
		Profile: database.ProfileLedger,
		Name:    "portfolio",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open portfolio database")
	}
	defer portfolioDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	if err := portfolioDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate portfolio database")
	}
	if err := cacheDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate cache database")
	}

	// Services
	flexreportSvc := flexreport.NewService(cfg.BaseCurrency, log)
	taxSvc := taxes.NewService(log)
	rebalancingSvc := rebalancing.NewService(log)
	historyRepo := history.NewRepository(portfolioDB.Conn(), log)
	importsRepo := imports.NewRepository(cacheDB.Conn(), log)

	analyzerRunner := analyzers.NewRunner([]analyzers.Analyzer{
		analyzers.PerformanceAnalyzer{},
		analyzers.BondAnalyzer{},
		analyzers.RiskAnalyzer{},
		analyzers.CostAnalyzer{},
		analyzers.TaxAnalyzer{Taxes: taxSvc, TaxRate: cfg.DefaultTaxRate},
	}, log)

	srv := server.New(server.Config{
		Log:         log,
		Config:      *cfg,
		PortfolioDB: portfolioDB,
		CacheDB:     cacheDB,
		Flexreport:  flexreportSvc,
		Taxes:       taxSvc,
		Rebalancing: rebalancingSvc,
		Analyzers:   analyzerRunner,
		History:     historyRepo,
		Imports:     importsRepo,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Background jobs
	databases := []*database.DB{portfolioDB, cacheDB}

	var backupSvc *reliability.BackupService
	if cfg.Backup != nil {
		s3Client, err := reliability.NewS3Client(context.Background(), cfg.Backup, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create object storage client")
		}
		backupSvc = reliability.NewBackupService(databases, s3Client, cfg.DataDir, log)
	} else {
		backupSvc = reliability.NewBackupService(databases, nil, cfg.DataDir, log)
	}

	sched := scheduler.New(log)

	if err := sched.AddJob("0 3 * * *", reliability.NewMaintenanceJob(databases, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register maintenance job")
	}
	if err := sched.AddJob("0 4 * * *", reliability.NewBackupJob(backupSvc)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register backup job")
	}

	// The snapshot job needs a statement source. Without one, imports
	// arrive only through the HTTP API.
	if provider := newDocumentProvider(log); provider != nil {
		snapshotJob := scheduler.NewSnapshotJob(provider, flexreportSvc, historyRepo, importsRepo, log)
		if err := sched.AddJob(cfg.SnapshotSchedule, snapshotJob); err != nil {
			log.Fatal().Err(err).Msg("Failed to register snapshot job")
		}
	} else {
		log.Info().Msg("No statement source configured, scheduled snapshots disabled")
	}

	sched.Start()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

// newDocumentProvider builds a statement source from configuration.
// STATEMENT_DIR points at a directory where an external process drops
// statement files; the newest file is picked up by the snapshot job.
func newDocumentProvider(log zerolog.Logger) scheduler.DocumentProvider {
	dir := os.Getenv("STATEMENT_DIR")
	if dir == "" {
		return nil
	}
	return flexreport.NewDirectoryProvider(dir, log)
}
