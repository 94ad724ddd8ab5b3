package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folioanalytics/folio/internal/database"
)

func setupDatabases(t *testing.T) ([]*database.DB, string) {
	t.Helper()

	dataDir := t.TempDir()

	portfolioDB, err := database.New(database.Config{
		Path:    filepath.Join(dataDir, "portfolio.db"),
		Profile: database.ProfileStandard,
		Name:    "portfolio",
	})
	require.NoError(t, err)
	t.Cleanup(func() { portfolioDB.Close() })
	require.NoError(t, portfolioDB.Migrate())

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(dataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	t.Cleanup(func() { cacheDB.Close() })
	require.NoError(t, cacheDB.Migrate())

	return []*database.DB{portfolioDB, cacheDB}, dataDir
}

func TestCreateArchive(t *testing.T) {
	databases, dataDir := setupDatabases(t)
	svc := NewBackupService(databases, nil, dataDir, zerolog.Nop())

	archivePath, err := svc.CreateArchive()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(filepath.Base(archivePath), "folio-backup-"))
	assert.True(t, strings.HasSuffix(archivePath, ".tar.gz"))

	info, err := os.Stat(archivePath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	// Unpack and verify the manifest covers both databases
	entries, metadata := readArchive(t, archivePath)

	assert.Contains(t, entries, "portfolio.db")
	assert.Contains(t, entries, "cache.db")
	assert.Contains(t, entries, "backup-metadata.json")

	require.Len(t, metadata.Databases, 2)
	for _, db := range metadata.Databases {
		assert.True(t, strings.HasPrefix(db.Checksum, "sha256:"))
		assert.Greater(t, db.SizeBytes, int64(0))
	}
}

func TestCreateArchiveCleansStaging(t *testing.T) {
	databases, dataDir := setupDatabases(t)
	svc := NewBackupService(databases, nil, dataDir, zerolog.Nop())

	_, err := svc.CreateArchive()
	require.NoError(t, err)

	matches, err := filepath.Glob(filepath.Join(dataDir, "backup-staging-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestCreateAndUploadBackupWithoutStorage(t *testing.T) {
	databases, dataDir := setupDatabases(t)
	svc := NewBackupService(databases, nil, dataDir, zerolog.Nop())

	// No object storage configured: archive is kept locally
	require.NoError(t, svc.CreateAndUploadBackup(context.Background()))

	matches, err := filepath.Glob(filepath.Join(dataDir, "backups", "folio-backup-*.tar.gz"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestListBackupsWithoutStorage(t *testing.T) {
	databases, dataDir := setupDatabases(t)
	svc := NewBackupService(databases, nil, dataDir, zerolog.Nop())

	_, err := svc.ListBackups(context.Background())
	require.Error(t, err)
}

func TestMaintenanceJob(t *testing.T) {
	databases, _ := setupDatabases(t)
	job := NewMaintenanceJob(databases, zerolog.Nop())

	assert.Equal(t, "db_maintenance", job.Name())
	require.NoError(t, job.Run())
}

func readArchive(t *testing.T, archivePath string) ([]string, BackupMetadata) {
	t.Helper()

	file, err := os.Open(archivePath)
	require.NoError(t, err)
	defer file.Close()

	gzipReader, err := gzip.NewReader(file)
	require.NoError(t, err)
	defer gzipReader.Close()

	tarReader := tar.NewReader(gzipReader)

	var entries []string
	var metadata BackupMetadata

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		entries = append(entries, header.Name)

		if header.Name == "backup-metadata.json" {
			require.NoError(t, json.NewDecoder(tarReader).Decode(&metadata))
		}
	}

	return entries, metadata
}
