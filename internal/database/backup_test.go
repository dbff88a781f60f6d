package database

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niteshatinception/for-monday/internal/config"
	"github.com/niteshatinception/for-monday/internal/models"
)

func TestPerformBackupSnapshotsLiveDatabase(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "transfers.db")
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.RecordTransfer(context.Background(), &models.TransferRecord{
		TransferID: "tr-1", ItemID: 42, Scenario: "column_to_column", Outcome: models.OutcomeCompleted,
	}))

	storage := filepath.Join(dir, "backups")
	svc := NewBackupService(dbPath, config.BackupConfig{Enabled: true, StoragePath: storage}, &logger)

	// The source connection stays open: the snapshot must still be readable.
	require.NoError(t, svc.PerformBackup())

	backupPath := findBackup(t, storage)
	backup, err := sql.Open("sqlite3", backupPath)
	require.NoError(t, err)
	defer backup.Close()

	var count int
	require.NoError(t, backup.QueryRow("SELECT COUNT(*) FROM transfers").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestPerformBackupCreatesStorageDir(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "transfers.db")
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	storage := filepath.Join(dir, "nested", "backups")
	svc := NewBackupService(dbPath, config.BackupConfig{Enabled: true, StoragePath: storage}, &logger)
	require.NoError(t, svc.PerformBackup())
	findBackup(t, storage)
}

func findBackup(t *testing.T, storage string) string {
	t.Helper()
	entries, err := os.ReadDir(storage)
	require.NoError(t, err)
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "transfers_") && strings.HasSuffix(entry.Name(), ".db") {
			return filepath.Join(storage, entry.Name())
		}
	}
	t.Fatalf("no backup file found in %s", storage)
	return ""
}
