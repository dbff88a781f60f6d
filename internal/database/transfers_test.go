package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niteshatinception/for-monday/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transfers.db")
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	db, err := NewDB(path, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordAndListTransfers(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := &models.TransferRecord{
		TransferID: "tr-1",
		ItemID:     42,
		BoardID:    7,
		AssetID:    777,
		FileName:   "a.pdf",
		Scenario:   "column_to_column",
		Outcome:    models.OutcomeCompleted,
		Attempts:   1,
		DurationMS: 1200,
		CreatedAt:  time.Now().Add(-time.Minute),
	}
	require.NoError(t, db.RecordTransfer(ctx, first))
	assert.NotZero(t, first.ID)

	second := &models.TransferRecord{
		TransferID: "tr-2",
		ItemID:     42,
		AssetID:    778,
		FileName:   "b.png",
		Scenario:   "column_to_column",
		Outcome:    models.OutcomeDropped,
		Detail:     "auth: invalid token",
		Attempts:   1,
	}
	require.NoError(t, db.RecordTransfer(ctx, second))

	records, err := db.ListTransfers(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "tr-2", records[0].TransferID, "newest first")
	assert.Equal(t, "auth: invalid token", records[0].Detail)
	assert.Equal(t, "tr-1", records[1].TransferID)
}

func TestListTransfersLimit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, db.RecordTransfer(ctx, &models.TransferRecord{
			TransferID: "tr",
			ItemID:     int64(i),
			Scenario:   "item_to_item",
			Outcome:    models.OutcomeCompleted,
		}))
	}

	records, err := db.ListTransfers(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestCountByOutcome(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	outcomes := []string{
		models.OutcomeCompleted, models.OutcomeCompleted,
		models.OutcomeDropped, models.OutcomeNotified,
	}
	for _, outcome := range outcomes {
		require.NoError(t, db.RecordTransfer(ctx, &models.TransferRecord{
			TransferID: "tr", ItemID: 1, Scenario: "board_to_board", Outcome: outcome,
		}))
	}

	counts, err := db.CountByOutcome(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, counts[models.OutcomeCompleted])
	assert.EqualValues(t, 1, counts[models.OutcomeDropped])
	assert.EqualValues(t, 1, counts[models.OutcomeNotified])
}
