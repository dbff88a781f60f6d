package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/niteshatinception/for-monday/internal/models"
)

func TestWriteTransfers(t *testing.T) {
	records := []models.TransferRecord{
		{
			ID: 1, TransferID: "tr-1", ItemID: 42, BoardID: 7, AssetID: 777,
			FileName: "report.pdf", Scenario: "column_to_column",
			Outcome: models.OutcomeCompleted, Attempts: 1, DurationMS: 850,
			CreatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			ID: 2, TransferID: "tr-2", ItemID: 43, AssetID: 778,
			FileName: "photo.png", Scenario: "item_to_item",
			Outcome: models.OutcomeDropped, Detail: "auth: invalid token", Attempts: 1,
			CreatedAt: time.Date(2026, 8, 1, 12, 5, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteTransfers(&buf, records))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus one row per record")

	assert.Equal(t, "Transfer ID", rows[0][1])
	assert.Equal(t, "tr-1", rows[1][1])
	assert.Equal(t, "report.pdf", rows[1][5])
	assert.Equal(t, models.OutcomeDropped, rows[2][7])
	assert.Equal(t, "auth: invalid token", rows[2][8])
}

func TestWriteTransfersEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTransfers(&buf, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestFileName(t *testing.T) {
	name := FileName(time.Date(2026, 8, 25, 9, 30, 0, 0, time.UTC))
	assert.Equal(t, "transfers_export_2026-08-25_09-30-00.xlsx", name)
}
