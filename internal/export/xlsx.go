// Package export renders the transfer history as an Excel workbook for the
// admin API.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/niteshatinception/for-monday/internal/models"
)

const sheetName = "Transfers"

// WriteTransfers writes an xlsx workbook with one row per history record.
func WriteTransfers(w io.Writer, records []models.TransferRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	headers := []string{
		"ID", "Transfer ID", "Item ID", "Board ID", "Asset ID", "File",
		"Scenario", "Outcome", "Detail", "Attempts", "Duration (ms)", "Recorded At",
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, header)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for i, rec := range records {
		row := i + 2
		values := []any{
			rec.ID, rec.TransferID, rec.ItemID, rec.BoardID, rec.AssetID, rec.FileName,
			rec.Scenario, rec.Outcome, rec.Detail, rec.Attempts, rec.DurationMS,
			rec.CreatedAt.Format("02.01.2006 15:04:05"),
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheetName, cell, value)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 8)
	_ = f.SetColWidth(sheetName, "B", "B", 38)
	_ = f.SetColWidth(sheetName, "C", "E", 14)
	_ = f.SetColWidth(sheetName, "F", "F", 30)
	_ = f.SetColWidth(sheetName, "G", "H", 18)
	_ = f.SetColWidth(sheetName, "I", "I", 40)
	_ = f.SetColWidth(sheetName, "J", "K", 14)
	_ = f.SetColWidth(sheetName, "L", "L", 22)

	_ = f.DeleteSheet("Sheet1")

	return f.Write(w)
}

// FileName returns a timestamped attachment name for the export download.
func FileName(now time.Time) string {
	return fmt.Sprintf("transfers_export_%s.xlsx", now.Format("2006-01-02_15-04-05"))
}
