package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/niteshatinception/for-monday/internal/models"
)

// RecordTransfer appends one terminal task outcome to the history log.
func (d *DB) RecordTransfer(ctx context.Context, rec *models.TransferRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	result, err := d.db.ExecContext(ctx, `
        INSERT INTO transfers (transfer_id, item_id, board_id, asset_id, file_name, scenario, outcome, detail, attempts, duration_ms, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TransferID, rec.ItemID, rec.BoardID, rec.AssetID, rec.FileName,
		rec.Scenario, rec.Outcome, rec.Detail, rec.Attempts, rec.DurationMS, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transfer record: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		rec.ID = id
	}
	return nil
}

// ListTransfers returns the most recent records, newest first.
func (d *DB) ListTransfers(ctx context.Context, limit int) ([]models.TransferRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := d.db.QueryContext(ctx, `
        SELECT id, transfer_id, item_id, board_id, asset_id, file_name, scenario, outcome, detail, attempts, duration_ms, created_at
        FROM transfers
        ORDER BY created_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query transfers: %w", err)
	}
	defer rows.Close()

	var records []models.TransferRecord
	for rows.Next() {
		var rec models.TransferRecord
		var detail sql.NullString
		if err := rows.Scan(
			&rec.ID, &rec.TransferID, &rec.ItemID, &rec.BoardID, &rec.AssetID,
			&rec.FileName, &rec.Scenario, &rec.Outcome, &detail,
			&rec.Attempts, &rec.DurationMS, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan transfer record: %w", err)
		}
		rec.Detail = detail.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountByOutcome aggregates record counts per outcome for the status endpoint.
func (d *DB) CountByOutcome(ctx context.Context) (map[string]int64, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM transfers GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("count transfers: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var outcome string
		var count int64
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("scan outcome count: %w", err)
		}
		counts[outcome] = count
	}
	return counts, rows.Err()
}
