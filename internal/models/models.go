package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Action selects what happens to the source column after a transfer.
type Action string

const (
	ActionCopy Action = "COPY"
	ActionMove Action = "MOVE"
)

// FileDescriptor identifies one asset referenced by a file column value.
type FileDescriptor struct {
	AssetID  int64  `json:"assetId"`
	Name     string `json:"name"`
	FileType string `json:"fileType,omitempty"`
	IsImage  bool   `json:"isImage,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// TransferTask is one file to move between columns. Tasks live in a per-item
// FIFO queue and are popped only on success or retry exhaustion.
type TransferTask struct {
	ID           string
	Token        string
	UserID       int64
	Scenario     string
	SourceItemID int64
	SourceBoard  int64
	SourceColumn string
	DestItemID   int64
	DestBoardID  int64
	DestColumn   string
	File         FileDescriptor
	RetryCount   int
	EnqueuedAt   time.Time
}

// ItemKey is the queue identity for a task: one queue per source item.
func (t *TransferTask) ItemKey() string {
	return strconv.FormatInt(t.SourceItemID, 10)
}

// TransferRecord is the persisted trace of one terminal task outcome.
type TransferRecord struct {
	ID         int64     `json:"id"`
	TransferID string    `json:"transfer_id"`
	ItemID     int64     `json:"item_id"`
	BoardID    int64     `json:"board_id"`
	AssetID    int64     `json:"asset_id"`
	FileName   string    `json:"file_name"`
	Scenario   string    `json:"scenario"`
	Outcome    string    `json:"outcome"`
	Detail     string    `json:"detail,omitempty"`
	Attempts   int       `json:"attempts"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Terminal outcomes recorded in the history log.
const (
	OutcomeCompleted = "completed"
	OutcomeDropped   = "dropped"
	OutcomeNotified  = "notified"
)

// fileColumnValue mirrors the JSON stored in a platform file column.
type fileColumnValue struct {
	Files []struct {
		AssetID  json.Number `json:"assetId"`
		Name     string      `json:"name"`
		FileType string      `json:"fileType"`
		IsImage  any         `json:"isImage"`
	} `json:"files"`
}

// ParseFileColumnValue extracts file descriptors from a raw file column value.
// An empty or null value yields no descriptors and no error.
func ParseFileColumnValue(raw string) ([]FileDescriptor, error) {
	if raw == "" || raw == "null" {
		return nil, nil
	}

	var value fileColumnValue
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, fmt.Errorf("parse file column value: %w", err)
	}

	descriptors := make([]FileDescriptor, 0, len(value.Files))
	for _, f := range value.Files {
		assetID, err := f.AssetID.Int64()
		if err != nil || assetID == 0 {
			continue
		}
		descriptors = append(descriptors, FileDescriptor{
			AssetID:  assetID,
			Name:     f.Name,
			FileType: f.FileType,
			IsImage:  parseFlexibleBool(f.IsImage),
		})
	}
	return descriptors, nil
}

// isImage arrives either as a bool or the strings "true"/"false".
func parseFlexibleBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val == "true"
	default:
		return false
	}
}
