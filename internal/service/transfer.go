// Package service turns validated webhook requests into queued transfer
// tasks. One method per transfer scenario; all four feed the same pipeline.
package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/niteshatinception/for-monday/internal/config"
	"github.com/niteshatinception/for-monday/internal/models"
	"github.com/niteshatinception/for-monday/internal/monday"
	"github.com/niteshatinception/for-monday/internal/pipeline"
)

// PlatformClient is the slice of the API client the transfer service needs.
type PlatformClient interface {
	ColumnValue(ctx context.Context, token string, itemID int64, columnID string) (string, error)
	ItemName(ctx context.Context, token string, itemID int64) (string, error)
	FindItemByName(ctx context.Context, token string, boardID int64, name string) (int64, error)
	CreateItem(ctx context.Context, token string, boardID int64, name string) (int64, error)
	ClearColumnValue(ctx context.Context, token string, boardID, itemID int64, columnID string) error
	UpdateAssets(ctx context.Context, token string, updateID int64) ([]*monday.Asset, error)
}

// Enqueuer is the pipeline surface used here.
type Enqueuer interface {
	Enqueue(tasks []*models.TransferTask) int
	Wait(ctx context.Context, key string) error
}

type TransferService struct {
	client PlatformClient
	pipe   Enqueuer
	logger zerolog.Logger
}

func NewTransferService(client PlatformClient, pipe Enqueuer, logger *zerolog.Logger) *TransferService {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "transfer_service").Logger()
	}
	return &TransferService{client: client, pipe: pipe, logger: base}
}

// ColumnToColumn copies the files of one column to another column on the same
// item. With ActionMove the call blocks until the item's drain loop tears
// down, then clears the source column.
func (s *TransferService) ColumnToColumn(ctx context.Context, token string, payload models.WebhookPayload) (int, error) {
	in := payload.InputFields
	files, err := s.sourceFiles(ctx, token, in.ItemID, in.SourceColumn)
	if err != nil {
		return 0, err
	}

	tasks := s.buildTasks(config.ScenarioColumnToColumn, token, payload.UserID, files, in, in.ItemID, in.BoardID)
	queued := s.pipe.Enqueue(tasks)

	if in.Action == models.ActionMove && queued > 0 {
		if err := s.clearSourceAfterDrain(ctx, token, tasks[0].ItemKey(), in); err != nil {
			return queued, err
		}
	}
	return queued, nil
}

// ItemToItem copies the files of a column onto a different item.
func (s *TransferService) ItemToItem(ctx context.Context, token string, payload models.WebhookPayload) (int, error) {
	in := payload.InputFields
	if in.TargetItemID == 0 {
		return 0, fmt.Errorf("target item id is required")
	}

	files, err := s.sourceFiles(ctx, token, in.ItemID, in.SourceColumn)
	if err != nil {
		return 0, err
	}

	tasks := s.buildTasks(config.ScenarioItemToItem, token, payload.UserID, files, in, in.TargetItemID, in.BoardID)
	queued := s.pipe.Enqueue(tasks)

	if in.Action == models.ActionMove && queued > 0 {
		if err := s.clearSourceAfterDrain(ctx, token, tasks[0].ItemKey(), in); err != nil {
			return queued, err
		}
	}
	return queued, nil
}

// BoardToBoard copies the files of a column to the same-named item on another
// board, creating the destination item when no name matches.
func (s *TransferService) BoardToBoard(ctx context.Context, token string, payload models.WebhookPayload) (int, error) {
	in := payload.InputFields
	if in.TargetBoardID == 0 {
		return 0, fmt.Errorf("target board id is required")
	}

	files, err := s.sourceFiles(ctx, token, in.ItemID, in.SourceColumn)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, nil
	}

	name, err := s.client.ItemName(ctx, token, in.ItemID)
	if err != nil {
		return 0, err
	}
	destItemID, err := s.client.FindItemByName(ctx, token, in.TargetBoardID, name)
	if err != nil {
		return 0, err
	}
	if destItemID == 0 {
		destItemID, err = s.client.CreateItem(ctx, token, in.TargetBoardID, name)
		if err != nil {
			return 0, err
		}
		s.logger.Info().Int64("board_id", in.TargetBoardID).Int64("item_id", destItemID).
			Str("name", name).Msg("destination item created")
	}

	tasks := s.buildTasks(config.ScenarioBoardToBoard, token, payload.UserID, files, in, destItemID, in.TargetBoardID)
	return s.pipe.Enqueue(tasks), nil
}

// UpdateToFiles copies the attachments of an update post into a file column
// on the same item.
func (s *TransferService) UpdateToFiles(ctx context.Context, token string, payload models.WebhookPayload) (int, error) {
	in := payload.InputFields
	if in.UpdateID == 0 {
		return 0, fmt.Errorf("update id is required")
	}

	assets, err := s.client.UpdateAssets(ctx, token, in.UpdateID)
	if err != nil {
		return 0, err
	}

	files := make([]models.FileDescriptor, 0, len(assets))
	for _, asset := range assets {
		id, err := strconv.ParseInt(asset.ID, 10, 64)
		if err != nil || id == 0 {
			continue
		}
		files = append(files, models.FileDescriptor{
			AssetID: id,
			Name:    asset.Name,
			Size:    asset.FileSize,
		})
	}

	tasks := s.buildTasks(config.ScenarioUpdateToFiles, token, payload.UserID, files, in, in.ItemID, in.BoardID)
	return s.pipe.Enqueue(tasks), nil
}

// sourceFiles reads and parses the file column on the source item. An empty
// column is not an error: zero tasks get queued.
func (s *TransferService) sourceFiles(ctx context.Context, token string, itemID int64, columnID string) ([]models.FileDescriptor, error) {
	raw, err := s.client.ColumnValue(ctx, token, itemID, columnID)
	if err != nil {
		return nil, err
	}
	files, err := models.ParseFileColumnValue(raw)
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (s *TransferService) buildTasks(scenario, token string, userID int64, files []models.FileDescriptor, in models.InputFields, destItemID, destBoardID int64) []*models.TransferTask {
	tasks := make([]*models.TransferTask, 0, len(files))
	for _, file := range files {
		tasks = append(tasks, &models.TransferTask{
			Token:        token,
			UserID:       userID,
			Scenario:     scenario,
			SourceItemID: in.ItemID,
			SourceBoard:  in.BoardID,
			SourceColumn: in.SourceColumn,
			DestItemID:   destItemID,
			DestBoardID:  destBoardID,
			DestColumn:   in.TargetColumn,
			File:         file,
		})
	}
	return tasks
}

// clearSourceAfterDrain is the MOVE tail: block until the drain loop is done,
// then empty the source column. This is the only synchronous coupling between
// a request and the background pipeline.
func (s *TransferService) clearSourceAfterDrain(ctx context.Context, token, key string, in models.InputFields) error {
	if err := s.pipe.Wait(ctx, key); err != nil {
		return fmt.Errorf("wait for drain of item %s: %w", key, err)
	}
	if err := s.client.ClearColumnValue(ctx, token, in.BoardID, in.ItemID, in.SourceColumn); err != nil {
		return err
	}
	s.logger.Info().Int64("item_id", in.ItemID).Str("column", in.SourceColumn).Msg("source column cleared after move")
	return nil
}

var _ Enqueuer = (*pipeline.Pipeline)(nil)
