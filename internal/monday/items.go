package monday

import (
	"context"
	"fmt"
	"strconv"
)

const columnValueQuery = `query ($itemIds: [ID!]!, $columnIds: [String!]) {
  items (ids: $itemIds) {
    id
    name
    column_values (ids: $columnIds) {
      id
      value
    }
  }
}`

// ColumnValue returns the raw JSON value of one column on an item. An item
// without that column yields an empty string.
func (c *Client) ColumnValue(ctx context.Context, token string, itemID int64, columnID string) (string, error) {
	var data struct {
		Items []struct {
			ID           string `json:"id"`
			Name         string `json:"name"`
			ColumnValues []struct {
				ID    string `json:"id"`
				Value string `json:"value"`
			} `json:"column_values"`
		} `json:"items"`
	}

	vars := map[string]any{
		"itemIds":   []string{strconv.FormatInt(itemID, 10)},
		"columnIds": []string{columnID},
	}
	if err := c.Query(ctx, token, columnValueQuery, vars, &data); err != nil {
		return "", fmt.Errorf("read column %s on item %d: %w", columnID, itemID, err)
	}
	if len(data.Items) == 0 {
		return "", fmt.Errorf("item %d not found", itemID)
	}
	for _, cv := range data.Items[0].ColumnValues {
		if cv.ID == columnID {
			return cv.Value, nil
		}
	}
	return "", nil
}

const itemNameQuery = `query ($ids: [ID!]!) {
  items (ids: $ids) {
    id
    name
  }
}`

// ItemName returns the display name of an item.
func (c *Client) ItemName(ctx context.Context, token string, itemID int64) (string, error) {
	var data struct {
		Items []struct {
			Name string `json:"name"`
		} `json:"items"`
	}

	vars := map[string]any{"ids": []string{strconv.FormatInt(itemID, 10)}}
	if err := c.Query(ctx, token, itemNameQuery, vars, &data); err != nil {
		return "", fmt.Errorf("read item %d name: %w", itemID, err)
	}
	if len(data.Items) == 0 {
		return "", fmt.Errorf("item %d not found", itemID)
	}
	return data.Items[0].Name, nil
}

const boardItemsQuery = `query ($ids: [ID!]!) {
  boards (ids: $ids) {
    items_page (limit: 500) {
      items {
        id
        name
      }
    }
  }
}`

// FindItemByName looks up an item on a board by exact name. Returns 0 when no
// item matches.
func (c *Client) FindItemByName(ctx context.Context, token string, boardID int64, name string) (int64, error) {
	var data struct {
		Boards []struct {
			ItemsPage struct {
				Items []struct {
					ID   string `json:"id"`
					Name string `json:"name"`
				} `json:"items"`
			} `json:"items_page"`
		} `json:"boards"`
	}

	vars := map[string]any{"ids": []string{strconv.FormatInt(boardID, 10)}}
	if err := c.Query(ctx, token, boardItemsQuery, vars, &data); err != nil {
		return 0, fmt.Errorf("list board %d items: %w", boardID, err)
	}
	if len(data.Boards) == 0 {
		return 0, fmt.Errorf("board %d not found", boardID)
	}
	for _, item := range data.Boards[0].ItemsPage.Items {
		if item.Name == name {
			id, err := strconv.ParseInt(item.ID, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("parse item id %q: %w", item.ID, err)
			}
			return id, nil
		}
	}
	return 0, nil
}

const createItemMutation = `mutation ($boardId: ID!, $itemName: String!) {
  create_item (board_id: $boardId, item_name: $itemName) {
    id
  }
}`

// CreateItem creates an item on a board and returns its id.
func (c *Client) CreateItem(ctx context.Context, token string, boardID int64, name string) (int64, error) {
	var data struct {
		CreateItem struct {
			ID string `json:"id"`
		} `json:"create_item"`
	}

	vars := map[string]any{
		"boardId":  strconv.FormatInt(boardID, 10),
		"itemName": name,
	}
	if err := c.Query(ctx, token, createItemMutation, vars, &data); err != nil {
		return 0, fmt.Errorf("create item on board %d: %w", boardID, err)
	}
	id, err := strconv.ParseInt(data.CreateItem.ID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse created item id %q: %w", data.CreateItem.ID, err)
	}
	return id, nil
}

const clearColumnMutation = `mutation ($boardId: ID!, $itemId: ID!, $columnId: String!, $value: JSON!) {
  change_column_value (board_id: $boardId, item_id: $itemId, column_id: $columnId, value: $value) {
    id
  }
}`

// ClearColumnValue empties a file column after a successful move.
func (c *Client) ClearColumnValue(ctx context.Context, token string, boardID, itemID int64, columnID string) error {
	vars := map[string]any{
		"boardId":  strconv.FormatInt(boardID, 10),
		"itemId":   strconv.FormatInt(itemID, 10),
		"columnId": columnID,
		"value":    `{"clear_all": true}`,
	}
	if err := c.Query(ctx, token, clearColumnMutation, vars, nil); err != nil {
		return fmt.Errorf("clear column %s on item %d: %w", columnID, itemID, err)
	}
	return nil
}
