package monday

import (
	"context"
	"fmt"
	"strconv"
)

const createNotificationMutation = `mutation ($userId: ID!, $targetId: ID!, $text: String!) {
  create_notification (user_id: $userId, target_id: $targetId, text: $text, target_type: Project) {
    text
  }
}`

// SendNotification delivers an in-platform notification, used for
// business-rule violations that must reach the user instead of failing the
// pipeline.
func (c *Client) SendNotification(ctx context.Context, token string, userID, targetID int64, text string) error {
	vars := map[string]any{
		"userId":   strconv.FormatInt(userID, 10),
		"targetId": strconv.FormatInt(targetID, 10),
		"text":     text,
	}
	if err := c.Query(ctx, token, createNotificationMutation, vars, nil); err != nil {
		return fmt.Errorf("send notification to user %d: %w", userID, err)
	}
	return nil
}
