package models

import (
	"github.com/go-playground/validator/v10"
)

// WebhookRequest is the body of a platform action webhook. The platform wraps
// the user-configured recipe fields in payload.inputFields.
type WebhookRequest struct {
	Payload WebhookPayload `json:"payload" validate:"required"`
}

type WebhookPayload struct {
	InputFields     InputFields `json:"inputFields" validate:"required"`
	ShortLivedToken string      `json:"shortLivedToken"`
	UserID          int64       `json:"userId"`
}

// InputFields describes one transfer request. Destination fields beyond the
// target column are optional and scenario-dependent.
type InputFields struct {
	BoardID       int64  `json:"boardId" validate:"required"`
	ItemID        int64  `json:"itemId" validate:"required"`
	SourceColumn  string `json:"sourceColumnId" validate:"required"`
	TargetColumn  string `json:"targetColumnId" validate:"required"`
	TargetItemID  int64  `json:"targetItemId,omitempty"`
	TargetBoardID int64  `json:"targetBoardId,omitempty"`
	UpdateID      int64  `json:"updateId,omitempty"`
	Action        Action `json:"action,omitempty" validate:"omitempty,oneof=COPY MOVE"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks required webhook fields. Failures are synchronous
// validation errors: nothing gets queued.
func (r *WebhookRequest) Validate() error {
	return validate.Struct(r)
}
