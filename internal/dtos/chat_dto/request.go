package chat_dto

import (
	"time"
)

type CreateGroupRequest struct {
	Name        string  `json:"name" validate:"required,min=1,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=500"`
}

type AddMemberRequest struct {
	UserID string `json:"user_id" validate:"required,max=36"`
}

type SendMessageRequest struct {
	GroupID  string `json:"-" validate:"required,max=36"`
	AuthorID string `json:"-" validate:"required,max=36"`
	// ClientID correlates the optimistic entry with the stored row.
	ClientID string `json:"client_id" validate:"required,uuid"`
	Body     string `json:"body" validate:"required,min=1,max=4000"`
}

type QueryReadsRequest struct {
	MessageIDs []string `json:"message_ids" validate:"max=1000,dive,required,max=64"`
}

type UpsertReadRequest struct {
	MessageID string     `json:"message_id" validate:"required,max=64"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}
