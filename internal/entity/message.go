package entity

import (
	"strings"
	"time"
)

// PendingPrefix marks ids synthesized locally for messages not yet stored.
const PendingPrefix = "temp-"

type Message struct {
	ID      string `gorm:"primaryKey;size:64" json:"id"`
	GroupID string `gorm:"size:36;not null;index:idx_message_group_created" json:"group_id"`
	// AuthorID is empty for system messages.
	AuthorID string `gorm:"size:36;index" json:"author_id"`
	// ClientID is generated by the sending client and echoed back on insert.
	ClientID  string    `gorm:"size:36;index" json:"client_id,omitempty"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	CreatedAt time.Time `gorm:"not null;index:idx_message_group_created" json:"created_at"`
}

func (m Message) IsPending() bool {
	return strings.HasPrefix(m.ID, PendingPrefix)
}

type MessageRead struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	MessageID string    `gorm:"size:64;not null;uniqueIndex:idx_read_message_user" json:"message_id"`
	UserID    string    `gorm:"size:36;not null;uniqueIndex:idx_read_message_user" json:"user_id"`
	GroupID   string    `gorm:"size:36;not null;index" json:"group_id"`
	ReadAt    time.Time `gorm:"not null" json:"read_at"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}
