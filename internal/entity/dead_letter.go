package entity

import (
	"time"
)

type DeadLetterStatus string

const (
	DeadLetterPending           DeadLetterStatus = "pending"
	DeadLetterProcessing        DeadLetterStatus = "processing"
	DeadLetterFailed            DeadLetterStatus = "failed"
	DeadLetterCompleted         DeadLetterStatus = "completed"
	DeadLetterPermanentlyFailed DeadLetterStatus = "permanently_failed"
)

// DeadLetter is a background job that exhausted its queue retries.
type DeadLetter struct {
	ID                 uint             `gorm:"primaryKey" json:"id"`
	JobID              string           `gorm:"size:36;index" json:"job_id"`
	Type               string           `gorm:"size:64;not null" json:"type"`
	Payload            []byte           `json:"payload"`
	ErrorMsg           string           `gorm:"type:text" json:"error_msg"`
	Status             DeadLetterStatus `gorm:"size:32;index;not null" json:"status"`
	RetryCount         int              `json:"retry_count"`
	OriginalRetryCount int              `json:"original_retry_count"`
	NextRetryAt        *time.Time       `json:"next_retry_at,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
	CompletedAt        *time.Time       `json:"completed_at,omitempty"`
	FailedAt           *time.Time       `json:"failed_at,omitempty"`
	ExpireAt           time.Time        `json:"expired_at"`
}
