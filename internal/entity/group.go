package entity

import (
	"time"
)

type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

type Group struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Name        string    `gorm:"not null" json:"name"`
	Description *string   `json:"description"`
	CreatedBy   string    `gorm:"size:36;not null" json:"created_by"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}

type GroupMember struct {
	ID      string   `gorm:"primaryKey;size:36" json:"id"`
	GroupID string   `gorm:"size:36;not null;uniqueIndex:idx_member_group_user" json:"group_id"`
	UserID  string   `gorm:"size:36;not null;uniqueIndex:idx_member_group_user" json:"user_id"`
	Role    Role     `gorm:"size:16;not null;default:'member'" json:"role"`
	Profile *Profile `gorm:"foreignKey:UserID;references:ID" json:"profile,omitempty"`
}

type Profile struct {
	ID        string  `gorm:"primaryKey;size:36" json:"id"`
	Username  string  `gorm:"uniqueIndex" json:"username"`
	AvatarURL *string `json:"avatar_url"`
}
