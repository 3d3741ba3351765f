package chat_dto

import (
	"time"

	"github.com/xenn00/crew-chat/internal/entity"
)

type GroupResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

func NewGroupResponse(g *entity.Group) GroupResponse {
	return GroupResponse{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		CreatedBy:   g.CreatedBy,
		CreatedAt:   g.CreatedAt,
	}
}

type MemberResponse struct {
	UserID    string      `json:"user_id"`
	Role      entity.Role `json:"role"`
	Username  string      `json:"username,omitempty"`
	AvatarURL *string     `json:"avatar_url,omitempty"`
}

func NewMemberResponses(members []entity.GroupMember) []MemberResponse {
	out := make([]MemberResponse, 0, len(members))
	for _, m := range members {
		resp := MemberResponse{UserID: m.UserID, Role: m.Role}
		if m.Profile != nil {
			resp.Username = m.Profile.Username
			resp.AvatarURL = m.Profile.AvatarURL
		}
		out = append(out, resp)
	}
	return out
}

type UpsertReadResponse struct {
	MessageID string    `json:"message_id"`
	ReadAt    time.Time `json:"read_at"`
}
