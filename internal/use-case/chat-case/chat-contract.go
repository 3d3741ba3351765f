package chat_service

import (
	"context"

	"github.com/xenn00/crew-chat/internal/dtos/chat_dto"
	"github.com/xenn00/crew-chat/internal/entity"
	app_error "github.com/xenn00/crew-chat/internal/errors"
)

type ChatServiceContract interface {
	CreateGroup(ctx context.Context, req chat_dto.CreateGroupRequest, creatorID string) (*entity.Group, *app_error.AppError)
	GetGroup(ctx context.Context, groupID string) (*entity.Group, *app_error.AppError)

	EnsureMembership(ctx context.Context, groupID, userID string) (*entity.GroupMember, *app_error.AppError)
	ListMembers(ctx context.Context, groupID string) ([]entity.GroupMember, *app_error.AppError)

	ListMessages(ctx context.Context, groupID string) ([]entity.Message, *app_error.AppError)
	SendMessage(ctx context.Context, req chat_dto.SendMessageRequest) (*entity.Message, *app_error.AppError)

	ListReads(ctx context.Context, messageIDs []string) ([]entity.MessageRead, *app_error.AppError)
	UpsertRead(ctx context.Context, read entity.MessageRead) *app_error.AppError
}
