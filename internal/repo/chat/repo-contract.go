package chat_repo

import (
	"context"

	"github.com/xenn00/crew-chat/internal/entity"
	app_error "github.com/xenn00/crew-chat/internal/errors"
)

type ChatRepoContract interface {
	CreateGroup(ctx context.Context, group *entity.Group) *app_error.AppError
	FindGroup(ctx context.Context, groupID string) (*entity.Group, *app_error.AppError)

	FindMember(ctx context.Context, groupID, userID string) (*entity.GroupMember, *app_error.AppError)
	InsertMember(ctx context.Context, member *entity.GroupMember) *app_error.AppError
	ListMembers(ctx context.Context, groupID string) ([]entity.GroupMember, *app_error.AppError)

	InsertMessage(ctx context.Context, msg *entity.Message) *app_error.AppError
	FindMessageByClientID(ctx context.Context, authorID, clientID string) (*entity.Message, *app_error.AppError)
	ListMessages(ctx context.Context, groupID string) ([]entity.Message, *app_error.AppError)

	UpsertRead(ctx context.Context, read *entity.MessageRead) (bool, *app_error.AppError)
	ListReads(ctx context.Context, messageIDs []string) ([]entity.MessageRead, *app_error.AppError)
}
