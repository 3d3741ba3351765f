package chat_service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/xenn00/crew-chat/internal/dtos/chat_dto"
	"github.com/xenn00/crew-chat/internal/entity"
	app_error "github.com/xenn00/crew-chat/internal/errors"
	"github.com/xenn00/crew-chat/internal/realtime"
	chat_repo "github.com/xenn00/crew-chat/internal/repo/chat"
	"github.com/xenn00/crew-chat/internal/utils"
)

const groupCacheTTL = 5 * time.Minute

type ChatService struct {
	ChatRepo  chat_repo.ChatRepoContract
	Redis     *redis.Client
	Publisher realtime.Publisher
	Validate  *validator.Validate
	now       func() time.Time
}

// NewChatService wires the service. rdb and publisher may be nil, which disables the
// group cache and change notifications respectively.
func NewChatService(repo chat_repo.ChatRepoContract, rdb *redis.Client, publisher realtime.Publisher) *ChatService {
	return &ChatService{
		ChatRepo:  repo,
		Redis:     rdb,
		Publisher: publisher,
		Validate:  validator.New(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func groupCacheKey(groupID string) string {
	return fmt.Sprintf("group:%s", groupID)
}

func (c *ChatService) CreateGroup(ctx context.Context, req chat_dto.CreateGroupRequest, creatorID string) (*entity.Group, *app_error.AppError) {
	if err := c.Validate.Struct(req); err != nil {
		return nil, app_error.BadRequest(fmt.Sprintf("Invalid fields: %v", err), "validation")
	}
	if creatorID == "" {
		return nil, app_error.NewAppError(http.StatusUnauthorized, "user id is required", "user")
	}

	group := &entity.Group{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		CreatedBy:   creatorID,
		CreatedAt:   c.now(),
	}
	if err := c.ChatRepo.CreateGroup(ctx, group); err != nil {
		return nil, err
	}

	admin := &entity.GroupMember{
		ID:      uuid.NewString(),
		GroupID: group.ID,
		UserID:  creatorID,
		Role:    entity.RoleAdmin,
	}
	if err := c.ChatRepo.InsertMember(ctx, admin); err != nil {
		return nil, err
	}

	log.Info().Str("groupID", group.ID).Str("creator", creatorID).Msg("group created")
	return group, nil
}

func (c *ChatService) GetGroup(ctx context.Context, groupID string) (*entity.Group, *app_error.AppError) {
	return utils.Cached(ctx, c.Redis, groupCacheKey(groupID), groupCacheTTL, func(ctx context.Context) (*entity.Group, *app_error.AppError) {
		return c.ChatRepo.FindGroup(ctx, groupID)
	})
}

// EnsureMembership returns the caller's membership, enrolling them as a member when absent.
// A concurrent enrolment losing the unique-key race is treated as success.
func (c *ChatService) EnsureMembership(ctx context.Context, groupID, userID string) (*entity.GroupMember, *app_error.AppError) {
	if groupID == "" || userID == "" {
		return nil, app_error.BadRequest("group id and user id are required", "membership")
	}

	member, err := c.ChatRepo.FindMember(ctx, groupID, userID)
	if err == nil {
		return member, nil
	}
	if err.Code != http.StatusNotFound {
		return nil, err
	}

	if _, err := c.ChatRepo.FindGroup(ctx, groupID); err != nil {
		return nil, err
	}

	member = &entity.GroupMember{
		ID:      uuid.NewString(),
		GroupID: groupID,
		UserID:  userID,
		Role:    entity.RoleMember,
	}
	if err := c.ChatRepo.InsertMember(ctx, member); err != nil {
		if err.Field == chat_repo.ErrDuplicate {
			return c.ChatRepo.FindMember(ctx, groupID, userID)
		}
		return nil, err
	}

	log.Info().Str("groupID", groupID).Str("userID", userID).Msg("user enrolled in group")
	return member, nil
}

func (c *ChatService) ListMembers(ctx context.Context, groupID string) ([]entity.GroupMember, *app_error.AppError) {
	return c.ChatRepo.ListMembers(ctx, groupID)
}

func (c *ChatService) ListMessages(ctx context.Context, groupID string) ([]entity.Message, *app_error.AppError) {
	return c.ChatRepo.ListMessages(ctx, groupID)
}

func (c *ChatService) ListReads(ctx context.Context, messageIDs []string) ([]entity.MessageRead, *app_error.AppError) {
	return c.ChatRepo.ListReads(ctx, messageIDs)
}

// SendMessage stores a message once per (author, client id); a retried send returns the
// row stored by the first attempt.
func (c *ChatService) SendMessage(ctx context.Context, req chat_dto.SendMessageRequest) (*entity.Message, *app_error.AppError) {
	req.Body = strings.TrimSpace(req.Body)
	if err := c.Validate.Struct(req); err != nil {
		return nil, app_error.BadRequest(fmt.Sprintf("Invalid fields: %v", err), "validation")
	}

	if _, err := c.ChatRepo.FindMember(ctx, req.GroupID, req.AuthorID); err != nil {
		if err.Code == http.StatusNotFound {
			return nil, app_error.NewAppError(http.StatusForbidden, "user is not a member of this group", "membership")
		}
		return nil, err
	}

	existing, err := c.ChatRepo.FindMessageByClientID(ctx, req.AuthorID, req.ClientID)
	if err == nil {
		return existing, nil
	}
	if err.Code != http.StatusNotFound {
		return nil, err
	}

	msg := &entity.Message{
		ID:        uuid.NewString(),
		GroupID:   req.GroupID,
		AuthorID:  req.AuthorID,
		ClientID:  req.ClientID,
		Body:      req.Body,
		CreatedAt: c.now(),
	}
	if err := c.ChatRepo.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}

	c.publish(ctx, realtime.MessageInserted(*msg))
	return msg, nil
}

// UpsertRead records that read.UserID has read read.MessageID. Only the first read of a
// pair is announced on the change feed.
func (c *ChatService) UpsertRead(ctx context.Context, read entity.MessageRead) *app_error.AppError {
	if read.MessageID == "" || read.UserID == "" || read.GroupID == "" {
		return app_error.BadRequest("message id, user id and group id are required", "read")
	}

	now := c.now()
	if read.ID == "" {
		read.ID = uuid.NewString()
	}
	if read.ReadAt.IsZero() {
		read.ReadAt = now
	}
	read.CreatedAt = now

	created, err := c.ChatRepo.UpsertRead(ctx, &read)
	if err != nil {
		return err
	}

	if created {
		c.publish(ctx, realtime.ReadInserted(read))
	}
	return nil
}

// publish failures never undo a durable write; subscribers catch up on the next history load.
func (c *ChatService) publish(ctx context.Context, event realtime.ChangeEvent) {
	if c.Publisher == nil {
		return
	}
	if err := c.Publisher.Publish(ctx, event); err != nil {
		log.Error().Err(err).Str("groupID", event.GroupID).Str("table", string(event.Table)).Msg("failed to publish change")
	}
}
