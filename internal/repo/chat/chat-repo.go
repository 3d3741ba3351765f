package chat_repo

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xenn00/crew-chat/internal/entity"
	app_error "github.com/xenn00/crew-chat/internal/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ChatRepo struct {
	DB *gorm.DB
}

func NewChatRepo(db *gorm.DB) ChatRepoContract {
	return &ChatRepo{
		DB: db,
	}
}

// ErrDuplicate is the field tag of errors caused by a unique constraint.
const ErrDuplicate = "duplicate"

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique")
}

func (r *ChatRepo) CreateGroup(ctx context.Context, group *entity.Group) *app_error.AppError {
	if err := r.DB.WithContext(ctx).Create(group).Error; err != nil {
		log.Error().Err(err).Str("groupID", group.ID).Msg("failed to create group")
		return app_error.Internal("failed to create group", "db-error")
	}
	return nil
}

func (r *ChatRepo) FindGroup(ctx context.Context, groupID string) (*entity.Group, *app_error.AppError) {
	var group entity.Group
	if err := r.DB.WithContext(ctx).Where("id = ?", groupID).First(&group).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, app_error.NotFound("group not found", "not-found")
		}
		log.Error().Err(err).Str("groupID", groupID).Msg("failed to fetch group")
		return nil, app_error.Internal("failed to fetch group", "db-error")
	}
	return &group, nil
}

func (r *ChatRepo) FindMember(ctx context.Context, groupID, userID string) (*entity.GroupMember, *app_error.AppError) {
	var member entity.GroupMember
	err := r.DB.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, app_error.NotFound("membership not found", "not-found")
		}
		return nil, app_error.Internal("failed to query membership", "db-error")
	}
	return &member, nil
}

func (r *ChatRepo) InsertMember(ctx context.Context, member *entity.GroupMember) *app_error.AppError {
	if err := r.DB.WithContext(ctx).Create(member).Error; err != nil {
		if isDuplicate(err) {
			return app_error.NewAppError(http.StatusConflict, "member already exists", ErrDuplicate)
		}
		log.Error().Err(err).Str("groupID", member.GroupID).Str("userID", member.UserID).Msg("failed to insert member")
		return app_error.Internal("failed to insert member", "db-error")
	}
	return nil
}

func (r *ChatRepo) ListMembers(ctx context.Context, groupID string) ([]entity.GroupMember, *app_error.AppError) {
	var members []entity.GroupMember
	err := r.DB.WithContext(ctx).
		Preload("Profile").
		Where("group_id = ?", groupID).
		Order("id ASC").
		Find(&members).Error
	if err != nil {
		log.Error().Err(err).Str("groupID", groupID).Msg("failed to list members")
		return nil, app_error.Internal("failed to list members", "db-error")
	}
	return members, nil
}

func (r *ChatRepo) InsertMessage(ctx context.Context, msg *entity.Message) *app_error.AppError {
	if err := r.DB.WithContext(ctx).Create(msg).Error; err != nil {
		if isDuplicate(err) {
			return app_error.NewAppError(http.StatusConflict, "message already exists", ErrDuplicate)
		}
		log.Error().Err(err).Str("groupID", msg.GroupID).Msg("failed to insert message")
		return app_error.Internal("failed to insert message", "db-error")
	}
	return nil
}

func (r *ChatRepo) FindMessageByClientID(ctx context.Context, authorID, clientID string) (*entity.Message, *app_error.AppError) {
	var msg entity.Message
	err := r.DB.WithContext(ctx).
		Where("author_id = ? AND client_id = ?", authorID, clientID).
		First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, app_error.NotFound("message not found", "not-found")
		}
		return nil, app_error.Internal("failed to query message", "db-error")
	}
	return &msg, nil
}

func (r *ChatRepo) ListMessages(ctx context.Context, groupID string) ([]entity.Message, *app_error.AppError) {
	var messages []entity.Message
	err := r.DB.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&messages).Error
	if err != nil {
		log.Error().Err(err).Str("groupID", groupID).Msg("failed to list messages")
		return nil, app_error.Internal("failed to list messages", "db-error")
	}
	return messages, nil
}

// UpsertRead stores a read receipt keyed by (message_id, user_id). It reports whether a new
// row was created; an existing row only has its read_at refreshed.
func (r *ChatRepo) UpsertRead(ctx context.Context, read *entity.MessageRead) (bool, *app_error.AppError) {
	db := r.DB.WithContext(ctx)

	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(read)
	if res.Error != nil {
		log.Error().Err(res.Error).Str("messageID", read.MessageID).Str("userID", read.UserID).Msg("failed to upsert read")
		return false, app_error.Internal("failed to upsert read", "db-error")
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	err := db.Model(&entity.MessageRead{}).
		Where("message_id = ? AND user_id = ?", read.MessageID, read.UserID).
		Update("read_at", read.ReadAt).Error
	if err != nil {
		log.Error().Err(err).Str("messageID", read.MessageID).Msg("failed to refresh read")
		return false, app_error.Internal("failed to upsert read", "db-error")
	}
	return false, nil
}

func (r *ChatRepo) ListReads(ctx context.Context, messageIDs []string) ([]entity.MessageRead, *app_error.AppError) {
	if len(messageIDs) == 0 {
		return []entity.MessageRead{}, nil
	}

	var reads []entity.MessageRead
	err := r.DB.WithContext(ctx).
		Where("message_id IN ?", messageIDs).
		Order("read_at ASC").
		Find(&reads).Error
	if err != nil {
		log.Error().Err(err).Int("messages", len(messageIDs)).Msg("failed to list reads")
		return nil, app_error.Internal("failed to list reads", "db-error")
	}
	return reads, nil
}
