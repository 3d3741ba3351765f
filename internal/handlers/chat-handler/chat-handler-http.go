package chat_handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/xenn00/crew-chat/internal/dtos/chat_dto"
	"github.com/xenn00/crew-chat/internal/entity"
	app_error "github.com/xenn00/crew-chat/internal/errors"
	"github.com/xenn00/crew-chat/internal/handlers"
	chat_service "github.com/xenn00/crew-chat/internal/use-case/chat-case"
)

type ChatHandler struct {
	Validate *validator.Validate
	Service  chat_service.ChatServiceContract
}

func NewChatHandler(service chat_service.ChatServiceContract) *ChatHandler {
	return &ChatHandler{
		Validate: validator.New(),
		Service:  service,
	}
}

func (h *ChatHandler) validate(req any) *app_error.AppError {
	if err := h.Validate.Struct(req); err != nil {
		return app_error.BadRequest(fmt.Sprintf("Invalid fields: %v", err), "validation")
	}
	return nil
}

func (h *ChatHandler) CreateGroup(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	userID, err := handlers.CurrentUser(r)
	if err != nil {
		return err
	}

	var req chat_dto.CreateGroupRequest
	if err := handlers.DecodeBody(r, &req); err != nil {
		return err
	}
	if err := h.validate(req); err != nil {
		return err
	}

	group, err := h.Service.CreateGroup(r.Context(), req, userID)
	if err != nil {
		return err
	}

	handlers.Respond(w, r, http.StatusCreated, "group created successfully", chat_dto.NewGroupResponse(group))
	return nil
}

func (h *ChatHandler) GetGroup(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	group, err := h.Service.GetGroup(r.Context(), chi.URLParam(r, "groupId"))
	if err != nil {
		return err
	}

	handlers.Respond(w, r, http.StatusOK, "group fetched successfully", chat_dto.NewGroupResponse(group))
	return nil
}

// AddMember enrolls the body's user, or the caller when the body names nobody.
func (h *ChatHandler) AddMember(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	userID, err := handlers.CurrentUser(r)
	if err != nil {
		return err
	}

	var req chat_dto.AddMemberRequest
	if err := handlers.DecodeBody(r, &req); err != nil {
		return err
	}
	if req.UserID == "" {
		req.UserID = userID
	}
	if err := h.validate(req); err != nil {
		return err
	}

	member, err := h.Service.EnsureMembership(r.Context(), chi.URLParam(r, "groupId"), req.UserID)
	if err != nil {
		return err
	}

	handlers.Respond(w, r, http.StatusOK, "membership ensured", chat_dto.NewMemberResponses([]entity.GroupMember{*member})[0])
	return nil
}

func (h *ChatHandler) ListMembers(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	members, err := h.Service.ListMembers(r.Context(), chi.URLParam(r, "groupId"))
	if err != nil {
		return err
	}

	handlers.Respond(w, r, http.StatusOK, "members fetched successfully", chat_dto.NewMemberResponses(members))
	return nil
}

func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	messages, err := h.Service.ListMessages(r.Context(), chi.URLParam(r, "groupId"))
	if err != nil {
		return err
	}

	handlers.Respond(w, r, http.StatusOK, "messages fetched successfully", messages)
	return nil
}

func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	userID, err := handlers.CurrentUser(r)
	if err != nil {
		return err
	}

	var req chat_dto.SendMessageRequest
	if err := handlers.DecodeBody(r, &req); err != nil {
		return err
	}
	req.GroupID = chi.URLParam(r, "groupId")
	req.AuthorID = userID

	msg, err := h.Service.SendMessage(r.Context(), req)
	if err != nil {
		return err
	}

	handlers.Respond(w, r, http.StatusCreated, "message sent successfully", msg)
	return nil
}

func (h *ChatHandler) QueryReads(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	var req chat_dto.QueryReadsRequest
	if err := handlers.DecodeBody(r, &req); err != nil {
		return err
	}
	if err := h.validate(req); err != nil {
		return err
	}

	reads, err := h.Service.ListReads(r.Context(), req.MessageIDs)
	if err != nil {
		return err
	}

	handlers.Respond(w, r, http.StatusOK, "reads fetched successfully", reads)
	return nil
}

func (h *ChatHandler) UpsertRead(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	userID, err := handlers.CurrentUser(r)
	if err != nil {
		return err
	}

	var req chat_dto.UpsertReadRequest
	if err := handlers.DecodeBody(r, &req); err != nil {
		return err
	}
	if err := h.validate(req); err != nil {
		return err
	}

	readAt := time.Now().UTC()
	if req.ReadAt != nil {
		readAt = req.ReadAt.UTC()
	}

	read := entity.MessageRead{
		MessageID: req.MessageID,
		UserID:    userID,
		GroupID:   chi.URLParam(r, "groupId"),
		ReadAt:    readAt,
	}
	if err := h.Service.UpsertRead(r.Context(), read); err != nil {
		return err
	}

	handlers.Respond(w, r, http.StatusOK, "message marked as read successfully", chat_dto.UpsertReadResponse{
		MessageID: read.MessageID,
		ReadAt:    read.ReadAt,
	})
	return nil
}
