package room_service

import (
	"context"

	"github.com/xenn00/crew-chat/internal/dtos/chat_dto"
	"github.com/xenn00/crew-chat/internal/entity"
	app_error "github.com/xenn00/crew-chat/internal/errors"
	"github.com/xenn00/crew-chat/internal/receipt"
	"github.com/xenn00/crew-chat/internal/stream"
)

// Backend is the datastore a room session runs against. chat_service.ChatService satisfies it.
type Backend interface {
	receipt.Marker

	EnsureMembership(ctx context.Context, groupID, userID string) (*entity.GroupMember, *app_error.AppError)
	GetGroup(ctx context.Context, groupID string) (*entity.Group, *app_error.AppError)
	ListMembers(ctx context.Context, groupID string) ([]entity.GroupMember, *app_error.AppError)
	ListMessages(ctx context.Context, groupID string) ([]entity.Message, *app_error.AppError)
	ListReads(ctx context.Context, messageIDs []string) ([]entity.MessageRead, *app_error.AppError)
	SendMessage(ctx context.Context, req chat_dto.SendMessageRequest) (*entity.Message, *app_error.AppError)
}

type State string

const (
	StateIdle    State = "idle"
	StateJoining State = "joining"
	StateLive    State = "live"
	StateError   State = "error"
	StateClosed  State = "closed"
)

type ConnectionStatus string

const (
	ConnDisconnected ConnectionStatus = "disconnected"
	ConnConnecting   ConnectionStatus = "connecting"
	ConnConnected    ConnectionStatus = "connected"
	ConnReconnecting ConnectionStatus = "reconnecting"
)

type SendStatus string

const (
	SendIdle    SendStatus = ""
	SendSending SendStatus = "sending"
	SendSent    SendStatus = "sent"
	SendError   SendStatus = "error"
)

type EventKind int

const (
	EventState EventKind = iota
	EventConnection
	EventMessages
	EventUnread
	EventInput
	EventSendStatus
	// EventIncoming toggles the pulse on a message from someone else.
	EventIncoming
	// EventFlash toggles the new-message notification cue.
	EventFlash
	EventError
)

type Event struct {
	Kind       EventKind
	State      State
	Connection ConnectionStatus
	Messages   []stream.View
	Unread     []string
	Input      string
	SendStatus SendStatus
	MessageID  string
	Active     bool
	Err        *app_error.AppError
}

// Listener receives session events synchronously. It must not call back into the Session.
type Listener func(Event)

// Snapshot is a consistent copy of everything a room view renders.
type Snapshot struct {
	GroupID    string
	UserID     string
	State      State
	Connection ConnectionStatus
	Group      *entity.Group
	Members    []entity.GroupMember
	Messages   []stream.View
	Unread     []string
	LastRead   string
	Input      string
	SendStatus SendStatus
	Incoming   []string
	Flashing   bool
	Err        *app_error.AppError
}
