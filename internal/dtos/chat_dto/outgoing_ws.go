package chat_dto

import (
	"github.com/xenn00/crew-chat/internal/realtime"
)

// WSOutgoingMessage is one frame on a room socket. Event is "change" for row inserts,
// otherwise a room status such as SUBSCRIBED or CHANNEL_ERROR.
type WSOutgoingMessage struct {
	Event  string                `json:"event"`
	RoomID string                `json:"roomId"`
	Change *realtime.ChangeEvent `json:"change,omitempty"`
}
