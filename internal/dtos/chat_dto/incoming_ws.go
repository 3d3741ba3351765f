package chat_dto

// WSIncomingMessage is sent by socket clients; only "ping" is understood.
type WSIncomingMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}
