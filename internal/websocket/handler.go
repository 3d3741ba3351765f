package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// TODO: restrict origins once the relay sits behind a known frontend host
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWS upgrades the request and joins the socket to roomID. Membership is checked by
// the caller.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request, userID, roomID string) {
	clientIP := getClientIP(r)
	if !h.acquireIP(clientIP) {
		log.Warn().Str("clientIP", clientIP).Str("roomID", roomID).Msg("ws: too many connections")
		http.Error(w, "too many connections", http.StatusTooManyRequests)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.releaseIP(clientIP)
		log.Error().Err(err).Msg("ws: upgrade failed")
		return
	}

	client := NewClient(h, conn, userID, roomID)
	client.ClientIP = clientIP

	h.Register(roomID, client)
}
