package hub_handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	app_error "github.com/xenn00/crew-chat/internal/errors"
	"github.com/xenn00/crew-chat/internal/handlers"
	chat_service "github.com/xenn00/crew-chat/internal/use-case/chat-case"
	"github.com/xenn00/crew-chat/internal/websocket"
)

// DLQStats reports dead-letter rows grouped by status.
type DLQStats interface {
	GetDLQStats(ctx context.Context) (map[string]int64, error)
}

type HubHandler struct {
	Hub     *websocket.Hub
	Service chat_service.ChatServiceContract
	// DLQ is nil when change events are published directly.
	DLQ DLQStats
}

func NewHubHandler(hub *websocket.Hub, service chat_service.ChatServiceContract, dlq DLQStats) *HubHandler {
	return &HubHandler{
		Hub:     hub,
		Service: service,
		DLQ:     dlq,
	}
}

func (h *HubHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	handlers.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"service":   "crew-chat-relay",
	})
}

func (h *HubHandler) HandleGetStats(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	resp := map[string]any{
		"hub": h.Hub.GetHubStats(),
	}

	if h.DLQ != nil {
		dlq, err := h.DLQ.GetDLQStats(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("failed to read dead letter stats")
			return app_error.Internal("failed to read dead letter stats", "dlq")
		}
		resp["dead_letters"] = dlq
	}

	handlers.Respond(w, r, http.StatusOK, "get relay stats", resp)
	return nil
}

func (h *HubHandler) HandleGetRoomStats(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	roomID := chi.URLParam(r, "roomId")
	handlers.Respond(w, r, http.StatusOK, "get websocket room stats", h.Hub.GetRoomStats(roomID))
	return nil
}

func (h *HubHandler) HandleGetRoomClients(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	roomID := chi.URLParam(r, "roomId")
	clients := h.Hub.GetRoomClients(roomID)

	type ClientInfo struct {
		ID          string    `json:"id"`
		UserID      string    `json:"user_id"`
		ConnectedAt time.Time `json:"connected_at"`
		LastSeen    time.Time `json:"last_seen"`
	}

	clientList := make([]ClientInfo, 0, len(clients))
	for _, client := range clients {
		clientList = append(clientList, ClientInfo{
			ID:          client.ID,
			UserID:      client.UserID,
			ConnectedAt: client.ConnectedAt,
			LastSeen:    client.GetLastSeen(),
		})
	}

	handlers.Respond(w, r, http.StatusOK, "successfully get rooms client", map[string]any{
		"room_id": roomID,
		"count":   len(clientList),
		"clients": clientList,
	})
	return nil
}

// HandleWS joins the caller to the room before upgrading, mirroring how a room session
// starts with a membership check.
func (h *HubHandler) HandleWS(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	userID, err := handlers.CurrentUser(r)
	if err != nil {
		return err
	}

	roomID := chi.URLParam(r, "roomId")
	if _, err := h.Service.GetGroup(r.Context(), roomID); err != nil {
		return err
	}
	if _, err := h.Service.EnsureMembership(r.Context(), roomID, userID); err != nil {
		return err
	}

	h.Hub.HandleWS(w, r, userID, roomID)
	return nil
}
