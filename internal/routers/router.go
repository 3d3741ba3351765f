package routers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	hub_handler "github.com/xenn00/crew-chat/internal/handlers/hub-handler"
	"github.com/xenn00/crew-chat/internal/middleware"
	chat_service "github.com/xenn00/crew-chat/internal/use-case/chat-case"
	"github.com/xenn00/crew-chat/internal/websocket"
)

func NewRouter(service chat_service.ChatServiceContract, wsHub *websocket.Hub, dlq hub_handler.DLQStats) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.WithRequestId)
	HubRouter(r, hub_handler.NewHubHandler(wsHub, service, dlq))
	ChatRouter(r, service)
	return r
}
