package routers

import (
	"github.com/go-chi/chi/v5"
	"github.com/xenn00/crew-chat/internal/handlers"
	hub_handler "github.com/xenn00/crew-chat/internal/handlers/hub-handler"
	"github.com/xenn00/crew-chat/internal/middleware"
)

func HubRouter(r chi.Router, hubHandler *hub_handler.HubHandler) {
	// Health stats
	r.Get("/health", hubHandler.HandleHealth)
	r.Get("/stats", handlers.WrapHandler(hubHandler.HandleGetStats))

	r.Route("/api/v1/rooms/{roomId}", func(r chi.Router) {
		r.Get("/stats", handlers.WrapHandler(hubHandler.HandleGetRoomStats))
		r.Get("/clients", handlers.WrapHandler(hubHandler.HandleGetRoomClients))
	})

	r.With(middleware.RequireUser).Get("/ws/rooms/{roomId}", handlers.WrapHandler(hubHandler.HandleWS))
}
