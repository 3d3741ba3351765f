package routers

import (
	"github.com/go-chi/chi/v5"
	"github.com/xenn00/crew-chat/internal/handlers"
	chat_handler "github.com/xenn00/crew-chat/internal/handlers/chat-handler"
	"github.com/xenn00/crew-chat/internal/middleware"
	chat_service "github.com/xenn00/crew-chat/internal/use-case/chat-case"
)

func ChatRouter(r chi.Router, service chat_service.ChatServiceContract) {
	chatHandler := chat_handler.NewChatHandler(service)
	r.Group(func(protected chi.Router) {
		protected.Use(middleware.RequireUser)
		protected.Post("/api/v1/groups", handlers.WrapHandler(chatHandler.CreateGroup))
		protected.Route("/api/v1/groups/{groupId}", func(r chi.Router) {
			r.Get("/", handlers.WrapHandler(chatHandler.GetGroup))
			r.Post("/members", handlers.WrapHandler(chatHandler.AddMember))
			r.Get("/members", handlers.WrapHandler(chatHandler.ListMembers))
			r.Get("/messages", handlers.WrapHandler(chatHandler.ListMessages))
			r.Post("/messages", handlers.WrapHandler(chatHandler.SendMessage))
			r.Put("/reads", handlers.WrapHandler(chatHandler.UpsertRead))
		})
		protected.Post("/api/v1/reads/query", handlers.WrapHandler(chatHandler.QueryReads))
	})
}
