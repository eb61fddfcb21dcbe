package routes

import (
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arsalanrobotronics/famaserve-app-backend/internal/config"
	"github.com/arsalanrobotronics/famaserve-app-backend/internal/handlers"
	"github.com/arsalanrobotronics/famaserve-app-backend/internal/middleware"
	"github.com/arsalanrobotronics/famaserve-app-backend/internal/repository"
	"github.com/arsalanrobotronics/famaserve-app-backend/internal/services"
	chatws "github.com/arsalanrobotronics/famaserve-app-backend/internal/websocket"
)

func RegisterRoutes(app *fiber.App, cfg *config.Config, db *pgxpool.Pool) {
	userRepo := repository.NewUserRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	chatService := services.NewChatService(
		db,
		conversationRepo,
		messageRepo,
		userRepo,
		projectRepo,
		services.LogNotifier{},
	)
	chatHub := chatws.NewHub()
	go chatHub.Run()
	chatHandler := handlers.NewChatHandler(chatService, userRepo, chatHub, cfg.JWTSecret)

	api := app.Group("/api")
	v1 := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	chats := v1.Group("/chats")
	chats.Get("", chatHandler.ListConversations)
	chats.Post("", chatHandler.CreateConversation)
	chats.Get("/stats/overview", chatHandler.GetStats)
	chats.Get("/:id", chatHandler.GetConversation)
	chats.Get("/:id/messages", chatHandler.GetMessages)
	chats.Post("/:id/messages", chatHandler.SendMessage)
	chats.Patch("/:id/messages/read", chatHandler.MarkMessagesRead)

	messages := v1.Group("/messages")
	messages.Patch("/:messageId/edit", chatHandler.EditMessage)
	messages.Delete("/:messageId", chatHandler.DeleteMessage)

	api.Use("/v1/ws", chatHandler.WebSocketAuth)
	api.Get("/v1/ws", websocket.New(chatHandler.HandleWebSocket))
}
