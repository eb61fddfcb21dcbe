package handlers

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/arsalanrobotronics/famaserve-app-backend/internal/models"
	"github.com/arsalanrobotronics/famaserve-app-backend/internal/services"
	chatws "github.com/arsalanrobotronics/famaserve-app-backend/internal/websocket"
	"github.com/arsalanrobotronics/famaserve-app-backend/pkg/utils"
)

const chatHeading = "Chat"

type chatApplicationService interface {
	CreateConversation(ctx context.Context, input services.CreateConversationInput) (*models.ConversationSummary, bool, error)
	ListConversations(ctx context.Context, actorID int64, status string, projectID int64, page int, limit int) ([]models.ConversationSummary, int, error)
	GetConversation(ctx context.Context, actorID int64, conversationID int64) (*models.ConversationSummary, error)
	GetConversationForParticipant(ctx context.Context, conversationID int64, actorID int64) (*models.Conversation, error)
	SendMessage(ctx context.Context, actorID int64, conversationID int64, input services.SendMessageInput) (*services.ChatDelivery, error)
	ListMessages(ctx context.Context, actorID int64, conversationID int64, page int, limit int) ([]models.MessageDetail, *models.ConversationSummary, int, error)
	MarkConversationRead(ctx context.Context, actorID int64, conversationID int64) ([]int64, error)
	MarkMessageRead(ctx context.Context, actorID int64, conversationID int64, messageID int64) (bool, error)
	EditMessage(ctx context.Context, actorID int64, messageID int64, content string) (*models.MessageDetail, error)
	DeleteMessage(ctx context.Context, actorID int64, messageID int64) error
	Stats(ctx context.Context, actorID int64) (*models.ChatStats, error)
	ListActiveConversationIDs(ctx context.Context, userID int64) ([]int64, error)
}

type participantDirectory interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

type ChatHandler struct {
	service   chatApplicationService
	directory participantDirectory
	hub       *chatws.Hub
	jwtSecret string
}

func NewChatHandler(
	service chatApplicationService,
	directory participantDirectory,
	hub *chatws.Hub,
	jwtSecret string,
) *ChatHandler {
	return &ChatHandler{
		service:   service,
		directory: directory,
		hub:       hub,
		jwtSecret: jwtSecret,
	}
}

type createConversationRequest struct {
	ProjectID int64 `json:"project_id"`
	TradieID  int64 `json:"tradie_id"`
	BuilderID int64 `json:"builder_id"`
}

type sendMessageRequest struct {
	MessageType  string `json:"message_type"`
	Content      string `json:"content"`
	DocumentURL  string `json:"document_url"`
	DocumentName string `json:"document_name"`
	DocumentSize int64  `json:"document_size"`
}

type editMessageRequest struct {
	Content string `json:"content"`
}

func (h *ChatHandler) CreateConversation(c *fiber.Ctx) error {
	if _, err := parseActorID(c); err != nil {
		return sendResponse(c, fiber.StatusUnauthorized, false, chatHeading, "Invalid token", nil)
	}

	var req createConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return sendResponse(c, fiber.StatusUnprocessableEntity, false, chatHeading, "Invalid request body", nil)
	}

	summary, created, err := h.service.CreateConversation(c.Context(), services.CreateConversationInput{
		ProjectID: req.ProjectID,
		TradieID:  req.TradieID,
		BuilderID: req.BuilderID,
	})
	if err != nil {
		return mapChatError(c, err)
	}

	if !created {
		return sendResponse(c, fiber.StatusOK, true, chatHeading, "Chat already exists", summary)
	}
	return sendResponse(c, fiber.StatusCreated, true, chatHeading, "Chat created", summary)
}

func (h *ChatHandler) ListConversations(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return sendResponse(c, fiber.StatusUnauthorized, false, chatHeading, "Invalid token", nil)
	}

	status := c.Query("status", models.ConversationActive)
	var projectID int64
	if raw := c.Query("project_id"); raw != "" {
		projectID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || projectID <= 0 {
			return sendResponse(c, fiber.StatusUnprocessableEntity, false, chatHeading, "Invalid project ID", nil)
		}
	}

	page := parsePositiveInt(c.Query("page"), 1)
	limit := parsePositiveInt(c.Query("limit"), defaultChatPageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	chats, total, err := h.service.ListConversations(c.Context(), actorID, status, projectID, page, limit)
	if err != nil {
		return mapChatError(c, err)
	}

	return sendResponse(c, fiber.StatusOK, true, chatHeading, "Chat list success", fiber.Map{
		"chats":      chats,
		"pagination": buildPaginationMeta(page, limit, total),
	})
}

func (h *ChatHandler) GetConversation(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return sendResponse(c, fiber.StatusUnauthorized, false, chatHeading, "Invalid token", nil)
	}

	conversationID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || conversationID <= 0 {
		return sendResponse(c, fiber.StatusUnprocessableEntity, false, chatHeading, "Invalid chat ID", nil)
	}

	summary, err := h.service.GetConversation(c.Context(), actorID, conversationID)
	if err != nil {
		return mapChatError(c, err)
	}

	return sendResponse(c, fiber.StatusOK, true, chatHeading, "Chat found", summary)
}

func (h *ChatHandler) GetStats(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return sendResponse(c, fiber.StatusUnauthorized, false, chatHeading, "Invalid token", nil)
	}

	stats, err := h.service.Stats(c.Context(), actorID)
	if err != nil {
		return mapChatError(c, err)
	}

	return sendResponse(c, fiber.StatusOK, true, chatHeading, "Chat stats success", stats)
}

func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return sendResponse(c, fiber.StatusUnauthorized, false, chatHeading, "Invalid token", nil)
	}

	conversationID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || conversationID <= 0 {
		return sendResponse(c, fiber.StatusUnprocessableEntity, false, chatHeading, "Invalid chat ID", nil)
	}

	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return sendResponse(c, fiber.StatusUnprocessableEntity, false, chatHeading, "Invalid request body", nil)
	}

	delivery, err := h.service.SendMessage(c.Context(), actorID, conversationID, services.SendMessageInput{
		Type:         req.MessageType,
		Content:      req.Content,
		DocumentURL:  req.DocumentURL,
		DocumentName: req.DocumentName,
		DocumentSize: req.DocumentSize,
	})
	if err != nil {
		return mapChatError(c, err)
	}

	return sendResponse(c, fiber.StatusCreated, true, chatHeading, "Message sent", delivery.Message)
}

func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return sendResponse(c, fiber.StatusUnauthorized, false, chatHeading, "Invalid token", nil)
	}

	conversationID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || conversationID <= 0 {
		return sendResponse(c, fiber.StatusUnprocessableEntity, false, chatHeading, "Invalid chat ID", nil)
	}

	page := parsePositiveInt(c.Query("page"), 1)
	limit := parsePositiveInt(c.Query("limit"), defaultMessagePageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	messages, chat, total, err := h.service.ListMessages(c.Context(), actorID, conversationID, page, limit)
	if err != nil {
		return mapChatError(c, err)
	}

	return sendResponse(c, fiber.StatusOK, true, chatHeading, "Chat messages list success", fiber.Map{
		"messages": messages,
		"chat": fiber.Map{
			"id":      chat.ID,
			"tradie":  chat.Tradie,
			"builder": chat.Builder,
		},
		"pagination": buildPaginationMeta(page, limit, total),
	})
}

func (h *ChatHandler) MarkMessagesRead(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return sendResponse(c, fiber.StatusUnauthorized, false, chatHeading, "Invalid token", nil)
	}

	conversationID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || conversationID <= 0 {
		return sendResponse(c, fiber.StatusUnprocessableEntity, false, chatHeading, "Invalid chat ID", nil)
	}

	ids, err := h.service.MarkConversationRead(c.Context(), actorID, conversationID)
	if err != nil {
		return mapChatError(c, err)
	}

	return sendResponse(c, fiber.StatusOK, true, chatHeading, "Messages marked as read", fiber.Map{
		"chat_id":     conversationID,
		"message_ids": ids,
		"timestamp":   services.NowTimestamp(),
	})
}

func (h *ChatHandler) EditMessage(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return sendResponse(c, fiber.StatusUnauthorized, false, chatHeading, "Invalid token", nil)
	}

	messageID, err := strconv.ParseInt(c.Params("messageId"), 10, 64)
	if err != nil || messageID <= 0 {
		return sendResponse(c, fiber.StatusUnprocessableEntity, false, chatHeading, "Invalid message ID", nil)
	}

	var req editMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return sendResponse(c, fiber.StatusUnprocessableEntity, false, chatHeading, "Invalid request body", nil)
	}

	message, err := h.service.EditMessage(c.Context(), actorID, messageID, req.Content)
	if err != nil {
		return mapChatError(c, err)
	}

	return sendResponse(c, fiber.StatusOK, true, chatHeading, "Message updated", message)
}

func (h *ChatHandler) DeleteMessage(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return sendResponse(c, fiber.StatusUnauthorized, false, chatHeading, "Invalid token", nil)
	}

	messageID, err := strconv.ParseInt(c.Params("messageId"), 10, 64)
	if err != nil || messageID <= 0 {
		return sendResponse(c, fiber.StatusUnprocessableEntity, false, chatHeading, "Invalid message ID", nil)
	}

	if err := h.service.DeleteMessage(c.Context(), actorID, messageID); err != nil {
		return mapChatError(c, err)
	}

	return sendResponse(c, fiber.StatusOK, true, chatHeading, "Message deleted", nil)
}

// WebSocketAuth refuses the upgrade before any event can be processed when
// the bearer credential is missing or invalid.
func (h *ChatHandler) WebSocketAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return sendResponse(c, fiber.StatusUpgradeRequired, false, chatHeading, "WebSocket upgrade required", nil)
	}

	claims, err := h.parseWSClaims(c)
	if err != nil {
		return sendResponse(c, fiber.StatusUnauthorized, false, chatHeading, "Invalid or expired token", nil)
	}

	c.Locals("user_id", claims.UserID)
	c.Locals("role", claims.Role)
	return c.Next()
}

func (h *ChatHandler) HandleWebSocket(conn *websocket.Conn) {
	rawUserID, _ := conn.Locals("user_id").(string)
	userID, err := strconv.ParseInt(rawUserID, 10, 64)
	if err != nil || userID <= 0 {
		_ = conn.Close()
		return
	}

	var name string
	if user, err := h.directory.GetByID(context.Background(), userID); err == nil {
		name = user.DisplayName()
	} else {
		log.Printf("chat ws: resolve user %d: %v", userID, err)
	}

	client := chatws.NewClient(h.hub, conn, userID, uuid.NewString(), name)

	h.hub.Register(client)
	go client.WritePump()
	client.Announce(h.service)
	client.ReadPump(h.service)
}

func (h *ChatHandler) parseWSClaims(c *fiber.Ctx) (*utils.Claims, error) {
	tokenString := strings.TrimSpace(c.Query("token"))
	if tokenString == "" {
		authHeader := strings.TrimSpace(c.Get("Authorization"))
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}
	}

	if tokenString == "" {
		return nil, errors.New("missing token")
	}

	return utils.ValidateToken(tokenString, h.jwtSecret)
}

func parseActorID(c *fiber.Ctx) (int64, error) {
	raw, ok := c.Locals("user_id").(string)
	if !ok {
		return 0, errors.New("missing user id")
	}
	actorID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || actorID <= 0 {
		return 0, errors.New("invalid user id")
	}
	return actorID, nil
}

func mapChatError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return sendResponse(c, fiber.StatusUnprocessableEntity, false, chatHeading, "Invalid request", nil)
	case errors.Is(err, services.ErrRoleMismatch):
		return sendResponse(c, fiber.StatusUnprocessableEntity, false, chatHeading, "Participant role mismatch", nil)
	case errors.Is(err, services.ErrProjectNotFound):
		return sendResponse(c, fiber.StatusNotFound, false, chatHeading, "Project not found", nil)
	case errors.Is(err, services.ErrUserNotFound):
		return sendResponse(c, fiber.StatusNotFound, false, chatHeading, "User not found", nil)
	case errors.Is(err, services.ErrMessageNotFound):
		return sendResponse(c, fiber.StatusNotFound, false, chatHeading, "Message not found", nil)
	case errors.Is(err, services.ErrForbidden):
		return sendResponse(c, fiber.StatusForbidden, false, chatHeading, "Forbidden", nil)
	case errors.Is(err, pgx.ErrNoRows):
		return sendResponse(c, fiber.StatusNotFound, false, chatHeading, "Chat not found", nil)
	default:
		log.Printf("chat handler: %v", err)
		return sendResponse(c, fiber.StatusInternalServerError, false, chatHeading, "Something went wrong, please try again later.", nil)
	}
}
