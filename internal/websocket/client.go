package chatws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/jackc/pgx/v5"

	"github.com/arsalanrobotronics/famaserve-app-backend/internal/models"
	"github.com/arsalanrobotronics/famaserve-app-backend/internal/services"
)

const sendBufferSize = 32

// chatService is the slice of the chat application service the gateway
// needs. Every event handler validates participation through it before any
// state changes.
type chatService interface {
	GetConversationForParticipant(ctx context.Context, conversationID int64, actorID int64) (*models.Conversation, error)
	SendMessage(ctx context.Context, actorID int64, conversationID int64, input services.SendMessageInput) (*services.ChatDelivery, error)
	MarkMessageRead(ctx context.Context, actorID int64, conversationID int64, messageID int64) (bool, error)
	MarkConversationRead(ctx context.Context, actorID int64, conversationID int64) ([]int64, error)
	ListActiveConversationIDs(ctx context.Context, userID int64) ([]int64, error)
}

// Client is one authenticated WebSocket connection.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID int64
	connID string
	name   string

	send   chan []byte
	sendMu sync.Mutex
	closed bool

	roomsMu sync.RWMutex
	rooms   map[int64]struct{}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID int64, connID string, name string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		connID: connID,
		name:   name,
		send:   make(chan []byte, sendBufferSize),
		rooms:  make(map[int64]struct{}),
	}
}

func (c *Client) addRoom(chatID int64) {
	c.roomsMu.Lock()
	defer c.roomsMu.Unlock()
	c.rooms[chatID] = struct{}{}
}

func (c *Client) removeRoom(chatID int64) {
	c.roomsMu.Lock()
	defer c.roomsMu.Unlock()
	delete(c.rooms, chatID)
}

func (c *Client) inRoom(chatID int64) bool {
	c.roomsMu.RLock()
	defer c.roomsMu.RUnlock()
	_, ok := c.rooms[chatID]
	return ok
}

func (c *Client) roomIDs() []int64 {
	c.roomsMu.RLock()
	defer c.roomsMu.RUnlock()
	ids := make([]int64, 0, len(c.rooms))
	for id := range c.rooms {
		ids = append(ids, id)
	}
	return ids
}

// enqueue queues a frame for this connection without blocking. Frames are
// dropped once the connection is closing or its buffer is full.
func (c *Client) enqueue(payload []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Announce records the user as online, pushes the online-users snapshot to
// the new connection, and tells the user's active conversation rooms they
// came online. Presence is set here, not on the hub goroutine, so the
// snapshot always includes the connecting user themself.
func (c *Client) Announce(service chatService) {
	c.hub.presence.SetOnline(c.userID, c.connID)
	if payload, err := EncodeEvent(EventOnlineUsers, c.hub.presence.ListOnline()); err == nil {
		c.enqueue(payload)
	}
	c.broadcastStatus(service, StatusOnline)
}

// ReadPump processes inbound events for this connection until the transport
// tears down. Events are handled strictly in arrival order.
func (c *Client) ReadPump(service chatService) {
	defer func() {
		c.hub.Unregister(c)
		c.broadcastStatus(service, StatusOffline)
		_ = c.conn.Close()
	}()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var event Event
		if err := json.Unmarshal(payload, &event); err != nil {
			c.writeError("Invalid event payload")
			continue
		}

		c.handleEvent(service, &event)
	}
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func (c *Client) handleEvent(service chatService, event *Event) {
	switch event.Type {
	case EventJoinChat:
		c.handleJoin(service, event.Payload)
	case EventLeaveChat:
		c.handleLeave(event.Payload)
	case EventSendMessage:
		c.handleSendMessage(service, event.Payload)
	case EventTypingStart:
		c.handleTyping(event.Payload, true)
	case EventTypingStop:
		c.handleTyping(event.Payload, false)
	case EventMessageDelivered:
		c.handleDelivered(service, event.Payload)
	case EventMessageRead:
		c.handleMessageRead(service, event.Payload)
	case EventMarkMessagesRead:
		c.handleMarkAllRead(service, event.Payload)
	case EventUpdateStatus:
		c.handleStatusUpdate(service, event.Payload)
	default:
		c.writeError("Unsupported event type")
	}
}

func (c *Client) handleJoin(service chatService, payload json.RawMessage) {
	var ref ChatRef
	if err := json.Unmarshal(payload, &ref); err != nil || ref.ChatID <= 0 {
		c.writeError("Invalid chat ID")
		return
	}

	if _, err := service.GetConversationForParticipant(context.Background(), ref.ChatID, c.userID); err != nil {
		c.writeError(errorMessageFor(err))
		return
	}

	c.hub.Join(c, ref.ChatID)
	c.reply(EventJoinedChat, ChatRef{ChatID: ref.ChatID})
}

func (c *Client) handleLeave(payload json.RawMessage) {
	var ref ChatRef
	if err := json.Unmarshal(payload, &ref); err != nil || ref.ChatID <= 0 {
		c.writeError("Invalid chat ID")
		return
	}

	c.hub.Leave(c, ref.ChatID)
	c.reply(EventLeftChat, ChatRef{ChatID: ref.ChatID})
}

func (c *Client) handleSendMessage(service chatService, payload json.RawMessage) {
	var req SendMessagePayload
	if err := json.Unmarshal(payload, &req); err != nil || req.ChatID <= 0 {
		c.writeError("Invalid chat ID")
		return
	}

	delivery, err := service.SendMessage(context.Background(), c.userID, req.ChatID, services.SendMessageInput{
		Type:         req.MessageType,
		Content:      req.Content,
		DocumentURL:  req.DocumentURL,
		DocumentName: req.DocumentName,
		DocumentSize: req.DocumentSize,
	})
	if err != nil {
		c.writeError(errorMessageFor(err))
		return
	}

	if frame, err := EncodeEvent(EventNewMessage, delivery.Message); err == nil {
		c.hub.BroadcastToRoomAndUser(req.ChatID, delivery.RecipientID, frame)
	}
	c.reply(EventMessageSent, MessageSentPayload{Success: true, Message: delivery.Message})
}

func (c *Client) handleTyping(payload json.RawMessage, isTyping bool) {
	var ref ChatRef
	if err := json.Unmarshal(payload, &ref); err != nil || ref.ChatID <= 0 {
		c.writeError("Invalid chat ID")
		return
	}

	// Room membership implies the participant check already passed at join.
	if !c.inRoom(ref.ChatID) {
		return
	}

	frame, err := EncodeEvent(EventUserTyping, TypingPayload{
		ChatID:   ref.ChatID,
		UserID:   c.userID,
		UserName: c.name,
		IsTyping: isTyping,
	})
	if err != nil {
		return
	}
	c.hub.BroadcastToRoom(ref.ChatID, c, frame)
}

// handleDelivered relays a transient delivery acknowledgement. Nothing is
// persisted; the full room, sender included, gets the status frame so other
// devices of the same user stay in sync.
func (c *Client) handleDelivered(service chatService, payload json.RawMessage) {
	var ref MessageRef
	if err := json.Unmarshal(payload, &ref); err != nil || ref.ChatID <= 0 || ref.MessageID <= 0 {
		c.writeError("Invalid chat or message ID")
		return
	}

	if _, err := service.GetConversationForParticipant(context.Background(), ref.ChatID, c.userID); err != nil {
		c.writeError(errorMessageFor(err))
		return
	}

	now := services.NowTimestamp()
	frame, err := EncodeEvent(EventMessageStatusUpdate, MessageStatusPayload{
		ChatID:      ref.ChatID,
		MessageIDs:  []int64{ref.MessageID},
		Status:      "delivered",
		ByUserID:    c.userID,
		DeliveredAt: now,
	})
	if err != nil {
		return
	}
	c.hub.BroadcastToRoom(ref.ChatID, nil, frame)
}

func (c *Client) handleMessageRead(service chatService, payload json.RawMessage) {
	var ref MessageRef
	if err := json.Unmarshal(payload, &ref); err != nil || ref.ChatID <= 0 || ref.MessageID <= 0 {
		c.writeError("Invalid chat or message ID")
		return
	}

	updated, err := service.MarkMessageRead(context.Background(), c.userID, ref.ChatID, ref.MessageID)
	if err != nil {
		c.writeError(errorMessageFor(err))
		return
	}
	if !updated {
		// Already read (or sender's own message): no broadcast.
		return
	}

	frame, err := EncodeEvent(EventMessageStatusUpdate, MessageStatusPayload{
		ChatID:     ref.ChatID,
		MessageIDs: []int64{ref.MessageID},
		Status:     "read",
		ByUserID:   c.userID,
		ReadAt:     services.NowTimestamp(),
	})
	if err != nil {
		return
	}
	c.hub.BroadcastToRoom(ref.ChatID, nil, frame)
}

func (c *Client) handleMarkAllRead(service chatService, payload json.RawMessage) {
	var ref ChatRef
	if err := json.Unmarshal(payload, &ref); err != nil || ref.ChatID <= 0 {
		c.writeError("Invalid chat ID")
		return
	}

	ids, err := service.MarkConversationRead(context.Background(), c.userID, ref.ChatID)
	if err != nil {
		c.writeError(errorMessageFor(err))
		return
	}

	now := services.NowTimestamp()
	if frame, err := EncodeEvent(EventMessagesRead, MessagesReadPayload{
		ChatID:       ref.ChatID,
		MessageIDs:   ids,
		ReadByUserID: c.userID,
		ReadAt:       now,
	}); err == nil {
		c.hub.BroadcastToRoom(ref.ChatID, c, frame)
	}

	c.reply(EventMessagesMarkedRead, MessagesReadPayload{
		ChatID:       ref.ChatID,
		MessageIDs:   ids,
		ReadByUserID: c.userID,
		ReadAt:       now,
	})
}

func (c *Client) handleStatusUpdate(service chatService, payload json.RawMessage) {
	var req StatusChangePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		c.writeError("Invalid status payload")
		return
	}

	if !c.hub.presence.SetStatus(c.userID, req.Status) {
		c.writeError("Invalid status")
		return
	}

	c.broadcastStatus(service, req.Status)
}

// broadcastStatus tells every active conversation room the user participates
// in about a presence change.
func (c *Client) broadcastStatus(service chatService, status string) {
	ids, err := service.ListActiveConversationIDs(context.Background(), c.userID)
	if err != nil {
		log.Printf("chat ws: list conversations for status broadcast: %v", err)
		return
	}

	frame, err := EncodeEvent(EventUserStatusUpdate, UserStatusPayload{
		UserID: c.userID,
		Status: status,
	})
	if err != nil {
		return
	}
	c.hub.BroadcastToRooms(ids, frame)
}

func (c *Client) reply(eventType string, payload any) {
	frame, err := EncodeEvent(eventType, payload)
	if err != nil {
		log.Printf("chat ws: encode %s: %v", eventType, err)
		return
	}
	c.enqueue(frame)
}

func (c *Client) writeError(message string) {
	c.reply(EventError, ErrorPayload{Message: message})
}

func errorMessageFor(err error) string {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return "Invalid message payload"
	case errors.Is(err, services.ErrForbidden), errors.Is(err, pgx.ErrNoRows):
		return "Chat not found or access denied"
	default:
		return "Something went wrong, please try again later."
	}
}
