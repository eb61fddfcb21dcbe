package chatws

import (
	"encoding/json"
	"time"

	"github.com/arsalanrobotronics/famaserve-app-backend/internal/models"
	"github.com/arsalanrobotronics/famaserve-app-backend/internal/services"
)

// Client -> server event types.
const (
	EventJoinChat         = "join_chat"
	EventLeaveChat        = "leave_chat"
	EventSendMessage      = "send_message"
	EventTypingStart      = "typing_start"
	EventTypingStop       = "typing_stop"
	EventMessageDelivered = "message_delivered"
	EventMessageRead      = "message_read"
	EventMarkMessagesRead = "mark_messages_read"
	EventUpdateStatus     = "update_status"
)

// Server -> client event types.
const (
	EventJoinedChat          = "joined_chat"
	EventLeftChat            = "left_chat"
	EventNewMessage          = "new_message"
	EventMessageSent         = "message_sent"
	EventUserTyping          = "user_typing"
	EventMessageStatusUpdate = "message_status_update"
	EventMessagesRead        = "messages_read"
	EventMessagesMarkedRead  = "messages_marked_read"
	EventUserStatusUpdate    = "user_status_update"
	EventOnlineUsers         = "online_users"
	EventError               = "error"
)

// Event is the envelope every frame carries in both directions. Payload
// shape is determined by Type and validated before dispatch.
type Event struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// --- client -> server payloads ---

type ChatRef struct {
	ChatID int64 `json:"chat_id"`
}

type MessageRef struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}

type SendMessagePayload struct {
	ChatID       int64  `json:"chat_id"`
	MessageType  string `json:"message_type"`
	Content      string `json:"content"`
	DocumentURL  string `json:"document_url"`
	DocumentName string `json:"document_name"`
	DocumentSize int64  `json:"document_size"`
}

type StatusChangePayload struct {
	Status string `json:"status"`
}

// --- server -> client payloads ---

type MessageSentPayload struct {
	Success bool                  `json:"success"`
	Message *models.MessageDetail `json:"message"`
}

type TypingPayload struct {
	ChatID   int64  `json:"chat_id"`
	UserID   int64  `json:"user_id"`
	UserName string `json:"user_name"`
	IsTyping bool   `json:"is_typing"`
}

type MessageStatusPayload struct {
	ChatID      int64   `json:"chat_id"`
	MessageIDs  []int64 `json:"message_ids"`
	Status      string  `json:"status"`
	ByUserID    int64   `json:"by_user_id"`
	DeliveredAt string  `json:"delivered_at,omitempty"`
	ReadAt      string  `json:"read_at,omitempty"`
}

type MessagesReadPayload struct {
	ChatID       int64   `json:"chat_id"`
	MessageIDs   []int64 `json:"message_ids"`
	ReadByUserID int64   `json:"read_by_user_id"`
	ReadAt       string  `json:"read_at"`
}

type UserStatusPayload struct {
	UserID int64  `json:"user_id"`
	Status string `json:"status"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// EncodeEvent wraps a payload in the envelope with the current timestamp and
// marshals the whole frame.
func EncodeEvent(eventType string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}

	return json.Marshal(Event{
		Type:      eventType,
		Payload:   raw,
		Timestamp: services.FormatChatTimestamp(time.Now()),
	})
}
