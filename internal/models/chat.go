package models

import "time"

const (
	ConversationActive   = "active"
	ConversationClosed   = "closed"
	ConversationArchived = "archived"
)

const (
	MessageTypeText     = "text"
	MessageTypeDocument = "document"
	MessageTypeImage    = "image"
)

type Conversation struct {
	ID            int64     `json:"id"`
	ProjectID     int64     `json:"project_id"`
	TradieID      int64     `json:"tradie_id"`
	BuilderID     int64     `json:"builder_id"`
	Status        string    `json:"status"`
	LastMessage   *string   `json:"last_message"`
	LastMessageAt time.Time `json:"last_message_at"`
	TradieUnread  int       `json:"tradie_unread"`
	BuilderUnread int       `json:"builder_unread"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// OtherParticipant returns the participant on the opposite side of the
// conversation from userID.
func (c *Conversation) OtherParticipant(userID int64) int64 {
	if c.TradieID == userID {
		return c.BuilderID
	}
	return c.TradieID
}

// UnreadFor returns the unread counter belonging to userID.
func (c *Conversation) UnreadFor(userID int64) int {
	if c.TradieID == userID {
		return c.TradieUnread
	}
	return c.BuilderUnread
}

type ConversationSummary struct {
	Conversation
	Project     *ProjectRef  `json:"project,omitempty"`
	Tradie      *Participant `json:"tradie,omitempty"`
	Builder     *Participant `json:"builder,omitempty"`
	UnreadCount int          `json:"unread_count"`
}

type Message struct {
	ID             int64      `json:"id"`
	ConversationID int64      `json:"conversation_id"`
	SenderID       int64      `json:"sender_id"`
	Type           string     `json:"message_type"`
	Content        *string    `json:"content,omitempty"`
	DocumentURL    *string    `json:"document_url,omitempty"`
	DocumentName   *string    `json:"document_name,omitempty"`
	DocumentSize   *int64     `json:"document_size,omitempty"`
	IsRead         bool       `json:"is_read"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	IsEdited       bool       `json:"is_edited"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
	IsDeleted      bool       `json:"is_deleted"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// MessageDetail is a message with sender and receiver identity resolved for
// immediate display.
type MessageDetail struct {
	Message
	Sender   *Participant `json:"sender,omitempty"`
	Receiver *Participant `json:"receiver,omitempty"`
}

type ChatStats struct {
	TotalChats          int `json:"total_chats"`
	ActiveChats         int `json:"active_chats"`
	TotalUnreadMessages int `json:"total_unread_messages"`
}
