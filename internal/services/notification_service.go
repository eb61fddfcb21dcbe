package services

import (
	"context"
	"log"
)

// Notification describes a push event handed to the external notification
// collaborator. Delivery is best-effort; failures never affect the chat
// operation that produced it.
type Notification struct {
	Type        string            `json:"type"`
	RecipientID int64             `json:"recipient_id"`
	SenderID    int64             `json:"sender_id"`
	ProjectID   int64             `json:"project_id"`
	ChatID      int64             `json:"chat_id"`
	Meta        map[string]string `json:"meta,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier is the default Notifier: it records the dispatch and does
// nothing else. A real push provider replaces it in production wiring.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n Notification) error {
	log.Printf("notify: %s to user %d (chat %d, project %d)", n.Type, n.RecipientID, n.ChatID, n.ProjectID)
	return nil
}
