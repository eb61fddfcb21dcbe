package chatws

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arsalanrobotronics/famaserve-app-backend/internal/models"
	"github.com/arsalanrobotronics/famaserve-app-backend/internal/services"
)

type stubGatewayService struct {
	activeIDs []int64
}

func (s *stubGatewayService) GetConversationForParticipant(_ context.Context, _ int64, _ int64) (*models.Conversation, error) {
	return nil, nil
}

func (s *stubGatewayService) SendMessage(_ context.Context, _ int64, _ int64, _ services.SendMessageInput) (*services.ChatDelivery, error) {
	return nil, nil
}

func (s *stubGatewayService) MarkMessageRead(_ context.Context, _ int64, _ int64, _ int64) (bool, error) {
	return false, nil
}

func (s *stubGatewayService) MarkConversationRead(_ context.Context, _ int64, _ int64) ([]int64, error) {
	return nil, nil
}

func (s *stubGatewayService) ListActiveConversationIDs(_ context.Context, _ int64) ([]int64, error) {
	return s.activeIDs, nil
}

func drainFrame(t *testing.T, client *Client) Event {
	t.Helper()
	var frame []byte
	select {
	case frame = <-client.send:
	default:
		t.Fatal("expected a queued frame")
	}
	var event Event
	if err := json.Unmarshal(frame, &event); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	return event
}

func TestAnnounceSnapshotIncludesSelf(t *testing.T) {
	hub := NewHub()
	client := NewClient(hub, nil, 42, "conn-a", "Tess")

	client.Announce(&stubGatewayService{})

	event := drainFrame(t, client)
	assert.Equal(t, EventOnlineUsers, event.Type)

	var entries []PresenceEntry
	if err := json.Unmarshal(event.Payload, &entries); err != nil {
		t.Fatalf("Unmarshal payload: %v", err)
	}
	assert.Len(t, entries, 1)
	assert.Equal(t, int64(42), entries[0].UserID)
	assert.Equal(t, StatusOnline, entries[0].Status)
}

func TestAnnounceSnapshotListsEarlierConnections(t *testing.T) {
	hub := NewHub()
	hub.presence.SetOnline(8, "conn-b")

	client := NewClient(hub, nil, 42, "conn-a", "Tess")
	client.Announce(&stubGatewayService{})

	event := drainFrame(t, client)
	var entries []PresenceEntry
	if err := json.Unmarshal(event.Payload, &entries); err != nil {
		t.Fatalf("Unmarshal payload: %v", err)
	}

	ids := make([]int64, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.UserID)
	}
	assert.ElementsMatch(t, []int64{8, 42}, ids)
}
