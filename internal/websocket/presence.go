package chatws

import (
	"sync"
	"time"
)

const (
	StatusOnline  = "online"
	StatusAway    = "away"
	StatusBusy    = "busy"
	StatusOffline = "offline"
)

// PresenceEntry is the ephemeral per-user connection state. It is never
// persisted and is rebuilt from live connections after a restart.
type PresenceEntry struct {
	UserID       int64     `json:"user_id"`
	ConnectionID string    `json:"connection_id"`
	Status       string    `json:"status"`
	LastSeen     time.Time `json:"last_seen"`
}

// PresenceRegistry tracks one logical status slot per user plus a reverse
// map from connection id to user. A second connection for the same user
// overwrites the first entry's slot; the previous connection's teardown then
// no-ops because it no longer owns the slot.
type PresenceRegistry struct {
	mu     sync.RWMutex
	byUser map[int64]PresenceEntry
	byConn map[string]int64
}

func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{
		byUser: make(map[int64]PresenceEntry),
		byConn: make(map[string]int64),
	}
}

func (r *PresenceRegistry) SetOnline(userID int64, connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byUser[userID] = PresenceEntry{
		UserID:       userID,
		ConnectionID: connectionID,
		Status:       StatusOnline,
		LastSeen:     time.Now(),
	}
	r.byConn[connectionID] = userID
}

// SetStatus applies an explicit status change. Offline is only reachable via
// disconnection, never by request. Unknown users are a no-op.
func (r *PresenceRegistry) SetStatus(userID int64, status string) bool {
	switch status {
	case StatusOnline, StatusAway, StatusBusy:
	default:
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.byUser[userID]
	if !ok {
		return false
	}
	entry.Status = status
	entry.LastSeen = time.Now()
	r.byUser[userID] = entry
	return true
}

// SetOffline marks the owning user offline and drops the reverse-map entry.
// If another connection has since taken over the user's slot, only the
// reverse-map entry is removed.
func (r *PresenceRegistry) SetOffline(connectionID string) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byConn[connectionID]
	if !ok {
		return 0, false
	}
	delete(r.byConn, connectionID)

	entry, ok := r.byUser[userID]
	if !ok || entry.ConnectionID != connectionID {
		return userID, false
	}
	entry.Status = StatusOffline
	entry.LastSeen = time.Now()
	r.byUser[userID] = entry
	return userID, true
}

func (r *PresenceRegistry) Get(userID int64) (PresenceEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.byUser[userID]
	return entry, ok
}

// ListOnline snapshots every user currently in the online state.
func (r *PresenceRegistry) ListOnline() []PresenceEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	online := make([]PresenceEntry, 0, len(r.byUser))
	for _, entry := range r.byUser {
		if entry.Status == StatusOnline {
			online = append(online, entry)
		}
	}
	return online
}
