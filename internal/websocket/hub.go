package chatws

import "log"

// Hub owns room membership and fans events out to connections. Clients are
// grouped per user (every user gets a personal room across all their
// connections) and per conversation room they have explicitly joined. All
// membership state is mutated only on the Run goroutine.
type Hub struct {
	clients map[int64]map[*Client]struct{}
	rooms   map[int64]map[*Client]struct{}

	presence *PresenceRegistry

	register    chan *Client
	unregister  chan *Client
	subscribe   chan subscription
	unsubscribe chan subscription
	broadcast   chan *delivery
}

type subscription struct {
	client *Client
	chatID int64
}

// delivery addresses one encoded frame: any number of conversation rooms,
// optionally one user's personal room, optionally excluding a connection.
type delivery struct {
	roomIDs []int64
	userID  int64
	exclude *Client
	payload []byte
}

func NewHub() *Hub {
	return &Hub{
		clients:     make(map[int64]map[*Client]struct{}),
		rooms:       make(map[int64]map[*Client]struct{}),
		presence:    NewPresenceRegistry(),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		subscribe:   make(chan subscription),
		unsubscribe: make(chan subscription),
		broadcast:   make(chan *delivery, 64),
	}
}

func (h *Hub) Presence() *PresenceRegistry {
	return h.presence
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			set, ok := h.clients[client.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.userID] = set
			}
			set[client] = struct{}{}

		case client := <-h.unregister:
			h.dropClient(client)
			h.presence.SetOffline(client.connID)

		case sub := <-h.subscribe:
			room, ok := h.rooms[sub.chatID]
			if !ok {
				room = make(map[*Client]struct{})
				h.rooms[sub.chatID] = room
			}
			room[sub.client] = struct{}{}
			sub.client.addRoom(sub.chatID)

		case sub := <-h.unsubscribe:
			h.removeFromRoom(sub.client, sub.chatID)

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

func (h *Hub) Join(client *Client, chatID int64) {
	h.subscribe <- subscription{client: client, chatID: chatID}
}

func (h *Hub) Leave(client *Client, chatID int64) {
	h.unsubscribe <- subscription{client: client, chatID: chatID}
}

// BroadcastToRoom fans a frame out to every connection joined to the
// conversation room, optionally excluding one connection.
func (h *Hub) BroadcastToRoom(chatID int64, exclude *Client, payload []byte) {
	h.broadcast <- &delivery{roomIDs: []int64{chatID}, exclude: exclude, payload: payload}
}

// BroadcastToRooms fans one frame out to several conversation rooms at once,
// used for presence updates across a user's active conversations.
func (h *Hub) BroadcastToRooms(chatIDs []int64, payload []byte) {
	if len(chatIDs) == 0 {
		return
	}
	h.broadcast <- &delivery{roomIDs: chatIDs, payload: payload}
}

// BroadcastToRoomAndUser fans a frame out to the conversation room and to
// every connection in the user's personal room, delivering at most once per
// connection. Used so a recipient who has not joined the conversation room
// still hears about new messages.
func (h *Hub) BroadcastToRoomAndUser(chatID int64, userID int64, payload []byte) {
	h.broadcast <- &delivery{roomIDs: []int64{chatID}, userID: userID, payload: payload}
}

func (h *Hub) deliver(msg *delivery) {
	seen := make(map[*Client]struct{})

	for _, chatID := range msg.roomIDs {
		for client := range h.rooms[chatID] {
			if client == msg.exclude {
				continue
			}
			if _, dup := seen[client]; dup {
				continue
			}
			seen[client] = struct{}{}
			h.send(client, msg.payload)
		}
	}

	if msg.userID != 0 {
		for client := range h.clients[msg.userID] {
			if client == msg.exclude {
				continue
			}
			if _, dup := seen[client]; dup {
				continue
			}
			seen[client] = struct{}{}
			h.send(client, msg.payload)
		}
	}
}

func (h *Hub) send(client *Client, payload []byte) {
	select {
	case client.send <- payload:
	default:
		// Slow consumer: drop the connection rather than block the hub.
		log.Printf("chat hub: dropping slow connection %s (user %d)", client.connID, client.userID)
		h.dropClient(client)
		h.presence.SetOffline(client.connID)
	}
}

func (h *Hub) dropClient(client *Client) {
	set, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, exists := set[client]; !exists {
		return
	}
	delete(set, client)
	client.closeSend()
	if len(set) == 0 {
		delete(h.clients, client.userID)
	}

	for _, chatID := range client.roomIDs() {
		h.removeFromRoom(client, chatID)
	}
}

func (h *Hub) removeFromRoom(client *Client, chatID int64) {
	room, ok := h.rooms[chatID]
	if !ok {
		return
	}
	delete(room, client)
	client.removeRoom(chatID)
	if len(room) == 0 {
		delete(h.rooms, chatID)
	}
}
