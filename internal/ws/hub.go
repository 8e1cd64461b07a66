package ws

import (
	"encoding/json"
	"log"
	"sync"

	"syncup-service/internal/models"
	"syncup-service/internal/observability"
)

// Hub is the connection registry: it tracks live connections, the
// rooms they joined (chat:<id>), each user's personal channel
// (user:<id>) and a per-user connection count for presence.
//
// Room membership is purely a delivery-routing concern; read
// authorization happens at the REST layer.
type Hub struct {
	mu        sync.RWMutex
	conns     map[string]*Connection
	rooms     map[int64]map[string]*Connection
	connRooms map[string]map[int64]struct{}
	userConns map[int64]map[string]*Connection
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		conns:     make(map[string]*Connection),
		rooms:     make(map[int64]map[string]*Connection),
		connRooms: make(map[string]map[int64]struct{}),
		userConns: make(map[int64]map[string]*Connection),
	}
}

// Register adds a connection and, for authenticated sockets, attaches
// it to the user's personal channel. Reports whether the user went
// from zero to one live connection.
func (h *Hub) Register(conn *Connection) (wentOnline bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.conns[conn.ID] = conn
	h.connRooms[conn.ID] = make(map[int64]struct{})

	if conn.UserID == 0 {
		return false
	}
	channel := h.userConns[conn.UserID]
	if channel == nil {
		channel = make(map[string]*Connection)
		h.userConns[conn.UserID] = channel
	}
	wentOnline = len(channel) == 0
	channel[conn.ID] = conn
	return wentOnline
}

// Unregister drops the connection from every room and from the user's
// personal channel. Reports whether the user's last connection closed.
// Safe to call more than once for the same connection.
func (h *Hub) Unregister(conn *Connection) (wentOffline bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[conn.ID]; !ok {
		return false
	}
	delete(h.conns, conn.ID)

	for chatID := range h.connRooms[conn.ID] {
		h.removeFromRoomLocked(chatID, conn.ID)
	}
	delete(h.connRooms, conn.ID)

	if conn.UserID == 0 {
		return false
	}
	if channel, ok := h.userConns[conn.UserID]; ok {
		delete(channel, conn.ID)
		if len(channel) == 0 {
			delete(h.userConns, conn.UserID)
			return true
		}
	}
	return false
}

// Join adds the connection to a chat room. Idempotent.
func (h *Hub) Join(conn *Connection, chatID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[conn.ID]; !ok {
		return
	}
	room := h.rooms[chatID]
	if room == nil {
		room = make(map[string]*Connection)
		h.rooms[chatID] = room
	}
	room[conn.ID] = conn
	h.connRooms[conn.ID][chatID] = struct{}{}
}

// Leave removes the connection from a chat room. Idempotent.
func (h *Hub) Leave(conn *Connection, chatID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeFromRoomLocked(chatID, conn.ID)
	if memberships, ok := h.connRooms[conn.ID]; ok {
		delete(memberships, chatID)
	}
}

// BroadcastRoom sends the event to every connection in the chat room.
func (h *Hub) BroadcastRoom(chatID int64, event models.Event) {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.rooms[chatID]))
	for _, conn := range h.rooms[chatID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	h.deliver(conns, event)
}

// BroadcastRoomExcept relays the event to the room, skipping the
// originating connection. Used for typing indicators.
func (h *Hub) BroadcastRoomExcept(chatID int64, exceptConnID string, event models.Event) {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.rooms[chatID]))
	for id, conn := range h.rooms[chatID] {
		if id != exceptConnID {
			conns = append(conns, conn)
		}
	}
	h.mu.RUnlock()

	h.deliver(conns, event)
}

// BroadcastAll sends the event to every live connection. Used for
// presence and profile transitions.
func (h *Hub) BroadcastAll(event models.Event) {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.conns))
	for _, conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	h.deliver(conns, event)
}

// FanOutChat resolves the recipient set for a chat event: the union of
// the room's connections and the personal channels of the given users,
// deduplicated by connection identity so no socket receives the
// payload twice.
func (h *Hub) FanOutChat(chatID int64, userIDs []int64, event models.Event) {
	h.mu.RLock()
	targets := make(map[string]*Connection, len(h.rooms[chatID]))
	for id, conn := range h.rooms[chatID] {
		targets[id] = conn
	}
	for _, userID := range userIDs {
		for id, conn := range h.userConns[userID] {
			targets[id] = conn
		}
	}
	h.mu.RUnlock()

	conns := make([]*Connection, 0, len(targets))
	for _, conn := range targets {
		conns = append(conns, conn)
	}
	h.deliver(conns, event)
}

// UserConnectionCount reports the presence reference count for a user.
func (h *Hub) UserConnectionCount(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userConns[userID])
}

// deliver is at-least-once, best-effort: a failed write closes the
// connection and is absorbed; the reader goroutine prunes the registry.
func (h *Hub) deliver(conns []*Connection, event models.Event) {
	if len(conns) == 0 {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("ws marshal error: %v", err)
		return
	}
	for _, conn := range conns {
		if err := conn.Send(payload); err != nil {
			log.Printf("ws send error conn=%s: %v", conn.ID, err)
			observability.IncWSEvent("socket", "ws_error")
		}
	}
}

func (h *Hub) removeFromRoomLocked(chatID int64, connID string) {
	if room, ok := h.rooms[chatID]; ok {
		delete(room, connID)
		if len(room) == 0 {
			delete(h.rooms, chatID)
		}
	}
}
