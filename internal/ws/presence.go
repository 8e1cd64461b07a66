package ws

import (
	"context"
	"log"

	"syncup-service/internal/models"
	"syncup-service/internal/repositories"
)

// PresenceTracker derives online/offline from connection lifecycle.
// The hub keeps a connection count per user; the flag flips Online on
// the first connection and Offline only when the count reaches zero.
type PresenceTracker struct {
	hub   *Hub
	users repositories.UserRepository
}

// NewPresenceTracker constructs a PresenceTracker.
func NewPresenceTracker(hub *Hub, users repositories.UserRepository) *PresenceTracker {
	return &PresenceTracker{hub: hub, users: users}
}

// ConnectionOpened registers the connection and broadcasts the
// Offline→Online transition if this is the user's first socket.
func (t *PresenceTracker) ConnectionOpened(ctx context.Context, conn *Connection) {
	wentOnline := t.hub.Register(conn)
	if !wentOnline {
		return
	}
	t.setOnline(ctx, conn.UserID, true)
}

// ConnectionClosed deregisters the connection and broadcasts the
// Online→Offline transition once the user's last socket is gone.
func (t *PresenceTracker) ConnectionClosed(ctx context.Context, conn *Connection) {
	wentOffline := t.hub.Unregister(conn)
	if !wentOffline {
		return
	}
	t.setOnline(ctx, conn.UserID, false)
}

func (t *PresenceTracker) setOnline(ctx context.Context, userID int64, online bool) {
	// The stored flag is a derived convenience for list views; the
	// broadcast goes out even if the write fails.
	if err := t.users.SetOnline(ctx, userID, online); err != nil {
		log.Printf("presence: persist online=%v user=%d: %v", online, userID, err)
	}
	t.hub.BroadcastAll(models.Event{
		Type:     models.EventPresenceUpdate,
		Presence: &models.PresenceUpdate{UserID: userID, IsOnline: online},
	})
}
