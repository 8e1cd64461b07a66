// Package dispatch binds durable writes to live fan-out: once the
// ledger has persisted an effect, the dispatcher pushes the matching
// event to the connection registry. Delivery is at-least-once and
// best-effort; durable state is the source of truth and clients
// recover missed events by re-fetching history.
package dispatch

import (
	"syncup-service/internal/models"
	"syncup-service/internal/observability"
	"syncup-service/internal/ws"
)

// Dispatcher fans persisted effects out over the hub.
type Dispatcher struct {
	hub *ws.Hub
}

// New constructs a Dispatcher.
func New(hub *ws.Hub) *Dispatcher {
	return &Dispatcher{hub: hub}
}

// MessageCreated delivers message:new to every connection in the chat
// room plus the personal channels of all participants except the
// sender, deduplicated by connection so no socket sees it twice even
// when it qualifies via both paths.
func (d *Dispatcher) MessageCreated(chat models.Chat, msg models.Message) {
	recipients := make([]int64, 0, len(chat.Participants))
	for _, id := range chat.Participants {
		if id != msg.SenderID {
			recipients = append(recipients, id)
		}
	}
	d.hub.FanOutChat(chat.ID, recipients, models.Event{
		Type:    models.EventMessageNew,
		Message: &msg,
	})
	observability.IncDispatch(models.EventMessageNew)
}

// MessageRead broadcasts a read receipt to the chat room.
func (d *Dispatcher) MessageRead(chatID, userID int64) {
	d.hub.BroadcastRoom(chatID, models.Event{
		Type: models.EventMessageRead,
		Read: &models.ReadReceipt{ChatID: chatID, UserID: userID},
	})
	observability.IncDispatch(models.EventMessageRead)
}

// MessageDeleted broadcasts a soft-delete notice to the chat room.
func (d *Dispatcher) MessageDeleted(chatID, messageID, deletedBy int64, byAdmin bool) {
	d.hub.BroadcastRoom(chatID, models.Event{
		Type: models.EventMessageDeleted,
		Deleted: &models.MessageDeleted{
			ID:             messageID,
			ChatID:         chatID,
			DeletedBy:      deletedBy,
			DeletedByAdmin: byAdmin,
		},
	})
	observability.IncDispatch(models.EventMessageDeleted)
}

// ChatCleared broadcasts a hard-clear notice to the chat room.
func (d *Dispatcher) ChatCleared(chatID int64) {
	d.hub.BroadcastRoom(chatID, models.Event{
		Type: models.EventChatCleared,
		Chat: &models.ChatNotice{ChatID: chatID},
	})
	observability.IncDispatch(models.EventChatCleared)
}

// ChatDeleted tells the room its conversation is gone so clients can
// leave and drop local state.
func (d *Dispatcher) ChatDeleted(chatID int64) {
	d.hub.BroadcastRoom(chatID, models.Event{
		Type: models.EventChatDeleted,
		Chat: &models.ChatNotice{ChatID: chatID},
	})
	observability.IncDispatch(models.EventChatDeleted)
}
