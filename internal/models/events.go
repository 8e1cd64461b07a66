package models

// Realtime event names. Server-to-client unless noted.
const (
	EventMessageNew     = "message:new"
	EventMessageRead    = "message:read"
	EventMessageDeleted = "message:deleted"
	EventChatCleared    = "chat:cleared"
	EventChatDeleted    = "chat:deleted"
	EventPresenceUpdate = "presence:update"
	EventUserUpdate     = "user:update"
	EventTyping         = "typing"
	EventTypingStop     = "typing:stop"

	// client-to-server only
	EventJoin  = "join"
	EventLeave = "leave"
)

// Event is the JSON frame pushed to websocket clients. Exactly one of
// the payload pointers is set, depending on Type.
type Event struct {
	Type     string           `json:"type"`
	Message  *Message         `json:"message,omitempty"`
	Read     *ReadReceipt     `json:"read,omitempty"`
	Deleted  *MessageDeleted  `json:"deleted,omitempty"`
	Chat     *ChatNotice      `json:"chat,omitempty"`
	Presence *PresenceUpdate  `json:"presence,omitempty"`
	User     *UserUpdate      `json:"user,omitempty"`
	Typing   *TypingIndicator `json:"typing,omitempty"`
}

// ClientFrame is what a connected client may send over the socket.
type ClientFrame struct {
	Type      string `json:"type"`
	ChatID    int64  `json:"chat_id"`
	AvatarURL string `json:"avatar_url"`
}

type ReadReceipt struct {
	ChatID int64 `json:"chat"`
	UserID int64 `json:"user_id"`
}

type MessageDeleted struct {
	ID             int64 `json:"id"`
	ChatID         int64 `json:"chat"`
	DeletedBy      int64 `json:"deleted_by"`
	DeletedByAdmin bool  `json:"deleted_by_admin"`
}

type ChatNotice struct {
	ChatID int64 `json:"chat"`
}

type PresenceUpdate struct {
	UserID   int64 `json:"user_id"`
	IsOnline bool  `json:"is_online"`
}

type UserUpdate struct {
	UserID    int64  `json:"user_id"`
	AvatarURL string `json:"avatar_url"`
}

type TypingIndicator struct {
	ChatID int64 `json:"chat_id"`
	UserID int64 `json:"user_id"`
}
