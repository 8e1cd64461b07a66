package models

import "time"

// Group size bounds, creator included.
const (
	MinGroupMembers = 2
	MaxGroupMembers = 6
)

// Chat is a direct (2-party) or group (2-6 party) conversation.
// CreatedBy is immutable; for groups the creator can never be removed.
type Chat struct {
	ID            int64     `db:"id" json:"id"`
	IsGroup       bool      `db:"is_group" json:"is_group"`
	Name          string    `db:"name" json:"name"`
	AvatarURL     string    `db:"avatar_url" json:"avatar_url"`
	CreatedBy     int64     `db:"created_by" json:"created_by"`
	LastMessageAt time.Time `db:"last_message_at" json:"last_message_at"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`

	Participants []int64 `db:"-" json:"participants"`
}

// HasParticipant reports whether userID belongs to the chat.
func (c Chat) HasParticipant(userID int64) bool {
	for _, id := range c.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// ChatSummary is the list view of a chat: the chat itself plus the
// resolved members and the latest message preview.
type ChatSummary struct {
	Chat
	Members     []User   `json:"members"`
	LastMessage *Message `json:"last_message,omitempty"`
}
