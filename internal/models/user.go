package models

import "time"

// User is a locally-known account. is_online is derived from the
// connection registry, not client reported.
type User struct {
	ID        int64     `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	FullName  string    `db:"full_name" json:"full_name"`
	AvatarURL string    `db:"avatar_url" json:"avatar_url"`
	IsOnline  bool      `db:"is_online" json:"is_online"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// UserRef carries the display fields attached to a message sender.
type UserRef struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FullName  string `json:"full_name"`
	AvatarURL string `json:"avatar_url"`
}
