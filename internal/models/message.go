package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"
)

// Attachment describes a file reference carried by a message. The file
// itself lives with the upload service; only metadata is stored here.
type Attachment struct {
	URL  string `json:"url"`
	Type string `json:"type"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Mime string `json:"mime"`
}

// AttachmentList stores attachments as a JSONB column.
type AttachmentList []Attachment

func (a AttachmentList) Value() (driver.Value, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(a)
}

func (a *AttachmentList) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*a = nil
		return nil
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	}
	return errors.New("attachments: unsupported scan type")
}

// Message belongs to exactly one chat. SeenBy and HiddenFor are
// union-only sets so concurrent writers never need locking. Once
// IsDeleted is set the content and attachments stay cleared for good.
type Message struct {
	ID             int64          `db:"id" json:"id"`
	ChatID         int64          `db:"chat_id" json:"chat_id"`
	SenderID       int64          `db:"sender_id" json:"sender_id"`
	Content        string         `db:"content" json:"content"`
	Attachments    AttachmentList `db:"attachments" json:"attachments"`
	SeenBy         pq.Int64Array  `db:"seen_by" json:"seen_by"`
	HiddenFor      pq.Int64Array  `db:"hidden_for" json:"-"`
	IsDeleted      bool           `db:"is_deleted" json:"is_deleted"`
	DeletedByAdmin bool           `db:"deleted_by_admin" json:"deleted_by_admin"`
	DeletedBy      *int64         `db:"deleted_by" json:"deleted_by,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`

	Sender *UserRef `db:"-" json:"sender,omitempty"`
}
