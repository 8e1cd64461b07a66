package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"syncup-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for the message ledger.
type MessageRepository interface {
	CreateMessage(ctx context.Context, chatID, senderID int64, content string, attachments models.AttachmentList) (models.Message, error)
	ListForUser(ctx context.Context, chatID, userID int64) ([]models.Message, error)
	GetMessage(ctx context.Context, messageID int64) (models.Message, error)
	LastMessage(ctx context.Context, chatID int64) (*models.Message, error)
	MarkRead(ctx context.Context, chatID, readerID int64) error
	SoftDelete(ctx context.Context, messageID, deletedBy int64, byAdmin bool) error
	HideAllForUser(ctx context.Context, chatID, userID int64) error
	PurgeChat(ctx context.Context, chatID int64) error
	PurgeChats(ctx context.Context, chatIDs []int64) (int64, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, chat_id, sender_id, content, attachments, seen_by, hidden_for, is_deleted, deleted_by_admin, deleted_by, created_at`

// CreateMessage appends a message and advances the chat's
// last_message_at watermark in the same transaction. All-or-nothing.
func (r *MessageRepo) CreateMessage(ctx context.Context, chatID, senderID int64, content string, attachments models.AttachmentList) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var msg models.Message
	if err = tx.QueryRowxContext(ctx,
		`INSERT INTO messages (chat_id, sender_id, content, attachments) VALUES ($1, $2, $3, $4) RETURNING `+messageColumns,
		chatID, senderID, content, attachments).StructScan(&msg); err != nil {
		return models.Message{}, err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE chats SET last_message_at=$2 WHERE id=$1`, chatID, msg.CreatedAt); err != nil {
		return models.Message{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// ListForUser returns the chat's messages in creation order, skipping
// any the user has cleared for themselves.
func (r *MessageRepo) ListForUser(ctx context.Context, chatID, userID int64) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages
        WHERE chat_id=$1 AND NOT ($2 = ANY(hidden_for))
        ORDER BY created_at ASC, id ASC`
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, query, chatID, userID)
	return msgs, err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// LastMessage returns the newest message of a chat, or nil if empty.
func (r *MessageRepo) LastMessage(ctx context.Context, chatID int64) (*models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE chat_id=$1 ORDER BY created_at DESC, id DESC LIMIT 1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkRead adds the reader to seen_by on every message in the chat
// authored by someone else. Set union, safe to repeat.
func (r *MessageRepo) MarkRead(ctx context.Context, chatID, readerID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE messages SET seen_by = array_append(seen_by, $2)
         WHERE chat_id=$1 AND sender_id<>$2 AND NOT ($2 = ANY(seen_by))`,
		chatID, readerID)
	return err
}

// SoftDelete redacts a message terminally: content and attachments are
// cleared and never come back.
func (r *MessageRepo) SoftDelete(ctx context.Context, messageID, deletedBy int64, byAdmin bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET is_deleted=TRUE, deleted_by=$2, deleted_by_admin=$3, content='', attachments='[]' WHERE id=$1`,
		messageID, deletedBy, byAdmin)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// HideAllForUser adds the user to hidden_for on every message of the
// chat not already hidden for them. Set union, safe to repeat.
func (r *MessageRepo) HideAllForUser(ctx context.Context, chatID, userID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE messages SET hidden_for = array_append(hidden_for, $2)
         WHERE chat_id=$1 AND NOT ($2 = ANY(hidden_for))`,
		chatID, userID)
	return err
}

// PurgeChat removes every message record of the chat.
func (r *MessageRepo) PurgeChat(ctx context.Context, chatID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE chat_id=$1`, chatID)
	return err
}

// PurgeChats removes messages across the given chat set and reports
// how many chats actually had messages to remove.
func (r *MessageRepo) PurgeChats(ctx context.Context, chatIDs []int64) (int64, error) {
	if len(chatIDs) == 0 {
		return 0, nil
	}
	var cleared int64
	err := r.db.GetContext(ctx, &cleared,
		`WITH purged AS (
            DELETE FROM messages WHERE chat_id = ANY($1) RETURNING chat_id
         )
         SELECT COUNT(DISTINCT chat_id) FROM purged`,
		pq.Array(chatIDs))
	if err != nil {
		return 0, err
	}
	return cleared, nil
}
