package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"syncup-service/internal/models"
)

var ErrChatNotFound = errors.New("chat not found")

// ChatRepository abstracts chat and membership persistence.
type ChatRepository interface {
	CreateOrGetDirectChat(ctx context.Context, userID, otherID int64) (models.Chat, error)
	CreateGroupChat(ctx context.Context, creatorID int64, name, avatarURL string, memberIDs []int64) (models.Chat, error)
	GetChat(ctx context.Context, chatID int64) (models.Chat, error)
	ListChatsForUser(ctx context.Context, userID int64) ([]models.Chat, error)
	ListChatIDsForUser(ctx context.Context, userID int64, groupsOnly bool) ([]int64, error)
	IsParticipant(ctx context.Context, chatID, userID int64) (bool, error)
	Rename(ctx context.Context, chatID int64, name string) error
	SetAvatar(ctx context.Context, chatID int64, avatarURL string) error
	AddParticipants(ctx context.Context, chatID int64, userIDs []int64) error
	RemoveParticipant(ctx context.Context, chatID, userID int64) error
	DeleteChat(ctx context.Context, chatID int64) error
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

const chatColumns = `id, is_group, name, avatar_url, created_by, last_message_at, created_at`

// CreateOrGetDirectChat returns the existing direct chat for the
// unordered pair if there is one, otherwise creates it. Idempotent.
func (r *ChatRepo) CreateOrGetDirectChat(ctx context.Context, userID, otherID int64) (models.Chat, error) {
	var chat models.Chat
	query := `SELECT c.id, c.is_group, c.name, c.avatar_url, c.created_by, c.last_message_at, c.created_at FROM chats c
        JOIN chat_participants p1 ON p1.chat_id = c.id AND p1.user_id = $1
        JOIN chat_participants p2 ON p2.chat_id = c.id AND p2.user_id = $2
        WHERE c.is_group = FALSE`
	err := r.db.GetContext(ctx, &chat, query, userID, otherID)
	if err == nil {
		return r.withParticipants(ctx, chat)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Chat{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = tx.QueryRowxContext(ctx,
		`INSERT INTO chats (is_group, created_by) VALUES (FALSE, $1) RETURNING `+chatColumns,
		userID).StructScan(&chat); err != nil {
		return models.Chat{}, err
	}
	for _, id := range []int64{userID, otherID} {
		if _, err = tx.ExecContext(ctx, `INSERT INTO chat_participants (chat_id, user_id) VALUES ($1, $2)`, chat.ID, id); err != nil {
			return models.Chat{}, err
		}
	}
	if err = tx.Commit(); err != nil {
		return models.Chat{}, err
	}
	chat.Participants = []int64{userID, otherID}
	return chat, nil
}

// CreateGroupChat creates a group and its members atomically. The
// caller has already deduplicated memberIDs and included the creator.
func (r *ChatRepo) CreateGroupChat(ctx context.Context, creatorID int64, name, avatarURL string, memberIDs []int64) (models.Chat, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Chat{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var chat models.Chat
	if err = tx.QueryRowxContext(ctx,
		`INSERT INTO chats (is_group, name, avatar_url, created_by) VALUES (TRUE, $1, $2, $3) RETURNING `+chatColumns,
		name, avatarURL, creatorID).StructScan(&chat); err != nil {
		return models.Chat{}, err
	}

	for _, id := range memberIDs {
		if _, err = tx.ExecContext(ctx, `INSERT INTO chat_participants (chat_id, user_id) VALUES ($1, $2)`, chat.ID, id); err != nil {
			return models.Chat{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Chat{}, err
	}
	chat.Participants = memberIDs
	return chat, nil
}

// GetChat fetches a chat with its participant set.
func (r *ChatRepo) GetChat(ctx context.Context, chatID int64) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	if err != nil {
		return models.Chat{}, err
	}
	return r.withParticipants(ctx, chat)
}

// ListChatsForUser returns the user's chats newest-activity first.
func (r *ChatRepo) ListChatsForUser(ctx context.Context, userID int64) ([]models.Chat, error) {
	var chats []models.Chat
	query := `SELECT c.id, c.is_group, c.name, c.avatar_url, c.created_by, c.last_message_at, c.created_at FROM chats c
        JOIN chat_participants p ON p.chat_id = c.id
        WHERE p.user_id = $1
        ORDER BY c.last_message_at DESC`
	if err := r.db.SelectContext(ctx, &chats, query, userID); err != nil {
		return nil, err
	}
	for i := range chats {
		loaded, err := r.withParticipants(ctx, chats[i])
		if err != nil {
			return nil, err
		}
		chats[i] = loaded
	}
	return chats, nil
}

// ListChatIDsForUser returns ids of every chat the user participates
// in, optionally restricted to groups.
func (r *ChatRepo) ListChatIDsForUser(ctx context.Context, userID int64, groupsOnly bool) ([]int64, error) {
	query := `SELECT c.id FROM chats c JOIN chat_participants p ON p.chat_id = c.id WHERE p.user_id = $1`
	if groupsOnly {
		query += ` AND c.is_group = TRUE`
	}
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, query, userID)
	return ids, err
}

// IsParticipant checks whether a user belongs to the chat.
func (r *ChatRepo) IsParticipant(ctx context.Context, chatID, userID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM chat_participants WHERE chat_id=$1 AND user_id=$2)`, chatID, userID)
	return exists, err
}

// Rename sets a group's name.
func (r *ChatRepo) Rename(ctx context.Context, chatID int64, name string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE chats SET name=$2 WHERE id=$1`, chatID, name)
	return err
}

// SetAvatar sets a group's avatar reference.
func (r *ChatRepo) SetAvatar(ctx context.Context, chatID int64, avatarURL string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE chats SET avatar_url=$2 WHERE id=$1`, chatID, avatarURL)
	return err
}

// AddParticipants inserts members, silently skipping ones already present.
func (r *ChatRepo) AddParticipants(ctx context.Context, chatID int64, userIDs []int64) error {
	for _, id := range userIDs {
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO chat_participants (chat_id, user_id) VALUES ($1, $2) ON CONFLICT (chat_id, user_id) DO NOTHING`,
			chatID, id); err != nil {
			return err
		}
	}
	return nil
}

// RemoveParticipant removes a member from the chat.
func (r *ChatRepo) RemoveParticipant(ctx context.Context, chatID, userID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM chat_participants WHERE chat_id=$1 AND user_id=$2`, chatID, userID)
	return err
}

// DeleteChat purges the chat's messages and removes the chat record.
func (r *ChatRepo) DeleteChat(ctx context.Context, chatID int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE chat_id=$1`, chatID); err != nil {
		return err
	}
	var res sql.Result
	if res, err = tx.ExecContext(ctx, `DELETE FROM chats WHERE id=$1`, chatID); err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		err = ErrChatNotFound
		return err
	}
	return tx.Commit()
}

func (r *ChatRepo) withParticipants(ctx context.Context, chat models.Chat) (models.Chat, error) {
	var ids pq.Int64Array
	err := r.db.GetContext(ctx, &ids,
		`SELECT COALESCE(ARRAY_AGG(user_id ORDER BY joined_at, user_id), '{}') FROM chat_participants WHERE chat_id=$1`,
		chat.ID)
	if err != nil {
		return models.Chat{}, err
	}
	chat.Participants = []int64(ids)
	return chat, nil
}
