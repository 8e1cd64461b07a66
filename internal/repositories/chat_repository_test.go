package repositories

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func chatRow(id int64) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "is_group", "name", "avatar_url", "created_by", "last_message_at", "created_at"}).
		AddRow(id, false, "", "", int64(1), now, now)
}

func expectExistingDirectChat(mock sqlmock.Sqlmock, chatID int64) {
	mock.ExpectQuery(regexp.QuoteMeta(`JOIN chat_participants p1 ON p1.chat_id = c.id AND p1.user_id = $1`)).
		WithArgs(int64(1), int64(2)).
		WillReturnRows(chatRow(chatID))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(ARRAY_AGG(user_id ORDER BY joined_at, user_id), '{}') FROM chat_participants WHERE chat_id=$1`)).
		WithArgs(chatID).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow("{1,2}"))
}

func TestCreateOrGetDirectChatReturnsExistingPair(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChatRepo(db)

	expectExistingDirectChat(mock, 7)
	expectExistingDirectChat(mock, 7)

	first, err := repo.CreateOrGetDirectChat(context.Background(), 1, 2)
	require.NoError(t, err)
	second, err := repo.CreateOrGetDirectChat(context.Background(), 1, 2)
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, []int64{1, 2}, second.Participants)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrGetDirectChatInsertsWhenAbsent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChatRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta(`JOIN chat_participants p1 ON p1.chat_id = c.id AND p1.user_id = $1`)).
		WithArgs(int64(1), int64(2)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO chats (is_group, created_by) VALUES (FALSE, $1) RETURNING`)).
		WithArgs(int64(1)).
		WillReturnRows(chatRow(11))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO chat_participants (chat_id, user_id) VALUES ($1, $2)`)).
		WithArgs(int64(11), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO chat_participants (chat_id, user_id) VALUES ($1, $2)`)).
		WithArgs(int64(11), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	chat, err := repo.CreateOrGetDirectChat(context.Background(), 1, 2)
	require.NoError(t, err)
	require.Equal(t, int64(11), chat.ID)
	require.Equal(t, []int64{1, 2}, chat.Participants)
	require.NoError(t, mock.ExpectationsWereMet())
}
