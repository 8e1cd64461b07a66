package repositories

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func TestMarkReadIdempotent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)

	markReadQuery := regexp.QuoteMeta(`UPDATE messages SET seen_by = array_append(seen_by, $2)`) +
		`.*` + regexp.QuoteMeta(`NOT ($2 = ANY(seen_by))`)

	mock.ExpectExec(markReadQuery).
		WithArgs(int64(9), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(markReadQuery).
		WithArgs(int64(9), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.MarkRead(context.Background(), 9, 1))
	require.NoError(t, repo.MarkRead(context.Background(), 9, 1))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeChatsCountsAffectedChats(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(DISTINCT chat_id) FROM purged`)).
		WithArgs(pq.Int64Array{3, 4, 5}).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))

	cleared, err := repo.PurgeChats(context.Background(), []int64{3, 4, 5})
	require.NoError(t, err)
	require.Equal(t, int64(2), cleared)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeChatsEmptySet(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)

	cleared, err := repo.PurgeChats(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, cleared)
	require.NoError(t, mock.ExpectationsWereMet())
}
