package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"syncup-service/internal/models"
)

func TestEventBeforeResponseDoesNotDuplicate(t *testing.T) {
	tl := NewTimeline(1)
	tl.AddOptimistic("tmp-1", "hello", nil)

	server := models.Message{ID: 42, ChatID: 9, SenderID: 1, Content: "hello"}

	// The socket fan-out races ahead of the send response.
	tl.ApplyNew(server)
	tl.ConfirmSend("tmp-1", server)

	entries := tl.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, Confirmed, entries[0].State)
	assert.Equal(t, int64(42), entries[0].Message.ID)
}

func TestResponseBeforeEventDoesNotDuplicate(t *testing.T) {
	tl := NewTimeline(1)
	tl.AddOptimistic("tmp-1", "hello", nil)

	server := models.Message{ID: 42, ChatID: 9, SenderID: 1, Content: "hello"}

	tl.ConfirmSend("tmp-1", server)
	tl.ApplyNew(server)

	require.Equal(t, 1, tl.Len())
}

func TestApplyNewIgnoresDuplicateIDs(t *testing.T) {
	tl := NewTimeline(1)
	msg := models.Message{ID: 42, SenderID: 2, Content: "hey"}

	tl.ApplyNew(msg)
	tl.ApplyNew(msg)

	require.Equal(t, 1, tl.Len())
}

func TestApplyNewClaimsOldestMatchingOptimistic(t *testing.T) {
	tl := NewTimeline(1)
	tl.AddOptimistic("tmp-1", "same", nil)
	tl.AddOptimistic("tmp-2", "same", nil)

	tl.ApplyNew(models.Message{ID: 10, SenderID: 1, Content: "same"})

	entries := tl.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, Confirmed, entries[0].State)
	assert.Equal(t, Optimistic, entries[1].State)
	assert.Equal(t, "tmp-2", entries[1].TempID)
}

func TestApplyNewFromOthersAppends(t *testing.T) {
	tl := NewTimeline(1)
	tl.AddOptimistic("tmp-1", "hello", nil)

	tl.ApplyNew(models.Message{ID: 5, SenderID: 2, Content: "hello"})

	entries := tl.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, Optimistic, entries[0].State, "another user's copy must not claim the optimistic slot")
}

func TestApplyReadIsIdempotent(t *testing.T) {
	tl := NewTimeline(1)
	tl.ApplyNew(models.Message{ID: 5, SenderID: 1, Content: "hi"})
	tl.ApplyNew(models.Message{ID: 6, SenderID: 2, Content: "yo"})

	tl.ApplyRead(2)
	tl.ApplyRead(2)

	entries := tl.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, []int64{2}, []int64(entries[0].Message.SeenBy))
	assert.Empty(t, entries[1].Message.SeenBy, "receipts only mark messages authored by the viewer")
}

func TestApplyDeletedIsTerminal(t *testing.T) {
	tl := NewTimeline(1)
	tl.ApplyNew(models.Message{ID: 5, SenderID: 2, Content: "secret"})

	tl.ApplyDeleted(5, 2, false)
	tl.ApplyDeleted(5, 2, false)

	entries := tl.Entries()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Message.IsDeleted)
	assert.Empty(t, entries[0].Message.Content)
}

func TestApplyClearedKeepsOptimistic(t *testing.T) {
	tl := NewTimeline(1)
	tl.ApplyNew(models.Message{ID: 5, SenderID: 2, Content: "old"})
	tl.AddOptimistic("tmp-1", "in flight", nil)

	tl.ApplyCleared()

	entries := tl.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, Optimistic, entries[0].State)
}

func TestConfirmSendWithoutOptimisticAppends(t *testing.T) {
	tl := NewTimeline(1)

	tl.ConfirmSend("tmp-unknown", models.Message{ID: 42, SenderID: 1, Content: "hello"})

	require.Equal(t, 1, tl.Len())
}
