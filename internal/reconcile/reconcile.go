// Package reconcile merges a client's optimistic message timeline with
// the events arriving over the socket and the responses of the REST
// send call. The two delivery paths (RPC response and message:new
// fan-out) race, so every mutation is written to be order independent.
package reconcile

import (
	"sync"

	"syncup-service/internal/models"
)

// EntryState tags a timeline entry.
type EntryState int

const (
	// Optimistic entries were rendered locally before the server
	// acknowledged them. They carry a client-generated temp id.
	Optimistic EntryState = iota
	// Confirmed entries carry the server-assigned ledger id.
	Confirmed
)

// Entry is one message slot of the timeline.
type Entry struct {
	State   EntryState
	TempID  string
	Message models.Message
}

// Timeline is the per-chat client view of the ledger.
type Timeline struct {
	mu      sync.Mutex
	selfID  int64
	entries []Entry
}

// NewTimeline builds a timeline for the given viewer.
func NewTimeline(selfID int64) *Timeline {
	return &Timeline{selfID: selfID}
}

// AddOptimistic appends a locally-rendered message before the server
// has acknowledged it.
func (t *Timeline) AddOptimistic(tempID string, content string, attachments models.AttachmentList) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = append(t.entries, Entry{
		State:  Optimistic,
		TempID: tempID,
		Message: models.Message{
			SenderID:    t.selfID,
			Content:     content,
			Attachments: attachments,
		},
	})
}

// ConfirmSend replaces the optimistic entry with the server copy when
// the send call returns. A no-op when the fan-out event already
// confirmed the entry.
func (t *Timeline) ConfirmSend(tempID string, msg models.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.indexOf(msg.ID) >= 0 {
		t.dropTemp(tempID)
		return
	}
	for i := range t.entries {
		if t.entries[i].State == Optimistic && t.entries[i].TempID == tempID {
			t.entries[i] = Entry{State: Confirmed, Message: msg}
			return
		}
	}
	t.entries = append(t.entries, Entry{State: Confirmed, Message: msg})
}

// ApplyNew merges a message:new event. Duplicates by ledger id are
// ignored; a self-authored event claims the oldest matching optimistic
// entry instead of appending a second copy.
func (t *Timeline) ApplyNew(msg models.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.indexOf(msg.ID) >= 0 {
		return
	}
	if msg.SenderID == t.selfID {
		for i := range t.entries {
			e := &t.entries[i]
			if e.State == Optimistic && e.Message.Content == msg.Content {
				*e = Entry{State: Confirmed, Message: msg}
				return
			}
		}
	}
	t.entries = append(t.entries, Entry{State: Confirmed, Message: msg})
}

// ApplyRead marks every self-authored confirmed entry as seen by the
// reader. Repeats are absorbed.
func (t *Timeline) ApplyRead(readerID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.entries {
		e := &t.entries[i]
		if e.State != Confirmed || e.Message.SenderID != t.selfID || e.Message.SenderID == readerID {
			continue
		}
		if !contains(e.Message.SeenBy, readerID) {
			e.Message.SeenBy = append(e.Message.SeenBy, readerID)
		}
	}
}

// ApplyDeleted redacts the entry in place. Deletion is terminal, so a
// later duplicate of the same event changes nothing.
func (t *Timeline) ApplyDeleted(messageID, deletedBy int64, byAdmin bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexOf(messageID)
	if i < 0 {
		return
	}
	e := &t.entries[i]
	e.Message.IsDeleted = true
	e.Message.DeletedByAdmin = byAdmin
	e.Message.DeletedBy = &deletedBy
	e.Message.Content = ""
	e.Message.Attachments = nil
}

// ApplyCleared drops every confirmed entry. Optimistic entries survive
// until their own confirmation or failure.
func (t *Timeline) ApplyCleared() {
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.entries[:0]
	for _, e := range t.entries {
		if e.State == Optimistic {
			kept = append(kept, e)
		}
	}
	t.entries = kept
}

// Entries returns a snapshot of the timeline.
func (t *Timeline) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len reports the number of entries currently displayed.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Timeline) indexOf(messageID int64) int {
	if messageID == 0 {
		return -1
	}
	for i := range t.entries {
		if t.entries[i].State == Confirmed && t.entries[i].Message.ID == messageID {
			return i
		}
	}
	return -1
}

func (t *Timeline) dropTemp(tempID string) {
	kept := t.entries[:0]
	for _, e := range t.entries {
		if e.State == Optimistic && e.TempID == tempID {
			continue
		}
		kept = append(kept, e)
	}
	t.entries = kept
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
