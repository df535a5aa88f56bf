package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comigor/mapchat-go/internal/geo"
)

func TestJournal_SQLiteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	j := NewJournal(path)
	t.Cleanup(func() { _ = j.Close() })

	name := "Eiffel Tower"
	loc := &geo.ResolvedLocation{QueryText: "Eiffel Tower, Paris", Latitude: 48.8584, Longitude: 2.2945, DisplayName: &name}
	now := time.Now().UTC().Truncate(time.Millisecond)

	j.Record(Entry{ConversationID: "a", Epoch: 0, Message: Message{ID: 1, Sender: SenderSystem, Text: "hi", CreatedAt: now}})
	j.Record(Entry{ConversationID: "b", Epoch: 0, Message: Message{ID: 1, Sender: SenderSystem, Text: "other", CreatedAt: now}})
	j.Record(Entry{ConversationID: "a", Epoch: 0, Message: Message{ID: 2, Sender: SenderSystem, Text: "found", Location: loc, CreatedAt: now}})

	require.True(t, j.ready())
	got := j.List("a")
	require.Len(t, got, 2)
	require.Equal(t, "hi", got[0].Message.Text)
	require.Nil(t, got[0].Message.Location)
	require.Equal(t, int64(2), got[1].Message.ID)
	require.Equal(t, SenderSystem, got[1].Message.Sender)
	require.NotNil(t, got[1].Message.Location)
	require.InDelta(t, 48.8584, got[1].Message.Location.Latitude, 1e-9)
	require.Equal(t, name, *got[1].Message.Location.DisplayName)
	require.True(t, now.Equal(got[1].Message.CreatedAt))

	// a second handle on the same file sees the archive
	j2 := NewJournal(path)
	t.Cleanup(func() { _ = j2.Close() })
	require.Len(t, j2.List("a"), 2)
}

func TestJournal_MemoryFallback(t *testing.T) {
	j := NewJournal("")
	j.Record(Entry{ConversationID: "a", Message: Message{ID: 1, Text: "hi"}})
	j.Record(Entry{ConversationID: "b", Message: Message{ID: 1, Text: "yo"}})

	require.False(t, j.ready())
	got := j.List("a")
	require.Len(t, got, 1)
	require.Equal(t, "hi", got[0].Message.Text)
	require.NoError(t, j.Close())
}

func TestJournal_UnwritablePathFallsBack(t *testing.T) {
	j := NewJournal(filepath.Join(t.TempDir(), "missing", "dir", "history.db"))
	j.Record(Entry{ConversationID: "a", Message: Message{ID: 1, Text: "hi"}})
	require.Len(t, j.List("a"), 1)
}

func TestStoreWithJournal(t *testing.T) {
	j := NewJournal(filepath.Join(t.TempDir(), "history.db"))
	t.Cleanup(func() { _ = j.Close() })

	s := NewStore("conv", "welcome", j)
	s.Append(SenderUser, "Paris", nil)
	s.Reset()

	got := j.List("conv")
	require.Len(t, got, 3)
	require.Equal(t, []int{0, 0, 1}, []int{got[0].Epoch, got[1].Epoch, got[2].Epoch})
}

func TestJournal_QueuedWritesKeepOrder(t *testing.T) {
	j := NewJournal(filepath.Join(t.TempDir(), "history.db"))
	t.Cleanup(func() { _ = j.Close() })

	for i := int64(1); i <= 100; i++ {
		j.Record(Entry{ConversationID: "a", Message: Message{ID: i, Sender: SenderUser, Text: "msg"}})
	}

	got := j.List("a")
	require.Len(t, got, 100)
	for i, e := range got {
		require.Equal(t, int64(i+1), e.Message.ID)
	}
}

func TestJournal_CloseDrainsPendingWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	j := NewJournal(path)
	for i := int64(1); i <= 20; i++ {
		j.Record(Entry{ConversationID: "a", Message: Message{ID: i, Sender: SenderUser, Text: "msg"}})
	}
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())

	reopened := NewJournal(path)
	t.Cleanup(func() { _ = reopened.Close() })
	require.Len(t, reopened.List("a"), 20)
}

func TestJournal_RecordAfterCloseKeptInMemory(t *testing.T) {
	j := NewJournal(filepath.Join(t.TempDir(), "history.db"))
	j.Record(Entry{ConversationID: "a", Message: Message{ID: 1, Text: "before"}})
	require.NoError(t, j.Close())

	j.Record(Entry{ConversationID: "a", Message: Message{ID: 2, Text: "after"}})

	j.mu.Lock()
	defer j.mu.Unlock()
	require.Len(t, j.memory, 1)
	require.Equal(t, "after", j.memory[0].Message.Text)
}
