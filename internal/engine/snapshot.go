package engine

import (
	"github.com/comigor/mapchat-go/internal/geo"
	"github.com/comigor/mapchat-go/internal/history"
)

// Snapshot is a consistent, read-only copy of a conversation for the presentation layer.
type Snapshot struct {
	ConversationID          string            `json:"conversation_id,omitempty"`
	Messages                []history.Message `json:"messages"`
	ActiveLocationMessageID *int64            `json:"active_location_message_id"`
	Viewport                geo.Viewport      `json:"viewport"`
	Marker                  *geo.Marker       `json:"marker,omitempty"`
	Pending                 bool              `json:"pending"`
	State                   State             `json:"state"`
}

// Snapshot returns the current state. The active location reference is only
// reported when the message it points to still exists and carries a location.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.state()
	snap := Snapshot{
		ConversationID: e.settings.ConversationID,
		Messages:       e.store.All(),
		Viewport:       e.selection.Current(),
		Pending:        st == StateAwaitingGeocode,
		State:          st,
	}

	if e.active != 0 {
		if msg, ok := e.store.Get(e.active); ok && msg.HasLocation() {
			id := msg.ID
			marker := geo.MarkerFor(*msg.Location)
			snap.ActiveLocationMessageID = &id
			snap.Marker = &marker
		}
	}
	return snap
}
