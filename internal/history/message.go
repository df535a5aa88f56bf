package history

import (
	"time"

	"github.com/comigor/mapchat-go/internal/geo"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser   Sender = "user"
	SenderSystem Sender = "system"
)

// Message is a single conversational message. It is never modified after Append returns it.
type Message struct {
	ID        int64                 `json:"id"`
	Text      string                `json:"text"`
	Sender    Sender                `json:"sender"`
	Location  *geo.ResolvedLocation `json:"location,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
}

// HasLocation reports whether the message carries a resolved location.
func (m Message) HasLocation() bool {
	return m.Location != nil
}

// clone returns a copy whose location shares nothing with m's.
func (m Message) clone() Message {
	m.Location = m.Location.Clone()
	return m
}

// Entry is a message as archived by the Journal.
// Epoch increments on every reset so message ids can restart at 1 without colliding.
type Entry struct {
	ConversationID string  `json:"conversation_id"`
	Epoch          int     `json:"epoch"`
	Message        Message `json:"message"`
}
