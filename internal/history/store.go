package history

import (
	"time"

	"github.com/comigor/mapchat-go/internal/geo"
)

// Sink receives every appended message. Implementations must not block for long
// and must swallow their own errors.
type Sink interface {
	Record(e Entry)
}

// Store is the append-only, ordered message log of one conversation.
// Ids come from an explicit counter: each Append gets lastID+1.
// Store is not safe for concurrent use; its owner serializes access.
type Store struct {
	conversationID string
	welcome        string
	sink           Sink
	now            func() time.Time

	lastID   int64
	epoch    int
	messages []Message
}

// NewStore creates a store seeded with the welcome message (id 1). sink may be nil.
func NewStore(conversationID, welcome string, sink Sink) *Store {
	s := &Store{
		conversationID: conversationID,
		welcome:        welcome,
		sink:           sink,
		now:            time.Now,
	}
	s.seed()
	return s
}

func (s *Store) seed() {
	s.messages = nil
	s.lastID = 0
	s.Append(SenderSystem, s.welcome, nil)
}

// Append assigns the next id, stores the message and returns it. It never fails.
func (s *Store) Append(sender Sender, text string, location *geo.ResolvedLocation) Message {
	s.lastID++
	msg := Message{
		ID:        s.lastID,
		Text:      text,
		Sender:    sender,
		Location:  location.Clone(),
		CreatedAt: s.now().UTC(),
	}
	s.messages = append(s.messages, msg)
	if s.sink != nil {
		s.sink.Record(Entry{ConversationID: s.conversationID, Epoch: s.epoch, Message: msg.clone()})
	}
	return msg.clone()
}

// Reset drops every message and reseeds the welcome message with id 1.
func (s *Store) Reset() {
	s.epoch++
	s.seed()
}

// All returns a deep copy of the messages in append order.
func (s *Store) All() []Message {
	out := make([]Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.clone()
	}
	return out
}

// Get returns the message with the given id, if it is still in the log.
func (s *Store) Get(id int64) (Message, bool) {
	// ids are dense and start at 1
	if id < 1 || id > int64(len(s.messages)) {
		return Message{}, false
	}
	return s.messages[id-1].clone(), true
}

// Len returns the number of messages.
func (s *Store) Len() int {
	return len(s.messages)
}

// Epoch returns how many times the store has been reset.
func (s *Store) Epoch() int {
	return s.epoch
}
