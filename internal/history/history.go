package history

// Journal archives conversation transcripts in SQLite.
// The database is opened lazily and created on first use.
// If opening the DB or executing queries fails, the journal falls back to in-memory storage.

import (
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/comigor/mapchat-go/internal/geo"
	"github.com/comigor/mapchat-go/internal/logger"
)

const schema = `CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT NOT NULL,
    epoch INTEGER NOT NULL,
    message_id INTEGER NOT NULL,
    sender TEXT NOT NULL,
    text TEXT NOT NULL,
    location TEXT,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS messages_conversation ON messages (conversation_id, id);`

var errNoPath = errors.New("history: no database path configured")

// queueSize bounds how many entries may wait for the writer before Record
// starts keeping them in memory instead.
const queueSize = 256

// op is either an entry to write or a flush request.
type op struct {
	entry Entry
	flush chan struct{}
}

// Journal is written by a single background goroutine, so Record never waits on SQLite.
type Journal struct {
	path string

	once    sync.Once
	db      *sql.DB
	initErr error

	queue    chan op
	sendMu   sync.RWMutex // guards closed and sends on queue
	closed   bool
	finished chan struct{}

	mu     sync.Mutex
	memory []Entry // in-memory fallback
}

// NewJournal returns a journal backed by the SQLite file at path and starts its
// writer. An empty path keeps everything in memory.
func NewJournal(path string) *Journal {
	j := &Journal{
		path:     path,
		queue:    make(chan op, queueSize),
		finished: make(chan struct{}),
	}
	go j.run()
	return j
}

// init lazily opens the SQLite database and creates the messages table if it doesn't exist.
func (j *Journal) init() {
	if j.path == "" {
		j.initErr = errNoPath
		return
	}
	db, err := sql.Open("sqlite", "file:"+j.path+"?_pragma=busy_timeout(10000)")
	if err != nil {
		j.initErr = err
		logger.L.Warn("sqlite open failed; using in-memory history", "error", err)
		return
	}
	if _, err = db.Exec(schema); err != nil {
		j.initErr = err
		_ = db.Close()
		logger.L.Warn("sqlite table creation failed; using in-memory history", "error", err)
		return
	}
	j.db = db
	logger.L.Info("sqlite history DB initialized", "path", j.path)
}

func (j *Journal) ready() bool {
	j.once.Do(j.init)
	return j.initErr == nil && j.db != nil
}

func (j *Journal) run() {
	defer close(j.finished)
	for o := range j.queue {
		if o.flush != nil {
			close(o.flush)
			continue
		}
		j.write(o.entry)
	}
}

// Record queues an entry for the writer. It does not block: when the journal
// is closed or the queue is full the entry is kept in memory.
func (j *Journal) Record(e Entry) {
	j.sendMu.RLock()
	defer j.sendMu.RUnlock()
	if !j.closed {
		select {
		case j.queue <- op{entry: e}:
			return
		default:
			logger.L.Warn("history queue full; keeping message in memory", "conversation_id", e.ConversationID)
		}
	}
	j.remember(e)
}

// write persists an entry. Failures are logged and the entry is kept in memory instead.
func (j *Journal) write(e Entry) {
	if j.ready() {
		var loc sql.NullString
		if e.Message.Location != nil {
			b, err := json.Marshal(e.Message.Location)
			if err == nil {
				loc = sql.NullString{String: string(b), Valid: true}
			}
		}
		_, err := j.db.Exec(`INSERT INTO messages (conversation_id, epoch, message_id, sender, text, location, created_at) VALUES (?,?,?,?,?,?,?);`,
			e.ConversationID, e.Epoch, e.Message.ID, string(e.Message.Sender), e.Message.Text, loc, e.Message.CreatedAt.UnixMilli())
		if err == nil {
			return
		}
		logger.L.Error("failed to store message in sqlite; falling back to memory", "error", err, "conversation_id", e.ConversationID)
	}
	j.remember(e)
}

func (j *Journal) remember(e Entry) {
	j.mu.Lock()
	j.memory = append(j.memory, e)
	j.mu.Unlock()
}

// flush waits until every entry queued so far has been written.
func (j *Journal) flush() {
	j.sendMu.RLock()
	if j.closed {
		j.sendMu.RUnlock()
		return
	}
	done := make(chan struct{})
	j.queue <- op{flush: done}
	j.sendMu.RUnlock()
	<-done
}

// List returns every archived entry of a conversation in the order it was recorded.
// Entries recorded before the call are included.
func (j *Journal) List(conversationID string) []Entry {
	j.flush()

	var out []Entry
	if j.ready() {
		rows, err := j.db.Query(`SELECT epoch, message_id, sender, text, location, created_at FROM messages WHERE conversation_id = ? ORDER BY id ASC;`, conversationID)
		if err == nil {
			defer rows.Close()
			for rows.Next() {
				var (
					e       = Entry{ConversationID: conversationID}
					sender  string
					loc     sql.NullString
					created int64
				)
				if err := rows.Scan(&e.Epoch, &e.Message.ID, &sender, &e.Message.Text, &loc, &created); err != nil {
					logger.L.Warn("skipping unreadable history row", "error", err)
					continue
				}
				e.Message.Sender = Sender(sender)
				e.Message.CreatedAt = time.UnixMilli(created).UTC()
				if loc.Valid {
					var l geo.ResolvedLocation
					if err := json.Unmarshal([]byte(loc.String), &l); err == nil {
						e.Message.Location = &l
					}
				}
				out = append(out, e)
			}
			if err := rows.Err(); err != nil {
				logger.L.Error("sqlite history iteration failed; transcript may be incomplete", "error", err, "conversation_id", conversationID, "rows", len(out))
			}
		} else {
			logger.L.Error("failed to query sqlite history", "error", err)
		}
	}

	j.mu.Lock()
	for _, e := range j.memory {
		if e.ConversationID == conversationID {
			e.Message = e.Message.clone()
			out = append(out, e)
		}
	}
	j.mu.Unlock()
	return out
}

// Close drains the queue, stops the writer and releases the database handle.
// Entries recorded afterwards are kept in memory.
func (j *Journal) Close() error {
	j.sendMu.Lock()
	if j.closed {
		j.sendMu.Unlock()
		return nil
	}
	j.closed = true
	close(j.queue)
	j.sendMu.Unlock()

	<-j.finished
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}
