// Package session keeps one conversation engine per session id.
package session

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/comigor/mapchat-go/internal/engine"
	"github.com/comigor/mapchat-go/internal/geocode"
	"github.com/comigor/mapchat-go/internal/history"
	"github.com/comigor/mapchat-go/internal/logger"
	"github.com/comigor/mapchat-go/internal/metrics"
)

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("session not found")

// Manager creates, looks up and closes conversations.
type Manager struct {
	resolver geocode.Resolver
	settings engine.Settings
	journal  *history.Journal
	metrics  *metrics.Metrics

	mu       sync.RWMutex
	sessions map[string]*engine.Engine
}

// NewManager returns a Manager whose engines share resolver, settings and journal.
// journal and m may be nil.
func NewManager(resolver geocode.Resolver, settings engine.Settings, journal *history.Journal, m *metrics.Metrics) *Manager {
	return &Manager{
		resolver: resolver,
		settings: settings,
		journal:  journal,
		metrics:  m,
		sessions: make(map[string]*engine.Engine),
	}
}

// Create starts a new conversation with a fresh id.
func (m *Manager) Create() *engine.Engine {
	settings := m.settings
	settings.ConversationID = uuid.NewString()
	settings.Metrics = m.metrics
	if m.journal != nil {
		settings.Journal = m.journal
	}
	e := engine.New(m.resolver, settings)

	m.mu.Lock()
	m.sessions[settings.ConversationID] = e
	m.mu.Unlock()

	m.metrics.SessionOpened()
	logger.L.Info("session created", "conversation_id", settings.ConversationID)
	return e
}

// Get returns the conversation with the given id.
func (m *Manager) Get(id string) (*engine.Engine, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

// Delete forgets a conversation. Its archived transcript stays in the journal.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	m.metrics.SessionClosed()
	logger.L.Info("session deleted", "conversation_id", id)
	return nil
}

// Transcript returns the archived messages of a conversation across resets.
func (m *Manager) Transcript(id string) ([]history.Entry, error) {
	if _, err := m.Get(id); err != nil {
		return nil, err
	}
	if m.journal == nil {
		return []history.Entry{}, nil
	}
	return m.journal.List(id), nil
}

// Len returns the number of open conversations.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Wait blocks until no conversation has a lookup in flight.
func (m *Manager) Wait() {
	m.mu.RLock()
	engines := make([]*engine.Engine, 0, len(m.sessions))
	for _, e := range m.sessions {
		engines = append(engines, e)
	}
	m.mu.RUnlock()
	for _, e := range engines {
		e.Wait()
	}
}
