package canvas

import (
	"log/slog"
	"sync"
)

// Config controls canvas construction.
type Config struct {
	// MaxComponents caps the node count per canvas. Zero means
	// DefaultMaxComponents.
	MaxComponents int
	Logger        *slog.Logger
}

// Manager owns the canvas for each session. Bridges and tools keep only
// session ids and look the canvas up here, so states never hold references
// back into sessions or channels.
type Manager struct {
	mu     sync.Mutex
	states map[string]*State
	max    int
	logger *slog.Logger
}

// NewManager creates a canvas manager.
func NewManager(cfg Config) *Manager {
	max := cfg.MaxComponents
	if max <= 0 {
		max = DefaultMaxComponents
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		states: make(map[string]*State),
		max:    max,
		logger: logger.With("component", "canvas"),
	}
}

// Get returns the canvas for a session, or nil when none exists.
func (m *Manager) Get(sessionID string) *State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[sessionID]
}

// GetOrCreate returns the canvas for a session, creating it on first use.
func (m *Manager) GetOrCreate(sessionID string) *State {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[sessionID]
	if !ok {
		st = NewState(m.max)
		m.states[sessionID] = st
		m.logger.Debug("canvas created", "session_id", sessionID)
	}
	return st
}

// Remove drops the canvas for a session. Existing subscribers keep their
// channels until they cancel; the state itself is simply forgotten.
func (m *Manager) Remove(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, sessionID)
}

// Len reports how many sessions currently have a canvas.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.states)
}
