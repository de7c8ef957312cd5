// Package sessions owns conversation lifecycle: the runtime session object,
// its steering queue, the manager that maps ids to sessions, and the router
// that resolves inbound messages onto sessions.
package sessions

import (
	"sync"
	"time"

	"github.com/haasonsaas/aide/internal/compaction"
	"github.com/haasonsaas/aide/pkg/models"
)

// Session is the runtime state of one conversation: its persisted record,
// the bounded context window, and the steering queue. The agent loop is the
// only writer during a run; lifecycle mutations go through the methods here
// so state transitions, counters, and the terminal steering flush stay
// consistent under concurrent readers.
type Session struct {
	mu   sync.Mutex
	data models.Session

	Context  *compaction.Manager
	Steering *SteeringQueue
}

// ID returns the session id.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ID
}

// ChannelID returns the owning channel id.
func (s *Session) ChannelID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ChannelID
}

// Snapshot returns a copy of the persisted session record.
func (s *Session) Snapshot() models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// State returns the current lifecycle state.
func (s *Session) State() models.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.State
}

// Transition moves the session through its lifecycle. Terminal transitions
// clear the steering queue.
func (s *Session) Transition(to models.SessionState, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.data.Transition(to, now); err != nil {
		return err
	}
	if to.Terminal() && s.Steering != nil {
		s.Steering.Clear()
	}
	return nil
}

// BumpLoopIterations adds to the loop iteration counter.
func (s *Session) BumpLoopIterations(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Counters.LoopIterations += n
}

// BumpToolInvocations adds to the tool invocation counter.
func (s *Session) BumpToolInvocations(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Counters.ToolInvocations += n
}

// BumpLLMCalls adds to the model call counter.
func (s *Session) BumpLLMCalls(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Counters.LLMCalls += n
}

// RecordError appends to the session error log.
func (s *Session) RecordError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.RecordError(msg)
}

// SystemPrompt returns the configured system prompt.
func (s *Session) SystemPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.SystemPrompt
}

// EngineID returns the engine this session runs on.
func (s *Session) EngineID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.EngineID
}
