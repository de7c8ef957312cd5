package models

import (
	"fmt"
	"time"
)

// SessionState is the lifecycle state of a conversation session.
type SessionState string

const (
	SessionCreated   SessionState = "created"
	SessionActive    SessionState = "active"
	SessionPaused    SessionState = "paused"
	SessionCompleted SessionState = "completed"
	SessionFailed    SessionState = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s SessionState) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// SessionCounters aggregates per-session activity totals.
type SessionCounters struct {
	LoopIterations  int `json:"loop_iterations"`
	ToolInvocations int `json:"tool_invocations"`
	LLMCalls        int `json:"llm_calls"`
}

// Session is one conversation identity: its configuration, lifecycle,
// counters, and error log. The conversation context and steering queue are
// attached by the session manager, not serialized here.
type Session struct {
	ID           string          `json:"id"`
	ChannelID    string          `json:"channel_id"`
	UserID       string          `json:"user_id,omitempty"`
	EngineID     string          `json:"engine_id,omitempty"`
	Model        string          `json:"model,omitempty"`
	Provider     string          `json:"provider,omitempty"`
	SystemPrompt string          `json:"system_prompt,omitempty"`
	State        SessionState    `json:"state"`
	StartedAt    time.Time       `json:"started_at"`
	EndedAt      time.Time       `json:"ended_at,omitempty"`
	Counters     SessionCounters `json:"counters"`
	Errors       []string        `json:"errors,omitempty"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
}

// Transition moves the session to the target state, enforcing the lifecycle:
// created->active, active<->paused, active|paused->completed|failed.
// Terminal transitions stamp EndedAt.
func (s *Session) Transition(to SessionState, now time.Time) error {
	if allowed := validTransitions[s.State]; !allowed[to] {
		return fmt.Errorf("invalid session transition %s -> %s", s.State, to)
	}
	s.State = to
	if to.Terminal() {
		s.EndedAt = now
	}
	return nil
}

var validTransitions = map[SessionState]map[SessionState]bool{
	SessionCreated: {SessionActive: true},
	SessionActive:  {SessionPaused: true, SessionCompleted: true, SessionFailed: true},
	SessionPaused:  {SessionActive: true, SessionCompleted: true, SessionFailed: true},
}

// RecordError appends a message to the session error log.
func (s *Session) RecordError(msg string) {
	s.Errors = append(s.Errors, msg)
}
