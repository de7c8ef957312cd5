package models

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of agent event emitted during a run.
type EventType string

const (
	EventThinking     EventType = "thinking"
	EventText         EventType = "text"
	EventToolStart    EventType = "tool_start"
	EventToolProgress EventType = "tool_progress"
	EventToolEnd      EventType = "tool_end"
	EventComplete     EventType = "complete"
	EventError        EventType = "error"
	EventAborted      EventType = "aborted"
)

// ErrorKind classifies failures surfaced through error events.
type ErrorKind string

const (
	ErrKindValidation     ErrorKind = "validation"
	ErrKindSecurity       ErrorKind = "security"
	ErrKindProvider       ErrorKind = "provider"
	ErrKindTool           ErrorKind = "tool"
	ErrKindChannel        ErrorKind = "channel"
	ErrKindTimeout        ErrorKind = "timeout"
	ErrKindAborted        ErrorKind = "aborted"
	ErrKindIterationLimit ErrorKind = "iteration_limit"
	ErrKindFatal          ErrorKind = "fatal"
)

// AgentEvent is the unified event emitted by the agent loop. It drives the
// streaming bridges, plugins, and logging. Exactly one payload pointer is
// non-nil for a given Type; Sequence is monotonic within a run.
//
// Events for one turn obey:
//
//	thinking? (text* (tool_start (tool_progress* tool_end))*)* (complete|error|aborted)
type AgentEvent struct {
	Type      EventType `json:"type"`
	Sequence  uint64    `json:"seq"`
	RunID     string    `json:"run_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Iteration int       `json:"iteration,omitempty"`
	Time      time.Time `json:"time"`

	Text     *TextEvent     `json:"text,omitempty"`
	Tool     *ToolEvent     `json:"tool,omitempty"`
	Complete *CompleteEvent `json:"complete,omitempty"`
	Error    *ErrorEvent    `json:"error,omitempty"`
	Aborted  *AbortedEvent  `json:"aborted,omitempty"`
}

// Terminal reports whether the event ends the turn.
func (e *AgentEvent) Terminal() bool {
	switch e.Type {
	case EventComplete, EventError, EventAborted:
		return true
	}
	return false
}

// TextEvent carries streamed model text. Delta is the increment; Partial is
// the accumulated text so far. Thinking events reuse this payload.
type TextEvent struct {
	Delta   string `json:"delta,omitempty"`
	Partial string `json:"partial,omitempty"`
}

// ToolEvent describes one tool invocation phase.
type ToolEvent struct {
	CallID   string          `json:"call_id"`
	Name     string          `json:"name"`
	Args     json.RawMessage `json:"args,omitempty"`
	Progress string          `json:"progress,omitempty"`
	Result   *ToolResult     `json:"result,omitempty"`
	Elapsed  time.Duration   `json:"elapsed,omitempty"`
}

// CompleteEvent carries the final answer for the turn.
type CompleteEvent struct {
	Answer       string              `json:"answer"`
	Verification *VerificationResult `json:"verification,omitempty"`
}

// ErrorEvent standardizes error reporting on the event stream. Err keeps the
// original error for errors.Is/As at runtime and is not serialized.
type ErrorEvent struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

// AbortedEvent reports cooperative cancellation of the turn.
type AbortedEvent struct {
	Reason string `json:"reason,omitempty"`
}
