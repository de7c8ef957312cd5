// Package agent drives a user turn to completion: it streams model output,
// executes tool calls under the security policy, folds steering messages into
// the conversation, and emits the event stream the bridges consume.
package agent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/haasonsaas/aide/pkg/models"
)

// Provider is a model backend capable of streaming completions. Complete
// returns a channel of chunks; the channel is closed after the terminal chunk
// (Done or Error). Implementations must be safe for concurrent use.
type Provider interface {
	// Complete starts a streaming completion. A non-nil error means the
	// request never started; errors after that arrive as chunk.Error.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)

	// Name returns the stable lowercase provider identifier.
	Name() string

	// Models lists the models this provider can serve.
	Models() []Model

	// SupportsTools reports whether the provider handles tool definitions.
	SupportsTools() bool
}

// Model describes one model a provider can serve.
type Model struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ContextWindow int    `json:"context_window"`
	Vision        bool   `json:"vision"`
}

// CompletionRequest is a provider-agnostic completion call.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []CompletionMessage
	Tools       []Tool
	MaxTokens   int
	Temperature *float64
}

// CompletionMessage is one conversation entry in provider-neutral form.
// Role follows models.Role values rendered as strings.
type CompletionMessage struct {
	Role        string
	Content     string
	Attachments []models.Attachment
	ToolCalls   []models.ToolCall
	ToolResults []models.ToolResult
}

// CompletionChunk is one streamed increment from a provider. Exactly one of
// Text, Thinking, or ToolCall is set on content chunks; Done marks the end of
// the stream and carries usage when the provider reports it.
type CompletionChunk struct {
	Text     string
	Thinking string
	ToolCall *models.ToolCall
	Done     bool
	Error    error

	InputTokens  int
	OutputTokens int
}

// Tool is an executable capability offered to the model. Schema returns the
// JSON Schema for the tool's parameters; Execute runs it. Execution errors
// that should reach the model go into ToolResult.IsError, returned errors are
// infrastructure failures.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error)
}

// Weight classes drive the per-call execution timeout.
type Weight string

const (
	WeightLight Weight = "light"
	WeightHeavy Weight = "heavy"
)

// Weighted is an optional Tool extension for long-running tools. Tools that
// do not implement it are treated as lightweight.
type Weighted interface {
	Weight() Weight
}

// Exclusive is an optional Tool extension. Tools reporting true are
// serialized per session by the registry.
type Exclusive interface {
	Exclusive() bool
}

// StateReporter is an optional Tool extension used when state snapshots are
// enabled. The loop records the returned snapshot before and after each call
// for the verifier's state-consistency check.
type StateReporter interface {
	StateSnapshot(ctx context.Context, params json.RawMessage) (string, error)
}

// SystemText joins the pinned system prompt with any synthetic system
// messages injected later (memory recall), in order. Providers take system
// text separately from the conversation.
func SystemText(history []models.Message) string {
	var parts []string
	for _, m := range history {
		if m.Role == models.RoleSystem && m.Content != "" {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// ToMessages converts conversation history into provider-neutral completion
// messages. System messages are skipped; providers receive the system prompt
// separately on the request.
func ToMessages(history []models.Message) []CompletionMessage {
	out := make([]CompletionMessage, 0, len(history))
	for _, m := range history {
		if m.Role == models.RoleSystem {
			continue
		}
		out = append(out, CompletionMessage{
			Role:        string(m.Role),
			Content:     m.Content,
			Attachments: m.Attachments,
			ToolCalls:   m.ToolCalls,
			ToolResults: m.ToolResults,
		})
	}
	return out
}
