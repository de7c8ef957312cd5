// Package models provides the domain types shared across the aide core.
package models

import (
	"encoding/json"
	"time"
)

// ChannelType represents a messaging surface.
type ChannelType string

const (
	ChannelTelegram ChannelType = "telegram"
	ChannelDiscord  ChannelType = "discord"
	ChannelSlack    ChannelType = "slack"
	ChannelCanvas   ChannelType = "canvas"
	ChannelCron     ChannelType = "cron"
)

// Direction indicates whether a message flows into or out of the core.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Role indicates the message author type.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// BlockType discriminates content blocks within a message.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockImage      BlockType = "image"
	BlockToolCall   BlockType = "tool_call"
	BlockToolResult BlockType = "tool_result"
)

// ContentBlock is one element of a structured message payload. Content is
// either a single plain-text string or an ordered block sequence; both forms
// may appear and consumers fold Blocks into text when a channel needs it.
type ContentBlock struct {
	Type       BlockType       `json:"type"`
	Text       string          `json:"text,omitempty"`
	ImageURL   string          `json:"image_url,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     string          `json:"output,omitempty"`
}

// Message is the unified conversation message format.
type Message struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"session_id,omitempty"`
	Channel     ChannelType    `json:"channel,omitempty"`
	Direction   Direction      `json:"direction,omitempty"`
	Role        Role           `json:"role"`
	Content     string         `json:"content"`
	Blocks      []ContentBlock `json:"blocks,omitempty"`
	Attachments []Attachment   `json:"attachments,omitempty"`
	ToolCalls   []ToolCall     `json:"tool_calls,omitempty"`
	ToolResults []ToolResult   `json:"tool_results,omitempty"`
	// ToolCallID links a role=tool message back to the call that produced it.
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// HasToolCalls reports whether the message requests any tool execution.
func (m *Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// Attachment represents a file or media attachment.
type Attachment struct {
	ID       string `json:"id"`
	Type     string `json:"type"` // image, audio, video, document
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// ToolCall represents a model's request to execute a tool.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult represents the output of a tool execution.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// Sender identifies the origin of an inbound message within a channel.
// GroupID and ThreadID are empty for direct messages.
type Sender struct {
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	GroupID   string `json:"group_id,omitempty"`
	ThreadID  string `json:"thread_id,omitempty"`
}

// InboundMessage is the normalized form every channel adapter produces.
type InboundMessage struct {
	ID          string       `json:"id"`
	ChannelID   string       `json:"channel_id"`
	From        Sender       `json:"from"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
	ReplyTo     string       `json:"reply_to,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
	Raw         any          `json:"-"`
}

// MessageFormat describes outbound text rendering.
type MessageFormat string

const (
	FormatText     MessageFormat = "text"
	FormatMarkdown MessageFormat = "markdown"
	FormatHTML     MessageFormat = "html"
)

// OutboundMessage is what the core hands to a channel adapter for delivery.
type OutboundMessage struct {
	Text        string        `json:"text"`
	Attachments []Attachment  `json:"attachments,omitempty"`
	ReplyTo     string        `json:"reply_to,omitempty"`
	Format      MessageFormat `json:"format,omitempty"`
}

// SendResult reports the outcome of a channel send.
type SendResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}
