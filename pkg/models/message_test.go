package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestChannelType_Constants(t *testing.T) {
	tests := []struct {
		constant ChannelType
		expected string
	}{
		{ChannelTelegram, "telegram"},
		{ChannelDiscord, "discord"},
		{ChannelSlack, "slack"},
		{ChannelCanvas, "canvas"},
		{ChannelCron, "cron"},
	}

	for _, tt := range tests {
		t.Run(string(tt.constant), func(t *testing.T) {
			if string(tt.constant) != tt.expected {
				t.Errorf("constant = %q, want %q", tt.constant, tt.expected)
			}
		})
	}
}

func TestDirection_Constants(t *testing.T) {
	if string(DirectionInbound) != "inbound" {
		t.Errorf("DirectionInbound = %q, want %q", DirectionInbound, "inbound")
	}
	if string(DirectionOutbound) != "outbound" {
		t.Errorf("DirectionOutbound = %q, want %q", DirectionOutbound, "outbound")
	}
}

func TestRole_Constants(t *testing.T) {
	tests := []struct {
		constant Role
		expected string
	}{
		{RoleUser, "user"},
		{RoleAssistant, "assistant"},
		{RoleSystem, "system"},
		{RoleTool, "tool"},
	}

	for _, tt := range tests {
		t.Run(string(tt.constant), func(t *testing.T) {
			if string(tt.constant) != tt.expected {
				t.Errorf("constant = %q, want %q", tt.constant, tt.expected)
			}
		})
	}
}

func TestBlockType_Constants(t *testing.T) {
	tests := []struct {
		constant BlockType
		expected string
	}{
		{BlockText, "text"},
		{BlockImage, "image"},
		{BlockToolCall, "tool_call"},
		{BlockToolResult, "tool_result"},
	}

	for _, tt := range tests {
		t.Run(string(tt.constant), func(t *testing.T) {
			if string(tt.constant) != tt.expected {
				t.Errorf("constant = %q, want %q", tt.constant, tt.expected)
			}
		})
	}
}

func TestMessage_JSONRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	original := Message{
		ID:        "msg-123",
		SessionID: "session-456",
		Channel:   ChannelCanvas,
		Direction: DirectionInbound,
		Role:      RoleUser,
		Content:   "render the dashboard",
		Blocks: []ContentBlock{
			{Type: BlockText, Text: "render the dashboard"},
			{Type: BlockImage, ImageURL: "http://example.com/chart.png"},
		},
		Attachments: []Attachment{{ID: "att-1", Type: "image", URL: "http://example.com/chart.png", MimeType: "image/png", Size: 2048}},
		Metadata:    map[string]any{"source": "test"},
		CreatedAt:   now,
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}

	if decoded.ID != original.ID {
		t.Errorf("ID = %q, want %q", decoded.ID, original.ID)
	}
	if decoded.SessionID != original.SessionID {
		t.Errorf("SessionID = %q, want %q", decoded.SessionID, original.SessionID)
	}
	if decoded.Channel != ChannelCanvas {
		t.Errorf("Channel = %v, want %v", decoded.Channel, ChannelCanvas)
	}
	if decoded.Direction != DirectionInbound {
		t.Errorf("Direction = %v, want %v", decoded.Direction, DirectionInbound)
	}
	if len(decoded.Blocks) != 2 {
		t.Fatalf("Blocks length = %d, want 2", len(decoded.Blocks))
	}
	if decoded.Blocks[0].Type != BlockText || decoded.Blocks[0].Text != "render the dashboard" {
		t.Errorf("Blocks[0] = %+v, want text block", decoded.Blocks[0])
	}
	if decoded.Blocks[1].ImageURL != "http://example.com/chart.png" {
		t.Errorf("Blocks[1].ImageURL = %q, want image URL", decoded.Blocks[1].ImageURL)
	}
	if len(decoded.Attachments) != 1 {
		t.Errorf("Attachments length = %d, want 1", len(decoded.Attachments))
	}
	if !decoded.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", decoded.CreatedAt, now)
	}
}

func TestMessage_ToolTurnRoundTrip(t *testing.T) {
	assistant := Message{
		ID:        "msg-1",
		SessionID: "session-1",
		Role:      RoleAssistant,
		ToolCalls: []ToolCall{{ID: "tc-1", Name: "search", Input: json.RawMessage(`{"q":"weather"}`)}},
		CreatedAt: time.Now().UTC(),
	}
	result := Message{
		ID:         "msg-2",
		SessionID:  "session-1",
		Role:       RoleTool,
		ToolCallID: "tc-1",
		Content:    "sunny, 22C",
		ToolResults: []ToolResult{
			{ToolCallID: "tc-1", Content: "sunny, 22C"},
		},
		CreatedAt: time.Now().UTC(),
	}

	if !assistant.HasToolCalls() {
		t.Error("HasToolCalls() = false, want true")
	}
	if result.HasToolCalls() {
		t.Error("HasToolCalls() = true, want false")
	}

	data, err := json.Marshal(assistant)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	var decodedAssistant Message
	if err := json.Unmarshal(data, &decodedAssistant); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if decodedAssistant.Role != RoleAssistant {
		t.Errorf("Role = %v, want %v", decodedAssistant.Role, RoleAssistant)
	}
	if len(decodedAssistant.ToolCalls) != 1 || decodedAssistant.ToolCalls[0].Name != "search" {
		t.Errorf("ToolCalls = %+v, want one search call", decodedAssistant.ToolCalls)
	}

	data, err = json.Marshal(result)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	var decodedResult Message
	if err := json.Unmarshal(data, &decodedResult); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if decodedResult.Role != RoleTool {
		t.Errorf("Role = %v, want %v", decodedResult.Role, RoleTool)
	}
	if decodedResult.ToolCallID != "tc-1" {
		t.Errorf("ToolCallID = %q, want %q", decodedResult.ToolCallID, "tc-1")
	}
	if len(decodedResult.ToolResults) != 1 || decodedResult.ToolResults[0].Content != "sunny, 22C" {
		t.Errorf("ToolResults = %+v, want one result with content", decodedResult.ToolResults)
	}
}

func TestMessage_OmitsEmptyFields(t *testing.T) {
	msg := Message{
		ID:        "msg-1",
		Role:      RoleUser,
		Content:   "hi",
		CreatedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	for _, field := range []string{"session_id", "channel", "direction", "blocks", "attachments", "tool_calls", "tool_results", "tool_call_id", "metadata"} {
		if strings.Contains(string(data), `"`+field+`"`) {
			t.Errorf("marshaled message contains empty field %q: %s", field, data)
		}
	}
}

func TestToolCall_Struct(t *testing.T) {
	tc := ToolCall{
		ID:    "tc-123",
		Name:  "web_search",
		Input: json.RawMessage(`{"query": "test query"}`),
	}

	if tc.ID != "tc-123" {
		t.Errorf("ID = %q, want %q", tc.ID, "tc-123")
	}
	if tc.Name != "web_search" {
		t.Errorf("Name = %q, want %q", tc.Name, "web_search")
	}
}

func TestToolResult_Struct(t *testing.T) {
	tr := ToolResult{
		ToolCallID: "tc-123",
		Content:    "Search results here",
		IsError:    false,
	}

	if tr.ToolCallID != "tc-123" {
		t.Errorf("ToolCallID = %q, want %q", tr.ToolCallID, "tc-123")
	}
	if tr.IsError {
		t.Error("IsError should be false")
	}

	trError := ToolResult{
		ToolCallID: "tc-456",
		Content:    "Error occurred",
		IsError:    true,
	}
	if !trError.IsError {
		t.Error("IsError should be true")
	}
}

func TestInboundMessage_JSONRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	original := InboundMessage{
		ID:        "in-1",
		ChannelID: "telegram",
		From: Sender{
			ChannelID: "telegram",
			UserID:    "user-9",
			GroupID:   "group-2",
			ThreadID:  "thread-7",
		},
		Text:      "what's on my calendar?",
		ReplyTo:   "in-0",
		Timestamp: now,
		Raw:       map[string]string{"secret": "never serialized"},
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if strings.Contains(string(data), "never serialized") {
		t.Errorf("Raw leaked into JSON: %s", data)
	}

	var decoded InboundMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if decoded.From.UserID != "user-9" {
		t.Errorf("From.UserID = %q, want %q", decoded.From.UserID, "user-9")
	}
	if decoded.From.GroupID != "group-2" {
		t.Errorf("From.GroupID = %q, want %q", decoded.From.GroupID, "group-2")
	}
	if decoded.ReplyTo != "in-0" {
		t.Errorf("ReplyTo = %q, want %q", decoded.ReplyTo, "in-0")
	}
	if !decoded.Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v, want %v", decoded.Timestamp, now)
	}
}

func TestOutboundMessage_Formats(t *testing.T) {
	tests := []struct {
		format   MessageFormat
		expected string
	}{
		{FormatText, "text"},
		{FormatMarkdown, "markdown"},
		{FormatHTML, "html"},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			if string(tt.format) != tt.expected {
				t.Errorf("format = %q, want %q", tt.format, tt.expected)
			}
		})
	}

	out := OutboundMessage{Text: "done", Format: FormatMarkdown}
	data, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	var decoded OutboundMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if decoded.Format != FormatMarkdown {
		t.Errorf("Format = %q, want %q", decoded.Format, FormatMarkdown)
	}
}

func TestSendResult_Struct(t *testing.T) {
	ok := SendResult{Success: true, MessageID: "out-1"}
	if !ok.Success {
		t.Error("Success should be true")
	}
	if ok.MessageID != "out-1" {
		t.Errorf("MessageID = %q, want %q", ok.MessageID, "out-1")
	}

	failed := SendResult{Success: false, Error: "rate limited"}
	if failed.Success {
		t.Error("Success should be false")
	}
	if failed.Error != "rate limited" {
		t.Errorf("Error = %q, want %q", failed.Error, "rate limited")
	}
}
