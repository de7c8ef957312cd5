package providers

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/aide/internal/agent"
	"github.com/haasonsaas/aide/pkg/models"
)

func TestOpenAICompleteUnconfigured(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{})
	if _, err := p.Complete(context.Background(), &agent.CompletionRequest{}); err == nil ||
		!strings.Contains(err.Error(), "not configured") {
		t.Fatalf("error = %v", err)
	}
}

func TestOpenAIModels(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{})
	if len(p.Models()) == 0 {
		t.Fatal("no models")
	}
	if p.Name() != "openai" || !p.SupportsTools() {
		t.Errorf("identity = %s tools=%v", p.Name(), p.SupportsTools())
	}
	if got := p.model(""); got != defaultOpenAIModel {
		t.Errorf("default model = %q", got)
	}
}

func TestConvertOpenAIMessages(t *testing.T) {
	in := []agent.CompletionMessage{
		{Role: string(models.RoleUser), Content: "hello"},
		{
			Role:    string(models.RoleAssistant),
			Content: "checking",
			ToolCalls: []models.ToolCall{
				{ID: "t1", Name: "grep", Input: json.RawMessage(`{"q":"x"}`)},
			},
		},
		{
			Role: string(models.RoleTool),
			ToolResults: []models.ToolResult{
				{ToolCallID: "t1", Content: "match a"},
				{ToolCallID: "t1", Content: "match b"},
			},
		},
	}

	out := convertOpenAIMessages(in, "be brief")

	// system + user + assistant + one message per tool result.
	if len(out) != 5 {
		t.Fatalf("messages = %d, want 5: %+v", len(out), out)
	}
	if out[0].Role != openai.ChatMessageRoleSystem || out[0].Content != "be brief" {
		t.Errorf("system = %+v", out[0])
	}
	if out[1].Role != openai.ChatMessageRoleUser || out[1].Content != "hello" {
		t.Errorf("user = %+v", out[1])
	}
	asst := out[2]
	if asst.Role != openai.ChatMessageRoleAssistant || len(asst.ToolCalls) != 1 {
		t.Fatalf("assistant = %+v", asst)
	}
	if asst.ToolCalls[0].ID != "t1" || asst.ToolCalls[0].Function.Name != "grep" ||
		asst.ToolCalls[0].Function.Arguments != `{"q":"x"}` {
		t.Errorf("tool call = %+v", asst.ToolCalls[0])
	}
	for i, want := range []string{"match a", "match b"} {
		m := out[3+i]
		if m.Role != openai.ChatMessageRoleTool || m.Content != want || m.ToolCallID != "t1" {
			t.Errorf("tool message %d = %+v", i, m)
		}
	}
}

func TestConvertOpenAIMessagesNoSystem(t *testing.T) {
	out := convertOpenAIMessages([]agent.CompletionMessage{
		{Role: string(models.RoleSystem), Content: "already folded"},
		{Role: string(models.RoleUser), Content: "hi"},
	}, "")
	if len(out) != 1 || out[0].Role != openai.ChatMessageRoleUser {
		t.Fatalf("messages = %+v", out)
	}
}

func TestUserOpenAIMessageVision(t *testing.T) {
	msg := agent.CompletionMessage{
		Role:    string(models.RoleUser),
		Content: "what is this?",
		Attachments: []models.Attachment{
			{ID: "a1", Type: "image", URL: "https://example.test/cat.png"},
			{ID: "a2", Type: "document", URL: "https://example.test/spec.pdf"},
		},
	}

	got := userOpenAIMessage(msg)
	if got.Content != "" {
		t.Errorf("plain content set alongside multi-content: %q", got.Content)
	}
	if len(got.MultiContent) != 2 {
		t.Fatalf("parts = %d, want text + image", len(got.MultiContent))
	}
	if got.MultiContent[0].Type != openai.ChatMessagePartTypeText || got.MultiContent[0].Text != "what is this?" {
		t.Errorf("text part = %+v", got.MultiContent[0])
	}
	img := got.MultiContent[1]
	if img.Type != openai.ChatMessagePartTypeImageURL || img.ImageURL.URL != "https://example.test/cat.png" {
		t.Errorf("image part = %+v", img)
	}

	// Without image attachments the message stays plain text.
	plain := userOpenAIMessage(agent.CompletionMessage{
		Role:        string(models.RoleUser),
		Content:     "no pictures",
		Attachments: []models.Attachment{{ID: "a2", Type: "document"}},
	})
	if plain.Content != "no pictures" || len(plain.MultiContent) != 0 {
		t.Errorf("plain = %+v", plain)
	}
}

func TestConvertOpenAITools(t *testing.T) {
	out := convertOpenAITools([]agent.Tool{
		stubTool{name: "grep", desc: "search files"},
		stubTool{name: "broken", desc: "bad schema", schema: `{`},
	})
	if len(out) != 2 {
		t.Fatalf("tools = %d", len(out))
	}
	fn := out[0].Function
	if out[0].Type != openai.ToolTypeFunction || fn.Name != "grep" || fn.Description != "search files" {
		t.Errorf("tool = %+v", out[0])
	}

	// The broken schema degrades to an empty object schema instead of
	// dropping the tool.
	badFn := out[1].Function
	params, ok := badFn.Parameters.(map[string]any)
	if !ok || params["type"] != "object" {
		t.Errorf("fallback parameters = %#v", badFn.Parameters)
	}
}
