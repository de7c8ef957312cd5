package agent

import (
	"testing"

	"github.com/haasonsaas/aide/pkg/models"
)

func TestSystemText(t *testing.T) {
	tests := []struct {
		name     string
		messages []models.Message
		want     string
	}{
		{"empty", nil, ""},
		{
			"single system",
			[]models.Message{{Role: models.RoleSystem, Content: "Be brief."}},
			"Be brief.",
		},
		{
			"joins multiple system blocks",
			[]models.Message{
				{Role: models.RoleSystem, Content: "Be brief."},
				{Role: models.RoleUser, Content: "hi"},
				{Role: models.RoleSystem, Content: "Recalled: user likes tea."},
			},
			"Be brief.\n\nRecalled: user likes tea.",
		},
		{
			"ignores empty system content",
			[]models.Message{
				{Role: models.RoleSystem, Content: ""},
				{Role: models.RoleUser, Content: "hi"},
			},
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SystemText(tt.messages); got != tt.want {
				t.Errorf("SystemText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestToMessagesSkipsSystem(t *testing.T) {
	history := []models.Message{
		{Role: models.RoleSystem, Content: "prompt"},
		{Role: models.RoleUser, Content: "question"},
		{Role: models.RoleAssistant, Content: "answer", ToolCalls: []models.ToolCall{{ID: "c1", Name: "echo"}}},
		{Role: models.RoleTool, Content: "result", ToolResults: []models.ToolResult{{ToolCallID: "c1", Content: "result"}}},
	}

	got := ToMessages(history)
	if len(got) != 3 {
		t.Fatalf("messages = %d, want 3", len(got))
	}
	if got[0].Role != string(models.RoleUser) || got[0].Content != "question" {
		t.Errorf("first = %+v", got[0])
	}
	if len(got[1].ToolCalls) != 1 || got[1].ToolCalls[0].ID != "c1" {
		t.Errorf("assistant tool calls = %+v", got[1].ToolCalls)
	}
	if len(got[2].ToolResults) != 1 || got[2].ToolResults[0].ToolCallID != "c1" {
		t.Errorf("tool results = %+v", got[2].ToolResults)
	}
}
