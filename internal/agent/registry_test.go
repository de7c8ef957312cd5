package agent

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haasonsaas/aide/pkg/models"
)

type exclusiveTool struct {
	fakeTool
}

func (e *exclusiveTool) Exclusive() bool { return true }

func TestRegistryRegister(t *testing.T) {
	tests := []struct {
		name    string
		tool    Tool
		wantErr bool
	}{
		{"valid tool", &fakeTool{name: "echo"}, false},
		{"nil tool", nil, true},
		{"empty name", &fakeTool{name: ""}, true},
		{"overlong name", &fakeTool{name: strings.Repeat("x", MaxToolNameLength+1)}, true},
		{"malformed schema", &fakeTool{name: "bad", schema: `{"type":`}, true},
		{"whitespace schema rejected", &fakeTool{name: "loose", schema: " "}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			err := reg.Register(tt.tool)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Register() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegistryRegisterReplaces(t *testing.T) {
	reg := NewRegistry()
	first := &fakeTool{name: "echo"}
	second := &fakeTool{name: "echo"}
	if err := reg.Register(first); err != nil {
		t.Fatalf("register first: %v", err)
	}
	if err := reg.Register(second); err != nil {
		t.Fatalf("register second: %v", err)
	}
	got, ok := reg.Get("echo")
	if !ok || got != Tool(second) {
		t.Errorf("Get returned wrong tool after replace")
	}
	if reg.Len() != 1 {
		t.Errorf("Len = %d, want 1", reg.Len())
	}
}

func TestRegistryAllowDeny(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"fs_read", "fs_write", "web_search"} {
		if err := reg.Register(&fakeTool{name: name}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	exposedNames := func() []string {
		var names []string
		for _, tool := range reg.Exposed() {
			names = append(names, tool.Name())
		}
		return names
	}

	if got := exposedNames(); len(got) != 3 {
		t.Fatalf("unfiltered exposed = %v", got)
	}

	reg.SetAllowPatterns([]string{"fs_*"})
	got := exposedNames()
	if len(got) != 2 || got[0] != "fs_read" || got[1] != "fs_write" {
		t.Fatalf("allow-filtered exposed = %v", got)
	}

	reg.SetDenyPatterns([]string{"fs_write"})
	got = exposedNames()
	if len(got) != 1 || got[0] != "fs_read" {
		t.Fatalf("deny-filtered exposed = %v", got)
	}

	if reg.Allowed("fs_write") {
		t.Error("denied tool reported allowed")
	}
	if !reg.Allowed("fs_read") {
		t.Error("allowed tool reported denied")
	}

	// A denied tool cannot be executed even though it is registered.
	result, err := reg.Execute(context.Background(), models.ToolCall{ID: "c1", Name: "fs_write", Input: json.RawMessage(`{"text":"x"}`)})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.IsError || !strings.Contains(result.Content, "not found") {
		t.Errorf("result = %+v", result)
	}
}

func TestRegistryValidateParams(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(&fakeTool{name: "echo"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	tests := []struct {
		name    string
		params  string
		wantErr bool
	}{
		{"valid", `{"text":"hi"}`, false},
		{"missing required", `{}`, true},
		{"wrong type", `{"text":42}`, true},
		{"not json", `{"text":`, true},
		{"empty params", ``, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.ValidateParams("echo", json.RawMessage(tt.params))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateParams(%q) error = %v, wantErr %v", tt.params, err, tt.wantErr)
			}
		})
	}

	if err := reg.ValidateParams("unknown", json.RawMessage(`{}`)); err != nil {
		t.Errorf("unknown tool should validate as schemaless: %v", err)
	}
}

func TestRegistryExecuteLimits(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(&fakeTool{name: "echo"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	t.Run("overlong name", func(t *testing.T) {
		call := models.ToolCall{ID: "c1", Name: strings.Repeat("n", MaxToolNameLength+1)}
		result, err := reg.Execute(context.Background(), call)
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		if !result.IsError || !strings.Contains(result.Content, "name exceeds") {
			t.Errorf("result = %+v", result)
		}
	})

	t.Run("oversized params", func(t *testing.T) {
		big := `{"text":"` + strings.Repeat("a", MaxToolParamsSize) + `"}`
		call := models.ToolCall{ID: "c2", Name: "echo", Input: json.RawMessage(big)}
		result, err := reg.Execute(context.Background(), call)
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		if !result.IsError || !strings.Contains(result.Content, "exceed maximum size") {
			t.Errorf("result = %+v", result)
		}
	})
}

func TestRegistryExecuteFillsCallID(t *testing.T) {
	reg := NewRegistry()
	tool := &fakeTool{
		name: "echo",
		exec: func(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
			return &models.ToolResult{Content: "ok"}, nil
		},
	}
	if err := reg.Register(tool); err != nil {
		t.Fatalf("register: %v", err)
	}
	result, err := reg.Execute(context.Background(), models.ToolCall{ID: "call-7", Name: "echo", Input: json.RawMessage(`{"text":"x"}`)})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.ToolCallID != "call-7" {
		t.Errorf("ToolCallID = %q, want call-7", result.ToolCallID)
	}
}

func TestRegistryExclusiveSerializedPerSession(t *testing.T) {
	var active, overlaps int32
	tool := &exclusiveTool{fakeTool: fakeTool{
		name: "deploy",
		exec: func(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
			if atomic.AddInt32(&active, 1) > 1 {
				atomic.AddInt32(&overlaps, 1)
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			return &models.ToolResult{Content: "done"}, nil
		},
	}}
	reg := NewRegistry()
	if err := reg.Register(tool); err != nil {
		t.Fatalf("register: %v", err)
	}

	ctx := WithToolContext(context.Background(), &ToolContext{SessionID: "s1"})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			call := models.ToolCall{ID: "c", Name: "deploy", Input: json.RawMessage(`{"text":"x"}`)}
			if _, err := reg.Execute(ctx, call); err != nil {
				t.Errorf("execute: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&overlaps); got != 0 {
		t.Errorf("exclusive tool overlapped %d times within one session", got)
	}

	reg.ReleaseSession("s1")
	// A released session can run the tool again.
	if _, err := reg.Execute(ctx, models.ToolCall{ID: "c9", Name: "deploy", Input: json.RawMessage(`{"text":"x"}`)}); err != nil {
		t.Fatalf("execute after release: %v", err)
	}
}
