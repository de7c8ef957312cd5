package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/haasonsaas/aide/pkg/models"
)

type fakeMemory struct {
	mu      sync.Mutex
	entries []MemoryEntry
	queries []string
	err     error
	stored  []MemoryEntry
}

func (f *fakeMemory) Recall(ctx context.Context, query string, k int) ([]MemoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	if k < len(f.entries) {
		return f.entries[:k], nil
	}
	return f.entries, nil
}

func (f *fakeMemory) Store(ctx context.Context, entry MemoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, entry)
	return nil
}

func TestMemoryRecallHookInjectsMemories(t *testing.T) {
	backend := &fakeMemory{entries: []MemoryEntry{
		{ID: "m1", Content: "The user prefers metric units."},
		{ID: "m2", Content: "Their kitchen remodel finished in May."},
	}}
	provider := &fakeProvider{turns: []fakeTurn{
		{chunks: []*CompletionChunk{textChunk("ok"), doneChunk()}},
	}}
	l := newTestLoop(t, Config{
		Provider: provider,
		Hooks:    Hooks{OnBeforeFirstRun: MemoryRecallHook(backend, 5)},
	})
	sess := newTestSession(t, models.Session{SystemPrompt: "Base prompt."})

	runLoop(t, l, sess, "how big was the remodel?")

	backend.mu.Lock()
	queries := backend.queries
	backend.mu.Unlock()
	if len(queries) != 1 || queries[0] != "how big was the remodel?" {
		t.Fatalf("recall queries = %v", queries)
	}

	req := provider.request(0)
	if !strings.Contains(req.System, "Base prompt.") {
		t.Errorf("system lost the base prompt: %q", req.System)
	}
	if !strings.Contains(req.System, "Relevant memories from previous conversations:") {
		t.Errorf("system missing recall header: %q", req.System)
	}
	for _, want := range []string{"- The user prefers metric units.", "- Their kitchen remodel finished in May."} {
		if !strings.Contains(req.System, want) {
			t.Errorf("system missing %q: %q", want, req.System)
		}
	}
	// Recalled context rides the system text, not the message list.
	if len(req.Messages) != 1 {
		t.Errorf("messages = %d, want 1", len(req.Messages))
	}
}

func TestMemoryRecallHookNoResults(t *testing.T) {
	backend := &fakeMemory{}
	provider := &fakeProvider{turns: []fakeTurn{
		{chunks: []*CompletionChunk{textChunk("ok"), doneChunk()}},
	}}
	l := newTestLoop(t, Config{
		Provider: provider,
		Hooks:    Hooks{OnBeforeFirstRun: MemoryRecallHook(backend, 3)},
	})
	sess := newTestSession(t, models.Session{})

	runLoop(t, l, sess, "hello")

	if req := provider.request(0); req.System != "" {
		t.Errorf("system = %q, want empty", req.System)
	}
}

func TestMemoryRecallHookBackendErrorDoesNotStopRun(t *testing.T) {
	backend := &fakeMemory{err: errors.New("vector store down")}
	provider := &fakeProvider{turns: []fakeTurn{
		{chunks: []*CompletionChunk{textChunk("still fine"), doneChunk()}},
	}}
	l := newTestLoop(t, Config{
		Provider: provider,
		Hooks:    Hooks{OnBeforeFirstRun: MemoryRecallHook(backend, 3)},
	})
	sess := newTestSession(t, models.Session{})

	events := runLoop(t, l, sess, "hello")
	last := events[len(events)-1]
	if last.Type != models.EventComplete || last.Complete.Answer != "still fine" {
		t.Fatalf("terminal = %+v", last)
	}
}

func TestLastUserText(t *testing.T) {
	tests := []struct {
		name     string
		messages []models.Message
		want     string
	}{
		{"empty", nil, ""},
		{
			"single user",
			[]models.Message{{Role: models.RoleUser, Content: "hi"}},
			"hi",
		},
		{
			"latest user wins",
			[]models.Message{
				{Role: models.RoleUser, Content: "first"},
				{Role: models.RoleAssistant, Content: "reply"},
				{Role: models.RoleUser, Content: "second"},
			},
			"second",
		},
		{
			"skips trailing assistant and empty user",
			[]models.Message{
				{Role: models.RoleUser, Content: "real question"},
				{Role: models.RoleUser, Content: ""},
				{Role: models.RoleAssistant, Content: "reply"},
			},
			"real question",
		},
		{
			"no user messages",
			[]models.Message{{Role: models.RoleSystem, Content: "prompt"}},
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := lastUserText(tt.messages); got != tt.want {
				t.Errorf("lastUserText() = %q, want %q", got, tt.want)
			}
		})
	}
}
