package memory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/haasonsaas/aide/internal/agent"
)

func newStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "memories.jsonl"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestStoreAndRecallByKeyword(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	seed := []string{
		"The deploy pipeline runs on Fridays at noon",
		"User prefers metric units for weather reports",
		"Project aide uses a monorepo layout",
	}
	for _, content := range seed {
		if err := s.Store(ctx, agent.MemoryEntry{Content: content}); err != nil {
			t.Fatalf("store: %v", err)
		}
	}

	got, err := s.Recall(ctx, "when does the deploy pipeline run?", 2)
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("expected at least one recalled entry")
	}
	if got[0].Content != seed[0] {
		t.Fatalf("expected pipeline memory first, got %q", got[0].Content)
	}
}

func TestRecallEmptyQueryReturnsNothing(t *testing.T) {
	s := newStore(t)
	if err := s.Store(context.Background(), agent.MemoryEntry{Content: "anything at all"}); err != nil {
		t.Fatalf("store: %v", err)
	}
	got, err := s.Recall(context.Background(), "   ", 5)
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no results, got %d", len(got))
	}
}

func TestEntriesSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memories.jsonl")

	first, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := first.Store(context.Background(), agent.MemoryEntry{
		Content:   "The database password rotates monthly",
		Tags:      []string{"ops"},
		CreatedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("store: %v", err)
	}

	second, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	if second.Len() != 1 {
		t.Fatalf("expected 1 entry after reopen, got %d", second.Len())
	}
	got, err := second.Recall(context.Background(), "database password", 1)
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(got) != 1 || got[0].Tags[0] != "ops" {
		t.Fatalf("unexpected recall result: %+v", got)
	}
}

func TestRecallRanksTagMatches(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.Store(ctx, agent.MemoryEntry{Content: "General note about travel plans"}); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := s.Store(ctx, agent.MemoryEntry{
		Content: "Travel checklist lives in the shared drive",
		Tags:    []string{"travel"},
	}); err != nil {
		t.Fatalf("store: %v", err)
	}

	got, err := s.Recall(ctx, "travel", 2)
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected both entries, got %d", len(got))
	}
	if got[0].Tags == nil {
		t.Fatalf("tagged entry should rank first, got %q", got[0].Content)
	}
}
