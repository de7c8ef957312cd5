package agent

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/haasonsaas/aide/internal/sessions"
	"github.com/haasonsaas/aide/pkg/models"
)

// DefaultRecallCount is how many memories the recall hook asks for.
const DefaultRecallCount = 5

// MemoryRecallHook builds an OnBeforeFirstRun hook that queries the memory
// backend with the latest user message and injects the results as a
// synthetic system message, so the engine sees recalled context without the
// user repeating it.
func MemoryRecallHook(backend MemoryBackend, k int) func(ctx context.Context, sess *sessions.Session) error {
	if k <= 0 {
		k = DefaultRecallCount
	}
	return func(ctx context.Context, sess *sessions.Session) error {
		if backend == nil {
			return nil
		}
		query := lastUserText(sess.Context.Messages())
		if query == "" {
			return nil
		}
		entries, err := backend.Recall(ctx, query, k)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}

		var b strings.Builder
		b.WriteString("Relevant memories from previous conversations:\n")
		for _, e := range entries {
			b.WriteString("- ")
			b.WriteString(strings.TrimSpace(e.Content))
			b.WriteString("\n")
		}
		sess.Context.AddMessage(ctx, models.Message{
			ID:        uuid.NewString(),
			SessionID: sess.ID(),
			Role:      models.RoleSystem,
			Content:   b.String(),
		})
		return nil
	}
}

func lastUserText(messages []models.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleUser && messages[i].Content != "" {
			return messages[i].Content
		}
	}
	return ""
}
