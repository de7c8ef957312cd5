package compaction

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/aide/pkg/models"
)

// Summarizer condenses a message prefix into a short text during the
// summarize and sliding strategies.
type Summarizer interface {
	Summarize(ctx context.Context, messages []models.Message) (string, error)
}

// SummarizerFunc adapts a function into a Summarizer.
type SummarizerFunc func(ctx context.Context, messages []models.Message) (string, error)

// Summarize implements Summarizer.
func (f SummarizerFunc) Summarize(ctx context.Context, messages []models.Message) (string, error) {
	return f(ctx, messages)
}

// maxSummaryChunkTokens bounds how much conversation a single summarizer
// call sees; longer prefixes are summarized per chunk and merged.
const maxSummaryChunkTokens = 20000

// ChunkedSummarize splits long prefixes into token-bounded chunks, runs the
// summarizer over each, and joins the partial summaries. Short prefixes go
// through in one call.
func ChunkedSummarize(ctx context.Context, s Summarizer, messages []models.Message) (string, error) {
	if s == nil {
		return "", fmt.Errorf("summarizer is nil")
	}
	if len(messages) == 0 {
		return "", nil
	}
	if EstimateAll(messages) <= maxSummaryChunkTokens {
		return s.Summarize(ctx, messages)
	}

	var chunks [][]models.Message
	var current []models.Message
	tokens := 0
	for i := range messages {
		t := EstimateTokens(&messages[i])
		if tokens+t > maxSummaryChunkTokens && len(current) > 0 {
			chunks = append(chunks, current)
			current = nil
			tokens = 0
		}
		current = append(current, messages[i])
		tokens += t
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}

	parts := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		part, err := s.Summarize(ctx, chunk)
		if err != nil {
			return "", fmt.Errorf("summarizing chunk %d: %w", i, err)
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, "\n"), nil
}

// FormatForSummary renders messages into the plain-text transcript handed to
// a summarizing model.
func FormatForSummary(messages []models.Message) string {
	var sb strings.Builder
	for i := range messages {
		msg := &messages[i]
		sb.WriteString("[")
		sb.WriteString(string(msg.Role))
		sb.WriteString("]: ")
		sb.WriteString(msg.Content)
		for _, tc := range msg.ToolCalls {
			sb.WriteString(fmt.Sprintf("\n  [tool call %s: %s]", tc.Name, truncate(string(tc.Input), 200)))
		}
		for _, tr := range msg.ToolResults {
			sb.WriteString(fmt.Sprintf("\n  [tool result: %s]", truncate(tr.Content, 200)))
		}
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
