package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/aide/internal/compaction"
	"github.com/haasonsaas/aide/pkg/models"
)

const summaryPrompt = `Summarize the following conversation concisely. Preserve:
- decisions made and their reasons
- facts the user stated about themselves or their environment
- unresolved questions and pending work
- outcomes of tool calls that later messages rely on

Write plain prose, no headings, at most 300 words.`

// summaryMaxTokens bounds the summarizer completion.
const summaryMaxTokens = 600

// ProviderSummarizer condenses conversation prefixes through a model
// backend. It satisfies compaction.Summarizer so the context manager can
// summarize instead of dropping history.
type ProviderSummarizer struct {
	provider Provider
	model    string
}

// NewProviderSummarizer builds a summarizer over the given provider and
// model.
func NewProviderSummarizer(p Provider, model string) *ProviderSummarizer {
	return &ProviderSummarizer{provider: p, model: model}
}

// Summarize implements compaction.Summarizer.
func (s *ProviderSummarizer) Summarize(ctx context.Context, messages []models.Message) (string, error) {
	if s.provider == nil {
		return "", ErrNoProvider
	}
	transcript := compaction.FormatForSummary(messages)
	if transcript == "" {
		return "", nil
	}

	temp := 0.0
	req := &CompletionRequest{
		Model:       s.model,
		System:      summaryPrompt,
		MaxTokens:   summaryMaxTokens,
		Temperature: &temp,
		Messages: []CompletionMessage{
			{Role: string(models.RoleUser), Content: transcript},
		},
	}

	chunks, err := s.provider.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("summary completion: %w", err)
	}

	var b strings.Builder
	for chunk := range chunks {
		if chunk.Error != nil {
			return "", fmt.Errorf("summary stream: %w", chunk.Error)
		}
		b.WriteString(chunk.Text)
	}
	return strings.TrimSpace(b.String()), nil
}

var _ compaction.Summarizer = (*ProviderSummarizer)(nil)
