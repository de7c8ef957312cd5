// Package compaction manages bounded conversation contexts: token
// estimation, a window manager that triggers compaction past a threshold,
// and the drop_oldest, summarize, and sliding strategies.
package compaction

import "github.com/haasonsaas/aide/pkg/models"

// CharsPerToken is the approximate character-to-token ratio for estimation.
const CharsPerToken = 4

// estimateSpan estimates tokens for one text span using ceiling division.
func estimateSpan(chars int) int {
	if chars <= 0 {
		return 0
	}
	return (chars + CharsPerToken - 1) / CharsPerToken
}

// EstimateTokens estimates the token count of a message. Every text span,
// serialized tool input, and tool output contributes ceil(chars/4).
func EstimateTokens(msg *models.Message) int {
	if msg == nil {
		return 0
	}
	total := estimateSpan(len(msg.Content))
	for _, b := range msg.Blocks {
		total += estimateSpan(len(b.Text))
		total += estimateSpan(len(b.Input))
		total += estimateSpan(len(b.Output))
	}
	for _, tc := range msg.ToolCalls {
		total += estimateSpan(len(tc.Input))
	}
	for _, tr := range msg.ToolResults {
		total += estimateSpan(len(tr.Content))
	}
	return total
}

// EstimateAll sums the token estimates of the given messages.
func EstimateAll(messages []models.Message) int {
	total := 0
	for i := range messages {
		total += EstimateTokens(&messages[i])
	}
	return total
}
