package verify

import (
	"fmt"
	"strings"

	"github.com/haasonsaas/aide/pkg/models"
)

// Rule is one format-phase check. Check returns "" when the context passes
// and a human-readable finding otherwise; Severity decides whether the
// finding is an error (fails the phase), a warning (degrades the outcome),
// or an info note.
type Rule struct {
	Name     string
	Severity models.IssueSeverity
	Check    func(vc *models.VerificationContext) string
}

// errorAnswerPrefixes mark answers that only report a failure instead of
// addressing the task.
var errorAnswerPrefixes = []string{
	"error:",
	"error -",
	"an error occurred",
	"i encountered an error",
	"something went wrong",
	"unable to complete",
	"failed to complete",
}

func builtinRules(minAnswerLength int, maxToolErrorRatio float64) []Rule {
	return []Rule{
		{
			Name:     "answer_length",
			Severity: models.SeverityError,
			Check: func(vc *models.VerificationContext) string {
				trimmed := strings.TrimSpace(vc.FinalAnswer)
				if len(trimmed) < minAnswerLength {
					return fmt.Sprintf("final answer is %d characters, below the minimum of %d", len(trimmed), minAnswerLength)
				}
				return ""
			},
		},
		{
			Name:     "tool_error_ratio",
			Severity: models.SeverityError,
			Check: func(vc *models.VerificationContext) string {
				if len(vc.ToolResults) == 0 {
					return ""
				}
				failed := 0
				for _, tr := range vc.ToolResults {
					if tr.IsError {
						failed++
					}
				}
				ratio := float64(failed) / float64(len(vc.ToolResults))
				if ratio >= maxToolErrorRatio {
					return fmt.Sprintf("%d of %d tool calls failed", failed, len(vc.ToolResults))
				}
				return ""
			},
		},
		{
			Name:     "error_only_answer",
			Severity: models.SeverityError,
			Check: func(vc *models.VerificationContext) string {
				lower := strings.ToLower(strings.TrimSpace(vc.FinalAnswer))
				for _, prefix := range errorAnswerPrefixes {
					if strings.HasPrefix(lower, prefix) {
						return "the answer only reports an error"
					}
				}
				return ""
			},
		},
		{
			Name:     "task_reference",
			Severity: models.SeverityWarning,
			Check: func(vc *models.VerificationContext) string {
				taskTokens := meaningfulTokens(vc.TaskDescription)
				if len(taskTokens) == 0 {
					return ""
				}
				answerTokens := meaningfulTokens(vc.FinalAnswer)
				for tok := range taskTokens {
					if answerTokens[tok] {
						return ""
					}
				}
				return "the answer does not reference any terms from the task"
			},
		},
		{
			Name:     "state_consistency",
			Severity: models.SeverityInfo,
			Check: func(vc *models.VerificationContext) string {
				unchanged := unchangedSnapshotTools(vc.Snapshots)
				if len(unchanged) == 0 {
					return ""
				}
				return "no state change reported by: " + strings.Join(unchanged, ", ")
			},
		},
	}
}

// meaningfulTokens lowercases and splits text, keeping words long enough to
// carry meaning for the overlap heuristic.
func meaningfulTokens(text string) map[string]bool {
	tokens := make(map[string]bool)
	word := strings.Builder{}
	flush := func() {
		if word.Len() >= 4 {
			tokens[word.String()] = true
		}
		word.Reset()
	}
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			word.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return tokens
}

// unchangedSnapshotTools pairs before/after snapshots per call and returns
// the tools whose state did not change.
func unchangedSnapshotTools(snapshots []models.StateSnapshot) []string {
	before := make(map[string]models.StateSnapshot)
	var unchanged []string
	seen := make(map[string]bool)
	for _, s := range snapshots {
		key := s.CallID
		if key == "" {
			key = s.ToolName
		}
		switch s.Phase {
		case "before":
			before[key] = s
		case "after":
			b, ok := before[key]
			if ok && b.Snapshot == s.Snapshot && !seen[s.ToolName] {
				seen[s.ToolName] = true
				unchanged = append(unchanged, s.ToolName)
			}
		}
	}
	return unchanged
}
