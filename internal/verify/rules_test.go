package verify

import (
	"strings"
	"testing"

	"github.com/haasonsaas/aide/pkg/models"
)

func findRule(t *testing.T, name string) Rule {
	t.Helper()
	for _, r := range builtinRules(10, 0.5) {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("no builtin rule named %q", name)
	return Rule{}
}

func TestAnswerLengthRule(t *testing.T) {
	rule := findRule(t, "answer_length")
	if rule.Severity != models.SeverityError {
		t.Fatalf("severity = %q", rule.Severity)
	}

	tests := []struct {
		name    string
		answer  string
		finding bool
	}{
		{"long enough", "This is a complete answer.", false},
		{"too short", "ok", true},
		{"empty", "", true},
		{"whitespace only", "    \n\t   ", true},
		{"padding does not count", "   hi   ", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rule.Check(&models.VerificationContext{FinalAnswer: tt.answer})
			if (got != "") != tt.finding {
				t.Errorf("finding = %q, want finding=%v", got, tt.finding)
			}
		})
	}
}

func TestToolErrorRatioRule(t *testing.T) {
	rule := findRule(t, "tool_error_ratio")

	results := func(failed, ok int) []models.ToolResult {
		var out []models.ToolResult
		for i := 0; i < failed; i++ {
			out = append(out, models.ToolResult{IsError: true})
		}
		for i := 0; i < ok; i++ {
			out = append(out, models.ToolResult{})
		}
		return out
	}

	tests := []struct {
		name    string
		results []models.ToolResult
		finding bool
	}{
		{"no tools", nil, false},
		{"all succeeded", results(0, 3), false},
		{"under threshold", results(1, 3), false},
		{"at threshold", results(1, 1), true},
		{"all failed", results(2, 0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rule.Check(&models.VerificationContext{ToolResults: tt.results})
			if (got != "") != tt.finding {
				t.Errorf("finding = %q, want finding=%v", got, tt.finding)
			}
		})
	}

	if got := rule.Check(&models.VerificationContext{ToolResults: results(2, 1)}); !strings.Contains(got, "2 of 3") {
		t.Errorf("finding = %q, want the failure count", got)
	}
}

func TestErrorOnlyAnswerRule(t *testing.T) {
	rule := findRule(t, "error_only_answer")

	tests := []struct {
		name    string
		answer  string
		finding bool
	}{
		{"normal answer", "The build finished without problems.", false},
		{"error prefix", "Error: connection refused", true},
		{"apologetic error", "An error occurred while reading the file.", true},
		{"unable prefix", "Unable to complete the request.", true},
		{"error mentioned mid-answer", "The log shows one error: a flaky test.", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rule.Check(&models.VerificationContext{FinalAnswer: tt.answer})
			if (got != "") != tt.finding {
				t.Errorf("finding = %q, want finding=%v", got, tt.finding)
			}
		})
	}
}

func TestTaskReferenceRule(t *testing.T) {
	rule := findRule(t, "task_reference")
	if rule.Severity != models.SeverityWarning {
		t.Fatalf("severity = %q, want warning", rule.Severity)
	}

	tests := []struct {
		name    string
		task    string
		answer  string
		finding bool
	}{
		{
			name:   "shared term",
			task:   "summarize README",
			answer: "The README describes ch4p.",
		},
		{
			name:    "no overlap",
			task:    "compile kernel statistics",
			answer:  "Sure thing, everything went fine just now.",
			finding: true,
		},
		{
			name:   "empty task never warns",
			task:   "",
			answer: "Whatever you say.",
		},
		{
			name:   "short task words ignored",
			task:   "do it now",
			answer: "Done already.",
		},
		{
			name:   "case insensitive",
			task:   "inspect the DATABASE",
			answer: "the database looks healthy",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rule.Check(&models.VerificationContext{
				TaskDescription: tt.task,
				FinalAnswer:     tt.answer,
			})
			if (got != "") != tt.finding {
				t.Errorf("finding = %q, want finding=%v", got, tt.finding)
			}
		})
	}
}

func TestStateConsistencyRule(t *testing.T) {
	rule := findRule(t, "state_consistency")
	if rule.Severity != models.SeverityInfo {
		t.Fatalf("severity = %q, want info", rule.Severity)
	}

	t.Run("changed state passes", func(t *testing.T) {
		got := rule.Check(&models.VerificationContext{Snapshots: []models.StateSnapshot{
			{ToolName: "files", CallID: "c1", Phase: "before", Snapshot: "a"},
			{ToolName: "files", CallID: "c1", Phase: "after", Snapshot: "b"},
		}})
		if got != "" {
			t.Errorf("finding = %q", got)
		}
	})

	t.Run("unchanged state noted", func(t *testing.T) {
		got := rule.Check(&models.VerificationContext{Snapshots: []models.StateSnapshot{
			{ToolName: "files", CallID: "c1", Phase: "before", Snapshot: "same"},
			{ToolName: "files", CallID: "c1", Phase: "after", Snapshot: "same"},
		}})
		if !strings.Contains(got, "files") {
			t.Errorf("finding = %q, want the tool name", got)
		}
	})

	t.Run("unpaired snapshots ignored", func(t *testing.T) {
		got := rule.Check(&models.VerificationContext{Snapshots: []models.StateSnapshot{
			{ToolName: "clock", CallID: "c9", Phase: "after", Snapshot: "tick"},
		}})
		if got != "" {
			t.Errorf("finding = %q", got)
		}
	})

	t.Run("tool listed once", func(t *testing.T) {
		got := rule.Check(&models.VerificationContext{Snapshots: []models.StateSnapshot{
			{ToolName: "files", CallID: "c1", Phase: "before", Snapshot: "x"},
			{ToolName: "files", CallID: "c1", Phase: "after", Snapshot: "x"},
			{ToolName: "files", CallID: "c2", Phase: "before", Snapshot: "y"},
			{ToolName: "files", CallID: "c2", Phase: "after", Snapshot: "y"},
		}})
		if strings.Count(got, "files") != 1 {
			t.Errorf("finding = %q, want the tool named once", got)
		}
	})
}

func TestMeaningfulTokens(t *testing.T) {
	got := meaningfulTokens("Summarize the README, then count ch4p's files!")
	want := []string{"summarize", "readme", "then", "count", "ch4p", "files"}
	for _, tok := range want {
		if !got[tok] {
			t.Errorf("missing token %q in %v", tok, got)
		}
	}
	if got["the"] {
		t.Error("short token was kept")
	}
}
