package models

// Outcome is the overall verdict of a verification pass.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailure Outcome = "failure"
)

// IssueSeverity grades verification issues.
type IssueSeverity string

const (
	SeverityInfo    IssueSeverity = "info"
	SeverityWarning IssueSeverity = "warning"
	SeverityError   IssueSeverity = "error"
)

// Issue is one finding from a verification rule or the judge.
type Issue struct {
	Severity IssueSeverity `json:"severity"`
	Message  string        `json:"message"`
}

// StateSnapshot is a tool-reported state pre/post image used by the
// state-consistency rule and the judge's diff list.
type StateSnapshot struct {
	ToolName string `json:"tool_name"`
	CallID   string `json:"call_id,omitempty"`
	Phase    string `json:"phase"` // before or after
	Snapshot string `json:"snapshot"`
}

// VerificationContext is everything the verifier sees about a finished turn.
type VerificationContext struct {
	TaskDescription string          `json:"task_description"`
	FinalAnswer     string          `json:"final_answer"`
	Messages        []Message       `json:"messages,omitempty"`
	ToolResults     []ToolResult    `json:"tool_results,omitempty"`
	Snapshots       []StateSnapshot `json:"snapshots,omitempty"`
}

// FormatCheck is the result of the rule-based phase.
type FormatCheck struct {
	Passed   bool     `json:"passed"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Infos    []string `json:"infos,omitempty"`
}

// SemanticCheck is the result of the LLM-judge phase. Score is normalized
// to [0,1].
type SemanticCheck struct {
	Score     float64 `json:"score"`
	Passed    bool    `json:"passed"`
	Reasoning string  `json:"reasoning,omitempty"`
	Issues    []Issue `json:"issues,omitempty"`
}

// VerificationResult combines both phases into the final verdict.
type VerificationResult struct {
	Outcome     Outcome        `json:"outcome"`
	Confidence  float64        `json:"confidence"`
	Reasoning   string         `json:"reasoning,omitempty"`
	Issues      []Issue        `json:"issues,omitempty"`
	Suggestions []string       `json:"suggestions,omitempty"`
	Format      FormatCheck    `json:"format"`
	Semantic    *SemanticCheck `json:"semantic,omitempty"`
}
