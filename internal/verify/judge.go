package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/haasonsaas/aide/internal/agent"
	"github.com/haasonsaas/aide/pkg/models"
)

const (
	defaultJudgeMaxTokens   = 512
	defaultMaxToolResults   = 5
	toolResultExcerptLength = 400
	reasoningExcerptLength  = 500
	snapshotExcerptLength   = 120
)

const judgeSystemPrompt = `You are a strict evaluator of an AI assistant's work. Judge whether the final answer completes the stated task, using the tool results and state changes as evidence.

Respond with only a JSON object:
{"score": <0-100>, "passed": <true|false>, "reasoning": "<one or two sentences>", "issues": [{"severity": "info|warning|error", "message": "<finding>"}], "suggestions": ["<improvement>"]}

Score 0 means the answer ignores or fails the task, 100 means it completes it fully and accurately.`

var scorePattern = regexp.MustCompile(`[-+]?[0-9]*\.?[0-9]+`)

// Judge scores a finished turn with a model call. Temperature is pinned to
// zero so repeated verifications of the same turn stay stable.
type Judge struct {
	provider       agent.Provider
	defaultModel   string
	maxTokens      int
	maxToolResults int
}

// NewJudge creates a judge over the given provider. An empty model falls
// back to the provider's first advertised model.
func NewJudge(provider agent.Provider, defaultModel string) *Judge {
	return &Judge{
		provider:       provider,
		defaultModel:   defaultModel,
		maxTokens:      defaultJudgeMaxTokens,
		maxToolResults: defaultMaxToolResults,
	}
}

// SetMaxTokens overrides the token limit for judge responses.
func (j *Judge) SetMaxTokens(tokens int) {
	if tokens > 0 {
		j.maxTokens = tokens
	}
}

// SetMaxToolResults bounds how many tool results the judge prompt includes.
func (j *Judge) SetMaxToolResults(n int) {
	if n > 0 {
		j.maxToolResults = n
	}
}

// Score runs the semantic phase over a finished turn. The returned strings
// are the judge's improvement suggestions, which feed the final result but
// are not part of the check itself.
func (j *Judge) Score(ctx context.Context, vc *models.VerificationContext) (*models.SemanticCheck, []string, error) {
	if j == nil || j.provider == nil {
		return nil, nil, fmt.Errorf("judge provider is nil")
	}

	temp := 0.0
	req := &agent.CompletionRequest{
		Model:       j.resolveModel(),
		System:      judgeSystemPrompt,
		MaxTokens:   j.maxTokens,
		Temperature: &temp,
		Messages: []agent.CompletionMessage{{
			Role:    string(models.RoleUser),
			Content: j.buildPrompt(vc),
		}},
	}

	text, err := j.completeText(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	return parseVerdict(text)
}

func (j *Judge) buildPrompt(vc *models.VerificationContext) string {
	var b strings.Builder
	b.WriteString("Task:\n")
	b.WriteString(vc.TaskDescription)
	b.WriteString("\n\nFinal answer:\n")
	b.WriteString(vc.FinalAnswer)

	if len(vc.ToolResults) > 0 {
		b.WriteString("\n\nTool results:")
		shown := vc.ToolResults
		omitted := 0
		if len(shown) > j.maxToolResults {
			omitted = len(shown) - j.maxToolResults
			shown = shown[len(shown)-j.maxToolResults:]
		}
		for _, tr := range shown {
			status := "ok"
			if tr.IsError {
				status = "FAILED"
			}
			b.WriteString(fmt.Sprintf("\n- [%s] %s", status, excerpt(tr.Content, toolResultExcerptLength)))
		}
		if omitted > 0 {
			b.WriteString(fmt.Sprintf("\n(%d earlier tool results omitted)", omitted))
		}
	}

	if diffs := stateDiffs(vc.Snapshots); len(diffs) > 0 {
		b.WriteString("\n\nState changes:")
		for _, d := range diffs {
			b.WriteString("\n- ")
			b.WriteString(d)
		}
	}
	return b.String()
}

// stateDiffs renders one before/after line per tool call whose snapshot
// actually changed.
func stateDiffs(snapshots []models.StateSnapshot) []string {
	before := make(map[string]models.StateSnapshot)
	var diffs []string
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
			if !ok || b.Snapshot == s.Snapshot {
				continue
			}
			diffs = append(diffs, fmt.Sprintf("%s: %s -> %s",
				s.ToolName, excerpt(b.Snapshot, snapshotExcerptLength), excerpt(s.Snapshot, snapshotExcerptLength)))
		}
	}
	return diffs
}

func (j *Judge) resolveModel() string {
	if model := strings.TrimSpace(j.defaultModel); model != "" {
		return model
	}
	if ms := j.provider.Models(); len(ms) > 0 {
		return ms[0].ID
	}
	return ""
}

func (j *Judge) completeText(ctx context.Context, req *agent.CompletionRequest) (string, error) {
	ch, err := j.provider.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for chunk := range ch {
		if chunk == nil {
			continue
		}
		if chunk.Error != nil {
			return "", chunk.Error
		}
		if chunk.ToolCall != nil {
			return "", fmt.Errorf("judge requested a tool call")
		}
		if chunk.Text != "" {
			sb.WriteString(chunk.Text)
		}
		if chunk.Done {
			break
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

type judgeVerdict struct {
	Score       float64        `json:"score"`
	Passed      bool           `json:"passed"`
	Reasoning   string         `json:"reasoning"`
	Issues      []verdictIssue `json:"issues"`
	Suggestions []string       `json:"suggestions"`
}

type verdictIssue struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// parseVerdict decodes the judge's JSON reply. Markdown fences are
// tolerated; when the JSON does not parse, the first number in the text is
// taken as the 0-100 score.
func parseVerdict(text string) (*models.SemanticCheck, []string, error) {
	if text == "" {
		return nil, nil, fmt.Errorf("empty judge response")
	}
	raw := stripFences(text)

	var verdict judgeVerdict
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		score, ferr := fallbackScore(raw)
		if ferr != nil {
			return nil, nil, fmt.Errorf("unparseable judge response: %w", ferr)
		}
		verdict = judgeVerdict{
			Score:     score,
			Passed:    score >= 71,
			Reasoning: excerpt(text, reasoningExcerptLength),
		}
	}

	check := &models.SemanticCheck{
		Score:     clampScore(verdict.Score) / 100,
		Passed:    verdict.Passed,
		Reasoning: verdict.Reasoning,
	}
	for _, issue := range verdict.Issues {
		check.Issues = append(check.Issues, models.Issue{
			Severity: issueSeverity(issue.Severity),
			Message:  issue.Message,
		})
	}
	return check, verdict.Suggestions, nil
}

// stripFences unwraps a ```json ... ``` (or bare ```) code fence.
func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

func fallbackScore(text string) (float64, error) {
	match := scorePattern.FindString(text)
	if match == "" {
		return 0, fmt.Errorf("no numeric score in response: %q", excerpt(text, 80))
	}
	val, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid score %q: %w", match, err)
	}
	return val, nil
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func issueSeverity(s string) models.IssueSeverity {
	switch models.IssueSeverity(strings.ToLower(s)) {
	case models.SeverityInfo:
		return models.SeverityInfo
	case models.SeverityError:
		return models.SeverityError
	default:
		return models.SeverityWarning
	}
}

func excerpt(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
