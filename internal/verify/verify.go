// Package verify gates the agent loop's final answers with a two-phase
// check: cheap format rules first, then an optional LLM judge. The format
// phase fails only on error findings; warnings degrade an otherwise
// successful outcome to partial.
package verify

import (
	"context"
	"log/slog"
	"strings"

	"github.com/haasonsaas/aide/internal/agent"
	"github.com/haasonsaas/aide/pkg/models"
)

const (
	defaultMinAnswerLength   = 10
	defaultMaxToolErrorRatio = 0.5

	// Confidence when only the format phase ran.
	formatPassConfidence = 0.7
	formatFailConfidence = 0.2

	// Semantic score thresholds separating the three outcomes.
	successThreshold = 0.71
	partialThreshold = 0.31
)

// Config assembles a Verifier.
type Config struct {
	// MinAnswerLength is the smallest acceptable final answer in characters.
	MinAnswerLength int

	// MaxToolErrorRatio fails the format phase when at least this share of
	// tool calls errored.
	MaxToolErrorRatio float64

	// Rules run after the built-in ones.
	Rules []Rule

	// Judge enables the semantic phase. Nil keeps verification format-only.
	Judge *Judge

	Logger *slog.Logger
}

// Verifier combines the rule phase and the judge phase into one verdict.
type Verifier struct {
	rules  []Rule
	judge  *Judge
	logger *slog.Logger
}

var _ agent.Verifier = (*Verifier)(nil)

// New creates a Verifier, applying defaults for unset limits.
func New(cfg Config) *Verifier {
	if cfg.MinAnswerLength <= 0 {
		cfg.MinAnswerLength = defaultMinAnswerLength
	}
	if cfg.MaxToolErrorRatio <= 0 {
		cfg.MaxToolErrorRatio = defaultMaxToolErrorRatio
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rules := builtinRules(cfg.MinAnswerLength, cfg.MaxToolErrorRatio)
	rules = append(rules, cfg.Rules...)
	return &Verifier{
		rules:  rules,
		judge:  cfg.Judge,
		logger: logger.With("component", "verify"),
	}
}

// Verify runs both phases over a finished turn. A failed format phase skips
// the judge entirely. Judge transport errors are not fatal; they surface as
// a failing semantic check so the caller still gets a verdict.
func (v *Verifier) Verify(ctx context.Context, vc *models.VerificationContext) (*models.VerificationResult, error) {
	format, issues := v.runFormat(vc)

	result := &models.VerificationResult{
		Format: format,
		Issues: issues,
	}

	if !format.Passed {
		result.Outcome = models.OutcomeFailure
		result.Confidence = formatFailConfidence
		result.Reasoning = strings.Join(format.Errors, "; ")
		return result, nil
	}

	if v.judge == nil {
		result.Outcome = models.OutcomeSuccess
		result.Confidence = formatPassConfidence
		result.Reasoning = "format checks passed"
		if len(format.Warnings) > 0 {
			result.Outcome = models.OutcomePartial
			result.Reasoning = strings.Join(format.Warnings, "; ")
		}
		return result, nil
	}

	semantic, suggestions, err := v.judge.Score(ctx, vc)
	if err != nil {
		v.logger.Warn("judge unavailable", "error", err)
		semantic = &models.SemanticCheck{
			Reasoning: "semantic check unavailable: " + err.Error(),
		}
		suggestions = nil
	}

	result.Semantic = semantic
	result.Suggestions = suggestions
	result.Issues = append(result.Issues, semantic.Issues...)
	result.Confidence = semantic.Score
	result.Reasoning = semantic.Reasoning

	switch {
	case semantic.Score >= successThreshold:
		result.Outcome = models.OutcomeSuccess
	case semantic.Score >= partialThreshold:
		result.Outcome = models.OutcomePartial
	default:
		result.Outcome = models.OutcomeFailure
	}
	if result.Outcome == models.OutcomeSuccess && len(format.Warnings) > 0 {
		result.Outcome = models.OutcomePartial
	}
	return result, nil
}

// runFormat evaluates every rule and folds the findings into a FormatCheck
// plus the matching issue entries.
func (v *Verifier) runFormat(vc *models.VerificationContext) (models.FormatCheck, []models.Issue) {
	check := models.FormatCheck{Passed: true}
	var issues []models.Issue
	for _, rule := range v.rules {
		if rule.Check == nil {
			continue
		}
		finding := rule.Check(vc)
		if finding == "" {
			continue
		}
		issues = append(issues, models.Issue{Severity: rule.Severity, Message: finding})
		switch rule.Severity {
		case models.SeverityError:
			check.Errors = append(check.Errors, finding)
			check.Passed = false
		case models.SeverityWarning:
			check.Warnings = append(check.Warnings, finding)
		default:
			check.Infos = append(check.Infos, finding)
		}
	}
	return check, issues
}
