package security

import (
	"context"
	"log/slog"
)

// Policy is the capability set tools and the agent loop consult before
// acting. Implementations must be safe for concurrent use.
type Policy interface {
	// ValidatePath resolves and authorizes a filesystem path for the
	// operation, returning the absolute path tools should use.
	ValidatePath(path string, op Op) (string, error)

	// ValidateCommand authorizes an argv before execution.
	ValidateCommand(argv []string) error

	// ValidateInput scans user text for threats. The returned error is a
	// *SecurityError when a critical threat blocks the input; lower
	// severities are advisory and only reported in the slice.
	ValidateInput(text string, conv *ConversationContext) ([]Threat, error)

	// SanitizeOutput redacts sensitive substrings and reports which
	// patterns matched.
	SanitizeOutput(text string) (string, []string)

	// RequiresConfirmation reports whether the operation needs explicit
	// user approval before running.
	RequiresConfirmation(op Op) bool

	// Audit records a policy decision.
	Audit(ctx context.Context, decision string, attrs ...any)
}

// Config carries the tunable parts of the default policy.
type Config struct {
	WorkspaceRoot          string
	BlockedPaths           []string
	BlockedCommands        []string
	RedactPatterns         map[string]string
	EnforceSymlinkBoundary bool

	// ConfirmExec gates command execution behind user approval.
	ConfirmExec bool
}

// DefaultPolicy composes the filesystem scope, command blocklist, input
// validator, and output sanitizer.
type DefaultPolicy struct {
	scope       *FilesystemScope
	commands    *CommandPolicy
	input       *InputValidator
	sanitizer   *OutputSanitizer
	confirmExec bool
	logger      *slog.Logger
}

// NewPolicy builds the default policy from configuration.
func NewPolicy(cfg Config, logger *slog.Logger) (*DefaultPolicy, error) {
	if logger == nil {
		logger = slog.Default()
	}
	scope, err := NewFilesystemScope(cfg.WorkspaceRoot, cfg.BlockedPaths, cfg.EnforceSymlinkBoundary)
	if err != nil {
		return nil, err
	}
	sanitizer, err := NewOutputSanitizer(cfg.RedactPatterns)
	if err != nil {
		return nil, err
	}
	return &DefaultPolicy{
		scope:       scope,
		commands:    NewCommandPolicy(cfg.BlockedCommands),
		input:       NewInputValidator(),
		sanitizer:   sanitizer,
		confirmExec: cfg.ConfirmExec,
		logger:      logger.With("component", "security"),
	}, nil
}

// WorkspaceRoot returns the absolute workspace root the policy confines
// file access to.
func (p *DefaultPolicy) WorkspaceRoot() string {
	return p.scope.Root()
}

func (p *DefaultPolicy) ValidatePath(path string, op Op) (string, error) {
	resolved, err := p.scope.ValidatePath(path, op)
	if err != nil {
		if se, ok := AsSecurityError(err); ok {
			p.logger.Warn("path rejected", "op", string(op), "path", path, "detail", se.Detail)
		}
		return "", err
	}
	return resolved, nil
}

func (p *DefaultPolicy) ValidateCommand(argv []string) error {
	if err := p.commands.ValidateCommand(argv); err != nil {
		if se, ok := AsSecurityError(err); ok {
			p.logger.Warn("command rejected", "detail", se.Detail)
		}
		return err
	}
	return nil
}

func (p *DefaultPolicy) ValidateInput(text string, conv *ConversationContext) ([]Threat, error) {
	threats := p.input.Scan(text, conv)
	if len(threats) == 0 {
		return nil, nil
	}
	top := threats[0]
	if top.Severity.AtLeast(SeverityCritical) {
		p.logger.Warn("input blocked",
			"category", string(top.Category),
			"pattern", top.Pattern,
			"threats", len(threats))
		return threats, &SecurityError{
			Kind:     KindInputThreat,
			Severity: top.Severity,
			Detail:   string(top.Category) + " attempt detected",
			Pattern:  top.Pattern,
		}
	}
	p.logger.Debug("input threats noted",
		"category", string(top.Category),
		"severity", string(top.Severity),
		"threats", len(threats))
	return threats, nil
}

func (p *DefaultPolicy) SanitizeOutput(text string) (string, []string) {
	sanitized, matched := p.sanitizer.Sanitize(text)
	if len(matched) > 0 {
		p.logger.Info("output redacted", "patterns", matched)
	}
	return sanitized, matched
}

func (p *DefaultPolicy) RequiresConfirmation(op Op) bool {
	return op == OpExec && p.confirmExec
}

func (p *DefaultPolicy) Audit(ctx context.Context, decision string, attrs ...any) {
	p.logger.InfoContext(ctx, "audit: "+decision, attrs...)
}

var _ Policy = (*DefaultPolicy)(nil)
