// Package security enforces the runtime safety policy: filesystem scope,
// command blocklists, input threat detection, and output redaction. Tools
// and the agent loop call into a Policy before touching the outside world.
package security

import (
	"errors"
	"fmt"
)

// Severity grades a violation or detected threat.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the ordering weight of the severity; unknown values rank 0.
func (s Severity) Rank() int {
	return severityRank[s]
}

// AtLeast reports whether s is at least as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// Kind names the policy surface that rejected the operation.
type Kind string

const (
	KindPathScope   Kind = "path_scope"
	KindCommand     Kind = "command"
	KindInputThreat Kind = "input_threat"
)

// SecurityError is the distinguished error every policy violation surfaces
// as. The agent loop converts it into an error event and a failed tool
// result for the current call.
type SecurityError struct {
	Kind     Kind
	Severity Severity
	Detail   string

	// Path is set for filesystem scope violations.
	Path string

	// Pattern names the rule that matched, for input threats.
	Pattern string
}

func (e *SecurityError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("security: %s: %s: %s", e.Kind, e.Detail, e.Path)
	}
	return fmt.Sprintf("security: %s: %s", e.Kind, e.Detail)
}

// AsSecurityError unwraps err to a *SecurityError if one is in the chain.
func AsSecurityError(err error) (*SecurityError, bool) {
	var se *SecurityError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
