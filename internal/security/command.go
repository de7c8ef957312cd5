package security

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// defaultBlockedCommands are executables the agent may never run regardless
// of workspace configuration.
var defaultBlockedCommands = []string{
	"sudo",
	"su",
	"doas",
	"shutdown",
	"reboot",
	"halt",
	"poweroff",
	"mkfs",
	"fdisk",
	"dd",
	"init",
	"systemctl",
	"mount",
	"umount",
}

// shellMetachars matches characters that would let a bare executable name
// smuggle in extra shell commands.
var shellMetachars = regexp.MustCompile("[;&|`$<>\r\n]")

// CommandPolicy validates tool-launched commands against a blocklist.
type CommandPolicy struct {
	blocked map[string]bool
}

// NewCommandPolicy builds a policy from the built-in blocklist plus extra
// command names from configuration.
func NewCommandPolicy(extra []string) *CommandPolicy {
	blocked := make(map[string]bool, len(defaultBlockedCommands)+len(extra))
	for _, name := range defaultBlockedCommands {
		blocked[name] = true
	}
	for _, name := range extra {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			blocked[name] = true
		}
	}
	return &CommandPolicy{blocked: blocked}
}

// ValidateCommand checks the argv the agent wants to execute. The command
// name is matched by its base name so absolute paths cannot bypass the
// blocklist.
func (p *CommandPolicy) ValidateCommand(argv []string) error {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return &SecurityError{Kind: KindCommand, Severity: SeverityMedium, Detail: "empty command"}
	}

	name := strings.TrimSpace(argv[0])
	if strings.ContainsRune(name, 0) {
		return &SecurityError{Kind: KindCommand, Severity: SeverityHigh, Detail: "command contains null byte"}
	}
	if shellMetachars.MatchString(name) {
		return &SecurityError{Kind: KindCommand, Severity: SeverityHigh, Detail: fmt.Sprintf("command %q contains shell metacharacters", name)}
	}

	base := strings.ToLower(filepath.Base(name))
	if p.blocked[base] {
		return &SecurityError{Kind: KindCommand, Severity: SeverityHigh, Detail: fmt.Sprintf("command %q is blocked", base)}
	}
	// mkfs ships as mkfs.ext4, mkfs.xfs and friends.
	if idx := strings.IndexByte(base, '.'); idx > 0 && p.blocked[base[:idx]] {
		return &SecurityError{Kind: KindCommand, Severity: SeverityHigh, Detail: fmt.Sprintf("command %q is blocked", base)}
	}
	return nil
}
