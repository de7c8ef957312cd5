package config

// SecurityConfig configures the filesystem scope, command policy, input
// screening, and output redaction.
type SecurityConfig struct {
	// WorkspaceRoot is the directory file tools may touch. Empty means the
	// process working directory.
	WorkspaceRoot string `yaml:"workspace_root"`

	// BlockedPaths are absolute path prefixes denied even inside the
	// workspace.
	BlockedPaths []string `yaml:"blocked_paths"`

	// BlockedCommands are executable names the shell tool refuses.
	BlockedCommands []string `yaml:"blocked_commands"`

	// RedactPatterns maps a label to a regular expression whose matches
	// are replaced with [REDACTED:<label>] in outbound text.
	RedactPatterns map[string]string `yaml:"redact_patterns"`

	// EnforceSymlinkBoundary resolves symlinks before the scope check.
	// Defaults to true.
	EnforceSymlinkBoundary *bool `yaml:"enforce_symlink_boundary"`
}

// AutonomyConfig gates actions that need a human in the loop.
type AutonomyConfig struct {
	RequireConfirmation bool `yaml:"require_confirmation"`
}

// IdentityConfig links platform identities to canonical user ids.
// Aliases maps canonical_id -> ["channel:user_id", ...].
type IdentityConfig struct {
	Aliases map[string][]string `yaml:"aliases"`
}

type MemoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type SkillsConfig struct {
	Dir string `yaml:"dir"`
}

type SearchConfig struct {
	APIKey string `yaml:"api_key"`
}

// X402Config enables signed machine-payment requests through an external
// signer.
type X402Config struct {
	Enabled   bool   `yaml:"enabled"`
	SignerURL string `yaml:"signer_url"`
}

type VoiceConfig struct {
	Enabled bool `yaml:"enabled"`
}
