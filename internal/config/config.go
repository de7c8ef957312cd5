// Package config loads and validates the aide configuration tree.
//
// Configuration is a YAML document with enumerated top-level keys. Environment
// references (${VAR}) are expanded before parsing, unknown keys are rejected,
// missing keys take documented defaults, and the merged document is checked
// against the generated JSON schema plus a set of semantic rules.
package config

import (
	"fmt"
	"strings"
)

// Config is the root configuration tree for aide.
type Config struct {
	Canvas        CanvasConfig            `yaml:"canvas"`
	Gateway       GatewayConfig           `yaml:"gateway"`
	Agent         AgentConfig             `yaml:"agent"`
	Providers     ProvidersConfig         `yaml:"providers"`
	Engines       map[string]EngineConfig `yaml:"engines"`
	Channels      ChannelsConfig          `yaml:"channels"`
	Sessions      SessionsConfig          `yaml:"sessions"`
	Cron          CronConfig              `yaml:"cron"`
	Storage       StorageConfig           `yaml:"storage"`
	Observability ObservabilityConfig     `yaml:"observability"`
	Memory        MemoryConfig            `yaml:"memory"`
	Skills        SkillsConfig            `yaml:"skills"`
	Security      SecurityConfig          `yaml:"security"`
	Autonomy      AutonomyConfig          `yaml:"autonomy"`
	Identity      IdentityConfig          `yaml:"identity"`
	Search        SearchConfig            `yaml:"search"`
	X402          X402Config              `yaml:"x402"`
	Voice         VoiceConfig             `yaml:"voice"`
}

// Load reads the configuration file at path, expands environment references,
// resolves includes, applies defaults, and validates the result.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := ValidateDocument(cfg); err != nil {
		return nil, err
	}
	if issues := validate(cfg); len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}
	return cfg, nil
}

// Default returns a configuration with every default applied, as if an empty
// file had been loaded.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Canvas.Host == "" {
		cfg.Canvas.Host = "127.0.0.1"
	}
	if cfg.Canvas.Port == 0 {
		cfg.Canvas.Port = 8787
	}
	if cfg.Canvas.MaxComponents == 0 {
		cfg.Canvas.MaxComponents = 200
	}
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "127.0.0.1"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 8080
	}
	if cfg.Agent.MaxIterations == 0 {
		cfg.Agent.MaxIterations = 30
	}
	if cfg.Agent.MaxRetries == 0 {
		cfg.Agent.MaxRetries = 2
	}
	if cfg.Agent.MaxTokens == 0 {
		cfg.Agent.MaxTokens = 100000
	}
	if cfg.Agent.CompactionThreshold == 0 {
		cfg.Agent.CompactionThreshold = 0.85
	}
	if cfg.Agent.CompactionStrategy == "" {
		cfg.Agent.CompactionStrategy = "drop_oldest"
	}
	if cfg.Agent.SteeringCap == 0 {
		cfg.Agent.SteeringCap = 100
	}
	if cfg.Agent.ToolTimeoutSeconds == 0 {
		cfg.Agent.ToolTimeoutSeconds = 120
	}
	if cfg.Providers.Default == "" {
		cfg.Providers.Default = "anthropic"
	}
	if cfg.Engines == nil {
		cfg.Engines = map[string]EngineConfig{}
	}
	if _, ok := cfg.Engines["default"]; !ok {
		cfg.Engines["default"] = EngineConfig{Provider: cfg.Providers.Default}
	}
	if cfg.Sessions.IdleExpiryMinutes == 0 {
		cfg.Sessions.IdleExpiryMinutes = 360
	}
	if cfg.Sessions.SweepIntervalMinutes == 0 {
		cfg.Sessions.SweepIntervalMinutes = 5
	}
	if cfg.Cron.JobsFile == "" {
		cfg.Cron.JobsFile = "jobs.yaml"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "memory"
	}
	if cfg.Observability.Logging.Level == "" {
		cfg.Observability.Logging.Level = "info"
	}
	if cfg.Observability.Logging.Format == "" {
		cfg.Observability.Logging.Format = "json"
	}
	if cfg.Observability.Tracing.ServiceName == "" {
		cfg.Observability.Tracing.ServiceName = "aide"
	}
	if cfg.Observability.Tracing.SamplingRate == 0 {
		cfg.Observability.Tracing.SamplingRate = 1.0
	}
	if cfg.Security.EnforceSymlinkBoundary == nil {
		enforce := true
		cfg.Security.EnforceSymlinkBoundary = &enforce
	}
	if cfg.Observability.Metrics.Enabled == nil {
		enabled := true
		cfg.Observability.Metrics.Enabled = &enabled
	}
}

// ValidationError aggregates all semantic issues found in a configuration.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration:\n  - " + strings.Join(e.Issues, "\n  - ")
}

func validate(cfg *Config) []string {
	var issues []string

	switch cfg.Agent.CompactionStrategy {
	case "drop_oldest", "summarize", "sliding":
	default:
		issues = append(issues, fmt.Sprintf("agent.compaction_strategy: unknown strategy %q", cfg.Agent.CompactionStrategy))
	}
	if cfg.Agent.CompactionThreshold < 0 || cfg.Agent.CompactionThreshold > 1 {
		issues = append(issues, fmt.Sprintf("agent.compaction_threshold: %v is outside (0, 1]", cfg.Agent.CompactionThreshold))
	}
	if cfg.Agent.MaxIterations < 1 {
		issues = append(issues, "agent.max_iterations: must be at least 1")
	}

	switch cfg.Providers.Default {
	case "anthropic", "openai":
	default:
		issues = append(issues, fmt.Sprintf("providers.default: unknown provider %q", cfg.Providers.Default))
	}
	for id, engine := range cfg.Engines {
		switch engine.Provider {
		case "", "anthropic", "openai":
		default:
			issues = append(issues, fmt.Sprintf("engines.%s.provider: unknown provider %q", id, engine.Provider))
		}
	}

	switch cfg.Storage.Driver {
	case "memory", "sqlite":
	default:
		issues = append(issues, fmt.Sprintf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}

	if port := cfg.Gateway.Port; port < 0 || port > 65535 {
		issues = append(issues, fmt.Sprintf("gateway.port: %d is out of range", port))
	}
	if port := cfg.Canvas.Port; port < 0 || port > 65535 {
		issues = append(issues, fmt.Sprintf("canvas.port: %d is out of range", port))
	}

	switch cfg.Observability.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		issues = append(issues, fmt.Sprintf("observability.logging.level: unknown level %q", cfg.Observability.Logging.Level))
	}
	switch cfg.Observability.Logging.Format {
	case "text", "json":
	default:
		issues = append(issues, fmt.Sprintf("observability.logging.format: unknown format %q", cfg.Observability.Logging.Format))
	}
	if cfg.Observability.Tracing.Enabled && strings.TrimSpace(cfg.Observability.Tracing.Endpoint) == "" {
		issues = append(issues, "observability.tracing.endpoint: required when tracing is enabled")
	}

	if cfg.Channels.Telegram.Enabled && strings.TrimSpace(cfg.Channels.Telegram.BotToken) == "" {
		issues = append(issues, "channels.telegram.bot_token: required when telegram is enabled")
	}
	if cfg.Channels.Discord.Enabled && strings.TrimSpace(cfg.Channels.Discord.BotToken) == "" {
		issues = append(issues, "channels.discord.bot_token: required when discord is enabled")
	}
	if cfg.Channels.Slack.Enabled {
		if strings.TrimSpace(cfg.Channels.Slack.BotToken) == "" {
			issues = append(issues, "channels.slack.bot_token: required when slack is enabled")
		}
		if strings.TrimSpace(cfg.Channels.Slack.AppToken) == "" {
			issues = append(issues, "channels.slack.app_token: required when slack is enabled")
		}
	}

	if cfg.X402.Enabled && strings.TrimSpace(cfg.X402.SignerURL) == "" {
		issues = append(issues, "x402.signer_url: required when x402 is enabled")
	}

	for label, pattern := range cfg.Security.RedactPatterns {
		if strings.TrimSpace(pattern) == "" {
			issues = append(issues, fmt.Sprintf("security.redact_patterns.%s: pattern is empty", label))
		}
	}

	return issues
}
