package config

// AgentConfig tunes the agent loop and its context window.
type AgentConfig struct {
	// MaxIterations bounds engine turns per run.
	MaxIterations int `yaml:"max_iterations"`

	// MaxRetries is the number of additional attempts after a retryable
	// provider failure.
	MaxRetries int `yaml:"max_retries"`

	// MaxTokens is the context window budget for a session.
	MaxTokens int `yaml:"max_tokens"`

	// CompactionThreshold is the fraction of MaxTokens that triggers
	// compaction (0, 1].
	CompactionThreshold float64 `yaml:"compaction_threshold"`

	// CompactionStrategy is one of drop_oldest, summarize, sliding.
	CompactionStrategy string `yaml:"compaction_strategy" jsonschema:"enum=drop_oldest,enum=summarize,enum=sliding"`

	// SteeringCap bounds queued mid-run steering messages per session.
	SteeringCap int `yaml:"steering_cap"`

	// ToolTimeoutSeconds is the per-invocation tool deadline.
	ToolTimeoutSeconds int `yaml:"tool_timeout_seconds"`

	// Verification enables the outcome verifier after each run.
	Verification VerificationConfig `yaml:"verification"`
}

// VerificationConfig controls the two-phase outcome verifier.
type VerificationConfig struct {
	Enabled bool `yaml:"enabled"`

	// Semantic enables the LLM judge phase in addition to format checks.
	Semantic bool `yaml:"semantic"`

	// RetryOnFailure feeds verification failures back into the loop for
	// one corrective pass.
	RetryOnFailure bool `yaml:"retry_on_failure"`
}

// ProvidersConfig holds model-provider credentials and the default choice.
type ProvidersConfig struct {
	Default   string         `yaml:"default" jsonschema:"enum=anthropic,enum=openai"`
	Anthropic ProviderConfig `yaml:"anthropic"`
	OpenAI    ProviderConfig `yaml:"openai"`
}

// ProviderConfig is the per-provider connection block.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// EngineConfig names a provider+model pairing a session can run on.
type EngineConfig struct {
	Provider     string `yaml:"provider"`
	Model        string `yaml:"model"`
	SystemPrompt string `yaml:"system_prompt"`
}
