package config

type ChannelsConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Discord  DiscordConfig  `yaml:"discord"`
	Slack    SlackConfig    `yaml:"slack"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
}

type DiscordConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	AppID    string `yaml:"app_id"`
}

type SlackConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	AppToken string `yaml:"app_token"`
}

// SessionsConfig controls session scoping and eviction.
type SessionsConfig struct {
	// IdleExpiryMinutes evicts route entries untouched for this long.
	IdleExpiryMinutes int `yaml:"idle_expiry_minutes"`

	// SweepIntervalMinutes is how often the expiry sweep runs.
	SweepIntervalMinutes int `yaml:"sweep_interval_minutes"`
}

// CronConfig controls the scheduler and its job file.
type CronConfig struct {
	Enabled  bool   `yaml:"enabled"`
	JobsFile string `yaml:"jobs_file"`

	// Watch reloads the job file on change.
	Watch bool `yaml:"watch"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Driver is "memory" or "sqlite".
	Driver string `yaml:"driver" jsonschema:"enum=memory,enum=sqlite"`

	// Path is the SQLite database file; empty means in-memory.
	Path string `yaml:"path"`
}
