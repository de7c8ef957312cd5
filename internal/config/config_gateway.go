package config

// CanvasConfig controls the canvas WebSocket surface.
type CanvasConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`

	// MaxComponents caps the number of nodes per canvas state.
	MaxComponents int `yaml:"max_components"`

	// AuthSecret signs and verifies canvas session tokens. Empty disables
	// token auth.
	AuthSecret string `yaml:"auth_secret"`
}

// GatewayConfig controls the HTTP gateway (WebSocket upgrade, health,
// metrics).
type GatewayConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`

	// AllowedOrigins restricts WebSocket origins; empty allows same-host
	// only.
	AllowedOrigins []string `yaml:"allowed_origins"`
}
