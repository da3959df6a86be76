package config

import "time"

// QuarryYAMLConfig represents the complete quarry.yaml file structure.
type QuarryYAMLConfig struct {
	Server     *ServerConfig     `yaml:"server"`
	Session    *SessionConfig    `yaml:"session"`
	Tournament *TournamentConfig `yaml:"tournament"`
	Cache      *CacheConfig      `yaml:"cache"`
	Health     *HealthConfig     `yaml:"health"`
	Web        *WebConfig        `yaml:"web"`
}

// ProvidersYAMLConfig represents the providers.yaml file structure.
type ProvidersYAMLConfig struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// ServerConfig contains request-level defaults for the tool surface.
type ServerConfig struct {
	// DefaultTimeBudget is the analysis budget applied when a request
	// carries none.
	DefaultTimeBudget time.Duration `yaml:"default_time_budget"`

	// MaxConcurrentRequests caps tool calls executing at once across all
	// sessions. Zero means unlimited.
	MaxConcurrentRequests int `yaml:"max_concurrent_requests"`

	// LogLevel is one of error, warn, info, debug, trace.
	LogLevel LogLevel `yaml:"log_level"`
}

// SessionConfig controls the conversation scheduler.
type SessionConfig struct {
	// IdleTimeout is how long an active session may sit without activity
	// before the sweeper reaps it to abandoned.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// MaxTurns caps the number of turns per session. Reaching the cap
	// auto-transitions the session to completing.
	MaxTurns int `yaml:"max_turns"`

	// SweepInterval is how often the background sweeper scans for idle
	// sessions.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// CompletionConfidence is the confidence level at which a session
	// auto-transitions to completing.
	CompletionConfidence float64 `yaml:"completion_confidence"`
}

// TournamentConfig bounds hypothesis tournaments.
type TournamentConfig struct {
	// MaxParallel is the default cap on concurrent provider calls per
	// tournament. Callers may lower it per request, never raise it past 5.
	MaxParallel int `yaml:"max_parallel"`

	// PerMatchTimeout is the default per-match provider budget.
	PerMatchTimeout time.Duration `yaml:"per_match_timeout"`
}

// CacheConfig bounds the result cache.
type CacheConfig struct {
	MaxEntries      int           `yaml:"max_entries"`
	MaxBytes        int64         `yaml:"max_bytes"`
	DefaultTTL      time.Duration `yaml:"default_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// HealthConfig controls the health monitor loop.
type HealthConfig struct {
	// CheckInterval is how often the background loop runs all checks.
	CheckInterval time.Duration `yaml:"check_interval"`

	// DefaultCheckTimeout bounds each check without an explicit timeout.
	DefaultCheckTimeout time.Duration `yaml:"default_check_timeout"`
}

// WebConfig controls the optional operational HTTP API.
type WebConfig struct {
	// Enabled turns the HTTP server on. Off by default: the MCP stdio
	// surface is the primary interface.
	Enabled bool `yaml:"enabled"`

	// Listen is the address to bind, e.g. ":9090".
	Listen string `yaml:"listen"`
}

// ProviderConfig declares one model back end.
type ProviderConfig struct {
	// Backend selects the SDK: gemini, anthropic, or openai.
	Backend ProviderBackend `yaml:"backend"`

	// Model is the backend-specific model identifier.
	Model string `yaml:"model"`

	// APIKeyEnv names the environment variable holding the API key.
	// Credentials never appear in YAML directly.
	APIKeyEnv string `yaml:"api_key_env"`

	// Optional marks the provider as allowed to start without a credential.
	// At least one non-optional provider must resolve a key at startup.
	Optional bool `yaml:"optional"`

	// Temperature applied when a request does not specify one.
	Temperature float64 `yaml:"temperature"`

	// MaxOutputTokens caps completion length. Zero uses the SDK default.
	MaxOutputTokens int `yaml:"max_output_tokens"`
}
