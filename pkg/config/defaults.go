package config

import "time"

// DefaultServerConfig returns the built-in server defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		DefaultTimeBudget:     60 * time.Second,
		MaxConcurrentRequests: 10,
		LogLevel:              LogLevelInfo,
	}
}

// DefaultSessionConfig returns the built-in conversation scheduler defaults.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		IdleTimeout:          30 * time.Minute,
		MaxTurns:             50,
		SweepInterval:        5 * time.Minute,
		CompletionConfidence: 0.9,
	}
}

// DefaultTournamentConfig returns the built-in tournament defaults.
func DefaultTournamentConfig() *TournamentConfig {
	return &TournamentConfig{
		MaxParallel:     3,
		PerMatchTimeout: 30 * time.Second,
	}
}

// DefaultCacheConfig returns the built-in result cache defaults.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		MaxEntries:      1000,
		MaxBytes:        64 << 20, // 64 MiB
		DefaultTTL:      15 * time.Minute,
		CleanupInterval: time.Minute,
	}
}

// DefaultHealthConfig returns the built-in health monitor defaults.
func DefaultHealthConfig() *HealthConfig {
	return &HealthConfig{
		CheckInterval:       30 * time.Second,
		DefaultCheckTimeout: 5 * time.Second,
	}
}

// DefaultWebConfig returns the built-in web server defaults. The HTTP API
// is off by default; stdio is the primary transport.
func DefaultWebConfig() *WebConfig {
	return &WebConfig{
		Enabled: false,
		Listen:  ":9090",
	}
}
