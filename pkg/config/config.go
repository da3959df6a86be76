package config

import (
	"os"
	"sort"
)

// Config is the umbrella configuration object returned by Initialize() and
// consumed throughout the application.
type Config struct {
	configDir string

	Server     *ServerConfig
	Session    *SessionConfig
	Tournament *TournamentConfig
	Cache      *CacheConfig
	Health     *HealthConfig
	Web        *WebConfig

	// Providers maps provider name → declaration.
	Providers map[string]ProviderConfig
}

// ConfigDir returns the configuration directory path
func (c *Config) ConfigDir() string {
	return c.configDir
}

// GetProvider retrieves a provider declaration by name.
func (c *Config) GetProvider(name string) (*ProviderConfig, error) {
	p, ok := c.Providers[name]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return &p, nil
}

// ProviderNames returns the sorted names of all declared providers.
func (c *Config) ProviderNames() []string {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveAPIKey reads the provider's API key from the environment.
// Returns the empty string when unset.
func (p *ProviderConfig) ResolveAPIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

// Stats contains statistics about loaded configuration
type Stats struct {
	Providers         int
	OptionalProviders int
}

// Stats returns configuration statistics for logging/monitoring
func (c *Config) Stats() Stats {
	s := Stats{Providers: len(c.Providers)}
	for _, p := range c.Providers {
		if p.Optional {
			s.OptionalProviders++
		}
	}
	return s
}
