package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load quarry.yaml and providers.yaml from configDir
//  2. Expand environment variables ({{.VAR}} template syntax)
//  3. Merge user-provided values over built-in defaults
//  4. Validate all configuration (fail-fast)
//  5. Return Config ready for use
//
// A missing quarry.yaml is not an error: defaults apply. A missing
// providers.yaml is an error only when validation requires a provider.
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := NewValidator(cfg).ValidateAll(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"providers", stats.Providers,
		"optional_providers", stats.OptionalProviders)

	return cfg, nil
}

// load is the internal loader (not exported)
func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	quarryCfg, err := loader.loadQuarryYAML()
	if err != nil {
		return nil, NewLoadError("quarry.yaml", err)
	}

	providers, err := loader.loadProvidersYAML()
	if err != nil {
		return nil, NewLoadError("providers.yaml", err)
	}

	cfg := &Config{
		configDir:  configDir,
		Server:     DefaultServerConfig(),
		Session:    DefaultSessionConfig(),
		Tournament: DefaultTournamentConfig(),
		Cache:      DefaultCacheConfig(),
		Health:     DefaultHealthConfig(),
		Web:        DefaultWebConfig(),
		Providers:  providers,
	}

	// Merge user YAML over defaults; non-zero values override.
	sections := []struct {
		name string
		dst  any
		src  any
	}{
		{"server", cfg.Server, quarryCfg.Server},
		{"session", cfg.Session, quarryCfg.Session},
		{"tournament", cfg.Tournament, quarryCfg.Tournament},
		{"cache", cfg.Cache, quarryCfg.Cache},
		{"health", cfg.Health, quarryCfg.Health},
		{"web", cfg.Web, quarryCfg.Web},
	}
	for _, s := range sections {
		if isNil(s.src) {
			continue
		}
		if err := mergo.Merge(s.dst, s.src, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge %s config: %w", s.name, err)
		}
	}

	return cfg, nil
}

func isNil(v any) bool {
	switch x := v.(type) {
	case *ServerConfig:
		return x == nil
	case *SessionConfig:
		return x == nil
	case *TournamentConfig:
		return x == nil
	case *CacheConfig:
		return x == nil
	case *HealthConfig:
		return x == nil
	case *WebConfig:
		return x == nil
	default:
		return v == nil
	}
}

type configLoader struct {
	configDir string
}

// loadQuarryYAML reads and parses quarry.yaml. Returns an empty config when
// the file does not exist so that defaults apply.
func (l *configLoader) loadQuarryYAML() (*QuarryYAMLConfig, error) {
	path := filepath.Join(l.configDir, "quarry.yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("quarry.yaml not found, using defaults", "path", path)
			return &QuarryYAMLConfig{}, nil
		}
		return nil, err
	}

	data = ExpandEnv(data)

	var cfg QuarryYAMLConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidYAML, err)
	}
	return &cfg, nil
}

// loadProvidersYAML reads and parses providers.yaml. A missing file yields
// an empty provider map; the validator decides whether that is acceptable.
func (l *configLoader) loadProvidersYAML() (map[string]ProviderConfig, error) {
	path := filepath.Join(l.configDir, "providers.yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("providers.yaml not found", "path", path)
			return map[string]ProviderConfig{}, nil
		}
		return nil, err
	}

	data = ExpandEnv(data)

	var cfg ProvidersYAMLConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidYAML, err)
	}
	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderConfig{}
	}
	return cfg.Providers, nil
}
