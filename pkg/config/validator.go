package config

import "fmt"

// Validator validates configuration comprehensively with clear error messages
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast - stops at first error)
func (v *Validator) ValidateAll() error {
	if err := v.validateServer(); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}
	if err := v.validateSession(); err != nil {
		return fmt.Errorf("session validation failed: %w", err)
	}
	if err := v.validateTournament(); err != nil {
		return fmt.Errorf("tournament validation failed: %w", err)
	}
	if err := v.validateCache(); err != nil {
		return fmt.Errorf("cache validation failed: %w", err)
	}
	if err := v.validateHealth(); err != nil {
		return fmt.Errorf("health validation failed: %w", err)
	}
	if err := v.validateProviders(); err != nil {
		return fmt.Errorf("provider validation failed: %w", err)
	}
	return nil
}

func (v *Validator) validateServer() error {
	s := v.cfg.Server
	if s.DefaultTimeBudget <= 0 {
		return NewValidationError("server", "server", "default_time_budget", fmt.Errorf("must be positive"))
	}
	if s.MaxConcurrentRequests < 0 {
		return NewValidationError("server", "server", "max_concurrent_requests", fmt.Errorf("must not be negative"))
	}
	if s.LogLevel != "" && !s.LogLevel.IsValid() {
		return NewValidationError("server", "server", "log_level", fmt.Errorf("invalid level: %s", s.LogLevel))
	}
	return nil
}

func (v *Validator) validateSession() error {
	s := v.cfg.Session
	if s.IdleTimeout <= 0 {
		return NewValidationError("session", "session", "idle_timeout", fmt.Errorf("must be positive"))
	}
	if s.MaxTurns < 2 {
		return NewValidationError("session", "session", "max_turns", fmt.Errorf("must be at least 2"))
	}
	if s.SweepInterval <= 0 {
		return NewValidationError("session", "session", "sweep_interval", fmt.Errorf("must be positive"))
	}
	if s.CompletionConfidence <= 0 || s.CompletionConfidence > 1 {
		return NewValidationError("session", "session", "completion_confidence", fmt.Errorf("must be in (0,1]"))
	}
	return nil
}

func (v *Validator) validateTournament() error {
	t := v.cfg.Tournament
	if t.MaxParallel < 1 || t.MaxParallel > 5 {
		return NewValidationError("tournament", "tournament", "max_parallel", fmt.Errorf("must be in 1..5"))
	}
	if t.PerMatchTimeout.Seconds() < 10 || t.PerMatchTimeout.Seconds() > 120 {
		return NewValidationError("tournament", "tournament", "per_match_timeout", fmt.Errorf("must be between 10s and 120s"))
	}
	return nil
}

func (v *Validator) validateCache() error {
	c := v.cfg.Cache
	if c.MaxEntries < 1 {
		return NewValidationError("cache", "cache", "max_entries", fmt.Errorf("must be at least 1"))
	}
	if c.MaxBytes < 1 {
		return NewValidationError("cache", "cache", "max_bytes", fmt.Errorf("must be at least 1"))
	}
	if c.DefaultTTL <= 0 {
		return NewValidationError("cache", "cache", "default_ttl", fmt.Errorf("must be positive"))
	}
	if c.CleanupInterval <= 0 {
		return NewValidationError("cache", "cache", "cleanup_interval", fmt.Errorf("must be positive"))
	}
	return nil
}

func (v *Validator) validateHealth() error {
	h := v.cfg.Health
	if h.CheckInterval <= 0 {
		return NewValidationError("health", "health", "check_interval", fmt.Errorf("must be positive"))
	}
	if h.DefaultCheckTimeout <= 0 {
		return NewValidationError("health", "health", "default_check_timeout", fmt.Errorf("must be positive"))
	}
	return nil
}

// validateProviders checks every declared provider and enforces the startup
// credential requirement: at least one non-optional provider must resolve a
// key, unless every provider is declared optional.
func (v *Validator) validateProviders() error {
	allOptional := len(v.cfg.Providers) > 0
	anyCredential := false

	for name, p := range v.cfg.Providers {
		if !p.Backend.IsValid() {
			return NewValidationError("provider", name, "backend", fmt.Errorf("invalid backend: %s", p.Backend))
		}
		if p.Model == "" {
			return NewValidationError("provider", name, "model", fmt.Errorf("model identifier required"))
		}
		if p.APIKeyEnv == "" && !p.Optional {
			return NewValidationError("provider", name, "api_key_env", fmt.Errorf("required unless provider is optional"))
		}
		if p.Temperature < 0 || p.Temperature > 2 {
			return NewValidationError("provider", name, "temperature", fmt.Errorf("must be in [0,2]"))
		}
		if p.MaxOutputTokens < 0 {
			return NewValidationError("provider", name, "max_output_tokens", fmt.Errorf("must not be negative"))
		}
		if !p.Optional {
			allOptional = false
		}
		if p.ResolveAPIKey() != "" {
			anyCredential = true
		}
	}

	if len(v.cfg.Providers) == 0 {
		return NewValidationError("provider", "providers", "", fmt.Errorf("at least one provider must be declared"))
	}
	if !anyCredential && !allOptional {
		return fmt.Errorf("%w: set the configured api_key_env variables or mark all providers optional", ErrNoProviderCredential)
	}
	return nil
}
