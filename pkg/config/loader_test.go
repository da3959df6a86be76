package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestInitializeDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "providers.yaml", `
providers:
  gemini:
    backend: gemini
    model: gemini-2.5-pro
    api_key_env: TEST_GEMINI_KEY
`)
	t.Setenv("TEST_GEMINI_KEY", "test-key")

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	// No quarry.yaml: every section carries defaults.
	assert.Equal(t, 60*time.Second, cfg.Server.DefaultTimeBudget)
	assert.Equal(t, 30*time.Minute, cfg.Session.IdleTimeout)
	assert.Equal(t, 50, cfg.Session.MaxTurns)
	assert.Equal(t, 3, cfg.Tournament.MaxParallel)
	assert.Equal(t, 1000, cfg.Cache.MaxEntries)
	assert.False(t, cfg.Web.Enabled)
	assert.Equal(t, dir, cfg.ConfigDir())
}

func TestInitializeMergesOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "quarry.yaml", `
server:
  default_time_budget: 90s
  log_level: debug
session:
  max_turns: 20
web:
  enabled: true
  listen: ":8099"
`)
	writeConfig(t, dir, "providers.yaml", `
providers:
  gemini:
    backend: gemini
    model: gemini-2.5-pro
    api_key_env: TEST_GEMINI_KEY
`)
	t.Setenv("TEST_GEMINI_KEY", "test-key")

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.Server.DefaultTimeBudget)
	assert.Equal(t, LogLevelDebug, cfg.Server.LogLevel)
	assert.Equal(t, 20, cfg.Session.MaxTurns)
	// Untouched fields keep their defaults.
	assert.Equal(t, 30*time.Minute, cfg.Session.IdleTimeout)
	assert.True(t, cfg.Web.Enabled)
	assert.Equal(t, ":8099", cfg.Web.Listen)
}

func TestInitializeRejectsInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "quarry.yaml", "server: [not a mapping")

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
}

func TestInitializeRequiresProviders(t *testing.T) {
	dir := t.TempDir()

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestInitializeRequiresCredential(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "providers.yaml", `
providers:
  gemini:
    backend: gemini
    model: gemini-2.5-pro
    api_key_env: DEFINITELY_UNSET_KEY_VAR
`)
	os.Unsetenv("DEFINITELY_UNSET_KEY_VAR")

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoProviderCredential)
}

func TestInitializeAllOptionalProviders(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "providers.yaml", `
providers:
  anthropic:
    backend: anthropic
    model: claude-sonnet-4-5
    api_key_env: UNSET_OPTIONAL_KEY
    optional: true
`)
	os.Unsetenv("UNSET_OPTIONAL_KEY")

	// Credentials may arrive later via runtime injection.
	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Stats().OptionalProviders)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("EXPAND_TEST_MODEL", "gemini-2.5-pro")

	out := ExpandEnv([]byte("model: {{.EXPAND_TEST_MODEL}}"))
	assert.Equal(t, "model: gemini-2.5-pro", string(out))

	// Plain $ survives untouched.
	out = ExpandEnv([]byte(`pattern: ^\d+$`))
	assert.Equal(t, `pattern: ^\d+$`, string(out))

	// Missing variables expand to empty; the validator catches the fallout.
	out = ExpandEnv([]byte("key: {{.NOT_SET_ANYWHERE_XYZ}}"))
	assert.Equal(t, "key: ", string(out))
}

func TestGetProvider(t *testing.T) {
	cfg := &Config{Providers: map[string]ProviderConfig{
		"gemini": {Backend: ProviderBackendGemini, Model: "gemini-2.5-pro"},
	}}

	p, err := cfg.GetProvider("gemini")
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-pro", p.Model)

	_, err = cfg.GetProvider("missing")
	assert.ErrorIs(t, err, ErrProviderNotFound)
}
