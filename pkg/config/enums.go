package config

import "log/slog"

// LogLevel is the configured logging verbosity.
type LogLevel string

const (
	LogLevelError LogLevel = "error"
	LogLevelWarn  LogLevel = "warn"
	LogLevelInfo  LogLevel = "info"
	LogLevelDebug LogLevel = "debug"
	LogLevelTrace LogLevel = "trace"
)

// IsValid checks if the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelError, LogLevelWarn, LogLevelInfo, LogLevelDebug, LogLevelTrace:
		return true
	default:
		return false
	}
}

// SlogLevel maps the configured level onto slog. Trace has no slog
// equivalent and maps below debug.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogLevelError:
		return slog.LevelError
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelTrace:
		return slog.LevelDebug - 4
	default:
		return slog.LevelInfo
	}
}

// ProviderBackend selects which SDK backs a configured provider.
type ProviderBackend string

const (
	// ProviderBackendGemini uses the Google GenAI SDK
	ProviderBackendGemini ProviderBackend = "gemini"
	// ProviderBackendAnthropic uses the Anthropic Messages API
	ProviderBackendAnthropic ProviderBackend = "anthropic"
	// ProviderBackendOpenAI uses the OpenAI Chat Completions API
	ProviderBackendOpenAI ProviderBackend = "openai"
)

// IsValid checks if the provider backend is valid
func (b ProviderBackend) IsValid() bool {
	switch b {
	case ProviderBackendGemini, ProviderBackendAnthropic, ProviderBackendOpenAI:
		return true
	default:
		return false
	}
}
