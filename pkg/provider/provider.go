// Package provider abstracts concrete model back ends behind a small
// capability surface. The gateway owns the provider registry and the
// process-memory credential store; concrete backends (gemini, anthropic,
// openai) translate requests into their SDK calls.
package provider

import (
	"context"
	"time"
)

// Role identifies the author of a conversation message sent to a backend.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a provider-side conversation history.
type Turn struct {
	Role Role
	Text string
}

// CompleteOptions tunes a single completion or conversation call. Zero
// values fall back to the provider's configured defaults.
type CompleteOptions struct {
	Model           string
	Temperature     float64
	MaxOutputTokens int
	SystemPrompt    string

	// Timeout bounds this call. The effective deadline is the tighter of
	// this and the caller's context.
	Timeout time.Duration
}

// ConverseResult is the outcome of one multi-turn exchange.
type ConverseResult struct {
	// Handle identifies the conversation for subsequent calls. Passing an
	// empty handle to Converse starts a new conversation.
	Handle string
	Reply  string
}

// Provider is one model back end. Implementations must be safe for
// concurrent use; every call must honor context cancellation.
type Provider interface {
	// Name returns the configured provider name.
	Name() string

	// Available reports whether the provider is ready to serve calls.
	Available() bool

	// Complete issues a one-shot prompt and returns the full reply text.
	Complete(ctx context.Context, prompt string, opts CompleteOptions) (string, error)

	// Converse continues (or starts, when handle is empty) a multi-turn
	// conversation and returns the handle plus the reply.
	Converse(ctx context.Context, handle, message string, opts CompleteOptions) (ConverseResult, error)
}

// ConversationCloser is implemented by backends that keep per-handle
// conversation state. Closing an unknown handle is a no-op.
type ConversationCloser interface {
	CloseConversation(handle string)
}

// callContext applies the per-call timeout from opts, if any.
func callContext(ctx context.Context, opts CompleteOptions) (context.Context, context.CancelFunc) {
	if opts.Timeout > 0 {
		return context.WithTimeout(ctx, opts.Timeout)
	}
	return context.WithCancel(ctx)
}
