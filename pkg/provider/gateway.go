package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/quarrylabs/quarry/pkg/config"
	"github.com/quarrylabs/quarry/pkg/events"
	"github.com/quarrylabs/quarry/pkg/metrics"
)

// credentialSweepInterval is how often the janitor scans for expired
// runtime-injected credentials.
const credentialSweepInterval = time.Minute

// Gateway mediates all access to model back ends. It owns the provider
// registry and the credential store; setting a credential instantiates (or
// re-arms) the named provider, clearing one disables it.
type Gateway struct {
	mu        sync.RWMutex
	providers map[string]*managedProvider

	decls     map[string]config.ProviderConfig
	creds     *CredentialStore
	publisher *events.Publisher
	metrics   *metrics.Metrics
}

// NewGateway creates a gateway over the declared providers. No provider is
// armed until a credential is set (see Bootstrap and SetCredential).
func NewGateway(decls map[string]config.ProviderConfig) *Gateway {
	g := &Gateway{
		providers: make(map[string]*managedProvider),
		decls:     decls,
		creds:     NewCredentialStore(),
	}
	g.creds.SetExpiryCallback(func(name string) { g.disable(name, "credential expired") })
	return g
}

// SetPublisher wires the event bus in. Must be called before Start; a nil
// publisher (the default) disables event publication.
func (g *Gateway) SetPublisher(p *events.Publisher) {
	g.publisher = p
}

// SetMetrics wires the collector set in. Must be called before Bootstrap;
// providers armed earlier record nothing.
func (g *Gateway) SetMetrics(m *metrics.Metrics) {
	g.metrics = m
}

// Bootstrap resolves each declared provider's API key from the environment
// and arms the ones that have a key. Environment-resolved credentials do
// not expire. Returns an error only when a resolved key fails to build a
// client; missing keys leave the provider disabled.
func (g *Gateway) Bootstrap(ctx context.Context) error {
	for name, decl := range g.decls {
		key := decl.ResolveAPIKey()
		if key == "" {
			slog.Debug("Provider has no credential at startup", "provider", name)
			continue
		}
		if err := g.SetCredential(ctx, name, key, 0); err != nil {
			return fmt.Errorf("failed to arm provider %s: %w", name, err)
		}
	}
	return nil
}

// Start launches the credential expiry janitor.
func (g *Gateway) Start(ctx context.Context) {
	g.creds.Start(ctx, credentialSweepInterval)
}

// Stop shuts down the janitor.
func (g *Gateway) Stop() {
	g.creds.Stop()
}

// SetCredential stores a credential for the named provider and arms it.
// ttl == 0 means the credential never expires; runtime-injected credentials
// should use DefaultCredentialTTL.
func (g *Gateway) SetCredential(ctx context.Context, name, key string, ttl time.Duration) error {
	decl, ok := g.decls[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}

	backend, err := buildBackend(ctx, name, key, decl)
	if err != nil {
		return err
	}

	g.creds.Set(name, key, ttl)

	g.mu.Lock()
	g.providers[name] = newManagedProvider(backend, g.metrics)
	g.mu.Unlock()

	slog.Info("Provider armed", "provider", name, "backend", decl.Backend,
		"expires", ttl > 0)
	if g.publisher != nil {
		g.publisher.PublishProviderArmed(events.ProviderPayload{
			Provider: name, Backend: string(decl.Backend),
		})
	}
	return nil
}

// Register installs an already-constructed provider under its own name,
// wrapped with the standard circuit breaker. Used for custom backends and
// by tests.
func (g *Gateway) Register(p Provider) {
	g.mu.Lock()
	g.providers[p.Name()] = newManagedProvider(p, g.metrics)
	if _, ok := g.decls[p.Name()]; !ok {
		g.decls[p.Name()] = config.ProviderConfig{}
	}
	g.mu.Unlock()
}

// ClearCredential removes the named provider's credential and disables it.
func (g *Gateway) ClearCredential(name string) {
	g.creds.Clear(name)
	g.disable(name, "credential cleared")
}

// disable drops the armed provider instance, leaving the declaration in
// place so a future SetCredential can re-arm it.
func (g *Gateway) disable(name, reason string) {
	g.mu.Lock()
	delete(g.providers, name)
	g.mu.Unlock()
	slog.Info("Provider disabled", "provider", name, "reason", reason)
	if g.publisher != nil {
		g.publisher.PublishProviderDisabled(events.ProviderPayload{
			Provider: name, Reason: reason,
		})
	}
}

// Provider returns the armed provider by name.
func (g *Gateway) Provider(name string) (Provider, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.providers[name]
	if !ok {
		if _, declared := g.decls[name]; declared {
			return nil, fmt.Errorf("%w: %s", ErrNoCredential, name)
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// Select returns the first available provider in deterministic (sorted
// name) order, or ErrUnavailable when none is ready.
func (g *Gateway) Select() (Provider, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	names := make([]string, 0, len(g.providers))
	for name := range g.providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if p := g.providers[name]; p.Available() {
			return p, nil
		}
	}
	return nil, ErrUnavailable
}

// AnyAvailable reports whether at least one provider is ready.
func (g *Gateway) AnyAvailable() bool {
	_, err := g.Select()
	return err == nil
}

// CloseConversation releases conversation state held for handle. The owning
// backend is not tracked, so every armed provider is asked; closing an
// unknown handle is a no-op.
func (g *Gateway) CloseConversation(handle string) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, p := range g.providers {
		p.CloseConversation(handle)
	}
}

// Names returns the sorted names of all declared providers.
func (g *Gateway) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	names := make([]string, 0, len(g.decls))
	for name := range g.decls {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Statuses reports per-provider availability, keyed by provider name.
func (g *Gateway) Statuses() map[string]bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	statuses := make(map[string]bool, len(g.decls))
	for name := range g.decls {
		p, ok := g.providers[name]
		statuses[name] = ok && p.Available()
	}
	return statuses
}

// buildBackend constructs the SDK-backed provider for a declaration.
func buildBackend(ctx context.Context, name, key string, decl config.ProviderConfig) (Provider, error) {
	opts := Options{
		Model:           decl.Model,
		Temperature:     decl.Temperature,
		MaxOutputTokens: decl.MaxOutputTokens,
	}
	switch decl.Backend {
	case config.ProviderBackendGemini:
		return NewGeminiProvider(ctx, name, key, opts)
	case config.ProviderBackendAnthropic:
		return NewAnthropicProvider(name, key, opts)
	case config.ProviderBackendOpenAI:
		return NewOpenAIProvider(name, key, opts)
	default:
		return nil, fmt.Errorf("unsupported provider backend: %s", decl.Backend)
	}
}

// managedProvider wraps a backend with a circuit breaker. Only transient
// failures count against the breaker; permanent errors and cancellations
// pass through without tripping it.
type managedProvider struct {
	inner   Provider
	breaker *gobreaker.CircuitBreaker
	metrics *metrics.Metrics
}

func newManagedProvider(inner Provider, met *metrics.Metrics) *managedProvider {
	return &managedProvider{
		inner:   inner,
		metrics: met,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        inner.Name(),
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			IsSuccessful: func(err error) bool {
				return err == nil || !IsTransient(err)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("Provider breaker state change",
					"provider", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

// Name returns the backend's provider name.
func (m *managedProvider) Name() string { return m.inner.Name() }

// Available reports readiness: the backend must be up and the breaker must
// not be open.
func (m *managedProvider) Available() bool {
	return m.inner.Available() && m.breaker.State() != gobreaker.StateOpen
}

// Complete routes through the circuit breaker.
func (m *managedProvider) Complete(ctx context.Context, prompt string, opts CompleteOptions) (string, error) {
	start := time.Now()
	out, err := m.breaker.Execute(func() (any, error) {
		return m.inner.Complete(ctx, prompt, opts)
	})
	if err != nil {
		err = m.foldBreakerErr(err)
		m.observe(start, err)
		return "", err
	}
	m.observe(start, nil)
	return out.(string), nil
}

// Converse routes through the circuit breaker.
func (m *managedProvider) Converse(ctx context.Context, handle, message string, opts CompleteOptions) (ConverseResult, error) {
	start := time.Now()
	out, err := m.breaker.Execute(func() (any, error) {
		return m.inner.Converse(ctx, handle, message, opts)
	})
	if err != nil {
		err = m.foldBreakerErr(err)
		m.observe(start, err)
		return ConverseResult{}, err
	}
	m.observe(start, nil)
	return out.(ConverseResult), nil
}

// CloseConversation forwards to the backend when it keeps per-handle state.
func (m *managedProvider) CloseConversation(handle string) {
	if c, ok := m.inner.(ConversationCloser); ok {
		c.CloseConversation(handle)
	}
}

func (m *managedProvider) foldBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &Error{Provider: m.inner.Name(), Class: ClassTransient, Err: err}
	}
	return err
}

func (m *managedProvider) observe(start time.Time, err error) {
	if m.metrics == nil {
		return
	}
	class := "ok"
	if err != nil {
		class = "error"
		var pe *Error
		if errors.As(err, &pe) {
			class = pe.Class.String()
		}
	}
	m.metrics.ObserveProviderCall(m.inner.Name(), class, time.Since(start))
}
