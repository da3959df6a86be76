package provider

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultCredentialTTL is applied to runtime-injected credentials that do
// not specify an expiry.
const DefaultCredentialTTL = 2 * time.Hour

// credential is one stored API key. A zero expiry never expires (used for
// keys resolved from the environment at startup).
type credential struct {
	value     string
	expiresAt time.Time
}

func (c credential) expired(now time.Time) bool {
	return !c.expiresAt.IsZero() && now.After(c.expiresAt)
}

// CredentialStore holds provider credentials in process memory only.
// Credentials are never persisted or logged.
type CredentialStore struct {
	mu    sync.RWMutex
	creds map[string]credential

	// onExpire is invoked (outside the lock) when the janitor clears an
	// expired credential. The gateway uses it to disable the provider.
	onExpire func(name string)

	cancel context.CancelFunc
	done   chan struct{}
}

// NewCredentialStore creates an empty credential store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		creds: make(map[string]credential),
	}
}

// Set stores a credential for the named provider. ttl == 0 means the
// credential never expires.
func (s *CredentialStore) Set(name, value string, ttl time.Duration) {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	s.mu.Lock()
	s.creds[name] = credential{value: value, expiresAt: expiresAt}
	s.mu.Unlock()
}

// Get returns the active credential for the named provider. Expired
// credentials are treated as absent and removed on access.
func (s *CredentialStore) Get(name string) (string, bool) {
	s.mu.RLock()
	cred, ok := s.creds[name]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	if cred.expired(time.Now()) {
		s.mu.Lock()
		// Re-check under the write lock; a fresh Set may have raced.
		if cur, ok := s.creds[name]; ok && cur.expired(time.Now()) {
			delete(s.creds, name)
		}
		s.mu.Unlock()
		return "", false
	}
	return cred.value, true
}

// Clear removes the credential for the named provider.
func (s *CredentialStore) Clear(name string) {
	s.mu.Lock()
	delete(s.creds, name)
	s.mu.Unlock()
}

// SetExpiryCallback registers the function invoked when the janitor clears
// an expired credential. Must be called before Start.
func (s *CredentialStore) SetExpiryCallback(fn func(name string)) {
	s.onExpire = fn
}

// Start launches the background janitor that clears expired credentials.
// Calling Start on a running store is a no-op.
func (s *CredentialStore) Start(ctx context.Context, interval time.Duration) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

// Stop shuts down the janitor and waits for it to finish.
func (s *CredentialStore) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
}

func (s *CredentialStore) sweep() {
	now := time.Now()
	var expired []string

	s.mu.Lock()
	for name, cred := range s.creds {
		if cred.expired(now) {
			delete(s.creds, name)
			expired = append(expired, name)
		}
	}
	s.mu.Unlock()

	for _, name := range expired {
		slog.Info("Provider credential expired", "provider", name)
		if s.onExpire != nil {
			s.onExpire(name)
		}
	}
}
