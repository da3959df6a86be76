package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/quarry/pkg/config"
	"github.com/quarrylabs/quarry/pkg/events"
	"github.com/quarrylabs/quarry/pkg/metrics"
)

// fakeBackend is a scriptable provider for gateway tests.
type fakeBackend struct {
	name      string
	available bool
	err       error
	calls     int
}

func (f *fakeBackend) Name() string    { return f.name }
func (f *fakeBackend) Available() bool { return f.available }

func (f *fakeBackend) Complete(ctx context.Context, prompt string, opts CompleteOptions) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "reply from " + f.name, nil
}

func (f *fakeBackend) Converse(ctx context.Context, handle, message string, opts CompleteOptions) (ConverseResult, error) {
	f.calls++
	if f.err != nil {
		return ConverseResult{}, f.err
	}
	return ConverseResult{Handle: "h-" + f.name, Reply: "reply"}, nil
}

// closableBackend records conversation closes on top of fakeBackend.
type closableBackend struct {
	fakeBackend
	closed []string
}

func (c *closableBackend) CloseConversation(handle string) {
	c.closed = append(c.closed, handle)
}

func TestSelectDeterministicOrder(t *testing.T) {
	g := NewGateway(map[string]config.ProviderConfig{})
	g.Register(&fakeBackend{name: "zeta", available: true})
	g.Register(&fakeBackend{name: "alpha", available: true})

	p, err := g.Select()
	require.NoError(t, err)
	assert.Equal(t, "alpha", p.Name())
}

func TestSelectSkipsUnavailable(t *testing.T) {
	g := NewGateway(map[string]config.ProviderConfig{})
	g.Register(&fakeBackend{name: "alpha", available: false})
	g.Register(&fakeBackend{name: "beta", available: true})

	p, err := g.Select()
	require.NoError(t, err)
	assert.Equal(t, "beta", p.Name())
}

func TestSelectNoneAvailable(t *testing.T) {
	g := NewGateway(map[string]config.ProviderConfig{})
	g.Register(&fakeBackend{name: "alpha", available: false})

	_, err := g.Select()
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.False(t, g.AnyAvailable())
}

func TestProviderLookupErrors(t *testing.T) {
	g := NewGateway(map[string]config.ProviderConfig{
		"declared": {Backend: config.ProviderBackendGemini, Model: "m"},
	})

	// Declared but not armed.
	_, err := g.Provider("declared")
	assert.ErrorIs(t, err, ErrNoCredential)

	// Never declared.
	_, err = g.Provider("stranger")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestSetCredentialUnknownProvider(t *testing.T) {
	g := NewGateway(map[string]config.ProviderConfig{})
	err := g.SetCredential(context.Background(), "stranger", "key", 0)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestClearCredentialDisables(t *testing.T) {
	g := NewGateway(map[string]config.ProviderConfig{})
	g.Register(&fakeBackend{name: "alpha", available: true})
	require.True(t, g.AnyAvailable())

	g.ClearCredential("alpha")
	assert.False(t, g.AnyAvailable())

	statuses := g.Statuses()
	assert.False(t, statuses["alpha"])
}

func TestClearCredentialPublishesDisabled(t *testing.T) {
	pub := events.NewPublisher()
	ch, unsub := pub.Subscribe()
	defer unsub()

	g := NewGateway(map[string]config.ProviderConfig{})
	g.SetPublisher(pub)
	g.Register(&fakeBackend{name: "alpha", available: true})

	g.ClearCredential("alpha")

	select {
	case ev := <-ch:
		assert.Equal(t, events.TypeProviderDisabled, ev.Type)
		payload := ev.Payload.(events.ProviderPayload)
		assert.Equal(t, "alpha", payload.Provider)
		assert.Equal(t, "credential cleared", payload.Reason)
	case <-time.After(time.Second):
		t.Fatal("no disabled event published")
	}
}

func TestManagedProviderRecordsMetrics(t *testing.T) {
	met := metrics.New()
	g := NewGateway(map[string]config.ProviderConfig{})
	g.SetMetrics(met)
	g.Register(&fakeBackend{name: "alpha", available: true})
	g.Register(&fakeBackend{
		name:      "broken",
		available: true,
		err:       &Error{Provider: "broken", Class: ClassTransient, Err: errors.New("503")},
	})

	p, err := g.Provider("alpha")
	require.NoError(t, err)
	_, err = p.Complete(context.Background(), "prompt", CompleteOptions{})
	require.NoError(t, err)

	p, err = g.Provider("broken")
	require.NoError(t, err)
	_, err = p.Complete(context.Background(), "prompt", CompleteOptions{})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(met.ProviderCalls.WithLabelValues("alpha", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(met.ProviderCalls.WithLabelValues("broken", "transient")))
}

func TestCloseConversationReachesBackends(t *testing.T) {
	g := NewGateway(map[string]config.ProviderConfig{})
	closer := &closableBackend{fakeBackend: fakeBackend{name: "alpha", available: true}}
	g.Register(closer)
	// Backends without per-handle state are simply skipped.
	g.Register(&fakeBackend{name: "beta", available: true})

	g.CloseConversation("h-123")

	assert.Equal(t, []string{"h-123"}, closer.closed)
}

func TestBreakerTripsOnConsecutiveTransients(t *testing.T) {
	backend := &fakeBackend{
		name:      "flaky",
		available: true,
		err:       &Error{Provider: "flaky", Class: ClassTransient, Err: errors.New("503")},
	}
	g := NewGateway(map[string]config.ProviderConfig{})
	g.Register(backend)

	p, err := g.Provider("flaky")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = p.Complete(context.Background(), "prompt", CompleteOptions{})
		require.Error(t, err)
	}

	// Three consecutive transient failures open the breaker.
	assert.False(t, p.Available())

	_, err = p.Complete(context.Background(), "prompt", CompleteOptions{})
	assert.True(t, IsTransient(err))
	// The open breaker rejects without reaching the backend.
	assert.Equal(t, 3, backend.calls)
}

func TestBreakerIgnoresPermanentFailures(t *testing.T) {
	backend := &fakeBackend{
		name:      "strict",
		available: true,
		err:       &Error{Provider: "strict", Class: ClassPermanent, Err: errors.New("401")},
	}
	g := NewGateway(map[string]config.ProviderConfig{})
	g.Register(backend)

	p, err := g.Provider("strict")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err = p.Complete(context.Background(), "prompt", CompleteOptions{})
		require.Error(t, err)
	}
	// Permanent failures never trip the breaker.
	assert.True(t, p.Available())
	assert.Equal(t, 5, backend.calls)
}

func TestCredentialStoreExpiry(t *testing.T) {
	s := NewCredentialStore()

	s.Set("perm", "key", 0)
	s.Set("temp", "key", 10*time.Millisecond)

	v, ok := s.Get("perm")
	require.True(t, ok)
	assert.Equal(t, "key", v)

	_, ok = s.Get("temp")
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	// Zero-ttl credentials never expire; the bounded one is now gone.
	_, ok = s.Get("perm")
	assert.True(t, ok)
	_, ok = s.Get("temp")
	assert.False(t, ok)
}

func TestCredentialStoreSweepCallback(t *testing.T) {
	s := NewCredentialStore()
	expired := make(chan string, 1)
	s.SetExpiryCallback(func(name string) { expired <- name })

	s.Set("temp", "key", time.Millisecond)
	s.Start(context.Background(), 5*time.Millisecond)
	defer s.Stop()

	select {
	case name := <-expired:
		assert.Equal(t, "temp", name)
	case <-time.After(time.Second):
		t.Fatal("expiry callback never fired")
	}
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, IsTransient(wrapStatus("p", 429, 0, errors.New("rate"))))
	assert.True(t, IsTransient(wrapStatus("p", 503, 0, errors.New("upstream"))))
	assert.True(t, IsTransient(wrapStatus("p", 408, 0, errors.New("slow"))))
	assert.True(t, IsPermanent(wrapStatus("p", 401, 0, errors.New("auth"))))
	assert.True(t, IsPermanent(wrapStatus("p", 400, 0, errors.New("schema"))))

	after, ok := RetryAfter(wrapStatus("p", 429, 2*time.Second, errors.New("rate")))
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, after)

	// Context errors fold to cancelled regardless of the suggested class.
	err := wrap("p", ClassTransient, context.Canceled)
	assert.True(t, IsCancelled(err))
	err = wrap("p", ClassPermanent, context.DeadlineExceeded)
	assert.True(t, IsCancelled(err))

	// Already classified errors pass through unchanged.
	orig := &Error{Provider: "p", Class: ClassPermanent, Err: errors.New("x")}
	assert.Same(t, orig, wrap("p", ClassTransient, orig).(*Error))
}
