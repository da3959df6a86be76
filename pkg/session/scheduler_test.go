package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/quarry/pkg/config"
	"github.com/quarrylabs/quarry/pkg/models"
)

// stubRunner returns canned replies and records the order of turns it ran.
type stubRunner struct {
	mu       sync.Mutex
	reply    string
	err      error
	messages []string
	block    chan struct{} // when non-nil, RunTurn waits on it
}

func (r *stubRunner) RunTurn(ctx context.Context, sess *models.Session, message string) (string, string, error) {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	r.messages = append(r.messages, message)
	r.mu.Unlock()
	if r.err != nil {
		return "", "", r.err
	}
	return r.reply, "handle-1", nil
}

func testScheduler(runner TurnRunner) *Scheduler {
	return NewScheduler(config.DefaultSessionConfig(), runner, nil)
}

func newContext() models.AnalysisContext {
	return models.AnalysisContext{
		StuckPoints: []string{"goroutine leak in shutdown path"},
		FocusArea:   models.FocusArea{Files: []string{"pkg/server/server.go"}},
	}
}

func TestScheduler_CreateAndGet(t *testing.T) {
	s := testScheduler(&stubRunner{reply: "looking"})

	id := s.Create(models.AnalysisTypeDeepAnalysis, newContext())
	require.NotEmpty(t, id)

	sess, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateActive, sess.State)
	assert.Empty(t, sess.Turns)
	assert.Equal(t, 1, s.Count())

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestScheduler_ContinueAppendsBothTurns(t *testing.T) {
	runner := &stubRunner{reply: "the leak is in the ticker goroutine"}
	s := testScheduler(runner)
	id := s.Create(models.AnalysisTypeDeepAnalysis, newContext())

	result, err := s.Continue(context.Background(), id, "where does the goroutine leak?")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateActive, result.State)
	assert.Equal(t, 2, result.TurnCount)
	assert.Equal(t, models.TurnRoleModel, result.Turn.Role)
	assert.Equal(t, runner.reply, result.Turn.ContentText)

	sess, err := s.Get(id)
	require.NoError(t, err)
	require.Len(t, sess.Turns, 2)
	assert.Equal(t, models.TurnRoleCaller, sess.Turns[0].Role)
	assert.Equal(t, "handle-1", sess.ProviderHandle)
}

func TestScheduler_ContinueRunnerFailureKeepsSessionActive(t *testing.T) {
	runner := &stubRunner{err: errors.New("provider exploded")}
	s := testScheduler(runner)
	id := s.Create(models.AnalysisTypeDeepAnalysis, newContext())

	_, err := s.Continue(context.Background(), id, "hello")
	require.Error(t, err)

	sess, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateActive, sess.State)
	// A later turn must still be possible.
	runner.err = nil
	runner.reply = "recovered"
	_, err = s.Continue(context.Background(), id, "retry")
	require.NoError(t, err)
}

func TestScheduler_ConfidenceAutoComplete(t *testing.T) {
	runner := &stubRunner{reply: "Root cause confirmed.\nConfidence: 95%"}
	s := testScheduler(runner)
	id := s.Create(models.AnalysisTypeDeepAnalysis, newContext())

	result, err := s.Continue(context.Background(), id, "verify the hypothesis")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateCompleting, result.State)
	assert.InDelta(t, 0.95, result.Progress.ConfidenceLevel, 1e-9)

	// A completing session accepts no more turns but can be finalized.
	_, err = s.Continue(context.Background(), id, "one more")
	assert.ErrorIs(t, err, ErrSessionInvalidState)

	summary, err := s.Finalize(context.Background(), id, models.SummaryFormatConcise)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TurnCount)
}

func TestScheduler_TurnCapAutoCompletes(t *testing.T) {
	runner := &stubRunner{reply: "still digging"}
	s := testScheduler(runner)
	s.cfg.MaxTurns = 4
	id := s.Create(models.AnalysisTypeDeepAnalysis, newContext())

	first, err := s.Continue(context.Background(), id, "turn one")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateActive, first.State)

	second, err := s.Continue(context.Background(), id, "turn two")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateCompleting, second.State)
	assert.Equal(t, 4, second.TurnCount)

	_, err = s.Continue(context.Background(), id, "turn three")
	assert.ErrorIs(t, err, ErrSessionInvalidState)
}

func TestScheduler_FinalizeRemovesSession(t *testing.T) {
	runner := &stubRunner{reply: "Findings here.\nRecommendations:\n- fix the defer ordering"}
	s := testScheduler(runner)
	id := s.Create(models.AnalysisTypeDeepAnalysis, newContext())

	_, err := s.Continue(context.Background(), id, "investigate")
	require.NoError(t, err)

	summary, err := s.Finalize(context.Background(), id, models.SummaryFormatActionable)
	require.NoError(t, err)
	assert.Equal(t, models.SummaryFormatActionable, summary.Format)
	assert.Contains(t, summary.Summary, "fix the defer ordering")
	assert.Equal(t, []string{"fix the defer ordering"}, summary.Recommendations)

	// Removed: every subsequent operation reports not-found.
	_, err = s.Get(id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = s.Continue(context.Background(), id, "more")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = s.Finalize(context.Background(), id, models.SummaryFormatConcise)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Zero(t, s.Count())
}

func TestScheduler_FinalizeRejectsUnknownFormat(t *testing.T) {
	s := testScheduler(&stubRunner{reply: "ok"})
	id := s.Create(models.AnalysisTypeDeepAnalysis, newContext())

	_, err := s.Finalize(context.Background(), id, models.SummaryFormat("haiku"))
	assert.ErrorIs(t, err, ErrSessionInvalidState)
}

func TestScheduler_ContinuesServeFIFO(t *testing.T) {
	runner := &stubRunner{reply: "ok", block: make(chan struct{})}
	s := testScheduler(runner)
	id := s.Create(models.AnalysisTypeDeepAnalysis, newContext())

	s.mu.RLock()
	lock := s.sessions[id].lock
	s.mu.RUnlock()

	var wg sync.WaitGroup
	launch := func(msg string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Continue(context.Background(), id, msg)
			assert.NoError(t, err)
		}()
	}

	// First turn takes the lock and parks inside the runner.
	launch("first")
	require.Eventually(t, func() bool {
		sess, err := s.Get(id)
		return err == nil && sess.State == models.SessionStateProcessing
	}, time.Second, time.Millisecond)

	// Queue the rest in a known arrival order.
	for i, msg := range []string{"second", "third", "fourth"} {
		launch(msg)
		require.Eventually(t, func() bool { return lock.queueLen() == i+1 },
			time.Second, time.Millisecond)
	}

	close(runner.block)
	wg.Wait()

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, []string{"first", "second", "third", "fourth"}, runner.messages)
}

func TestScheduler_SweepReapsIdleSessions(t *testing.T) {
	runner := &stubRunner{reply: "ok"}
	s := testScheduler(runner)
	idleID := s.Create(models.AnalysisTypeDeepAnalysis, newContext())

	// Move the clock past the idle timeout; a session created under the
	// advanced clock is fresh, the earlier one is reapable.
	base := time.Now()
	s.now = func() time.Time { return base.Add(s.cfg.IdleTimeout + time.Minute) }
	freshID := s.Create(models.AnalysisTypeQuickScan, newContext())
	_, err := s.Continue(context.Background(), freshID, "keepalive")
	require.NoError(t, err)

	reaped := s.Sweep()
	assert.Equal(t, []string{idleID}, reaped)

	_, err = s.Get(idleID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = s.Get(freshID)
	assert.NoError(t, err)
}

func TestScheduler_SweepNeverReapsProcessing(t *testing.T) {
	runner := &stubRunner{reply: "ok", block: make(chan struct{})}
	s := testScheduler(runner)
	id := s.Create(models.AnalysisTypeDeepAnalysis, newContext())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := s.Continue(context.Background(), id, "long turn")
		assert.NoError(t, err)
	}()
	require.Eventually(t, func() bool {
		sess, err := s.Get(id)
		return err == nil && sess.State == models.SessionStateProcessing
	}, time.Second, time.Millisecond)

	// Even far past the idle timeout, an in-flight session survives.
	base := time.Now()
	s.now = func() time.Time { return base.Add(2 * s.cfg.IdleTimeout) }
	assert.Empty(t, s.Sweep())

	close(runner.block)
	<-done
	_, err := s.Get(id)
	assert.NoError(t, err)
}

func TestScheduler_IdleSessionRejectsContinue(t *testing.T) {
	runner := &stubRunner{reply: "ok"}
	s := testScheduler(runner)
	id := s.Create(models.AnalysisTypeDeepAnalysis, newContext())

	base := time.Now()
	s.now = func() time.Time { return base.Add(s.cfg.IdleTimeout + time.Minute) }

	_, err := s.Continue(context.Background(), id, "too late")
	assert.ErrorIs(t, err, ErrIdleExpired)
}

func TestScheduler_CancelledWaiterGetsLockTimeout(t *testing.T) {
	runner := &stubRunner{reply: "ok", block: make(chan struct{})}
	s := testScheduler(runner)
	id := s.Create(models.AnalysisTypeDeepAnalysis, newContext())

	first := make(chan error, 1)
	go func() {
		_, err := s.Continue(context.Background(), id, "holder")
		first <- err
	}()
	require.Eventually(t, func() bool {
		sess, err := s.Get(id)
		return err == nil && sess.State == models.SessionStateProcessing
	}, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	second := make(chan error, 1)
	go func() {
		_, err := s.Continue(ctx, id, "waiter")
		second <- err
	}()
	s.mu.RLock()
	lock := s.sessions[id].lock
	s.mu.RUnlock()
	require.Eventually(t, func() bool { return lock.queueLen() == 1 },
		time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-second, ErrLockTimeout)

	close(runner.block)
	require.NoError(t, <-first)
}

func TestScheduler_StartStop(t *testing.T) {
	s := testScheduler(&stubRunner{reply: "ok"})
	s.cfg.SweepInterval = 10 * time.Millisecond

	s.Start(context.Background())
	s.Start(context.Background()) // no-op
	time.Sleep(30 * time.Millisecond)
	s.Stop()
	s.Stop() // no-op
}

// endingRunner additionally records the conversation handles released when
// sessions end.
type endingRunner struct {
	stubRunner
	ended []string
}

func (r *endingRunner) EndConversation(handle string) {
	r.mu.Lock()
	r.ended = append(r.ended, handle)
	r.mu.Unlock()
}

func TestScheduler_FinalizeReleasesProviderConversation(t *testing.T) {
	runner := &endingRunner{stubRunner: stubRunner{reply: "done"}}
	s := testScheduler(runner)

	// A session that never ran a turn has no provider handle to release.
	bare := s.Create(models.AnalysisTypeQuickScan, newContext())
	_, err := s.Finalize(context.Background(), bare, models.SummaryFormatConcise)
	require.NoError(t, err)
	assert.Empty(t, runner.ended)

	id := s.Create(models.AnalysisTypeDeepAnalysis, newContext())
	_, err = s.Continue(context.Background(), id, "investigate")
	require.NoError(t, err)

	_, err = s.Finalize(context.Background(), id, models.SummaryFormatConcise)
	require.NoError(t, err)
	assert.Equal(t, []string{"handle-1"}, runner.ended)
}

func TestScheduler_SweepReleasesProviderConversation(t *testing.T) {
	runner := &endingRunner{stubRunner: stubRunner{reply: "ok"}}
	s := testScheduler(runner)
	id := s.Create(models.AnalysisTypeDeepAnalysis, newContext())
	_, err := s.Continue(context.Background(), id, "first turn")
	require.NoError(t, err)

	base := time.Now()
	s.now = func() time.Time { return base.Add(s.cfg.IdleTimeout + time.Minute) }

	reaped := s.Sweep()
	require.Equal(t, []string{id}, reaped)
	assert.Equal(t, []string{"handle-1"}, runner.ended)
}
