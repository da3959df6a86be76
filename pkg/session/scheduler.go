// Package session implements the conversation scheduler: an in-memory
// session registry with per-session FIFO turn serialization, idle reaping,
// turn caps and confidence-driven auto-completion.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quarrylabs/quarry/pkg/config"
	"github.com/quarrylabs/quarry/pkg/events"
	"github.com/quarrylabs/quarry/pkg/metrics"
	"github.com/quarrylabs/quarry/pkg/models"
)

// managedSession pairs the session record with its serialization lock.
// mu guards the record's fields; lock serializes whole turns.
type managedSession struct {
	mu   sync.Mutex
	sess *models.Session
	lock *fifoLock
}

// Scheduler owns every conversation session. All mutation goes through it;
// callers only ever receive copies.
type Scheduler struct {
	mu       sync.RWMutex
	sessions map[string]*managedSession

	cfg       *config.SessionConfig
	runner    TurnRunner
	publisher *events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger

	// now is injectable for sweep tests.
	now func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a scheduler. publisher may be nil to disable event
// publication.
func NewScheduler(cfg *config.SessionConfig, runner TurnRunner, publisher *events.Publisher) *Scheduler {
	return &Scheduler{
		sessions:  make(map[string]*managedSession),
		cfg:       cfg,
		runner:    runner,
		publisher: publisher,
		logger:    slog.Default().With("component", "scheduler"),
		now:       time.Now,
	}
}

// SetMetrics wires the collector set in. A nil handle (the default) disables
// session metrics.
func (s *Scheduler) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Create allocates a new session in the active state and returns its id.
func (s *Scheduler) Create(analysisType models.AnalysisType, analysisCtx models.AnalysisContext) string {
	now := s.now().UnixMilli()
	sess := &models.Session{
		ID:             uuid.NewString(),
		State:          models.SessionStateActive,
		StartTimeMs:    now,
		LastActivityMs: now,
		Context:        analysisCtx,
		AnalysisType:   analysisType,
	}

	s.mu.Lock()
	s.sessions[sess.ID] = &managedSession{sess: sess, lock: newFIFOLock()}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SessionsActive.Inc()
	}
	s.logger.Info("Session created", "session_id", sess.ID, "analysis_type", analysisType)
	s.publishCreated(sess)
	return sess.ID
}

// Get returns a copy of the session.
func (s *Scheduler) Get(sessionID string) (models.Session, error) {
	ms, err := s.lookup(sessionID)
	if err != nil {
		return models.Session{}, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.sess.Clone(), nil
}

// List returns copies of all live sessions, oldest first.
func (s *Scheduler) List() []models.Session {
	s.mu.RLock()
	managed := make([]*managedSession, 0, len(s.sessions))
	for _, ms := range s.sessions {
		managed = append(managed, ms)
	}
	s.mu.RUnlock()

	out := make([]models.Session, 0, len(managed))
	for _, ms := range managed {
		ms.mu.Lock()
		out = append(out, ms.sess.Clone())
		ms.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTimeMs < out[j].StartTimeMs })
	return out
}

// Count returns the number of live sessions.
func (s *Scheduler) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Continue appends a caller turn, runs the model turn under the session
// lock, and appends the reply. Competing calls on one session are served in
// strict arrival order.
func (s *Scheduler) Continue(ctx context.Context, sessionID, message string) (*models.TurnResult, error) {
	ms, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	// Fail fast before queueing; the authoritative check repeats after the
	// lock is held.
	if err := s.admit(ms); err != nil {
		return nil, err
	}

	if err := ms.lock.acquire(ctx); err != nil {
		return nil, err
	}

	start := s.now()
	ms.mu.Lock()
	if err := s.admitLocked(ms); err != nil {
		ms.mu.Unlock()
		ms.lock.release()
		return nil, err
	}
	ms.sess.State = models.SessionStateProcessing
	ms.sess.LastActivityMs = start.UnixMilli()
	ms.sess.Turns = append(ms.sess.Turns, models.ConversationTurn{
		ID:          uuid.NewString(),
		Role:        models.TurnRoleCaller,
		ContentText: message,
		TimestampMs: start.UnixMilli(),
	})
	snapshot := ms.sess.Clone()
	ms.mu.Unlock()
	s.publishStatus(&snapshot, "")

	reply, handle, runErr := s.runner.RunTurn(ctx, &snapshot, message)

	end := s.now()
	ms.mu.Lock()
	defer func() {
		ms.mu.Unlock()
		ms.lock.release()
	}()

	ms.sess.LastActivityMs = end.UnixMilli()
	if runErr != nil {
		ms.sess.State = models.SessionStateActive
		return nil, runErr
	}

	if handle != "" {
		ms.sess.ProviderHandle = handle
	}
	modelTurn := models.ConversationTurn{
		ID:          uuid.NewString(),
		Role:        models.TurnRoleModel,
		ContentText: reply,
		TimestampMs: end.UnixMilli(),
	}
	ms.sess.Turns = append(ms.sess.Turns, modelTurn)
	if conf, ok := extractConfidence(reply); ok {
		ms.sess.Progress.ConfidenceLevel = conf
	}

	reason := ""
	switch {
	case len(ms.sess.Turns) >= s.cfg.MaxTurns:
		ms.sess.State = models.SessionStateCompleting
		reason = "turn cap reached"
	case ms.sess.Progress.ConfidenceLevel >= s.cfg.CompletionConfidence:
		ms.sess.State = models.SessionStateCompleting
		reason = "confidence threshold reached"
	default:
		ms.sess.State = models.SessionStateActive
	}
	if reason != "" {
		s.logger.Info("Session auto-completing",
			"session_id", sessionID, "reason", reason,
			"turns", len(ms.sess.Turns),
			"confidence", ms.sess.Progress.ConfidenceLevel)
	}

	result := &models.TurnResult{
		SessionID:  sessionID,
		Turn:       modelTurn,
		TurnCount:  len(ms.sess.Turns),
		State:      ms.sess.State,
		Progress:   ms.sess.Progress,
		DurationMs: end.Sub(start).Milliseconds(),
	}
	final := ms.sess.Clone()
	s.publishStatus(&final, reason)
	return result, nil
}

// Finalize synthesizes a summary from all turns, marks the session
// completed, and removes it. Subsequent operations on the id report
// not-found.
func (s *Scheduler) Finalize(ctx context.Context, sessionID string, format models.SummaryFormat) (*models.ConversationSummary, error) {
	if !format.IsValid() {
		return nil, fmt.Errorf("%w: unknown summary format %q", ErrSessionInvalidState, format)
	}
	ms, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	if err := ms.lock.acquire(ctx); err != nil {
		return nil, err
	}

	ms.mu.Lock()
	if ms.sess.State != models.SessionStateActive && ms.sess.State != models.SessionStateCompleting {
		state := ms.sess.State
		ms.mu.Unlock()
		ms.lock.release()
		return nil, fmt.Errorf("%w: cannot finalize session in state %s", ErrSessionInvalidState, state)
	}
	ms.sess.State = models.SessionStateCompleting
	now := s.now()
	summary := synthesizeSummary(ms.sess, format, now)
	ms.sess.State = models.SessionStateCompleted
	ms.sess.LastActivityMs = now.UnixMilli()
	final := ms.sess.Clone()
	ms.mu.Unlock()

	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	ms.lock.release()
	s.endConversation(final.ProviderHandle)

	s.observeTerminal("finalized", summary.TurnCount)
	s.logger.Info("Session finalized",
		"session_id", sessionID, "format", format, "turns", summary.TurnCount)
	s.publishCompleted(&final)
	return summary, nil
}

// Sweep reaps sessions idle past the timeout to abandoned. Sessions whose
// lock is held (a turn in flight) are never reaped. Returns the reaped ids.
func (s *Scheduler) Sweep() []string {
	now := s.now()

	s.mu.RLock()
	candidates := make(map[string]*managedSession, len(s.sessions))
	for id, ms := range s.sessions {
		candidates[id] = ms
	}
	s.mu.RUnlock()

	var reaped []string
	for id, ms := range candidates {
		if !ms.lock.tryAcquire() {
			continue
		}
		ms.mu.Lock()
		if ms.sess.State != models.SessionStateActive ||
			ms.sess.IdleFor(now) <= s.cfg.IdleTimeout {
			ms.mu.Unlock()
			ms.lock.release()
			continue
		}
		ms.sess.State = models.SessionStateAbandoned
		final := ms.sess.Clone()
		ms.mu.Unlock()

		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
		ms.lock.release()
		s.endConversation(final.ProviderHandle)

		reaped = append(reaped, id)
		s.observeTerminal("abandoned", len(final.Turns))
		s.logger.Info("Session reaped",
			"session_id", id, "idle", final.IdleFor(now).String())
		s.publishReaped(&final)
	}
	return reaped
}

// Start launches the background sweep loop. Calling Start on a running
// scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if reaped := s.Sweep(); len(reaped) > 0 {
					s.logger.Info("Sweep completed", "reaped", len(reaped))
				}
			}
		}
	}()
}

// Stop shuts down the sweep loop and waits for it to finish.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
}

func (s *Scheduler) lookup(sessionID string) (*managedSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ms, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return ms, nil
}

// endConversation releases provider-side conversation state for a session
// that reached a terminal state. Runners without such state ignore it.
func (s *Scheduler) endConversation(handle string) {
	if handle == "" {
		return
	}
	if e, ok := s.runner.(conversationEnder); ok {
		e.EndConversation(handle)
	}
}

// admit rejects a turn before it joins the lock queue.
func (s *Scheduler) admit(ms *managedSession) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	switch ms.sess.State {
	case models.SessionStateActive, models.SessionStateProcessing:
	default:
		return fmt.Errorf("%w: session is %s", ErrSessionInvalidState, ms.sess.State)
	}
	if ms.sess.IdleFor(s.now()) > s.cfg.IdleTimeout {
		return fmt.Errorf("%w: %s", ErrIdleExpired, ms.sess.ID)
	}
	if len(ms.sess.Turns) >= s.cfg.MaxTurns {
		return fmt.Errorf("%w: %d turns", ErrTurnCapExceeded, len(ms.sess.Turns))
	}
	return nil
}

// admitLocked re-validates after the session lock is held; the session may
// have auto-completed or been reaped while this caller queued. Caller holds
// ms.mu.
func (s *Scheduler) admitLocked(ms *managedSession) error {
	if ms.sess.State != models.SessionStateActive {
		return fmt.Errorf("%w: session is %s", ErrSessionInvalidState, ms.sess.State)
	}
	if len(ms.sess.Turns) >= s.cfg.MaxTurns {
		return fmt.Errorf("%w: %d turns", ErrTurnCapExceeded, len(ms.sess.Turns))
	}
	return nil
}

func (s *Scheduler) observeTerminal(reason string, turns int) {
	if s.metrics == nil {
		return
	}
	s.metrics.SessionsActive.Dec()
	s.metrics.SessionsCompleted.WithLabelValues(reason).Inc()
	s.metrics.SessionTurns.Observe(float64(turns))
}

func (s *Scheduler) publishCreated(sess *models.Session) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishSessionCreated(sess.ID, events.SessionStatusPayload{
		State: string(sess.State),
	})
}

func (s *Scheduler) publishStatus(sess *models.Session, reason string) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishSessionStatus(sess.ID, events.SessionStatusPayload{
		State:      string(sess.State),
		TurnCount:  len(sess.Turns),
		Confidence: sess.Progress.ConfidenceLevel,
		Reason:     reason,
	})
}

func (s *Scheduler) publishCompleted(sess *models.Session) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishSessionCompleted(sess.ID, events.SessionStatusPayload{
		State:      string(sess.State),
		TurnCount:  len(sess.Turns),
		Confidence: sess.Progress.ConfidenceLevel,
	})
}

func (s *Scheduler) publishReaped(sess *models.Session) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishSessionReaped(sess.ID, events.SessionStatusPayload{
		State:     string(sess.State),
		TurnCount: len(sess.Turns),
		Reason:    "idle timeout",
	})
}
