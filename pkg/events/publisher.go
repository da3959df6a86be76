// Package events provides the in-process event bus: typed publish methods,
// non-blocking fan-out to bounded subscriber channels, and a recent-events
// ring buffer for the operational API.
package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quarrylabs/quarry/pkg/metrics"
)

const (
	// subscriberBuffer is the per-subscriber channel depth. A subscriber
	// that falls this far behind starts losing events.
	subscriberBuffer = 256

	// recentCapacity bounds the ring buffer served by the ops API.
	recentCapacity = 512
)

// Publisher fans events out to subscribers. Publishing never blocks: a full
// subscriber channel drops the event and increments the drop counter.
//
// Each public method accepts a specific typed payload struct; see
// payloads.go.
type Publisher struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int

	recent   []Event
	recentAt int

	dropped atomic.Int64
	metrics *metrics.Metrics
}

// NewPublisher creates an event publisher with no subscribers.
func NewPublisher() *Publisher {
	return &Publisher{
		subs:   make(map[int]chan Event),
		recent: make([]Event, 0, recentCapacity),
	}
}

// SetMetrics mirrors the drop counter into Prometheus. A nil handle (the
// default) keeps counting internal only.
func (p *Publisher) SetMetrics(m *metrics.Metrics) {
	p.metrics = m
}

// Subscribe registers a new subscriber and returns its channel plus an
// unsubscribe function. The channel is closed on unsubscribe.
func (p *Publisher) Subscribe() (<-chan Event, func()) {
	p.mu.Lock()
	id := p.next
	p.next++
	ch := make(chan Event, subscriberBuffer)
	p.subs[id] = ch
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
			close(ch)
		})
	}
}

// --- Typed public methods ---

// PublishSessionStatus broadcasts a session state transition.
func (p *Publisher) PublishSessionStatus(sessionID string, payload SessionStatusPayload) {
	p.publish(Event{Type: TypeSessionStatus, SessionID: sessionID, Payload: payload})
}

// PublishSessionCreated broadcasts creation of a new conversation session.
func (p *Publisher) PublishSessionCreated(sessionID string, payload SessionStatusPayload) {
	p.publish(Event{Type: TypeSessionCreated, SessionID: sessionID, Payload: payload})
}

// PublishSessionCompleted broadcasts a session reaching a terminal state.
func (p *Publisher) PublishSessionCompleted(sessionID string, payload SessionStatusPayload) {
	p.publish(Event{Type: TypeSessionCompleted, SessionID: sessionID, Payload: payload})
}

// PublishSessionReaped broadcasts an idle-timeout reap.
func (p *Publisher) PublishSessionReaped(sessionID string, payload SessionStatusPayload) {
	p.publish(Event{Type: TypeSessionReaped, SessionID: sessionID, Payload: payload})
}

// PublishAnalysisStarted broadcasts the start of a routed analysis.
func (p *Publisher) PublishAnalysisStarted(payload AnalysisPayload) {
	p.publish(Event{Type: TypeAnalysisStarted, Payload: payload})
}

// PublishAnalysisCompleted broadcasts a finished analysis.
func (p *Publisher) PublishAnalysisCompleted(payload AnalysisPayload) {
	p.publish(Event{Type: TypeAnalysisComplete, Payload: payload})
}

// PublishAnalysisFailed broadcasts an analysis that ended in error.
func (p *Publisher) PublishAnalysisFailed(payload AnalysisPayload) {
	p.publish(Event{Type: TypeAnalysisFailed, Payload: payload})
}

// PublishTournamentMatch broadcasts one match result.
func (p *Publisher) PublishTournamentMatch(payload TournamentMatchPayload) {
	p.publish(Event{Type: TypeTournamentMatch, Payload: payload})
}

// PublishTournamentDone broadcasts tournament completion.
func (p *Publisher) PublishTournamentDone(payload TournamentDonePayload) {
	p.publish(Event{Type: TypeTournamentDone, Payload: payload})
}

// PublishProviderArmed broadcasts a provider becoming available.
func (p *Publisher) PublishProviderArmed(payload ProviderPayload) {
	p.publish(Event{Type: TypeProviderArmed, Payload: payload})
}

// PublishProviderDisabled broadcasts a provider losing its credential.
func (p *Publisher) PublishProviderDisabled(payload ProviderPayload) {
	p.publish(Event{Type: TypeProviderDisabled, Payload: payload})
}

// publish stamps the event, records it in the ring buffer, and fans it out.
func (p *Publisher) publish(ev Event) {
	ev.Timestamp = time.Now()

	p.mu.Lock()
	if len(p.recent) < recentCapacity {
		p.recent = append(p.recent, ev)
	} else {
		p.recent[p.recentAt] = ev
		p.recentAt = (p.recentAt + 1) % recentCapacity
	}
	subs := make([]chan Event, 0, len(p.subs))
	for _, ch := range p.subs {
		subs = append(subs, ch)
	}
	p.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			if p.metrics != nil {
				p.metrics.EventsDropped.Inc()
			}
			if n := p.dropped.Add(1); n%100 == 1 {
				slog.Warn("Event subscriber falling behind, dropping events",
					"event_type", ev.Type, "total_dropped", n)
			}
		}
	}
}

// Recent returns up to limit of the most recent events, oldest first.
// limit <= 0 returns everything buffered.
func (p *Publisher) Recent(limit int) []Event {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ordered := make([]Event, 0, len(p.recent))
	if len(p.recent) < recentCapacity {
		ordered = append(ordered, p.recent...)
	} else {
		ordered = append(ordered, p.recent[p.recentAt:]...)
		ordered = append(ordered, p.recent[:p.recentAt]...)
	}
	if limit > 0 && len(ordered) > limit {
		ordered = ordered[len(ordered)-limit:]
	}
	return ordered
}

// Dropped returns the total number of events dropped on full subscriber
// channels.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}
