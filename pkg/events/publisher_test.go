package events

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisher_SubscribeReceivesEvents(t *testing.T) {
	p := NewPublisher()
	ch, unsub := p.Subscribe()
	defer unsub()

	p.PublishSessionStatus("sess-1", SessionStatusPayload{State: "active", TurnCount: 2})

	select {
	case ev := <-ch:
		assert.Equal(t, TypeSessionStatus, ev.Type)
		assert.Equal(t, "sess-1", ev.SessionID)
		payload, ok := ev.Payload.(SessionStatusPayload)
		require.True(t, ok)
		assert.Equal(t, "active", payload.State)
		assert.False(t, ev.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestPublisher_UnsubscribeClosesChannel(t *testing.T) {
	p := NewPublisher()
	ch, unsub := p.Subscribe()

	unsub()
	unsub() // safe to call twice

	_, open := <-ch
	assert.False(t, open)

	// Publishing after unsubscribe must not panic or block.
	p.PublishProviderArmed(ProviderPayload{Provider: "gemini"})
}

func TestPublisher_FullSubscriberDropsNotBlocks(t *testing.T) {
	p := NewPublisher()
	_, unsub := p.Subscribe() // never drained
	defer unsub()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer+50; i++ {
			p.PublishAnalysisStarted(AnalysisPayload{CorrelationID: fmt.Sprintf("c-%d", i)})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Equal(t, int64(50), p.Dropped())
}

func TestPublisher_RecentRingBuffer(t *testing.T) {
	p := NewPublisher()

	for i := 0; i < recentCapacity+10; i++ {
		p.PublishTournamentMatch(TournamentMatchPayload{
			TournamentID: "t-1", Round: i,
		})
	}

	all := p.Recent(0)
	require.Len(t, all, recentCapacity)
	// Oldest surviving event is round 10, newest is the last published.
	assert.Equal(t, 10, all[0].Payload.(TournamentMatchPayload).Round)
	assert.Equal(t, recentCapacity+9, all[len(all)-1].Payload.(TournamentMatchPayload).Round)

	tail := p.Recent(5)
	require.Len(t, tail, 5)
	assert.Equal(t, recentCapacity+5, tail[0].Payload.(TournamentMatchPayload).Round)
}

func TestPublisher_RecentUnderCapacity(t *testing.T) {
	p := NewPublisher()
	p.PublishProviderDisabled(ProviderPayload{Provider: "openai", Reason: "credential expired"})
	p.PublishProviderArmed(ProviderPayload{Provider: "openai"})

	recent := p.Recent(10)
	require.Len(t, recent, 2)
	assert.Equal(t, TypeProviderDisabled, recent[0].Type)
	assert.Equal(t, TypeProviderArmed, recent[1].Type)
}
