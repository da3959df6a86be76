package session

import (
	"context"
	"fmt"
	"sync"
)

// fifoLock serializes turns on one session. Waiters are served in strict
// arrival order; release hands the lock directly to the head waiter so a
// late arrival can never barge past the queue.
type fifoLock struct {
	mu      sync.Mutex
	held    bool
	waiters []chan struct{}
}

func newFIFOLock() *fifoLock {
	return &fifoLock{}
}

// acquire blocks until the lock is held or ctx ends. A cancelled waiter
// leaves the queue; if the hand-off raced the cancellation, the lock is
// passed straight to the next waiter.
func (l *fifoLock) acquire(ctx context.Context) error {
	l.mu.Lock()
	if !l.held {
		l.held = true
		l.mu.Unlock()
		return nil
	}
	ch := make(chan struct{}, 1)
	l.waiters = append(l.waiters, ch)
	l.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		removed := false
		for i, w := range l.waiters {
			if w == ch {
				l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
				removed = true
				break
			}
		}
		l.mu.Unlock()
		if !removed {
			// release already popped us and the signal is in flight: take
			// the hand-off and pass it on.
			<-ch
			l.release()
		}
		return fmt.Errorf("%w: %w", ErrLockTimeout, ctx.Err())
	}
}

// tryAcquire takes the lock only when it is free with no queue.
func (l *fifoLock) tryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held || len(l.waiters) > 0 {
		return false
	}
	l.held = true
	return true
}

// release hands the lock to the head waiter, or frees it when the queue is
// empty. Calling release on a free lock panics: that is always a bug.
func (l *fifoLock) release() {
	l.mu.Lock()
	if !l.held {
		l.mu.Unlock()
		panic("session: release of unheld lock")
	}
	if len(l.waiters) > 0 {
		head := l.waiters[0]
		l.waiters = l.waiters[1:]
		l.mu.Unlock()
		head <- struct{}{}
		return
	}
	l.held = false
	l.mu.Unlock()
}

// queueLen reports the number of waiters, for stats.
func (l *fifoLock) queueLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.waiters)
}
