package session

import "errors"

var (
	// ErrSessionNotFound indicates the session id is unknown or the session
	// was already removed after finalize or reaping.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionInvalidState indicates the session exists but is not in a
	// state that permits the requested operation.
	ErrSessionInvalidState = errors.New("session is not in a valid state for this operation")

	// ErrLockTimeout indicates a waiter gave up (context cancelled or timed
	// out) before acquiring the session lock.
	ErrLockTimeout = errors.New("timed out waiting for session lock")

	// ErrTurnCapExceeded indicates the session already reached its turn cap.
	ErrTurnCapExceeded = errors.New("session turn cap exceeded")

	// ErrIdleExpired indicates the session sat idle past the timeout and can
	// no longer accept turns.
	ErrIdleExpired = errors.New("session idle timeout exceeded")
)
