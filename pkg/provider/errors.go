package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnavailable indicates no suitable provider is ready to serve a call
	ErrUnavailable = errors.New("provider unavailable")

	// ErrUnknownProvider indicates the named provider is not registered
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrNoCredential indicates the provider has no active credential
	ErrNoCredential = errors.New("no credential set for provider")

	// ErrEmptyReply indicates the backend returned no usable text
	ErrEmptyReply = errors.New("provider returned empty reply")

	// ErrUnknownHandle indicates a conversation handle is not recognized
	ErrUnknownHandle = errors.New("unknown conversation handle")
)

// Class folds the upstream failure taxonomy into the three outcomes the
// rest of the system distinguishes.
type Class int

const (
	// ClassTransient covers rate limits, network failures, and 5xx
	// responses. Callers may retry.
	ClassTransient Class = iota
	// ClassPermanent covers authentication, schema, and contract failures.
	// Never retried.
	ClassPermanent
	// ClassCancelled covers cooperative cancellation and deadline expiry.
	ClassCancelled
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	case ClassCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is a classified provider failure. RetryAfter is only set on
// transient rate-limit errors when the backend supplied one.
type Error struct {
	Provider   string
	Class      Class
	RetryAfter time.Duration
	Err        error
}

// Error returns formatted error message
func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Class, e.Err)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a transient provider failure.
func IsTransient(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Class == ClassTransient
}

// IsPermanent reports whether err is a permanent provider failure.
func IsPermanent(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Class == ClassPermanent
}

// IsCancelled reports whether err is a cancellation.
func IsCancelled(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Class == ClassCancelled
}

// RetryAfter extracts the backend-supplied retry hint, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var pe *Error
	if errors.As(err, &pe) && pe.RetryAfter > 0 {
		return pe.RetryAfter, true
	}
	return 0, false
}

// wrap classifies err for the named provider. Context errors always fold to
// cancelled; backends classify their own SDK errors via classify funcs
// before reaching here.
func wrap(provider string, class Class, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		class = ClassCancelled
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err // already classified
	}
	return &Error{Provider: provider, Class: class, Err: err}
}

// wrapStatus classifies an HTTP-style status code from a backend SDK.
func wrapStatus(provider string, status int, retryAfter time.Duration, err error) error {
	switch {
	case status == 429:
		return &Error{Provider: provider, Class: ClassTransient, RetryAfter: retryAfter, Err: err}
	case status >= 500, status == 408:
		return &Error{Provider: provider, Class: ClassTransient, Err: err}
	default:
		return &Error{Provider: provider, Class: ClassPermanent, Err: err}
	}
}
