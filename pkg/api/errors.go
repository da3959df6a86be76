package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/quarrylabs/quarry/pkg/provider"
	"github.com/quarrylabs/quarry/pkg/router"
	"github.com/quarrylabs/quarry/pkg/session"
	"github.com/quarrylabs/quarry/pkg/tournament"
)

// ErrorKind is the taxonomy surfaced at the tool boundary.
type ErrorKind string

const (
	KindInvalidInput        ErrorKind = "InvalidInput"
	KindPathUnsafe          ErrorKind = "PathUnsafe"
	KindNotFound            ErrorKind = "NotFound"
	KindSessionInvalidState ErrorKind = "SessionInvalidState"
	KindProviderUnavailable ErrorKind = "ProviderUnavailable"
	KindProviderTransient   ErrorKind = "ProviderTransient"
	KindProviderPermanent   ErrorKind = "ProviderPermanent"
	KindTimeout             ErrorKind = "Timeout"
	KindCancelled           ErrorKind = "Cancelled"
	KindInternal            ErrorKind = "Internal"
)

// code maps each kind onto a JSON-RPC application error code.
func (k ErrorKind) code() int {
	switch k {
	case KindInvalidInput:
		return -32602
	case KindPathUnsafe:
		return -32001
	case KindNotFound:
		return -32002
	case KindSessionInvalidState:
		return -32003
	case KindProviderUnavailable:
		return -32010
	case KindProviderTransient:
		return -32011
	case KindProviderPermanent:
		return -32012
	case KindTimeout:
		return -32013
	case KindCancelled:
		return -32014
	default:
		return -32603
	}
}

// ToolError is the structured error every tool returns. It renders as the
// JSON-RPC error object {code, message, data{kind, correlationId,
// retryAfterMs?}}.
type ToolError struct {
	Kind          ErrorKind
	Message       string
	CorrelationID string
	RetryAfterMs  int64
	Err           error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ToolError) Unwrap() error { return e.Err }

// errorBody is the wire shape of a failed tool call.
type errorBody struct {
	Code    int       `json:"code"`
	Message string    `json:"message"`
	Data    errorData `json:"data"`
}

type errorData struct {
	Kind          ErrorKind `json:"kind"`
	CorrelationID string    `json:"correlationId"`
	RetryAfterMs  int64     `json:"retryAfterMs,omitempty"`
}

func (e *ToolError) body() errorBody {
	return errorBody{
		Code:    e.Kind.code(),
		Message: e.Message,
		Data: errorData{
			Kind:          e.Kind,
			CorrelationID: e.CorrelationID,
			RetryAfterMs:  e.RetryAfterMs,
		},
	}
}

func invalidInput(format string, args ...any) *ToolError {
	return &ToolError{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func pathUnsafe(format string, args ...any) *ToolError {
	return &ToolError{Kind: KindPathUnsafe, Message: fmt.Sprintf(format, args...)}
}

// foldError maps component errors onto the boundary taxonomy and stamps the
// correlation id.
func foldError(err error, correlationID string) *ToolError {
	var te *ToolError
	if errors.As(err, &te) {
		if te.CorrelationID == "" {
			te.CorrelationID = correlationID
		}
		return te
	}

	out := &ToolError{Message: err.Error(), CorrelationID: correlationID, Err: err}
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrIdleExpired):
		// An idle-expired session is indistinguishable from a reaped one
		// to the caller.
		out.Kind = KindNotFound
	case errors.Is(err, session.ErrSessionInvalidState),
		errors.Is(err, session.ErrTurnCapExceeded):
		out.Kind = KindSessionInvalidState
	case errors.Is(err, session.ErrLockTimeout):
		out.Kind = KindTimeout
	case errors.Is(err, router.ErrNoStrategy),
		errors.Is(err, provider.ErrUnavailable),
		errors.Is(err, provider.ErrNoCredential),
		errors.Is(err, provider.ErrUnknownProvider):
		out.Kind = KindProviderUnavailable
	case errors.Is(err, tournament.ErrHypothesisCount),
		errors.Is(err, tournament.ErrDuplicateID),
		errors.Is(err, tournament.ErrBadSettings):
		out.Kind = KindInvalidInput
	case errors.Is(err, context.DeadlineExceeded):
		out.Kind = KindTimeout
	case errors.Is(err, context.Canceled):
		out.Kind = KindCancelled
	case provider.IsCancelled(err):
		if errors.Is(err, context.DeadlineExceeded) {
			out.Kind = KindTimeout
		} else {
			out.Kind = KindCancelled
		}
	case provider.IsTransient(err):
		out.Kind = KindProviderTransient
		if after, ok := provider.RetryAfter(err); ok {
			out.RetryAfterMs = after.Milliseconds()
		}
	case provider.IsPermanent(err):
		out.Kind = KindProviderPermanent
	default:
		out.Kind = KindInternal
	}
	return out
}
