package events

import "time"

// Event types carried on the bus. Dot-separated object.action naming.
const (
	TypeSessionCreated   = "session.created"
	TypeSessionStatus    = "session.status"
	TypeSessionCompleted = "session.completed"
	TypeSessionReaped    = "session.reaped"
	TypeAnalysisStarted  = "analysis.started"
	TypeAnalysisComplete = "analysis.completed"
	TypeAnalysisFailed   = "analysis.failed"
	TypeTournamentMatch  = "tournament.match"
	TypeTournamentDone   = "tournament.completed"
	TypeProviderArmed    = "provider.armed"
	TypeProviderDisabled = "provider.disabled"
)

// Event is one bus message. Payload holds the type-specific struct from this
// file; subscribers type-switch on Type.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// SessionStatusPayload reports a session state transition.
type SessionStatusPayload struct {
	State      string  `json:"state"`
	TurnCount  int     `json:"turn_count"`
	Confidence float64 `json:"confidence,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

// AnalysisPayload reports a routed analysis lifecycle event.
type AnalysisPayload struct {
	CorrelationID string `json:"correlation_id"`
	Strategy      string `json:"strategy,omitempty"`
	Provider      string `json:"provider,omitempty"`
	DurationMs    int64  `json:"duration_ms,omitempty"`
	Error         string `json:"error,omitempty"`
}

// TournamentMatchPayload reports one completed (or timed-out) match.
type TournamentMatchPayload struct {
	TournamentID string  `json:"tournament_id"`
	Round        int     `json:"round"`
	HypothesisID string  `json:"hypothesis_id"`
	Likelihood   float64 `json:"likelihood"`
	TimedOut     bool    `json:"timed_out,omitempty"`
}

// TournamentDonePayload reports tournament completion.
type TournamentDonePayload struct {
	TournamentID string `json:"tournament_id"`
	Status       string `json:"status"`
	Rounds       int    `json:"rounds"`
	WinnerID     string `json:"winner_id,omitempty"`
}

// ProviderPayload reports a provider being armed or disabled.
type ProviderPayload struct {
	Provider string `json:"provider"`
	Backend  string `json:"backend,omitempty"`
	Reason   string `json:"reason,omitempty"`
}
