package models

import "time"

// ConversationTurn is a single caller message or model reply in a session.
type ConversationTurn struct {
	ID          string            `json:"id"`
	Role        TurnRole          `json:"role"`
	ContentText string            `json:"contentText"`
	TimestampMs int64             `json:"timestampMs"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// AnalysisProgress tracks how far a conversation has advanced toward a
// conclusion. ConfidenceLevel ranges over [0,1]; crossing the auto-complete
// threshold moves the session to completing.
type AnalysisProgress struct {
	CompletedSteps   []string `json:"completedSteps"`
	PendingQuestions []string `json:"pendingQuestions"`
	KeyFindings      []string `json:"keyFindings"`
	ConfidenceLevel  float64  `json:"confidenceLevel"`
}

// Session is a stateful multi-turn analysis interaction. The scheduler is
// the sole owner; callers only ever see copies.
type Session struct {
	ID             string             `json:"id"`
	State          SessionState       `json:"state"`
	StartTimeMs    int64              `json:"startTimeMs"`
	LastActivityMs int64              `json:"lastActivityMs"`
	Context        AnalysisContext    `json:"context"`
	AnalysisType   AnalysisType       `json:"analysisType"`
	Turns          []ConversationTurn `json:"turns"`
	Progress       AnalysisProgress   `json:"progress"`
	// ProviderHandle is the provider-side conversation handle, when the
	// backing provider supports stateful multi-turn exchanges.
	ProviderHandle string `json:"providerHandle,omitempty"`
}

// Clone returns a deep copy safe to hand outside the scheduler.
func (s *Session) Clone() Session {
	cp := *s
	cp.Turns = make([]ConversationTurn, len(s.Turns))
	copy(cp.Turns, s.Turns)
	cp.Progress.CompletedSteps = append([]string(nil), s.Progress.CompletedSteps...)
	cp.Progress.PendingQuestions = append([]string(nil), s.Progress.PendingQuestions...)
	cp.Progress.KeyFindings = append([]string(nil), s.Progress.KeyFindings...)
	return cp
}

// IdleFor returns how long the session has been idle relative to now.
func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(s.LastActivityMs))
}

// TurnResult is returned to the caller after a successful continue.
type TurnResult struct {
	SessionID  string           `json:"sessionId"`
	Turn       ConversationTurn `json:"turn"`
	TurnCount  int              `json:"turnCount"`
	State      SessionState     `json:"state"`
	Progress   AnalysisProgress `json:"progress"`
	DurationMs int64            `json:"durationMs"`
}

// ConversationSummary is the product of finalizing a session.
type ConversationSummary struct {
	SessionID       string        `json:"sessionId"`
	Format          SummaryFormat `json:"format"`
	Summary         string        `json:"summary"`
	KeyFindings     []string      `json:"keyFindings"`
	Recommendations []string      `json:"recommendations"`
	TurnCount       int           `json:"turnCount"`
	DurationMs      int64         `json:"durationMs"`
	Confidence      float64       `json:"confidence"`
}
