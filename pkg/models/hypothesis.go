package models

// Hypothesis is a caller-supplied candidate explanation entered into a
// tournament. Confidence is the caller's prior on a 1..5 scale.
type Hypothesis struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Type        HypothesisType `json:"type"`
	Confidence  int            `json:"confidence"`
}

// MatchResult records how one hypothesis fared in one tournament match.
// Likelihood ranges over [0,100]; a timed-out match records 0.
type MatchResult struct {
	HypothesisID    string   `json:"hypothesisId"`
	Likelihood      float64  `json:"likelihood"`
	Evidence        []string `json:"evidence"`
	CounterEvidence []string `json:"counterEvidence"`
	DurationMs      int64    `json:"durationMs"`
}

// HypothesisRanking is one entry in a tournament's final ordering.
type HypothesisRanking struct {
	Hypothesis     Hypothesis    `json:"hypothesis"`
	Likelihood     float64       `json:"likelihood"`
	Rank           int           `json:"rank"`
	RoundsSurvived int           `json:"roundsSurvived"`
	Matches        []MatchResult `json:"matches"`
}

// TournamentResult is the full outcome of a hypothesis tournament. Rankings
// always contain every input hypothesis exactly once.
type TournamentResult struct {
	Status         ResultStatus        `json:"status"`
	Rankings       []HypothesisRanking `json:"rankings"`
	Winner         *HypothesisRanking  `json:"winner,omitempty"`
	Recommendation string              `json:"recommendation"`
	RoundsPlayed   int                 `json:"roundsPlayed"`
	DurationMs     int64               `json:"durationMs"`
}

// TournamentSettings bounds a tournament's parallelism and per-match budget.
type TournamentSettings struct {
	MaxParallel        int `json:"maxParallel"`
	PerMatchTimeoutSec int `json:"perMatchTimeoutSec"`
}
