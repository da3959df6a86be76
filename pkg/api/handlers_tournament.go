package api

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/quarrylabs/quarry/pkg/models"
)

// ExternalHypothesis is the wire form of a tournament entrant.
type ExternalHypothesis struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Confidence  int    `json:"confidence"`
}

// ExternalTournamentConfig bounds the tournament's concurrency and timing.
type ExternalTournamentConfig struct {
	MaxParallel        int `json:"max_parallel,omitempty"`
	PerMatchTimeoutSec int `json:"per_match_timeout_sec,omitempty"`
}

// TournamentInput is the wire input of run_hypothesis_tournament.
type TournamentInput struct {
	Hypotheses       []ExternalHypothesis      `json:"hypotheses"`
	TestScope        ExternalScope             `json:"test_scope"`
	TournamentConfig *ExternalTournamentConfig `json:"tournament_config,omitempty"`
	CorrelationID    string                    `json:"correlation_id,omitempty"`
}

// ExternalMatchResult is the wire form of one match outcome.
type ExternalMatchResult struct {
	HypothesisID    string   `json:"hypothesis_id"`
	Likelihood      float64  `json:"likelihood"`
	Evidence        []string `json:"evidence,omitempty"`
	CounterEvidence []string `json:"counter_evidence,omitempty"`
	DurationMs      int64    `json:"duration_ms"`
}

// ExternalRanking is the wire form of one entry in the final ordering.
type ExternalRanking struct {
	Hypothesis     ExternalHypothesis    `json:"hypothesis"`
	Likelihood     float64               `json:"likelihood"`
	Rank           int                   `json:"rank"`
	RoundsSurvived int                   `json:"rounds_survived"`
	Matches        []ExternalMatchResult `json:"matches,omitempty"`
}

// TournamentOutput is the wire output of run_hypothesis_tournament.
type TournamentOutput struct {
	Status         string            `json:"status"`
	Rankings       []ExternalRanking `json:"rankings"`
	Winner         *ExternalRanking  `json:"winner,omitempty"`
	Recommendation string            `json:"recommendation"`
	RoundsPlayed   int               `json:"rounds_played"`
	DurationMs     int64             `json:"duration_ms"`
	CorrelationID  string            `json:"correlation_id"`
}

func (s *Server) registerTournamentTool(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_hypothesis_tournament",
		Description: "Run competing hypotheses through elimination rounds against a code scope and rank them by likelihood.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input TournamentInput) (*mcp.CallToolResult, *TournamentOutput, error) {
		return handle(s, "run_hypothesis_tournament", func() (TournamentOutput, *ToolError) {
			return s.runTournament(ctx, input)
		})
	})
}

func (s *Server) runTournament(ctx context.Context, input TournamentInput) (TournamentOutput, *ToolError) {
	correlationID := correlate(input.CorrelationID)

	if terr := validateHypotheses(input.Hypotheses); terr != nil {
		terr.CorrelationID = correlationID
		return TournamentOutput{}, terr
	}
	if terr := validateScope("test_scope", input.TestScope); terr != nil {
		terr.CorrelationID = correlationID
		return TournamentOutput{}, terr
	}

	hyps := make([]models.Hypothesis, 0, len(input.Hypotheses))
	for _, h := range input.Hypotheses {
		hyps = append(hyps, hypothesisIn(h))
	}

	var settings models.TournamentSettings
	if input.TournamentConfig != nil {
		settings.MaxParallel = input.TournamentConfig.MaxParallel
		settings.PerMatchTimeoutSec = input.TournamentConfig.PerMatchTimeoutSec
	}

	result, err := s.engine.Run(ctx, hyps, scopeIn(input.TestScope), settings)
	if err != nil {
		return TournamentOutput{}, foldError(err, correlationID)
	}
	return tournamentOut(result, correlationID), nil
}

func hypothesisIn(h ExternalHypothesis) models.Hypothesis {
	return models.Hypothesis{
		ID:          h.ID,
		Description: h.Description,
		Type:        models.HypothesisType(h.Type),
		Confidence:  h.Confidence,
	}
}

func hypothesisOut(h models.Hypothesis) ExternalHypothesis {
	return ExternalHypothesis{
		ID:          h.ID,
		Description: h.Description,
		Type:        string(h.Type),
		Confidence:  h.Confidence,
	}
}

func matchOut(m models.MatchResult) ExternalMatchResult {
	return ExternalMatchResult{
		HypothesisID:    m.HypothesisID,
		Likelihood:      m.Likelihood,
		Evidence:        m.Evidence,
		CounterEvidence: m.CounterEvidence,
		DurationMs:      m.DurationMs,
	}
}

func rankingOut(r models.HypothesisRanking) ExternalRanking {
	out := ExternalRanking{
		Hypothesis:     hypothesisOut(r.Hypothesis),
		Likelihood:     r.Likelihood,
		Rank:           r.Rank,
		RoundsSurvived: r.RoundsSurvived,
	}
	for _, m := range r.Matches {
		out.Matches = append(out.Matches, matchOut(m))
	}
	return out
}

func tournamentOut(r *models.TournamentResult, correlationID string) TournamentOutput {
	out := TournamentOutput{
		Status:         string(r.Status),
		Recommendation: r.Recommendation,
		RoundsPlayed:   r.RoundsPlayed,
		DurationMs:     r.DurationMs,
		CorrelationID:  correlationID,
	}
	for _, rk := range r.Rankings {
		out.Rankings = append(out.Rankings, rankingOut(rk))
	}
	if r.Winner != nil {
		w := rankingOut(*r.Winner)
		out.Winner = &w
	}
	return out
}
