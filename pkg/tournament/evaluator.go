package tournament

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/quarrylabs/quarry/pkg/models"
	"github.com/quarrylabs/quarry/pkg/provider"
)

// Evaluator scores one match: a group of hypotheses tested together against
// the shared scope with a single provider query.
type Evaluator interface {
	EvaluateMatch(ctx context.Context, hyps []models.Hypothesis, scope models.FocusArea) ([]models.MatchResult, error)
}

const matchSystemPrompt = `You are judging competing hypotheses about a codebase problem.
For every hypothesis, weigh the evidence for and against it within the given
scope. Reply with a JSON array only, one object per hypothesis:
[{"id": "...", "likelihood": 0-100, "evidence": ["..."], "counter_evidence": ["..."]}]`

// providerEvaluator backs matches with the provider gateway.
type providerEvaluator struct {
	gateway *provider.Gateway
}

// NewProviderEvaluator creates the production match evaluator.
func NewProviderEvaluator(gateway *provider.Gateway) Evaluator {
	return &providerEvaluator{gateway: gateway}
}

func (e *providerEvaluator) EvaluateMatch(ctx context.Context, hyps []models.Hypothesis, scope models.FocusArea) ([]models.MatchResult, error) {
	p, err := e.gateway.Select()
	if err != nil {
		return nil, err
	}
	reply, err := p.Complete(ctx, buildMatchPrompt(hyps, scope), provider.CompleteOptions{
		SystemPrompt: matchSystemPrompt,
	})
	if err != nil {
		return nil, err
	}
	return parseMatchReply(reply, hyps)
}

func buildMatchPrompt(hyps []models.Hypothesis, scope models.FocusArea) string {
	var b strings.Builder
	b.WriteString("Hypotheses under test:\n")
	for _, h := range hyps {
		fmt.Fprintf(&b, "- id=%s [%s] %s\n", h.ID, h.Type, h.Description)
	}
	if len(scope.Files) > 0 {
		b.WriteString("\nScope files:\n")
		for _, f := range scope.Files {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	if len(scope.EntryPoints) > 0 {
		b.WriteString("\nEntry points:\n")
		for _, ep := range scope.EntryPoints {
			fmt.Fprintf(&b, "- %s:%d %s\n", ep.File, ep.Line, ep.FunctionName)
		}
	}
	return b.String()
}

// matchVerdict is the wire shape one hypothesis verdict arrives in.
type matchVerdict struct {
	ID              string   `json:"id"`
	Likelihood      float64  `json:"likelihood"`
	Evidence        []string `json:"evidence"`
	CounterEvidence []string `json:"counter_evidence"`
}

// parseMatchReply decodes the provider's JSON verdicts. A hypothesis the
// reply omits scores 0 with no evidence; verdicts for unknown ids are
// dropped; likelihoods are clamped to [0,100].
func parseMatchReply(reply string, hyps []models.Hypothesis) ([]models.MatchResult, error) {
	raw := stripFences(reply)
	start := strings.IndexByte(raw, '[')
	end := strings.LastIndexByte(raw, ']')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("match reply carries no JSON array")
	}

	var verdicts []matchVerdict
	if err := json.Unmarshal([]byte(raw[start:end+1]), &verdicts); err != nil {
		return nil, fmt.Errorf("failed to decode match verdicts: %w", err)
	}

	byID := make(map[string]matchVerdict, len(verdicts))
	for _, v := range verdicts {
		byID[v.ID] = v
	}

	results := make([]models.MatchResult, 0, len(hyps))
	for _, h := range hyps {
		v := byID[h.ID]
		if v.Likelihood < 0 {
			v.Likelihood = 0
		}
		if v.Likelihood > 100 {
			v.Likelihood = 100
		}
		results = append(results, models.MatchResult{
			HypothesisID:    h.ID,
			Likelihood:      v.Likelihood,
			Evidence:        v.Evidence,
			CounterEvidence: v.CounterEvidence,
		})
	}
	return results, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return s
}
