package router

import (
	"context"
	"time"

	"github.com/quarrylabs/quarry/pkg/models"
	"github.com/quarrylabs/quarry/pkg/provider"
)

const (
	deepMinTimeBudget = 30 * time.Second
	deepMaxFiles      = 50
	deepConfidence    = 0.9
)

// DeepStrategy performs a single long-form, high-confidence provider request
// over the full focus area. Best suited to deep and cross-system analyses
// with generous time budgets.
type DeepStrategy struct {
	gateway *provider.Gateway
}

// NewDeepStrategy creates the deep analysis strategy.
func NewDeepStrategy(gateway *provider.Gateway) *DeepStrategy {
	return &DeepStrategy{gateway: gateway}
}

func (s *DeepStrategy) Name() string { return "deep" }

func (s *DeepStrategy) SupportedTypes() []models.AnalysisType {
	return []models.AnalysisType{
		models.AnalysisTypeDeepAnalysis,
		models.AnalysisTypeCrossSystem,
		models.AnalysisTypeExecutionTrace,
		models.AnalysisTypePerformance,
		models.AnalysisTypeHypothesisTest,
	}
}

// CanHandle scores fit for the request. Constraint violations are checked
// before the ideal case so the worst limitation dominates.
func (s *DeepStrategy) CanHandle(req *models.AnalysisRequest) float64 {
	if !supportsType(s, req.AnalysisType) || !s.gateway.AnyAvailable() {
		return 0
	}
	switch {
	case req.PrioritizeSpeed:
		return 0.4
	case req.FileCount() > deepMaxFiles:
		return 0.2
	case req.TimeBudget() < deepMinTimeBudget:
		return 0.3
	case req.AnalysisType == models.AnalysisTypeDeepAnalysis ||
		req.AnalysisType == models.AnalysisTypeCrossSystem:
		return 0.9
	default:
		return 0.5
	}
}

func (s *DeepStrategy) EstimateResources(req *models.AnalysisRequest) models.ResourceEstimate {
	return models.ResourceEstimate{
		TimeMs:     req.TimeBudget().Milliseconds(),
		Bytes:      int64(req.FileCount()) * 32 * 1024,
		Confidence: deepConfidence,
	}
}

// Run issues one long-form request over the full focus area.
func (s *DeepStrategy) Run(ctx context.Context, req *models.AnalysisRequest) (*models.AnalysisResult, error) {
	p, err := s.gateway.Select()
	if err != nil {
		return nil, err
	}
	reply, err := p.Complete(ctx, buildPrompt(req, 0), provider.CompleteOptions{
		SystemPrompt: analysisSystemPrompt,
		Timeout:      req.TimeBudget(),
	})
	if err != nil {
		return nil, err
	}
	return parseReply(reply, s.Name(), deepConfidence), nil
}
