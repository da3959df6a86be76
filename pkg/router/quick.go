package router

import (
	"context"
	"time"

	"github.com/quarrylabs/quarry/pkg/models"
	"github.com/quarrylabs/quarry/pkg/provider"
)

const (
	quickMinTimeBudget = 5 * time.Second
	quickMaxFiles      = 10
	quickConfidence    = 0.7
)

// QuickStrategy issues one short provider request over a truncated focus
// area. It trades confidence for latency and wins when the caller asks for
// speed or the budget is tight.
type QuickStrategy struct {
	gateway *provider.Gateway
}

// NewQuickStrategy creates the quick scan strategy.
func NewQuickStrategy(gateway *provider.Gateway) *QuickStrategy {
	return &QuickStrategy{gateway: gateway}
}

func (s *QuickStrategy) Name() string { return "quick" }

func (s *QuickStrategy) SupportedTypes() []models.AnalysisType {
	return []models.AnalysisType{
		models.AnalysisTypeQuickScan,
		models.AnalysisTypeExecutionTrace,
		models.AnalysisTypePerformance,
		models.AnalysisTypeHypothesisTest,
		models.AnalysisTypeDeepAnalysis,
		models.AnalysisTypeCrossSystem,
	}
}

func (s *QuickStrategy) CanHandle(req *models.AnalysisRequest) float64 {
	if !supportsType(s, req.AnalysisType) || !s.gateway.AnyAvailable() {
		return 0
	}
	switch {
	case req.PrioritizeSpeed:
		return 0.9
	case req.TimeBudget() <= 10*time.Second:
		return 0.8
	case req.FileCount() > quickMaxFiles:
		return 0.1
	case req.AnalysisType == models.AnalysisTypeQuickScan:
		return 0.7
	default:
		return 0.5
	}
}

func (s *QuickStrategy) EstimateResources(req *models.AnalysisRequest) models.ResourceEstimate {
	files := req.FileCount()
	if files > quickMaxFiles {
		files = quickMaxFiles
	}
	timeMs := req.TimeBudget().Milliseconds()
	if min := quickMinTimeBudget.Milliseconds(); timeMs < min {
		timeMs = min
	}
	return models.ResourceEstimate{
		TimeMs:     timeMs,
		Bytes:      int64(files) * 8 * 1024,
		Confidence: quickConfidence,
	}
}

// Run truncates the focus area to the first 10 files and issues one short
// request.
func (s *QuickStrategy) Run(ctx context.Context, req *models.AnalysisRequest) (*models.AnalysisResult, error) {
	p, err := s.gateway.Select()
	if err != nil {
		return nil, err
	}
	timeout := req.TimeBudget()
	if timeout < quickMinTimeBudget {
		timeout = quickMinTimeBudget
	}
	reply, err := p.Complete(ctx, buildPrompt(req, quickMaxFiles), provider.CompleteOptions{
		SystemPrompt: analysisSystemPrompt,
		Timeout:      timeout,
	})
	if err != nil {
		return nil, err
	}
	return parseReply(reply, s.Name(), quickConfidence), nil
}
