// Package router selects and runs analysis strategies. Each strategy scores
// its fit for a request; the router picks the best scorer, blending in a
// small amount of historical success, and falls back once on transient
// provider failures.
package router

import (
	"context"
	"errors"

	"github.com/quarrylabs/quarry/pkg/models"
)

// ErrNoStrategy is returned when no registered strategy can handle a request.
var ErrNoStrategy = errors.New("no strategy can handle this request")

// Strategy is the capability interface every analysis strategy implements.
// Strategies are registered with the router; there is no hierarchy.
type Strategy interface {
	// Name is the unique strategy identifier, used for metrics, cache keys
	// and deterministic tie-breaking.
	Name() string

	// SupportedTypes lists the analysis types this strategy accepts.
	SupportedTypes() []models.AnalysisType

	// CanHandle scores the strategy's fit for the request in [0,1].
	CanHandle(req *models.AnalysisRequest) float64

	// EstimateResources forecasts the cost of running the request.
	EstimateResources(req *models.AnalysisRequest) models.ResourceEstimate

	// Run executes the analysis. Implementations must honor ctx.
	Run(ctx context.Context, req *models.AnalysisRequest) (*models.AnalysisResult, error)
}

func supportsType(s Strategy, t models.AnalysisType) bool {
	for _, st := range s.SupportedTypes() {
		if st == t {
			return true
		}
	}
	return false
}
