package router

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/quarrylabs/quarry/pkg/cache"
	"github.com/quarrylabs/quarry/pkg/events"
	"github.com/quarrylabs/quarry/pkg/models"
	"github.com/quarrylabs/quarry/pkg/provider"
)

const (
	// historyWeight is the share of the final score taken from historical
	// success on the same analysis type.
	historyWeight = 0.1

	// fallbackThreshold is the minimum score the next-best strategy needs
	// for the single retry after a transient provider failure.
	fallbackThreshold = 0.5
)

// Router scores registered strategies against each request, runs the winner,
// and retries once on the next-best strategy when the winner fails
// transiently.
type Router struct {
	strategies []Strategy
	stats      *statsTracker
	results    *cache.Cache
	publisher  *events.Publisher
	logger     *slog.Logger
}

// New creates a router over the given strategies. results and publisher may
// be nil to disable caching and event publication.
func New(strategies []Strategy, results *cache.Cache, publisher *events.Publisher) *Router {
	return &Router{
		strategies: strategies,
		stats:      newStatsTracker(),
		results:    results,
		publisher:  publisher,
		logger:     slog.Default().With("component", "router"),
	}
}

// rankedStrategy pairs a strategy with its blended score for one request.
type rankedStrategy struct {
	strategy Strategy
	score    float64
}

// rank scores every strategy for the request and orders them best-first.
// Exact ties break by lexicographic strategy name.
func (r *Router) rank(req *models.AnalysisRequest) []rankedStrategy {
	ranked := make([]rankedStrategy, 0, len(r.strategies))
	for _, s := range r.strategies {
		base := s.CanHandle(req)
		if base <= 0 {
			continue
		}
		score := base
		if rate, ok := r.stats.successRate(s.Name(), req.AnalysisType); ok {
			score = (1-historyWeight)*base + historyWeight*rate
		}
		ranked = append(ranked, rankedStrategy{strategy: s, score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].strategy.Name() < ranked[j].strategy.Name()
	})
	return ranked
}

// Select returns the best strategy for the request without running it.
func (r *Router) Select(req *models.AnalysisRequest) (Strategy, error) {
	ranked := r.rank(req)
	if len(ranked) == 0 {
		return nil, ErrNoStrategy
	}
	return ranked[0].strategy, nil
}

// Estimate forecasts the cost of the request under the strategy that would
// be chosen for it.
func (r *Router) Estimate(req *models.AnalysisRequest) (models.ResourceEstimate, error) {
	s, err := r.Select(req)
	if err != nil {
		return models.ResourceEstimate{}, err
	}
	return s.EstimateResources(req), nil
}

// Analyze routes the request to the best strategy and runs it. A transient
// provider failure triggers one retry on the next-best strategy whose score
// is at least 0.5; any other failure is surfaced.
func (r *Router) Analyze(ctx context.Context, req *models.AnalysisRequest) (*models.AnalysisResult, error) {
	ranked := r.rank(req)
	if len(ranked) == 0 {
		return nil, ErrNoStrategy
	}

	r.publishStarted(req, ranked[0].strategy.Name())

	result, err := r.runOne(ctx, ranked[0].strategy, req)
	if err == nil {
		r.publishCompleted(req, result)
		return result, nil
	}

	if provider.IsTransient(err) && len(ranked) > 1 && ranked[1].score >= fallbackThreshold {
		fallback := ranked[1].strategy
		r.logger.Warn("Strategy failed transiently, retrying on fallback",
			"correlation_id", req.CorrelationID,
			"failed", ranked[0].strategy.Name(),
			"fallback", fallback.Name(),
			"error", err)
		result, err = r.runOne(ctx, fallback, req)
		if err == nil {
			r.publishCompleted(req, result)
			return result, nil
		}
	}

	r.publishFailed(req, ranked[0].strategy.Name(), err)
	return nil, err
}

// Stats returns the rolling per-strategy metrics.
func (r *Router) Stats() map[string]StrategyStats {
	return r.stats.snapshot()
}

// runOne executes a single strategy with cache lookup, metric recording and
// duration stamping.
func (r *Router) runOne(ctx context.Context, s Strategy, req *models.AnalysisRequest) (*models.AnalysisResult, error) {
	key := r.cacheKey(s, req)
	if r.results != nil {
		if cached, ok := r.results.Get(key); ok {
			if result, ok := cached.(*models.AnalysisResult); ok {
				r.logger.Debug("Result cache hit",
					"correlation_id", req.CorrelationID, "strategy", s.Name())
				return result, nil
			}
		}
	}

	start := time.Now()
	result, err := s.Run(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		r.stats.record(s.Name(), req.AnalysisType, elapsed, 0, false)
		return nil, err
	}

	result.Metadata.Strategy = s.Name()
	result.Metadata.DurationMs = elapsed.Milliseconds()
	r.stats.record(s.Name(), req.AnalysisType, elapsed, result.Metadata.Confidence, true)

	if r.results != nil {
		r.results.Set(key, result, 0)
	}
	return result, nil
}

// cacheKey derives the result cache key from the inputs that determine the
// outcome: strategy, focus files, stuck points and request shape.
func (r *Router) cacheKey(s Strategy, req *models.AnalysisRequest) string {
	return cache.Key(
		s.Name(),
		req.Context.FocusArea.Files,
		strings.Join(req.Context.StuckPoints, "\n"),
		struct {
			Type  models.AnalysisType `json:"type"`
			Depth int                 `json:"depth"`
			Speed bool                `json:"speed"`
		}{req.AnalysisType, req.DepthLevel, req.PrioritizeSpeed},
	)
}

func (r *Router) publishStarted(req *models.AnalysisRequest, strategy string) {
	if r.publisher == nil {
		return
	}
	r.publisher.PublishAnalysisStarted(events.AnalysisPayload{
		CorrelationID: req.CorrelationID,
		Strategy:      strategy,
	})
}

func (r *Router) publishCompleted(req *models.AnalysisRequest, result *models.AnalysisResult) {
	if r.publisher == nil {
		return
	}
	r.publisher.PublishAnalysisCompleted(events.AnalysisPayload{
		CorrelationID: req.CorrelationID,
		Strategy:      result.Metadata.Strategy,
		DurationMs:    result.Metadata.DurationMs,
	})
}

func (r *Router) publishFailed(req *models.AnalysisRequest, strategy string, err error) {
	if r.publisher == nil {
		return
	}
	r.publisher.PublishAnalysisFailed(events.AnalysisPayload{
		CorrelationID: req.CorrelationID,
		Strategy:      strategy,
		Error:         err.Error(),
	})
}
