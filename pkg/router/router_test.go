package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/quarry/pkg/cache"
	"github.com/quarrylabs/quarry/pkg/config"
	"github.com/quarrylabs/quarry/pkg/models"
	"github.com/quarrylabs/quarry/pkg/provider"
)

// stubStrategy lets tests pin scores and outcomes directly.
type stubStrategy struct {
	name  string
	score float64
	runs  int
	err   error
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) SupportedTypes() []models.AnalysisType {
	return []models.AnalysisType{models.AnalysisTypeDeepAnalysis}
}

func (s *stubStrategy) CanHandle(req *models.AnalysisRequest) float64 { return s.score }

func (s *stubStrategy) EstimateResources(req *models.AnalysisRequest) models.ResourceEstimate {
	return models.ResourceEstimate{TimeMs: 1000, Confidence: s.score}
}

func (s *stubStrategy) Run(ctx context.Context, req *models.AnalysisRequest) (*models.AnalysisResult, error) {
	s.runs++
	if s.err != nil {
		return nil, s.err
	}
	return &models.AnalysisResult{
		Status:   models.ResultStatusSuccess,
		Metadata: models.ResultMetadata{Confidence: 0.8},
	}, nil
}

func transientErr() error {
	return &provider.Error{Provider: "fake", Class: provider.ClassTransient, Err: errors.New("rate limited")}
}

func permanentErr() error {
	return &provider.Error{Provider: "fake", Class: provider.ClassPermanent, Err: errors.New("invalid key")}
}

func TestRouter_SelectHighestScore(t *testing.T) {
	a := &stubStrategy{name: "alpha", score: 0.6}
	b := &stubStrategy{name: "beta", score: 0.9}
	r := New([]Strategy{a, b}, nil, nil)

	chosen, err := r.Select(request(models.AnalysisTypeDeepAnalysis, 1, 60, false))
	require.NoError(t, err)
	assert.Equal(t, "beta", chosen.Name())
}

func TestRouter_TieBreaksLexicographically(t *testing.T) {
	// Registration order must not matter.
	b := &stubStrategy{name: "beta", score: 0.9}
	a := &stubStrategy{name: "alpha", score: 0.9}
	r := New([]Strategy{b, a}, nil, nil)

	chosen, err := r.Select(request(models.AnalysisTypeDeepAnalysis, 1, 60, false))
	require.NoError(t, err)
	assert.Equal(t, "alpha", chosen.Name())
}

func TestRouter_NoCandidate(t *testing.T) {
	r := New([]Strategy{&stubStrategy{name: "alpha", score: 0}}, nil, nil)

	_, err := r.Select(request(models.AnalysisTypeDeepAnalysis, 1, 60, false))
	assert.ErrorIs(t, err, ErrNoStrategy)

	_, err = r.Analyze(context.Background(), request(models.AnalysisTypeDeepAnalysis, 1, 60, false))
	assert.ErrorIs(t, err, ErrNoStrategy)
}

func TestRouter_HistoryBlendFavorsProvenStrategy(t *testing.T) {
	// Same base score. alpha keeps failing, beta keeps succeeding; after a
	// few runs beta's blended score must overtake the lexicographic tie.
	alpha := &stubStrategy{name: "alpha", score: 0.7, err: permanentErr()}
	beta := &stubStrategy{name: "beta", score: 0.7}
	r := New([]Strategy{alpha, beta}, nil, nil)
	req := request(models.AnalysisTypeDeepAnalysis, 1, 60, false)

	// alpha wins the first pick by name and records a failure.
	_, err := r.Analyze(context.Background(), req)
	require.Error(t, err)

	// alpha now has 0% success on this type: 0.9*0.7+0.1*0 = 0.63 < 0.7.
	chosen, err := r.Select(req)
	require.NoError(t, err)
	assert.Equal(t, "beta", chosen.Name())
}

func TestRouter_TransientFallback(t *testing.T) {
	t.Run("retries next-best above threshold", func(t *testing.T) {
		primary := &stubStrategy{name: "alpha", score: 0.9, err: transientErr()}
		fallback := &stubStrategy{name: "beta", score: 0.6}
		r := New([]Strategy{primary, fallback}, nil, nil)

		result, err := r.Analyze(context.Background(), request(models.AnalysisTypeDeepAnalysis, 1, 60, false))
		require.NoError(t, err)
		assert.Equal(t, 1, primary.runs)
		assert.Equal(t, 1, fallback.runs)
		assert.Equal(t, "beta", result.Metadata.Strategy)
	})

	t.Run("no retry below threshold", func(t *testing.T) {
		primary := &stubStrategy{name: "alpha", score: 0.9, err: transientErr()}
		fallback := &stubStrategy{name: "beta", score: 0.4}
		r := New([]Strategy{primary, fallback}, nil, nil)

		_, err := r.Analyze(context.Background(), request(models.AnalysisTypeDeepAnalysis, 1, 60, false))
		require.Error(t, err)
		assert.True(t, provider.IsTransient(err))
		assert.Zero(t, fallback.runs)
	})

	t.Run("no retry on permanent failure", func(t *testing.T) {
		primary := &stubStrategy{name: "alpha", score: 0.9, err: permanentErr()}
		fallback := &stubStrategy{name: "beta", score: 0.8}
		r := New([]Strategy{primary, fallback}, nil, nil)

		_, err := r.Analyze(context.Background(), request(models.AnalysisTypeDeepAnalysis, 1, 60, false))
		require.Error(t, err)
		assert.Zero(t, fallback.runs)
	})

	t.Run("only one retry", func(t *testing.T) {
		primary := &stubStrategy{name: "alpha", score: 0.9, err: transientErr()}
		second := &stubStrategy{name: "beta", score: 0.8, err: transientErr()}
		third := &stubStrategy{name: "gamma", score: 0.7}
		r := New([]Strategy{primary, second, third}, nil, nil)

		_, err := r.Analyze(context.Background(), request(models.AnalysisTypeDeepAnalysis, 1, 60, false))
		require.Error(t, err)
		assert.Equal(t, 1, primary.runs)
		assert.Equal(t, 1, second.runs)
		assert.Zero(t, third.runs)
	})
}

func TestRouter_CachesResults(t *testing.T) {
	results := cache.New(config.DefaultCacheConfig())
	s := &stubStrategy{name: "alpha", score: 0.9}
	r := New([]Strategy{s}, results, nil)
	req := request(models.AnalysisTypeDeepAnalysis, 3, 60, false)

	first, err := r.Analyze(context.Background(), req)
	require.NoError(t, err)
	second, err := r.Analyze(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, s.runs, "second call should be served from cache")
	assert.Same(t, first, second)
	assert.Equal(t, int64(1), results.Stats().Hits)
}

func TestRouter_StatsTracking(t *testing.T) {
	ok := &stubStrategy{name: "alpha", score: 0.9}
	r := New([]Strategy{ok}, nil, nil)
	req := request(models.AnalysisTypeDeepAnalysis, 1, 60, false)

	_, err := r.Analyze(context.Background(), req)
	require.NoError(t, err)
	_, err = r.Analyze(context.Background(), req)
	require.NoError(t, err)

	stats := r.Stats()["alpha"]
	assert.Equal(t, int64(2), stats.Executions)
	assert.Zero(t, stats.Failures)
	assert.Equal(t, 1.0, stats.SuccessRate)
	assert.InDelta(t, 0.8, stats.AvgConfidence, 1e-9)
}

func TestStatsTracker_SuccessRatePerType(t *testing.T) {
	tr := newStatsTracker()
	tr.record("alpha", models.AnalysisTypeDeepAnalysis, 10*time.Millisecond, 0.9, true)
	tr.record("alpha", models.AnalysisTypeDeepAnalysis, 10*time.Millisecond, 0, false)
	tr.record("alpha", models.AnalysisTypeQuickScan, 10*time.Millisecond, 0.7, true)

	rate, ok := tr.successRate("alpha", models.AnalysisTypeDeepAnalysis)
	require.True(t, ok)
	assert.Equal(t, 0.5, rate)

	rate, ok = tr.successRate("alpha", models.AnalysisTypeQuickScan)
	require.True(t, ok)
	assert.Equal(t, 1.0, rate)

	_, ok = tr.successRate("beta", models.AnalysisTypeQuickScan)
	assert.False(t, ok)
}
