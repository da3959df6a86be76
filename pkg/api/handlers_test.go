package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/quarry/pkg/config"
	"github.com/quarrylabs/quarry/pkg/health"
	"github.com/quarrylabs/quarry/pkg/models"
	"github.com/quarrylabs/quarry/pkg/router"
	"github.com/quarrylabs/quarry/pkg/session"
	"github.com/quarrylabs/quarry/pkg/tournament"
)

// echoStrategy accepts every request and records what it was asked.
type echoStrategy struct {
	requests []*models.AnalysisRequest
}

func (s *echoStrategy) Name() string { return "echo" }

func (s *echoStrategy) SupportedTypes() []models.AnalysisType {
	return []models.AnalysisType{
		models.AnalysisTypeDeepAnalysis,
		models.AnalysisTypeQuickScan,
		models.AnalysisTypeExecutionTrace,
		models.AnalysisTypeCrossSystem,
		models.AnalysisTypePerformance,
		models.AnalysisTypeHypothesisTest,
	}
}

func (s *echoStrategy) CanHandle(req *models.AnalysisRequest) float64 { return 0.8 }

func (s *echoStrategy) EstimateResources(req *models.AnalysisRequest) models.ResourceEstimate {
	return models.ResourceEstimate{TimeMs: 10, Confidence: 0.8}
}

func (s *echoStrategy) Run(ctx context.Context, req *models.AnalysisRequest) (*models.AnalysisResult, error) {
	s.requests = append(s.requests, req)
	return &models.AnalysisResult{
		Status:          models.ResultStatusSuccess,
		Recommendations: []string{"check the lock ordering"},
		Reasoning:       "analyzed",
		Metadata:        models.ResultMetadata{Confidence: 0.8},
	}, nil
}

// echoRunner replies with a fixed string.
type echoRunner struct {
	reply string
}

func (r *echoRunner) RunTurn(ctx context.Context, sess *models.Session, message string) (string, string, error) {
	return r.reply, "handle-1", nil
}

// fixedEvaluator scores every hypothesis in a group with a fixed likelihood
// derived from its position.
type fixedEvaluator struct{}

func (fixedEvaluator) EvaluateMatch(ctx context.Context, hyps []models.Hypothesis, scope models.FocusArea) ([]models.MatchResult, error) {
	out := make([]models.MatchResult, 0, len(hyps))
	for i, h := range hyps {
		out = append(out, models.MatchResult{
			HypothesisID: h.ID,
			Likelihood:   float64(90 - i*10),
			Evidence:     []string{"observed"},
		})
	}
	return out, nil
}

func testServer(t *testing.T) (*Server, *echoStrategy) {
	t.Helper()
	strategy := &echoStrategy{}
	cfg := &config.Config{
		Server:     config.DefaultServerConfig(),
		Session:    config.DefaultSessionConfig(),
		Tournament: config.DefaultTournamentConfig(),
		Health:     config.DefaultHealthConfig(),
	}
	r := router.New([]router.Strategy{strategy}, nil, nil)
	sched := session.NewScheduler(cfg.Session, &echoRunner{reply: "Looks like a deadlock.\nConfidence: 40%"}, nil)
	engine := tournament.NewEngine(cfg.Tournament, fixedEvaluator{}, nil)
	monitor := health.NewMonitor(time.Minute, time.Second)
	require.NoError(t, monitor.Register(health.CheckConfig{
		Name:    "self",
		Type:    health.CheckTypeFunctional,
		Enabled: true,
		Fn: func(ctx context.Context) (health.State, map[string]any, error) {
			return health.StateHealthy, nil, nil
		},
	}))
	return NewServer(cfg, r, sched, engine, monitor, nil), strategy
}

func TestEscalateAnalysis(t *testing.T) {
	s, strategy := testServer(t)

	out, terr := s.escalateAnalysis(context.Background(), EscalateAnalysisInput{
		AnalysisContext: richExternalContext(),
		AnalysisType:    "deep_analysis",
		DepthLevel:      3,
	})
	require.Nil(t, terr)
	assert.Equal(t, "success", out.Status)
	assert.NotEmpty(t, out.CorrelationID)
	assert.Equal(t, []string{"check the lock ordering"}, out.Recommendations)

	require.Len(t, strategy.requests, 1)
	req := strategy.requests[0]
	assert.Equal(t, models.AnalysisTypeDeepAnalysis, req.AnalysisType)
	// Unset budget falls back to the configured default.
	assert.Equal(t, 60, req.TimeBudgetSeconds)
	assert.Equal(t, []string{"flush loses the last batch", "only reproduces under load"}, req.Context.StuckPoints)
}

func TestEscalateAnalysisRejectsBeforeRouting(t *testing.T) {
	s, strategy := testServer(t)

	ctx := richExternalContext()
	ctx.CodeScope.Files = []string{"../../etc/shadow"}
	_, terr := s.escalateAnalysis(context.Background(), EscalateAnalysisInput{
		AnalysisContext: ctx,
		AnalysisType:    "deep_analysis",
		DepthLevel:      3,
	})
	require.NotNil(t, terr)
	assert.Equal(t, KindPathUnsafe, terr.Kind)
	// Validation failures never reach a strategy.
	assert.Empty(t, strategy.requests)
}

func TestTraceExecutionPathBuildsRequest(t *testing.T) {
	s, strategy := testServer(t)

	out, terr := s.traceExecutionPath(context.Background(), TraceExecutionPathInput{
		EntryPoint:      ExternalLocation{File: "cmd/server/main.go", Line: 12, FunctionName: "main"},
		IncludeDataFlow: true,
	})
	require.Nil(t, terr)
	assert.Equal(t, "success", out.Status)

	require.Len(t, strategy.requests, 1)
	req := strategy.requests[0]
	assert.Equal(t, models.AnalysisTypeExecutionTrace, req.AnalysisType)
	assert.Equal(t, []string{"cmd/server/main.go"}, req.Context.FocusArea.Files)
	assert.Len(t, req.Context.StuckPoints, 2)
}

func TestHypothesisTestRequiresHypothesis(t *testing.T) {
	s, _ := testServer(t)
	_, terr := s.hypothesisTest(context.Background(), HypothesisTestInput{
		CodeScope: ExternalScope{Files: []string{"pkg/a.go"}},
	})
	require.NotNil(t, terr)
	assert.Equal(t, KindInvalidInput, terr.Kind)
}

func TestConversationLifecycle(t *testing.T) {
	s, _ := testServer(t)
	ctx := context.Background()

	started, terr := s.startConversation(ctx, StartConversationInput{
		AnalysisContext: richExternalContext(),
		AnalysisType:    "deep_analysis",
		InitialQuestion: "where does the batch get dropped?",
	})
	require.Nil(t, terr)
	require.NotNil(t, started.InitialReply)
	assert.Equal(t, "model", started.InitialReply.Role)
	assert.Equal(t, "active", started.State)

	cont, terr := s.continueConversation(ctx, ContinueConversationInput{
		SessionID: started.SessionID,
		Message:   "what about the writer goroutine?",
	})
	require.Nil(t, terr)
	assert.Equal(t, 4, cont.TurnCount)
	assert.InDelta(t, 0.4, cont.Confidence, 0.001)

	status, terr := s.conversationStatus(ConversationStatusInput{SessionID: started.SessionID})
	require.Nil(t, terr)
	assert.Equal(t, "active", status.State)
	assert.Equal(t, 4, status.TurnCount)

	fin, terr := s.finalizeConversation(ctx, FinalizeConversationInput{SessionID: started.SessionID})
	require.Nil(t, terr)
	assert.Equal(t, "detailed", fin.Format)
	assert.Equal(t, 4, fin.TurnCount)
	assert.NotEmpty(t, fin.Summary)

	// The id is gone after finalize.
	_, terr = s.conversationStatus(ConversationStatusInput{SessionID: started.SessionID})
	require.NotNil(t, terr)
	assert.Equal(t, KindNotFound, terr.Kind)
}

func TestContinueUnknownSession(t *testing.T) {
	s, _ := testServer(t)
	_, terr := s.continueConversation(context.Background(), ContinueConversationInput{
		SessionID: "no-such-session",
		Message:   "hello",
	})
	require.NotNil(t, terr)
	assert.Equal(t, KindNotFound, terr.Kind)
}

func TestRunTournament(t *testing.T) {
	s, _ := testServer(t)

	out, terr := s.runTournament(context.Background(), TournamentInput{
		Hypotheses: []ExternalHypothesis{
			{ID: "h1", Description: "stale cache", Type: "bug", Confidence: 4},
			{ID: "h2", Description: "lock contention", Type: "performance", Confidence: 3},
			{ID: "h3", Description: "starved worker", Type: "behavior", Confidence: 2},
		},
		TestScope: ExternalScope{Files: []string{"pkg/store/writer.go"}},
	})
	require.Nil(t, terr)
	assert.Equal(t, "success", out.Status)
	require.NotNil(t, out.Winner)
	assert.Len(t, out.Rankings, 3)
	assert.Equal(t, 1, out.Winner.Rank)
	assert.NotEmpty(t, out.CorrelationID)
}

func TestRunTournamentRejectsTooFew(t *testing.T) {
	s, _ := testServer(t)
	_, terr := s.runTournament(context.Background(), TournamentInput{
		Hypotheses: []ExternalHypothesis{
			{ID: "h1", Description: "only one", Type: "bug", Confidence: 3},
		},
		TestScope: ExternalScope{Files: []string{"pkg/a.go"}},
	})
	require.NotNil(t, terr)
	assert.Equal(t, KindInvalidInput, terr.Kind)
}

func TestHealthTools(t *testing.T) {
	s, _ := testServer(t)
	ctx := context.Background()

	out, terr := s.healthCheck(ctx, HealthCheckInput{})
	require.Nil(t, terr)
	assert.Equal(t, "healthy", out.State)
	require.Len(t, out.Checks, 1)
	assert.Equal(t, "self", out.Checks[0].Name)

	one, terr := s.healthCheck(ctx, HealthCheckInput{CheckName: "self"})
	require.Nil(t, terr)
	assert.Equal(t, "healthy", one.State)

	_, terr = s.healthCheck(ctx, HealthCheckInput{CheckName: "missing"})
	require.NotNil(t, terr)
	assert.Equal(t, KindNotFound, terr.Kind)

	sum, terr := s.healthSummary(HealthSummaryInput{IncludeDetails: true})
	require.Nil(t, terr)
	assert.Equal(t, "healthy", sum.State)
	assert.Equal(t, []string{"self"}, sum.CheckNames)
	require.Len(t, sum.Checks, 1)
}

func TestBuildRegistersAllTools(t *testing.T) {
	s, _ := testServer(t)
	server := s.Build()
	assert.NotNil(t, server)
}
