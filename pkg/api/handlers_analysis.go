package api

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/quarrylabs/quarry/pkg/models"
)

// EscalateAnalysisInput is the wire input of escalate_analysis.
type EscalateAnalysisInput struct {
	AnalysisContext   ExternalContext `json:"analysis_context"`
	AnalysisType      string          `json:"analysis_type"`
	DepthLevel        int             `json:"depth_level"`
	TimeBudgetSeconds int             `json:"time_budget_seconds,omitempty"`
	PrioritizeSpeed   bool            `json:"prioritize_speed,omitempty"`
	CorrelationID     string          `json:"correlation_id,omitempty"`
}

// TraceExecutionPathInput is the wire input of trace_execution_path.
type TraceExecutionPathInput struct {
	EntryPoint      ExternalLocation `json:"entry_point"`
	MaxDepth        int              `json:"max_depth,omitempty"`
	IncludeDataFlow bool             `json:"include_data_flow,omitempty"`
	CorrelationID   string           `json:"correlation_id,omitempty"`
}

// HypothesisTestInput is the wire input of hypothesis_test.
type HypothesisTestInput struct {
	Hypothesis    string        `json:"hypothesis"`
	CodeScope     ExternalScope `json:"code_scope"`
	TestApproach  string        `json:"test_approach,omitempty"`
	CorrelationID string        `json:"correlation_id,omitempty"`
}

// CrossSystemImpactInput is the wire input of cross_system_impact.
type CrossSystemImpactInput struct {
	ChangeScope   ExternalScope `json:"change_scope"`
	ImpactTypes   []string      `json:"impact_types,omitempty"`
	CorrelationID string        `json:"correlation_id,omitempty"`
}

// PerformanceBottleneckInput is the wire input of performance_bottleneck.
type PerformanceBottleneckInput struct {
	CodePath      PerformanceCodePath `json:"code_path"`
	ProfileDepth  int                 `json:"profile_depth,omitempty"`
	CorrelationID string              `json:"correlation_id,omitempty"`
}

type PerformanceCodePath struct {
	EntryPoint      ExternalLocation `json:"entry_point"`
	SuspectedIssues []string         `json:"suspected_issues,omitempty"`
}

func (s *Server) registerAnalysisTools(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "escalate_analysis",
		Description: "One-shot deep analysis of a problem the caller is stuck on: attempted approaches, partial findings, stuck points and a code scope.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input EscalateAnalysisInput) (*mcp.CallToolResult, *ExternalResult, error) {
		return handle(s, "escalate_analysis", func() (ExternalResult, *ToolError) {
			return s.escalateAnalysis(ctx, input)
		})
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "trace_execution_path",
		Description: "Follow an execution path from an entry point, optionally tracking data flow.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input TraceExecutionPathInput) (*mcp.CallToolResult, *ExternalResult, error) {
		return handle(s, "trace_execution_path", func() (ExternalResult, *ToolError) {
			return s.traceExecutionPath(ctx, input)
		})
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "hypothesis_test",
		Description: "Evaluate a single candidate explanation against a code scope.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input HypothesisTestInput) (*mcp.CallToolResult, *ExternalResult, error) {
		return handle(s, "hypothesis_test", func() (ExternalResult, *ToolError) {
			return s.hypothesisTest(ctx, input)
		})
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cross_system_impact",
		Description: "Analyze the impact of a change across service boundaries.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input CrossSystemImpactInput) (*mcp.CallToolResult, *ExternalResult, error) {
		return handle(s, "cross_system_impact", func() (ExternalResult, *ToolError) {
			return s.crossSystemImpact(ctx, input)
		})
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "performance_bottleneck",
		Description: "Hunt for performance bottlenecks along a code path.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input PerformanceBottleneckInput) (*mcp.CallToolResult, *ExternalResult, error) {
		return handle(s, "performance_bottleneck", func() (ExternalResult, *ToolError) {
			return s.performanceBottleneck(ctx, input)
		})
	})
}

// handle wraps one tool body with instrumentation and error encoding.
func handle[T any](s *Server, tool string, fn func() (T, *ToolError)) (*mcp.CallToolResult, *T, error) {
	start := time.Now()
	out, terr := fn()
	s.instrument(tool, start, terr)
	if terr != nil {
		result, err := fail(terr)
		return result, nil, err
	}
	return nil, &out, nil
}

func (s *Server) escalateAnalysis(ctx context.Context, input EscalateAnalysisInput) (ExternalResult, *ToolError) {
	correlationID := correlate(input.CorrelationID)

	if terr := validateContext(input.AnalysisContext); terr != nil {
		terr.CorrelationID = correlationID
		return ExternalResult{}, terr
	}
	analysisType, terr := validateAnalysisType(input.AnalysisType)
	if terr != nil {
		terr.CorrelationID = correlationID
		return ExternalResult{}, terr
	}
	if terr := validateDepthLevel(input.DepthLevel); terr != nil {
		terr.CorrelationID = correlationID
		return ExternalResult{}, terr
	}

	analysisCtx, terr := contextIn(input.AnalysisContext)
	if terr != nil {
		terr.CorrelationID = correlationID
		return ExternalResult{}, terr
	}

	return s.analyze(ctx, &models.AnalysisRequest{
		Context:           analysisCtx,
		AnalysisType:      analysisType,
		DepthLevel:        input.DepthLevel,
		TimeBudgetSeconds: s.timeBudget(input.TimeBudgetSeconds),
		PrioritizeSpeed:   input.PrioritizeSpeed,
		CorrelationID:     correlationID,
	})
}

func (s *Server) traceExecutionPath(ctx context.Context, input TraceExecutionPathInput) (ExternalResult, *ToolError) {
	correlationID := correlate(input.CorrelationID)

	if terr := validateLocation("entry_point", input.EntryPoint); terr != nil {
		terr.CorrelationID = correlationID
		return ExternalResult{}, terr
	}

	depth := input.MaxDepth
	if depth == 0 {
		depth = 3
	}
	if depth < minDepthLevel {
		depth = minDepthLevel
	}
	if depth > maxDepthLevel {
		depth = maxDepthLevel
	}

	stuck := []string{"trace the execution path from the entry point"}
	if input.IncludeDataFlow {
		stuck = append(stuck, "track data flow along the path")
	}

	return s.analyze(ctx, &models.AnalysisRequest{
		Context: models.AnalysisContext{
			StuckPoints: stuck,
			FocusArea: models.FocusArea{
				Files:       []string{input.EntryPoint.File},
				EntryPoints: []models.Location{locationIn(input.EntryPoint)},
			},
		},
		AnalysisType:      models.AnalysisTypeExecutionTrace,
		DepthLevel:        depth,
		TimeBudgetSeconds: s.timeBudget(0),
		CorrelationID:     correlationID,
	})
}

func (s *Server) hypothesisTest(ctx context.Context, input HypothesisTestInput) (ExternalResult, *ToolError) {
	correlationID := correlate(input.CorrelationID)

	if input.Hypothesis == "" {
		terr := invalidInput("hypothesis: required")
		terr.CorrelationID = correlationID
		return ExternalResult{}, terr
	}
	if terr := validateNotes("hypothesis", []string{input.Hypothesis}); terr != nil {
		terr.CorrelationID = correlationID
		return ExternalResult{}, terr
	}
	if terr := validateScope("code_scope", input.CodeScope); terr != nil {
		terr.CorrelationID = correlationID
		return ExternalResult{}, terr
	}

	analysisCtx := models.AnalysisContext{
		StuckPoints: []string{input.Hypothesis},
		FocusArea:   scopeIn(input.CodeScope),
	}
	if input.TestApproach != "" {
		analysisCtx.AttemptedApproaches = []string{input.TestApproach}
	}

	return s.analyze(ctx, &models.AnalysisRequest{
		Context:           analysisCtx,
		AnalysisType:      models.AnalysisTypeHypothesisTest,
		DepthLevel:        3,
		TimeBudgetSeconds: s.timeBudget(0),
		CorrelationID:     correlationID,
	})
}

func (s *Server) crossSystemImpact(ctx context.Context, input CrossSystemImpactInput) (ExternalResult, *ToolError) {
	correlationID := correlate(input.CorrelationID)

	if terr := validateScope("change_scope", input.ChangeScope); terr != nil {
		terr.CorrelationID = correlationID
		return ExternalResult{}, terr
	}
	if len(input.ChangeScope.Files) == 0 {
		terr := invalidInput("change_scope.files: at least one file required")
		terr.CorrelationID = correlationID
		return ExternalResult{}, terr
	}

	stuck := []string{"determine the impact of changing these files across services"}
	for _, it := range input.ImpactTypes {
		stuck = append(stuck, "assess "+it+" impact")
	}
	if terr := validateNotes("impact_types", stuck); terr != nil {
		terr.CorrelationID = correlationID
		return ExternalResult{}, terr
	}

	return s.analyze(ctx, &models.AnalysisRequest{
		Context: models.AnalysisContext{
			StuckPoints: stuck,
			FocusArea:   scopeIn(input.ChangeScope),
		},
		AnalysisType:      models.AnalysisTypeCrossSystem,
		DepthLevel:        3,
		TimeBudgetSeconds: s.timeBudget(0),
		CorrelationID:     correlationID,
	})
}

func (s *Server) performanceBottleneck(ctx context.Context, input PerformanceBottleneckInput) (ExternalResult, *ToolError) {
	correlationID := correlate(input.CorrelationID)

	if terr := validateLocation("code_path.entry_point", input.CodePath.EntryPoint); terr != nil {
		terr.CorrelationID = correlationID
		return ExternalResult{}, terr
	}
	if terr := validateNotes("code_path.suspected_issues", input.CodePath.SuspectedIssues); terr != nil {
		terr.CorrelationID = correlationID
		return ExternalResult{}, terr
	}

	depth := input.ProfileDepth
	if depth == 0 {
		depth = 3
	}
	if terr := validateDepthLevel(depth); terr != nil {
		terr.CorrelationID = correlationID
		return ExternalResult{}, terr
	}

	stuck := append([]string{"find the performance bottleneck along this path"},
		input.CodePath.SuspectedIssues...)

	return s.analyze(ctx, &models.AnalysisRequest{
		Context: models.AnalysisContext{
			StuckPoints: stuck,
			FocusArea: models.FocusArea{
				Files:       []string{input.CodePath.EntryPoint.File},
				EntryPoints: []models.Location{locationIn(input.CodePath.EntryPoint)},
			},
		},
		AnalysisType:      models.AnalysisTypePerformance,
		DepthLevel:        depth,
		TimeBudgetSeconds: s.timeBudget(0),
		CorrelationID:     correlationID,
	})
}
