package models

import "time"

// Location points at a position in the analyzed codebase.
type Location struct {
	File         string `json:"file"`
	Line         int    `json:"line"`
	FunctionName string `json:"function_name,omitempty"`
}

// Finding is a single observation contributed by the caller or a strategy.
type Finding struct {
	Type        string   `json:"type"`
	Severity    Severity `json:"severity"`
	Location    Location `json:"location"`
	Description string   `json:"description"`
	Evidence    []string `json:"evidence,omitempty"`
}

// FocusArea scopes an analysis to specific files and entry points.
type FocusArea struct {
	Files          []string   `json:"files"`
	EntryPoints    []Location `json:"entry_points,omitempty"`
	ServiceNames   []string   `json:"service_names,omitempty"`
	SearchPatterns []string   `json:"search_patterns,omitempty"`
}

// AnalysisContext is the normalized request payload handed to strategies.
// Field names are camelCase internally; the tool boundary owns the
// snake_case translation.
type AnalysisContext struct {
	AttemptedApproaches     []string  `json:"attemptedApproaches"`
	PartialFindings         []Finding `json:"partialFindings"`
	StuckPoints             []string  `json:"stuckPoints"`
	FocusArea               FocusArea `json:"focusArea"`
	AnalysisBudgetRemaining float64   `json:"analysisBudgetRemaining"`
}

// AnalysisRequest is a fully validated, routable analysis request.
type AnalysisRequest struct {
	Context           AnalysisContext `json:"context"`
	AnalysisType      AnalysisType    `json:"analysisType"`
	DepthLevel        int             `json:"depthLevel"`
	TimeBudgetSeconds int             `json:"timeBudgetSeconds"`
	PrioritizeSpeed   bool            `json:"prioritizeSpeed"`
	CorrelationID     string          `json:"correlationId"`
}

// FileCount returns the number of files in the request's focus area.
func (r *AnalysisRequest) FileCount() int {
	return len(r.Context.FocusArea.Files)
}

// TimeBudget returns the effective time budget as a duration.
func (r *AnalysisRequest) TimeBudget() time.Duration {
	return time.Duration(r.TimeBudgetSeconds) * time.Second
}

// AnalysisFindings groups the findings of a completed analysis by kind.
type AnalysisFindings struct {
	RootCauses             []Finding `json:"rootCauses"`
	ExecutionPaths         []string  `json:"executionPaths"`
	PerformanceBottlenecks []Finding `json:"performanceBottlenecks"`
	CrossSystemImpacts     []Finding `json:"crossSystemImpacts"`
}

// ResultMetadata carries execution metadata alongside analysis findings.
type ResultMetadata struct {
	Strategy   string  `json:"strategy"`
	DurationMs int64   `json:"durationMs"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// AnalysisResult is the outcome of running one strategy on one request.
type AnalysisResult struct {
	Status          ResultStatus     `json:"status"`
	Findings        AnalysisFindings `json:"findings"`
	Recommendations []string         `json:"recommendations"`
	Reasoning       string           `json:"reasoning"`
	Metadata        ResultMetadata   `json:"metadata"`
}

// ResourceEstimate is a strategy's forecast for handling a request.
type ResourceEstimate struct {
	TimeMs     int64   `json:"timeMs"`
	Bytes      int64   `json:"bytes"`
	Confidence float64 `json:"confidence"`
}
