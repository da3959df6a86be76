package api

import (
	"github.com/quarrylabs/quarry/pkg/models"
)

// External wire shapes. The tool surface is authoritative snake_case; the
// internal model is camelCase. Translation between the two is deterministic
// and, for any valid payload, an involution.

// ExternalLocation mirrors models.Location.
type ExternalLocation struct {
	File         string `json:"file"`
	Line         int    `json:"line"`
	FunctionName string `json:"function_name,omitempty"`
}

// ExternalFinding mirrors models.Finding.
type ExternalFinding struct {
	Type        string           `json:"type"`
	Severity    string           `json:"severity"`
	Location    ExternalLocation `json:"location"`
	Description string           `json:"description"`
	Evidence    []string         `json:"evidence,omitempty"`
}

// ExternalScope is the wire form of a focus area (code_scope).
type ExternalScope struct {
	Files          []string           `json:"files,omitempty"`
	EntryPoints    []ExternalLocation `json:"entry_points,omitempty"`
	ServiceNames   []string           `json:"service_names,omitempty"`
	SearchPatterns []string           `json:"search_patterns,omitempty"`
}

// ExternalContext is the wire form of an analysis context. StuckDescription
// accepts either a single string or an array of strings; a single string is
// promoted to a one-element sequence internally, and a one-element sequence
// maps back to a single string.
type ExternalContext struct {
	AttemptedApproaches     []string          `json:"attempted_approaches,omitempty"`
	PartialFindings         []ExternalFinding `json:"partial_findings,omitempty"`
	StuckDescription        any               `json:"stuck_description,omitempty"`
	CodeScope               ExternalScope     `json:"code_scope"`
	AnalysisBudgetRemaining float64           `json:"analysis_budget_remaining,omitempty"`
}

// stuckPointsIn normalizes stuck_description into the internal sequence.
func stuckPointsIn(v any) ([]string, *ToolError) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{x}, nil
	case []string:
		return x, nil
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, invalidInput("stuck_description entries must be strings")
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, invalidInput("stuck_description must be a string or array of strings")
	}
}

// stuckPointsOut is the inverse of stuckPointsIn: one point maps back to a
// single string.
func stuckPointsOut(points []string) any {
	switch len(points) {
	case 0:
		return nil
	case 1:
		return points[0]
	default:
		return points
	}
}

func locationIn(l ExternalLocation) models.Location {
	return models.Location{File: l.File, Line: l.Line, FunctionName: l.FunctionName}
}

func locationOut(l models.Location) ExternalLocation {
	return ExternalLocation{File: l.File, Line: l.Line, FunctionName: l.FunctionName}
}

func findingIn(f ExternalFinding) models.Finding {
	return models.Finding{
		Type:        f.Type,
		Severity:    models.Severity(f.Severity),
		Location:    locationIn(f.Location),
		Description: f.Description,
		Evidence:    f.Evidence,
	}
}

func findingOut(f models.Finding) ExternalFinding {
	return ExternalFinding{
		Type:        f.Type,
		Severity:    string(f.Severity),
		Location:    locationOut(f.Location),
		Description: f.Description,
		Evidence:    f.Evidence,
	}
}

func scopeIn(s ExternalScope) models.FocusArea {
	area := models.FocusArea{
		Files:          s.Files,
		ServiceNames:   s.ServiceNames,
		SearchPatterns: s.SearchPatterns,
	}
	for _, ep := range s.EntryPoints {
		area.EntryPoints = append(area.EntryPoints, locationIn(ep))
	}
	return area
}

func scopeOut(a models.FocusArea) ExternalScope {
	scope := ExternalScope{
		Files:          a.Files,
		ServiceNames:   a.ServiceNames,
		SearchPatterns: a.SearchPatterns,
	}
	for _, ep := range a.EntryPoints {
		scope.EntryPoints = append(scope.EntryPoints, locationOut(ep))
	}
	return scope
}

// contextIn translates and normalizes an external context.
func contextIn(ext ExternalContext) (models.AnalysisContext, *ToolError) {
	stuck, terr := stuckPointsIn(ext.StuckDescription)
	if terr != nil {
		return models.AnalysisContext{}, terr
	}
	ctx := models.AnalysisContext{
		AttemptedApproaches:     ext.AttemptedApproaches,
		StuckPoints:             stuck,
		FocusArea:               scopeIn(ext.CodeScope),
		AnalysisBudgetRemaining: ext.AnalysisBudgetRemaining,
	}
	for _, f := range ext.PartialFindings {
		ctx.PartialFindings = append(ctx.PartialFindings, findingIn(f))
	}
	return ctx, nil
}

// contextOut is the inverse of contextIn.
func contextOut(ctx models.AnalysisContext) ExternalContext {
	ext := ExternalContext{
		AttemptedApproaches:     ctx.AttemptedApproaches,
		StuckDescription:        stuckPointsOut(ctx.StuckPoints),
		CodeScope:               scopeOut(ctx.FocusArea),
		AnalysisBudgetRemaining: ctx.AnalysisBudgetRemaining,
	}
	for _, f := range ctx.PartialFindings {
		ext.PartialFindings = append(ext.PartialFindings, findingOut(f))
	}
	return ext
}

// ExternalResult is the wire form of an analysis result.
type ExternalResult struct {
	Status          string                 `json:"status"`
	Findings        ExternalResultFindings `json:"findings"`
	Recommendations []string               `json:"recommendations,omitempty"`
	Reasoning       string                 `json:"reasoning,omitempty"`
	Metadata        ExternalResultMetadata `json:"metadata"`
	CorrelationID   string                 `json:"correlation_id"`
}

type ExternalResultFindings struct {
	RootCauses             []ExternalFinding `json:"root_causes,omitempty"`
	ExecutionPaths         []string          `json:"execution_paths,omitempty"`
	PerformanceBottlenecks []ExternalFinding `json:"performance_bottlenecks,omitempty"`
	CrossSystemImpacts     []ExternalFinding `json:"cross_system_impacts,omitempty"`
}

type ExternalResultMetadata struct {
	Strategy   string  `json:"strategy"`
	DurationMs int64   `json:"duration_ms"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

func resultOut(r *models.AnalysisResult, correlationID string) ExternalResult {
	out := ExternalResult{
		Status:          string(r.Status),
		Recommendations: r.Recommendations,
		Reasoning:       r.Reasoning,
		Metadata: ExternalResultMetadata{
			Strategy:   r.Metadata.Strategy,
			DurationMs: r.Metadata.DurationMs,
			Confidence: r.Metadata.Confidence,
			Reason:     r.Metadata.Reason,
		},
		CorrelationID: correlationID,
	}
	out.Findings.ExecutionPaths = r.Findings.ExecutionPaths
	for _, f := range r.Findings.RootCauses {
		out.Findings.RootCauses = append(out.Findings.RootCauses, findingOut(f))
	}
	for _, f := range r.Findings.PerformanceBottlenecks {
		out.Findings.PerformanceBottlenecks = append(out.Findings.PerformanceBottlenecks, findingOut(f))
	}
	for _, f := range r.Findings.CrossSystemImpacts {
		out.Findings.CrossSystemImpacts = append(out.Findings.CrossSystemImpacts, findingOut(f))
	}
	return out
}
