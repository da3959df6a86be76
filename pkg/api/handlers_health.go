package api

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/quarrylabs/quarry/pkg/health"
)

// HealthCheckInput is the wire input of health_check.
type HealthCheckInput struct {
	CheckName     string `json:"check_name,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// HealthCheckOutput is the wire output of health_check.
type HealthCheckOutput struct {
	State         string                 `json:"state"`
	Checks        []ExternalHealthResult `json:"checks"`
	CorrelationID string                 `json:"correlation_id"`
}

// HealthSummaryInput is the wire input of health_summary.
type HealthSummaryInput struct {
	IncludeDetails bool   `json:"include_details,omitempty"`
	CorrelationID  string `json:"correlation_id,omitempty"`
}

// HealthSummaryOutput is the wire output of health_summary.
type HealthSummaryOutput struct {
	State         string                 `json:"state"`
	CheckNames    []string               `json:"check_names"`
	Checks        []ExternalHealthResult `json:"checks,omitempty"`
	CorrelationID string                 `json:"correlation_id"`
}

// ExternalHealthResult is the wire form of one check outcome.
type ExternalHealthResult struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	State      string         `json:"state"`
	Error      string         `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

func healthResultOut(r *health.Result) ExternalHealthResult {
	return ExternalHealthResult{
		Name:       r.Name,
		Type:       string(r.Type),
		State:      string(r.State),
		Error:      r.Error,
		Metadata:   r.Metadata,
		DurationMs: r.DurationMs,
	}
}

func (s *Server) registerHealthTools(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "health_check",
		Description: "Run all registered health checks, or one named check, and report the rollup.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input HealthCheckInput) (*mcp.CallToolResult, *HealthCheckOutput, error) {
		return handle(s, "health_check", func() (HealthCheckOutput, *ToolError) {
			return s.healthCheck(ctx, input)
		})
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "health_summary",
		Description: "Report the last known health state without running any checks.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input HealthSummaryInput) (*mcp.CallToolResult, *HealthSummaryOutput, error) {
		return handle(s, "health_summary", func() (HealthSummaryOutput, *ToolError) {
			return s.healthSummary(input)
		})
	})
}

func (s *Server) healthCheck(ctx context.Context, input HealthCheckInput) (HealthCheckOutput, *ToolError) {
	correlationID := correlate(input.CorrelationID)

	if input.CheckName != "" {
		result, err := s.monitor.Execute(ctx, input.CheckName)
		if err != nil {
			terr := &ToolError{
				Kind:          KindNotFound,
				Message:       err.Error(),
				CorrelationID: correlationID,
				Err:           err,
			}
			return HealthCheckOutput{}, terr
		}
		return HealthCheckOutput{
			State:         string(result.State),
			Checks:        []ExternalHealthResult{healthResultOut(result)},
			CorrelationID: correlationID,
		}, nil
	}

	summary := s.monitor.ExecuteAll(ctx)
	out := HealthCheckOutput{
		State:         string(summary.State),
		CorrelationID: correlationID,
	}
	for _, name := range s.monitor.CheckNames() {
		if r, ok := summary.Results[name]; ok {
			out.Checks = append(out.Checks, healthResultOut(r))
		}
	}
	return out, nil
}

func (s *Server) healthSummary(input HealthSummaryInput) (HealthSummaryOutput, *ToolError) {
	correlationID := correlate(input.CorrelationID)

	out := HealthSummaryOutput{
		State:         string(s.monitor.Aggregate()),
		CheckNames:    s.monitor.CheckNames(),
		CorrelationID: correlationID,
	}
	if input.IncludeDetails {
		statuses := s.monitor.Statuses()
		for _, name := range out.CheckNames {
			if r, ok := statuses[name]; ok {
				out.Checks = append(out.Checks, healthResultOut(r))
			}
		}
	}
	return out, nil
}
