// Package api exposes the tool surface: a fixed catalog of twelve tools
// served over MCP stdio, with snake_case wire shapes translated onto the
// internal camelCase model, schema validation, correlation ids, and the
// boundary error taxonomy.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/quarrylabs/quarry/pkg/config"
	"github.com/quarrylabs/quarry/pkg/health"
	"github.com/quarrylabs/quarry/pkg/metrics"
	"github.com/quarrylabs/quarry/pkg/models"
	"github.com/quarrylabs/quarry/pkg/router"
	"github.com/quarrylabs/quarry/pkg/session"
	"github.com/quarrylabs/quarry/pkg/tournament"
	"github.com/quarrylabs/quarry/pkg/version"
)

// Server wires the tool catalog to the components behind it.
type Server struct {
	cfg       *config.Config
	router    *router.Router
	scheduler *session.Scheduler
	engine    *tournament.Engine
	monitor   *health.Monitor
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewServer creates the tool dispatcher. metrics may be nil.
func NewServer(cfg *config.Config, r *router.Router, s *session.Scheduler, e *tournament.Engine, m *health.Monitor, met *metrics.Metrics) *Server {
	return &Server{
		cfg:       cfg,
		router:    r,
		scheduler: s,
		engine:    e,
		monitor:   m,
		metrics:   met,
		logger:    slog.Default().With("component", "api"),
	}
}

// Build constructs the MCP server with all twelve tools registered.
func (s *Server) Build() *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    version.AppName,
		Version: version.Release,
	}, nil)
	s.registerAnalysisTools(server)
	s.registerConversationTools(server)
	s.registerTournamentTool(server)
	s.registerHealthTools(server)
	return server
}

// Run serves the tool catalog over stdio until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	server := s.Build()
	s.logger.Info("Tool server starting", "transport", "stdio", "version", version.Full())
	return server.Run(ctx, &mcp.StdioTransport{})
}

// instrument records one tool call's outcome and latency.
func (s *Server) instrument(tool string, start time.Time, terr *ToolError) {
	outcome := "ok"
	if terr != nil {
		outcome = string(terr.Kind)
	}
	elapsed := time.Since(start)
	if s.metrics != nil {
		s.metrics.ObserveToolCall(tool, outcome, elapsed)
	}
	if terr != nil {
		s.logger.Warn("Tool call failed",
			"tool", tool,
			"kind", terr.Kind,
			"correlation_id", terr.CorrelationID,
			"error", terr.Message)
	} else {
		s.logger.Debug("Tool call completed", "tool", tool, "duration", elapsed.String())
	}
}

// correlate returns the caller's correlation id or assigns a fresh one.
func correlate(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// fail renders a ToolError as the structured error payload of the call.
func fail(terr *ToolError) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(terr.body())
	if err != nil {
		return nil, terr
	}
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: string(raw)}},
	}, nil
}

// timeBudget resolves the effective time budget for a request.
func (s *Server) timeBudget(requested int) int {
	if requested > 0 {
		return requested
	}
	return int(s.cfg.Server.DefaultTimeBudget / time.Second)
}

// analyze validates nothing itself; callers pass an already validated
// request. It routes through the Router and folds the outcome.
func (s *Server) analyze(ctx context.Context, req *models.AnalysisRequest) (ExternalResult, *ToolError) {
	result, err := s.router.Analyze(ctx, req)
	if err != nil {
		return ExternalResult{}, foldError(err, req.CorrelationID)
	}
	return resultOut(result, req.CorrelationID), nil
}
