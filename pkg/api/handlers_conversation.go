package api

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/quarrylabs/quarry/pkg/models"
)

// StartConversationInput is the wire input of start_conversation.
type StartConversationInput struct {
	AnalysisContext ExternalContext `json:"analysis_context"`
	AnalysisType    string          `json:"analysis_type"`
	InitialQuestion string          `json:"initial_question,omitempty"`
	CorrelationID   string          `json:"correlation_id,omitempty"`
}

// StartConversationOutput is the wire output of start_conversation.
type StartConversationOutput struct {
	SessionID     string        `json:"session_id"`
	State         string        `json:"state"`
	InitialReply  *ExternalTurn `json:"initial_reply,omitempty"`
	CorrelationID string        `json:"correlation_id"`
}

// ContinueConversationInput is the wire input of continue_conversation.
type ContinueConversationInput struct {
	SessionID           string `json:"session_id"`
	Message             string `json:"message"`
	IncludeCodeSnippets bool   `json:"include_code_snippets,omitempty"`
	CorrelationID       string `json:"correlation_id,omitempty"`
}

// ContinueConversationOutput is the wire output of continue_conversation.
type ContinueConversationOutput struct {
	SessionID     string       `json:"session_id"`
	Reply         ExternalTurn `json:"reply"`
	TurnCount     int          `json:"turn_count"`
	State         string       `json:"state"`
	Confidence    float64      `json:"confidence"`
	DurationMs    int64        `json:"duration_ms"`
	CorrelationID string       `json:"correlation_id"`
}

// FinalizeConversationInput is the wire input of finalize_conversation.
type FinalizeConversationInput struct {
	SessionID     string `json:"session_id"`
	SummaryFormat string `json:"summary_format,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// FinalizeConversationOutput is the wire output of finalize_conversation.
type FinalizeConversationOutput struct {
	SessionID       string   `json:"session_id"`
	Format          string   `json:"format"`
	Summary         string   `json:"summary"`
	KeyFindings     []string `json:"key_findings,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
	TurnCount       int      `json:"turn_count"`
	DurationMs      int64    `json:"duration_ms"`
	Confidence      float64  `json:"confidence"`
	CorrelationID   string   `json:"correlation_id"`
}

// ConversationStatusInput is the wire input of get_conversation_status.
type ConversationStatusInput struct {
	SessionID     string `json:"session_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// ConversationStatusOutput is the wire output of get_conversation_status.
type ConversationStatusOutput struct {
	SessionID      string  `json:"session_id"`
	State          string  `json:"state"`
	AnalysisType   string  `json:"analysis_type"`
	TurnCount      int     `json:"turn_count"`
	Confidence     float64 `json:"confidence"`
	StartTimeMs    int64   `json:"start_time_ms"`
	LastActivityMs int64   `json:"last_activity_ms"`
	IdleSeconds    int64   `json:"idle_seconds"`
	CorrelationID  string  `json:"correlation_id"`
}

// ExternalTurn is the wire form of a conversation turn.
type ExternalTurn struct {
	ID          string `json:"id"`
	Role        string `json:"role"`
	Content     string `json:"content"`
	TimestampMs int64  `json:"timestamp_ms"`
}

func turnOut(t models.ConversationTurn) ExternalTurn {
	return ExternalTurn{
		ID:          t.ID,
		Role:        string(t.Role),
		Content:     t.ContentText,
		TimestampMs: t.TimestampMs,
	}
}

func (s *Server) registerConversationTools(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "start_conversation",
		Description: "Open a multi-turn analysis conversation, optionally running the first exchange.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input StartConversationInput) (*mcp.CallToolResult, *StartConversationOutput, error) {
		return handle(s, "start_conversation", func() (StartConversationOutput, *ToolError) {
			return s.startConversation(ctx, input)
		})
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "continue_conversation",
		Description: "Send the next message in an open conversation and receive the model's reply.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input ContinueConversationInput) (*mcp.CallToolResult, *ContinueConversationOutput, error) {
		return handle(s, "continue_conversation", func() (ContinueConversationOutput, *ToolError) {
			return s.continueConversation(ctx, input)
		})
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "finalize_conversation",
		Description: "Close a conversation and synthesize its summary. The session id becomes invalid afterwards.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input FinalizeConversationInput) (*mcp.CallToolResult, *FinalizeConversationOutput, error) {
		return handle(s, "finalize_conversation", func() (FinalizeConversationOutput, *ToolError) {
			return s.finalizeConversation(ctx, input)
		})
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_conversation_status",
		Description: "Inspect the state, turn count and confidence of a conversation without advancing it.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, input ConversationStatusInput) (*mcp.CallToolResult, *ConversationStatusOutput, error) {
		return handle(s, "get_conversation_status", func() (ConversationStatusOutput, *ToolError) {
			return s.conversationStatus(input)
		})
	})
}

func (s *Server) startConversation(ctx context.Context, input StartConversationInput) (StartConversationOutput, *ToolError) {
	correlationID := correlate(input.CorrelationID)

	if terr := validateContext(input.AnalysisContext); terr != nil {
		terr.CorrelationID = correlationID
		return StartConversationOutput{}, terr
	}
	analysisType, terr := validateAnalysisType(input.AnalysisType)
	if terr != nil {
		terr.CorrelationID = correlationID
		return StartConversationOutput{}, terr
	}
	if input.InitialQuestion != "" {
		if terr := validateNotes("initial_question", []string{input.InitialQuestion}); terr != nil {
			terr.CorrelationID = correlationID
			return StartConversationOutput{}, terr
		}
	}

	analysisCtx, terr := contextIn(input.AnalysisContext)
	if terr != nil {
		terr.CorrelationID = correlationID
		return StartConversationOutput{}, terr
	}

	sessionID := s.scheduler.Create(analysisType, analysisCtx)
	out := StartConversationOutput{
		SessionID:     sessionID,
		State:         string(models.SessionStateActive),
		CorrelationID: correlationID,
	}

	if input.InitialQuestion != "" {
		result, err := s.scheduler.Continue(ctx, sessionID, input.InitialQuestion)
		if err != nil {
			return StartConversationOutput{}, foldError(err, correlationID)
		}
		reply := turnOut(result.Turn)
		out.InitialReply = &reply
		out.State = string(result.State)
	}
	return out, nil
}

func (s *Server) continueConversation(ctx context.Context, input ContinueConversationInput) (ContinueConversationOutput, *ToolError) {
	correlationID := correlate(input.CorrelationID)

	if input.SessionID == "" {
		terr := invalidInput("session_id: required")
		terr.CorrelationID = correlationID
		return ContinueConversationOutput{}, terr
	}
	if input.Message == "" {
		terr := invalidInput("message: required")
		terr.CorrelationID = correlationID
		return ContinueConversationOutput{}, terr
	}
	if terr := validateNotes("message", []string{input.Message}); terr != nil {
		terr.CorrelationID = correlationID
		return ContinueConversationOutput{}, terr
	}

	message := input.Message
	if input.IncludeCodeSnippets {
		message += "\n\nInclude relevant code snippets in your reply."
	}

	result, err := s.scheduler.Continue(ctx, input.SessionID, message)
	if err != nil {
		return ContinueConversationOutput{}, foldError(err, correlationID)
	}
	return ContinueConversationOutput{
		SessionID:     result.SessionID,
		Reply:         turnOut(result.Turn),
		TurnCount:     result.TurnCount,
		State:         string(result.State),
		Confidence:    result.Progress.ConfidenceLevel,
		DurationMs:    result.DurationMs,
		CorrelationID: correlationID,
	}, nil
}

func (s *Server) finalizeConversation(ctx context.Context, input FinalizeConversationInput) (FinalizeConversationOutput, *ToolError) {
	correlationID := correlate(input.CorrelationID)

	if input.SessionID == "" {
		terr := invalidInput("session_id: required")
		terr.CorrelationID = correlationID
		return FinalizeConversationOutput{}, terr
	}
	format := models.SummaryFormat(input.SummaryFormat)
	if input.SummaryFormat == "" {
		format = models.SummaryFormatDetailed
	}
	if !format.IsValid() {
		terr := invalidInput("summary_format: unknown format %q", input.SummaryFormat)
		terr.CorrelationID = correlationID
		return FinalizeConversationOutput{}, terr
	}

	summary, err := s.scheduler.Finalize(ctx, input.SessionID, format)
	if err != nil {
		return FinalizeConversationOutput{}, foldError(err, correlationID)
	}
	return FinalizeConversationOutput{
		SessionID:       summary.SessionID,
		Format:          string(summary.Format),
		Summary:         summary.Summary,
		KeyFindings:     summary.KeyFindings,
		Recommendations: summary.Recommendations,
		TurnCount:       summary.TurnCount,
		DurationMs:      summary.DurationMs,
		Confidence:      summary.Confidence,
		CorrelationID:   correlationID,
	}, nil
}

func (s *Server) conversationStatus(input ConversationStatusInput) (ConversationStatusOutput, *ToolError) {
	correlationID := correlate(input.CorrelationID)

	if input.SessionID == "" {
		terr := invalidInput("session_id: required")
		terr.CorrelationID = correlationID
		return ConversationStatusOutput{}, terr
	}

	sess, err := s.scheduler.Get(input.SessionID)
	if err != nil {
		return ConversationStatusOutput{}, foldError(err, correlationID)
	}

	now := time.Now()
	idle := sess.IdleFor(now)
	state := sess.State
	// A session idle past the timeout reads as abandoned even before the
	// sweep removes it; status never mutates the record.
	if state == models.SessionStateActive && idle > s.cfg.Session.IdleTimeout {
		state = models.SessionStateAbandoned
	}

	return ConversationStatusOutput{
		SessionID:      sess.ID,
		State:          string(state),
		AnalysisType:   string(sess.AnalysisType),
		TurnCount:      len(sess.Turns),
		Confidence:     sess.Progress.ConfidenceLevel,
		StartTimeMs:    sess.StartTimeMs,
		LastActivityMs: sess.LastActivityMs,
		IdleSeconds:    int64(idle / time.Second),
		CorrelationID:  correlationID,
	}, nil
}
