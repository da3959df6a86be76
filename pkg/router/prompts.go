package router

import (
	"fmt"
	"strings"

	"github.com/quarrylabs/quarry/pkg/models"
)

const analysisSystemPrompt = `You are a senior engineer performing code reasoning for a stuck colleague.
Ground every claim in the supplied context. Structure your reply with a
"Findings" section and a "Recommendations" section using "- " bullets.`

// buildPrompt renders the provider prompt for a request. maxFiles <= 0
// includes the full focus area.
func buildPrompt(req *models.AnalysisRequest, maxFiles int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Analysis type: %s (depth %d)\n\n", req.AnalysisType, req.DepthLevel)

	files := req.Context.FocusArea.Files
	if maxFiles > 0 && len(files) > maxFiles {
		files = files[:maxFiles]
	}
	if len(files) > 0 {
		b.WriteString("Files in scope:\n")
		for _, f := range files {
			fmt.Fprintf(&b, "- %s\n", f)
		}
		b.WriteString("\n")
	}
	if len(req.Context.FocusArea.EntryPoints) > 0 {
		b.WriteString("Entry points:\n")
		for _, ep := range req.Context.FocusArea.EntryPoints {
			fmt.Fprintf(&b, "- %s:%d %s\n", ep.File, ep.Line, ep.FunctionName)
		}
		b.WriteString("\n")
	}
	if len(req.Context.AttemptedApproaches) > 0 {
		b.WriteString("Already attempted:\n")
		for _, a := range req.Context.AttemptedApproaches {
			fmt.Fprintf(&b, "- %s\n", a)
		}
		b.WriteString("\n")
	}
	if len(req.Context.PartialFindings) > 0 {
		b.WriteString("Partial findings so far:\n")
		for _, f := range req.Context.PartialFindings {
			fmt.Fprintf(&b, "- [%s] %s (%s:%d)\n",
				f.Severity, f.Description, f.Location.File, f.Location.Line)
		}
		b.WriteString("\n")
	}
	if len(req.Context.StuckPoints) > 0 {
		b.WriteString("Where the caller is stuck:\n")
		for _, s := range req.Context.StuckPoints {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	return b.String()
}

// parseReply folds a free-text provider reply into a result. The full reply
// becomes the reasoning; bullets under a "Recommendations" heading are
// lifted out.
func parseReply(reply, strategy string, confidence float64) *models.AnalysisResult {
	return &models.AnalysisResult{
		Status:          models.ResultStatusSuccess,
		Reasoning:       reply,
		Recommendations: extractRecommendations(reply),
		Metadata: models.ResultMetadata{
			Strategy:   strategy,
			Confidence: confidence,
		},
	}
}

// extractRecommendations collects "- " bullets that follow a line containing
// a "recommendations" heading.
func extractRecommendations(reply string) []string {
	var recs []string
	inSection := false
	for _, line := range strings.Split(reply, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.Contains(strings.ToLower(trimmed), "recommendation"):
			inSection = true
		case inSection && strings.HasPrefix(trimmed, "- "):
			recs = append(recs, strings.TrimPrefix(trimmed, "- "))
		case inSection && trimmed == "":
			// blank lines inside the section are fine
		case inSection:
			inSection = false
		}
	}
	return recs
}
