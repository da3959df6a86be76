package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/quarrylabs/quarry/pkg/models"
)

// synthesizeSummary folds a finished session into a summary in the requested
// format. Synthesis is local and deterministic: it works from the recorded
// turns and progress without another provider call.
func synthesizeSummary(sess *models.Session, format models.SummaryFormat, now time.Time) *models.ConversationSummary {
	summary := &models.ConversationSummary{
		SessionID:       sess.ID,
		Format:          format,
		KeyFindings:     append([]string(nil), sess.Progress.KeyFindings...),
		Recommendations: recommendations(sess),
		TurnCount:       len(sess.Turns),
		DurationMs:      now.UnixMilli() - sess.StartTimeMs,
		Confidence:      sess.Progress.ConfidenceLevel,
	}

	switch format {
	case models.SummaryFormatConcise:
		summary.Summary = conciseText(sess)
	case models.SummaryFormatActionable:
		summary.Summary = actionableText(sess, summary.Recommendations)
	default:
		summary.Summary = detailedText(sess)
	}
	return summary
}

// detailedText renders the full narrative: scope, findings, and a per-turn
// digest of the model's contributions.
func detailedText(sess *models.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s session over %d turns.\n\n", sess.AnalysisType, len(sess.Turns))

	if files := sess.Context.FocusArea.Files; len(files) > 0 {
		fmt.Fprintf(&b, "Scope: %s\n\n", strings.Join(files, ", "))
	}
	if len(sess.Progress.KeyFindings) > 0 {
		b.WriteString("Key findings:\n")
		for _, f := range sess.Progress.KeyFindings {
			fmt.Fprintf(&b, "- %s\n", f)
		}
		b.WriteString("\n")
	}
	if len(sess.Progress.PendingQuestions) > 0 {
		b.WriteString("Still open:\n")
		for _, q := range sess.Progress.PendingQuestions {
			fmt.Fprintf(&b, "- %s\n", q)
		}
		b.WriteString("\n")
	}

	b.WriteString("Conversation digest:\n")
	for i, turn := range sess.Turns {
		if turn.Role != models.TurnRoleModel {
			continue
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, firstLine(turn.ContentText))
	}
	return strings.TrimRight(b.String(), "\n")
}

// conciseText renders a short paragraph: outcome plus the top findings.
func conciseText(sess *models.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s session, %d turns, confidence %.0f%%.",
		sess.AnalysisType, len(sess.Turns), sess.Progress.ConfidenceLevel*100)

	findings := sess.Progress.KeyFindings
	if len(findings) > 3 {
		findings = findings[:3]
	}
	if len(findings) > 0 {
		b.WriteString(" Findings: ")
		b.WriteString(strings.Join(findings, "; "))
		b.WriteString(".")
	}
	return b.String()
}

// actionableText leads with what to do next.
func actionableText(sess *models.Session, recs []string) string {
	var b strings.Builder
	b.WriteString("Next actions:\n")
	if len(recs) == 0 {
		b.WriteString("- no concrete actions identified; review the key findings\n")
	}
	for _, r := range recs {
		fmt.Fprintf(&b, "- %s\n", r)
	}
	if len(sess.Progress.KeyFindings) > 0 {
		fmt.Fprintf(&b, "\nBased on: %s", strings.Join(sess.Progress.KeyFindings, "; "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// recommendations lifts "- " bullets that follow a recommendation heading in
// any model turn, deduplicated in first-seen order.
func recommendations(sess *models.Session) []string {
	seen := make(map[string]bool)
	var recs []string
	for _, turn := range sess.Turns {
		if turn.Role != models.TurnRoleModel {
			continue
		}
		inSection := false
		for _, line := range strings.Split(turn.ContentText, "\n") {
			trimmed := strings.TrimSpace(line)
			switch {
			case strings.Contains(strings.ToLower(trimmed), "recommendation"):
				inSection = true
			case inSection && strings.HasPrefix(trimmed, "- "):
				rec := strings.TrimPrefix(trimmed, "- ")
				if !seen[rec] {
					seen[rec] = true
					recs = append(recs, rec)
				}
			case inSection && trimmed != "":
				inSection = false
			}
		}
	}
	return recs
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 160 {
		s = s[:157] + "..."
	}
	return s
}
