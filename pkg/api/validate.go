package api

import (
	"regexp"
	"strings"

	"github.com/quarrylabs/quarry/pkg/models"
)

const (
	maxNotes      = 100
	maxNoteLen    = 2000
	maxFindings   = 50
	maxPathLen    = 255
	minDepthLevel = 1
	maxDepthLevel = 5
)

var pathPattern = regexp.MustCompile(`^[A-Za-z0-9._/-]+$`)

// validateNotes enforces the note sequence constraints: count, length, and
// no angle-brackets or braces.
func validateNotes(field string, notes []string) *ToolError {
	if len(notes) > maxNotes {
		return invalidInput("%s: at most %d entries allowed, got %d", field, maxNotes, len(notes))
	}
	for i, note := range notes {
		if len(note) > maxNoteLen {
			return invalidInput("%s[%d]: exceeds %d characters", field, i, maxNoteLen)
		}
		if strings.ContainsAny(note, "<>{}") {
			return invalidInput("%s[%d]: angle brackets and braces are not allowed", field, i)
		}
	}
	return nil
}

// validatePath enforces path safety: length, character set, and no parent
// traversal.
func validatePath(field, path string) *ToolError {
	if path == "" {
		return invalidInput("%s: path must not be empty", field)
	}
	if len(path) > maxPathLen {
		return pathUnsafe("%s: path exceeds %d characters", field, maxPathLen)
	}
	if !pathPattern.MatchString(path) {
		return pathUnsafe("%s: path %q contains disallowed characters", field, path)
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == ".." {
			return pathUnsafe("%s: path %q contains a parent traversal", field, path)
		}
	}
	return nil
}

func validateLocation(field string, l ExternalLocation) *ToolError {
	if err := validatePath(field+".file", l.File); err != nil {
		return err
	}
	if l.Line < 0 {
		return invalidInput("%s.line: must not be negative", field)
	}
	return nil
}

func validateScope(field string, s ExternalScope) *ToolError {
	for _, f := range s.Files {
		if err := validatePath(field+".files", f); err != nil {
			return err
		}
	}
	for _, ep := range s.EntryPoints {
		if err := validateLocation(field+".entry_points", ep); err != nil {
			return err
		}
	}
	return nil
}

func validateFindings(field string, findings []ExternalFinding) *ToolError {
	if len(findings) > maxFindings {
		return invalidInput("%s: at most %d findings allowed, got %d", field, maxFindings, len(findings))
	}
	for i, f := range findings {
		if !models.Severity(f.Severity).IsValid() {
			return invalidInput("%s[%d].severity: unknown severity %q", field, i, f.Severity)
		}
		if err := validateLocation(field+".location", f.Location); err != nil {
			return err
		}
	}
	return nil
}

// validateContext checks every constraint on an external analysis context.
func validateContext(ext ExternalContext) *ToolError {
	if err := validateNotes("attempted_approaches", ext.AttemptedApproaches); err != nil {
		return err
	}
	stuck, terr := stuckPointsIn(ext.StuckDescription)
	if terr != nil {
		return terr
	}
	if err := validateNotes("stuck_description", stuck); err != nil {
		return err
	}
	if err := validateFindings("partial_findings", ext.PartialFindings); err != nil {
		return err
	}
	if err := validateScope("code_scope", ext.CodeScope); err != nil {
		return err
	}
	if ext.AnalysisBudgetRemaining < 0 {
		return invalidInput("analysis_budget_remaining: must not be negative")
	}
	return nil
}

func validateAnalysisType(raw string) (models.AnalysisType, *ToolError) {
	t := models.AnalysisType(raw)
	if !t.IsValid() {
		return "", invalidInput("analysis_type: unknown type %q", raw)
	}
	return t, nil
}

func validateDepthLevel(depth int) *ToolError {
	if depth < minDepthLevel || depth > maxDepthLevel {
		return invalidInput("depth_level: must be between %d and %d, got %d",
			minDepthLevel, maxDepthLevel, depth)
	}
	return nil
}

// validateHypotheses checks tournament entrants: count, ids, types,
// confidence range.
func validateHypotheses(hyps []ExternalHypothesis) *ToolError {
	if len(hyps) < 2 || len(hyps) > 10 {
		return invalidInput("hypotheses: between 2 and 10 required, got %d", len(hyps))
	}
	for i, h := range hyps {
		if h.ID == "" {
			return invalidInput("hypotheses[%d].id: required", i)
		}
		if h.Description == "" {
			return invalidInput("hypotheses[%d].description: required", i)
		}
		if !models.HypothesisType(h.Type).IsValid() {
			return invalidInput("hypotheses[%d].type: unknown type %q", i, h.Type)
		}
		if h.Confidence < 1 || h.Confidence > 5 {
			return invalidInput("hypotheses[%d].confidence: must be 1..5, got %d", i, h.Confidence)
		}
	}
	return nil
}
