package models

// AnalysisType identifies the kind of analysis a caller is requesting.
type AnalysisType string

const (
	// AnalysisTypeExecutionTrace follows an execution path from an entry point
	AnalysisTypeExecutionTrace AnalysisType = "execution_trace"
	// AnalysisTypeCrossSystem analyzes impact across service boundaries
	AnalysisTypeCrossSystem AnalysisType = "cross_system"
	// AnalysisTypePerformance looks for performance bottlenecks
	AnalysisTypePerformance AnalysisType = "performance"
	// AnalysisTypeHypothesisTest evaluates a single candidate explanation
	AnalysisTypeHypothesisTest AnalysisType = "hypothesis_test"
	// AnalysisTypeQuickScan is a shallow, fast pass over a small scope
	AnalysisTypeQuickScan AnalysisType = "quick_scan"
	// AnalysisTypeDeepAnalysis is a long-form, high-confidence investigation
	AnalysisTypeDeepAnalysis AnalysisType = "deep_analysis"
)

// IsValid checks if the analysis type is valid
func (t AnalysisType) IsValid() bool {
	switch t {
	case AnalysisTypeExecutionTrace,
		AnalysisTypeCrossSystem,
		AnalysisTypePerformance,
		AnalysisTypeHypothesisTest,
		AnalysisTypeQuickScan,
		AnalysisTypeDeepAnalysis:
		return true
	default:
		return false
	}
}

// Severity grades a finding.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IsValid checks if the severity is valid
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// ResultStatus describes the overall outcome of an analysis run.
type ResultStatus string

const (
	ResultStatusSuccess ResultStatus = "success"
	ResultStatusPartial ResultStatus = "partial"
	ResultStatusTimeout ResultStatus = "timeout"
	ResultStatusError   ResultStatus = "error"
)

// SessionState is the lifecycle state of a conversation session.
type SessionState string

const (
	// SessionStateActive accepts new turns
	SessionStateActive SessionState = "active"
	// SessionStateProcessing holds the session lock while a turn runs
	SessionStateProcessing SessionState = "processing"
	// SessionStateCompleting synthesizes the final summary
	SessionStateCompleting SessionState = "completing"
	// SessionStateCompleted is terminal: finalized normally
	SessionStateCompleted SessionState = "completed"
	// SessionStateAbandoned is terminal: reaped after idle timeout
	SessionStateAbandoned SessionState = "abandoned"
)

// IsTerminal reports whether the state permits no further transitions.
func (s SessionState) IsTerminal() bool {
	return s == SessionStateCompleted || s == SessionStateAbandoned
}

// TurnRole identifies who produced a conversation turn.
type TurnRole string

const (
	TurnRoleCaller TurnRole = "caller"
	TurnRoleModel  TurnRole = "model"
	TurnRoleSystem TurnRole = "system"
)

// HypothesisType categorizes a tournament hypothesis.
type HypothesisType string

const (
	HypothesisTypeBug         HypothesisType = "bug"
	HypothesisTypePerformance HypothesisType = "performance"
	HypothesisTypeBehavior    HypothesisType = "behavior"
	HypothesisTypeSecurity    HypothesisType = "security"
)

// IsValid checks if the hypothesis type is valid
func (t HypothesisType) IsValid() bool {
	switch t {
	case HypothesisTypeBug, HypothesisTypePerformance, HypothesisTypeBehavior, HypothesisTypeSecurity:
		return true
	default:
		return false
	}
}

// SummaryFormat selects the shape of a finalized conversation summary.
type SummaryFormat string

const (
	SummaryFormatDetailed   SummaryFormat = "detailed"
	SummaryFormatConcise    SummaryFormat = "concise"
	SummaryFormatActionable SummaryFormat = "actionable"
)

// IsValid checks if the summary format is valid
func (f SummaryFormat) IsValid() bool {
	switch f {
	case SummaryFormatDetailed, SummaryFormatConcise, SummaryFormatActionable:
		return true
	default:
		return false
	}
}
