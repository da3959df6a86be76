package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAnalysisTypeIsValid(t *testing.T) {
	for _, valid := range []AnalysisType{
		AnalysisTypeExecutionTrace, AnalysisTypeCrossSystem, AnalysisTypePerformance,
		AnalysisTypeHypothesisTest, AnalysisTypeQuickScan, AnalysisTypeDeepAnalysis,
	} {
		assert.True(t, valid.IsValid(), string(valid))
	}
	assert.False(t, AnalysisType("").IsValid())
	assert.False(t, AnalysisType("vibes").IsValid())
}

func TestSeverityIsValid(t *testing.T) {
	assert.True(t, SeverityLow.IsValid())
	assert.True(t, SeverityCritical.IsValid())
	assert.False(t, Severity("catastrophic").IsValid())
}

func TestSessionStateIsTerminal(t *testing.T) {
	assert.True(t, SessionStateCompleted.IsTerminal())
	assert.True(t, SessionStateAbandoned.IsTerminal())
	assert.False(t, SessionStateActive.IsTerminal())
	assert.False(t, SessionStateProcessing.IsTerminal())
	assert.False(t, SessionStateCompleting.IsTerminal())
}

func TestHypothesisTypeIsValid(t *testing.T) {
	assert.True(t, HypothesisTypeBug.IsValid())
	assert.True(t, HypothesisTypeSecurity.IsValid())
	assert.False(t, HypothesisType("hunch").IsValid())
}

func TestSummaryFormatIsValid(t *testing.T) {
	assert.True(t, SummaryFormatDetailed.IsValid())
	assert.True(t, SummaryFormatConcise.IsValid())
	assert.True(t, SummaryFormatActionable.IsValid())
	assert.False(t, SummaryFormat("terse").IsValid())
}

func TestSessionClone(t *testing.T) {
	orig := &Session{
		ID:    "s1",
		State: SessionStateActive,
		Turns: []ConversationTurn{
			{ID: "t1", Role: TurnRoleCaller, ContentText: "hello"},
		},
		Progress: AnalysisProgress{
			KeyFindings: []string{"finding"},
		},
	}

	cp := orig.Clone()
	cp.Turns[0].ContentText = "mutated"
	cp.Progress.KeyFindings[0] = "mutated"
	cp.Turns = append(cp.Turns, ConversationTurn{ID: "t2"})

	// The clone shares nothing with the original.
	assert.Equal(t, "hello", orig.Turns[0].ContentText)
	assert.Equal(t, "finding", orig.Progress.KeyFindings[0])
	assert.Len(t, orig.Turns, 1)
}

func TestSessionIdleFor(t *testing.T) {
	now := time.Now()
	sess := &Session{LastActivityMs: now.Add(-10 * time.Minute).UnixMilli()}
	assert.InDelta(t, 10*time.Minute, sess.IdleFor(now), float64(time.Second))
}

func TestAnalysisRequestHelpers(t *testing.T) {
	req := &AnalysisRequest{
		Context: AnalysisContext{
			FocusArea: FocusArea{Files: []string{"a.go", "b.go"}},
		},
		TimeBudgetSeconds: 45,
	}
	assert.Equal(t, 2, req.FileCount())
	assert.Equal(t, 45*time.Second, req.TimeBudget())
}
