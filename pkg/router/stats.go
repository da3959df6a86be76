package router

import (
	"sync"
	"time"

	"github.com/quarrylabs/quarry/pkg/models"
)

// StrategyStats is a snapshot of one strategy's rolling metrics.
type StrategyStats struct {
	Executions    int64   `json:"executions"`
	Failures      int64   `json:"failures"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
	AvgConfidence float64 `json:"avg_confidence"`
	SuccessRate   float64 `json:"success_rate"`
}

type typeRecord struct {
	attempts  int64
	successes int64
}

type strategyRecord struct {
	executions      int64
	failures        int64
	totalDurationMs int64
	totalConfidence float64
	byType          map[models.AnalysisType]*typeRecord
}

// statsTracker accumulates per-strategy execution metrics. All methods are
// safe for concurrent use.
type statsTracker struct {
	mu      sync.Mutex
	records map[string]*strategyRecord
}

func newStatsTracker() *statsTracker {
	return &statsTracker{records: make(map[string]*strategyRecord)}
}

// record logs one execution outcome. confidence is only meaningful when the
// run succeeded.
func (t *statsTracker) record(strategy string, analysisType models.AnalysisType,
	elapsed time.Duration, confidence float64, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[strategy]
	if !ok {
		rec = &strategyRecord{byType: make(map[models.AnalysisType]*typeRecord)}
		t.records[strategy] = rec
	}
	rec.executions++
	rec.totalDurationMs += elapsed.Milliseconds()

	tr, ok := rec.byType[analysisType]
	if !ok {
		tr = &typeRecord{}
		rec.byType[analysisType] = tr
	}
	tr.attempts++

	if success {
		rec.totalConfidence += confidence
		tr.successes++
	} else {
		rec.failures++
	}
}

// successRate returns the strategy's historical success rate for one
// analysis type. ok is false when there is no history yet.
func (t *statsTracker) successRate(strategy string, analysisType models.AnalysisType) (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[strategy]
	if !ok {
		return 0, false
	}
	tr, ok := rec.byType[analysisType]
	if !ok || tr.attempts == 0 {
		return 0, false
	}
	return float64(tr.successes) / float64(tr.attempts), true
}

// snapshot returns the current metrics keyed by strategy name.
func (t *statsTracker) snapshot() map[string]StrategyStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]StrategyStats, len(t.records))
	for name, rec := range t.records {
		s := StrategyStats{
			Executions: rec.executions,
			Failures:   rec.failures,
		}
		if rec.executions > 0 {
			s.AvgDurationMs = float64(rec.totalDurationMs) / float64(rec.executions)
			s.SuccessRate = float64(rec.executions-rec.failures) / float64(rec.executions)
		}
		if successes := rec.executions - rec.failures; successes > 0 {
			s.AvgConfidence = rec.totalConfidence / float64(successes)
		}
		out[name] = s
	}
	return out
}
