// Package tournament runs bracketed elimination tournaments over competing
// hypotheses. Each round evaluates the survivors in concurrent matches,
// folds verdicts into evidence-weighted likelihoods, and cuts the bottom
// half until a winner remains.
package tournament

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/quarrylabs/quarry/pkg/config"
	"github.com/quarrylabs/quarry/pkg/events"
	"github.com/quarrylabs/quarry/pkg/metrics"
	"github.com/quarrylabs/quarry/pkg/models"
	"github.com/quarrylabs/quarry/pkg/provider"
)

const (
	// MinHypotheses and MaxHypotheses bound tournament size.
	MinHypotheses = 2
	MaxHypotheses = 10

	// Seed likelihoods: caller confidence 1..5 maps linearly onto [20,100].
	seedFloor = 20.0
	seedStep  = 20.0
)

var (
	ErrHypothesisCount = errors.New("tournament requires between 2 and 10 hypotheses")
	ErrDuplicateID     = errors.New("duplicate hypothesis id")
	ErrBadSettings     = errors.New("tournament settings out of range")
)

// entry tracks one hypothesis through the bracket.
type entry struct {
	hyp         models.Hypothesis
	weightedSum float64
	totalWeight float64
	likelihood  float64
	seed        float64
	rounds      int
	matches     []models.MatchResult
	alive       bool
}

// tournamentRun is the transient state of one tournament: the semaphore
// capping in-flight provider calls plus the degraded flag matches set when
// they time out or fail.
type tournamentRun struct {
	id          string
	scope       models.FocusArea
	sem         *semaphore.Weighted
	maxParallel int
	perMatch    time.Duration
	degraded    atomic.Bool
}

// Engine plans and runs tournaments.
type Engine struct {
	cfg       *config.TournamentConfig
	evaluator Evaluator
	publisher *events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewEngine creates a tournament engine. publisher may be nil.
func NewEngine(cfg *config.TournamentConfig, evaluator Evaluator, publisher *events.Publisher) *Engine {
	return &Engine{
		cfg:       cfg,
		evaluator: evaluator,
		publisher: publisher,
		logger:    slog.Default().With("component", "tournament"),
	}
}

// SetMetrics wires the collector set in. A nil handle (the default) disables
// tournament metrics.
func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
}

// Run executes a full tournament and returns the ranking. The result always
// contains every input hypothesis exactly once; a timed-out tournament
// reports status partial with the standings at expiry.
func (e *Engine) Run(ctx context.Context, hyps []models.Hypothesis, scope models.FocusArea, settings models.TournamentSettings) (*models.TournamentResult, error) {
	if len(hyps) < MinHypotheses || len(hyps) > MaxHypotheses {
		return nil, fmt.Errorf("%w: got %d", ErrHypothesisCount, len(hyps))
	}
	maxParallel, perMatch, err := e.normalize(settings)
	if err != nil {
		return nil, err
	}

	entries := make([]*entry, 0, len(hyps))
	seen := make(map[string]bool, len(hyps))
	for _, h := range hyps {
		if seen[h.ID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, h.ID)
		}
		seen[h.ID] = true
		seed := seedFloor + float64(clampConfidence(h.Confidence)-1)*seedStep
		entries = append(entries, &entry{
			hyp:         h,
			weightedSum: seed,
			totalWeight: 1,
			likelihood:  seed,
			seed:        seed,
			alive:       true,
		})
	}

	run := &tournamentRun{
		id:          uuid.NewString(),
		scope:       scope,
		sem:         semaphore.NewWeighted(int64(maxParallel)),
		maxParallel: maxParallel,
		perMatch:    perMatch,
	}
	start := time.Now()
	deadline := time.Duration(plannedMatches(len(entries), maxParallel)) * perMatch
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	e.logger.Info("Tournament starting",
		"tournament_id", run.id,
		"hypotheses", len(entries),
		"max_parallel", maxParallel,
		"per_match_timeout", perMatch.String(),
		"deadline", deadline.String())

	status := models.ResultStatusSuccess
	rounds := 0

	alive := make([]*entry, len(entries))
	copy(alive, entries)

	for len(alive) > 1 {
		if ctx.Err() != nil {
			status = models.ResultStatusPartial
			break
		}
		rounds++
		e.runRound(ctx, run, rounds, alive)

		for _, en := range alive {
			en.rounds = rounds
		}
		if ctx.Err() != nil {
			status = models.ResultStatusPartial
			break
		}

		sortEntries(alive)
		cut := (len(alive) + 1) / 2
		for _, loser := range alive[len(alive)-cut:] {
			loser.alive = false
		}
		alive = alive[:len(alive)-cut]
	}

	// Any timed-out or failed match degrades the whole outcome to partial:
	// its zero-likelihood verdicts stand in for real evidence.
	if run.degraded.Load() {
		status = models.ResultStatusPartial
	}

	result := e.buildResult(entries, status, rounds, time.Since(start))
	if e.metrics != nil {
		e.metrics.TournamentDuration.Observe(time.Since(start).Seconds())
	}
	e.logger.Info("Tournament finished",
		"tournament_id", run.id,
		"status", result.Status,
		"rounds", result.RoundsPlayed,
		"winner", result.Winner.Hypothesis.ID,
		"duration", time.Since(start).String())
	e.publishDone(run.id, result)
	return result, nil
}

// runRound partitions the survivors into matches of up to maxParallel
// hypotheses and evaluates them concurrently under the semaphore.
func (e *Engine) runRound(ctx context.Context, run *tournamentRun, round int, alive []*entry) {
	var wg sync.WaitGroup
	for i := 0; i < len(alive); i += run.maxParallel {
		end := i + run.maxParallel
		if end > len(alive) {
			end = len(alive)
		}
		group := alive[i:end]
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.runMatch(ctx, run, round, group)
		}()
	}
	wg.Wait()
}

// runMatch evaluates one group. A per-match timeout or failure records
// likelihood 0 for every hypothesis in the group and degrades the run; the
// tournament deadline expiring records nothing.
func (e *Engine) runMatch(ctx context.Context, run *tournamentRun, round int, group []*entry) {
	if err := run.sem.Acquire(ctx, 1); err != nil {
		return // tournament deadline hit while queued
	}
	defer run.sem.Release(1)

	hyps := make([]models.Hypothesis, len(group))
	for i, en := range group {
		hyps[i] = en.hyp
	}

	matchCtx, cancel := context.WithTimeout(ctx, run.perMatch)
	defer cancel()

	start := time.Now()
	results, err := e.evaluator.EvaluateMatch(matchCtx, hyps, run.scope)
	if err != nil && provider.IsTransient(err) && matchCtx.Err() == nil {
		results, err = e.evaluator.EvaluateMatch(matchCtx, hyps, run.scope)
	}
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return // whole-tournament deadline, standings stay as they are
		}
		run.degraded.Store(true)
		e.observeMatch("failed")
		e.logger.Warn("Match failed, recording zero likelihoods",
			"tournament_id", run.id, "round", round, "error", err)
		for _, en := range group {
			en.applyMatch(models.MatchResult{
				HypothesisID: en.hyp.ID,
				Likelihood:   0,
				DurationMs:   elapsed.Milliseconds(),
			})
			e.publishMatch(run.id, round, en.hyp.ID, 0, true)
		}
		return
	}

	e.observeMatch("ok")
	byID := make(map[string]models.MatchResult, len(results))
	for _, r := range results {
		r.DurationMs = elapsed.Milliseconds()
		byID[r.HypothesisID] = r
	}
	for _, en := range group {
		r := byID[en.hyp.ID]
		r.HypothesisID = en.hyp.ID
		en.applyMatch(r)
		e.publishMatch(run.id, round, en.hyp.ID, en.likelihood, false)
	}
}

func (e *Engine) observeMatch(outcome string) {
	if e.metrics == nil {
		return
	}
	e.metrics.TournamentMatches.WithLabelValues(outcome).Inc()
}

// applyMatch folds one verdict into the cumulative likelihood as a weighted
// average, with weight proportional to the amount of evidence.
func (en *entry) applyMatch(r models.MatchResult) {
	weight := float64(len(r.Evidence) + len(r.CounterEvidence))
	if weight < 1 {
		weight = 1
	}
	en.matches = append(en.matches, r)
	en.weightedSum += r.Likelihood * weight
	en.totalWeight += weight
	en.likelihood = en.weightedSum / en.totalWeight
}

// sortEntries orders best-first: likelihood, then caller confidence, then id.
func sortEntries(entries []*entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.likelihood != b.likelihood {
			return a.likelihood > b.likelihood
		}
		if a.hyp.Confidence != b.hyp.Confidence {
			return a.hyp.Confidence > b.hyp.Confidence
		}
		return a.hyp.ID < b.hyp.ID
	})
}

// buildResult ranks every entrant: survivors of more rounds first, then by
// the deterministic likelihood ordering.
func (e *Engine) buildResult(entries []*entry, status models.ResultStatus, rounds int, elapsed time.Duration) *models.TournamentResult {
	ranked := make([]*entry, len(entries))
	copy(ranked, entries)
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.alive != b.alive {
			return a.alive
		}
		if a.rounds != b.rounds {
			return a.rounds > b.rounds
		}
		if a.likelihood != b.likelihood {
			return a.likelihood > b.likelihood
		}
		if a.hyp.Confidence != b.hyp.Confidence {
			return a.hyp.Confidence > b.hyp.Confidence
		}
		return a.hyp.ID < b.hyp.ID
	})

	rankings := make([]models.HypothesisRanking, len(ranked))
	for i, en := range ranked {
		rankings[i] = models.HypothesisRanking{
			Hypothesis:     en.hyp,
			Likelihood:     en.likelihood,
			Rank:           i + 1,
			RoundsSurvived: en.rounds,
			Matches:        en.matches,
		}
	}

	winner := &rankings[0]
	return &models.TournamentResult{
		Status:         status,
		Rankings:       rankings,
		Winner:         winner,
		Recommendation: recommendation(winner, status),
		RoundsPlayed:   rounds,
		DurationMs:     elapsed.Milliseconds(),
	}
}

func recommendation(winner *models.HypothesisRanking, status models.ResultStatus) string {
	verb := "Pursue"
	if status == models.ResultStatusPartial {
		verb = "Tentatively pursue"
	}
	return fmt.Sprintf("%s hypothesis %s (%s, likelihood %.0f): %s",
		verb, winner.Hypothesis.ID, winner.Hypothesis.Type,
		winner.Likelihood, winner.Hypothesis.Description)
}

// normalize applies defaults for zero settings and rejects out-of-range
// values.
func (e *Engine) normalize(s models.TournamentSettings) (int, time.Duration, error) {
	maxParallel := s.MaxParallel
	if maxParallel == 0 {
		maxParallel = e.cfg.MaxParallel
	}
	if maxParallel < 1 || maxParallel > 5 {
		return 0, 0, fmt.Errorf("%w: maxParallel %d", ErrBadSettings, maxParallel)
	}
	perMatch := time.Duration(s.PerMatchTimeoutSec) * time.Second
	if perMatch == 0 {
		perMatch = e.cfg.PerMatchTimeout
	}
	if perMatch < 10*time.Second || perMatch > 120*time.Second {
		return 0, 0, fmt.Errorf("%w: perMatchTimeout %s", ErrBadSettings, perMatch)
	}
	return maxParallel, perMatch, nil
}

// plannedMatches counts the matches a full bracket needs, for the total
// deadline.
func plannedMatches(n, maxParallel int) int {
	total := 0
	for k := n; k > 1; {
		total += (k + maxParallel - 1) / maxParallel
		k -= (k + 1) / 2
	}
	if total == 0 {
		total = 1
	}
	return total
}

func clampConfidence(c int) int {
	if c < 1 {
		return 1
	}
	if c > 5 {
		return 5
	}
	return c
}

func (e *Engine) publishMatch(tournamentID string, round int, hypothesisID string, likelihood float64, timedOut bool) {
	if e.publisher == nil {
		return
	}
	e.publisher.PublishTournamentMatch(events.TournamentMatchPayload{
		TournamentID: tournamentID,
		Round:        round,
		HypothesisID: hypothesisID,
		Likelihood:   likelihood,
		TimedOut:     timedOut,
	})
}

func (e *Engine) publishDone(tournamentID string, result *models.TournamentResult) {
	if e.publisher == nil {
		return
	}
	e.publisher.PublishTournamentDone(events.TournamentDonePayload{
		TournamentID: tournamentID,
		Status:       string(result.Status),
		Rounds:       result.RoundsPlayed,
		WinnerID:     result.Winner.Hypothesis.ID,
	})
}
