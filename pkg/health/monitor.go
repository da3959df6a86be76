// Package health provides a registry of named health checks with per-check
// timeouts, on-demand and interval execution, and a rolled-up aggregate
// status.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// State is the outcome of one check or of the aggregate rollup.
type State string

const (
	StateHealthy   State = "healthy"
	StateDegraded  State = "degraded"
	StateUnhealthy State = "unhealthy"
	StateUnknown   State = "unknown"
)

// CheckType categorizes a registered check.
type CheckType string

const (
	// CheckTypeFunctional verifies a component does its job
	CheckTypeFunctional CheckType = "functional"
	// CheckTypeResource verifies resource headroom (memory, sessions)
	CheckTypeResource CheckType = "resource"
	// CheckTypeDependency verifies an external collaborator (providers)
	CheckTypeDependency CheckType = "dependency"
	// CheckTypeStartup verifies one-time startup conditions
	CheckTypeStartup CheckType = "startup"
)

// CheckFunc performs one health probe. It must honor ctx cancellation.
type CheckFunc func(ctx context.Context) (State, map[string]any, error)

// CheckConfig declares one named check.
type CheckConfig struct {
	Name    string
	Type    CheckType
	Enabled bool
	Timeout time.Duration
	Fn      CheckFunc
}

// Result is the outcome of one check execution.
type Result struct {
	Name       string         `json:"name"`
	Type       CheckType      `json:"type"`
	State      State          `json:"state"`
	Error      string         `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CheckedAt  time.Time      `json:"checked_at"`
	DurationMs int64          `json:"duration_ms"`
}

// Summary is the aggregate outcome of an ExecuteAll run.
type Summary struct {
	State   State              `json:"state"`
	Results map[string]*Result `json:"results"`
}

// Monitor owns the check registry. Checks are registered once at startup;
// the registry is read-mostly afterwards.
type Monitor struct {
	mu     sync.RWMutex
	checks map[string]CheckConfig

	// Last results per check, updated by ExecuteAll and Execute.
	statuses   map[string]*Result
	statusesMu sync.RWMutex

	interval       time.Duration
	defaultTimeout time.Duration

	cancel context.CancelFunc
	done   chan struct{}
	logger *slog.Logger
}

// NewMonitor creates a monitor that runs all enabled checks every interval.
func NewMonitor(interval, defaultTimeout time.Duration) *Monitor {
	return &Monitor{
		checks:         make(map[string]CheckConfig),
		statuses:       make(map[string]*Result),
		interval:       interval,
		defaultTimeout: defaultTimeout,
		logger:         slog.Default(),
	}
}

// Register adds a check to the registry. Re-registering a name replaces the
// previous check.
func (m *Monitor) Register(cfg CheckConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("check name is required")
	}
	if cfg.Fn == nil {
		return fmt.Errorf("check %q: function is required", cfg.Name)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = m.defaultTimeout
	}
	m.mu.Lock()
	m.checks[cfg.Name] = cfg
	m.mu.Unlock()
	return nil
}

// CheckNames returns the sorted names of all registered checks.
func (m *Monitor) CheckNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.checks))
	for name := range m.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs a single named check, bounded by its timeout.
func (m *Monitor) Execute(ctx context.Context, name string) (*Result, error) {
	m.mu.RLock()
	cfg, ok := m.checks[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("health check not found: %s", name)
	}
	result := m.runCheck(ctx, cfg)
	m.setStatus(result)
	return result, nil
}

// ExecuteAll runs every enabled check in parallel, each bounded by its own
// timeout, and returns the aggregate summary. Disabled checks report
// unknown without running.
func (m *Monitor) ExecuteAll(ctx context.Context) *Summary {
	m.mu.RLock()
	checks := make([]CheckConfig, 0, len(m.checks))
	for _, cfg := range m.checks {
		checks = append(checks, cfg)
	}
	m.mu.RUnlock()

	results := make([]*Result, len(checks))
	g, gctx := errgroup.WithContext(ctx)
	for i, cfg := range checks {
		g.Go(func() error {
			if !cfg.Enabled {
				results[i] = &Result{
					Name:      cfg.Name,
					Type:      cfg.Type,
					State:     StateUnknown,
					CheckedAt: time.Now(),
				}
				return nil
			}
			results[i] = m.runCheck(gctx, cfg)
			return nil
		})
	}
	_ = g.Wait() // check failures are captured in results, never as errors

	summary := &Summary{
		State:   StateHealthy,
		Results: make(map[string]*Result, len(results)),
	}
	for _, r := range results {
		summary.Results[r.Name] = r
		m.setStatus(r)
		switch r.State {
		case StateUnhealthy:
			summary.State = StateUnhealthy
		case StateDegraded:
			if summary.State != StateUnhealthy {
				summary.State = StateDegraded
			}
		}
	}
	return summary
}

// runCheck executes one check with panic recovery and timeout bounding.
func (m *Monitor) runCheck(ctx context.Context, cfg CheckConfig) (result *Result) {
	start := time.Now()
	result = &Result{
		Name:      cfg.Name,
		Type:      cfg.Type,
		CheckedAt: start,
	}
	defer func() {
		if r := recover(); r != nil {
			result.State = StateUnhealthy
			result.Error = fmt.Sprintf("check panicked: %v", r)
			m.logger.Error("Health check panicked", "check", cfg.Name, "panic", r)
		}
		result.DurationMs = time.Since(start).Milliseconds()
	}()

	checkCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	state, meta, err := cfg.Fn(checkCtx)
	if err != nil {
		if checkCtx.Err() != nil {
			result.State = StateUnhealthy
			result.Error = fmt.Sprintf("check timed out after %s", cfg.Timeout)
		} else {
			result.State = StateUnhealthy
			result.Error = err.Error()
		}
		return result
	}
	result.State = state
	result.Metadata = meta
	return result
}

// Statuses returns a copy of the last known result per check.
func (m *Monitor) Statuses() map[string]*Result {
	m.statusesMu.RLock()
	defer m.statusesMu.RUnlock()
	out := make(map[string]*Result, len(m.statuses))
	for k, v := range m.statuses {
		cp := *v
		out[k] = &cp
	}
	return out
}

// Aggregate rolls up the last known results: unhealthy if any check is
// unhealthy, else degraded if any degraded, else healthy. No results yet
// reports unknown.
func (m *Monitor) Aggregate() State {
	m.statusesMu.RLock()
	defer m.statusesMu.RUnlock()
	if len(m.statuses) == 0 {
		return StateUnknown
	}
	agg := StateHealthy
	for _, r := range m.statuses {
		switch r.State {
		case StateUnhealthy:
			return StateUnhealthy
		case StateDegraded:
			agg = StateDegraded
		}
	}
	return agg
}

func (m *Monitor) setStatus(r *Result) {
	m.statusesMu.Lock()
	m.statuses[r.Name] = r
	m.statusesMu.Unlock()
}

// Start launches the background check loop. Calling Start on a running
// monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	if m.cancel != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)

		// Run first check immediately
		m.ExecuteAll(ctx)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				summary := m.ExecuteAll(ctx)
				if summary.State != StateHealthy {
					m.logger.Warn("Health check cycle completed",
						"aggregate", summary.State)
				}
			}
		}
	}()
}

// Stop gracefully shuts down the monitor. After Stop returns, Start may be
// called again.
func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel = nil
	m.done = nil
}
