// Quarry reasoning orchestrator: serves the tool catalog over stdio,
// routes analysis requests across model providers, and manages
// conversation sessions and hypothesis tournaments.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/quarrylabs/quarry/pkg/api"
	"github.com/quarrylabs/quarry/pkg/cache"
	"github.com/quarrylabs/quarry/pkg/config"
	"github.com/quarrylabs/quarry/pkg/events"
	"github.com/quarrylabs/quarry/pkg/health"
	"github.com/quarrylabs/quarry/pkg/metrics"
	"github.com/quarrylabs/quarry/pkg/provider"
	"github.com/quarrylabs/quarry/pkg/router"
	"github.com/quarrylabs/quarry/pkg/session"
	"github.com/quarrylabs/quarry/pkg/tournament"
	"github.com/quarrylabs/quarry/pkg/version"
	"github.com/quarrylabs/quarry/pkg/web"
)

// memoryDegradedBytes is the heap size past which the memory check reports
// degraded.
const memoryDegradedBytes = uint64(1 << 30)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Logs go to stderr; stdout belongs to the stdio transport.
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Server.LogLevel.SlogLevel(),
	}))
	slog.SetDefault(logger)
	slog.Info("Starting quarry", "config_dir", *configDir, "log_level", cfg.Server.LogLevel)

	// 2. Shared infrastructure
	met := metrics.New()
	publisher := events.NewPublisher()
	publisher.SetMetrics(met)
	results := cache.New(cfg.Cache)
	results.SetMetrics(met)
	results.Start(ctx)
	defer results.Stop()

	// 3. Provider gateway
	gateway := provider.NewGateway(cfg.Providers)
	gateway.SetPublisher(publisher)
	gateway.SetMetrics(met)
	if err := gateway.Bootstrap(ctx); err != nil {
		slog.Error("Failed to bootstrap providers", "error", err)
		os.Exit(1)
	}
	gateway.Start(ctx)
	defer gateway.Stop()
	slog.Info("Provider gateway ready", "providers", gateway.Names())

	// 4. Router with both strategies
	strategies := []router.Strategy{
		router.NewDeepStrategy(gateway),
		router.NewQuickStrategy(gateway),
	}
	analysisRouter := router.New(strategies, results, publisher)

	// 5. Conversation scheduler
	scheduler := session.NewScheduler(cfg.Session, session.NewGatewayRunner(gateway), publisher)
	scheduler.SetMetrics(met)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	// 6. Tournament engine
	engine := tournament.NewEngine(cfg.Tournament, tournament.NewProviderEvaluator(gateway), publisher)
	engine.SetMetrics(met)

	// 7. Health monitor with the built-in checks
	monitor := health.NewMonitor(cfg.Health.CheckInterval, cfg.Health.DefaultCheckTimeout)
	registerChecks(monitor, gateway, scheduler, results, cfg)
	monitor.Start(ctx)
	defer monitor.Stop()

	// 8. Operational HTTP surface (off unless configured)
	webServer := web.NewServer(cfg.Web, scheduler, monitor, results, publisher, met)
	webServer.Start()
	defer webServer.Stop()

	// 9. Tool server over stdio
	toolServer := api.NewServer(cfg, analysisRouter, scheduler, engine, monitor, met)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- toolServer.Run(runCtx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	exitCode := 0
	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
		cancel()
		select {
		case <-errCh:
		case <-time.After(5 * time.Second):
			slog.Warn("Tool server did not stop within the grace period")
		}
	case err := <-errCh:
		if err != nil && runCtx.Err() == nil {
			slog.Error("Tool server failed", "error", err)
			exitCode = 1
		}
	}

	slog.Info("Shutdown complete")
	os.Exit(exitCode)
}

// registerChecks wires the built-in health checks: provider availability,
// session pressure, cache effectiveness, heap headroom, and startup.
func registerChecks(monitor *health.Monitor, gateway *provider.Gateway, scheduler *session.Scheduler, results *cache.Cache, cfg *config.Config) {
	_ = monitor.Register(health.CheckConfig{
		Name:    "providers",
		Type:    health.CheckTypeDependency,
		Enabled: true,
		Fn: func(ctx context.Context) (health.State, map[string]any, error) {
			statuses := gateway.Statuses()
			meta := map[string]any{"providers": statuses}
			available := 0
			for _, up := range statuses {
				if up {
					available++
				}
			}
			meta["available"] = available
			switch {
			case len(statuses) == 0:
				return health.StateUnhealthy, meta, nil
			case available == 0:
				return health.StateUnhealthy, meta, nil
			case available < len(statuses):
				return health.StateDegraded, meta, nil
			default:
				return health.StateHealthy, meta, nil
			}
		},
	})

	_ = monitor.Register(health.CheckConfig{
		Name:    "sessions",
		Type:    health.CheckTypeResource,
		Enabled: true,
		Fn: func(ctx context.Context) (health.State, map[string]any, error) {
			count := scheduler.Count()
			meta := map[string]any{"active_sessions": count}
			if count > cfg.Server.MaxConcurrentRequests*10 {
				return health.StateDegraded, meta, nil
			}
			return health.StateHealthy, meta, nil
		},
	})

	_ = monitor.Register(health.CheckConfig{
		Name:    "cache",
		Type:    health.CheckTypeFunctional,
		Enabled: true,
		Fn: func(ctx context.Context) (health.State, map[string]any, error) {
			stats := results.Stats()
			meta := map[string]any{
				"entries":  stats.Entries,
				"hit_rate": stats.HitRate,
			}
			return health.StateHealthy, meta, nil
		},
	})

	_ = monitor.Register(health.CheckConfig{
		Name:    "memory",
		Type:    health.CheckTypeResource,
		Enabled: true,
		Fn: func(ctx context.Context) (health.State, map[string]any, error) {
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			meta := map[string]any{
				"heap_alloc_bytes": ms.HeapAlloc,
				"sys_bytes":        ms.Sys,
				"goroutines":       runtime.NumGoroutine(),
				"gc_cycles":        ms.NumGC,
			}
			if ms.HeapAlloc > memoryDegradedBytes {
				return health.StateDegraded, meta, nil
			}
			return health.StateHealthy, meta, nil
		},
	})

	startedAt := time.Now()
	_ = monitor.Register(health.CheckConfig{
		Name:    "startup",
		Type:    health.CheckTypeStartup,
		Enabled: true,
		Fn: func(ctx context.Context) (health.State, map[string]any, error) {
			return health.StateHealthy, map[string]any{
				"started_at": startedAt.UTC().Format(time.RFC3339),
				"uptime":     time.Since(startedAt).Round(time.Second).String(),
				"version":    version.Full(),
			}, nil
		},
	})
}
