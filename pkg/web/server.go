// Package web serves the operational HTTP API: health, session listing,
// cache statistics, recent events, and Prometheus metrics. Stdio remains
// the primary tool transport; this surface is observational only.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quarrylabs/quarry/pkg/cache"
	"github.com/quarrylabs/quarry/pkg/config"
	"github.com/quarrylabs/quarry/pkg/events"
	"github.com/quarrylabs/quarry/pkg/health"
	"github.com/quarrylabs/quarry/pkg/metrics"
	"github.com/quarrylabs/quarry/pkg/session"
)

const shutdownGrace = 5 * time.Second

// Server is the operational HTTP server.
type Server struct {
	cfg       *config.WebConfig
	scheduler *session.Scheduler
	monitor   *health.Monitor
	results   *cache.Cache
	publisher *events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger

	httpServer *http.Server
}

// NewServer creates the operational server. Any component may be nil; its
// routes then report that the feature is disabled.
func NewServer(cfg *config.WebConfig, scheduler *session.Scheduler, monitor *health.Monitor, results *cache.Cache, publisher *events.Publisher, met *metrics.Metrics) *Server {
	return &Server{
		cfg:       cfg,
		scheduler: scheduler,
		monitor:   monitor,
		results:   results,
		publisher: publisher,
		metrics:   met,
		logger:    slog.Default().With("component", "web"),
	}
}

// Routes builds the gin engine with all routes attached.
func (s *Server) Routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	v1 := engine.Group("/api/v1")
	v1.GET("/health", s.getHealth)
	v1.GET("/health/:name", s.getHealthCheck)
	v1.GET("/sessions", s.listSessions)
	v1.GET("/sessions/:id", s.getSession)
	v1.GET("/cache/stats", s.getCacheStats)
	v1.GET("/events/recent", s.getRecentEvents)

	if s.metrics != nil {
		engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	return engine
}

// Start begins serving in a background goroutine. No-op when the web
// surface is disabled.
func (s *Server) Start() {
	if s.httpServer != nil || !s.cfg.Enabled {
		return
	}
	s.httpServer = &http.Server{
		Addr:    s.cfg.Listen,
		Handler: s.Routes(),
	}
	go func() {
		s.logger.Info("HTTP server starting", "listen", s.cfg.Listen)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server failed", "error", err)
		}
	}()
}

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop() {
	if s.httpServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("HTTP server shutdown incomplete", "error", err)
	}
	s.httpServer = nil
}

func (s *Server) getHealth(c *gin.Context) {
	if s.monitor == nil {
		c.JSON(http.StatusOK, gin.H{"state": string(health.StateUnknown)})
		return
	}
	state := s.monitor.Aggregate()
	code := http.StatusOK
	if state == health.StateUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"state":  string(state),
		"checks": s.monitor.Statuses(),
	})
}

func (s *Server) getHealthCheck(c *gin.Context) {
	if s.monitor == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "health monitoring is disabled"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	result, err := s.monitor.Execute(ctx, c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	code := http.StatusOK
	if result.State == health.StateUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, result)
}

func (s *Server) listSessions(c *gin.Context) {
	if s.scheduler == nil {
		c.JSON(http.StatusOK, gin.H{"sessions": []any{}, "count": 0})
		return
	}
	sessions := s.scheduler.List()
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (s *Server) getSession(c *gin.Context) {
	if s.scheduler == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "sessions are disabled"})
		return
	}
	sess, err := s.scheduler.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) getCacheStats(c *gin.Context) {
	if s.results == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}
	c.JSON(http.StatusOK, s.results.Stats())
}

func (s *Server) getRecentEvents(c *gin.Context) {
	if s.publisher == nil {
		c.JSON(http.StatusOK, gin.H{"events": []any{}, "dropped": 0})
		return
	}
	limit := 100
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, gin.H{
		"events":  s.publisher.Recent(limit),
		"dropped": s.publisher.Dropped(),
	})
}
