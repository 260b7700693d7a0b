// Package http provides the HTTP API for diagramd.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/diagramd/internal/controller"
	"github.com/fyrsmithlabs/diagramd/internal/session"
)

// Server provides HTTP endpoints for diagramd.
type Server struct {
	echo     *echo.Echo
	executor controller.Executor
	metrics  *HTTPMetrics
	logger   *zap.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(executor controller.Executor, logger *zap.Logger, cfg *Config) (*Server, error) {
	if executor == nil {
		return nil, fmt.Errorf("executor cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8080,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	metrics := NewHTTPMetrics(logger)

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(metrics.MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:     e,
		executor: executor,
		metrics:  metrics,
		logger:   logger,
		config:   cfg,
	}

	// Register routes
	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	// Health check and metrics
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// API v1 routes
	v1 := s.echo.Group("/api/v1")
	v1.POST("/diagrams", s.handleGenerate)
	v1.GET("/sessions/:id", s.handleSessionStatus)
	v1.DELETE("/sessions/:id", s.handleCancelSession)
	v1.GET("/statistics", s.handleStatistics)
}

// handleHealth probes the executor and its collaborators.
func (s *Server) handleHealth(c echo.Context) error {
	health := s.executor.Health(c.Request().Context())
	status := http.StatusOK
	if health.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, health)
}

// handleGenerate runs the full pipeline for one request and returns the
// terminal session.
func (s *Server) handleGenerate(c echo.Context) error {
	var req controller.Request
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid diagram request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Request == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "request field is required")
	}

	data, err := s.executor.Submit(c.Request().Context(), &req)
	if err != nil {
		if errors.Is(err, session.ErrTooManySessions) {
			return echo.NewHTTPError(http.StatusTooManyRequests, "too many concurrent sessions, retry later")
		}
		s.logger.Error("submit failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to process request")
	}

	return c.JSON(http.StatusOK, data)
}

// handleSessionStatus returns the snapshot of an active or finished session.
func (s *Server) handleSessionStatus(c echo.Context) error {
	data, err := s.executor.Status(c.Param("id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to look up session")
	}
	return c.JSON(http.StatusOK, data)
}

// CancelResponse is the response body for DELETE /api/v1/sessions/:id.
type CancelResponse struct {
	SessionID string `json:"session_id"`
	Cancelled bool   `json:"cancelled"`
}

// handleCancelSession cancels an active session. Cancelling a session that
// is unknown or already finished reports cancelled=false.
func (s *Server) handleCancelSession(c echo.Context) error {
	id := c.Param("id")
	cancelled := s.executor.Cancel(id)
	if cancelled {
		s.logger.Info("session cancelled via api", zap.String("session_id", id))
	}
	return c.JSON(http.StatusOK, CancelResponse{SessionID: id, Cancelled: cancelled})
}

// handleStatistics returns aggregate session statistics.
func (s *Server) handleStatistics(c echo.Context) error {
	return c.JSON(http.StatusOK, s.executor.Statistics())
}

// Echo exposes the underlying router for extra route registration.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
