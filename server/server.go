// Package server exposes the coaching handler surface over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/lithammer/shortuuid/v4"

	"github.com/strideai/coach/internal/profile"
	"github.com/strideai/coach/plugin/ai"
	"github.com/strideai/coach/store"
)

// Server hosts the HTTP API.
type Server struct {
	echo    *echo.Echo
	profile *profile.Profile
	store   *store.Store
	coach   *ai.Coach
}

// NewServer creates the HTTP server and registers routes.
func NewServer(p *profile.Profile, st *store.Store, coach *ai.Coach) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: shortuuid.New,
	}))
	e.Use(requestLogger())
	e.Use(middleware.CORS())

	s := &Server{
		echo:    e,
		profile: p,
		store:   st,
		coach:   coach,
	}

	e.GET("/healthz", s.Healthz)

	g := e.Group("/api/v1")
	g.POST("/chat", s.Chat)
	g.POST("/chat/stream", s.ChatStream)
	g.POST("/memories", s.CreateMemory)
	g.GET("/profile", s.GetProfile)
	g.GET("/reviews/weekly", s.GetWeeklyReview)
	g.GET("/insights", s.ListInsights)
	g.POST("/insights/compute", s.ComputeInsights)
	g.POST("/knowledge", s.IndexKnowledge)

	return s
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.profile.Addr, s.profile.Port)
	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	slog.Info("server started", "addr", addr, "mode", s.profile.Mode)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("shutting down server")
		return s.echo.Shutdown(shutdownCtx)
	}
}

// Healthz reports liveness.
// GET /healthz
func (s *Server) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": s.profile.Version})
}

// requestLogger logs every request with slog key-value pairs.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogError:     true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
				slog.Warn("request", attrs...)
				return nil
			}
			slog.Info("request", attrs...)
			return nil
		},
	})
}
