// Package httpapi exposes the pipeline over a small REST surface: status,
// stored detections with their snapshots, and a couple of control actions.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skywatch/skywatch-go/internal/datastore"
	"github.com/skywatch/skywatch-go/internal/logging"
	"github.com/skywatch/skywatch-go/internal/observability"
	"github.com/skywatch/skywatch-go/internal/orchestrator"
)

// Controller is the slice of the orchestrator the HTTP handlers need.
type Controller interface {
	GetStatus() orchestrator.Status
	ListDetections(limit, offset int, filter *datastore.Filter) ([]datastore.Detection, error)
	GetDetection(id uint) (*datastore.Detection, error)
	GetSnapshot(id uint) ([]byte, error)
	TriggerTest(ctx context.Context, component string) error
	RequestRestart()
}

// Server serves the REST API and the Prometheus metrics endpoint.
type Server struct {
	echo    *echo.Echo
	ctrl    Controller
	metrics *observability.Metrics
	log     *slog.Logger
}

// New creates the HTTP server and registers all routes. metrics may be nil,
// in which case /metrics is not served.
func New(ctrl Controller, metrics *observability.Metrics) *Server {
	log := logging.ForService("httpapi")
	if log == nil {
		log = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, ctrl: ctrl, metrics: metrics, log: log}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.echo.Group("/api/v1")
	v1.GET("/status", s.handleStatus)
	v1.GET("/detections", s.handleListDetections)
	v1.GET("/detections/:id", s.handleGetDetection)
	v1.GET("/detections/:id/snapshot", s.handleGetSnapshot)
	v1.POST("/control/test/:component", s.handleTest)
	v1.POST("/control/restart", s.handleRestart)

	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(
			promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})))
	}
}

// Start begins serving on the given port. It blocks until the listener fails
// or Shutdown is called.
func (s *Server) Start(port string) error {
	addr := ":" + port
	s.log.Info("http server listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server, waiting up to ctx for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}
