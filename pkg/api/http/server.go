package http

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/aescanero/hrrelay/internal/application/relay"
	"github.com/aescanero/hrrelay/pkg/ports"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server represents the HTTP relay server
type Server struct {
	router  *gin.Engine
	server  *http.Server
	relay   *relay.Service
	metrics ports.MetricsCollector
	logger  *zap.Logger
}

// Config holds HTTP server configuration
type Config struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	Relay             *relay.Service
	Metrics           ports.MetricsCollector
	// Gatherer backs /metrics; nil disables the endpoint
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = ports.NopMetricsCollector{}
	}

	router := gin.New()
	// Paths are not significant for the relay endpoint; never redirect.
	router.RedirectTrailingSlash = false
	router.Use(gin.Recovery())
	router.Use(requestLogger(cfg.Logger, metrics))
	router.Use(corsMiddleware())

	s := &Server{
		router:  router,
		relay:   cfg.Relay,
		metrics: metrics,
		logger:  cfg.Logger,
	}

	s.setupRoutes(cfg.Gatherer)

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	return s
}

// setupRoutes configures routes. Everything not claimed by an auxiliary
// route is the relay endpoint, whatever the path.
func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	s.router.GET("/healthz", s.handleHealth)

	if gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	s.router.NoRoute(s.handleReading)
}

// SetupWebSocket adds the reading stream handler to the server
func (s *Server) SetupWebSocket(handler interface {
	HandleStream(*gin.Context)
}) {
	s.router.GET("/ws", handler.HandleStream)
}

// Handler returns the router, for embedding or tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Serve serves on an existing listener
func (s *Server) Serve(listener net.Listener) error {
	s.logger.Info("starting HTTP server", zap.String("addr", listener.Addr().String()))

	if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to serve HTTP: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info("HTTP server shut down complete")
	return nil
}
