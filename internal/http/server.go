// Package http provides the API server for the order service.
package http

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/allisson/ordersaga/internal/metrics"
	orderHTTP "github.com/allisson/ordersaga/internal/order/http"
)

// Server represents the HTTP API server.
type Server struct {
	server *http.Server
	router *gin.Engine
	db     *sql.DB
	logger *slog.Logger

	orderHandler     *orderHTTP.OrderHandler
	meterProvider    metric.MeterProvider
	metricsNamespace string
	corsEnabled      bool
	corsAllowOrigins string
}

// Option customizes the server beyond its required dependencies.
type Option func(*Server)

// WithOrderRoutes registers the order endpoints under /v1.
func WithOrderRoutes(handler *orderHTTP.OrderHandler) Option {
	return func(s *Server) {
		s.orderHandler = handler
	}
}

// WithHTTPMetrics records per-request counters and durations through the
// given meter provider.
func WithHTTPMetrics(meterProvider metric.MeterProvider, namespace string) Option {
	return func(s *Server) {
		s.meterProvider = meterProvider
		s.metricsNamespace = namespace
	}
}

// WithCORS enables cross-origin requests for the given comma-separated
// origin list.
func WithCORS(enabled bool, allowOrigins string) Option {
	return func(s *Server) {
		s.corsEnabled = enabled
		s.corsAllowOrigins = allowOrigins
	}
}

// NewServer creates a new HTTP server. The db handle backs the readiness
// probe; a nil db reports not ready.
func NewServer(
	db *sql.DB,
	host string,
	port int,
	logger *slog.Logger,
	options ...Option,
) *Server {
	server := &Server{
		db:     db,
		logger: logger,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}

	for _, option := range options {
		option(server)
	}

	return server
}

// SetupRouter builds the gin engine with middleware and routes.
func (s *Server) SetupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))

	if s.meterProvider != nil {
		router.Use(metrics.HTTPMetricsMiddleware(s.meterProvider, s.metricsNamespace))
	}

	if corsMiddleware := createCORSMiddleware(s.corsEnabled, s.corsAllowOrigins, s.logger); corsMiddleware != nil {
		router.Use(corsMiddleware)
	}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	if s.orderHandler != nil {
		v1 := router.Group("/v1")
		v1.POST("/orders", s.orderHandler.CreateHandler)
		v1.GET("/orders", s.orderHandler.ListHandler)
		v1.GET("/orders/:id", s.orderHandler.GetHandler)
	}

	return router
}

// Start starts the HTTP server.
func (s *Server) Start(ctx context.Context) error {
	if s.router == nil {
		s.router = s.SetupRouter()
	}
	s.server.Handler = s.router

	s.logger.Info("starting http server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}

// healthHandler reports process liveness.
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// readinessHandler reports whether the server can serve traffic, probing the
// database connection.
func (s *Server) readinessHandler(c *gin.Context) {
	components := gin.H{"database": "ok"}

	if s.db == nil {
		components["database"] = "error"
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "components": components})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		components["database"] = "error"
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "components": components})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready", "components": components})
}
