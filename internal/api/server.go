// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/review-backfill/internal/logging"
	"github.com/review-backfill/internal/models"
	"github.com/review-backfill/internal/service"
)

// BackfillServiceInterface defines the interface for backfill operations
type BackfillServiceInterface interface {
	Run(ctx context.Context, req *service.RunRequest) (*models.BackfillResult, error)
	GetJob(ctx context.Context, jobID string) (*models.BackfillJob, error)
}

// Server represents the HTTP API server.
type Server struct {
	router       *mux.Router
	httpServer   *http.Server
	backfill     BackfillServiceInterface
	entitlements service.EntitlementChecker
	config       *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestsPerSec  float64
	Burst           int

	// Request shaping for POST /backfill
	DefaultMaxCustomers int
	MaxCustomersCap     int
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	backfill BackfillServiceInterface,
	entitlements service.EntitlementChecker,
) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		backfill:     backfill,
		entitlements: entitlements,
		config:       config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RequestsPerSec, s.config.Burst)

	// Middleware order matters: logging wraps everything, rate limiting
	// runs after CORS so preflights are never throttled.
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	s.router.HandleFunc("/backfill", s.handleRunBackfill).Methods("POST")
	s.router.HandleFunc("/backfill/jobs/{id}", s.handleGetJob).Methods("GET")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "review-backfill",
	})
}

// Handler exposes the configured router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.GetGlobalLogger().WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.GetGlobalLogger().Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
