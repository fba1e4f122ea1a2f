// Package http provides the HTTP server and handlers.
package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/jobrunner/geoflow/internal/application"
	"github.com/jobrunner/geoflow/internal/config"
	"github.com/jobrunner/geoflow/internal/ports/input"
)

// Syncer triggers a storage sync on demand.
type Syncer interface {
	TriggerSync(ctx context.Context) (application.SyncResult, error)
}

// MetricsExporter exposes request metrics.
type MetricsExporter interface {
	Handler() http.Handler
	Middleware(next http.Handler) http.Handler
}

// Services are the application services the server exposes. Sync and Metrics are optional.
type Services struct {
	Queries   input.QueryService
	Workflows input.WorkflowService
	Health    input.HealthChecker
	Sync      Syncer
	Metrics   MetricsExporter
}

// Server wraps the HTTP server with application handlers.
type Server struct {
	server      *http.Server
	router      *mux.Router
	queries     input.QueryService
	workflows   input.WorkflowService
	health      input.HealthChecker
	syncer      Syncer
	metrics     MetricsExporter
	metricsPath string
	logger      *slog.Logger
	config      config.ServerConfig
}

// NewServer creates a new HTTP server.
func NewServer(cfg config.ServerConfig, services Services, metricsPath string, logger *slog.Logger) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	s := &Server{
		queries:     services.Queries,
		workflows:   services.Workflows,
		health:      services.Health,
		syncer:      services.Sync,
		metrics:     services.Metrics,
		metricsPath: metricsPath,
		logger:      logger,
		config:      cfg,
	}

	s.router = s.setupRoutes()

	s.server = &http.Server{
		Addr:              cfg.Address(),
		Handler:           s.router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()

	r.Use(s.requestLog, s.recoverPanics)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
		r.Handle(s.metricsPath, s.metrics.Handler()).Methods(http.MethodGet)
	}

		r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/health/live", s.handleLiveness).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", s.handleReadiness).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/workflows", s.handleListWorkflows).Methods(http.MethodGet)
	api.HandleFunc("/workflows", s.handleRegisterWorkflow).Methods(http.MethodPost)
	api.HandleFunc("/workflows/{id}", s.handleGetWorkflow).Methods(http.MethodGet)
	api.HandleFunc("/workflows/{id}", s.handleDeleteWorkflow).Methods(http.MethodDelete)
	api.HandleFunc("/workflows/{id}/metadata", s.handleWorkflowMetadata).Methods(http.MethodGet)
	api.HandleFunc("/workflows/{id}/query", s.handleQuery).Methods(http.MethodPost)

	if s.syncer != nil {
		api.HandleFunc("/sync", s.handleSync).Methods(http.MethodPost)
	}

	r.HandleFunc("/openapi.json", s.handleOpenAPI).Methods(http.MethodGet)

	return r
}

// Router returns the router, for tests and embedding.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "address", s.config.Address())
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
