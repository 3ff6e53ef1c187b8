package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/peregrine/internal/domain"
	"github.com/opensource-finance/peregrine/internal/profiler"
	"github.com/opensource-finance/peregrine/internal/provision"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, provisioner *provision.Provisioner, prof *profiler.Profiler, project, version string) *Server {
	handler := NewHandler(repo, cache, bus, provisioner, prof, project, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// Profiling
	router.Post("/profile", handler.Profile)
	router.Post("/profile/inputs", handler.ProfileInputs)
	router.Get("/profile/reports", handler.ListProfileReports)

	// Project setup and journal
	router.Post("/setup", handler.Setup)
	router.Get("/journal", handler.Journal)
	router.Get("/status", handler.Journal)

	// Individual resource management
	router.Route("/resources", func(r chi.Router) {
		r.Post("/entity-types", handler.CreateEntityType)
		r.Delete("/entity-types/{name}", handler.DeleteEntityType)
		r.Post("/event-types", handler.CreateEventType)
		r.Delete("/event-types/{name}", handler.DeleteEventType)
		r.Post("/labels", handler.CreateLabels)
		r.Delete("/labels/{name}", handler.DeleteLabel)
		r.Post("/variables", handler.CreateVariables)
		r.Delete("/variables/{name}", handler.DeleteVariable)
		r.Post("/outcomes", handler.CreateOutcomes)
		r.Delete("/outcomes/{name}", handler.DeleteOutcome)
		r.Post("/rules", handler.CreateRules)
		r.Delete("/rules/{ruleId}", handler.DeleteRule)
	})

	// Model lifecycle
	router.Route("/models", func(r chi.Router) {
		r.Post("/train", handler.Train)
		r.Get("/status", handler.ModelStatus)
		r.Post("/activate", handler.Activate)
		r.Post("/deactivate", handler.Deactivate)
		r.Post("/deploy", handler.Deploy)
		r.Delete("/deploy", handler.Teardown)
	})

	// Prediction
	router.Post("/predict", handler.Predict)
	router.Post("/predict/batch", handler.BatchPredict)
	router.Post("/predict/batch/async", handler.BatchPredictAsync)
	router.Get("/predictions/{eventId}", handler.GetPrediction)

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
