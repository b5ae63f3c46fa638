// Package server provides the HTTP server and routing for Meridian.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/meridian-energy/meridian/internal/config"
	"github.com/meridian-energy/meridian/internal/database"
	"github.com/meridian-energy/meridian/internal/modules/results"
	"github.com/meridian-energy/meridian/internal/modules/runs"
)

// Config holds server configuration
type Config struct {
	Log        zerolog.Logger
	Config     *config.Config
	ResultsDB  *database.DB
	Repository *results.Repository
	RunService *runs.Service
	Hub        *ProgressHub
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	resultsDB      *database.DB
	runHandlers    *RunHandlers
	systemHandlers *SystemHandlers
	hub            *ProgressHub
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		cfg:            cfg.Config,
		resultsDB:      cfg.ResultsDB,
		runHandlers:    NewRunHandlers(cfg.Repository, cfg.RunService, cfg.Config, cfg.Log),
		systemHandlers: NewSystemHandlers(cfg.Log, cfg.Config.DataDir, cfg.ResultsDB, cfg.RunService),
		hub:            cfg.Hub,
	}

	s.setupMiddleware(cfg.Config.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/runs", func(r chi.Router) {
			r.Post("/", s.runHandlers.HandleStartRun)
			r.Get("/", s.runHandlers.HandleListRuns)
			r.Route("/{runID}", func(r chi.Router) {
				r.Get("/", s.runHandlers.HandleGetRun)
				r.Delete("/", s.runHandlers.HandleCancelRun)
				r.Get("/prices", s.runHandlers.HandleGetPrices)
				r.Get("/assets", s.runHandlers.HandleGetAssets)
				r.Get("/export.csv", s.runHandlers.HandleExportCSV)
				r.Get("/snapshots/{year}", s.runHandlers.HandleGetSnapshot)
				// Long-lived websocket progress stream.
				r.Get("/progress", s.hub.ServeHTTP)
			})
		})

		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.systemHandlers.HandleSystemStatus)
			r.Get("/database/stats", s.systemHandlers.HandleDatabaseStats)
			r.Get("/disk", s.systemHandlers.HandleDiskUsage)
		})
	})
}

// handleHealth reports liveness plus a cheap database check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.resultsDB.QuickCheck(r.Context()); err != nil {
		s.log.Warn().Err(err).Msg("Health check failed")
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]string{"status": status})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
