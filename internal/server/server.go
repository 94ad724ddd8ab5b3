// Package server provides the HTTP server and routing for Folio.
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

	"github.com/folioanalytics/folio/internal/config"
	"github.com/folioanalytics/folio/internal/database"
	"github.com/folioanalytics/folio/internal/modules/analyzers"
	"github.com/folioanalytics/folio/internal/modules/flexreport"
	"github.com/folioanalytics/folio/internal/modules/history"
	historyhandlers "github.com/folioanalytics/folio/internal/modules/history/handlers"
	"github.com/folioanalytics/folio/internal/modules/imports"
	"github.com/folioanalytics/folio/internal/modules/rebalancing"
	"github.com/folioanalytics/folio/internal/modules/taxes"
)

// Config holds server configuration
type Config struct {
	Log         zerolog.Logger
	Config      config.Config
	PortfolioDB *database.DB
	CacheDB     *database.DB

	Flexreport  *flexreport.Service
	Taxes       *taxes.Service
	Rebalancing *rebalancing.Service
	Analyzers   *analyzers.Runner
	History     *history.Repository
	Imports     *imports.Repository
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	cfg    config.Config

	portfolioDB *database.DB
	cacheDB     *database.DB

	apiHandlers    *APIHandlers
	systemHandlers *SystemHandlers
	historyHandler *historyhandlers.Handler
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		log:         cfg.Log.With().Str("component", "server").Logger(),
		cfg:         cfg.Config,
		portfolioDB: cfg.PortfolioDB,
		cacheDB:     cfg.CacheDB,
	}

	s.apiHandlers = NewAPIHandlers(
		cfg.Flexreport,
		cfg.Taxes,
		cfg.Rebalancing,
		cfg.Analyzers,
		cfg.History,
		cfg.Imports,
		cfg.Config,
		cfg.Log,
	)
	s.systemHandlers = NewSystemHandlers(cfg.Log, cfg.Config.DataDir, cfg.PortfolioDB, cfg.CacheDB)
	s.historyHandler = historyhandlers.NewHandler(cfg.History, cfg.Log)

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
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/import", s.apiHandlers.HandleImport)
		r.Get("/import/jobs", s.apiHandlers.HandleListImportJobs)
		r.Get("/import/jobs/{jobID}", s.apiHandlers.HandleGetImportJob)

		r.Post("/taxes/wash-sales", s.apiHandlers.HandleWashSales)
		r.Post("/rebalancing/plan", s.apiHandlers.HandleRebalancingPlan)
		r.Post("/analysis/run", s.apiHandlers.HandleRunAnalysis)

		s.historyHandler.RegisterRoutes(r)

		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.systemHandlers.HandleSystemStatus)
			r.Get("/databases", s.systemHandlers.HandleDatabaseStats)
			r.Get("/disk", s.systemHandlers.HandleDiskUsage)
		})
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	if err := s.portfolioDB.QuickCheck(ctx); err != nil {
		s.log.Error().Err(err).Msg("Portfolio database unreachable")
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"status":%q}`, status)
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

// Router exposes the router for tests
func (s *Server) Router() http.Handler {
	return s.router
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
