// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects storage, services, handlers,
// middleware and routes, and decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
// main.go loads config.Config and hands it to New, which builds:
//
//	sqlite.DB ─┬─ Users() ───────┐
//	           ├─ Clubs() ───────┤
//	           ├─ Memberships() ─┼─→ services ─→ handlers ─→ routes
//	           └─ Events() ──────┘
//	TokenService + Clubs + Memberships ─→ authz.Guard ─→ services, RequireAuth
//
// This is the "composition root" pattern: all dependencies are wired in one
// place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/campus-clubs/internal/auth"
	"github.com/sakif/campus-clubs/internal/authz"
	"github.com/sakif/campus-clubs/internal/config"
	"github.com/sakif/campus-clubs/internal/handler"
	"github.com/sakif/campus-clubs/internal/metrics"
	"github.com/sakif/campus-clubs/internal/middleware"
	sqliteRepo "github.com/sakif/campus-clubs/internal/repository/sqlite"
	"github.com/sakif/campus-clubs/internal/service"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection. Start closes it after graceful
// shutdown; callers that never Start (tests) call Close.
type Server struct {
	router  *chi.Mux
	config  config.Config
	logger  *slog.Logger
	db      *sqliteRepo.DB
	metrics *metrics.Metrics
}

// New opens the database and builds the router.
//
// IMPORT ALIAS:
// We import repository/sqlite as `sqliteRepo` to avoid confusion with
// the sqlite driver package.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	// === CREATE DATABASE ===
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		metrics: metrics.New(),
	}

	if err := s.setupRoutes(); err != nil {
		db.Close() // Clean up DB if route setup fails
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	POST /accounts/register              public, rate limited
//	POST /accounts/login                 public, rate limited
//	GET  /accounts/me                    bearer
//	PUT  /accounts/me                    bearer
//	GET  /clubs                          public
//	GET  /clubs/search?query=            public
//	GET  /clubs/{id}                     public
//	POST /clubs                          bearer
//	POST /clubs/{id}/join                bearer
//	GET  /clubs/{id}/members             bearer, member
//	PUT  /clubs/{id}/promote/{userId}    bearer, admin
//	GET  /events                         bearer
//	GET  /events/search?query=           bearer
//	GET  /events/{id}                    bearer, member
//	POST /events                         bearer, admin of clubId
//	GET  /recommendations                bearer
//	GET  /healthz                        public
//	GET  /metrics                        public
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID: assigns unique ID to each request (for tracing)
// 2. CapturePeer: records the socket address before anything can rewrite it
// 3. RealIP: extracts client IP from proxy headers (trusted for the limiter
//    only when the peer is in TRUSTED_PROXIES)
// 4. Logger, Instrument: see every response, including panics turned into 500s
// 5. Recoverer: catches panics and returns 500 instead of crashing
// 6. Timeout: cancels the request context after REQUEST_TIMEOUT
// 7. CORS: answers preflight requests before they reach a handler
func (s *Server) setupRoutes() error {
	tokens, err := auth.NewTokenService(s.config.JWTSecret, s.config.TokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords, err := auth.NewPasswordServiceWithCost(s.config.BcryptCost)
	if err != nil {
		return fmt.Errorf("creating password service: %w", err)
	}

	users := s.db.Users()
	clubs := s.db.Clubs()
	memberships := s.db.Memberships()
	events := s.db.Events()

	// === SERVICES ===
	// The guard is shared: every scoped operation asks the same policy.
	guard := authz.NewGuard(tokens, clubs, memberships)
	membershipService := service.NewMembershipService(memberships, guard, s.logger)
	authService := service.NewAuthService(users, memberships, tokens, passwords, s.logger)
	clubService := service.NewClubService(clubs, membershipService, guard, s.logger)
	eventService := service.NewEventService(events, guard, s.logger)
	recommendationService := service.NewRecommendationService(users, clubs, s.logger)

	// === HANDLERS ===
	authHandler := handler.NewAuthHandler(authService, s.metrics, s.logger)
	clubHandler := handler.NewClubHandler(clubService, s.logger)
	eventHandler := handler.NewEventHandler(eventService, s.logger)
	recommendationHandler := handler.NewRecommendationHandler(recommendationService, s.logger)
	healthHandler := handler.NewHealthHandler(s.db, s.logger)

	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(middleware.CapturePeer)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Instrument(s.metrics))
	s.router.Use(chimiddleware.Recoverer)
	if s.config.RequestTimeout > 0 {
		s.router.Use(chimiddleware.Timeout(s.config.RequestTimeout))
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Location"},
		MaxAge:         300,
	}))

	requireAuth := authz.RequireAuth(guard)
	clientKey := middleware.ClientKey(s.config.TrustedProxies)
	throttle := middleware.RateLimit(s.config.LoginRatePerMinute, clientKey, func(r *http.Request) {
		client, _ := clientKey(r)
		s.metrics.RateLimited(r.URL.Path)
		s.logger.Warn("rate limited",
			slog.String("path", r.URL.Path),
			slog.String("client", client),
		)
	})

	// === Operational Routes ===
	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())

	// === API Routes ===
	s.router.Route("/accounts", func(r chi.Router) {
		r.With(throttle).Post("/register", authHandler.HandleRegister)
		r.With(throttle).Post("/login", authHandler.HandleLogin)

		r.With(requireAuth).Get("/me", authHandler.HandleProfile)
		r.With(requireAuth).Put("/me", authHandler.HandleUpdateProfile)
	})

	s.router.Route("/clubs", func(r chi.Router) {
		r.Get("/", clubHandler.HandleList)
		r.Get("/search", clubHandler.HandleSearch)
		r.Get("/{id}", clubHandler.HandleGet)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/", clubHandler.HandleCreate)
			r.Post("/{id}/join", clubHandler.HandleJoin)
			r.Get("/{id}/members", clubHandler.HandleMembers)
			r.Put("/{id}/promote/{userId}", clubHandler.HandlePromote)
		})
	})

	s.router.Route("/events", func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/", eventHandler.HandleList)
		r.Get("/search", eventHandler.HandleSearch)
		r.Get("/{id}", eventHandler.HandleGet)
		r.Post("/", eventHandler.HandleCreate)
	})

	s.router.With(requireAuth).Get("/recommendations", recommendationHandler.HandleList)

	return nil
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Close the database connection (flushes WAL, releases file lock)
func (s *Server) Start() error {
	// Ensure the database is closed when the server stops.
	defer s.db.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to receive OS signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Channel to receive server errors
	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
			slog.Duration("tokenTTL", s.config.TokenTTL),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// Give in-flight requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
