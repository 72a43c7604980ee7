// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the composition root: it opens the store, the optional
// Redis cache, the identity pieces and the metrics registry, wires them into
// services and handlers, and mounts the routes. main.go only reads config and
// calls New + Start.
//
// DEPENDENCY INJECTION FLOW:
//
//	Config → OpenStore (sqlite | mongo) ─┐
//	       → cache.Places (optional) ────┼→ services → handlers → chi routes
//	       → TokenService / Gate / claims┘
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
	"github.com/go-redis/redis/v8"

	"github.com/sakif/trailmap/internal/auth"
	"github.com/sakif/trailmap/internal/cache"
	"github.com/sakif/trailmap/internal/handler"
	"github.com/sakif/trailmap/internal/metrics"
	"github.com/sakif/trailmap/internal/middleware"
	"github.com/sakif/trailmap/internal/model"
	"github.com/sakif/trailmap/internal/repository"
	"github.com/sakif/trailmap/internal/repository/mongodb"
	sqliteRepo "github.com/sakif/trailmap/internal/repository/sqlite"
	"github.com/sakif/trailmap/internal/service"
)

const (
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"
)

// Config holds server configuration. Empty optional fields switch the
// matching feature off (no Redis → no cache, no GitHub id → no OAuth routes,
// no claims URL → in-memory claims).
type Config struct {
	Port int

	Store         string // StoreSQLite or StoreMongo
	DBPath        string
	MongoURI      string
	MongoDatabase string

	RedisAddr      string
	RedisPassword  string
	PlacesCacheTTL time.Duration

	IdentitySecret string
	IdentityIssuer string

	ClaimsAPIURL       string
	ClaimsTokenURL     string
	ClaimsClientID     string
	ClaimsClientSecret string

	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string
}

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the store and the Redis client. Close releases both; Start
// calls it after the HTTP server has drained.
type Server struct {
	router  *chi.Mux
	config  Config
	logger  *slog.Logger
	store   repository.Store
	redis   *redis.Client // nil when caching is off
	metrics *metrics.Metrics
}

// OpenStore opens the backend named by cfg.Store. cmd/setrole uses it too.
func OpenStore(ctx context.Context, cfg Config) (repository.Store, error) {
	switch cfg.Store {
	case "", StoreSQLite:
		return sqliteRepo.New(cfg.DBPath)
	case StoreMongo:
		return mongodb.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		return nil, fmt.Errorf("unknown store %q (want %q or %q)", cfg.Store, StoreSQLite, StoreMongo)
	}
}

// New builds the whole dependency graph. On error every resource opened so
// far is closed again.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.IdentitySecret, cfg.IdentityIssuer)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		store:   store,
		metrics: metrics.New(),
	}

	// PlaceCache must stay a nil interface when Redis is off, not a nil *cache.Places.
	var placeCache service.PlaceCache
	if cfg.RedisAddr != "" {
		client, err := cache.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		s.redis = client
		placeCache = cache.NewPlaces(client, cfg.PlacesCacheTTL)
	}

	s.setupRoutes(ctx, tokens, placeCache)

	return s, nil
}

// claimsManager picks the provider admin client when one is configured.
func (s *Server) claimsManager(ctx context.Context) auth.ClaimsManager {
	if s.config.ClaimsAPIURL == "" {
		s.logger.Warn("CLAIMS_API_URL not set: role claims are kept in memory only")
		return auth.NewMemoryClaims()
	}
	return auth.NewAdminClient(ctx,
		s.config.ClaimsAPIURL,
		s.config.ClaimsTokenURL,
		s.config.ClaimsClientID,
		s.config.ClaimsClientSecret,
	)
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /healthz               → store ping
// GET    /metrics               → Prometheus scrape
// GET    /places                → list (q, category filters)
// GET    /places/{id}           → one place
// POST   /places                → create            [admin]
// DELETE /places/{id}           → delete + cascade  [admin]
// GET    /reviews?placeId=      → reviews of a place
// POST   /reviews               → add a review
// POST   /auth/login            → sync user from a provider token
// POST   /auth/logout           → clear the token cookie
// GET    /auth/me               → current user      [any identity]
// GET    /auth/github/login     → OAuth redirect    (when configured)
// GET    /auth/github/callback  → OAuth callback    (when configured)
//
// MIDDLEWARE ORDER MATTERS:
// RequestID first so the logger can print it; Recoverer inside the logger
// and metrics so a panic is still logged and counted as a 500.
func (s *Server) setupRoutes(ctx context.Context, tokens *auth.TokenService, placeCache service.PlaceCache) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(s.metrics.Middleware)
	s.router.Use(chimiddleware.Recoverer)

	gate := auth.NewGate(tokens)

	aggregator := service.NewRatingAggregator(s.store, s.store, s.metrics, s.logger)
	placeService := service.NewPlaceService(s.store, s.store, placeCache, s.metrics, s.logger)
	reviewService := service.NewReviewService(s.store, s.store, aggregator, placeCache, s.metrics, s.logger)
	authService := service.NewAuthService(s.store, tokens, tokens, s.claimsManager(ctx), s.metrics, s.logger)

	var github handler.OAuthProvider
	if s.config.GitHubClientID != "" {
		github = auth.NewGitHubProvider(s.config.GitHubClientID, s.config.GitHubClientSecret, s.config.GitHubCallbackURL)
	} else {
		s.logger.Warn("GITHUB_CLIENT_ID not set: GitHub login routes are disabled")
	}

	places := handler.NewPlaceHandler(placeService, s.logger)
	reviews := handler.NewReviewHandler(reviewService, s.logger)
	authHandler := handler.NewAuthHandler(authService, github, s.logger)
	health := handler.NewHealthHandler(s.store, s.logger)

	s.router.Get("/healthz", health.HandleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())

	s.router.Group(func(r chi.Router) {
		// attach the identity when one is presented; the admin routes below
		// additionally require it
		r.Use(gate.Optional)

		r.Route("/places", func(r chi.Router) {
			r.Get("/", places.HandleList)
			r.Get("/{id}", places.HandleGet)
			r.With(gate.Require(model.RoleAdmin)).Post("/", places.HandleCreate)
			r.With(gate.Require(model.RoleAdmin)).Delete("/{id}", places.HandleDelete)
		})

		r.Route("/reviews", func(r chi.Router) {
			r.Get("/", reviews.HandleList)
			r.Post("/", reviews.HandleCreate)
		})

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authHandler.HandleLogin)
			r.Post("/logout", authHandler.HandleLogout)
			r.With(gate.Require("")).Get("/me", authHandler.HandleMe)

			if github != nil {
				r.Get("/github/login", authHandler.HandleGitHubLogin)
				r.Get("/github/callback", authHandler.HandleGitHubCallback)
			}
		})
	})
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the store and the Redis client.
func (s *Server) Close() error {
	var errs []error
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing redis: %w", err))
		}
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}
	return errors.Join(errs...)
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Close the store and Redis (deferred, so it also runs on a listen error)
func (s *Server) Start() error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Error("closing resources", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("store", s.config.Store),
			slog.Bool("cache", s.redis != nil),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
