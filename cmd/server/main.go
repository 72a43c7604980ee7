// Package main is the entry point for the trailmap server.
//
// main stays minimal:
//  1. Load .env (if present) and read configuration from the environment
//  2. Build the logger
//  3. Hand everything to server.New and block in Start
//
// All actual logic lives in the internal packages.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/sakif/trailmap/internal/logging"
	"github.com/sakif/trailmap/internal/server"
)

func main() {
	// A missing .env is normal in production, where the environment is set
	// by the process manager.
	envErr := godotenv.Load()

	logger := logging.New(os.Stdout, logging.ParseLevel(os.Getenv("LOG_LEVEL")), os.Getenv("LOG_FORMAT"))
	slog.SetDefault(logger)

	if envErr != nil && !os.IsNotExist(envErr) {
		logger.Warn("could not load .env", slog.String("error", envErr.Error()))
	}

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if cfg.Store == server.StoreSQLite {
		// like `mkdir -p`
		dbDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	srv, err := server.New(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func loadConfig() (server.Config, error) {
	port, err := envInt("PORT", 8080)
	if err != nil {
		return server.Config{}, err
	}
	ttl, err := envDuration("PLACES_CACHE_TTL", time.Minute)
	if err != nil {
		return server.Config{}, err
	}
	// Redis treats a zero TTL as "never expire".
	if ttl <= 0 {
		return server.Config{}, fmt.Errorf("PLACES_CACHE_TTL must be positive, got %s", ttl)
	}

	cfg := server.Config{
		Port:          port,
		Store:         envOr("STORE", server.StoreSQLite),
		DBPath:        envOr("DB_PATH", "data/trailmap.db"),
		MongoURI:      envOr("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase: envOr("MONGODB_DATABASE", "trailmap"),

		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		PlacesCacheTTL: ttl,

		// IDENTITY_SECRET must be a long random string: openssl rand -hex 32
		IdentitySecret: os.Getenv("IDENTITY_SECRET"),
		IdentityIssuer: envOr("IDENTITY_ISSUER", "trailmap"),

		ClaimsAPIURL:       os.Getenv("CLAIMS_API_URL"),
		ClaimsTokenURL:     os.Getenv("CLAIMS_TOKEN_URL"),
		ClaimsClientID:     os.Getenv("CLAIMS_CLIENT_ID"),
		ClaimsClientSecret: os.Getenv("CLAIMS_CLIENT_SECRET"),

		GitHubClientID:     os.Getenv("GITHUB_CLIENT_ID"),
		GitHubClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
		GitHubCallbackURL:  envOr("GITHUB_CALLBACK_URL", fmt.Sprintf("http://localhost:%d/auth/github/callback", port)),
	}

	if cfg.IdentitySecret == "" {
		return cfg, fmt.Errorf("IDENTITY_SECRET is required")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", key, v)
	}
	return n, nil
}

// envDuration accepts Go durations ("90s", "5m").
func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
