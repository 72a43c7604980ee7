// Command setrole changes a user's stored role. It is the only way roles
// change; the next login of that user pushes the new role into the identity
// provider's claims.
//
//	setrole -subject "github|12345" -role admin
//
// It reads the same STORE / DB_PATH / MONGODB_* settings as the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/sakif/trailmap/internal/logging"
	"github.com/sakif/trailmap/internal/model"
	"github.com/sakif/trailmap/internal/repository"
	"github.com/sakif/trailmap/internal/server"
)

func main() {
	subject := flag.String("subject", "", "identity provider subject (externalId) of the user")
	role := flag.String("role", "", `new role: "user" or "admin"`)
	flag.Parse()

	_ = godotenv.Load()
	logger := logging.New(os.Stderr, logging.ParseLevel(os.Getenv("LOG_LEVEL")), os.Getenv("LOG_FORMAT"))

	if err := run(*subject, *role, logger); err != nil {
		logger.Error("setting role", slog.String("subject", *subject), slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(subject, role string, logger *slog.Logger) error {
	cfg := server.Config{
		Store:         envOr("STORE", server.StoreSQLite),
		DBPath:        envOr("DB_PATH", "data/trailmap.db"),
		MongoURI:      envOr("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase: envOr("MONGODB_DATABASE", "trailmap"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := server.OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	user, err := setRole(ctx, store, subject, role)
	if err != nil {
		return err
	}

	logger.Info("role updated",
		slog.String("userID", user.ID),
		slog.String("externalID", user.ExternalID),
		slog.String("role", user.Role),
	)
	return nil
}

func setRole(ctx context.Context, users repository.UserRepository, subject, role string) (*model.User, error) {
	if subject == "" {
		return nil, fmt.Errorf("-subject is required")
	}
	if role != model.RoleUser && role != model.RoleAdmin {
		return nil, fmt.Errorf("-role must be %q or %q, got %q", model.RoleUser, model.RoleAdmin, role)
	}

	user, err := users.GetUserByExternalID(ctx, subject)
	if err != nil {
		return nil, err
	}
	if err := users.SetUserRole(ctx, user.ID, role); err != nil {
		return nil, err
	}
	user.Role = role
	return user, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
