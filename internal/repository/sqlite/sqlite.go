// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// SQLite is an embedded database — it lives inside the Go binary as a single file.
// No separate database server to run. The mongo package offers a document store
// for deployments that already have one; SQLite is the default.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, so cross-compiling needs a C toolchain.
// modernc.org/sqlite is a pure Go translation of SQLite — works everywhere Go works.
//
// DATABASE/SQL OVERVIEW:
//   - sql.DB   — a connection pool (NOT a single connection!)
//   - sql.Tx   — a transaction (used for the cascade delete)
//   - sql.Row  — a single result row
//   - sql.Rows — multiple result rows (must be closed!)
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/trailmap/internal/repository"
)

// compile-time check that *DB implements every repository interface
var (
	_ repository.Store          = (*DB)(nil)
	_ repository.CascadeDeleter = (*DB)(nil)
)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/trailmap.db" → file-based database (persistent)
//   - ":memory:"         → in-memory database (tests)
//
// ONE CONNECTION:
// SQLite allows a single writer at a time, and every connection to ":memory:"
// is its OWN empty database. Capping the pool at one connection solves both:
// writers queue inside database/sql instead of failing with SQLITE_BUSY, and
// tests see one consistent in-memory database.
// The cost: code must never hold *sql.Rows open while issuing another query.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress (file databases only;
	// ":memory:" answers "memory" and carries on).
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite. With them on, a review can
	// never point at a place id that was never inserted.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies the database is reachable. Used by /healthz.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	return nil
}

// migrate creates the schema. CREATE ... IF NOT EXISTS makes it safe to run on
// every start.
//
// SCHEMA NOTES:
//   - places.categories is a JSON array of tags ('["hiking","fishing"]').
//   - places.average_rating / review_count are the denormalized aggregates the
//     rating aggregator writes. Reads recompute them with a JOIN.
//   - reviews.place_id REFERENCES places(id) WITHOUT "ON DELETE CASCADE": the
//     cascade is explicit in DeletePlaceCascade so it's visible and counted.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS places (
			id             TEXT PRIMARY KEY,
			name           TEXT NOT NULL,
			description    TEXT NOT NULL DEFAULT '',
			categories     TEXT NOT NULL DEFAULT '[]',
			latitude       REAL NOT NULL,
			longitude      REAL NOT NULL,
			address        TEXT NOT NULL DEFAULT '',
			city           TEXT NOT NULL DEFAULT '',
			zip            TEXT NOT NULL DEFAULT '',
			country        TEXT NOT NULL DEFAULT '',
			image          TEXT NOT NULL DEFAULT '',
			average_rating REAL NOT NULL DEFAULT 0,
			review_count   INTEGER NOT NULL DEFAULT 0,
			created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_places_created_at ON places(created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating places table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS reviews (
			id         TEXT PRIMARY KEY,
			place_id   TEXT NOT NULL REFERENCES places(id),
			rating     INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
			comment    TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_reviews_place_id ON reviews(place_id, created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating reviews table: %w", err)
	}

	// external_id is UNIQUE — each provider identity maps to exactly one row.
	// email is unique only when present (partial index).
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id          TEXT PRIMARY KEY,
			external_id TEXT NOT NULL UNIQUE,
			name        TEXT NOT NULL,
			email       TEXT NOT NULL DEFAULT '',
			avatar_url  TEXT NOT NULL DEFAULT '',
			role        TEXT NOT NULL DEFAULT 'user',
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email) WHERE email != '';
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows, so one scan function
// serves GetPlace and ListPlaces.
type scanner interface {
	Scan(dest ...any) error
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
