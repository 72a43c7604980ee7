package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/trailmap/internal/apperror"
	"github.com/sakif/trailmap/internal/model"
)

const selectUser = `
	SELECT id, external_id, name, email, avatar_url, role, created_at, updated_at
	FROM users`

// CreateUser inserts a user synced from the identity provider.
//
// A second row for the same external_id (or the same non-empty email) violates
// a UNIQUE index; that comes back as apperror.ErrConflict so the auth service
// can tell "someone else got here first" apart from a broken database.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Role == "" {
		user.Role = model.RoleUser
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, external_id, name, email, avatar_url, role, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.ExternalID,
		user.Name,
		user.Email,
		user.AvatarURL,
		user.Role,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.ExternalID)
		}
		return fmt.Errorf("sqlite: inserting user (externalID=%s): %w", user.ExternalID, err)
	}

	return nil
}

// GetUserByID retrieves a user by their internal ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx, selectUser+` WHERE id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

// GetUserByExternalID retrieves a user by the identity provider's subject.
func (db *DB) GetUserByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx, selectUser+` WHERE external_id = ?`, externalID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", externalID)
		}
		return nil, fmt.Errorf("sqlite: getting user by external id %s: %w", externalID, err)
	}
	return u, nil
}

// UpdateUserProfile refreshes name, email and avatar. Role is NOT written
// here: it is managed out-of-band and only read during login.
func (db *DB) UpdateUserProfile(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET name = ?, email = ?, avatar_url = ?, updated_at = ?
		 WHERE id = ?`,
		user.Name,
		user.Email,
		user.AvatarURL,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.ID)
		}
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", user.ID)
	}

	return nil
}

// SetUserRole changes a user's role. The new role reaches the identity
// provider's claims on the user's next login.
func (db *DB) SetUserRole(ctx context.Context, id, role string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET role = ?, updated_at = ? WHERE id = ?`,
		role, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting role of user %s: %w", id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", id)
	}

	return nil
}

func scanUser(s scanner) (*model.User, error) {
	var u model.User
	if err := s.Scan(
		&u.ID, &u.ExternalID, &u.Name, &u.Email, &u.AvatarURL, &u.Role,
		&u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &u, nil
}
