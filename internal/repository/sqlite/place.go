package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/trailmap/internal/apperror"
	"github.com/sakif/trailmap/internal/model"
)

// selectPlaceWithRatings reads a place together with the count and sum of its
// reviews. LEFT JOIN keeps places that have no reviews (COUNT = 0, SUM = NULL,
// hence the COALESCE).
//
// The stored average_rating/review_count columns are deliberately NOT selected:
// reads always derive the aggregate from the reviews themselves.
const selectPlaceWithRatings = `
	SELECT p.id, p.name, p.description, p.categories, p.latitude, p.longitude,
	       p.address, p.city, p.zip, p.country, p.image, p.created_at,
	       COUNT(r.id), COALESCE(SUM(r.rating), 0)
	FROM places p
	LEFT JOIN reviews r ON r.place_id = p.id`

// CreatePlace inserts a new place. ID and CreatedAt are assigned here and
// written back onto the caller's struct (pointer receiver).
func (db *DB) CreatePlace(ctx context.Context, place *model.Place) error {
	place.ID = xid.New().String()
	place.CreatedAt = time.Now().UTC()
	place.AverageRating = 0
	place.ReviewCount = 0
	if place.Category == nil {
		place.Category = []model.Category{}
	}

	categories, err := json.Marshal(place.Category)
	if err != nil {
		return fmt.Errorf("sqlite: encoding categories: %w", err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO places (id, name, description, categories, latitude, longitude,
		                     address, city, zip, country, image, average_rating, review_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?)`,
		place.ID,
		place.Name,
		place.Description,
		string(categories),
		place.Position.Lat(),
		place.Position.Lng(),
		place.Address,
		place.City,
		place.Zip,
		place.Country,
		place.Image,
		place.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating place: %w", err)
	}

	return nil
}

// GetPlace returns one place with its aggregates computed from reviews.
// Returns apperror.ErrNotFound when the id does not exist.
func (db *DB) GetPlace(ctx context.Context, id string) (*model.Place, error) {
	row := db.conn.QueryRowContext(ctx,
		selectPlaceWithRatings+` WHERE p.id = ? GROUP BY p.id`,
		id,
	)

	place, err := scanPlace(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("place", id)
		}
		return nil, fmt.Errorf("sqlite: getting place %s: %w", id, err)
	}

	return place, nil
}

// ListPlaces returns every place, newest first. rowid breaks ties between
// places created within the same timestamp.
func (db *DB) ListPlaces(ctx context.Context) ([]model.Place, error) {
	rows, err := db.conn.QueryContext(ctx,
		selectPlaceWithRatings+` GROUP BY p.id ORDER BY p.created_at DESC, p.rowid DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing places: %w", err)
	}
	defer rows.Close()

	places := []model.Place{}
	for rows.Next() {
		p, err := scanPlace(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning place row: %w", err)
		}
		places = append(places, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating places: %w", err)
	}

	return places, nil
}

// DeletePlace removes only the place row. With foreign keys on, this fails
// while reviews still reference the place; callers wanting the cascade use
// DeletePlaceCascade.
func (db *DB) DeletePlace(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM places WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting place %s: %w", id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("place", id)
	}

	return nil
}

// DeletePlaceCascade deletes a place and all of its reviews in ONE transaction.
//
// TRANSACTIONS:
// Between BeginTx and Commit, other connections don't see our changes. If any
// step fails, the deferred Rollback undoes everything — no orphaned reviews,
// no place that lost half its reviews. After a successful Commit the deferred
// Rollback is a no-op (it returns sql.ErrTxDone, which we ignore).
func (db *DB) DeletePlaceCascade(ctx context.Context, id string) (int64, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	reviews, err := tx.ExecContext(ctx, `DELETE FROM reviews WHERE place_id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting reviews of place %s: %w", id, err)
	}
	reviewsDeleted, err := reviews.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}

	place, err := tx.ExecContext(ctx, `DELETE FROM places WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting place %s: %w", id, err)
	}
	n, err := place.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return 0, apperror.NotFound("place", id)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: committing cascade delete of %s: %w", id, err)
	}

	return reviewsDeleted, nil
}

// UpdatePlaceRating writes the denormalized aggregate onto the place row.
// Only the rating aggregator calls this.
func (db *DB) UpdatePlaceRating(ctx context.Context, id string, summary model.RatingSummary) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE places SET average_rating = ?, review_count = ? WHERE id = ?`,
		summary.Average(),
		summary.Count,
		id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating rating of place %s: %w", id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("place", id)
	}

	return nil
}

func scanPlace(s scanner) (*model.Place, error) {
	var (
		p          model.Place
		categories string
		lat, lng   float64
		summary    model.RatingSummary
	)

	if err := s.Scan(
		&p.ID, &p.Name, &p.Description, &categories, &lat, &lng,
		&p.Address, &p.City, &p.Zip, &p.Country, &p.Image, &p.CreatedAt,
		&summary.Count, &summary.Sum,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(categories), &p.Category); err != nil {
		return nil, fmt.Errorf("decoding categories of place %s: %w", p.ID, err)
	}
	if p.Category == nil {
		p.Category = []model.Category{}
	}
	p.Position = model.Position{lat, lng}
	p.ApplySummary(summary)

	return &p, nil
}
