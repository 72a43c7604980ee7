package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/trailmap/internal/model"
)

// CreateReview inserts a review. The caller has already checked that the
// place exists; the foreign key is the backstop if it was deleted since.
func (db *DB) CreateReview(ctx context.Context, review *model.Review) error {
	review.ID = xid.New().String()
	review.CreatedAt = time.Now().UTC()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO reviews (id, place_id, rating, comment, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		review.ID,
		review.PlaceID,
		review.Rating,
		review.Comment,
		review.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating review for place %s: %w", review.PlaceID, err)
	}

	return nil
}

// ListReviewsByPlace returns the reviews of one place, newest first.
// A place with no reviews (or no longer existing) yields an empty slice.
func (db *DB) ListReviewsByPlace(ctx context.Context, placeID string) ([]model.Review, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, place_id, rating, comment, created_at
		 FROM reviews
		 WHERE place_id = ?
		 ORDER BY created_at DESC, rowid DESC`,
		placeID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing reviews of place %s: %w", placeID, err)
	}
	defer rows.Close()

	reviews := []model.Review{}
	for rows.Next() {
		var r model.Review
		if err := rows.Scan(&r.ID, &r.PlaceID, &r.Rating, &r.Comment, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning review row: %w", err)
		}
		reviews = append(reviews, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating reviews: %w", err)
	}

	return reviews, nil
}

// DeleteReviewsByPlace removes every review of a place and reports how many.
func (db *DB) DeleteReviewsByPlace(ctx context.Context, placeID string) (int64, error) {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM reviews WHERE place_id = ?`, placeID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting reviews of place %s: %w", placeID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}

	return n, nil
}

// SummarizeRatings computes count and sum in a single statement, so both
// numbers come from the same snapshot of the table.
func (db *DB) SummarizeRatings(ctx context.Context, placeID string) (model.RatingSummary, error) {
	var s model.RatingSummary
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(rating), 0) FROM reviews WHERE place_id = ?`,
		placeID,
	).Scan(&s.Count, &s.Sum)
	if err != nil {
		return model.RatingSummary{}, fmt.Errorf("sqlite: summarizing ratings of place %s: %w", placeID, err)
	}

	return s, nil
}
