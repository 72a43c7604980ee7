package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sakif/trailmap/internal/model"
)

type reviewDoc struct {
	ID        string    `bson:"_id"`
	PlaceID   string    `bson:"placeId"`
	Rating    int       `bson:"rating"`
	Comment   string    `bson:"comment"`
	CreatedAt time.Time `bson:"createdAt"`
}

// CreateReview inserts a review. MongoDB has no foreign keys; the review
// service checks the place exists before calling this.
func (db *DB) CreateReview(ctx context.Context, review *model.Review) error {
	review.ID = xid.New().String()
	review.CreatedAt = now()

	_, err := db.reviews.InsertOne(ctx, reviewDoc{
		ID:        review.ID,
		PlaceID:   review.PlaceID,
		Rating:    review.Rating,
		Comment:   review.Comment,
		CreatedAt: review.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("mongodb: creating review for place %s: %w", review.PlaceID, err)
	}
	return nil
}

// ListReviewsByPlace returns the reviews of one place, newest first.
func (db *DB) ListReviewsByPlace(ctx context.Context, placeID string) ([]model.Review, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})

	cursor, err := db.reviews.Find(ctx, bson.D{{Key: "placeId", Value: placeID}}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb: listing reviews of place %s: %w", placeID, err)
	}

	var docs []reviewDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongodb: decoding reviews: %w", err)
	}

	reviews := make([]model.Review, 0, len(docs))
	for _, d := range docs {
		reviews = append(reviews, model.Review{
			ID:        d.ID,
			PlaceID:   d.PlaceID,
			Rating:    d.Rating,
			Comment:   d.Comment,
			CreatedAt: d.CreatedAt,
		})
	}
	return reviews, nil
}

// DeleteReviewsByPlace removes every review of a place and reports how many.
func (db *DB) DeleteReviewsByPlace(ctx context.Context, placeID string) (int64, error) {
	res, err := db.reviews.DeleteMany(ctx, bson.D{{Key: "placeId", Value: placeID}})
	if err != nil {
		return 0, fmt.Errorf("mongodb: deleting reviews of place %s: %w", placeID, err)
	}
	return res.DeletedCount, nil
}

// SummarizeRatings groups the place's reviews server-side into one
// {count, sum} document. No reviews means no group, hence the zero summary.
func (db *DB) SummarizeRatings(ctx context.Context, placeID string) (model.RatingSummary, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "placeId", Value: placeID}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "sum", Value: bson.D{{Key: "$sum", Value: "$rating"}}},
		}}},
	}

	cursor, err := db.reviews.Aggregate(ctx, pipeline)
	if err != nil {
		return model.RatingSummary{}, fmt.Errorf("mongodb: summarizing ratings of place %s: %w", placeID, err)
	}

	var groups []model.RatingSummary
	if err := cursor.All(ctx, &groups); err != nil {
		return model.RatingSummary{}, fmt.Errorf("mongodb: decoding rating summary: %w", err)
	}
	if len(groups) == 0 {
		return model.RatingSummary{}, nil
	}
	return groups[0], nil
}
