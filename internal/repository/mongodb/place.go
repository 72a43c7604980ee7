package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/sakif/trailmap/internal/apperror"
	"github.com/sakif/trailmap/internal/model"
)

type placeDoc struct {
	ID            string           `bson:"_id"`
	Name          string           `bson:"name"`
	Description   string           `bson:"description"`
	Category      []model.Category `bson:"category"`
	Position      model.Position   `bson:"position"`
	Address       string           `bson:"address"`
	City          string           `bson:"city"`
	Zip           string           `bson:"zip"`
	Country       string           `bson:"country"`
	Image         string           `bson:"image"`
	AverageRating float64          `bson:"averageRating"`
	ReviewCount   int              `bson:"reviewCount"`
	CreatedAt     time.Time        `bson:"createdAt"`
}

// placeRow is what the read pipeline yields: the stored document plus the
// count and sum computed by $lookup over the reviews collection.
//
// The fields are spelled out rather than embedding placeDoc inline: the
// driver's struct codec skips unexported embedded structs, which would leave
// every field but the two counts empty.
type placeRow struct {
	ID          string           `bson:"_id"`
	Name        string           `bson:"name"`
	Description string           `bson:"description"`
	Category    []model.Category `bson:"category"`
	Position    model.Position   `bson:"position"`
	Address     string           `bson:"address"`
	City        string           `bson:"city"`
	Zip         string           `bson:"zip"`
	Country     string           `bson:"country"`
	Image       string           `bson:"image"`
	CreatedAt   time.Time        `bson:"createdAt"`
	RatingCount int              `bson:"ratingCount"`
	RatingSum   int              `bson:"ratingSum"`
}

func (r placeRow) toModel() model.Place {
	p := model.Place{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Category:    r.Category,
		Position:    r.Position,
		Address:     r.Address,
		City:        r.City,
		Zip:         r.Zip,
		Country:     r.Country,
		Image:       r.Image,
		CreatedAt:   r.CreatedAt,
	}
	if p.Category == nil {
		p.Category = []model.Category{}
	}
	p.ApplySummary(model.RatingSummary{Count: r.RatingCount, Sum: r.RatingSum})
	return p
}

// withRatings returns the pipeline stages that join each place to its reviews
// and reduce them to ratingCount/ratingSum. The joined array is dropped before
// the documents leave the server.
func withRatings() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: reviewsCollection},
			{Key: "localField", Value: "_id"},
			{Key: "foreignField", Value: "placeId"},
			{Key: "as", Value: "reviews"},
		}}},
		{{Key: "$addFields", Value: bson.D{
			{Key: "ratingCount", Value: bson.D{{Key: "$size", Value: "$reviews"}}},
			{Key: "ratingSum", Value: bson.D{{Key: "$sum", Value: "$reviews.rating"}}},
		}}},
		{{Key: "$project", Value: bson.D{{Key: "reviews", Value: 0}}}},
	}
}

// CreatePlace inserts a new place and writes ID/CreatedAt back onto it.
func (db *DB) CreatePlace(ctx context.Context, place *model.Place) error {
	place.ID = xid.New().String()
	place.CreatedAt = now()
	place.AverageRating = 0
	place.ReviewCount = 0
	if place.Category == nil {
		place.Category = []model.Category{}
	}

	_, err := db.places.InsertOne(ctx, placeDoc{
		ID:          place.ID,
		Name:        place.Name,
		Description: place.Description,
		Category:    place.Category,
		Position:    place.Position,
		Address:     place.Address,
		City:        place.City,
		Zip:         place.Zip,
		Country:     place.Country,
		Image:       place.Image,
		CreatedAt:   place.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("mongodb: creating place: %w", err)
	}

	return nil
}

// GetPlace returns one place with aggregates computed from its reviews.
func (db *DB) GetPlace(ctx context.Context, id string) (*model.Place, error) {
	pipeline := append(mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "_id", Value: id}}}},
	}, withRatings()...)

	rows, err := db.aggregatePlaces(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("mongodb: getting place %s: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, apperror.NotFound("place", id)
	}

	p := rows[0].toModel()
	return &p, nil
}

// ListPlaces returns every place, newest first. _id (an xid, which sorts by
// creation time) breaks ties within the same millisecond.
func (db *DB) ListPlaces(ctx context.Context) ([]model.Place, error) {
	pipeline := append(mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}}},
	}, withRatings()...)

	rows, err := db.aggregatePlaces(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("mongodb: listing places: %w", err)
	}

	places := make([]model.Place, 0, len(rows))
	for _, r := range rows {
		places = append(places, r.toModel())
	}
	return places, nil
}

func (db *DB) aggregatePlaces(ctx context.Context, pipeline mongo.Pipeline) ([]placeRow, error) {
	cursor, err := db.places.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}

	var rows []placeRow
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// DeletePlace removes the place document only. Reviews are the caller's job.
func (db *DB) DeletePlace(ctx context.Context, id string) error {
	res, err := db.places.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return fmt.Errorf("mongodb: deleting place %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return apperror.NotFound("place", id)
	}
	return nil
}

// UpdatePlaceRating writes the denormalized aggregate onto the place document.
func (db *DB) UpdatePlaceRating(ctx context.Context, id string, summary model.RatingSummary) error {
	res, err := db.places.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "averageRating", Value: summary.Average()},
			{Key: "reviewCount", Value: summary.Count},
		}}},
	)
	if err != nil {
		return fmt.Errorf("mongodb: updating rating of place %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return apperror.NotFound("place", id)
	}
	return nil
}
