// Package mongodb implements the repository interfaces on top of MongoDB.
//
// DOCUMENT LAYOUT:
//   - places  { _id, name, description, category[], position[lat,lng], address,
//     city, zip, country, image, averageRating, reviewCount, createdAt }
//   - reviews { _id, placeId, rating, comment, createdAt }
//   - users   { _id, externalId, name, email, avatarUrl, role, createdAt, updatedAt }
//
// _id values are xid strings, same as the SQLite store, so ids look identical
// whichever backend is configured.
//
// NO CASCADE TRANSACTION:
// Multi-document transactions need a replica set. This store does not implement
// repository.CascadeDeleter, so the place service deletes reviews first and the
// place second.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sakif/trailmap/internal/repository"
)

var _ repository.Store = (*DB)(nil)

const (
	placesCollection  = "places"
	reviewsCollection = "reviews"
	usersCollection   = "users"
)

// DB holds the client and the three collections.
type DB struct {
	client  *mongo.Client
	places  *mongo.Collection
	reviews *mongo.Collection
	users   *mongo.Collection
}

// New connects to uri, verifies the connection and creates indexes.
func New(ctx context.Context, uri, database string) (*DB, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb: connecting: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb: pinging: %w", err)
	}

	db := client.Database(database)
	store := &DB{
		client:  client,
		places:  db.Collection(placesCollection),
		reviews: db.Collection(reviewsCollection),
		users:   db.Collection(usersCollection),
	}

	if err := store.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb: creating indexes: %w", err)
	}

	return store, nil
}

// ensureIndexes is idempotent: creating an index that already exists with the
// same keys and options is a no-op.
func (db *DB) ensureIndexes(ctx context.Context) error {
	if _, err := db.places.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}},
	}); err != nil {
		return fmt.Errorf("places: %w", err)
	}

	if _, err := db.reviews.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "placeId", Value: 1}, {Key: "createdAt", Value: -1}},
	}); err != nil {
		return fmt.Errorf("reviews: %w", err)
	}

	// email is unique only when present, mirroring the partial index in SQLite.
	_, err := db.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "externalId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "email", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"email": bson.M{"$gt": ""}}),
		},
	})
	if err != nil {
		return fmt.Errorf("users: %w", err)
	}

	return nil
}

// Ping verifies the server is reachable. Used by /healthz.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("mongodb: ping: %w", err)
	}
	return nil
}

// Close disconnects the client, giving in-flight operations a few seconds.
func (db *DB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return db.client.Disconnect(ctx)
}

// now returns the current time at the precision BSON dates keep (milliseconds),
// so the value written back onto the caller's struct equals what a later read
// returns.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
