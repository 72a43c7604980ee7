// Package repository declares the storage interfaces the service layer depends on.
//
// Two implementations live in sub-packages:
//   - repository/sqlite — embedded SQLite file (default)
//   - repository/mongo  — MongoDB document store
//
// The services only ever see these interfaces, so swapping the backend is one
// line in server.New.
package repository

import (
	"context"

	"github.com/sakif/trailmap/internal/model"
)

// PlaceRepository is the Place Store.
//
// GetPlace and ListPlaces return places whose AverageRating/ReviewCount are
// computed from the reviews at read time, NOT read from the stored columns.
// The stored columns are written only through UpdatePlaceRating.
type PlaceRepository interface {
	CreatePlace(ctx context.Context, place *model.Place) error
	GetPlace(ctx context.Context, id string) (*model.Place, error)
	// ListPlaces returns every place, newest first.
	ListPlaces(ctx context.Context) ([]model.Place, error)
	DeletePlace(ctx context.Context, id string) error
	UpdatePlaceRating(ctx context.Context, id string, summary model.RatingSummary) error
}

// CascadeDeleter is implemented by stores that can delete a place together
// with its reviews atomically (in one transaction).
//
// The place service checks for it with a type assertion; stores without
// transactions fall back to "reviews first, then the place".
type CascadeDeleter interface {
	DeletePlaceCascade(ctx context.Context, id string) (reviewsDeleted int64, err error)
}

// ReviewRepository is the Review Store.
type ReviewRepository interface {
	CreateReview(ctx context.Context, review *model.Review) error
	// ListReviewsByPlace returns reviews newest first; an empty slice (not an
	// error) when there are none.
	ListReviewsByPlace(ctx context.Context, placeID string) ([]model.Review, error)
	DeleteReviewsByPlace(ctx context.Context, placeID string) (int64, error)
	// SummarizeRatings returns count and sum in ONE storage-side query.
	SummarizeRatings(ctx context.Context, placeID string) (model.RatingSummary, error)
}

// UserRepository stores identities synced from the external provider.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByExternalID(ctx context.Context, externalID string) (*model.User, error)
	UpdateUserProfile(ctx context.Context, user *model.User) error
	// SetUserRole is the out-of-band role edit (cmd/setrole). The HTTP API
	// never changes roles.
	SetUserRole(ctx context.Context, id, role string) error
}

// Store bundles every repository plus lifecycle, so the composition root can
// hold a single value regardless of backend.
type Store interface {
	PlaceRepository
	ReviewRepository
	UserRepository
	Ping(ctx context.Context) error
	Close() error
}
