// Package service contains the business rules of trailmap.
//
// THE LAYERS:
//
//	Handler (HTTP)      → parses requests, writes responses
//	Service (this)      → access checks, validation, orchestration
//	Repository (data)   → reads/writes the store
//
// Services take repository INTERFACES, never *sqlite.DB or *mongodb.DB, so
// tests inject in-memory fakes and the server picks the backend in one place.
// Nothing here knows about HTTP: errors are apperror values that the handler
// maps to status codes.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/sakif/trailmap/internal/model"
)

// Recorder receives domain events for metrics. *metrics.Metrics implements it.
type Recorder interface {
	PlaceCreated()
	PlaceDeleted(reviewsDeleted int64)
	ReviewCreated(rating int)
	RatingRecomputed(d time.Duration)
	UserLoggedIn(provider string, created bool)
}

type noopRecorder struct{}

func (noopRecorder) PlaceCreated() {}
func (noopRecorder) PlaceDeleted(int64) {}
func (noopRecorder) ReviewCreated(int) {}
func (noopRecorder) RatingRecomputed(time.Duration) {}
func (noopRecorder) UserLoggedIn(string, bool) {}

func recorderOrNoop(r Recorder) Recorder {
	if r == nil {
		return noopRecorder{}
	}
	return r
}

// PlaceCache holds the unfiltered place list. *cache.Places implements it.
//
// The cache is an optimisation only: every error is logged and the service
// carries on against the store.
//
// gen is the cache generation GetPlaces observed. SetPlaces must drop the
// write when an InvalidatePlaces happened since, so a list read from the
// store before a write can never be cached after that write's invalidation.
type PlaceCache interface {
	GetPlaces(ctx context.Context) (places []model.Place, gen int64, ok bool, err error)
	SetPlaces(ctx context.Context, gen int64, places []model.Place) error
	InvalidatePlaces(ctx context.Context) error
}

type noCache struct{}

func (noCache) GetPlaces(context.Context) ([]model.Place, int64, bool, error) { return nil, 0, false, nil }
func (noCache) SetPlaces(context.Context, int64, []model.Place) error { return nil }
func (noCache) InvalidatePlaces(context.Context) error { return nil }

func cacheOrNone(c PlaceCache) PlaceCache {
	if c == nil {
		return noCache{}
	}
	return c
}

// invalidatePlaces drops the cached list after a write that changes it.
func invalidatePlaces(ctx context.Context, c PlaceCache, logger *slog.Logger) {
	if err := c.InvalidatePlaces(ctx); err != nil {
		logger.Warn("place cache invalidation failed", slog.String("error", err.Error()))
	}
}
