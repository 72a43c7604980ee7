package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/trailmap/internal/model"
	"github.com/sakif/trailmap/internal/repository"
)

// RatingAggregator keeps a place's stored averageRating/reviewCount in step
// with its reviews.
//
// Recompute reads count and sum in ONE store query and writes the rounded
// average back. Two concurrent recomputes for the same place could otherwise
// interleave as read A, read B, write B, write A and leave A's older numbers
// behind, so recomputes for one place are serialized by a per-place lock.
// Different places do not wait for each other.
type RatingAggregator struct {
	reviews repository.ReviewRepository
	places  repository.PlaceRepository
	locks   *keyedMutex
	metrics Recorder
	logger  *slog.Logger
}

func NewRatingAggregator(
	reviews repository.ReviewRepository,
	places repository.PlaceRepository,
	metrics Recorder,
	logger *slog.Logger,
) *RatingAggregator {
	return &RatingAggregator{
		reviews: reviews,
		places:  places,
		locks:   newKeyedMutex(),
		metrics: recorderOrNoop(metrics),
		logger:  logger,
	}
}

// Recompute refreshes the stored aggregate of one place and returns it.
// Running it again without new reviews writes the same values.
func (a *RatingAggregator) Recompute(ctx context.Context, placeID string) (model.RatingSummary, error) {
	unlock, err := a.locks.Lock(ctx, placeID)
	if err != nil {
		return model.RatingSummary{}, fmt.Errorf("waiting to recompute place %s: %w", placeID, err)
	}
	defer unlock()

	start := time.Now()

	summary, err := a.reviews.SummarizeRatings(ctx, placeID)
	if err != nil {
		return model.RatingSummary{}, fmt.Errorf("summarizing ratings of place %s: %w", placeID, err)
	}

	if err := a.places.UpdatePlaceRating(ctx, placeID, summary); err != nil {
		return model.RatingSummary{}, fmt.Errorf("storing rating of place %s: %w", placeID, err)
	}

	a.metrics.RatingRecomputed(time.Since(start))
	a.logger.Debug("rating recomputed",
		slog.String("placeId", placeID),
		slog.Int("count", summary.Count),
		slog.Float64("average", summary.Average()),
	)

	return summary, nil
}

// keyedMutex hands out one lock per key and forgets it once nobody holds or
// waits for it, so the map does not grow with every place ever reviewed.
//
// Each lock is a one-slot channel rather than a sync.Mutex so a waiter can
// give up when its context ends.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	slot chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refLock)}
}

// Lock blocks until key is free or ctx is done. On success it returns the
// function that releases the key; on ctx.Done it returns ctx.Err().
func (k *keyedMutex) Lock(ctx context.Context, key string) (unlock func(), err error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{slot: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.slot <- struct{}{}:
	case <-ctx.Done():
		k.release(key, l)
		return nil, ctx.Err()
	}

	return func() {
		<-l.slot
		k.release(key, l)
	}, nil
}

func (k *keyedMutex) release(key string, l *refLock) {
	k.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}

// size is the number of keys currently tracked. Tests use it.
func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
