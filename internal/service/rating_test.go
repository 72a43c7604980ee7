package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/trailmap/internal/apperror"
	"github.com/sakif/trailmap/internal/model"
)

func TestRecompute(t *testing.T) {
	store := newMemStore()
	agg := NewRatingAggregator(store, store, nil, discardLogger())
	ctx := context.Background()

	place := &model.Place{Name: "p"}
	require.NoError(t, store.CreatePlace(ctx, place))

	s, err := agg.Recompute(ctx, place.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RatingSummary{}, s, "no reviews → 0/0")

	addReviews(t, store, place.ID, 4, 5, 3, 5)

	s, err = agg.Recompute(ctx, place.ID)
	require.NoError(t, err)
	assert.Equal(t, 4.3, s.Average())
	assert.Equal(t, 4, s.Count)

	// Idempotent.
	again, err := agg.Recompute(ctx, place.ID)
	require.NoError(t, err)
	assert.Equal(t, s, again)
	assert.Equal(t, s, store.stored[place.ID])
}

func TestRecompute_DeletedPlace(t *testing.T) {
	store := newMemStore()
	agg := NewRatingAggregator(store, store, nil, discardLogger())

	_, err := agg.Recompute(context.Background(), "gone")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
	assert.Equal(t, 0, agg.locks.size(), "lock released and forgotten on error")
}

func TestRecompute_ConcurrentReviewsAllCounted(t *testing.T) {
	store := newMemStore()
	agg := NewRatingAggregator(store, store, nil, discardLogger())
	svc := NewReviewService(store, store, agg, nil, nil, discardLogger())
	ctx := context.Background()

	place := &model.Place{Name: "busy"}
	require.NoError(t, store.CreatePlace(ctx, place))

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.CreateReview(ctx, ReviewInput{PlaceID: place.ID, Rating: intPtr(i%5 + 1), Comment: "c"})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// 50 reviews cycling 1..5 → sum 150, average 3.0
	assert.Equal(t, model.RatingSummary{Count: n, Sum: 150}, store.stored[place.ID])
	assert.Equal(t, 0, agg.locks.size())
}

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	k := newKeyedMutex()
	var inside, maxInside int32

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := k.Lock(context.Background(), "place-1")
			if err != nil {
				t.Error(err)
				return
			}
			cur := atomic.AddInt32(&inside, 1)
			for {
				old := atomic.LoadInt32(&maxInside)
				if cur <= old || atomic.CompareAndSwapInt32(&maxInside, old, cur) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, k.size())
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	k := newKeyedMutex()
	unlockA, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock, err := k.Lock(context.Background(), "b")
		if err == nil {
			unlock()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on key b blocked behind key a")
	}
}

func TestKeyedMutex_WaitHonoursContext(t *testing.T) {
	k := newKeyedMutex()
	unlock, err := k.Lock(context.Background(), "place-1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = k.Lock(ctx, "place-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, k.size(), "the abandoned wait must drop its reference")

	unlock()
	assert.Equal(t, 0, k.size())
}

func TestRecompute_CancelledWhileWaiting(t *testing.T) {
	store := newMemStore()
	agg := NewRatingAggregator(store, store, nil, discardLogger())
	place := &model.Place{Name: "Koli", Address: "Ridge 1"}
	require.NoError(t, store.CreatePlace(context.Background(), place))

	// hold the place's lock as a slow recompute would
	unlock, err := agg.locks.Lock(context.Background(), place.ID)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = agg.Recompute(ctx, place.ID)
	assert.ErrorIs(t, err, context.Canceled)
}
