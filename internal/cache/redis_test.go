package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/trailmap/internal/model"
)

// Needs a running Redis:
//
//	REDIS_TEST_ADDR=localhost:6379 go test ./internal/cache/
func newTestCache(t *testing.T, ttl time.Duration) *Places {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	client, err := NewClient(context.Background(), addr, os.Getenv("REDIS_TEST_PASSWORD"))
	require.NoError(t, err)

	c := NewPlaces(client, ttl)
	t.Cleanup(func() {
		_ = c.InvalidatePlaces(context.Background())
		client.Close()
	})
	return c
}

func TestPlacesCache(t *testing.T) {
	c := newTestCache(t, time.Minute)
	ctx := context.Background()

	_, gen, ok, err := c.GetPlaces(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "empty cache should miss")

	in := []model.Place{{
		ID:            "p1",
		Name:          "Laavu",
		Category:      []model.Category{model.CategoryHiking},
		Position:      model.Position{61.5, 23.7},
		AverageRating: 4.3,
		ReviewCount:   4,
		CreatedAt:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}}
	require.NoError(t, c.SetPlaces(ctx, gen, in))

	out, _, ok, err := c.GetPlaces(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in, out)

	require.NoError(t, c.InvalidatePlaces(ctx))
	_, _, ok, err = c.GetPlaces(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "invalidated cache should miss")
}

func TestPlacesCache_Expires(t *testing.T) {
	c := newTestCache(t, 50*time.Millisecond)
	ctx := context.Background()

	_, gen, _, err := c.GetPlaces(ctx)
	require.NoError(t, err)
	require.NoError(t, c.SetPlaces(ctx, gen, []model.Place{}))
	time.Sleep(150 * time.Millisecond)

	_, _, ok, err := c.GetPlaces(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPlacesCache_StaleWriteIsDropped(t *testing.T) {
	c := newTestCache(t, time.Minute)
	ctx := context.Background()

	// a reader misses and goes to the store...
	_, gen, ok, err := c.GetPlaces(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	before := []model.Place{{ID: "p1", ReviewCount: 0}}

	// ...a review lands and invalidates meanwhile...
	require.NoError(t, c.InvalidatePlaces(ctx))

	// ...and the reader's old snapshot must not be cached.
	require.NoError(t, c.SetPlaces(ctx, gen, before))
	_, newGen, ok, err := c.GetPlaces(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "stale snapshot was cached")
	assert.Greater(t, newGen, gen)

	after := []model.Place{{ID: "p1", ReviewCount: 1, AverageRating: 5}}
	require.NoError(t, c.SetPlaces(ctx, newGen, after))
	out, _, ok, err := c.GetPlaces(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, out[0].ReviewCount)
}
