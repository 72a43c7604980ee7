// Package cache keeps the unfiltered place list in Redis.
//
// GET /places is the hottest read and the most expensive one (it joins every
// place to its reviews). The list is cached as one JSON value under a single
// key; any write that can change it (new place, deleted place, new review)
// deletes the key. The TTL bounds staleness if an invalidation is lost, e.g.
// when another instance wrote to the same database.
//
// GENERATIONS:
// A reader that missed, queried the store, and only then wrote the list back
// could overwrite a newer invalidation with its older snapshot. Every
// invalidation therefore also increments a generation counter. GetPlaces
// reports the generation it saw, and SetPlaces writes only while that
// generation is still current (WATCH on the counter, SET inside MULTI).
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/sakif/trailmap/internal/model"
)

const (
	placesKey     = "trailmap:places:all"
	generationKey = "trailmap:places:gen"
)

// Places is the Redis-backed place-list cache.
type Places struct {
	client *redis.Client
	ttl    time.Duration
}

// NewClient connects to Redis and checks the connection with PING.
func NewClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: connecting to redis at %s: %w", addr, err)
	}
	return client, nil
}

func NewPlaces(client *redis.Client, ttl time.Duration) *Places {
	return &Places{client: client, ttl: ttl}
}

// GetPlaces returns the cached list and the current generation. ok is false
// on a miss (redis.Nil), which is not an error; gen is still valid then and is
// what the caller passes to SetPlaces.
func (c *Places) GetPlaces(ctx context.Context) (places []model.Place, gen int64, ok bool, err error) {
	var genCmd *redis.StringCmd
	var listCmd *redis.StringCmd
	_, err = c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		genCmd = pipe.Get(ctx, generationKey)
		listCmd = pipe.Get(ctx, placesKey)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, false, fmt.Errorf("cache: reading places: %w", err)
	}

	gen, err = generation(genCmd)
	if err != nil {
		return nil, 0, false, err
	}

	raw, err := listCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, gen, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("cache: reading places: %w", err)
	}

	if err := json.Unmarshal(raw, &places); err != nil {
		return nil, 0, false, fmt.Errorf("cache: decoding places: %w", err)
	}
	return places, gen, true, nil
}

// SetPlaces stores places if gen is still the current generation. A stale
// gen, or an invalidation racing the write, drops the write silently: the
// next reader misses and loads fresh data.
func (c *Places) SetPlaces(ctx context.Context, gen int64, places []model.Place) error {
	raw, err := json.Marshal(places)
	if err != nil {
		return fmt.Errorf("cache: encoding places: %w", err)
	}

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := generation(tx.Get(ctx, generationKey))
		if err != nil {
			return err
		}
		if current != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, placesKey, raw, c.ttl)
			return nil
		})
		return err
	}, generationKey)
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cache: writing places: %w", err)
	}
	return nil
}

// InvalidatePlaces bumps the generation and drops the cached list in one
// MULTI/EXEC.
func (c *Places) InvalidatePlaces(ctx context.Context) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey)
		pipe.Del(ctx, placesKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache: invalidating places: %w", err)
	}
	return nil
}

// generation reads the counter; a missing key is generation 0.
func generation(cmd *redis.StringCmd) (int64, error) {
	gen, err := cmd.Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache: reading generation: %w", err)
	}
	return gen, nil
}
