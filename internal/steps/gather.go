// Package steps holds the units of work run by the planning graph.
package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tripplanner/internal/cache"
	"tripplanner/internal/planning"
	"tripplanner/internal/provider"
	"tripplanner/internal/tracelog"
	"tripplanner/internal/trip"
)

// GatherConfig is shared by the three data-gathering steps.
type GatherConfig struct {
	Cache cache.Store
	Retry provider.RetryPolicy
	// TTL of cached results. Zero selects the step default.
	TTL time.Duration
}

// gatherer is the common shape of a data-gathering step: cache lookup,
// provider call under retry, parse, cache write. R is the provider record
// type, T the domain type.
type gatherer[R, T any] struct {
	name  planning.StepName
	cache cache.Store
	retry provider.RetryPolicy
	ttl   time.Duration

	key   func(trip.Request) string
	call  func(context.Context, trip.Request) ([]R, error)
	parse func([]R) ([]T, error)
	wrap  func([]T) planning.Payload
}

func (g *gatherer[R, T]) Name() planning.StepName { return g.name }

func (g *gatherer[R, T]) Run(ctx context.Context, snap planning.State) (out planning.Outcome) {
	start := time.Now()
	log := tracelog.Logger(ctx).With("step", g.name)
	defer func() {
		if r := recover(); r != nil {
			out = g.failed(start, fmt.Errorf("%s panicked: %v", g.name, r))
			log.Error("step panicked", "panic", r)
		}
	}()

	store := g.cache
	if store == nil {
		store = cache.Disabled{}
	}
	key := g.key(snap.Request)
	if raw, ok := store.Get(ctx, key); ok {
		var items []T
		if err := json.Unmarshal(raw, &items); err == nil {
			log.Info("cache hit", "key", key, "count", len(items))
			return planning.Succeeded(g.name, time.Since(start), g.wrap(nonNil(items)))
		}
		log.Warn("ignoring undecodable cache entry", "key", key)
	}

	records, err := provider.Do(ctx, g.retry, func(ctx context.Context) ([]R, error) {
		return g.call(ctx, snap.Request)
	})
	if err != nil {
		return g.failed(start, err)
	}
	items, err := g.parse(records)
	if err != nil {
		return g.failed(start, fmt.Errorf("parse %s: %w", g.name, err))
	}
	items = nonNil(items)

	if raw, err := json.Marshal(items); err != nil {
		log.Warn("cache encode failed", "key", key, "error", err)
	} else if !store.Set(ctx, key, raw, g.ttl) {
		log.Debug("cache write skipped", "key", key)
	}
	log.Info("gathered", "count", len(items))
	return planning.Succeeded(g.name, time.Since(start), g.wrap(items))
}

func (g *gatherer[R, T]) failed(start time.Time, err error) planning.Outcome {
	return planning.Failed(g.name, time.Since(start), err, g.wrap([]T{}))
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func ttlOr(ttl, def time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	return def
}
