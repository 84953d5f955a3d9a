package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"tripplanner/internal/cache"
	"tripplanner/internal/provider"
	"tripplanner/internal/tracelog"
	"tripplanner/internal/trip"
)

// Navigator answers geocode and route lookups outside the planning graph. It
// shares the gatherers' cache and retry policy.
type Navigator struct {
	router provider.Router
	cache  cache.Store
	retry  provider.RetryPolicy
	ttl    time.Duration
}

func NewNavigator(r provider.Router, cfg GatherConfig) *Navigator {
	store := cfg.Cache
	if store == nil {
		store = cache.Disabled{}
	}
	return &Navigator{router: r, cache: store, retry: cfg.Retry, ttl: ttlOr(cfg.TTL, cache.DefaultPOITTL)}
}

// Geocode resolves address, optionally scoped to city.
func (n *Navigator) Geocode(ctx context.Context, address, city string) (trip.Location, error) {
	return cachedCall(ctx, n, cache.GeocodeKey(city, address), func(ctx context.Context) (trip.Location, error) {
		g, err := n.router.Geocode(ctx, address, city)
		if err != nil {
			return trip.Location{}, err
		}
		return ParseLocation(g.Location.String()), nil
	})
}

// Route geocodes both ends and plans the first route the provider offers.
func (n *Navigator) Route(ctx context.Context, req trip.RouteRequest) (trip.Route, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return trip.Route{}, err
	}
	mode := provider.ParseTravelMode(req.Mode)
	destCity := req.DestinationCity
	if destCity == "" {
		destCity = req.OriginCity
	}

	from, err := n.Geocode(ctx, req.Origin, req.OriginCity)
	if err != nil {
		return trip.Route{}, fmt.Errorf("geocode origin: %w", err)
	}
	to, err := n.Geocode(ctx, req.Destination, destCity)
	if err != nil {
		return trip.Route{}, fmt.Errorf("geocode destination: %w", err)
	}

	q := provider.RouteQuery{
		Origin:          coord(from),
		Destination:     coord(to),
		OriginCity:      req.OriginCity,
		DestinationCity: destCity,
		Mode:            mode,
	}
	route, err := cachedCall(ctx, n, cache.RouteKey(string(mode), q.Origin, q.Destination), func(ctx context.Context) (trip.Route, error) {
		raw, err := n.router.Route(ctx, q)
		if err != nil {
			return trip.Route{}, err
		}
		return parseRoute(raw), nil
	})
	if err != nil {
		return trip.Route{}, fmt.Errorf("plan %s route: %w", mode, err)
	}
	route.Origin, route.Destination, route.Mode = req.Origin, req.Destination, string(mode)
	route.OriginLocation, route.DestinationLocation = from, to
	return route.Summarize(), nil
}

func parseRoute(raw provider.RawRoute) trip.Route {
	r := trip.Route{
		DistanceMeters:  parseTemp(raw.Distance.String()),
		DurationSeconds: parseTemp(raw.Duration.String()),
		Steps:           make([]trip.RouteStep, 0, len(raw.Steps)),
	}
	for _, s := range raw.Steps {
		r.Steps = append(r.Steps, trip.RouteStep{
			Instruction:     s.Instruction.String(),
			Road:            s.Road.String(),
			DistanceMeters:  parseTemp(s.Distance.String()),
			DurationSeconds: parseTemp(s.Duration.String()),
		})
	}
	return r
}

func coord(l trip.Location) string {
	return strconv.FormatFloat(l.Longitude, 'f', -1, 64) + "," + strconv.FormatFloat(l.Latitude, 'f', -1, 64)
}

// cachedCall serves key from the cache or fetches it under the retry policy
// and stores the answer.
func cachedCall[T any](ctx context.Context, n *Navigator, key string, fetch func(context.Context) (T, error)) (T, error) {
	log := tracelog.Logger(ctx)
	if raw, ok := n.cache.Get(ctx, key); ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, nil
		}
		log.Warn("ignoring undecodable cache entry", "key", key)
	}
	v, err := provider.Do(ctx, n.retry, fetch)
	if err != nil {
		var zero T
		return zero, err
	}
	if raw, err := json.Marshal(v); err == nil && !n.cache.Set(ctx, key, raw, n.ttl) {
		log.Debug("cache write skipped", "key", key)
	}
	return v, nil
}
