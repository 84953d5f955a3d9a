// Package cache memoizes provider results. Keys are opaque strings scoped by a
// step-specific prefix; values are serialized result lists.
package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

var ErrNotFound = errors.New("cache: entry not found")

// Store is the cache contract used by the data-gathering steps. Implementations
// must be safe for concurrent use. A failing backend reports a miss from Get and
// false from Set; it never fails the caller.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool
}

// Invalidator drops entries ahead of their expiry. Clear removes every key
// under prefix, where "weather" matches "weather:<city>"; an empty prefix
// removes everything.
type Invalidator interface {
	Delete(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context, prefix string) (int, error)
}

// InvalidatingStore is a Store whose entries can be dropped on demand.
type InvalidatingStore interface {
	Store
	Invalidator
}

// Key prefixes, one per result kind.
const (
	PrefixAttractions = "attractions"
	PrefixWeather     = "weather"
	PrefixLodging     = "lodging"
	PrefixGeocode     = "geocode"
	PrefixRoute       = "route"
)

// Default TTLs per result kind. Weather changes faster than places do.
const (
	DefaultPOITTL     = 2 * time.Hour
	DefaultWeatherTTL = 30 * time.Minute
)

func AttractionsKey(city, keyword string) string {
	return PrefixAttractions + ":" + part(city) + ":" + part(keyword)
}

func WeatherKey(city string) string {
	return PrefixWeather + ":" + part(city)
}

func LodgingKey(city, preference string) string {
	return PrefixLodging + ":" + part(city) + ":" + part(preference)
}

func GeocodeKey(city, address string) string {
	return PrefixGeocode + ":" + part(city) + ":" + part(address)
}

func RouteKey(mode, origin, destination string) string {
	return PrefixRoute + ":" + part(mode) + ":" + part(origin) + ":" + part(destination)
}

// underPrefix reports whether key belongs to prefix as Clear defines it.
func underPrefix(key, prefix string) bool {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		return true
	}
	return strings.HasPrefix(key, prefix+":")
}

func part(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), ":", "_")
}

// Disabled is a Store that never hits and never stores.
type Disabled struct{}

func (Disabled) Get(context.Context, string) ([]byte, bool) { return nil, false }

func (Disabled) Set(context.Context, string, []byte, time.Duration) bool { return false }

func (Disabled) Delete(context.Context, string) (bool, error) { return false, nil }

func (Disabled) Clear(context.Context, string) (int, error) { return 0, nil }
