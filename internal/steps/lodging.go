package steps

import (
	"context"
	"strings"

	"tripplanner/internal/cache"
	"tripplanner/internal/planning"
	"tripplanner/internal/provider"
	"tripplanner/internal/trip"
)

const DefaultLodgingKeyword = "酒店"

// NewLodging builds the lodging search step, keyed on the accommodation
// preference.
func NewLodging(gw provider.Gateway, cfg GatherConfig) planning.Step {
	return &gatherer[provider.RawPlace, trip.Hotel]{
		name:  planning.StepLodging,
		cache: cfg.Cache,
		retry: cfg.Retry,
		ttl:   ttlOr(cfg.TTL, cache.DefaultPOITTL),
		key: func(r trip.Request) string {
			return cache.LodgingKey(r.City, lodgingKeyword(r))
		},
		call: func(ctx context.Context, r trip.Request) ([]provider.RawPlace, error) {
			return gw.SearchLodging(ctx, provider.PlaceQuery{
				City:      r.City,
				Keywords:  lodgingKeyword(r),
				CityLimit: true,
			})
		},
		parse: parseHotels,
		wrap:  func(h []trip.Hotel) planning.Payload { return planning.LodgingPayload{Hotels: h} },
	}
}

func lodgingKeyword(r trip.Request) string {
	if s := strings.TrimSpace(r.Accommodation); s != "" {
		return s
	}
	return DefaultLodgingKeyword
}

func parseHotels(places []provider.RawPlace) ([]trip.Hotel, error) {
	out := make([]trip.Hotel, 0, len(places))
	for _, p := range places {
		typ := p.Type.String()
		if typ == "" {
			typ = DefaultLodgingKeyword
		}
		out = append(out, trip.Hotel{
			Name:     p.Name.String(),
			Address:  p.Address.String(),
			Location: ParseLocation(p.Location.String()),
			Type:     typ,
		})
	}
	return out, nil
}
