package steps

import (
	"context"
	"strconv"
	"strings"

	"tripplanner/internal/cache"
	"tripplanner/internal/planning"
	"tripplanner/internal/provider"
	"tripplanner/internal/trip"
)

const (
	DefaultKeyword       = "景点"
	DefaultVisitDuration = 120
)

// NewAttractions builds the POI search step. The search keyword is the first
// preference, or DefaultKeyword.
func NewAttractions(gw provider.Gateway, cfg GatherConfig) planning.Step {
	return &gatherer[provider.RawPlace, trip.Attraction]{
		name:  planning.StepAttractions,
		cache: cfg.Cache,
		retry: cfg.Retry,
		ttl:   ttlOr(cfg.TTL, cache.DefaultPOITTL),
		key: func(r trip.Request) string {
			return cache.AttractionsKey(r.City, r.PrimaryPreference(DefaultKeyword))
		},
		call: func(ctx context.Context, r trip.Request) ([]provider.RawPlace, error) {
			return gw.SearchPOI(ctx, provider.PlaceQuery{
				City:      r.City,
				Keywords:  r.PrimaryPreference(DefaultKeyword),
				CityLimit: true,
			})
		},
		parse: parseAttractions,
		wrap:  func(a []trip.Attraction) planning.Payload { return planning.AttractionsPayload{Attractions: a} },
	}
}

func parseAttractions(places []provider.RawPlace) ([]trip.Attraction, error) {
	out := make([]trip.Attraction, 0, len(places))
	for _, p := range places {
		category := p.Type.String()
		if category == "" {
			category = DefaultKeyword
		}
		out = append(out, trip.Attraction{
			Name:          p.Name.String(),
			Address:       p.Address.String(),
			Location:      ParseLocation(p.Location.String()),
			VisitDuration: DefaultVisitDuration,
			Description:   category + " - " + p.Address.String(),
			Category:      category,
			POIID:         p.ID.String(),
		})
	}
	return out, nil
}

// ParseLocation reads a "lng,lat" pair. Anything unparsable yields the zero location.
func ParseLocation(s string) trip.Location {
	lng, lat, ok := strings.Cut(strings.TrimSpace(s), ",")
	if !ok {
		return trip.Location{}
	}
	x, err1 := strconv.ParseFloat(strings.TrimSpace(lng), 64)
	y, err2 := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err1 != nil || err2 != nil {
		return trip.Location{}
	}
	return trip.Location{Longitude: x, Latitude: y}
}
