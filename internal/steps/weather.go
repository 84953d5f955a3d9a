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

func NewWeather(gw provider.Gateway, cfg GatherConfig) planning.Step {
	return &gatherer[provider.RawCast, trip.Weather]{
		name:  planning.StepWeather,
		cache: cfg.Cache,
		retry: cfg.Retry,
		ttl:   ttlOr(cfg.TTL, cache.DefaultWeatherTTL),
		key:   func(r trip.Request) string { return cache.WeatherKey(r.City) },
		call: func(ctx context.Context, r trip.Request) ([]provider.RawCast, error) {
			return gw.Forecast(ctx, r.City)
		},
		parse: parseForecast,
		wrap:  func(w []trip.Weather) planning.Payload { return planning.WeatherPayload{Weather: w} },
	}
}

func parseForecast(casts []provider.RawCast) ([]trip.Weather, error) {
	out := make([]trip.Weather, 0, len(casts))
	for _, c := range casts {
		out = append(out, trip.Weather{
			Date:          c.Date.String(),
			DayWeather:    c.DayWeather.String(),
			NightWeather:  c.NightWeather.String(),
			DayTemp:       parseTemp(c.DayTemp.String()),
			NightTemp:     parseTemp(c.NightTemp.String()),
			WindDirection: c.DayWind.String(),
			WindPower:     c.DayPower.String(),
		})
	}
	return out, nil
}

func parseTemp(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
