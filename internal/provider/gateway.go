// Package provider reaches the POI, weather and lodging services through a
// single mapping-service gateway.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
)

// Gateway is the mapping-service contract. Every call may fail transiently;
// callers wrap calls in Do with a RetryPolicy.
type Gateway interface {
	SearchPOI(ctx context.Context, q PlaceQuery) ([]RawPlace, error)
	Forecast(ctx context.Context, city string) ([]RawCast, error)
	SearchLodging(ctx context.Context, q PlaceQuery) ([]RawPlace, error)
}

type PlaceQuery struct {
	City     string
	Keywords string
	// CityLimit restricts results to the city boundary.
	CityLimit bool
	Limit     int
}

// RawPlace is a place record as returned by the provider. Location is the
// provider's "lng,lat" string.
type RawPlace struct {
	ID       FlexString `json:"id"`
	Name     FlexString `json:"name"`
	Type     FlexString `json:"type"`
	Address  FlexString `json:"address"`
	Location FlexString `json:"location"`
	Tel      FlexString `json:"tel"`
}

// RawCast is one forecast day. Temperatures arrive as strings.
type RawCast struct {
	Date         FlexString `json:"date"`
	Week         FlexString `json:"week"`
	DayWeather   FlexString `json:"dayweather"`
	NightWeather FlexString `json:"nightweather"`
	DayTemp      FlexString `json:"daytemp"`
	NightTemp    FlexString `json:"nighttemp"`
	DayWind      FlexString `json:"daywind"`
	NightWind    FlexString `json:"nightwind"`
	DayPower     FlexString `json:"daypower"`
	NightPower   FlexString `json:"nightpower"`
}

// FlexString decodes a JSON string, number, null or array of strings. The
// mapping service encodes empty text fields as [].
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*f = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
	case b[0] == '[':
		var parts []FlexString
		if err := json.Unmarshal(b, &parts); err != nil {
			return err
		}
		ss := make([]string, 0, len(parts))
		for _, p := range parts {
			if p != "" {
				ss = append(ss, string(p))
			}
		}
		*f = FlexString(strings.Join(ss, ";"))
	default:
		*f = FlexString(string(b))
	}
	return nil
}

func (f FlexString) String() string { return strings.TrimSpace(string(f)) }
