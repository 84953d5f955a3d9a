package trip

import (
	"math"
	"strings"
)

// RouteRequest asks for a route between two addresses. Mode is one of
// walking, driving or transit; anything else plans a driving route.
type RouteRequest struct {
	Origin          string `json:"origin" validate:"notblank"`
	Destination     string `json:"destination" validate:"notblank"`
	OriginCity      string `json:"origin_city"`
	DestinationCity string `json:"destination_city"`
	Mode            string `json:"route_type"`
}

func (r RouteRequest) Normalize() RouteRequest {
	r.Origin = strings.TrimSpace(r.Origin)
	r.Destination = strings.TrimSpace(r.Destination)
	r.OriginCity = strings.TrimSpace(r.OriginCity)
	r.DestinationCity = strings.TrimSpace(r.DestinationCity)
	r.Mode = strings.ToLower(strings.TrimSpace(r.Mode))
	return r
}

func (r RouteRequest) Validate() error {
	return check(r)
}

type RouteStep struct {
	Instruction     string  `json:"instruction"`
	Road            string  `json:"road,omitempty"`
	DistanceMeters  float64 `json:"distance_meters"`
	DurationSeconds float64 `json:"duration_seconds"`
}

type Route struct {
	Origin              string      `json:"origin"`
	Destination         string      `json:"destination"`
	Mode                string      `json:"route_type"`
	OriginLocation      Location    `json:"origin_location"`
	DestinationLocation Location    `json:"destination_location"`
	DistanceMeters      float64     `json:"distance_meters"`
	DurationSeconds     float64     `json:"duration_seconds"`
	DistanceKm          float64     `json:"distance_km"`
	DurationMinutes     float64     `json:"duration_minutes"`
	Description         string      `json:"description"`
	Steps               []RouteStep `json:"steps"`
}

// Summarize fills the derived fields: kilometers to two decimals, minutes to
// one, and a description joined from the step instructions.
func (r Route) Summarize() Route {
	r.DistanceKm = math.Round(r.DistanceMeters/10) / 100
	r.DurationMinutes = math.Round(r.DurationSeconds/6) / 10
	parts := make([]string, 0, len(r.Steps))
	for _, s := range r.Steps {
		if s.Instruction != "" {
			parts = append(parts, s.Instruction)
		}
	}
	r.Description = strings.Join(parts, "；")
	if r.Steps == nil {
		r.Steps = []RouteStep{}
	}
	return r
}
