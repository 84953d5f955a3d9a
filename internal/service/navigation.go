package service

import (
	"context"
	"strings"

	"tripplanner/internal/trip"
)

// Geocode resolves an address through the mapping service.
func (p *Planner) Geocode(ctx context.Context, address, city string) (trip.Location, error) {
	if p.navigator == nil {
		return trip.Location{}, ErrUnavailable
	}
	if strings.TrimSpace(address) == "" {
		return trip.Location{}, &trip.ValidationError{Field: "address", Reason: "is required"}
	}
	return p.navigator.Geocode(ctx, strings.TrimSpace(address), strings.TrimSpace(city))
}

// Route plans a route between two addresses.
func (p *Planner) Route(ctx context.Context, req trip.RouteRequest) (trip.Route, error) {
	if p.navigator == nil {
		return trip.Route{}, ErrUnavailable
	}
	return p.navigator.Route(ctx, req)
}
