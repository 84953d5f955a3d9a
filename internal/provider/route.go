package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// TravelMode selects the routing profile.
type TravelMode string

const (
	ModeWalking TravelMode = "walking"
	ModeDriving TravelMode = "driving"
	ModeTransit TravelMode = "transit"
)

// ParseTravelMode maps a free-form mode onto a TravelMode. Unknown and empty
// values select driving.
func ParseTravelMode(s string) TravelMode {
	switch TravelMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeWalking:
		return ModeWalking
	case ModeTransit:
		return ModeTransit
	default:
		return ModeDriving
	}
}

// Router resolves addresses and plans routes between coordinates.
type Router interface {
	Geocode(ctx context.Context, address, city string) (RawGeocode, error)
	Route(ctx context.Context, q RouteQuery) (RawRoute, error)
}

// RouteQuery uses the provider's "lng,lat" coordinates. The cities are only
// consulted for transit.
type RouteQuery struct {
	Origin          string
	Destination     string
	OriginCity      string
	DestinationCity string
	Mode            TravelMode
}

type RawGeocode struct {
	FormattedAddress FlexString `json:"formatted_address"`
	Adcode           FlexString `json:"adcode"`
	Location         FlexString `json:"location"`
}

// RawRoute is the first path the provider proposes. Distance is in meters and
// Duration in seconds, both as the provider's strings.
type RawRoute struct {
	Distance FlexString
	Duration FlexString
	Steps    []RawRouteStep
}

type RawRouteStep struct {
	Instruction FlexString `json:"instruction"`
	Road        FlexString `json:"road"`
	Distance    FlexString `json:"distance"`
	Duration    FlexString `json:"duration"`
}

// ErrNoResult wraps answers that carried no geocode or path.
var ErrNoResult = errors.New("amap: no result")

func (c *AMapClient) Geocode(ctx context.Context, address, city string) (RawGeocode, error) {
	params := url.Values{}
	params.Set("address", strings.TrimSpace(address))
	if city = strings.TrimSpace(city); city != "" {
		params.Set("city", city)
	}
	var resp struct {
		Geocodes []RawGeocode `json:"geocodes"`
	}
	if err := c.get(ctx, "/v3/geocode/geo", params, &resp); err != nil {
		return RawGeocode{}, err
	}
	if len(resp.Geocodes) == 0 || resp.Geocodes[0].Location.String() == "" {
		return RawGeocode{}, Permanent(fmt.Errorf("%w: geocode %q", ErrNoResult, address))
	}
	return resp.Geocodes[0], nil
}

func (c *AMapClient) Route(ctx context.Context, q RouteQuery) (RawRoute, error) {
	params := url.Values{}
	params.Set("origin", strings.TrimSpace(q.Origin))
	params.Set("destination", strings.TrimSpace(q.Destination))
	if q.Mode == ModeTransit {
		return c.transitRoute(ctx, q, params)
	}
	path := "/v3/direction/driving"
	if q.Mode == ModeWalking {
		path = "/v3/direction/walking"
	}
	var resp struct {
		Route struct {
			Paths []struct {
				Distance FlexString     `json:"distance"`
				Duration FlexString     `json:"duration"`
				Steps    []RawRouteStep `json:"steps"`
			} `json:"paths"`
		} `json:"route"`
	}
	if err := c.get(ctx, path, params, &resp); err != nil {
		return RawRoute{}, err
	}
	if len(resp.Route.Paths) == 0 {
		return RawRoute{}, Permanent(fmt.Errorf("%w: %s route", ErrNoResult, ParseTravelMode(string(q.Mode))))
	}
	p := resp.Route.Paths[0]
	return RawRoute{Distance: p.Distance, Duration: p.Duration, Steps: p.Steps}, nil
}

// transitRoute flattens the first transit plan: walking legs keep their
// steps, bus and subway legs become one step per line.
func (c *AMapClient) transitRoute(ctx context.Context, q RouteQuery, params url.Values) (RawRoute, error) {
	city := strings.TrimSpace(q.OriginCity)
	if city == "" {
		return RawRoute{}, Permanent(fmt.Errorf("amap: transit route needs the origin city"))
	}
	params.Set("city", city)
	if dest := strings.TrimSpace(q.DestinationCity); dest != "" {
		params.Set("cityd", dest)
	}
	var resp struct {
		Route struct {
			Transits []struct {
				Distance FlexString `json:"distance"`
				Duration FlexString `json:"duration"`
				Segments []struct {
					Walking struct {
						Steps []RawRouteStep `json:"steps"`
					} `json:"walking"`
					Bus struct {
						Buslines []struct {
							Name          FlexString `json:"name"`
							Distance      FlexString `json:"distance"`
							Duration      FlexString `json:"duration"`
							DepartureStop struct {
								Name FlexString `json:"name"`
							} `json:"departure_stop"`
							ArrivalStop struct {
								Name FlexString `json:"name"`
							} `json:"arrival_stop"`
						} `json:"buslines"`
					} `json:"bus"`
				} `json:"segments"`
			} `json:"transits"`
		} `json:"route"`
	}
	if err := c.get(ctx, "/v3/direction/transit/integrated", params, &resp); err != nil {
		return RawRoute{}, err
	}
	if len(resp.Route.Transits) == 0 {
		return RawRoute{}, Permanent(fmt.Errorf("%w: transit route", ErrNoResult))
	}
	t := resp.Route.Transits[0]
	out := RawRoute{Distance: t.Distance, Duration: t.Duration}
	for _, seg := range t.Segments {
		out.Steps = append(out.Steps, seg.Walking.Steps...)
		if len(seg.Bus.Buslines) == 0 {
			continue
		}
		line := seg.Bus.Buslines[0]
		out.Steps = append(out.Steps, RawRouteStep{
			Instruction: FlexString(fmt.Sprintf("乘坐%s，%s上车，%s下车", line.Name, line.DepartureStop.Name, line.ArrivalStop.Name)),
			Road:        line.Name,
			Distance:    line.Distance,
			Duration:    line.Duration,
		})
	}
	return out, nil
}
