package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTravelMode(t *testing.T) {
	assert.Equal(t, ModeWalking, ParseTravelMode(" Walking "))
	assert.Equal(t, ModeTransit, ParseTravelMode("transit"))
	assert.Equal(t, ModeDriving, ParseTravelMode(""))
	assert.Equal(t, ModeDriving, ParseTravelMode("cycling"))
}

func TestAMapGeocode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/geocode/geo", r.URL.Path)
		assert.Equal(t, "景山前街4号", r.URL.Query().Get("address"))
		assert.Equal(t, "北京", r.URL.Query().Get("city"))
		_, _ = w.Write([]byte(`{"status":"1","geocodes":[{"formatted_address":"北京市东城区景山前街4号","adcode":"110101","location":"116.397,39.918"}]}`))
	}))
	defer srv.Close()

	g, err := NewAMapClient("k", srv.URL, time.Second).Geocode(context.Background(), "景山前街4号", "北京")
	require.NoError(t, err)
	assert.Equal(t, "116.397,39.918", g.Location.String())
	assert.Equal(t, "110101", g.Adcode.String())
}

func TestAMapGeocodeNoResultIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"1","geocodes":[]}`))
	}))
	defer srv.Close()

	_, err := NewAMapClient("k", srv.URL, time.Second).Geocode(context.Background(), "nowhere", "")
	assert.ErrorIs(t, err, ErrNoResult)
	var pErr *PermanentError
	assert.True(t, errors.As(err, &pErr))
}

func TestAMapRouteWalkingAndDriving(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		assert.Equal(t, "116.39,39.91", r.URL.Query().Get("origin"))
		assert.Equal(t, "116.27,39.99", r.URL.Query().Get("destination"))
		_, _ = w.Write([]byte(`{"status":"1","route":{"paths":[
			{"distance":"1200","duration":"900","steps":[{"instruction":"向北步行","road":"南池子大街","distance":"1200","duration":"900"}]},
			{"distance":"9999","duration":"9999","steps":[]}
		]}}`))
	}))
	defer srv.Close()

	c := NewAMapClient("k", srv.URL, time.Second)
	q := RouteQuery{Origin: "116.39,39.91", Destination: "116.27,39.99", Mode: ModeWalking}
	r, err := c.Route(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, "1200", r.Distance.String())
	require.Len(t, r.Steps, 1)
	assert.Equal(t, "南池子大街", r.Steps[0].Road.String())

	q.Mode = "boat"
	_, err = c.Route(context.Background(), q)
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/v3/direction/walking", "/v3/direction/driving"}, paths)
}

func TestAMapRouteTransit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/direction/transit/integrated", r.URL.Path)
		assert.Equal(t, "北京", r.URL.Query().Get("city"))
		assert.Equal(t, "北京", r.URL.Query().Get("cityd"))
		_, _ = w.Write([]byte(`{"status":"1","route":{"transits":[{"distance":"15000","duration":"3000","segments":[
			{"walking":{"steps":[{"instruction":"步行到天安门东站","distance":"300","duration":"240"}]},
			 "bus":{"buslines":[{"name":"地铁1号线","distance":"8000","duration":"1200","departure_stop":{"name":"天安门东"},"arrival_stop":{"name":"公主坟"}}]}},
			{"walking":{"steps":[]},"bus":{"buslines":[]}}
		]}]}}`))
	}))
	defer srv.Close()

	c := NewAMapClient("k", srv.URL, time.Second)
	_, err := c.Route(context.Background(), RouteQuery{Origin: "a", Destination: "b", Mode: ModeTransit})
	var pErr *PermanentError
	require.True(t, errors.As(err, &pErr))

	r, err := c.Route(context.Background(), RouteQuery{Origin: "a", Destination: "b", OriginCity: "北京", DestinationCity: "北京", Mode: ModeTransit})
	require.NoError(t, err)
	assert.Equal(t, "3000", r.Duration.String())
	require.Len(t, r.Steps, 2)
	assert.Equal(t, "步行到天安门东站", r.Steps[0].Instruction.String())
	assert.Equal(t, "乘坐地铁1号线，天安门东上车，公主坟下车", r.Steps[1].Instruction.String())
	assert.Equal(t, "地铁1号线", r.Steps[1].Road.String())
}
