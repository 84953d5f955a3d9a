package steps

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripplanner/internal/cache"
	"tripplanner/internal/planning"
	"tripplanner/internal/provider"
	"tripplanner/internal/trip"
)

func runStep(t *testing.T, step planning.Step, req trip.Request) *planning.State {
	t.Helper()
	st := planning.NewState("trace-test", "", req)
	st.Merge(step.Run(context.Background(), st.Snapshot()))
	return st
}

func TestAttractionsParsesProviderRecords(t *testing.T) {
	gw := &fakeGateway{places: samplePlaces()}
	st := runStep(t, NewAttractions(gw, GatherConfig{Retry: fastRetry}), beijingRequest())

	assert.Equal(t, planning.StatusCompleted, st.Status(planning.StepAttractions))
	require.Len(t, st.Attractions, 2)
	a := st.Attractions[0]
	assert.Equal(t, "故宫博物院", a.Name)
	assert.Equal(t, trip.Location{Longitude: 116.397, Latitude: 39.918}, a.Location)
	assert.Equal(t, 120, a.VisitDuration)
	assert.Equal(t, "风景名胜 - 景山前街4号", a.Description)
	assert.Equal(t, "B1", a.POIID)
	assert.Equal(t, trip.Location{}, st.Attractions[1].Location)
	assert.Equal(t, DefaultKeyword, st.Attractions[1].Category)
	_, hasErr := st.StepErrors[planning.StepAttractions]
	assert.False(t, hasErr)
	assert.Contains(t, st.StepTimings, planning.StepAttractions)
}

func TestWeatherParsesTemperatures(t *testing.T) {
	gw := &fakeGateway{casts: sampleCasts()}
	st := runStep(t, NewWeather(gw, GatherConfig{Retry: fastRetry}), beijingRequest())

	require.Len(t, st.Weather, 2)
	assert.Equal(t, float64(30), st.Weather[0].DayTemp)
	assert.Equal(t, "南", st.Weather[0].WindDirection)
	assert.Equal(t, "1-3", st.Weather[0].WindPower)
	assert.Equal(t, float64(0), st.Weather[1].DayTemp)
	assert.Equal(t, float64(17), st.Weather[1].NightTemp)
}

func TestLodgingDefaultsType(t *testing.T) {
	gw := &fakeGateway{hotels: []provider.RawPlace{{Name: "如家", Address: "东单", Location: "116.41,39.91"}}}
	st := runStep(t, NewLodging(gw, GatherConfig{Retry: fastRetry}), beijingRequest())

	require.Len(t, st.Hotels, 1)
	assert.Equal(t, DefaultLodgingKeyword, st.Hotels[0].Type)
	assert.Equal(t, float64(0), st.Hotels[0].EstimatedCost)
}

func TestGatherCachesResults(t *testing.T) {
	store := cache.NewMemoryStore(64, 0)
	gw := &fakeGateway{places: samplePlaces(), casts: sampleCasts(), hotels: samplePlaces()}
	cfg := GatherConfig{Cache: store, Retry: fastRetry}
	req := beijingRequest()

	for _, step := range []planning.Step{NewAttractions(gw, cfg), NewWeather(gw, cfg), NewLodging(gw, cfg)} {
		first := runStep(t, step, req)
		second := runStep(t, step, req)

		// Timings differ between runs; everything else must match byte for byte.
		first.StepTimings, second.StepTimings = nil, nil
		a, err := json.Marshal(first)
		require.NoError(t, err)
		b, err := json.Marshal(second)
		require.NoError(t, err)
		assert.Equal(t, string(a), string(b), "step %s", step.Name())
	}
	poi, forecast, lodging := gw.calls()
	assert.Equal(t, 1, poi)
	assert.Equal(t, 1, forecast)
	assert.Equal(t, 1, lodging)

	_, ok := store.Get(context.Background(), cache.AttractionsKey("Beijing", "history"))
	assert.True(t, ok)
	_, ok = store.Get(context.Background(), cache.LodgingKey("Beijing", "budget_hotel"))
	assert.True(t, ok)
}

func TestGatherCacheExpiresByStepTTL(t *testing.T) {
	store := cache.NewMemoryStore(64, 0)
	now := time.Now()
	store.SetClock(func() time.Time { return now })
	gw := &fakeGateway{casts: sampleCasts()}
	step := NewWeather(gw, GatherConfig{Cache: store, Retry: fastRetry})

	runStep(t, step, beijingRequest())
	now = now.Add(cache.DefaultWeatherTTL - time.Second)
	runStep(t, step, beijingRequest())
	now = now.Add(2 * time.Second)
	runStep(t, step, beijingRequest())

	_, forecast, _ := gw.calls()
	assert.Equal(t, 2, forecast)
}

func TestGatherRetriesTransientErrors(t *testing.T) {
	gw := &fakeGateway{places: samplePlaces(), failFirst: 2}
	st := runStep(t, NewAttractions(gw, GatherConfig{Retry: fastRetry}), beijingRequest())

	assert.Equal(t, planning.StatusCompleted, st.Status(planning.StepAttractions))
	poi, _, _ := gw.calls()
	assert.Equal(t, 3, poi)
}

func TestGatherFailureIsStepLocal(t *testing.T) {
	gw := &fakeGateway{placesErr: errors.New("provider down")}
	st := runStep(t, NewAttractions(gw, GatherConfig{Retry: fastRetry}), beijingRequest())

	assert.Equal(t, planning.StatusFailed, st.Status(planning.StepAttractions))
	assert.Contains(t, st.StepErrors[planning.StepAttractions], "provider down")
	assert.NotNil(t, st.Attractions)
	assert.Empty(t, st.Attractions)
	poi, _, _ := gw.calls()
	assert.Equal(t, 3, poi)
}

func TestGatherPermanentErrorNotRetried(t *testing.T) {
	gw := &fakeGateway{castsErr: provider.Permanent(errors.New("bad key"))}
	st := runStep(t, NewWeather(gw, GatherConfig{Retry: fastRetry}), beijingRequest())

	assert.Equal(t, planning.StatusFailed, st.Status(planning.StepWeather))
	_, forecast, _ := gw.calls()
	assert.Equal(t, 1, forecast)
}

func TestGatherRecoversPanics(t *testing.T) {
	gw := &fakeGateway{panicPOI: true}
	st := runStep(t, NewAttractions(gw, GatherConfig{Retry: fastRetry}), beijingRequest())

	assert.Equal(t, planning.StatusFailed, st.Status(planning.StepAttractions))
	assert.Contains(t, st.StepErrors[planning.StepAttractions], "panicked")
	assert.Empty(t, st.Attractions)
}

func TestParseLocation(t *testing.T) {
	assert.Equal(t, trip.Location{Longitude: 120.15, Latitude: 30.28}, ParseLocation("120.15, 30.28"))
	assert.Equal(t, trip.Location{}, ParseLocation(""))
	assert.Equal(t, trip.Location{}, ParseLocation("abc,30"))
	assert.Equal(t, trip.Location{}, ParseLocation("120.15"))
}
