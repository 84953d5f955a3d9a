package planning

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"tripplanner/internal/trip"
)

func TestReadyTreatsFailedAsTerminal(t *testing.T) {
	st := newTestState()
	assert.False(t, Ready(st, StepWeather, StepLodging))

	st.Merge(Succeeded(StepWeather, 0, WeatherPayload{}))
	assert.False(t, Ready(st, StepWeather, StepLodging))

	st.Merge(Failed(StepLodging, 0, errors.New("timeout"), LodgingPayload{}))
	assert.True(t, Ready(st, StepWeather, StepLodging))
	assert.Equal(t, StatusFailed, st.Status(StepLodging))

	st.StepStatus[StepLodging] = StatusInProgress
	assert.False(t, Ready(st, StepWeather, StepLodging))
}

func TestMergeCommutesForSiblingSteps(t *testing.T) {
	w := Succeeded(StepWeather, 0, WeatherPayload{Weather: []trip.Weather{{Date: "2025-06-01"}}})
	l := Failed(StepLodging, 0, errors.New("boom"), LodgingPayload{})

	a, b := newTestState(), newTestState()
	a.Merge(w)
	a.Merge(l)
	b.Merge(l)
	b.Merge(w)
	assert.Equal(t, a, b)
}

func TestSynthesisPayloadWithoutItineraryWritesNothing(t *testing.T) {
	st := newTestState()
	st.Merge(Outcome{Step: StepSynthesis, Status: StatusPending, Data: SynthesisPayload{}})
	assert.Nil(t, st.Itinerary)
	assert.False(t, st.FallbackActivated)
	assert.Equal(t, StatusPending, st.Status(StepSynthesis))
}

func TestSummary(t *testing.T) {
	st := newTestState()
	st.Merge(Succeeded(StepAttractions, 0, nil))
	st.Merge(Failed(StepWeather, 0, errors.New("x"), nil))
	s := Summary(st)
	assert.Contains(t, s, "completed: 1")
	assert.Contains(t, s, "failed: 1")
	assert.Contains(t, s, "Errors: Yes")
}
