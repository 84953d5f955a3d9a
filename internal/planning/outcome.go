package planning

import (
	"time"

	"tripplanner/internal/trip"
)

// Payload is the step-specific data carried by an Outcome. Each implementation
// writes only its own State fields, so merges of steps in one stage commute.
type Payload interface {
	apply(s *State)
}

type AttractionsPayload struct{ Attractions []trip.Attraction }
type WeatherPayload struct{ Weather []trip.Weather }
type LodgingPayload struct{ Hotels []trip.Hotel }

// SynthesisPayload carries the final itinerary. Itinerary is nil only for the
// pending guard, in which case nothing is written.
type SynthesisPayload struct {
	Itinerary *trip.Itinerary
	Fallback  bool
}

func (p AttractionsPayload) apply(s *State) { s.Attractions = nonNil(p.Attractions) }
func (p WeatherPayload) apply(s *State)     { s.Weather = nonNil(p.Weather) }
func (p LodgingPayload) apply(s *State)     { s.Hotels = nonNil(p.Hotels) }

func (p SynthesisPayload) apply(s *State) {
	if p.Itinerary == nil {
		return
	}
	s.Itinerary = p.Itinerary
	s.FallbackActivated = s.FallbackActivated || p.Fallback
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

// Outcome is what a step reports back. A failed outcome still carries a
// payload (typically an empty list) so downstream steps see the field present.
type Outcome struct {
	Step    StepName
	Status  Status
	Elapsed time.Duration
	Err     error
	Data    Payload
}

// Succeeded builds a completed outcome.
func Succeeded(step StepName, elapsed time.Duration, data Payload) Outcome {
	return Outcome{Step: step, Status: StatusCompleted, Elapsed: elapsed, Data: data}
}

// Failed builds a failed outcome carrying the error detail.
func Failed(step StepName, elapsed time.Duration, err error, data Payload) Outcome {
	return Outcome{Step: step, Status: StatusFailed, Elapsed: elapsed, Err: err, Data: data}
}

// Merge folds an outcome into the state: status, timing, error detail, then the
// step's own payload fields.
func (s *State) Merge(o Outcome) {
	if s.StepStatus == nil {
		s.StepStatus = map[StepName]Status{}
	}
	if s.StepTimings == nil {
		s.StepTimings = map[StepName]int64{}
	}
	s.StepStatus[o.Step] = o.Status
	s.StepTimings[o.Step] = o.Elapsed.Milliseconds()
	if o.Err != nil {
		if s.StepErrors == nil {
			s.StepErrors = map[StepName]string{}
		}
		s.StepErrors[o.Step] = o.Err.Error()
	}
	if o.Data != nil {
		o.Data.apply(s)
	}
}
