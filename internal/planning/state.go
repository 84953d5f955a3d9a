package planning

import (
	"maps"
	"slices"

	"tripplanner/internal/trip"
)

// StepName identifies one unit of work in the planning graph.
type StepName string

const (
	StepAttractions StepName = "search_attractions"
	StepWeather     StepName = "query_weather"
	StepLodging     StepName = "search_hotels"
	StepSynthesis   StepName = "generate_plan"
)

// Status is the lifecycle position of a step within one run.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether a step with this status will not change status again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// State is the record threaded through every step of one planning run.
// Steps never mutate it; they return an Outcome which the Graph merges.
type State struct {
	TraceID string       `json:"trace_id"`
	UserID  string       `json:"user_id,omitempty"`
	Request trip.Request `json:"request"`

	Attractions []trip.Attraction `json:"attractions"`
	Weather     []trip.Weather    `json:"weather"`
	Hotels      []trip.Hotel      `json:"hotels"`

	StepStatus  map[StepName]Status `json:"step_status"`
	StepErrors  map[StepName]string `json:"step_errors,omitempty"`
	StepTimings map[StepName]int64  `json:"step_timings"`

	Itinerary         *trip.Itinerary `json:"itinerary,omitempty"`
	FallbackActivated bool            `json:"fallback_activated"`
	ExecutionTimeMs   int64           `json:"execution_time_ms"`
}

// NewState creates the initial state for a run. The trace id is fixed for the
// lifetime of the returned state.
func NewState(traceID, userID string, req trip.Request) *State {
	return &State{
		TraceID:     traceID,
		UserID:      userID,
		Request:     req,
		Attractions: []trip.Attraction{},
		Weather:     []trip.Weather{},
		Hotels:      []trip.Hotel{},
		StepStatus:  map[StepName]Status{},
		StepErrors:  map[StepName]string{},
		StepTimings: map[StepName]int64{},
	}
}

// Snapshot returns a deep copy that shares no mutable memory with s.
func (s *State) Snapshot() State {
	out := *s
	out.Request.Preferences = slices.Clone(s.Request.Preferences)
	out.Attractions = slices.Clone(s.Attractions)
	out.Weather = slices.Clone(s.Weather)
	out.Hotels = slices.Clone(s.Hotels)
	out.StepStatus = maps.Clone(s.StepStatus)
	out.StepErrors = maps.Clone(s.StepErrors)
	out.StepTimings = maps.Clone(s.StepTimings)
	if s.Itinerary != nil {
		it := *s.Itinerary
		out.Itinerary = &it
	}
	return out
}

// Status returns the recorded status of a step, or pending when it has not reported.
func (s *State) Status(step StepName) Status {
	if st, ok := s.StepStatus[step]; ok {
		return st
	}
	return StatusPending
}
