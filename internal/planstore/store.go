// Package planstore keeps one record per planning run so that finished and
// in-flight runs can be looked up by trace id.
package planstore

import (
	"context"
	"errors"
	"time"

	"tripplanner/internal/planning"
	"tripplanner/internal/trip"
)

var ErrNotFound = errors.New("plan record not found")

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

type StepRecord struct {
	Status    planning.Status `json:"status"`
	ElapsedMs int64           `json:"elapsed_ms"`
	Error     string          `json:"error,omitempty"`
}

type Record struct {
	TraceID           string                           `json:"trace_id"`
	UserID            string                           `json:"user_id,omitempty"`
	Status            RunStatus                        `json:"status"`
	Request           trip.Request                     `json:"request"`
	Itinerary         *trip.Itinerary                  `json:"itinerary,omitempty"`
	Steps             map[planning.StepName]StepRecord `json:"steps,omitempty"`
	FallbackActivated bool                             `json:"fallback_activated"`
	ExecutionTimeMs   int64                            `json:"execution_time_ms"`
	Error             string                           `json:"error,omitempty"`
	CreatedAt         time.Time                        `json:"created_at"`
	UpdatedAt         time.Time                        `json:"updated_at"`
}

// Store persists run records. Save is an upsert keyed on TraceID.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, traceID string) (Record, error)
}

// FromState captures the observable outcome of a run.
func FromState(st *planning.State, status RunStatus) Record {
	rec := Record{
		TraceID:           st.TraceID,
		UserID:            st.UserID,
		Status:            status,
		Request:           st.Request,
		Itinerary:         st.Itinerary,
		Steps:             make(map[planning.StepName]StepRecord, len(st.StepStatus)),
		FallbackActivated: st.FallbackActivated,
		ExecutionTimeMs:   st.ExecutionTimeMs,
	}
	for name, s := range st.StepStatus {
		rec.Steps[name] = StepRecord{Status: s, ElapsedMs: st.StepTimings[name], Error: st.StepErrors[name]}
	}
	return rec
}

func stamp(rec *Record, now time.Time) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
}
