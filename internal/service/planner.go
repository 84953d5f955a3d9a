// Package service is the run invocation surface: it validates requests,
// assigns trace ids, drives the planning graph and records the outcome.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tripplanner/internal/cache"
	"tripplanner/internal/planning"
	"tripplanner/internal/planstore"
	"tripplanner/internal/steps"
	"tripplanner/internal/tracelog"
	"tripplanner/internal/trip"
)

const DefaultRunTimeout = 120 * time.Second

// Deps are the process-wide collaborators of a Planner. Only Graph is required.
type Deps struct {
	Graph      *planning.Graph
	Store      planstore.Store
	Archive    planstore.Archive
	Audit      planstore.AuditLog
	Journal    *tracelog.Journal
	Cache      cache.Invalidator
	Navigator  *steps.Navigator
	RunTimeout time.Duration
	// Checks are probed by Health, keyed by component name.
	Checks map[string]func(context.Context) error
	// Stats are reported by Health as is, keyed by component name.
	Stats map[string]func() any
}

type Planner struct {
	graph      *planning.Graph
	store      planstore.Store
	archive    planstore.Archive
	audit      planstore.AuditLog
	journal    *tracelog.Journal
	cache      cache.Invalidator
	navigator  *steps.Navigator
	runTimeout time.Duration
	checks     map[string]func(context.Context) error
	stats      map[string]func() any
	newTraceID func() string
}

func NewPlanner(d Deps) (*Planner, error) {
	if d.Graph == nil {
		return nil, errors.New("service: graph is required")
	}
	if d.RunTimeout <= 0 {
		d.RunTimeout = DefaultRunTimeout
	}
	return &Planner{
		graph:      d.Graph,
		store:      d.Store,
		archive:    d.Archive,
		audit:      d.Audit,
		journal:    d.Journal,
		cache:      d.Cache,
		navigator:  d.Navigator,
		runTimeout: d.RunTimeout,
		checks:     d.Checks,
		stats:      d.Stats,
		newTraceID: uuid.NewString,
	}, nil
}

// Result is what a caller gets back from a run.
type Result struct {
	TraceID           string                                `json:"trace_id"`
	Itinerary         *trip.Itinerary                       `json:"itinerary"`
	ExecutionTimeMs   int64                                 `json:"execution_time_ms"`
	FallbackActivated bool                                  `json:"fallback_activated"`
	StepStatus        map[planning.StepName]planning.Status `json:"step_status"`
	StepErrors        map[planning.StepName]string          `json:"step_errors,omitempty"`
	StepTimings       map[planning.StepName]int64           `json:"step_timings"`
}

// Plan runs the graph for req. Invalid requests return *trip.ValidationError
// before any step runs; the only other error is a graph malfunction.
func (p *Planner) Plan(ctx context.Context, req trip.Request, userID string) (Result, error) {
	return p.PlanWithObserver(ctx, req, userID, nil)
}

// PlanWithObserver is Plan with step events forwarded to obs as they happen.
// Every call is audited, rejected requests included.
func (p *Planner) PlanWithObserver(ctx context.Context, req trip.Request, userID string, obs planning.Observer) (Result, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		p.record(ctx, planstore.AuditEntry{
			UserID:       userID,
			Action:       planstore.ActionPlanReject,
			ResourceType: planstore.ResourceTripPlan,
			Before:       encode(ctx, req),
			After:        encode(ctx, map[string]string{"error": err.Error()}),
		})
		return Result{}, err
	}

	traceID := p.newTraceID()
	ctx = tracelog.WithTrace(ctx, traceID)
	log := tracelog.Logger(ctx)
	log.Info("plan started", "city", req.City, "days", req.TravelDays, "user_id", userID)
	p.journalEvent(ctx, tracelog.Event{TraceID: traceID, Kind: tracelog.KindRunStarted, Fields: map[string]any{
		"city": req.City, "travel_days": req.TravelDays, "user_id": userID,
	}})

	st := planning.NewState(traceID, userID, req)
	p.save(ctx, planstore.FromState(st, planstore.RunRunning))

	runCtx, cancel := context.WithTimeout(ctx, p.runTimeout)
	defer cancel()

	start := time.Now()
	observers := planning.Observers{planning.ObserverFunc(func(ev planning.StepEvent) { p.stepEvent(ctx, ev) })}
	if obs != nil {
		observers = append(observers, obs)
	}
	runErr := p.graph.Run(runCtx, st, observers)
	st.ExecutionTimeMs = time.Since(start).Milliseconds()

	summary := planning.Summary(st)
	audit := planstore.AuditEntry{
		UserID:       userID,
		Action:       planstore.ActionPlanCreate,
		ResourceType: planstore.ResourceTripPlan,
		ResourceID:   traceID,
		Before:       encode(ctx, req),
	}
	if runErr != nil {
		log.Error("plan failed", "error", runErr, "summary", summary)
		rec := planstore.FromState(st, planstore.RunFailed)
		rec.Error = runErr.Error()
		p.save(ctx, rec)
		p.journalEvent(ctx, tracelog.Event{TraceID: traceID, Kind: tracelog.KindRunFailed, Status: string(planstore.RunFailed),
			ElapsedMs: st.ExecutionTimeMs, Error: runErr.Error(), Fields: map[string]any{"summary": summary}})
		audit.After = encode(ctx, map[string]any{"status": planstore.RunFailed, "error": runErr.Error()})
		p.record(ctx, audit)
		return Result{TraceID: traceID}, fmt.Errorf("planning run %s: %w", traceID, runErr)
	}

	log.Info("plan finished", "summary", summary, "execution_time_ms", st.ExecutionTimeMs, "fallback", st.FallbackActivated)
	p.save(ctx, planstore.FromState(st, planstore.RunCompleted))
	p.journalEvent(ctx, tracelog.Event{TraceID: traceID, Kind: tracelog.KindRunFinished, Status: string(planstore.RunCompleted),
		ElapsedMs: st.ExecutionTimeMs, Fields: map[string]any{"summary": summary, "fallback_activated": st.FallbackActivated}})
	audit.After = encode(ctx, map[string]any{"status": planstore.RunCompleted, "fallback_activated": st.FallbackActivated})
	p.record(ctx, audit)
	if p.archive != nil && st.Itinerary != nil {
		if err := p.archive.Put(ctx, traceID, st.Itinerary); err != nil {
			log.Warn("itinerary archive failed", "error", err)
		}
	}

	return Result{
		TraceID:           traceID,
		Itinerary:         st.Itinerary,
		ExecutionTimeMs:   st.ExecutionTimeMs,
		FallbackActivated: st.FallbackActivated,
		StepStatus:        st.StepStatus,
		StepErrors:        st.StepErrors,
		StepTimings:       st.StepTimings,
	}, nil
}

// Status returns the stored record of a run.
func (p *Planner) Status(ctx context.Context, traceID string) (planstore.Record, error) {
	if p.store == nil {
		return planstore.Record{}, planstore.ErrNotFound
	}
	return p.store.Get(ctx, traceID)
}

// Journal exposes the per-run event journal, which may be nil.
func (p *Planner) Journal() *tracelog.Journal { return p.journal }

func (p *Planner) save(ctx context.Context, rec planstore.Record) {
	if p.store == nil {
		return
	}
	if err := p.store.Save(ctx, rec); err != nil {
		tracelog.Logger(ctx).Warn("plan record save failed", "status", rec.Status, "error", err)
	}
}

func (p *Planner) stepEvent(ctx context.Context, ev planning.StepEvent) {
	kind := tracelog.KindStepStarted
	if ev.Kind == planning.EventStepFinished {
		kind = tracelog.KindStepFinished
	}
	p.journalEvent(ctx, tracelog.Event{
		At:        ev.At,
		TraceID:   ev.TraceID,
		Kind:      kind,
		Step:      string(ev.Step),
		Status:    string(ev.Status),
		ElapsedMs: ev.ElapsedMs,
		Error:     ev.Error,
	})
}

func (p *Planner) journalEvent(ctx context.Context, ev tracelog.Event) {
	if p.journal == nil {
		return
	}
	if ev.Source == "" {
		ev.Source = "planner"
	}
	if err := p.journal.Append(ev); err != nil {
		tracelog.Logger(ctx).Warn("journal append failed", "kind", ev.Kind, "error", err)
	}
}
