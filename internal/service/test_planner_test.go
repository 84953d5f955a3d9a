package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripplanner/internal/cache"
	"tripplanner/internal/llm"
	"tripplanner/internal/planning"
	"tripplanner/internal/planstore"
	"tripplanner/internal/provider"
	"tripplanner/internal/steps"
	"tripplanner/internal/tracelog"
	"tripplanner/internal/trip"
)

type stubGateway struct {
	places []provider.RawPlace
	calls  atomic.Int32
}

func (g *stubGateway) SearchPOI(ctx context.Context, q provider.PlaceQuery) ([]provider.RawPlace, error) {
	g.calls.Add(1)
	return g.places, nil
}

func (g *stubGateway) Forecast(ctx context.Context, city string) ([]provider.RawCast, error) {
	g.calls.Add(1)
	return []provider.RawCast{{Date: "2025-06-01", DayWeather: "晴", DayTemp: "28"}}, nil
}

func (g *stubGateway) SearchLodging(ctx context.Context, q provider.PlaceQuery) ([]provider.RawPlace, error) {
	g.calls.Add(1)
	return nil, provider.Permanent(errors.New("lodging offline"))
}

type fakeArchive struct {
	puts map[string]*trip.Itinerary
}

func (a *fakeArchive) Put(ctx context.Context, traceID string, it *trip.Itinerary) error {
	a.puts[traceID] = it
	return nil
}

func (a *fakeArchive) Get(ctx context.Context, traceID string) (*trip.Itinerary, error) {
	if it, ok := a.puts[traceID]; ok {
		return it, nil
	}
	return nil, planstore.ErrNotFound
}

type fixture struct {
	planner *Planner
	gw      *stubGateway
	engine  *llm.FakeEngine
	store   *planstore.MemoryStore
	archive *fakeArchive
	journal *tracelog.Journal
	audit   *planstore.MemoryAuditLog
	cache   *cache.MemoryStore
}

func newFixture(t *testing.T, places []provider.RawPlace, replies ...llm.FakeReply) fixture {
	t.Helper()
	gw := &stubGateway{places: places}
	engine := llm.NewFakeEngine(replies...)
	mem := cache.NewMemoryStore(32, 0)
	cfg := steps.GatherConfig{Cache: mem, Retry: provider.RetryPolicy{Attempts: 1}}
	g, err := planning.NewTripGraph(
		steps.NewAttractions(gw, cfg),
		steps.NewWeather(gw, cfg),
		steps.NewLodging(gw, cfg),
		steps.NewSynthesis(engine, time.Second),
	)
	require.NoError(t, err)
	store, err := planstore.NewMemoryStore(16)
	require.NoError(t, err)
	archive := &fakeArchive{puts: map[string]*trip.Itinerary{}}
	journal, err := tracelog.NewJournal(t.TempDir())
	require.NoError(t, err)
	audit := planstore.NewMemoryAuditLog(16)
	p, err := NewPlanner(Deps{Graph: g, Store: store, Archive: archive, Audit: audit, Journal: journal, Cache: mem})
	require.NoError(t, err)
	return fixture{planner: p, gw: gw, engine: engine, store: store, archive: archive, journal: journal, audit: audit, cache: mem}
}

func beijing() trip.Request {
	return trip.Request{
		City:           "Beijing",
		StartDate:      "2025-06-01",
		EndDate:        "2025-06-03",
		TravelDays:     3,
		Transportation: "public_transit",
		Accommodation:  "budget_hotel",
		Preferences:    []string{"history", "food"},
	}
}

func TestPlanBeijingFallback(t *testing.T) {
	f := newFixture(t, nil, llm.FakeReply{Text: "{}"})

	res, err := f.planner.Plan(context.Background(), beijing(), "user-1")
	require.NoError(t, err)
	assert.NotEmpty(t, res.TraceID)
	assert.True(t, res.FallbackActivated)
	assert.Equal(t, 0, f.engine.Calls())
	require.NotNil(t, res.Itinerary)
	assert.Len(t, res.Itinerary.Days, 3)
	assert.Equal(t, float64(2170), res.Itinerary.Budget.Total)
	assert.Equal(t, planning.StatusFailed, res.StepStatus[planning.StepLodging])
	assert.Contains(t, res.StepErrors[planning.StepLodging], "lodging offline")

	rec, err := f.planner.Status(context.Background(), res.TraceID)
	require.NoError(t, err)
	assert.Equal(t, planstore.RunCompleted, rec.Status)
	assert.Equal(t, "user-1", rec.UserID)
	assert.True(t, rec.FallbackActivated)
	assert.Equal(t, planning.StatusCompleted, rec.Steps[planning.StepSynthesis].Status)

	assert.Same(t, res.Itinerary, f.archive.puts[res.TraceID])

	events, err := f.journal.Read(res.TraceID, 0)
	require.NoError(t, err)
	// run_started + 4 started + 4 finished + run_finished
	require.Len(t, events, 10)
	assert.Equal(t, tracelog.KindRunStarted, events[0].Kind)
	last := events[len(events)-1]
	assert.Equal(t, tracelog.KindRunFinished, last.Kind)
	assert.Equal(t, "completed", last.Status)
	assert.Equal(t, true, last.Fields["fallback_activated"])
	var lodging tracelog.Event
	for _, ev := range events {
		if ev.Kind == tracelog.KindStepFinished && ev.Step == string(planning.StepLodging) {
			lodging = ev
		}
	}
	assert.Equal(t, "failed", lodging.Status)
	assert.Contains(t, lodging.Error, "lodging offline")

	trail, err := f.planner.AuditTrail(context.Background(), planstore.AuditFilter{ResourceID: res.TraceID})
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, planstore.ActionPlanCreate, trail[0].Action)
	assert.Equal(t, "user-1", trail[0].UserID)
	assert.JSONEq(t, `{"status":"completed","fallback_activated":true}`, string(trail[0].After))
}

func TestPlanUsesEngine(t *testing.T) {
	places := []provider.RawPlace{{Name: "故宫", Address: "景山前街4号", Location: "116.39,39.91"}}
	reply := `{"days":[{"description":"d1"}],"budget":{"total_meals":120,"total":5}}`
	f := newFixture(t, places, llm.FakeReply{Text: reply})

	req := trip.Request{City: "北京", StartDate: "2025-06-01", EndDate: "2025-06-01"}
	res, err := f.planner.Plan(context.Background(), req, "")
	require.NoError(t, err)
	assert.False(t, res.FallbackActivated)
	assert.Equal(t, 1, f.engine.Calls())
	assert.Contains(t, f.engine.LastUser(), "1. 故宫 - 景山前街4号")
	assert.Contains(t, f.engine.LastUser(), "天数: 1")
	require.Len(t, res.Itinerary.Days, 1)
	assert.Equal(t, float64(120), res.Itinerary.Budget.Total)
	assert.Len(t, res.Itinerary.WeatherInfo, 1)
}

func TestPlanRejectsBeforeRunning(t *testing.T) {
	f := newFixture(t, nil)
	req := beijing()
	req.TravelDays = 31
	req.EndDate = "2025-07-01"

	res, err := f.planner.Plan(context.Background(), req, "")
	var vErr *trip.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "travel_days", vErr.Field)
	assert.Empty(t, res.TraceID)
	assert.Equal(t, int32(0), f.gw.calls.Load())
	assert.Equal(t, 0, f.engine.Calls())
	assert.Equal(t, 0, f.store.Len())

	ctx := WithRequestInfo(context.Background(), RequestInfo{IPAddress: "10.1.2.3", Method: "POST", Path: "/trip/plan"})
	_, err = f.planner.Plan(ctx, req, "u-9")
	require.Error(t, err)
	trail, err := f.planner.AuditTrail(context.Background(), planstore.AuditFilter{UserID: "u-9"})
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, planstore.ActionPlanReject, trail[0].Action)
	assert.Equal(t, "10.1.2.3", trail[0].IPAddress)
	assert.Equal(t, "/trip/plan", trail[0].RequestPath)
	assert.Contains(t, string(trail[0].After), "travel_days")
}

// blockingGateway answers nothing until the caller gives up.
type blockingGateway struct{}

func (blockingGateway) SearchPOI(ctx context.Context, _ provider.PlaceQuery) ([]provider.RawPlace, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingGateway) Forecast(ctx context.Context, _ string) ([]provider.RawCast, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingGateway) SearchLodging(ctx context.Context, _ provider.PlaceQuery) ([]provider.RawPlace, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestPlanRunTimeoutStillReturnsFallback(t *testing.T) {
	gw := blockingGateway{}
	engine := llm.NewFakeEngine(llm.FakeReply{Text: "{}"})
	cfg := steps.GatherConfig{Retry: provider.RetryPolicy{Attempts: 3, MinWait: time.Millisecond, MaxWait: time.Millisecond}}
	g, err := planning.NewTripGraph(
		steps.NewAttractions(gw, cfg),
		steps.NewWeather(gw, cfg),
		steps.NewLodging(gw, cfg),
		steps.NewSynthesis(engine, time.Second),
	)
	require.NoError(t, err)
	p, err := NewPlanner(Deps{Graph: g, RunTimeout: 100 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	res, err := p.Plan(context.Background(), beijing(), "")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.True(t, res.FallbackActivated)
	require.NotNil(t, res.Itinerary)
	assert.Len(t, res.Itinerary.Days, 3)
	for _, name := range []planning.StepName{planning.StepAttractions, planning.StepWeather, planning.StepLodging} {
		assert.Equal(t, planning.StatusFailed, res.StepStatus[name], name)
	}
	assert.Equal(t, planning.StatusCompleted, res.StepStatus[planning.StepSynthesis])
	assert.Equal(t, 0, engine.Calls())
}

type pendingStep struct{ name planning.StepName }

func (s pendingStep) Name() planning.StepName { return s.name }
func (s pendingStep) Run(ctx context.Context, st planning.State) planning.Outcome {
	return planning.Outcome{Step: s.name, Status: planning.StatusPending}
}

func TestPlanGraphMalfunction(t *testing.T) {
	g, err := planning.NewGraph(planning.Stage{Steps: []planning.Step{pendingStep{name: planning.StepAttractions}}})
	require.NoError(t, err)
	store, err := planstore.NewMemoryStore(4)
	require.NoError(t, err)
	p, err := NewPlanner(Deps{Graph: g, Store: store})
	require.NoError(t, err)
	p.newTraceID = func() string { return "fixed-trace" }

	res, err := p.Plan(context.Background(), beijing(), "")
	require.ErrorIs(t, err, planning.ErrStepNotTerminal)
	assert.Equal(t, "fixed-trace", res.TraceID)

	rec, err := p.Status(context.Background(), "fixed-trace")
	require.NoError(t, err)
	assert.Equal(t, planstore.RunFailed, rec.Status)
	assert.Contains(t, rec.Error, "pending")
}

func TestPlanForwardsEvents(t *testing.T) {
	f := newFixture(t, nil)
	var finished atomic.Int32
	obs := planning.ObserverFunc(func(ev planning.StepEvent) {
		if ev.Kind == planning.EventStepFinished {
			finished.Add(1)
		}
	})
	_, err := f.planner.PlanWithObserver(context.Background(), beijing(), "", obs)
	require.NoError(t, err)
	assert.Equal(t, int32(4), finished.Load())
}

func TestStatusWithoutStore(t *testing.T) {
	g, err := planning.NewGraph(planning.Stage{Steps: []planning.Step{pendingStep{name: "x"}}})
	require.NoError(t, err)
	p, err := NewPlanner(Deps{Graph: g})
	require.NoError(t, err)
	_, err = p.Status(context.Background(), "any")
	assert.ErrorIs(t, err, planstore.ErrNotFound)

	_, err = NewPlanner(Deps{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	g, err := planning.NewGraph(planning.Stage{Steps: []planning.Step{pendingStep{name: "x"}}})
	require.NoError(t, err)
	p, err := NewPlanner(Deps{Graph: g, Checks: map[string]func(context.Context) error{
		"cache":  func(context.Context) error { return nil },
		"engine": func(context.Context) error { return errors.New("no api key") },
	}})
	require.NoError(t, err)

	rep := p.Health(context.Background())
	assert.Nil(t, rep.Stats)
	assert.Equal(t, HealthDegraded, rep.Status)
	assert.Equal(t, "ok", rep.Components["cache"])
	assert.Equal(t, "no api key", rep.Components["engine"])
	assert.Equal(t, "ok", rep.Components["graph"])
}

func TestHealthReportsStats(t *testing.T) {
	g, err := planning.NewGraph(planning.Stage{Steps: []planning.Step{pendingStep{name: "x"}}})
	require.NoError(t, err)
	p, err := NewPlanner(Deps{Graph: g, Stats: map[string]func() any{
		"provider_cache": func() any { return cache.MetricsSnapshot{Hits: 3} },
	}})
	require.NoError(t, err)

	rep := p.Health(context.Background())
	assert.Equal(t, HealthOK, rep.Status)
	assert.Equal(t, cache.MetricsSnapshot{Hits: 3}, rep.Stats["provider_cache"])
}

func TestInvalidateCache(t *testing.T) {
	f := newFixture(t, []provider.RawPlace{{Name: "故宫"}}, llm.FakeReply{Text: "{}"})
	ctx := context.Background()
	_, err := f.planner.Plan(ctx, beijing(), "")
	require.NoError(t, err)
	require.Equal(t, int32(3), f.gw.calls.Load())
	_, err = f.planner.Plan(ctx, beijing(), "")
	require.NoError(t, err)
	// only the failed lodging lookup goes back to the provider
	require.Equal(t, int32(4), f.gw.calls.Load())

	n, err := f.planner.InvalidateCache(ctx, CacheSelector{Key: cache.WeatherKey("Beijing")}, "admin")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = f.planner.InvalidateCache(ctx, CacheSelector{Prefix: cache.PrefixAttractions}, "admin")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.planner.Plan(ctx, beijing(), "")
	require.NoError(t, err)
	assert.Equal(t, int32(7), f.gw.calls.Load())

	trail, err := f.planner.AuditTrail(ctx, planstore.AuditFilter{UserID: "admin"})
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, planstore.ActionCacheClear, trail[0].Action)
	assert.Equal(t, "attractions:*", trail[0].ResourceID)

	p, err := NewPlanner(Deps{Graph: f.planner.graph})
	require.NoError(t, err)
	_, err = p.InvalidateCache(ctx, CacheSelector{}, "")
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = p.AuditTrail(ctx, planstore.AuditFilter{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

type stubRouter struct{}

func (stubRouter) Geocode(_ context.Context, address, _ string) (provider.RawGeocode, error) {
	if address == "故宫" {
		return provider.RawGeocode{Location: "116.397,39.918"}, nil
	}
	return provider.RawGeocode{Location: "116.273,39.999"}, nil
}

func (stubRouter) Route(context.Context, provider.RouteQuery) (provider.RawRoute, error) {
	return provider.RawRoute{Distance: "2000", Duration: "600"}, nil
}

func TestRouteAndGeocode(t *testing.T) {
	g, err := planning.NewGraph(planning.Stage{Steps: []planning.Step{pendingStep{name: "x"}}})
	require.NoError(t, err)
	ctx := context.Background()

	bare, err := NewPlanner(Deps{Graph: g})
	require.NoError(t, err)
	_, err = bare.Route(ctx, trip.RouteRequest{Origin: "a", Destination: "b"})
	assert.ErrorIs(t, err, ErrUnavailable)

	nav := steps.NewNavigator(stubRouter{}, steps.GatherConfig{Retry: provider.RetryPolicy{Attempts: 1}})
	p, err := NewPlanner(Deps{Graph: g, Navigator: nav})
	require.NoError(t, err)

	loc, err := p.Geocode(ctx, " 故宫 ", "北京")
	require.NoError(t, err)
	assert.Equal(t, trip.Location{Longitude: 116.397, Latitude: 39.918}, loc)

	_, err = p.Geocode(ctx, " ", "")
	var verr *trip.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "address", verr.Field)

	r, err := p.Route(ctx, trip.RouteRequest{Origin: "故宫", Destination: "颐和园", Mode: "walking"})
	require.NoError(t, err)
	assert.Equal(t, "walking", r.Mode)
	assert.Equal(t, 2.0, r.DistanceKm)
	assert.Equal(t, 10.0, r.DurationMinutes)
}
