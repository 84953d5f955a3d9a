package steps

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"tripplanner/internal/llm"
	"tripplanner/internal/planning"
	"tripplanner/internal/tracelog"
	"tripplanner/internal/trip"
)

const DefaultSynthesisTimeout = 60 * time.Second

var errNoEngine = errors.New("no text-generation engine configured")

// Synthesis turns the gathered data into an itinerary. It always produces
// one: any engine or parse failure switches to FallbackItinerary.
type Synthesis struct {
	engine  llm.Engine
	timeout time.Duration
}

func NewSynthesis(engine llm.Engine, timeout time.Duration) *Synthesis {
	if timeout <= 0 {
		timeout = DefaultSynthesisTimeout
	}
	return &Synthesis{engine: engine, timeout: timeout}
}

func (s *Synthesis) Name() planning.StepName { return planning.StepSynthesis }

func (s *Synthesis) Run(ctx context.Context, snap planning.State) (out planning.Outcome) {
	start := time.Now()
	log := tracelog.Logger(ctx).With("step", planning.StepSynthesis)

	if !planning.Ready(&snap, planning.StepAttractions, planning.StepWeather, planning.StepLodging) {
		log.Warn("prerequisites not terminal", "status", snap.StepStatus)
		return planning.Outcome{
			Step:    planning.StepSynthesis,
			Status:  planning.StatusPending,
			Elapsed: time.Since(start),
			Data:    planning.SynthesisPayload{},
		}
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("synthesis panicked", "panic", r)
			out = s.fallback(snap.Request, start, fmt.Errorf("synthesis panicked: %v", r))
		}
	}()

	if len(snap.Attractions) == 0 {
		log.Warn("no attractions gathered, using fallback itinerary")
		return s.fallback(snap.Request, start, nil)
	}

	it, err := s.generate(ctx, snap)
	if err != nil {
		log.Warn("synthesis failed, using fallback itinerary", "error", err)
		return s.fallback(snap.Request, start, err)
	}
	it.WeatherInfo = slices.Clone(snap.Weather)
	if it.WeatherInfo == nil {
		it.WeatherInfo = []trip.Weather{}
	}
	log.Info("itinerary generated", "days", len(it.Days), "total", it.Budget.Total)
	return planning.Succeeded(planning.StepSynthesis, time.Since(start), planning.SynthesisPayload{Itinerary: it})
}

func (s *Synthesis) generate(ctx context.Context, snap planning.State) (*trip.Itinerary, error) {
	if s.engine == nil {
		return nil, errNoEngine
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user := BuildPlannerInput(snap.Request, snap.Attractions, snap.Weather, snap.Hotels)
	type reply struct {
		text string
		err  error
	}
	ch := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- reply{err: fmt.Errorf("engine panicked: %v", r)}
			}
		}()
		text, err := s.engine.Generate(ctx, PlannerSystemPrompt, user)
		ch <- reply{text: text, err: err}
	}()

	var r reply
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("engine %s: %w", s.engine.Name(), ctx.Err())
	case r = <-ch:
	}
	if r.err != nil {
		return nil, fmt.Errorf("engine %s: %w", s.engine.Name(), r.err)
	}
	return ParsePlannerResponse(r.text, snap.Request)
}

// fallback reports completed with the fallback itinerary. cause is recorded
// as the step error when non-nil.
func (s *Synthesis) fallback(req trip.Request, start time.Time, cause error) planning.Outcome {
	return planning.Outcome{
		Step:    planning.StepSynthesis,
		Status:  planning.StatusCompleted,
		Elapsed: time.Since(start),
		Err:     cause,
		Data:    planning.SynthesisPayload{Itinerary: FallbackItinerary(req), Fallback: true},
	}
}
