package planning

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"tripplanner/internal/tracelog"
)

var (
	// ErrStepNotTerminal is returned when a step reports back without reaching
	// completed or failed. Under the declared topology this is a wiring bug.
	ErrStepNotTerminal = errors.New("planning: step did not reach a terminal status")
	// ErrStepPanicked is returned when a panic escapes a step boundary.
	ErrStepPanicked = errors.New("planning: step panicked")
	ErrInvalidGraph = errors.New("planning: invalid graph")
)

// Step is one unit of work. Run receives a private snapshot of the state as of
// the end of the previous stage and must not retain it after returning.
type Step interface {
	Name() StepName
	Run(ctx context.Context, s State) Outcome
}

// Stage is a set of independent steps run concurrently and joined before the
// next stage starts.
type Stage struct {
	Steps []Step
}

// Graph is a statically declared sequence of stages. Every step in stage i has
// every step in stages [0, i) as its predecessors.
type Graph struct {
	stages []Stage
}

// NewGraph validates the stage list: no empty stages, no nil steps, and each
// step name appears at most once.
func NewGraph(stages ...Stage) (*Graph, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("%w: no stages", ErrInvalidGraph)
	}
	seen := map[StepName]bool{}
	for i, st := range stages {
		if len(st.Steps) == 0 {
			return nil, fmt.Errorf("%w: stage %d is empty", ErrInvalidGraph, i)
		}
		for _, step := range st.Steps {
			if step == nil {
				return nil, fmt.Errorf("%w: stage %d has a nil step", ErrInvalidGraph, i)
			}
			if seen[step.Name()] {
				return nil, fmt.Errorf("%w: step %s declared twice", ErrInvalidGraph, step.Name())
			}
			seen[step.Name()] = true
		}
	}
	return &Graph{stages: stages}, nil
}

// NewTripGraph builds the fixed planning topology:
// attractions, then weather and lodging concurrently, then synthesis.
func NewTripGraph(attractions, weather, lodging, synthesis Step) (*Graph, error) {
	return NewGraph(
		Stage{Steps: []Step{attractions}},
		Stage{Steps: []Step{weather, lodging}},
		Stage{Steps: []Step{synthesis}},
	)
}

func (g *Graph) stageNames() [][]StepName {
	out := make([][]StepName, len(g.stages))
	for i, st := range g.stages {
		for _, step := range st.Steps {
			out[i] = append(out[i], step.Name())
		}
	}
	return out
}

// Predecessors returns every step that must be terminal before name may start.
func (g *Graph) Predecessors(name StepName) []StepName {
	var prev []StepName
	for _, st := range g.stages {
		for _, step := range st.Steps {
			if step.Name() == name {
				return prev
			}
		}
		for _, step := range st.Steps {
			prev = append(prev, step.Name())
		}
	}
	return nil
}

// Run executes every stage in order against s. Each step runs at most once.
// The only errors returned are graph malfunctions; step failures are recorded
// in s and never abort the run.
func (g *Graph) Run(ctx context.Context, s *State, obs Observer) error {
	log := tracelog.Logger(ctx)
	if s.StepStatus == nil {
		s.StepStatus = map[StepName]Status{}
	}
	started := make(map[StepName]bool)
	log.Debug("graph run", "stages", g.stageNames())

	for i, stage := range g.stages {
		outcomes := make([]Outcome, len(stage.Steps))
		for _, step := range stage.Steps {
			name := step.Name()
			for _, prev := range g.Predecessors(name) {
				if !s.Status(prev).Terminal() {
					return fmt.Errorf("%w: %s before %s", ErrStepNotTerminal, prev, name)
				}
			}
			if started[name] {
				return fmt.Errorf("%w: step %s started twice", ErrInvalidGraph, name)
			}
			started[name] = true
			s.StepStatus[name] = StatusInProgress
			notify(obs, StepEvent{TraceID: s.TraceID, Step: name, Kind: EventStepStarted, Status: StatusInProgress, At: time.Now()})
			log.Debug("step started", "step", name, "stage", i)
		}
		// One view for the whole stage; each goroutine gets its own copy of it.
		base := s.Snapshot()

		var eg errgroup.Group
		for j, step := range stage.Steps {
			name := step.Name()
			snap := base.Snapshot()
			eg.Go(func() error {
				out, err := runStep(ctx, step, snap)
				if err != nil {
					return err
				}
				outcomes[j] = out
				ev := StepEvent{
					TraceID:   snap.TraceID,
					Step:      name,
					Kind:      EventStepFinished,
					Status:    out.Status,
					ElapsedMs: out.Elapsed.Milliseconds(),
					At:        time.Now(),
				}
				if out.Err != nil {
					ev.Error = out.Err.Error()
				}
				notify(obs, ev)
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}

		for _, out := range outcomes {
			s.Merge(out)
			if !out.Status.Terminal() {
				return fmt.Errorf("%w: %s reported %s", ErrStepNotTerminal, out.Step, out.Status)
			}
			attrs := []any{"step", out.Step, "status", out.Status, "elapsed_ms", out.Elapsed.Milliseconds()}
			if out.Err != nil {
				log.Warn("step finished with error", append(attrs, "error", out.Err.Error())...)
			} else {
				log.Info("step finished", attrs...)
			}
		}
	}
	return nil
}

func runStep(ctx context.Context, step Step, snap State) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v\n%s", ErrStepPanicked, step.Name(), r, debug.Stack())
		}
	}()
	out = step.Run(ctx, snap)
	if out.Step == "" {
		out.Step = step.Name()
	}
	if out.Step != step.Name() {
		return Outcome{}, fmt.Errorf("%w: step %s reported outcome for %s", ErrInvalidGraph, step.Name(), out.Step)
	}
	return out, nil
}
