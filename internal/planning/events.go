package planning

import "time"

type EventKind string

const (
	EventStepStarted  EventKind = "step_started"
	EventStepFinished EventKind = "step_finished"
)

// StepEvent describes a step transition within a run.
type StepEvent struct {
	TraceID   string    `json:"trace_id"`
	Step      StepName  `json:"step"`
	Kind      EventKind `json:"kind"`
	Status    Status    `json:"status"`
	ElapsedMs int64     `json:"elapsed_ms,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Observer receives step events. Finished events of steps in the same stage
// are delivered from concurrent goroutines.
type Observer interface {
	OnStepEvent(StepEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(StepEvent)

func (f ObserverFunc) OnStepEvent(ev StepEvent) { f(ev) }

// Observers fans one event out to several observers in order.
type Observers []Observer

func (o Observers) OnStepEvent(ev StepEvent) {
	for _, obs := range o {
		notify(obs, ev)
	}
}

func notify(obs Observer, ev StepEvent) {
	if obs != nil {
		obs.OnStepEvent(ev)
	}
}
