package repair

import "context"

// Event is published while repair steps run.
type Event interface {
	EventName() string
}

// StepEvent announces that the named step starts.
type StepEvent struct {
	StepName string `json:"step_name"`
}

type InfoEvent struct {
	Message string `json:"message"`
}

type WarningEvent struct {
	Message string `json:"message"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}

type StartEvent struct {
	Max             int    `json:"max"`
	CurrentStepName string `json:"current_step_name"`
}

type AdvanceEvent struct {
	Increment   int    `json:"increment"`
	Description string `json:"description"`
}

type FinishEvent struct{}

func (StepEvent) EventName() string    { return "repair.step" }
func (InfoEvent) EventName() string    { return "repair.info" }
func (WarningEvent) EventName() string { return "repair.warning" }
func (ErrorEvent) EventName() string   { return "repair.error" }
func (StartEvent) EventName() string   { return "repair.start" }
func (AdvanceEvent) EventName() string { return "repair.advance" }
func (FinishEvent) EventName() string  { return "repair.finish" }

// Dispatcher delivers events to whoever listens.
type Dispatcher interface {
	DispatchTyped(ctx context.Context, event Event)
}

// Dispatchers fans an event out to each dispatcher in order.
type Dispatchers []Dispatcher

func (d Dispatchers) DispatchTyped(ctx context.Context, event Event) {
	for _, dispatcher := range d {
		if dispatcher != nil {
			dispatcher.DispatchTyped(ctx, event)
		}
	}
}
