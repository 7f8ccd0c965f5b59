package repair

import (
	"context"
)

// Repair runs a list of steps and reports their output as events. A Repair
// is used by one goroutine at a time.
type Repair struct {
	dispatcher Dispatcher
	logger     Logger

	ctx         context.Context
	steps       []Step
	currentStep string
}

func New(dispatcher Dispatcher, logger Logger) *Repair {
	return &Repair{
		dispatcher: dispatcher,
		logger:     logger,
		ctx:        context.Background(),
	}
}

func (r *Repair) AddStep(step Step) {
	r.steps = append(r.steps, step)
}

// Run executes the queued steps in order. A failing step is logged and
// reported as an ErrorEvent; the remaining steps still run. The queue is
// empty afterwards.
func (r *Repair) Run(ctx context.Context) (failed int) {
	r.ctx = ctx
	defer func() {
		r.steps = nil
		r.currentStep = ""
		r.ctx = context.Background()
	}()

	if len(r.steps) == 0 {
		r.dispatch(InfoEvent{Message: "No repair steps available"})
		return 0
	}

	for _, step := range r.steps {
		r.currentStep = step.Name()
		r.dispatch(StepEvent{StepName: r.currentStep})
		if err := step.Run(ctx, r); err != nil {
			failed++
			r.logger.Error("Exception while executing repair step %s: %v", r.currentStep, err)
			r.dispatch(ErrorEvent{Message: err.Error()})
		}
	}
	return failed
}

func (r *Repair) dispatch(event Event) {
	if r.dispatcher != nil {
		r.dispatcher.DispatchTyped(r.ctx, event)
	}
}

func (r *Repair) Info(message string) {
	r.dispatch(InfoEvent{Message: message})
}

func (r *Repair) Warning(message string) {
	r.dispatch(WarningEvent{Message: message})
}

func (r *Repair) StartProgress(max int) {
	r.dispatch(StartEvent{Max: max, CurrentStepName: r.currentStep})
}

func (r *Repair) AdvanceProgress(step int, description string) {
	r.dispatch(AdvanceEvent{Increment: step, Description: description})
}

func (r *Repair) FinishProgress() {
	r.dispatch(FinishEvent{})
}
