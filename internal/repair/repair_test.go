package repair

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepair_Run_DispatchesStepEventsAndOutput(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	logger := &recordingLogger{}
	r := New(dispatcher, logger)
	r.AddStep(progressStep{})

	assert.Zero(t, r.Run(context.Background()))
	assert.Equal(t, []Event{
		StepEvent{StepName: "progress"},
		StartEvent{Max: 2, CurrentStepName: "progress"},
		AdvanceEvent{Increment: 1, Description: "first"},
		AdvanceEvent{Increment: 1, Description: "second"},
		FinishEvent{},
		InfoEvent{Message: "done"},
		WarningEvent{Message: "careful"},
	}, dispatcher.events)
	assert.Empty(t, logger.errors)
}

func TestRepair_Run_FailingStepIsReportedAndOthersRun(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	logger := &recordingLogger{}
	failing := &testStep{err: errors.New("boom")}
	next := &testStep{}

	r := New(dispatcher, logger)
	r.AddStep(failing)
	r.AddStep(next)

	assert.Equal(t, 1, r.Run(context.Background()))
	assert.Equal(t, 1, next.ran)
	require.Len(t, logger.errors, 1)
	assert.Contains(t, logger.errors[0], "boom")
	assert.Equal(t, []Event{
		StepEvent{StepName: "A test repair step"},
		ErrorEvent{Message: "boom"},
		StepEvent{StepName: "A test repair step"},
	}, dispatcher.events)
}

func TestRepair_Run_ClearsSteps(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	step := &testStep{}
	r := New(dispatcher, &recordingLogger{})
	r.AddStep(step)

	r.Run(context.Background())
	r.Run(context.Background())

	assert.Equal(t, 1, step.ran)
	assert.Equal(t, InfoEvent{Message: "No repair steps available"}, dispatcher.events[len(dispatcher.events)-1])
}

func TestDispatchers_FanOut(t *testing.T) {
	a, b := &recordingDispatcher{}, &recordingDispatcher{}
	Dispatchers{a, nil, b}.DispatchTyped(context.Background(), FinishEvent{})

	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}
