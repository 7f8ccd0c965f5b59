package repair

import (
	"context"
	"fmt"
	"sync"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []Event
}

func (d *recordingDispatcher) DispatchTyped(_ context.Context, event Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
}

type recordingLogger struct {
	infos  []string
	warns  []string
	errors []string
}

func (l *recordingLogger) Info(format string, args ...any) {
	l.infos = append(l.infos, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Warn(format string, args ...any) {
	l.warns = append(l.warns, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Error(format string, args ...any) {
	l.errors = append(l.errors, fmt.Sprintf(format, args...))
}

type recordingJobList struct {
	removed []string
}

func (j *recordingJobList) Remove(_ context.Context, id string) error {
	j.removed = append(j.removed, id)
	return nil
}

type fakeAppLoader struct {
	loaded []string
	err    error
}

func (a *fakeAppLoader) LoadApp(_ context.Context, app string) error {
	a.loaded = append(a.loaded, app)
	return a.err
}

// testStep does nothing and succeeds unless err is set.
type testStep struct {
	err error
	ran int
}

func (s *testStep) Name() string { return "A test repair step" }

func (s *testStep) Run(_ context.Context, out Output) error {
	s.ran++
	return s.err
}

// progressStep reports progress on the output.
type progressStep struct{}

func (progressStep) Name() string { return "progress" }

func (progressStep) Run(_ context.Context, out Output) error {
	out.StartProgress(2)
	out.AdvanceProgress(1, "first")
	out.AdvanceProgress(1, "second")
	out.FinishProgress()
	out.Info("done")
	out.Warning("careful")
	return nil
}
