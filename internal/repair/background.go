package repair

import (
	"context"
	"errors"
	"fmt"

	"github.com/MimeLyc/cloudmaint/internal/apps"
	"github.com/MimeLyc/cloudmaint/internal/jobs"
)

// Class is the job class of a background repair.
const Class = "repair.background"

const (
	argApp  = "app"
	argStep = "step"
)

// JobList removes finished jobs.
type JobList interface {
	Remove(ctx context.Context, id string) error
}

type AppLoader interface {
	LoadApp(ctx context.Context, app string) error
}

// BackgroundRepair runs one registered repair step from a queued job and
// then removes the job. A job is attempted at most once.
type BackgroundRepair struct {
	registry   *Registry
	apps       AppLoader
	dispatcher Dispatcher
	logger     Logger
}

func NewBackgroundRepair(registry *Registry, apps AppLoader, dispatcher Dispatcher, logger Logger) *BackgroundRepair {
	return &BackgroundRepair{
		registry:   registry,
		apps:       apps,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Argument builds the job argument for running step of app.
func Argument(app, step string) map[string]string {
	return map[string]string{argApp: app, argStep: step}
}

// Start runs the job. Only an app waiting for its upgrade keeps the job
// queued; that case returns an error wrapping jobs.ErrDeferred.
func (b *BackgroundRepair) Start(ctx context.Context, jobList JobList, job *jobs.Job) error {
	app, hasApp := job.Argument[argApp]
	key, hasStep := job.Argument[argStep]
	if !hasApp || !hasStep {
		return jobList.Remove(ctx, job.ID)
	}

	step, err := b.registry.Resolve(key)
	if err != nil {
		b.logger.Error("Background repair %s of app %s: %v", job.ID, app, err)
		return jobList.Remove(ctx, job.ID)
	}

	if err := b.apps.LoadApp(ctx, app); err != nil {
		if errors.Is(err, apps.ErrAppNeedsUpgrade) {
			return fmt.Errorf("repair step %s waits for upgrade: %w", key, errors.Join(err, jobs.ErrDeferred))
		}
		b.logger.Error("Background repair %s could not load app %s: %v", job.ID, app, err)
		return jobList.Remove(ctx, job.ID)
	}

	r := New(b.dispatcher, b.logger)
	r.AddStep(step)
	if failed := r.Run(ctx); failed == 0 {
		b.logger.Info("Background repair step %s of app %s finished", key, app)
	}

	return jobList.Remove(ctx, job.ID)
}
