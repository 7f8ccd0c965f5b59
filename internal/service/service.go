package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/cloudmaint/internal/command"
	"github.com/MimeLyc/cloudmaint/internal/jobs"
	"github.com/MimeLyc/cloudmaint/internal/repair"
	"github.com/MimeLyc/cloudmaint/internal/users"
	"github.com/MimeLyc/cloudmaint/pkg/log"
)

// JobFunc runs one queued job of a class. It is responsible for removing the
// job from the list when it is done with it.
type JobFunc func(ctx context.Context, job *jobs.Job) error

type UserLister interface {
	List(ctx context.Context) ([]users.User, error)
}

type JobQueue interface {
	Enqueue(req jobs.EnqueueRequest) (*jobs.Job, bool)
	Remove(ctx context.Context, id string) error
}

// Recorder receives execution metrics. *metrics.Metrics satisfies it.
type Recorder interface {
	ObserveJob(class string, err error, elapsed time.Duration)
	ObserveSweep(elapsed time.Duration)
}

// MaintService dispatches queued jobs to their class handlers and schedules
// the trash sweep.
type MaintService struct {
	cron     *cron.Cron
	cronExpr string
	queue    JobQueue
	users    UserLister

	recorder   Recorder
	errHandler ErrorHandler

	mu       sync.RWMutex
	handlers map[string]JobFunc
	entryID  cron.EntryID

	// overlapping sweeps of one service share a single run
	sweeps singleflight.Group
}

type Option func(*MaintService)

func WithRecorder(r Recorder) Option {
	return func(s *MaintService) {
		s.recorder = r
	}
}

func WithErrorHandler(h ErrorHandler) Option {
	return func(s *MaintService) {
		s.errHandler = h
	}
}

func NewMaintService(cronEngine *cron.Cron, cronExpr string, queue JobQueue, users UserLister, opts ...Option) *MaintService {
	s := &MaintService{
		cron:       cronEngine,
		cronExpr:   cronExpr,
		queue:      queue,
		users:      users,
		errHandler: NewDefaultErrorHandler(),
		handlers:   make(map[string]JobFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle routes jobs of class to fn. A later call for the same class
// replaces the handler.
func (s *MaintService) Handle(class string, fn JobFunc) {
	s.mu.Lock()
	s.handlers[class] = fn
	s.mu.Unlock()
}

func (s *MaintService) Classes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ret := make([]string, 0, len(s.handlers))
	for class := range s.handlers {
		ret = append(ret, class)
	}
	sort.Strings(ret)
	return ret
}

// Execute is the queue executor. Jobs of unknown classes are dropped.
func (s *MaintService) Execute(ctx context.Context, job *jobs.Job) error {
	s.mu.RLock()
	fn, ok := s.handlers[job.Class]
	s.mu.RUnlock()

	start := time.Now()
	var err error
	if !ok {
		err = NewError(ErrUnknownJobClass, "no handler for job class").
			WithContext("class", job.Class).
			WithContext("job", job.ID)
		if rmErr := s.queue.Remove(ctx, job.ID); rmErr != nil {
			log.Warn("Failed to drop job %s: %v", job.ID, rmErr)
		}
	} else {
		err = SafeExecute(func() error { return fn(ctx, job) })
	}

	if s.recorder != nil {
		s.recorder.ObserveJob(job.Class, err, time.Since(start))
	}
	switch {
	case err == nil:
		log.Debug("Job %s (%s) finished in %s", job.ID, job.Class, time.Since(start))
	case jobs.IsDeferred(err):
		log.Info("Job %s (%s) deferred: %v", job.ID, job.Class, err)
	case IsErrorType(err, ErrUnknownJobClass) || IsErrorType(err, ErrUnknown):
		s.errHandler.Handle(err)
	default:
		s.errHandler.Handle(WrapError(err, ErrJob, "job failed").
			WithContext("class", job.Class).
			WithContext("job", job.ID))
	}
	return err
}

// Schedule registers the trash sweep with the cron engine.
func (s *MaintService) Schedule(ctx context.Context) error {
	log.Info("Schedule trash sweep at %q", s.cronExpr)

	runFunc := func() {
		if _, err := s.Sweep(ctx); err != nil {
			log.Error("Trash sweep failed: %v", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
	}
	id, err := s.cron.AddFunc(s.cronExpr, runFunc)
	if err != nil {
		return err
	}
	s.entryID = id
	return nil
}

// Sweep enqueues one trash expiry per user. Concurrent sweeps share one run.
func (s *MaintService) Sweep(ctx context.Context) (int, error) {
	v, err, _ := s.sweeps.Do("sweep", func() (any, error) {
		start := time.Now()
		list, err := s.users.List(ctx)
		if err != nil {
			return 0, WrapError(err, ErrStorage, "list users")
		}

		created := 0
		for _, user := range list {
			if _, ok := s.EnqueueExpire(user.UID); ok {
				created++
			}
		}
		log.Info("Trash sweep queued %d expiry job(s) for %d user(s)", created, len(list))
		if s.recorder != nil {
			s.recorder.ObserveSweep(time.Since(start))
		}
		return created, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// EnqueueRepair queues a background run of a registered repair step.
func (s *MaintService) EnqueueRepair(app, step string) (*jobs.Job, bool) {
	return s.queue.Enqueue(jobs.EnqueueRequest{
		Class:     repair.Class,
		Argument:  repair.Argument(app, step),
		DedupeKey: repair.Class + "|" + app + "|" + step,
	})
}

// EnqueueExpire queues a trash expiry for user unless one is already waiting.
func (s *MaintService) EnqueueExpire(user string) (*jobs.Job, bool) {
	return s.queue.Enqueue(jobs.EnqueueRequest{
		Class:     command.ExpireClass,
		Argument:  command.ExpireArgument(user),
		DedupeKey: command.ExpireDedupeKey(user),
	})
}
