package jobs

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MimeLyc/cloudmaint/pkg/log"
)

type Executor func(ctx context.Context, job *Job) error

// FinishHook observes jobs that reached a terminal status.
type FinishHook func(job Job)

type Option func(*Queue)

func WithMaxJobs(n int) Option {
	return func(q *Queue) {
		q.maxJobs = n
	}
}

func WithFinishHook(hook FinishHook) Option {
	return func(q *Queue) {
		q.onFinish = hook
	}
}

type Queue struct {
	workerCount int
	maxJobs     int
	store       Store
	onFinish    FinishHook

	mu         sync.RWMutex
	jobs       map[string]*Job
	dedupe     map[string]string
	idCounter  uint64
	started    bool
	pendingIDs chan string
	ctx        context.Context
	cancel     context.CancelFunc
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

func NewQueue(workerCount int, store Store, opts ...Option) *Queue {
	if workerCount <= 0 {
		workerCount = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		workerCount: workerCount,
		maxJobs:     1000,
		store:       store,
		jobs:        make(map[string]*Job),
		dedupe:      make(map[string]string),
		pendingIDs:  make(chan string, 1024),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.hydrateFromStore(context.Background())
	return q
}

// Enqueue adds a job. When another pending or running job holds the same
// dedupe key, that job is returned and created is false.
func (q *Queue) Enqueue(req EnqueueRequest) (job *Job, created bool) {
	now := time.Now()

	q.mu.Lock()
	if req.DedupeKey != "" {
		if id, ok := q.dedupe[req.DedupeKey]; ok {
			if existing, exists := q.jobs[id]; exists {
				snapshot := cloneJob(existing)
				q.mu.Unlock()
				return snapshot, false
			}
			delete(q.dedupe, req.DedupeKey)
		}
	}

	id := fmt.Sprintf("job-%d", atomic.AddUint64(&q.idCounter, 1))
	j := &Job{
		ID:        id,
		Class:     req.Class,
		Argument:  maps.Clone(req.Argument),
		DedupeKey: req.DedupeKey,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	q.jobs[id] = j
	if req.DedupeKey != "" {
		q.dedupe[req.DedupeKey] = id
	}
	started := q.started
	snapshot := cloneJob(j)
	q.mu.Unlock()

	q.persistJob(snapshot)
	if started {
		q.enqueuePendingID(id)
	}
	return snapshot, true
}

func (q *Queue) Get(id string) (*Job, bool) {
	q.mu.RLock()
	job, ok := q.jobs[id]
	q.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return cloneJob(job), true
}

// List returns a snapshot of all jobs, oldest first.
func (q *Queue) List() []*Job {
	q.mu.RLock()
	ret := make([]*Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		ret = append(ret, cloneJob(job))
	}
	q.mu.RUnlock()

	sort.Slice(ret, func(i, j int) bool {
		if ret[i].CreatedAt.Equal(ret[j].CreatedAt) {
			return jobSeq(ret[i].ID) < jobSeq(ret[j].ID)
		}
		return ret[i].CreatedAt.Before(ret[j].CreatedAt)
	})
	return ret
}

// Remove drops a job from the list. Unknown ids are ignored so that a job
// may remove itself more than once.
func (q *Queue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if ok {
		q.releaseDedupeLocked(job)
		delete(q.jobs, id)
	}
	q.mu.Unlock()

	if !ok || q.store == nil {
		return nil
	}
	if err := q.store.DeleteJob(ctx, id); err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

func (q *Queue) Start(exec Executor) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	pending := q.pendingIDsLocked()
	q.mu.Unlock()

	for _, id := range pending {
		q.enqueuePendingID(id)
	}

	for range q.workerCount {
		q.wg.Add(1)
		go q.worker(exec)
	}
}

// Resume hands every pending job to the workers again so that deferred jobs
// get another attempt. It returns how many jobs were handed over and does
// nothing before Start.
func (q *Queue) Resume() int {
	q.mu.RLock()
	if !q.started {
		q.mu.RUnlock()
		return 0
	}
	pending := q.pendingIDsLocked()
	q.mu.RUnlock()

	for _, id := range pending {
		q.enqueuePendingID(id)
	}
	return len(pending)
}

// pendingIDsLocked lists pending jobs in creation order.
func (q *Queue) pendingIDsLocked() []string {
	ids := make([]string, 0)
	for id, job := range q.jobs {
		if job.Status == StatusPending {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return jobSeq(ids[i]) < jobSeq(ids[j])
	})
	return ids
}

func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		q.cancel()
		q.wg.Wait()
	})
}

func (q *Queue) worker(exec Executor) {
	defer q.wg.Done()

	for {
		select {
		case <-q.ctx.Done():
			return
		case id := <-q.pendingIDs:
			job, ok := q.markRunning(id)
			if !ok {
				continue
			}

			err := exec(q.ctx, job)
			switch {
			case IsDeferred(err):
				q.markPending(id)
			case err != nil:
				q.markFinished(id, StatusFailed, err)
			default:
				q.markFinished(id, StatusSuccess, nil)
			}
		}
	}
}

func (q *Queue) enqueuePendingID(id string) {
	select {
	case q.pendingIDs <- id:
	default:
		go func() {
			select {
			case q.pendingIDs <- id:
			case <-q.ctx.Done():
			}
		}()
	}
}

func (q *Queue) markRunning(id string) (*Job, bool) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok || job.Status != StatusPending {
		q.mu.Unlock()
		return nil, false
	}
	job.Status = StatusRunning
	job.UpdatedAt = time.Now()
	snapshot := cloneJob(job)
	q.mu.Unlock()

	q.persistJob(snapshot)
	return snapshot, true
}

func (q *Queue) markPending(id string) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	job.Status = StatusPending
	job.UpdatedAt = time.Now()
	snapshot := cloneJob(job)
	q.mu.Unlock()

	log.Info("Job %s (%s) deferred", id, snapshot.Class)
	q.persistJob(snapshot)
}

// markFinished records the outcome unless the job removed itself while running.
func (q *Queue) markFinished(id string, status Status, err error) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	job.Status = status
	job.Error = ""
	if err != nil {
		job.Error = err.Error()
	}
	job.UpdatedAt = time.Now()
	q.releaseDedupeLocked(job)
	pruned := q.pruneTerminalJobsLocked()
	snapshot := cloneJob(job)
	q.mu.Unlock()

	q.persistJob(snapshot)
	q.deleteJobsFromStore(pruned)
	if q.onFinish != nil {
		q.onFinish(*snapshot)
	}
}

func (q *Queue) releaseDedupeLocked(job *Job) {
	if job == nil || job.DedupeKey == "" {
		return
	}
	if id, ok := q.dedupe[job.DedupeKey]; ok && id == job.ID {
		delete(q.dedupe, job.DedupeKey)
	}
}

func (q *Queue) pruneTerminalJobsLocked() []string {
	if q.maxJobs <= 0 || len(q.jobs) <= q.maxJobs {
		return nil
	}

	type candidate struct {
		id        string
		updatedAt time.Time
	}
	terminal := make([]candidate, 0, len(q.jobs))
	for id, job := range q.jobs {
		if job == nil {
			continue
		}
		if job.Status == StatusPending || job.Status == StatusRunning {
			continue
		}
		terminal = append(terminal, candidate{id: id, updatedAt: job.UpdatedAt})
	}
	if len(terminal) == 0 {
		return nil
	}

	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].updatedAt.Before(terminal[j].updatedAt)
	})

	toRemove := min(len(q.jobs)-q.maxJobs, len(terminal))
	pruned := make([]string, 0, toRemove)
	for i := range toRemove {
		id := terminal[i].id
		q.releaseDedupeLocked(q.jobs[id])
		delete(q.jobs, id)
		pruned = append(pruned, id)
	}
	return pruned
}

func (q *Queue) deleteJobsFromStore(ids []string) {
	if q.store == nil || len(ids) == 0 {
		return
	}
	for _, id := range ids {
		if err := q.store.DeleteJob(context.Background(), id); err != nil {
			log.Error("Failed to delete pruned job %s from store: %v", id, err)
		}
	}
}

func (q *Queue) hydrateFromStore(ctx context.Context) {
	if q.store == nil {
		return
	}
	loaded, err := q.store.LoadJobs(ctx)
	if err != nil {
		log.Error("Failed to load jobs from store: %v", err)
		return
	}

	now := time.Now()
	toPersist := make([]*Job, 0)
	q.mu.Lock()
	for _, raw := range loaded {
		if raw == nil || raw.ID == "" {
			continue
		}
		job := cloneJob(raw)
		if job.Status == StatusRunning {
			job.Status = StatusPending
			job.UpdatedAt = now
			toPersist = append(toPersist, cloneJob(job))
		}
		q.jobs[job.ID] = job
		if job.Status == StatusPending && job.DedupeKey != "" {
			q.dedupe[job.DedupeKey] = job.ID
		}
		if n := jobSeq(job.ID); n > q.idCounter {
			q.idCounter = n
		}
	}
	q.mu.Unlock()

	for _, job := range toPersist {
		q.persistJob(job)
	}
}

// jobSeq extracts the sequence number of a "job-N" id, 0 otherwise.
func jobSeq(jobID string) uint64 {
	if !strings.HasPrefix(jobID, "job-") {
		return 0
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(jobID, "job-"), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func (q *Queue) persistJob(job *Job) {
	if q.store == nil || job == nil {
		return
	}
	if err := q.store.UpsertJob(context.Background(), job); err != nil {
		log.Error("Failed to persist job %s: %v", job.ID, err)
	}
}

func cloneJob(job *Job) *Job {
	if job == nil {
		return nil
	}
	tmp := *job
	tmp.Argument = maps.Clone(job.Argument)
	return &tmp
}
