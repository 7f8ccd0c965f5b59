package jobs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_Worker_TransitionsStatus(t *testing.T) {
	var mu sync.Mutex
	finished := make([]Job, 0)

	q := NewQueue(1, nil, WithFinishHook(func(job Job) {
		mu.Lock()
		finished = append(finished, job)
		mu.Unlock()
	}))
	q.Start(func(_ context.Context, _ *Job) error { return nil })
	defer q.Stop()

	job, _ := q.Enqueue(EnqueueRequest{
		Class:     "trashbin.expire",
		DedupeKey: "k1",
	})

	require.Eventually(t, func() bool {
		got, ok := q.Get(job.ID)
		if !ok || got == nil {
			return false
		}
		return got.Status == StatusSuccess
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(finished) == 1
	}, time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, "trashbin.expire", finished[0].Class)
	assert.Equal(t, StatusSuccess, finished[0].Status)
	mu.Unlock()
}

func TestQueue_Worker_SelfRemovedJobIsNotMarked(t *testing.T) {
	q := NewQueue(1, nil)
	done := make(chan struct{})
	q.Start(func(ctx context.Context, job *Job) error {
		defer close(done)
		return q.Remove(ctx, job.ID)
	})
	defer q.Stop()

	job, _ := q.Enqueue(EnqueueRequest{Class: "repair.background"})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job did not run")
	}
	// Give the worker a moment to record (or not) an outcome.
	time.Sleep(20 * time.Millisecond)

	_, ok := q.Get(job.ID)
	assert.False(t, ok)
	assert.Empty(t, q.List())
}

func TestQueue_Worker_DeferredJobStaysPending(t *testing.T) {
	q := NewQueue(1, nil)
	ran := make(chan struct{}, 4)
	q.Start(func(context.Context, *Job) error {
		ran <- struct{}{}
		return fmt.Errorf("app files: %w", ErrDeferred)
	})
	defer q.Stop()

	job, _ := q.Enqueue(EnqueueRequest{Class: "repair.background"})

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("job did not run")
	}

	require.Eventually(t, func() bool {
		got, ok := q.Get(job.ID)
		return ok && got.Status == StatusPending
	}, time.Second, 10*time.Millisecond)

	// Not retried within the same run.
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, ran, 0)
}

func TestQueue_Resume_RetriesDeferredJob(t *testing.T) {
	q := NewQueue(1, nil)
	var attempts atomic.Int32
	q.Start(func(ctx context.Context, job *Job) error {
		if attempts.Add(1) == 1 {
			return fmt.Errorf("app files: %w", ErrDeferred)
		}
		return nil
	})
	defer q.Stop()

	job, _ := q.Enqueue(EnqueueRequest{Class: "repair.background"})
	require.Eventually(t, func() bool {
		got, ok := q.Get(job.ID)
		return attempts.Load() == 1 && ok && got.Status == StatusPending
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, q.Resume())
	require.Eventually(t, func() bool {
		got, ok := q.Get(job.ID)
		return ok && got.Status == StatusSuccess
	}, time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 2, attempts.Load())
}

func TestQueue_Resume_BeforeStartIsNoop(t *testing.T) {
	q := NewQueue(1, nil)
	q.Enqueue(EnqueueRequest{Class: "repair.background"})
	assert.Zero(t, q.Resume())
}
