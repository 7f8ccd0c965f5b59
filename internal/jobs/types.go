package jobs

import (
	"errors"
	"time"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// ErrDeferred is returned by an executor when the job cannot run yet. The job
// goes back to pending and is picked up again on the next start.
var ErrDeferred = errors.New("job deferred")

func IsDeferred(err error) bool {
	return errors.Is(err, ErrDeferred)
}

type EnqueueRequest struct {
	Class     string
	Argument  map[string]string
	DedupeKey string
}

// Job is one queued unit of background work. Class selects the handler,
// Argument is its opaque input.
type Job struct {
	ID        string            `json:"id"`
	Class     string            `json:"class"`
	Argument  map[string]string `json:"argument,omitempty"`
	DedupeKey string            `json:"dedupe_key,omitempty"`
	Status    Status            `json:"status"`
	Error     string            `json:"error,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
