// Package command holds maintenance commands that run either directly from
// the CLI or as queued jobs.
package command

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/MimeLyc/cloudmaint/internal/jobs"
	"github.com/MimeLyc/cloudmaint/internal/trashbin"
	"github.com/MimeLyc/cloudmaint/internal/userfs"
	"github.com/MimeLyc/cloudmaint/pkg/log"
)

// ExpireClass is the job class of a queued trash expiry.
const ExpireClass = "trashbin.expire"

const argUser = "user"

type UserChecker interface {
	UserExists(ctx context.Context, uid string) (bool, error)
}

type Mounter interface {
	TearDown(user string)
	Setup(user string) (*userfs.Scope, error)
}

type Expirer interface {
	Expire(ctx context.Context, scope trashbin.Scope) (trashbin.Result, error)
}

// Expire purges the trash bin of one user.
type Expire struct {
	User string

	users   UserChecker
	mounter Mounter
	trash   Expirer
}

func NewExpire(user string, users UserChecker, mounter Mounter, trash Expirer) *Expire {
	return &Expire{User: user, users: users, mounter: mounter, trash: trash}
}

// Handle runs the expiry. Users that no longer exist are skipped without
// error.
func (c *Expire) Handle(ctx context.Context) (trashbin.Result, error) {
	exists, err := c.users.UserExists(ctx, c.User)
	if err != nil {
		return trashbin.Result{}, fmt.Errorf("check user %s: %w", c.User, err)
	}
	if !exists {
		log.Debug("Skip trash expiry of deleted user %s", c.User)
		return trashbin.Result{}, nil
	}

	c.mounter.TearDown(c.User)
	scope, err := c.mounter.Setup(c.User)
	if err != nil {
		return trashbin.Result{}, fmt.Errorf("setup filesystem of %s: %w", c.User, err)
	}
	defer scope.Release()

	res, err := c.trash.Expire(ctx, scope)
	if err != nil {
		return res, fmt.Errorf("expire trash of %s: %w", c.User, err)
	}
	if res.Deleted > 0 {
		log.Info("Expired %d trash item(s) of %s, freed %s", res.Deleted, c.User, humanize.Bytes(uint64(res.Freed)))
	}
	return res, nil
}

// ExpireArgument builds the job argument of a queued expiry.
func ExpireArgument(user string) map[string]string {
	return map[string]string{argUser: user}
}

// ExpireDedupeKey collapses repeated expiry requests for one user.
func ExpireDedupeKey(user string) string {
	return ExpireClass + "|" + user
}

// ExpireJob runs queued trash expiries.
type ExpireJob struct {
	users   UserChecker
	mounter Mounter
	trash   Expirer
}

func NewExpireJob(users UserChecker, mounter Mounter, trash Expirer) *ExpireJob {
	return &ExpireJob{users: users, mounter: mounter, trash: trash}
}

// JobList removes finished jobs.
type JobList interface {
	Remove(ctx context.Context, id string) error
}

// Start runs one attempt and removes the job afterwards, whatever the
// outcome. The expiry error, if any, is returned.
func (j *ExpireJob) Start(ctx context.Context, jobList JobList, job *jobs.Job) error {
	user := job.Argument[argUser]
	var runErr error
	if user == "" {
		log.Warn("Trash expiry job %s has no user", job.ID)
	} else {
		_, runErr = NewExpire(user, j.users, j.mounter, j.trash).Handle(ctx)
	}
	if err := jobList.Remove(ctx, job.ID); err != nil {
		return err
	}
	return runErr
}
