package command

import (
	"context"
	"fmt"

	"github.com/MimeLyc/cloudmaint/internal/trashbin"
	"github.com/MimeLyc/cloudmaint/internal/users"
	"github.com/MimeLyc/cloudmaint/pkg/log"
)

type Trasher interface {
	MoveToTrash(ctx context.Context, scope trashbin.Scope, relPath string) (trashbin.Item, error)
}

// Delete moves a file or folder of one user into that user's trash bin.
type Delete struct {
	User string
	Path string

	users   UserChecker
	mounter Mounter
	trash   Trasher
}

func NewDelete(user, path string, users UserChecker, mounter Mounter, trash Trasher) *Delete {
	return &Delete{User: user, Path: path, users: users, mounter: mounter, trash: trash}
}

// Handle trashes Path. Unlike expiry, an unknown user is an error.
func (c *Delete) Handle(ctx context.Context) (trashbin.Item, error) {
	exists, err := c.users.UserExists(ctx, c.User)
	if err != nil {
		return trashbin.Item{}, fmt.Errorf("check user %s: %w", c.User, err)
	}
	if !exists {
		return trashbin.Item{}, fmt.Errorf("%s: %w", c.User, users.ErrUserNotFound)
	}

	scope, err := c.mounter.Setup(c.User)
	if err != nil {
		return trashbin.Item{}, fmt.Errorf("setup filesystem of %s: %w", c.User, err)
	}
	defer scope.Release()

	item, err := c.trash.MoveToTrash(ctx, scope, c.Path)
	if err != nil {
		return trashbin.Item{}, fmt.Errorf("trash %s of %s: %w", c.Path, c.User, err)
	}
	log.Info("Moved %s of %s to the trash bin as %s", c.Path, c.User, item.StorageName())
	return item, nil
}
