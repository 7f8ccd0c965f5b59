package trashbin

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/MimeLyc/cloudmaint/pkg/file"
	"github.com/MimeLyc/cloudmaint/pkg/log"
)

// maxSizePercent is the share of the user's free quota the trash may occupy.
const maxSizePercent = 50

var ErrInvalidPath = errors.New("invalid path")

type Trashbin struct {
	store      Store
	quotas     QuotaSource
	obligation func() string
	observer   Observer
	now        func() time.Time
}

type Option func(*Trashbin)

func WithObserver(o Observer) Option {
	return func(t *Trashbin) {
		t.observer = o
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *Trashbin) {
		t.now = now
	}
}

// New creates a Trashbin. obligation is read on every expiry run so that
// settings changes apply without a restart.
func New(store Store, quotas QuotaSource, obligation func() string, opts ...Option) *Trashbin {
	t := &Trashbin{
		store:      store,
		quotas:     quotas,
		obligation: obligation,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Trashbin) expiration() *Expiration {
	value := DefaultRetentionObligation
	if t.obligation != nil {
		value = t.obligation()
	}
	exp, err := ParseExpiration(value, t.now)
	if err != nil {
		log.Warn("Invalid trashbin retention obligation %q, falling back to %q: %v", value, DefaultRetentionObligation, err)
		exp, _ = ParseExpiration(DefaultRetentionObligation, t.now)
	}
	return exp
}

// MoveToTrash moves relPath from the user's files into the trash bin.
func (t *Trashbin) MoveToTrash(ctx context.Context, scope Scope, relPath string) (Item, error) {
	clean := path.Clean("/" + filepath.ToSlash(relPath))
	if clean == "/" {
		return Item{}, fmt.Errorf("cannot trash the root folder: %w", ErrInvalidPath)
	}
	src := filepath.Join(scope.FilesDir(), filepath.FromSlash(clean))

	if !file.Exists(src) {
		return Item{}, fmt.Errorf("%s: %w", clean, fs.ErrNotExist)
	}
	size, err := file.Size(src)
	if err != nil {
		return Item{}, err
	}

	item := Item{
		User:      scope.User(),
		Name:      path.Base(clean),
		Location:  path.Dir(clean),
		DeletedAt: t.now().UTC().Truncate(time.Second),
		Size:      size,
	}
	if err := os.MkdirAll(scope.TrashDir(), 0o755); err != nil {
		return Item{}, fmt.Errorf("create trash dir: %w", err)
	}
	// same name trashed within one second: move to the next free timestamp
	target := filepath.Join(scope.TrashDir(), item.StorageName())
	for file.Exists(target) {
		item.DeletedAt = item.DeletedAt.Add(time.Second)
		target = filepath.Join(scope.TrashDir(), item.StorageName())
	}
	if err := os.Rename(src, target); err != nil {
		return Item{}, fmt.Errorf("move %s to trash: %w", clean, err)
	}

	saved, err := t.store.AddTrashItem(ctx, item)
	if err != nil {
		return Item{}, fmt.Errorf("record trash item: %w", err)
	}
	return saved, nil
}

// Expire purges the user's trash: first every item past the retention
// obligation, then the oldest remaining items until the trash fits into its
// share of the quota again.
func (t *Trashbin) Expire(ctx context.Context, scope Scope) (Result, error) {
	user := scope.User()
	exp := t.expiration()
	if !exp.Enabled() {
		return Result{}, nil
	}

	items, err := t.store.ListTrashItems(ctx, user)
	if err != nil {
		return Result{}, fmt.Errorf("list trash of %s: %w", user, err)
	}

	trashSize, err := file.Size(scope.TrashDir())
	if err != nil {
		return Result{}, fmt.Errorf("measure trash of %s: %w", user, err)
	}
	available, limited, err := t.availableSpace(ctx, scope, trashSize)
	if err != nil {
		return Result{}, err
	}

	var res Result
	count := 0
	for _, item := range items {
		if !exp.IsExpired(item.DeletedAt, false) {
			break
		}
		size, err := t.delete(ctx, scope, item)
		if err != nil {
			return res, err
		}
		count++
		res.Deleted++
		res.Freed += size
		log.Info("Remove %q from trashbin of %s because it exceeds the retention obligation", item.Name, user)
	}
	available += res.Freed

	if limited && available < 0 {
		for _, item := range items[count:] {
			if available >= 0 || !exp.IsExpired(item.DeletedAt, true) {
				break
			}
			size, err := t.delete(ctx, scope, item)
			if err != nil {
				return res, err
			}
			available += size
			res.Deleted++
			res.Freed += size
			log.Info("Remove %q (%s) to meet the limit of trash bin size (%d%% of available quota) for user %s",
				item.Name, humanize.Bytes(uint64(size)), maxSizePercent, user)
		}
	}

	if t.observer != nil && res.Deleted > 0 {
		t.observer.TrashItemsDeleted(res.Deleted, res.Freed)
	}
	return res, nil
}

// availableSpace reports how many more bytes the trash may hold. limited is
// false when the user has no quota.
func (t *Trashbin) availableSpace(ctx context.Context, scope Scope, trashSize int64) (available int64, limited bool, err error) {
	quota, err := t.quotas.Quota(ctx, scope.User())
	if err != nil {
		return 0, false, fmt.Errorf("quota of %s: %w", scope.User(), err)
	}
	if quota <= 0 {
		return 0, false, nil
	}

	used, err := file.Size(scope.FilesDir())
	if err != nil {
		return 0, false, fmt.Errorf("measure files of %s: %w", scope.User(), err)
	}
	free := quota - used
	if free > 0 {
		return free*maxSizePercent/100 - trashSize, true, nil
	}
	return free - trashSize, true, nil
}

func (t *Trashbin) delete(ctx context.Context, scope Scope, item Item) (int64, error) {
	target := filepath.Join(scope.TrashDir(), item.StorageName())
	size, err := file.Size(target)
	if err != nil {
		return 0, err
	}
	if size == 0 {
		size = item.Size
	}
	if err := os.RemoveAll(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("remove %s: %w", target, err)
	}
	if err := t.store.DeleteTrashItem(ctx, item.User, item.ID); err != nil {
		return 0, fmt.Errorf("forget trash item %d: %w", item.ID, err)
	}
	return size, nil
}

// Orphans returns the user's items whose content is gone from disk.
func (t *Trashbin) Orphans(ctx context.Context, scope Scope) ([]Item, error) {
	items, err := t.store.ListTrashItems(ctx, scope.User())
	if err != nil {
		return nil, err
	}
	ret := make([]Item, 0)
	for _, item := range items {
		if !file.Exists(filepath.Join(scope.TrashDir(), item.StorageName())) {
			ret = append(ret, item)
		}
	}
	return ret, nil
}

// Forget drops metadata rows without touching the disk.
func (t *Trashbin) Forget(ctx context.Context, items []Item) error {
	for _, item := range items {
		if err := t.store.DeleteTrashItem(ctx, item.User, item.ID); err != nil {
			return err
		}
	}
	return nil
}
