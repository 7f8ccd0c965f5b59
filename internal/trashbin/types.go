package trashbin

import (
	"context"
	"fmt"
	"time"
)

// Item is one entry of a user's trash bin. The content lives on disk at
// <trash dir>/<StorageName()>.
type Item struct {
	ID        int64     `json:"id"`
	User      string    `json:"user"`
	Name      string    `json:"name"`
	Location  string    `json:"location"`
	DeletedAt time.Time `json:"deleted_at"`
	Size      int64     `json:"size"`
}

func (i Item) StorageName() string {
	return fmt.Sprintf("%s.d%d", i.Name, i.DeletedAt.Unix())
}

// Store persists trash item metadata.
type Store interface {
	AddTrashItem(ctx context.Context, item Item) (Item, error)
	// ListTrashItems returns the user's items, oldest first.
	ListTrashItems(ctx context.Context, user string) ([]Item, error)
	DeleteTrashItem(ctx context.Context, user string, id int64) error
}

// Scope is the filesystem view of a single user.
type Scope interface {
	User() string
	FilesDir() string
	TrashDir() string
}

// QuotaSource reports a user's quota in bytes; 0 means unlimited.
type QuotaSource interface {
	Quota(ctx context.Context, user string) (int64, error)
}

type Result struct {
	Deleted int   `json:"deleted"`
	Freed   int64 `json:"freed"`
}

// Observer is notified about purged items.
type Observer interface {
	TrashItemsDeleted(count int, bytes int64)
}
