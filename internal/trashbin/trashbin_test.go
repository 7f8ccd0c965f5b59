package trashbin

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	nextID int64
	items  map[int64]Item
}

func newMemoryStore() *memoryStore {
	return &memoryStore{items: make(map[int64]Item)}
}

func (m *memoryStore) AddTrashItem(_ context.Context, item Item) (Item, error) {
	m.nextID++
	item.ID = m.nextID
	m.items[item.ID] = item
	return item, nil
}

func (m *memoryStore) ListTrashItems(_ context.Context, user string) ([]Item, error) {
	ret := make([]Item, 0)
	for _, item := range m.items {
		if item.User == user {
			ret = append(ret, item)
		}
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].DeletedAt.Before(ret[j].DeletedAt) })
	return ret, nil
}

func (m *memoryStore) DeleteTrashItem(_ context.Context, user string, id int64) error {
	if item, ok := m.items[id]; ok && item.User == user {
		delete(m.items, id)
	}
	return nil
}

type fakeScope struct {
	user string
	root string
}

func (s fakeScope) User() string     { return s.user }
func (s fakeScope) FilesDir() string { return filepath.Join(s.root, s.user, "files") }
func (s fakeScope) TrashDir() string { return filepath.Join(s.root, s.user, "files_trashbin", "files") }

type fixedQuota int64

func (q fixedQuota) Quota(context.Context, string) (int64, error) { return int64(q), nil }

type countingObserver struct {
	count int
	bytes int64
}

func (o *countingObserver) TrashItemsDeleted(count int, bytes int64) {
	o.count += count
	o.bytes += bytes
}

func addTrashed(t *testing.T, store *memoryStore, scope fakeScope, name string, size int, deletedAt time.Time) Item {
	t.Helper()
	item := Item{User: scope.user, Name: name, Location: "/", DeletedAt: deletedAt, Size: int64(size)}
	require.NoError(t, os.MkdirAll(scope.TrashDir(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(scope.TrashDir(), item.StorageName()), make([]byte, size), 0o644))
	saved, err := store.AddTrashItem(context.Background(), item)
	require.NoError(t, err)
	return saved
}

func TestTrashbin_MoveToTrash(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	scope := fakeScope{user: "alice", root: t.TempDir()}
	require.NoError(t, os.MkdirAll(filepath.Join(scope.FilesDir(), "docs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(scope.FilesDir(), "docs", "a.txt"), []byte("hello"), 0o644))

	store := newMemoryStore()
	tb := New(store, fixedQuota(0), nil, WithClock(func() time.Time { return now }))

	item, err := tb.MoveToTrash(context.Background(), scope, "docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", item.Name)
	assert.Equal(t, "/docs", item.Location)
	assert.EqualValues(t, 5, item.Size)
	assert.FileExists(t, filepath.Join(scope.TrashDir(), "a.txt.d"+"1717243200"))
	assert.NoFileExists(t, filepath.Join(scope.FilesDir(), "docs", "a.txt"))

	_, err = tb.MoveToTrash(context.Background(), scope, "docs/missing.txt")
	require.Error(t, err)
	_, err = tb.MoveToTrash(context.Background(), scope, "/")
	require.ErrorIs(t, err, ErrInvalidPath)
}

func TestTrashbin_MoveToTrash_SameNameWithinOneSecond(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	scope := fakeScope{user: "alice", root: t.TempDir()}
	for _, dir := range []string{"a", "b"} {
		require.NoError(t, os.MkdirAll(filepath.Join(scope.FilesDir(), dir), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(scope.FilesDir(), "a", "notes.txt"), []byte("first"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(scope.FilesDir(), "b", "notes.txt"), []byte("second!"), 0o644))

	store := newMemoryStore()
	tb := New(store, fixedQuota(0), nil, WithClock(func() time.Time { return now }))

	first, err := tb.MoveToTrash(context.Background(), scope, "a/notes.txt")
	require.NoError(t, err)
	second, err := tb.MoveToTrash(context.Background(), scope, "b/notes.txt")
	require.NoError(t, err)

	assert.NotEqual(t, first.StorageName(), second.StorageName())
	assert.Equal(t, now.Add(time.Second), second.DeletedAt)

	content, err := os.ReadFile(filepath.Join(scope.TrashDir(), first.StorageName()))
	require.NoError(t, err)
	assert.Equal(t, "first", string(content))
	content, err = os.ReadFile(filepath.Join(scope.TrashDir(), second.StorageName()))
	require.NoError(t, err)
	assert.Equal(t, "second!", string(content))
}

func TestTrashbin_Expire_RemovesItemsPastMaxAge(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	scope := fakeScope{user: "alice", root: t.TempDir()}
	store := newMemoryStore()
	observer := &countingObserver{}

	old := addTrashed(t, store, scope, "old.txt", 10, now.Add(-40*24*time.Hour))
	addTrashed(t, store, scope, "recent.txt", 20, now.Add(-2*24*time.Hour))

	tb := New(store, fixedQuota(0), func() string { return "auto, 30" },
		WithClock(func() time.Time { return now }), WithObserver(observer))

	res, err := tb.Expire(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, Result{Deleted: 1, Freed: 10}, res)
	assert.NoFileExists(t, filepath.Join(scope.TrashDir(), old.StorageName()))

	left, err := store.ListTrashItems(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "recent.txt", left[0].Name)
	assert.Equal(t, 1, observer.count)
	assert.EqualValues(t, 10, observer.bytes)
}

func TestTrashbin_Expire_PurgesOldestToMeetQuota(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	scope := fakeScope{user: "bob", root: t.TempDir()}
	store := newMemoryStore()

	require.NoError(t, os.MkdirAll(scope.FilesDir(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(scope.FilesDir(), "big.bin"), make([]byte, 600), 0o644))

	addTrashed(t, store, scope, "first.bin", 150, now.Add(-3*24*time.Hour))
	addTrashed(t, store, scope, "second.bin", 150, now.Add(-2*24*time.Hour))
	addTrashed(t, store, scope, "third.bin", 50, now.Add(-1*24*time.Hour))

	// free = 1000-600 = 400, trash may use 200, holds 350
	tb := New(store, fixedQuota(1000), func() string { return "auto" }, WithClock(func() time.Time { return now }))

	res, err := tb.Expire(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	assert.EqualValues(t, 150, res.Freed)

	left, err := store.ListTrashItems(context.Background(), "bob")
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Equal(t, "second.bin", left[0].Name)
}

func TestTrashbin_Expire_NoSpacePurgeWithFixedObligation(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	scope := fakeScope{user: "carol", root: t.TempDir()}
	store := newMemoryStore()

	addTrashed(t, store, scope, "a.bin", 500, now.Add(-24*time.Hour))

	tb := New(store, fixedQuota(100), func() string { return "5, 10" }, WithClock(func() time.Time { return now }))

	res, err := tb.Expire(context.Background(), scope)
	require.NoError(t, err)
	assert.Zero(t, res.Deleted)
}

func TestTrashbin_Expire_DisabledKeepsEverything(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	scope := fakeScope{user: "dave", root: t.TempDir()}
	store := newMemoryStore()
	addTrashed(t, store, scope, "ancient.txt", 1, now.Add(-1000*24*time.Hour))

	tb := New(store, fixedQuota(1), func() string { return "disabled" }, WithClock(func() time.Time { return now }))

	res, err := tb.Expire(context.Background(), scope)
	require.NoError(t, err)
	assert.Zero(t, res.Deleted)
	assert.Len(t, store.items, 1)
}

func TestTrashbin_Orphans(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	scope := fakeScope{user: "erin", root: t.TempDir()}
	store := newMemoryStore()

	kept := addTrashed(t, store, scope, "kept.txt", 1, now)
	gone := addTrashed(t, store, scope, "gone.txt", 1, now.Add(time.Second))
	require.NoError(t, os.Remove(filepath.Join(scope.TrashDir(), gone.StorageName())))

	tb := New(store, fixedQuota(0), nil)
	orphans, err := tb.Orphans(context.Background(), scope)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, gone.ID, orphans[0].ID)

	require.NoError(t, tb.Forget(context.Background(), orphans))
	left, err := store.ListTrashItems(context.Background(), "erin")
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, kept.ID, left[0].ID)
}
