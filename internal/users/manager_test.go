package users

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/cloudmaint/internal/persistence"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store, err := persistence.NewSQLiteStore(filepath.Join(t.TempDir(), "cloudmaint.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewManager(store)
}

func TestManager_CreateAndGet(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Create(ctx, User{UID: "alice", DisplayName: "Alice", Quota: 1024}))

	ok, err := m.UserExists(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	user, err := m.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, User{UID: "alice", DisplayName: "Alice", Quota: 1024}, user)

	quota, err := m.Quota(ctx, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 1024, quota)
}

func TestManager_UnknownUser(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	ok, err := m.UserExists(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.UserExists(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = m.Get(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)

	quota, err := m.Quota(ctx, "ghost")
	require.NoError(t, err)
	assert.Zero(t, quota)
}

func TestManager_CreateRejectsInvalidUID(t *testing.T) {
	m := newTestManager(t)
	for _, uid := range []string{"", "a/b", "..", `a\b`} {
		assert.Error(t, m.Create(context.Background(), User{UID: uid}), uid)
	}
	assert.Error(t, m.Create(context.Background(), User{UID: "neg", Quota: -1}))
}

func TestManager_UserValues(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Create(ctx, User{UID: "bob"}))

	_, ok, err := m.UserValue(ctx, "bob", "core", "lang")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.SetUserValue(ctx, "bob", "core", "lang", "de_DE"))
	value, ok, err := m.UserValue(ctx, "bob", "core", "lang")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "de_DE", value)

	err = m.SetUserValue(ctx, "mallory", "core", "lang", "fr")
	require.ErrorIs(t, err, ErrUserNotFound)
	_, ok, err = m.UserValue(ctx, "mallory", "core", "lang")
	require.NoError(t, err)
	assert.False(t, ok)

	list, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "bob", list[0].UID)
}
