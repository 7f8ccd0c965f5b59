package apps

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryConfig map[string]string

func (c memoryConfig) GetAppValue(_ context.Context, app, key string) (string, bool, error) {
	v, ok := c[app+"."+key]
	return v, ok, nil
}

func (c memoryConfig) SetAppValue(_ context.Context, app, key, value string) error {
	c[app+"."+key] = value
	return nil
}

func writeApp(t *testing.T, root, id, version string) {
	t.Helper()
	dir := filepath.Join(root, "apps", id, "appinfo")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "info.json"),
		[]byte(`{"name":"`+id+`","version":"`+version+`"}`), 0o644))
}

func TestManager_AppPath(t *testing.T) {
	root := t.TempDir()
	writeApp(t, root, "files", "1.0")
	m := NewManager(root, memoryConfig{})

	dir, err := m.AppPath("files")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "apps", "files"), dir)

	for _, app := range []string{"missing", "../core", ""} {
		_, err = m.AppPath(app)
		assert.ErrorIs(t, err, ErrAppPathNotFound, app)
	}

	list, err := m.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"files"}, list)
}

func TestManager_LoadApp(t *testing.T) {
	root := t.TempDir()
	writeApp(t, root, "files", "1.2.0")
	cfg := memoryConfig{}
	m := NewManager(root, cfg)
	ctx := context.Background()

	require.NoError(t, m.LoadApp(ctx, "core"))
	require.NoError(t, m.LoadApp(ctx, ""))

	require.NoError(t, m.LoadApp(ctx, "files"))
	assert.Equal(t, "1.2.0", cfg["files.installed_version"])

	assert.ErrorIs(t, m.LoadApp(ctx, "nope"), ErrAppPathNotFound)
}

func TestManager_LoadApp_NeedsUpgrade(t *testing.T) {
	root := t.TempDir()
	writeApp(t, root, "files", "2.0")
	cfg := memoryConfig{"files.installed_version": "1.9.3"}
	m := NewManager(root, cfg)
	ctx := context.Background()

	assert.ErrorIs(t, m.LoadApp(ctx, "files"), ErrAppNeedsUpgrade)

	require.NoError(t, m.Upgrade(ctx, "files"))
	require.NoError(t, m.LoadApp(ctx, "files"))
}

func TestCompareVersions(t *testing.T) {
	assert.Equal(t, 0, compareVersions("1.0", "1.0.0"))
	assert.Equal(t, 1, compareVersions("1.10", "1.9"))
	assert.Equal(t, -1, compareVersions("1.2.3", "1.3"))
	assert.Equal(t, 0, compareVersions("", ""))
}
