package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/cloudmaint/internal/config"
	"github.com/MimeLyc/cloudmaint/internal/jobs"
	"github.com/MimeLyc/cloudmaint/internal/repair"
	"github.com/MimeLyc/cloudmaint/internal/trashbin"
	"github.com/MimeLyc/cloudmaint/internal/users"
)

func newTestComponents(t *testing.T) *Components {
	t.Helper()
	return openComponents(t, newTestConfig(t))
}

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		System: config.SystemConfig{
			DataDir:      filepath.Join(dir, "data"),
			ServerRoot:   filepath.Join(dir, "server"),
			SettingsFile: filepath.Join(dir, "settings.json"),
		},
		Jobs:  config.JobsConfig{Workers: 1},
		Trash: config.TrashConfig{CronExpr: "0 3 * * *"},
	}
	require.NoError(t, os.MkdirAll(cfg.System.DataDir, 0o755))
	return cfg
}

func openComponents(t *testing.T, cfg *config.Config) *Components {
	t.Helper()
	c, err := NewComponents(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewComponents_RegistersStepsAndHandlers(t *testing.T) {
	c := newTestComponents(t)

	assert.Equal(t, []string{repair.CheckTranslationCatalogsKey, repair.CleanupTrashOrphansKey}, c.Steps.List())
	assert.Equal(t, []string{repair.Class, "trashbin.expire"}, c.Service.Classes())
}

func TestComponents_SweepExpiresOldTrash(t *testing.T) {
	c := newTestComponents(t)
	ctx := context.Background()

	settings := config.DefaultSystemSettings()
	settings.RetentionObligation = "auto, 1"
	_, err := c.Settings.UpdateSystemSettings(settings)
	require.NoError(t, err)

	require.NoError(t, c.Users.Create(ctx, users.User{UID: "alice"}))
	item, err := c.Store.AddTrashItem(ctx, trashbin.Item{
		User:      "alice",
		Name:      "report.odt",
		Location:  "/",
		DeletedAt: time.Now().Add(-72 * time.Hour).Truncate(time.Second),
		Size:      5,
	})
	require.NoError(t, err)
	trashDir := filepath.Join(c.Config.System.DataDir, "alice", "files_trashbin", "files")
	require.NoError(t, os.MkdirAll(trashDir, 0o755))
	stored := filepath.Join(trashDir, item.StorageName())
	require.NoError(t, os.WriteFile(stored, []byte("hello"), 0o644))

	created, err := c.Service.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, created)

	c.Start()
	require.Eventually(t, func() bool {
		return len(c.Queue.List()) == 0
	}, 2*time.Second, 10*time.Millisecond)

	assert.NoFileExists(t, stored)
	items, err := c.Store.ListTrashItems(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Zero(t, c.Mounter.Active("alice"))
}

func TestComponents_RepairJobEmitsEventsAndIsRemoved(t *testing.T) {
	c := newTestComponents(t)
	msgs, cancel := c.Hub.Subscribe(16)
	defer cancel()

	_, created := c.Service.EnqueueRepair("core", repair.CleanupTrashOrphansKey)
	require.True(t, created)
	c.Start()

	require.Eventually(t, func() bool {
		return len(c.Queue.List()) == 0
	}, 2*time.Second, 10*time.Millisecond)

	select {
	case msg := <-msgs:
		assert.Equal(t, "repair.step", msg.Name)
		assert.JSONEq(t, `{"step_name":"Remove orphaned trash bin entries"}`, string(msg.Data))
	case <-time.After(time.Second):
		t.Fatal("no repair event delivered")
	}
}

func TestComponents_ApplySettingsResetsLanguageCache(t *testing.T) {
	c := newTestComponents(t)
	l10nDir := filepath.Join(c.Config.System.ServerRoot, "core", "l10n")
	require.NoError(t, os.MkdirAll(l10nDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(l10nDir, "de.json"), []byte(`{"translations":{}}`), 0o644))

	assert.ElementsMatch(t, []string{"en", "de"}, c.L10N.FindAvailableLanguages("core"))
	require.NoError(t, os.WriteFile(filepath.Join(l10nDir, "fr.json"), []byte(`{"translations":{}}`), 0o644))
	assert.ElementsMatch(t, []string{"en", "de"}, c.L10N.FindAvailableLanguages("core"))

	require.NoError(t, c.ApplySettings(config.DefaultSystemSettings()))
	assert.ElementsMatch(t, []string{"en", "de", "fr"}, c.L10N.FindAvailableLanguages("core"))
}

// jobCount reads cloudmaint_jobs_total for class and status.
func jobCount(t *testing.T, c *Components, class, status string) float64 {
	t.Helper()
	families, err := c.Metrics.Registry().Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "cloudmaint_jobs_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			if labels["class"] == class && labels["status"] == status {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

// appNeedingUpgrade installs files 1.0 and ships code of version 2.0.
func appNeedingUpgrade(t *testing.T, c *Components) {
	t.Helper()
	infoDir := filepath.Join(c.Config.System.ServerRoot, "apps", "files", "appinfo")
	require.NoError(t, os.MkdirAll(infoDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(infoDir, "info.json"), []byte(`{"id":"files","version":"2.0"}`), 0o644))
	require.NoError(t, c.Store.SetAppValue(context.Background(), "files", "installed_version", "1.0"))
}

func TestComponents_DeferredRepairRunsAfterUpgrade(t *testing.T) {
	c := newTestComponents(t)
	appNeedingUpgrade(t, c)

	job, created := c.Service.EnqueueRepair("files", repair.CleanupTrashOrphansKey)
	require.True(t, created)
	c.Start()

	require.Eventually(t, func() bool {
		got, ok := c.Queue.Get(job.ID)
		return jobCount(t, c, repair.Class, "deferred") == 1 && ok && got.Status == jobs.StatusPending
	}, 2*time.Second, 10*time.Millisecond)

	info, err := c.UpgradeApp(context.Background(), "files")
	require.NoError(t, err)
	assert.Equal(t, "2.0", info.Version)

	require.Eventually(t, func() bool {
		_, ok := c.Queue.Get(job.ID)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, float64(1), jobCount(t, c, repair.Class, "success"))
}

func TestComponents_DeferredRepairRunsAfterUpgradeAndRestart(t *testing.T) {
	cfg := newTestConfig(t)

	first, err := NewComponents(cfg)
	require.NoError(t, err)
	appNeedingUpgrade(t, first)
	job, _ := first.Service.EnqueueRepair("files", repair.CleanupTrashOrphansKey)
	first.Start()
	require.Eventually(t, func() bool {
		return jobCount(t, first, repair.Class, "deferred") == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, first.Close())

	// upgraded from a separate process that never starts workers
	upgrader, err := NewComponents(cfg)
	require.NoError(t, err)
	_, err = upgrader.UpgradeApp(context.Background(), "files")
	require.NoError(t, err)
	require.NoError(t, upgrader.Close())

	restarted := openComponents(t, cfg)
	got, ok := restarted.Queue.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, jobs.StatusPending, got.Status)

	restarted.Start()
	require.Eventually(t, func() bool {
		_, ok := restarted.Queue.Get(job.ID)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestComponents_TrashFile(t *testing.T) {
	c := newTestComponents(t)
	ctx := context.Background()
	require.NoError(t, c.Users.Create(ctx, users.User{UID: "alice"}))
	filesDir := filepath.Join(c.Config.System.DataDir, "alice", "files")
	require.NoError(t, os.MkdirAll(filesDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(filesDir, "a.txt"), []byte("abc"), 0o644))

	item, err := c.TrashFile(ctx, "alice", "a.txt")
	require.NoError(t, err)
	items, err := c.Store.ListTrashItems(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, item.ID, items[0].ID)
	assert.EqualValues(t, 3, items[0].Size)

	_, err = c.TrashFile(ctx, "ghost", "a.txt")
	require.ErrorIs(t, err, users.ErrUserNotFound)
}
