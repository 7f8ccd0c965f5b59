package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/MimeLyc/cloudmaint/internal/apps"
	"github.com/MimeLyc/cloudmaint/internal/command"
	"github.com/MimeLyc/cloudmaint/internal/config"
	"github.com/MimeLyc/cloudmaint/internal/events"
	"github.com/MimeLyc/cloudmaint/internal/jobs"
	"github.com/MimeLyc/cloudmaint/internal/l10n"
	"github.com/MimeLyc/cloudmaint/internal/metrics"
	"github.com/MimeLyc/cloudmaint/internal/persistence"
	"github.com/MimeLyc/cloudmaint/internal/repair"
	"github.com/MimeLyc/cloudmaint/internal/trashbin"
	"github.com/MimeLyc/cloudmaint/internal/userfs"
	"github.com/MimeLyc/cloudmaint/internal/users"
	"github.com/MimeLyc/cloudmaint/pkg/log"
)

// Components is the wired object graph shared by the CLI commands and the
// daemon.
type Components struct {
	Config   *config.Config
	Store    *persistence.SQLiteStore
	Settings *config.SettingsStore
	Users    *users.Manager
	Apps     *apps.Manager
	Mounter  *userfs.Mounter
	Trash    *trashbin.Trashbin
	L10N     *l10n.Factory
	Steps    *repair.Registry
	Repair   *repair.BackgroundRepair
	Expire   *command.ExpireJob
	Hub      *events.Hub
	Metrics  *metrics.Metrics
	Queue    *jobs.Queue
	Cron     *cron.Cron
	Service  *MaintService
}

func NewComponents(cfg *config.Config) (*Components, error) {
	store, err := persistence.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return nil, WrapError(err, ErrStorage, "open database").WithContext("path", cfg.DBPath())
	}
	settings, err := config.OpenSettingsStore(cfg.System.SettingsFile)
	if err != nil {
		_ = store.Close()
		return nil, WrapError(err, ErrConfig, "open settings").WithContext("path", cfg.System.SettingsFile)
	}

	c := &Components{
		Config:   cfg,
		Store:    store,
		Settings: settings,
		Users:    users.NewManager(store),
		Apps:     apps.NewManager(cfg.System.ServerRoot, store),
		Mounter:  userfs.NewMounter(cfg.System.DataDir),
		Steps:    repair.NewRegistry(),
		Hub:      events.NewHub(),
		Metrics:  metrics.New(),
		Cron:     cron.New(),
	}
	c.Trash = trashbin.New(store, c.Users, settings.RetentionObligation, trashbin.WithObserver(c.Metrics))
	c.L10N = l10n.NewFactory(settings, c.Users, c.Apps, cfg.System.ServerRoot)
	if err := RegisterSteps(c.Steps, cfg.System.ServerRoot, c.Apps, store, c.Trash, c.Mounter); err != nil {
		_ = store.Close()
		return nil, err
	}
	c.Repair = repair.NewBackgroundRepair(c.Steps, c.Apps, repair.Dispatchers{c.Hub, c.Metrics}, log.GetLogger())
	c.Expire = command.NewExpireJob(c.Users, c.Mounter, c.Trash)
	c.Queue = jobs.NewQueue(cfg.Jobs.Workers, store)

	c.Service = NewMaintService(c.Cron, cfg.Trash.CronExpr, c.Queue, c.Users, WithRecorder(c.Metrics))
	c.Service.Handle(repair.Class, func(ctx context.Context, job *jobs.Job) error {
		return c.Repair.Start(ctx, c.Queue, job)
	})
	c.Service.Handle(command.ExpireClass, func(ctx context.Context, job *jobs.Job) error {
		return c.Expire.Start(ctx, c.Queue, job)
	})
	return c, nil
}

// RegisterSteps registers the built-in repair steps.
func RegisterSteps(
	registry *repair.Registry,
	serverRoot string,
	catalogs repair.AppCatalogs,
	trashUsers repair.TrashUsers,
	trash repair.TrashOrphans,
	mounter repair.ScopeMounter,
) error {
	return errors.Join(
		registry.Register(repair.CheckTranslationCatalogsKey, func() repair.Step {
			return repair.NewCheckTranslationCatalogs(serverRoot, catalogs)
		}),
		registry.Register(repair.CleanupTrashOrphansKey, func() repair.Step {
			return repair.NewCleanupTrashOrphans(trashUsers, trash, mounter)
		}),
	)
}

// ApplySettings drops state derived from the previous system settings.
func (c *Components) ApplySettings(config.SystemSettings) error {
	c.L10N.Reset()
	return nil
}

// TrashFile moves path of user into the user's trash bin.
func (c *Components) TrashFile(ctx context.Context, user, path string) (trashbin.Item, error) {
	return command.NewDelete(user, path, c.Users, c.Mounter, c.Trash).Handle(ctx)
}

// UpgradeApp records the code version of app as installed and gives the jobs
// deferred while it waited for the upgrade another attempt.
func (c *Components) UpgradeApp(ctx context.Context, app string) (apps.Info, error) {
	if err := c.Apps.Upgrade(ctx, app); err != nil {
		return apps.Info{}, fmt.Errorf("upgrade %s: %w", app, err)
	}
	info, err := c.Apps.Info(app)
	if err != nil {
		return apps.Info{}, err
	}
	if n := c.Queue.Resume(); n > 0 {
		log.Info("Upgraded %s to %s, retrying %d pending job(s)", app, info.Version, n)
	}
	return info, nil
}

// Start runs the queue workers.
func (c *Components) Start() {
	c.Queue.Start(c.Service.Execute)
}

func (c *Components) Close() error {
	c.Queue.Stop()
	return c.Store.Close()
}
