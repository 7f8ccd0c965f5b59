package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/MimeLyc/cloudmaint/internal/config"
	"github.com/MimeLyc/cloudmaint/internal/service"
	"github.com/MimeLyc/cloudmaint/pkg/log"
)

type scheduler interface {
	Schedule(ctx context.Context) error
}

type cronEngine interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

// cli carries state shared by the subcommands of one invocation.
type cli struct {
	envFile string
	cfg     *config.Config
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "cloudmaint",
		Short:         "Maintenance daemon and tools for a file sync server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.loadConfig()
		},
	}
	root.SetOut(out)
	root.SetErr(out)
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	root.AddCommand(
		c.serveCmd(),
		c.expireCmd(),
		c.trashDeleteCmd(),
		c.userAddCmd(),
		c.repairEnqueueCmd(),
		c.repairListCmd(),
		c.appUpgradeCmd(),
		c.l10nFindCmd(),
		c.l10nLanguagesCmd(),
	)
	return root
}

func (c *cli) loadConfig() error {
	if c.envFile != "" {
		if err := godotenv.Load(c.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return errors.Wrapf(err, "load env file %s", c.envFile)
		}
	}
	cfg, err := config.NewFromEnv()
	if err != nil {
		return errors.Wrap(err, "load configuration")
	}
	log.InitLogger(log.ParseLevel(cfg.System.LogLevel))
	c.cfg = cfg
	return nil
}

// open wires the components; callers must Close them.
func (c *cli) open() (*service.Components, error) {
	comps, err := service.NewComponents(c.cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", c.cfg.DBPath())
	}
	return comps, nil
}

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the job queue, the trash sweep and the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := c.open()
			if err != nil {
				return err
			}
			defer func() {
				if err := comps.Close(); err != nil {
					log.Error("Failed to close components: %v", err)
				}
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			comps.Start()
			var srv httpServer
			if c.cfg.HTTP.Enabled {
				srv = newHTTPServer(comps)
			}
			return runWithComponents(ctx, c.cfg, comps.Service, comps.Cron, srv)
		},
	}
}

// runWithComponents schedules the sweep, starts cron and the optional HTTP
// server and blocks until ctx is done or the server fails.
func runWithComponents(ctx context.Context, cfg *config.Config, sched scheduler, cron cronEngine, srv httpServer) error {
	if err := sched.Schedule(ctx); err != nil {
		return errors.Wrap(err, "schedule trash sweep")
	}
	cron.Start()
	defer cron.Stop()

	serveErr := make(chan error, 1)
	if srv != nil {
		go func() {
			log.Info("HTTP API listening on %s", cfg.HTTP.Addr)
			if err := srv.ListenAndServe(cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
				return
			}
			serveErr <- nil
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case err := <-serveErr:
		if err != nil {
			return errors.Wrapf(err, "serve http on %s", cfg.HTTP.Addr)
		}
		return nil
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown http")
		}
		<-serveErr
	}
	return nil
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
