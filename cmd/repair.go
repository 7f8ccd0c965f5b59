package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/MimeLyc/cloudmaint/internal/jobs"
)

func (c *cli) repairEnqueueCmd() *cobra.Command {
	var now bool
	cmd := &cobra.Command{
		Use:   "repair:enqueue <app> <step>",
		Short: "Queue a background run of a registered repair step",
		Long: "Queue a background run of a registered repair step. The job is " +
			"picked up by the daemon on its next start, or right away with --now.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := c.open()
			if err != nil {
				return err
			}
			defer comps.Close()

			job, created := comps.Service.EnqueueRepair(args[0], args[1])
			if !created {
				fmt.Fprintf(cmd.OutOrStdout(), "Repair step %s of %s is already queued as %s\n", args[1], args[0], job.ID)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %s\n", job.ID)
			}
			if !now {
				return nil
			}
			err = comps.Repair.Start(cmd.Context(), comps.Queue, job)
			if jobs.IsDeferred(err) {
				fmt.Fprintf(cmd.OutOrStdout(), "Deferred %s until %s is upgraded\n", job.ID, args[0])
				return nil
			}
			if err != nil {
				return errors.Wrapf(err, "run %s", job.ID)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ran %s\n", job.ID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&now, "now", false, "run the job in this process instead of leaving it to the daemon")
	return cmd
}

func (c *cli) repairListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repair:list",
		Short: "List registered repair steps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := c.open()
			if err != nil {
				return err
			}
			defer comps.Close()

			for _, key := range comps.Steps.List() {
				step, err := comps.Steps.Resolve(key)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-36s %s\n", key, step.Name())
			}
			return nil
		},
	}
}

func (c *cli) appUpgradeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "app:upgrade <app>",
		Short: "Mark the code version of an app as installed",
		Long: "Mark the code version of an app as installed. Repair jobs deferred " +
			"until the upgrade run on the daemon's next start.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := c.open()
			if err != nil {
				return err
			}
			defer comps.Close()

			info, err := comps.UpgradeApp(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Upgraded %s to %s\n", args[0], info.Version)
			return nil
		},
	}
}
