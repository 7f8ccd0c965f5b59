package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/MimeLyc/cloudmaint/internal/command"
	"github.com/MimeLyc/cloudmaint/internal/users"
)

func (c *cli) expireCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trashbin:expire [user...]",
		Short: "Expire the trash bin of the given users, or of all users",
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := c.open()
			if err != nil {
				return err
			}
			defer comps.Close()

			uids := args
			if len(uids) == 0 {
				all, err := comps.Users.List(cmd.Context())
				if err != nil {
					return errors.Wrap(err, "list users")
				}
				for _, u := range all {
					uids = append(uids, u.UID)
				}
			}

			var total int64
			for _, uid := range uids {
				res, err := command.NewExpire(uid, comps.Users, comps.Mounter, comps.Trash).Handle(cmd.Context())
				if err != nil {
					return errors.Wrapf(err, "expire trash of %s", uid)
				}
				if res.Deleted > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: removed %d item(s), freed %s\n", uid, res.Deleted, humanize.Bytes(uint64(res.Freed)))
				}
				total += res.Freed
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Freed %s in total\n", humanize.Bytes(uint64(total)))
			return nil
		},
	}
}

func (c *cli) trashDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trashbin:delete <user> <path...>",
		Short: "Move files of a user into the user's trash bin",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := c.open()
			if err != nil {
				return err
			}
			defer comps.Close()

			user := args[0]
			for _, path := range args[1:] {
				item, err := comps.TrashFile(cmd.Context(), user, path)
				if err != nil {
					return errors.Wrapf(err, "delete %s", path)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Trashed %s (%s)\n", path, humanize.Bytes(uint64(item.Size)))
			}
			return nil
		},
	}
}

func (c *cli) userAddCmd() *cobra.Command {
	var displayName, quota string
	cmd := &cobra.Command{
		Use:   "user:add <uid>",
		Short: "Create or update a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var quotaBytes uint64
			if quota != "" && quota != "none" {
				var err error
				if quotaBytes, err = humanize.ParseBytes(quota); err != nil {
					return errors.Wrapf(err, "parse quota %q", quota)
				}
			}

			comps, err := c.open()
			if err != nil {
				return err
			}
			defer comps.Close()

			user := users.User{UID: args[0], DisplayName: displayName, Quota: int64(quotaBytes)}
			if err := comps.Users.Create(cmd.Context(), user); err != nil {
				return errors.Wrapf(err, "create user %s", user.UID)
			}
			if user.Quota == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "User %s saved (no quota)\n", user.UID)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "User %s saved (quota %s)\n", user.UID, humanize.Bytes(quotaBytes))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&displayName, "display-name", "", "display name")
	cmd.Flags().StringVar(&quota, "quota", "", `quota such as "5 GB"; empty or "none" for unlimited`)
	return cmd
}
