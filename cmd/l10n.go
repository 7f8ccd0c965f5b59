package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/cloudmaint/internal/l10n"
)

func (c *cli) l10nFindCmd() *cobra.Command {
	var app, acceptLanguage, user string
	var generic bool
	cmd := &cobra.Command{
		Use:   "l10n:find",
		Short: "Resolve the language of a request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := c.open()
			if err != nil {
				return err
			}
			defer comps.Close()

			req := l10n.NewRequest(acceptLanguage, user)
			var lang string
			if generic {
				lang = comps.L10N.FindGenericLanguage(cmd.Context(), req, app)
			} else {
				lang = comps.L10N.FindLanguage(cmd.Context(), req, app)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", lang, comps.L10N.LanguageDirection(lang))
			return nil
		},
	}
	cmd.Flags().StringVar(&app, "app", "", "app whose catalogs are considered; empty for core")
	cmd.Flags().StringVar(&acceptLanguage, "accept-language", "", "Accept-Language header value")
	cmd.Flags().StringVar(&user, "user", "", "id of the requesting user")
	cmd.Flags().BoolVar(&generic, "generic", false, "resolve for output not bound to a request, such as mails; the default language wins over the user")
	return cmd
}

func (c *cli) l10nLanguagesCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "l10n:languages",
		Short: "List the languages offered to users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := c.open()
			if err != nil {
				return err
			}
			defer comps.Close()

			langs := comps.L10N.GetLanguages()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(langs)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Common languages:")
			for _, l := range langs.CommonLanguages {
				fmt.Fprintf(out, "  %-8s %s\n", l.Code, l.Name)
			}
			fmt.Fprintln(out, "Other languages:")
			for _, l := range langs.OtherLanguages {
				fmt.Fprintf(out, "  %-8s %s\n", l.Code, l.Name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
