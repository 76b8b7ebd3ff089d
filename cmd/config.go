package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	tomlrepo "github.com/vayureader/vayu-cli/internal/adapters/repo/toml"
)

func newConfigCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change CLI settings",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective settings (file, environment and defaults)",
			RunE: func(cmd *cobra.Command, _ []string) error {
				data, err := tomlrepo.Encode(app.settings)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Persist one setting to the config file",
			Long:  "Supported keys: " + strings.Join(tomlrepo.Keys(), ", "),
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := app.settingsRepo.Set(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "Set %s in %s\n", strings.ToLower(args[0]), app.settingsRepo.Path())
				return err
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file location",
			RunE: func(cmd *cobra.Command, _ []string) error {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), app.settingsRepo.Path())
				return err
			},
		},
	)

	return cmd
}
