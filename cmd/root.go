package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "vayu",
		Short:         "Vayu Reader CLI: sign in and browse the document library",
		Long:          "vayu signs in to Vayu Reader with a one-time code, keeps the session in secure local storage, and reads the document, dictionary and abbreviation services from the terminal.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, _ []string) {
		app.navigator.setOutput(cmd.ErrOrStderr())
	}
	rootCmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		app.close()
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newLoginCmd(app),
		newLogoutCmd(app),
		newStatusCmd(app),
		newAPICmd(app),
		newPDFsCmd(app),
		newDictionaryCmd(app),
		newAbbreviationsCmd(app),
		newWatchCmd(app),
		newConfigCmd(app),
	)

	return rootCmd
}
