package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		opts        rootOptions
		showVersion bool
	)

	rootCmd := &cobra.Command{
		Use:   "antftp",
		Short: "SFTP gateway to a mutable AntTP public archive",
		Long: `antftp serves an AntTP public archive over SFTP.

Every upload, delete or new directory produces a new immutable archive
address. antftp tracks the latest address and, when configured with a
pointer, publishes it so other clients can follow. A background
reconciler pushes the archive to the network tier and keeps the pointer
in step.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if showVersion {
				fmtVersion(cmd)
				return nil
			}
			return cmd.Help()
		},
	}

	rootCmd.Flags().BoolVar(&showVersion, "version", false, "print version and exit")
	opts.register(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newServeCmd(&opts))
	rootCmd.AddCommand(newSyncCmd(&opts))
	rootCmd.AddCommand(newResolveCmd(&opts))
	rootCmd.AddCommand(newHashPasswordCmd())
	rootCmd.AddCommand(docsCmd)

	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

func fmtVersion(cmd *cobra.Command) {
	fmt.Fprintf(cmd.OutOrStdout(), "antftp %s\n", version)
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
