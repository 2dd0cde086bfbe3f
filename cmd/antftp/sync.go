package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/traktion/antftp/internal/archive"
	"github.com/traktion/antftp/internal/reconcile"
)

func newSyncCmd(root *rootOptions) *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push the archive to the network tier once and update the pointer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("target") {
				if cfg.Reconcile.Target, err = archive.ParseStoreTarget(target); err != nil {
					return fmt.Errorf("invalid --target: %w", err)
				}
			}
			if err := validated(cfg); err != nil {
				return err
			}

			logger, logCloser, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer closeQuietly(logCloser)

			client, err := newClient(cfg, logger)
			if err != nil {
				return err
			}
			backend, err := newBackend(cfg, client, nil, nil, logger)
			if err != nil {
				return err
			}
			rec, err := reconcile.New(reconcile.Config{
				Resolver:  backend.Resolver(),
				Publisher: backend.Publisher(),
				Service:   client.Archives(),
				Logger:    logger,
				Target:    cfg.Reconcile.Target,
				OnSync:    newStateRecorder(cfg.Archive, logger).synced,
			})
			if err != nil {
				return err
			}

			if err := rec.Tick(commandContext(cmd)); err != nil {
				logger.Error("sync failed", "error", err)
				return &exitError{code: 1}
			}
			logger.Debug("sync complete", "address", rec.LastSynced(), "synced_at", rec.SyncedAt())
			fmt.Fprintln(cmd.OutOrStdout(), rec.LastSynced())
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "store tier to push to (default from config: network)")
	return cmd
}

func newResolveCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve",
		Short: "Print the archive address the gateway would serve",
		Long: `Print the archive address the gateway would serve.

With a pointer configured this is the pointer's current target. Otherwise
it is the configured address, or the latest address from the state file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load(cmd)
			if err != nil {
				return err
			}
			if err := validated(cfg); err != nil {
				return err
			}
			logger, logCloser, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer closeQuietly(logCloser)

			client, err := newClient(cfg, logger)
			if err != nil {
				return err
			}
			backend, err := newBackend(cfg, client, nil, nil, logger)
			if err != nil {
				return err
			}
			addr, err := backend.Resolver().Current(commandContext(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), addr)
			return nil
		},
	}
}
