package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/web3-frozen/onchain-ingest/internal/config"
)

// app is the state shared by every subcommand once config is loaded.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	logOut io.Writer

	// dryRunLogOut takes the logs when stdout carries the dry-run documents.
	dryRunLogOut io.Writer

	// loadConfig is swapped in tests.
	loadConfig func() config.Config
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{logOut: os.Stdout, dryRunLogOut: os.Stderr, loadConfig: config.Load}
	root := newRootCmd(a)
	if err := root.ExecuteContext(ctx); err != nil {
		if a.logger != nil {
			a.logger.Error("command failed", "command", commandName(root, os.Args[1:]), "error", err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "ingest",
		Short:         "Ingest TBILL and USDO metrics into the document store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.cfg = a.loadConfig()
			out := a.logOut
			if dry, err := cmd.Flags().GetBool("dry-run"); err == nil && dry {
				out = a.dryRunLogOut
			}
			a.logger = slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: a.cfg.SlogLevel()}))
			slog.SetDefault(a.logger)
			return nil
		},
	}

	root.AddCommand(
		newMintRedeemCmd(a),
		newTVLCmd(a),
		newUniqueHoldersCmd(a),
		newCollateralCmd(a),
		newStatusCmd(a),
		newInitCollectionsCmd(a),
	)
	return root
}

func commandName(root *cobra.Command, args []string) string {
	cmd, _, err := root.Find(args)
	if err != nil || cmd == nil {
		return root.Name()
	}
	return cmd.Name()
}
