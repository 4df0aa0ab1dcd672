package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/web3-frozen/onchain-ingest/internal/runlog"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the last run of each pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.cfg.Validate("REDIS_URL"); err != nil {
				return err
			}
			ledger, err := runlog.New(cmd.Context(), a.ledgerOptions())
			if err != nil {
				return fmt.Errorf("connect run ledger: %w", err)
			}
			defer ledger.Close()

			ctx := cmd.Context()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PIPELINE\tSTATUS\tFINISHED\tRECORDS\tLAST SUCCESS\tOK/FAIL\tERROR")
			for _, name := range pipelineNames {
				last, err := ledger.Last(ctx, name)
				if err != nil {
					return err
				}
				if last == nil {
					fmt.Fprintf(w, "%s\tnever\t-\t-\t-\t0/0\t\n", name)
					continue
				}
				lastOK := "-"
				if succ, err := ledger.LastSuccess(ctx, name); err != nil {
					return err
				} else if succ != nil {
					lastOK = formatTime(succ.FinishedAt)
				}
				counts, err := ledger.Counts(ctx, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%d/%d\t%s\n",
					name, last.Status, formatTime(last.FinishedAt), last.Records, lastOK,
					counts[runlog.StatusSuccess], counts[runlog.StatusFailure], last.Error)
			}
			return w.Flush()
		},
	}
}
