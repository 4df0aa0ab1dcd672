package main

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/web3-frozen/onchain-ingest/internal/dune"
	"github.com/web3-frozen/onchain-ingest/internal/metrics"
	"github.com/web3-frozen/onchain-ingest/internal/pipeline"
	"github.com/web3-frozen/onchain-ingest/internal/reserve"
	"github.com/web3-frozen/onchain-ingest/internal/runlog"
	"github.com/web3-frozen/onchain-ingest/internal/store"
	"github.com/web3-frozen/onchain-ingest/internal/xrpl"
)

type runFlags struct {
	dryRun       bool
	maxAttempts  int
	pollInterval time.Duration
}

func (f *runFlags) bind(cmd *cobra.Command, poll *dune.PollOptions) {
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "write to an in-memory store and print the documents")
	if poll != nil {
		cmd.Flags().IntVar(&f.maxAttempts, "max-attempts", poll.MaxAttempts, "status fetches before giving up")
		cmd.Flags().DurationVar(&f.pollInterval, "poll-interval", poll.Interval, "wait between status fetches")
	}
}

func (f *runFlags) poll() dune.PollOptions {
	return dune.PollOptions{MaxAttempts: f.maxAttempts, Interval: f.pollInterval}
}

func (a *app) duneClient() *dune.Client {
	return dune.NewClient(dune.Config{
		APIKey:      a.cfg.DuneAPIKey,
		BaseURL:     a.cfg.DuneAPIURL,
		Performance: a.cfg.DunePerformance,
		Timeout:     a.cfg.HTTPTimeout,
	}, a.logger)
}

func newMintRedeemCmd(a *app) *cobra.Command {
	var f runFlags
	var window time.Duration
	cmd := &cobra.Command{
		Use:   "mint-redeem",
		Short: "Append per-network TBILL mint and redeem volume",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.cfg.Validate("DUNE_API_KEY"); err != nil {
				return err
			}
			p := &pipeline.MintRedeem{Engine: a.duneClient(), Logger: a.logger, Window: window, Poll: f.poll()}
			return a.runPipeline(cmd, p, f)
		},
	}
	f.bind(cmd, &pipeline.DefaultPoll)
	cmd.Flags().DurationVar(&window, "window", pipeline.DefaultMintRedeemWindow, "lookback ending at the run time")
	return cmd
}

func newTVLCmd(a *app) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "tvl",
		Short: "Append per-network TBILL TVL including the XRP ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.cfg.Validate("DUNE_API_KEY", "XRPL_RPC_URL"); err != nil {
				return err
			}
			p := &pipeline.TVL{
				Engine: a.duneClient(),
				Ledger: xrpl.NewClient(a.cfg.XRPLRPCURL, a.cfg.HTTPTimeout),
				Logger: a.logger,
				Poll:   f.poll(),
			}
			return a.runPipeline(cmd, p, f)
		},
	}
	f.bind(cmd, &pipeline.DefaultPoll)
	return cmd
}

func newUniqueHoldersCmd(a *app) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "unique-holders",
		Short: "Append per-network TBILL holder counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.cfg.Validate("DUNE_API_KEY"); err != nil {
				return err
			}
			p := &pipeline.UniqueHolders{Engine: a.duneClient(), Logger: a.logger, Poll: f.poll()}
			return a.runPipeline(cmd, p, f)
		},
	}
	f.bind(cmd, &pipeline.DefaultUniqueHoldersPoll)
	return cmd
}

func newCollateralCmd(a *app) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "collateral",
		Short: "Upsert the daily USDO collateral allocation snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.cfg.Validate("RESERVE_API_URL"); err != nil {
				return err
			}
			p := &pipeline.Collateral{Source: reserve.NewClient(a.cfg.ReserveAPIURL, a.cfg.HTTPTimeout)}
			return a.runPipeline(cmd, p, f)
		},
	}
	f.bind(cmd, nil)
	return cmd
}

func (a *app) runPipeline(cmd *cobra.Command, p pipeline.Pipeline, f runFlags) error {
	ctx := cmd.Context()
	defer a.pushMetrics(p.Name())

	runner := &pipeline.Runner{Logger: a.logger}
	var mem *store.Memory
	if f.dryRun {
		mem = store.NewMemory()
		runner.Open = func(context.Context) (pipeline.Sink, error) { return mem, nil }
	} else {
		if err := a.cfg.Validate("DATABASE_URL"); err != nil {
			return err
		}
		runner.Open = a.openStore
		if ledger := a.openLedger(ctx); ledger != nil {
			defer ledger.Close()
			runner.Recorder = ledger
		}
	}

	res, err := runner.Run(ctx, p)
	if err != nil {
		return err
	}
	if f.dryRun {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res.Batch.Docs)
	}
	return nil
}

func (a *app) openStore(ctx context.Context) (pipeline.Sink, error) {
	s, err := store.New(ctx, a.cfg.DatabaseURL, a.cfg.StoreSchema)
	if err != nil {
		return nil, err
	}
	if err := s.EnsureCollections(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// openLedger connects to the run ledger if one is configured. The ledger
// is advisory, so a connection failure only logs.
func (a *app) openLedger(ctx context.Context) *runlog.Ledger {
	if a.cfg.RedisURL == "" {
		return nil
	}
	l, err := runlog.New(ctx, a.ledgerOptions())
	if err != nil {
		a.logger.Warn("run ledger unavailable", "error", err)
		return nil
	}
	return l
}

// ledgerOptions keeps runs against a non-default schema out of the
// production ledger keys.
func (a *app) ledgerOptions() runlog.Options {
	o := runlog.Options{URL: a.cfg.RedisURL, Password: a.cfg.RedisPassword}
	if a.cfg.StoreSchema != "" && a.cfg.StoreSchema != store.DefaultSchema {
		o.Prefix = "onchain_ingest:" + a.cfg.StoreSchema + ":run:"
	}
	return o
}

func (a *app) pushMetrics(pipelineName string) {
	job := "ingest_" + strings.ReplaceAll(pipelineName, "-", "_")
	if err := metrics.Push(a.cfg.PushgatewayURL, job); err != nil {
		a.logger.Warn("metrics push failed", "job", job, "error", err)
	}
}

var pipelineNames = []string{"mint-redeem", "tvl", "unique-holders", "collateral"}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
