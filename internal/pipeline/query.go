package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/web3-frozen/onchain-ingest/internal/dune"
	"github.com/web3-frozen/onchain-ingest/internal/normalize"
	"github.com/web3-frozen/onchain-ingest/internal/raw"
	"github.com/web3-frozen/onchain-ingest/internal/store"
)

// Saved query ids on the analytics engine.
const (
	MintRedeemQueryID    = 6517050
	TVLQueryID           = 6493568
	UniqueHoldersQueryID = 6517120
)

// Default poll budgets: five minutes, or thirty for the holder scan.
var (
	DefaultPoll              = dune.PollOptions{MaxAttempts: 60, Interval: 5 * time.Second}
	DefaultUniqueHoldersPoll = dune.PollOptions{MaxAttempts: 360, Interval: 5 * time.Second}
)

// DefaultMintRedeemWindow is how far back a mint/redeem run looks.
const DefaultMintRedeemWindow = 24 * time.Hour

func runQuery(ctx context.Context, engine QueryEngine, logger *slog.Logger, queryID int, params map[string]any, opts dune.PollOptions) ([]raw.Row, error) {
	job, err := engine.Submit(ctx, queryID, params)
	if err != nil {
		return nil, err
	}
	logger.Info("query submitted",
		"query_id", queryID,
		"execution_id", job.ExecutionID,
		"max_attempts", opts.MaxAttempts,
		"budget", opts.Budget().String(),
	)
	rs, err := engine.Poll(ctx, job, opts)
	if err != nil {
		return nil, err
	}
	return rs.Rows, nil
}

// MintRedeem ingests per-network TBILL mint and redeem volume over a
// trailing window ending at the run time.
type MintRedeem struct {
	Engine  QueryEngine
	Logger  *slog.Logger
	QueryID int
	Window  time.Duration
	Poll    dune.PollOptions
}

func (p *MintRedeem) Name() string { return "mint-redeem" }

func (p *MintRedeem) Collect(ctx context.Context, now time.Time) (*Batch, error) {
	window := p.Window
	if window <= 0 {
		window = DefaultMintRedeemWindow
	}
	end := now.UTC().Truncate(time.Second)
	params := map[string]any{
		"start_date": isoSeconds(end.Add(-window)),
		"end_date":   isoSeconds(end),
	}
	rows, err := runQuery(ctx, p.Engine, loggerOr(p.Logger), queryOr(p.QueryID, MintRedeemQueryID), params, pollOr(p.Poll, DefaultPoll))
	if err != nil {
		return nil, err
	}
	records, err := normalize.MintRedeemRecords(rows)
	if err != nil {
		return nil, err
	}
	return appendBatch(store.MintRedeem, records), nil
}

// TVL ingests per-network TBILL locked value, adding the XRP ledger
// figure which the engine does not index.
type TVL struct {
	Engine  QueryEngine
	Ledger  LedgerTVL
	Logger  *slog.Logger
	QueryID int
	Poll    dune.PollOptions
}

func (p *TVL) Name() string { return "tvl" }

func (p *TVL) Collect(ctx context.Context, now time.Time) (*Batch, error) {
	runAt := now.UTC().Truncate(time.Second)
	// the ledger record is stamped runAt, so read it before the poll
	ledgerTVL, err := p.Ledger.TBillTVL(ctx)
	if err != nil {
		return nil, err
	}
	params := map[string]any{"timestamp": isoSeconds(runAt)}
	rows, err := runQuery(ctx, p.Engine, loggerOr(p.Logger), queryOr(p.QueryID, TVLQueryID), params, pollOr(p.Poll, DefaultPoll))
	if err != nil {
		return nil, err
	}
	records, err := normalize.TVLRecords(rows, ledgerTVL, runAt)
	if err != nil {
		return nil, err
	}
	return appendBatch(store.TVL, records), nil
}

// UniqueHolders ingests per-network holder counts as of the run time.
type UniqueHolders struct {
	Engine  QueryEngine
	Logger  *slog.Logger
	QueryID int
	Poll    dune.PollOptions
}

func (p *UniqueHolders) Name() string { return "unique-holders" }

func (p *UniqueHolders) Collect(ctx context.Context, now time.Time) (*Batch, error) {
	params := map[string]any{"snapshot_date": isoSeconds(now)}
	rows, err := runQuery(ctx, p.Engine, loggerOr(p.Logger), queryOr(p.QueryID, UniqueHoldersQueryID), params, pollOr(p.Poll, DefaultUniqueHoldersPoll))
	if err != nil {
		return nil, err
	}
	records, err := normalize.UniqueHoldersRecords(rows)
	if err != nil {
		return nil, err
	}
	return appendBatch(store.UniqueHolders, records), nil
}

func queryOr(id, fallback int) int {
	if id == 0 {
		return fallback
	}
	return id
}

func pollOr(opts, fallback dune.PollOptions) dune.PollOptions {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = fallback.MaxAttempts
	}
	if opts.Interval <= 0 {
		opts.Interval = fallback.Interval
	}
	return opts
}

func loggerOr(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
