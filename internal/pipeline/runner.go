package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/web3-frozen/onchain-ingest/internal/metrics"
	"github.com/web3-frozen/onchain-ingest/internal/runlog"
	"github.com/web3-frozen/onchain-ingest/internal/store"
)

// Recorder keeps the outcome of each run.
type Recorder interface {
	Record(ctx context.Context, e runlog.Entry) error
}

// OpenFunc opens the sink for one run. It is called only after the batch
// has been collected, so no connection is held while a query is polled.
type OpenFunc func(ctx context.Context) (Sink, error)

// Result summarizes a successful run.
type Result struct {
	Pipeline   string
	Collection string
	Mode       string
	Written    int
	Upsert     *store.UpsertResult
	Batch      *Batch
}

// Runner executes pipelines one at a time.
type Runner struct {
	Open     OpenFunc
	Recorder Recorder // optional
	Logger   *slog.Logger
	Now      func() time.Time
}

// Run collects the batch for p, writes it and closes the sink. Any error
// aborts the run and is returned unchanged.
func (r *Runner) Run(ctx context.Context, p Pipeline) (*Result, error) {
	logger := loggerOr(r.Logger).With("pipeline", p.Name())
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	started := now()

	res, err := r.run(ctx, p, started, logger)

	finished := now()
	status := runlog.StatusSuccess
	if err != nil {
		status = runlog.StatusFailure
	}
	metrics.RunsTotal.WithLabelValues(p.Name(), status).Inc()
	metrics.RunDuration.WithLabelValues(p.Name()).Observe(finished.Sub(started).Seconds())
	if err == nil {
		metrics.RunLastSuccess.WithLabelValues(p.Name()).Set(float64(finished.Unix()))
	}

	if r.Recorder != nil {
		e := runlog.Entry{Pipeline: p.Name(), Status: status, StartedAt: started.UTC(), FinishedAt: finished.UTC()}
		if res != nil {
			e.Collection = res.Collection
			e.Records = res.Written
		}
		if err != nil {
			e.Error = err.Error()
		}
		// ledger errors are logged only
		if rerr := r.Recorder.Record(context.WithoutCancel(ctx), e); rerr != nil {
			logger.Warn("failed to record run", "error", rerr)
		}
	}

	if err != nil {
		logger.Error("run failed", "error", err, "duration", finished.Sub(started).String())
		return nil, err
	}
	logger.Info("run finished",
		"collection", res.Collection,
		"mode", res.Mode,
		"written", res.Written,
		"duration", finished.Sub(started).String(),
	)
	return res, nil
}

func (r *Runner) run(ctx context.Context, p Pipeline, now time.Time, logger *slog.Logger) (res *Result, err error) {
	batch, err := p.Collect(ctx, now)
	if err != nil {
		return nil, err
	}
	res = &Result{Pipeline: p.Name(), Collection: batch.Collection, Mode: batch.Mode, Batch: batch}

	if batch.Mode == store.ModeAppend && len(batch.Docs) == 0 {
		logger.Warn("no rows returned, nothing to write", "collection", batch.Collection)
		return res, nil
	}

	sink, err := r.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close sink: %w", cerr)
			res = nil
		}
	}()

	switch batch.Mode {
	case store.ModeAppend:
		n, err := sink.InsertAppend(ctx, batch.Collection, batch.Docs)
		if err != nil {
			return nil, err
		}
		res.Written = n
	case store.ModeUpsert:
		if len(batch.Docs) != 1 || batch.Key == "" {
			return nil, fmt.Errorf("upsert batch for %s needs one doc and a key, got %d docs key %q", batch.Collection, len(batch.Docs), batch.Key)
		}
		u, err := sink.UpsertByKey(ctx, batch.Collection, batch.Key, batch.Docs[0])
		if err != nil {
			return nil, err
		}
		res.Written = 1
		res.Upsert = &u
		logger.Info("snapshot upserted", "key", batch.Key, "inserted", u.Inserted, "matched_existing", u.MatchedExisting)
	default:
		return nil, fmt.Errorf("unknown write mode %q", batch.Mode)
	}
	return res, nil
}
