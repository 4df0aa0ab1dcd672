// Package pipeline wires upstream sources, normalization and the document
// sink into one run per metric type.
package pipeline

import (
	"context"
	"time"

	"github.com/web3-frozen/onchain-ingest/internal/dune"
	"github.com/web3-frozen/onchain-ingest/internal/reserve"
	"github.com/web3-frozen/onchain-ingest/internal/store"
)

// Pipeline produces one batch of normalized documents per run.
type Pipeline interface {
	Name() string
	Collect(ctx context.Context, now time.Time) (*Batch, error)
}

// Batch is what a pipeline hands to the sink. Key is only set for
// upsert batches, which carry exactly one document.
type Batch struct {
	Collection string
	Mode       string
	Key        string
	Docs       []any
}

// QueryEngine submits a parameterized query and waits for its rows.
type QueryEngine interface {
	Submit(ctx context.Context, queryID int, params map[string]any) (*dune.QueryJob, error)
	Poll(ctx context.Context, job *dune.QueryJob, opts dune.PollOptions) (*dune.ResultSet, error)
}

// LedgerTVL reports TBILL obligations on the XRP ledger.
type LedgerTVL interface {
	TBillTVL(ctx context.Context) (float64, error)
}

// SnapshotSource serves the live reserve composition.
type SnapshotSource interface {
	FetchSnapshot(ctx context.Context) (*reserve.Snapshot, error)
}

// Sink is the write side of a document store.
type Sink interface {
	InsertAppend(ctx context.Context, collection string, docs []any) (int, error)
	UpsertByKey(ctx context.Context, collection, key string, doc any) (store.UpsertResult, error)
	Close() error
}

// isoSeconds formats t as a UTC timestamp truncated to the second, e.g.
// 2024-01-01T00:00:00Z.
func isoSeconds(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format("2006-01-02T15:04:05Z")
}

func appendBatch[T any](collection string, records []T) *Batch {
	docs := make([]any, len(records))
	for i, r := range records {
		docs[i] = r
	}
	return &Batch{Collection: collection, Mode: store.ModeAppend, Docs: docs}
}
