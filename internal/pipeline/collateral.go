package pipeline

import (
	"context"
	"time"

	"github.com/web3-frozen/onchain-ingest/internal/normalize"
	"github.com/web3-frozen/onchain-ingest/internal/store"
)

// Collateral stores the daily USDO reserve allocation snapshot. Reruns on
// the same date replace the stored document.
type Collateral struct {
	Source SnapshotSource
}

func (p *Collateral) Name() string { return "collateral" }

func (p *Collateral) Collect(ctx context.Context, _ time.Time) (*Batch, error) {
	snap, err := p.Source.FetchSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := normalize.CollateralAllocationRecord(snap.Row, snap.Chains)
	if err != nil {
		return nil, err
	}
	return &Batch{
		Collection: store.CollateralAllocation,
		Mode:       store.ModeUpsert,
		Key:        doc.Date,
		Docs:       []any{doc},
	}, nil
}
