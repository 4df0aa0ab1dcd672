// Package store persists normalized documents into named collections.
// Two write modes exist: append-only batches and per-key snapshot upserts.
package store

import (
	"fmt"
	"slices"
)

// Collection names.
const (
	MintRedeem           = "tbill_mint_redeem"
	TVL                  = "tbill_tvl"
	UniqueHolders        = "tbill_unique_holders"
	CollateralAllocation = "usdo_collateral_asset_allocation"
)

// Collections lists every collection the ingest jobs write to.
var Collections = []string{MintRedeem, TVL, UniqueHolders, CollateralAllocation}

// Write modes, used as metric labels.
const (
	ModeAppend = "append"
	ModeUpsert = "upsert"
)

// UpsertResult tells whether an upsert created a new document or replaced
// the one already stored under the key.
type UpsertResult struct {
	Inserted        bool
	MatchedExisting bool
}

// Outcome is the metric label for r.
func (r UpsertResult) Outcome() string {
	if r.Inserted {
		return "inserted"
	}
	return "replaced"
}

// PersistenceError wraps any failure talking to the store.
type PersistenceError struct {
	Op         string
	Collection string
	Err        error
}

func (e *PersistenceError) Error() string {
	if e.Collection == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func checkCollection(op, name string) error {
	if !slices.Contains(Collections, name) {
		return &PersistenceError{Op: op, Collection: name, Err: fmt.Errorf("unknown collection")}
	}
	return nil
}
