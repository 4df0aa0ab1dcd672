package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/web3-frozen/onchain-ingest/internal/metrics"
)

// DefaultSchema holds the production collections.
const DefaultSchema = "prod"

// Store is a Postgres-backed document store. Each collection is a table of
// JSONB documents with an optional unique key.
type Store struct {
	pool   *pgxpool.Pool
	schema string
}

// New opens a pool and verifies connectivity. An empty schema selects
// DefaultSchema.
func New(ctx context.Context, databaseURL, schema string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, &PersistenceError{Op: "connect", Err: fmt.Errorf("parse database url: %w", err)}
	}
	// one run writes one batch sequentially
	cfg.MaxConns = 4
	cfg.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, &PersistenceError{Op: "connect", Err: fmt.Errorf("create pool: %w", err)}
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &PersistenceError{Op: "connect", Err: fmt.Errorf("ping database: %w", err)}
	}

	if schema == "" {
		schema = DefaultSchema
	}
	return &Store{pool: pool, schema: schema}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) table(collection string) string {
	return pgx.Identifier{s.schema, collection}.Sanitize()
}

// InsertAppend inserts docs in one transaction without any deduplication.
func (s *Store) InsertAppend(ctx context.Context, collection string, docs []any) (int, error) {
	if err := checkCollection("insert", collection); err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	payloads := make([][]byte, len(docs))
	for i, d := range docs {
		b, err := json.Marshal(d)
		if err != nil {
			return 0, &PersistenceError{Op: "insert", Collection: collection, Err: fmt.Errorf("encode doc %d: %w", i, err)}
		}
		payloads[i] = b
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, &PersistenceError{Op: "insert", Collection: collection, Err: err}
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	batch := &pgx.Batch{}
	q := fmt.Sprintf(`INSERT INTO %s (doc) VALUES ($1)`, s.table(collection))
	for _, p := range payloads {
		batch.Queue(q, p)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, &PersistenceError{Op: "insert", Collection: collection, Err: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, &PersistenceError{Op: "insert", Collection: collection, Err: err}
	}

	metrics.RecordsWrittenTotal.WithLabelValues(collection, ModeAppend).Add(float64(len(docs)))
	return len(docs), nil
}

// UpsertByKey replaces the document stored under key, inserting it if absent.
func (s *Store) UpsertByKey(ctx context.Context, collection, key string, doc any) (UpsertResult, error) {
	if err := checkCollection("upsert", collection); err != nil {
		return UpsertResult{}, err
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return UpsertResult{}, &PersistenceError{Op: "upsert", Collection: collection, Err: fmt.Errorf("encode doc: %w", err)}
	}

	var inserted bool
	err = s.pool.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO %s (doc_key, doc) VALUES ($1, $2)
		ON CONFLICT (doc_key) DO UPDATE
			SET doc = EXCLUDED.doc, updated_at = now()
		RETURNING (xmax = 0)`, s.table(collection)), key, b).Scan(&inserted)
	if err != nil {
		return UpsertResult{}, &PersistenceError{Op: "upsert", Collection: collection, Err: err}
	}

	res := UpsertResult{Inserted: inserted, MatchedExisting: !inserted}
	metrics.RecordsWrittenTotal.WithLabelValues(collection, ModeUpsert).Inc()
	metrics.UpsertsTotal.WithLabelValues(collection, res.Outcome()).Inc()
	return res, nil
}

// Count returns the number of documents in a collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	if err := checkCollection("count", collection); err != nil {
		return 0, err
	}
	var n int
	if err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.table(collection))).Scan(&n); err != nil {
		return 0, &PersistenceError{Op: "count", Collection: collection, Err: err}
	}
	return n, nil
}
