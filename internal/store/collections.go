package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const collectionSQL = `
CREATE TABLE IF NOT EXISTS %[1]s (
    id BIGSERIAL PRIMARY KEY,
    doc_key TEXT UNIQUE,
    doc JSONB NOT NULL,
    inserted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS %[2]s ON %[1]s (inserted_at);
`

// EnsureCollections creates the schema and every collection table if they
// do not exist yet. Existing tables are left untouched.
func (s *Store) EnsureCollections(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, pgx.Identifier{s.schema}.Sanitize())); err != nil {
		return &PersistenceError{Op: "ensure", Err: err}
	}
	for _, c := range Collections {
		idx := pgx.Identifier{c + "_inserted_at_idx"}.Sanitize()
		if _, err := s.pool.Exec(ctx, fmt.Sprintf(collectionSQL, s.table(c), idx)); err != nil {
			return &PersistenceError{Op: "ensure", Collection: c, Err: err}
		}
	}
	return nil
}
