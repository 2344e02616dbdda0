package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema defines the entity table, the id sequence, and the task outbox.
// Tasks live in the same database so a transaction's enqueues commit or
// abort together with its entity writes.
const schema = `
CREATE TABLE IF NOT EXISTS entities (
    key     TEXT PRIMARY KEY,
    kind    TEXT NOT NULL,
    root    TEXT NOT NULL,
    data    JSONB NOT NULL,
    version BIGINT NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS entities_kind_idx ON entities (kind);

CREATE SEQUENCE IF NOT EXISTS entity_ids;

CREATE TABLE IF NOT EXISTS tasks (
    id           UUID PRIMARY KEY,
    name         TEXT NOT NULL,
    params       JSONB NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    leased_until TIMESTAMPTZ NOT NULL DEFAULT 'epoch'
);
`

// EnsureSchema creates the store's tables if they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
