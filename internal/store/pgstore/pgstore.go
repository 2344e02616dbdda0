// Package pgstore implements the entity store on PostgreSQL. Entities are
// JSONB rows keyed by their encoded key path. Transactions run at
// SERIALIZABLE isolation and the unit of work is re-executed on detected
// serialization conflicts, matching the optimistic-retry contract of the
// store interface. Task enqueues become rows in an outbox table written
// inside the same SQL transaction, so a task is published exactly when its
// transaction commits.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/confcentral/backend/internal/store"
)

// Store is a PostgreSQL-backed entity store.
type Store struct {
	db *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// New constructs a Store over an existing connection pool.
func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Get loads a single entity outside any transaction.
func (s *Store) Get(ctx context.Context, key *store.Key, dst any) error {
	var data []byte
	err := s.db.QueryRow(ctx,
		`SELECT data FROM entities WHERE key = $1`,
		key.String(),
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNoSuchEntity
		}
		return fmt.Errorf("get entity: %w", err)
	}
	return json.Unmarshal(data, dst)
}

// GetMulti loads the entities for the given keys, skipping absent ones.
func (s *Store) GetMulti(ctx context.Context, keys []*store.Key) ([]store.Record, error) {
	records := make([]store.Record, 0, len(keys))
	for _, k := range keys {
		var data []byte
		err := s.db.QueryRow(ctx,
			`SELECT data FROM entities WHERE key = $1`,
			k.String(),
		).Scan(&data)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get entity: %w", err)
		}
		records = append(records, store.Record{Key: k, Data: data})
	}
	return records, nil
}

// Put writes a single entity outside any transaction.
func (s *Store) Put(ctx context.Context, key *store.Key, src any) error {
	data, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("marshal entity: %w", err)
	}
	_, err = s.db.Exec(ctx, upsertEntitySQL,
		key.String(), key.Kind, key.Root().String(), data)
	if err != nil {
		return fmt.Errorf("put entity: %w", err)
	}
	return nil
}

// List returns all entities of kind, optionally restricted to an ancestor.
func (s *Store) List(ctx context.Context, kind string, ancestor *store.Key) ([]store.Record, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if ancestor != nil {
		rows, err = s.db.Query(ctx,
			`SELECT key, data FROM entities
			 WHERE kind = $1 AND key LIKE $2
			 ORDER BY key`,
			kind, likeEscape(ancestor.String())+"/%")
	} else {
		rows, err = s.db.Query(ctx,
			`SELECT key, data FROM entities WHERE kind = $1 ORDER BY key`,
			kind)
	}
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var records []store.Record
	for rows.Next() {
		var (
			path string
			data []byte
		)
		if err := rows.Scan(&path, &data); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		key, err := store.DecodeKeyPath(path)
		if err != nil {
			return nil, fmt.Errorf("corrupt entity key %q: %w", path, err)
		}
		records = append(records, store.Record{Key: key, Data: data})
	}
	return records, rows.Err()
}

// AllocateID reserves a numeric id from the shared sequence.
func (s *Store) AllocateID(ctx context.Context, _ string, _ *store.Key) (int64, error) {
	var id int64
	if err := s.db.QueryRow(ctx, `SELECT nextval('entity_ids')`).Scan(&id); err != nil {
		return 0, fmt.Errorf("allocate id: %w", err)
	}
	return id, nil
}

// RunInTransaction executes fn at SERIALIZABLE isolation, re-running it
// when Postgres reports a serialization or deadlock conflict.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx store.Tx) error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt > 0 {
			store.TxRetries.Inc()
		}
		err := s.runOnce(ctx, fn)
		if err == nil {
			store.TxCommits.Inc()
			return nil
		}
		if isSerializationFailure(err) {
			continue
		}
		return err
	}
}

func (s *Store) runOnce(ctx context.Context, fn func(tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// Ensure the transaction is always resolved.
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback(ctx)
		}
	}()

	tx := &pgTx{ctx: ctx, sql: sqlTx}
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.flushTasks(); err != nil {
		return err
	}
	if err = sqlTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// LeaseTasks claims up to limit due tasks, skipping rows locked by
// concurrent notifier instances.
func (s *Store) LeaseTasks(ctx context.Context, limit int, lease time.Duration) ([]store.Task, error) {
	rows, err := s.db.Query(ctx,
		`UPDATE tasks SET leased_until = now() + $1
		 WHERE id IN (
		     SELECT id FROM tasks
		     WHERE leased_until < now()
		     ORDER BY created_at
		     LIMIT $2
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, name, params`,
		lease, limit)
	if err != nil {
		return nil, fmt.Errorf("lease tasks: %w", err)
	}
	defer rows.Close()

	var tasks []store.Task
	for rows.Next() {
		var (
			t      store.Task
			params []byte
		)
		if err := rows.Scan(&t.ID, &t.Name, &params); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if err := json.Unmarshal(params, &t.Params); err != nil {
			return nil, fmt.Errorf("decode task params: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// CompleteTask removes a handled task.
func (s *Store) CompleteTask(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id); err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return nil
}

const upsertEntitySQL = `
INSERT INTO entities (key, kind, root, data)
VALUES ($1, $2, $3, $4)
ON CONFLICT (key) DO UPDATE
SET data = EXCLUDED.data, version = entities.version + 1`

// pgTx adapts a pgx transaction to the store.Tx unit-of-work contract.
type pgTx struct {
	ctx    context.Context
	sql    pgx.Tx
	tasks  []store.Task
	groups map[string]struct{}
}

var _ store.Tx = (*pgTx)(nil)

func (tx *pgTx) checkGroup(key *store.Key) error {
	if tx.groups == nil {
		tx.groups = make(map[string]struct{})
	}
	root := key.Root().String()
	if _, ok := tx.groups[root]; !ok {
		if len(tx.groups) >= store.MaxTxGroups {
			return store.ErrTooManyGroups
		}
		tx.groups[root] = struct{}{}
	}
	return nil
}

func (tx *pgTx) Get(key *store.Key, dst any) error {
	if err := tx.checkGroup(key); err != nil {
		return err
	}
	var data []byte
	err := tx.sql.QueryRow(tx.ctx,
		`SELECT data FROM entities WHERE key = $1`,
		key.String(),
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNoSuchEntity
		}
		return fmt.Errorf("get entity: %w", err)
	}
	return json.Unmarshal(data, dst)
}

func (tx *pgTx) Put(key *store.Key, src any) error {
	if err := tx.checkGroup(key); err != nil {
		return err
	}
	data, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("marshal entity: %w", err)
	}
	_, err = tx.sql.Exec(tx.ctx, upsertEntitySQL,
		key.String(), key.Kind, key.Root().String(), data)
	if err != nil {
		return fmt.Errorf("put entity: %w", err)
	}
	return nil
}

func (tx *pgTx) AllocateID(_ string, _ *store.Key) (int64, error) {
	var id int64
	if err := tx.sql.QueryRow(tx.ctx, `SELECT nextval('entity_ids')`).Scan(&id); err != nil {
		return 0, fmt.Errorf("allocate id: %w", err)
	}
	return id, nil
}

func (tx *pgTx) Enqueue(name string, params map[string]string) {
	tx.tasks = append(tx.tasks, store.Task{
		ID:     uuid.New().String(),
		Name:   name,
		Params: params,
	})
}

// flushTasks writes buffered enqueues into the outbox inside the same SQL
// transaction, so they become visible iff the commit succeeds.
func (tx *pgTx) flushTasks() error {
	for _, t := range tx.tasks {
		params, err := json.Marshal(t.Params)
		if err != nil {
			return fmt.Errorf("marshal task params: %w", err)
		}
		_, err = tx.sql.Exec(tx.ctx,
			`INSERT INTO tasks (id, name, params) VALUES ($1, $2, $3)`,
			t.ID, t.Name, params)
		if err != nil {
			return fmt.Errorf("enqueue task: %w", err)
		}
	}
	return nil
}

// isSerializationFailure reports whether err is a retryable optimistic
// conflict: serialization_failure (40001) or deadlock_detected (40P01).
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likeEscape escapes LIKE metacharacters in a literal prefix.
func likeEscape(s string) string {
	return likeEscaper.Replace(s)
}
