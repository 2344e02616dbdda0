// Package store defines the transactional entity-store contract shared by
// the Postgres-backed store and the in-memory store. Entities are keyed
// values with ancestor paths; a transaction encloses an entire
// read-check-mutate unit of work and is re-executed transparently when the
// store detects a conflicting concurrent write.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNoSuchEntity is returned by Get when the key does not resolve.
	ErrNoSuchEntity = errors.New("no such entity")

	// ErrConflict signals a detected concurrent write. Implementations
	// handle it internally by re-running the unit of work; it never
	// escapes RunInTransaction.
	ErrConflict = errors.New("transaction conflict")

	// ErrTooManyGroups is returned when a single transaction touches more
	// locality groups than the store guarantees atomicity for.
	ErrTooManyGroups = errors.New("too many entity groups in one transaction")
)

// MaxTxGroups bounds the number of distinct locality groups one
// transaction may touch.
const MaxTxGroups = 5

// Record is a raw entity as returned by listing reads.
type Record struct {
	Key  *Key
	Data []byte
}

// Decode unmarshals the record's payload into dst.
func (r Record) Decode(dst any) error {
	return json.Unmarshal(r.Data, dst)
}

// Tx is the handle passed to a transactional unit of work. The function
// receiving it must be free of external side effects: it may be invoked
// any number of times before one invocation commits. Enqueued tasks are
// buffered and published only by the committed invocation.
type Tx interface {
	// Get loads the entity at key into dst, or returns ErrNoSuchEntity.
	// Writes made earlier in the same transaction are visible.
	Get(key *Key, dst any) error

	// Put stages src to be written at key when the transaction commits.
	Put(key *Key, src any) error

	// AllocateID reserves a numeric id for a new entity under parent.
	// Ids are never reused, even when the transaction aborts.
	AllocateID(kind string, parent *Key) (int64, error)

	// Enqueue stages a notifier task to be published iff the transaction
	// commits. A retried unit of work does not duplicate tasks.
	Enqueue(name string, params map[string]string)
}

// Store is the entity store consumed by the registration engine and the
// notifier. Listing reads are eventually consistent with respect to
// concurrent transactions.
type Store interface {
	// Get loads a single entity outside any transaction.
	Get(ctx context.Context, key *Key, dst any) error

	// GetMulti loads the entities for the given keys. Keys that do not
	// resolve are skipped; the result preserves the order of the keys
	// that did resolve.
	GetMulti(ctx context.Context, keys []*Key) ([]Record, error)

	// Put writes a single entity outside any transaction.
	Put(ctx context.Context, key *Key, src any) error

	// List returns all entities of kind. A non-nil ancestor restricts the
	// scan to keys under that ancestor path.
	List(ctx context.Context, kind string, ancestor *Key) ([]Record, error)

	// AllocateID reserves a numeric id outside any transaction.
	AllocateID(ctx context.Context, kind string, parent *Key) (int64, error)

	// RunInTransaction executes fn as one atomic unit of work, retrying
	// it transparently on conflict until it commits, fn returns an error,
	// or ctx is done. An error returned by fn aborts the transaction and
	// is returned as-is.
	RunInTransaction(ctx context.Context, fn func(tx Tx) error) error

	// LeaseTasks claims up to limit published tasks for the given lease
	// duration. A task not completed before its lease expires becomes
	// claimable again (at-least-once delivery).
	LeaseTasks(ctx context.Context, limit int, lease time.Duration) ([]Task, error)

	// CompleteTask removes a task after it has been handled.
	CompleteTask(ctx context.Context, id string) error
}
