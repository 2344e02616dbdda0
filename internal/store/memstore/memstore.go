// Package memstore provides an in-memory implementation of the entity
// store, used by tests and as the default backend for local development.
// Entities carry a version number; a transaction records the versions it
// read, buffers its writes, and validates the read set at commit time.
// A failed validation re-runs the unit of work.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/confcentral/backend/internal/store"
)

type entry struct {
	data    []byte
	version uint64
}

type taskEntry struct {
	task        store.Task
	leasedUntil time.Time
}

// Store is a versioned in-memory entity store with a task outbox.
// The zero value is not usable; construct with New.
type Store struct {
	mu       sync.Mutex
	entities map[string]entry

	taskMu sync.Mutex
	tasks  map[string]*taskEntry

	nextID atomic.Int64
}

var _ store.Store = (*Store)(nil)

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		entities: make(map[string]entry),
		tasks:    make(map[string]*taskEntry),
	}
}

// Get loads a single entity outside any transaction.
func (s *Store) Get(_ context.Context, key *store.Key, dst any) error {
	s.mu.Lock()
	e, ok := s.entities[key.String()]
	s.mu.Unlock()
	if !ok {
		return store.ErrNoSuchEntity
	}
	return json.Unmarshal(e.data, dst)
}

// GetMulti loads the entities for the given keys, skipping absent ones.
func (s *Store) GetMulti(_ context.Context, keys []*store.Key) ([]store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]store.Record, 0, len(keys))
	for _, k := range keys {
		if e, ok := s.entities[k.String()]; ok {
			records = append(records, store.Record{Key: k, Data: cloneBytes(e.data)})
		}
	}
	return records, nil
}

// Put writes a single entity outside any transaction.
func (s *Store) Put(_ context.Context, key *store.Key, src any) error {
	data, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("marshal entity: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bump(key.String(), data)
	return nil
}

// List returns all entities of kind, optionally restricted to an ancestor.
// Results are ordered by key path for determinism.
func (s *Store) List(_ context.Context, kind string, ancestor *store.Key) ([]store.Record, error) {
	var prefix string
	if ancestor != nil {
		prefix = ancestor.String() + "/"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var records []store.Record
	for path, e := range s.entities {
		if prefix != "" && !strings.HasPrefix(path, prefix) {
			continue
		}
		key, err := decodePath(path)
		if err != nil || key.Kind != kind {
			continue
		}
		records = append(records, store.Record{Key: key, Data: cloneBytes(e.data)})
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Key.String() < records[j].Key.String()
	})
	return records, nil
}

// AllocateID reserves a numeric id. Ids are process-wide monotonic and
// never reused.
func (s *Store) AllocateID(_ context.Context, _ string, _ *store.Key) (int64, error) {
	return s.nextID.Add(1), nil
}

// RunInTransaction re-executes fn until its read set validates at commit.
// fn must be idempotent; tasks it enqueues are published only on commit.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx store.Tx) error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt > 0 {
			store.TxRetries.Inc()
		}
		tx := &memTx{
			s:      s,
			reads:  make(map[string]uint64),
			writes: make(map[string][]byte),
		}
		if err := fn(tx); err != nil {
			return err
		}
		if s.commit(tx) {
			s.publish(tx.tasks)
			store.TxCommits.Inc()
			return nil
		}
	}
}

// commit validates the transaction's read versions and applies its writes
// atomically. Returns false when a concurrent commit invalidated a read.
func (s *Store) commit(tx *memTx) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path, version := range tx.reads {
		if s.entities[path].version != version {
			return false
		}
	}
	for _, path := range tx.writeOrder {
		s.bump(path, tx.writes[path])
	}
	return true
}

// bump writes data at path and advances its version. Callers hold mu.
func (s *Store) bump(path string, data []byte) {
	e := s.entities[path]
	s.entities[path] = entry{data: data, version: e.version + 1}
}

func (s *Store) publish(tasks []store.Task) {
	if len(tasks) == 0 {
		return
	}
	s.taskMu.Lock()
	defer s.taskMu.Unlock()
	for _, t := range tasks {
		s.tasks[t.ID] = &taskEntry{task: t}
	}
}

// LeaseTasks claims up to limit published tasks for the given duration.
func (s *Store) LeaseTasks(_ context.Context, limit int, lease time.Duration) ([]store.Task, error) {
	now := time.Now()
	s.taskMu.Lock()
	defer s.taskMu.Unlock()
	var ids []string
	for id, te := range s.tasks {
		if te.leasedUntil.Before(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	leased := make([]store.Task, 0, len(ids))
	for _, id := range ids {
		te := s.tasks[id]
		te.leasedUntil = now.Add(lease)
		leased = append(leased, te.task)
	}
	return leased, nil
}

// CompleteTask removes a handled task.
func (s *Store) CompleteTask(_ context.Context, id string) error {
	s.taskMu.Lock()
	defer s.taskMu.Unlock()
	delete(s.tasks, id)
	return nil
}

// memTx buffers one unit of work against the store.
type memTx struct {
	s          *Store
	reads      map[string]uint64
	writes     map[string][]byte
	writeOrder []string
	tasks      []store.Task
	groups     map[string]struct{}
}

var _ store.Tx = (*memTx)(nil)

func (tx *memTx) checkGroup(key *store.Key) error {
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

func (tx *memTx) Get(key *store.Key, dst any) error {
	if err := tx.checkGroup(key); err != nil {
		return err
	}
	path := key.String()
	if data, ok := tx.writes[path]; ok {
		return json.Unmarshal(data, dst)
	}
	tx.s.mu.Lock()
	e, ok := tx.s.entities[path]
	tx.s.mu.Unlock()
	tx.reads[path] = e.version
	if !ok {
		return store.ErrNoSuchEntity
	}
	return json.Unmarshal(e.data, dst)
}

func (tx *memTx) Put(key *store.Key, src any) error {
	if err := tx.checkGroup(key); err != nil {
		return err
	}
	data, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("marshal entity: %w", err)
	}
	path := key.String()
	if _, staged := tx.writes[path]; !staged {
		tx.writeOrder = append(tx.writeOrder, path)
	}
	tx.writes[path] = data
	return nil
}

func (tx *memTx) AllocateID(_ string, _ *store.Key) (int64, error) {
	return tx.s.nextID.Add(1), nil
}

func (tx *memTx) Enqueue(name string, params map[string]string) {
	tx.tasks = append(tx.tasks, store.Task{
		ID:     uuid.New().String(),
		Name:   name,
		Params: params,
	})
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// decodePath rebuilds a key from its internal path form.
func decodePath(path string) (*store.Key, error) {
	return store.DecodeKeyPath(path)
}
