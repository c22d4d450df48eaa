// Package memstore is an in-process storage.Engine. It enforces the same
// contract as the SQL backend (unique indexes, compound keys, ranges and
// all-or-nothing transactions) and is what service tests run against.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/dmitrijs2005/fintrack/internal/common"
	"github.com/dmitrijs2005/fintrack/internal/storage"
)

type record struct {
	raw   []byte
	value any
}

type table map[string]record

// Store is a storage.Engine held in memory. Documents are kept encoded, so
// callers never share mutable state with the store.
type Store struct {
	mu     sync.RWMutex
	schema storage.Schema
	tables map[string]table
}

var _ storage.Engine = (*Store)(nil)

func New(schema storage.Schema) *Store {
	return &Store{schema: schema}
}

func (s *Store) Init(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tables != nil {
		return nil
	}
	s.tables = make(map[string]table, len(s.schema.Stores))
	for _, st := range s.schema.Stores {
		s.tables[st.Name] = table{}
	}
	return nil
}

func (s *Store) Close() error { return nil }

func (s *Store) DeleteDatabase(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = nil
	return nil
}

func (s *Store) Clear(_ context.Context, store string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tables == nil {
		return common.ErrNotInitialized
	}
	if _, err := s.schema.Store(store); err != nil {
		return err
	}
	s.tables[store] = table{}
	return nil
}

// read runs fn against a view of the live tables under the read lock.
func (s *Store) read(fn func(v *view) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tables == nil {
		return common.ErrNotInitialized
	}
	return fn(&view{schema: &s.schema, tables: s.tables})
}

// write runs fn against the live tables under the write lock. Every single
// operation validates before it mutates, so a failed call changes nothing.
func (s *Store) write(fn func(v *view) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tables == nil {
		return common.ErrNotInitialized
	}
	return fn(&view{schema: &s.schema, tables: s.tables, writable: true})
}

func (s *Store) Add(ctx context.Context, store string, doc any) error {
	return s.write(func(v *view) error { return v.Add(ctx, store, doc) })
}

func (s *Store) Put(ctx context.Context, store string, doc any) error {
	return s.write(func(v *view) error { return v.Put(ctx, store, doc) })
}

func (s *Store) Delete(ctx context.Context, store, key string) error {
	return s.write(func(v *view) error { return v.Delete(ctx, store, key) })
}

func (s *Store) Get(ctx context.Context, store, key string, dst any) (found bool, err error) {
	err = s.read(func(v *view) error {
		found, err = v.Get(ctx, store, key, dst)
		return err
	})
	return found, err
}

func (s *Store) GetAll(ctx context.Context, store string) (rows storage.Rows, err error) {
	err = s.read(func(v *view) error {
		rows, err = v.GetAll(ctx, store)
		return err
	})
	return rows, err
}

func (s *Store) QueryByIndex(ctx context.Context, store, index string, values ...any) (rows storage.Rows, err error) {
	err = s.read(func(v *view) error {
		rows, err = v.QueryByIndex(ctx, store, index, values...)
		return err
	})
	return rows, err
}

func (s *Store) QueryByRange(ctx context.Context, store, index string, r storage.KeyRange) (rows storage.Rows, err error) {
	err = s.read(func(v *view) error {
		rows, err = v.QueryByRange(ctx, store, index, r)
		return err
	})
	return rows, err
}

func (s *Store) Count(ctx context.Context, store string, q *storage.IndexQuery) (n int, err error) {
	err = s.read(func(v *view) error {
		n, err = v.Count(ctx, store, q)
		return err
	})
	return n, err
}

// ExecuteTransaction runs fn on copies of the declared tables and swaps
// them in when fn succeeds. A read-write transaction holds the write lock
// for its whole duration, so writers are serialized.
func (s *Store) ExecuteTransaction(ctx context.Context, stores []string, mode storage.Mode, fn func(ctx context.Context, tx storage.Ops) error) error {
	if mode == storage.ReadWrite {
		s.mu.Lock()
		defer s.mu.Unlock()
	} else {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}
	if s.tables == nil {
		return common.ErrNotInitialized
	}

	scope := make(map[string]bool, len(stores))
	working := make(map[string]table, len(stores))
	for _, name := range stores {
		if _, err := s.schema.Store(name); err != nil {
			return err
		}
		scope[name] = true
		if mode == storage.ReadWrite {
			working[name] = maps.Clone(s.tables[name])
		} else {
			working[name] = s.tables[name]
		}
	}

	tx := &view{schema: &s.schema, tables: working, scope: scope, writable: mode == storage.ReadWrite}
	if err := fn(ctx, tx); err != nil {
		return fmt.Errorf("%w: %w", common.ErrTransactionAborted, err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrTransactionAborted, err)
	}

	if mode == storage.ReadWrite {
		for name, t := range working {
			s.tables[name] = t
		}
	}
	return nil
}

// view implements storage.Ops over a set of tables. The caller holds the
// appropriate lock.
type view struct {
	schema   *storage.Schema
	tables   map[string]table
	scope    map[string]bool
	writable bool
}

func (v *view) table(store string) (*storage.Store, table, error) {
	st, err := v.schema.Store(store)
	if err != nil {
		return nil, nil, err
	}
	if v.scope != nil && !v.scope[store] {
		return nil, nil, fmt.Errorf("%w: %s is not part of this transaction", common.ErrUnknownStore, store)
	}
	return st, v.tables[store], nil
}

func (v *view) writeTable(store string) (*storage.Store, table, error) {
	if !v.writable {
		return nil, nil, common.ErrReadOnly
	}
	return v.table(store)
}

func (v *view) Add(_ context.Context, store string, doc any) error {
	st, t, err := v.writeTable(store)
	if err != nil {
		return err
	}
	d, err := storage.NewDocument(st, doc)
	if err != nil {
		return err
	}
	if _, exists := t[d.Key]; exists {
		return fmt.Errorf("%w: %s key %q already exists", common.ErrConstraint, store, d.Key)
	}
	if err := checkUnique(st, t, d); err != nil {
		return err
	}
	t[d.Key] = record{raw: d.Raw, value: d.Value}
	return nil
}

func (v *view) Put(_ context.Context, store string, doc any) error {
	st, t, err := v.writeTable(store)
	if err != nil {
		return err
	}
	d, err := storage.NewDocument(st, doc)
	if err != nil {
		return err
	}
	if err := checkUnique(st, t, d); err != nil {
		return err
	}
	t[d.Key] = record{raw: d.Raw, value: d.Value}
	return nil
}

func (v *view) Delete(_ context.Context, store, key string) error {
	_, t, err := v.writeTable(store)
	if err != nil {
		return err
	}
	delete(t, key)
	return nil
}

func (v *view) Get(_ context.Context, store, key string, dst any) (bool, error) {
	_, t, err := v.table(store)
	if err != nil {
		return false, err
	}
	r, ok := t[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(r.raw, dst); err != nil {
		return false, fmt.Errorf("%w: decode %s/%s: %w", common.ErrStorage, store, key, err)
	}
	return true, nil
}

func (v *view) GetAll(_ context.Context, store string) (storage.Rows, error) {
	_, t, err := v.table(store)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make(storage.Rows, len(keys))
	for i, k := range keys {
		rows[i] = cloneRaw(t[k].raw)
	}
	return rows, nil
}

func (v *view) QueryByIndex(_ context.Context, store, index string, values ...any) (storage.Rows, error) {
	st, t, err := v.table(store)
	if err != nil {
		return nil, err
	}
	ix, err := st.Index(index)
	if err != nil {
		return nil, err
	}
	if err := storage.CheckArity(ix, len(values), true); err != nil {
		return nil, err
	}
	want := storage.NormalizeAll(values)
	return scan(ix, t, func(key []any) bool { return equalTuple(key, want) }), nil
}

func (v *view) QueryByRange(_ context.Context, store, index string, r storage.KeyRange) (storage.Rows, error) {
	st, t, err := v.table(store)
	if err != nil {
		return nil, err
	}
	ix, err := st.Index(index)
	if err != nil {
		return nil, err
	}
	if err := checkRange(ix, r); err != nil {
		return nil, err
	}
	return scan(ix, t, rangeMatcher(r)), nil
}

func (v *view) Count(ctx context.Context, store string, q *storage.IndexQuery) (int, error) {
	if q == nil {
		_, t, err := v.table(store)
		if err != nil {
			return 0, err
		}
		return len(t), nil
	}

	var (
		rows storage.Rows
		err  error
	)
	if q.Range != nil {
		rows, err = v.QueryByRange(ctx, store, q.Index, *q.Range)
	} else {
		rows, err = v.QueryByIndex(ctx, store, q.Index, q.Values...)
	}
	return len(rows), err
}

func checkRange(ix *storage.Index, r storage.KeyRange) error {
	if err := storage.CheckArity(ix, len(r.Lower), false); err != nil {
		return err
	}
	return storage.CheckArity(ix, len(r.Upper), false)
}

func checkUnique(st *storage.Store, t table, d *storage.Document) error {
	for i := range st.Indexes {
		ix := &st.Indexes[i]
		if !ix.Unique {
			continue
		}
		key := storage.IndexKey(ix, d.Value)
		if hasNil(key) {
			continue
		}
		for k, r := range t {
			if k == d.Key {
				continue
			}
			if equalTuple(storage.IndexKey(ix, r.value), key) {
				return fmt.Errorf("%w: %s.%s value %q already exists", common.ErrConstraint, st.Name, ix.Name, storage.Describe(key))
			}
		}
	}
	return nil
}

type hit struct {
	id  string
	key []any
	raw []byte
}

// scan returns the rows whose index key satisfies match, ordered by index
// key and then primary key.
func scan(ix *storage.Index, t table, match func(key []any) bool) storage.Rows {
	var hits []hit
	for id, r := range t {
		key := storage.IndexKey(ix, r.value)
		if match(key) {
			hits = append(hits, hit{id: id, key: key, raw: r.raw})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if c := compareTuple(hits[i].key, hits[j].key); c != 0 {
			return c < 0
		}
		return hits[i].id < hits[j].id
	})

	rows := make(storage.Rows, len(hits))
	for i, h := range hits {
		rows[i] = cloneRaw(h.raw)
	}
	return rows
}

func cloneRaw(b []byte) json.RawMessage {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
