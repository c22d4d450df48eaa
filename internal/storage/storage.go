// Package storage defines the record store used by the domain services:
// named collections of JSON documents with a string primary key, secondary
// and compound indexes, and multi-store atomic transactions.
//
// Two backends implement Engine: sqlstore (SQLite or PostgreSQL through
// database/sql) and memstore (in-process, used as a test double).
package storage

import (
	"context"
	"encoding/json"
)

// Mode selects the access mode of ExecuteTransaction.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

func (m Mode) String() string {
	if m == ReadWrite {
		return "readwrite"
	}
	return "readonly"
}

// Rows is a query result: one raw JSON document per record.
type Rows []json.RawMessage

// Ops is the CRUD and query surface shared by an Engine and the handle
// passed to an ExecuteTransaction callback.
//
// Documents are any value that marshals to a JSON object carrying the
// store's key path (always "id").
type Ops interface {
	// Add inserts doc. A duplicate primary key or unique index value fails
	// with common.ErrConstraint.
	Add(ctx context.Context, store string, doc any) error

	// Put inserts or replaces doc by primary key.
	Put(ctx context.Context, store string, doc any) error

	// Get decodes the record with the given key into dst. A missing record
	// is reported as found == false with a nil error.
	Get(ctx context.Context, store, key string, dst any) (found bool, err error)

	// Delete removes a record; deleting a missing key is not an error.
	Delete(ctx context.Context, store, key string) error

	GetAll(ctx context.Context, store string) (Rows, error)

	// QueryByIndex returns records whose indexed fields equal values, one
	// value per key path of the index. A nil value matches a missing field.
	QueryByIndex(ctx context.Context, store, index string, values ...any) (Rows, error)

	QueryByRange(ctx context.Context, store, index string, r KeyRange) (Rows, error)

	// Count returns the number of records matching q, or of the whole store
	// when q is nil.
	Count(ctx context.Context, store string, q *IndexQuery) (int, error)
}

// Engine is a schema-versioned record database.
type Engine interface {
	Ops

	// Init opens the database and brings the schema to the current version.
	// Repeated calls are no-ops.
	Init(ctx context.Context) error

	// ExecuteTransaction runs fn against the given stores atomically. If fn
	// returns an error or the commit fails nothing fn did is kept and the
	// returned error matches common.ErrTransactionAborted as well as the
	// cause. fn must use tx, not the Engine, for every operation.
	ExecuteTransaction(ctx context.Context, stores []string, mode Mode, fn func(ctx context.Context, tx Ops) error) error

	Clear(ctx context.Context, store string) error

	// DeleteDatabase drops every store and closes the engine. Init may be
	// called again afterwards.
	DeleteDatabase(ctx context.Context) error

	Close() error
}

// KeyRange bounds an index query. A nil bound is unbounded on that side.
// For compound indexes a bound may be a prefix of the key paths.
type KeyRange struct {
	Lower     []any
	Upper     []any
	LowerOpen bool
	UpperOpen bool
}

// Only is the range holding exactly values.
func Only(values ...any) KeyRange {
	return KeyRange{Lower: values, Upper: values}
}

// Between is the closed range [lower, upper].
func Between(lower, upper []any) KeyRange {
	return KeyRange{Lower: lower, Upper: upper}
}

// AtLeast is the range [lower, +inf), or (lower, +inf) when open is set.
func AtLeast(open bool, lower ...any) KeyRange {
	return KeyRange{Lower: lower, LowerOpen: open}
}

// AtMost is the range (-inf, upper], or (-inf, upper) when open is set.
func AtMost(open bool, upper ...any) KeyRange {
	return KeyRange{Upper: upper, UpperOpen: open}
}

// IndexQuery narrows Count to an index. Exactly one of Values and Range is
// used; Range wins when both are set.
type IndexQuery struct {
	Index  string
	Values []any
	Range  *KeyRange
}
