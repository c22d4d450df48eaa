package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/fintrack/internal/common"
	"github.com/dmitrijs2005/fintrack/internal/dbx"
	"github.com/dmitrijs2005/fintrack/internal/storage"
)

// ops implements storage.Ops against either the pool or a transaction.
// scope is nil outside ExecuteTransaction.
type ops struct {
	s        *Store
	q        dbx.DBTX
	scope    map[string]bool
	readOnly bool
}

func (o *ops) store(name string) (*storage.Store, error) {
	st, err := o.s.schema.Store(name)
	if err != nil {
		return nil, err
	}
	if o.scope != nil && !o.scope[name] {
		return nil, fmt.Errorf("%w: %s is not part of this transaction", common.ErrUnknownStore, name)
	}
	return st, nil
}

func (o *ops) writeStore(name string) (*storage.Store, error) {
	if o.readOnly {
		return nil, common.ErrReadOnly
	}
	return o.store(name)
}

func (o *ops) write(ctx context.Context, st *storage.Store, doc any, upsert bool) error {
	d, err := storage.NewDocument(st, doc)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("INSERT INTO %s (id, doc) VALUES (%s, %s)",
		st.Table, o.s.dialect.Placeholder(1), o.s.dialect.Placeholder(2))
	if upsert {
		query += " ON CONFLICT (id) DO UPDATE SET doc = excluded.doc"
	}

	if _, err := o.q.ExecContext(ctx, query, d.Key, string(d.Raw)); err != nil {
		if o.s.dialect.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s %q: %w", common.ErrConstraint, st.Name, d.Key, err)
		}
		return fmt.Errorf("%w: write %s %q: %w", common.ErrStorage, st.Name, d.Key, err)
	}
	return nil
}

func (o *ops) Add(ctx context.Context, store string, doc any) error {
	st, err := o.writeStore(store)
	if err != nil {
		return err
	}
	return o.write(ctx, st, doc, false)
}

func (o *ops) Put(ctx context.Context, store string, doc any) error {
	st, err := o.writeStore(store)
	if err != nil {
		return err
	}
	return o.write(ctx, st, doc, true)
}

func (o *ops) Get(ctx context.Context, store, key string, dst any) (bool, error) {
	st, err := o.store(store)
	if err != nil {
		return false, err
	}

	var raw []byte
	query := fmt.Sprintf("SELECT doc FROM %s WHERE id = %s", st.Table, o.s.dialect.Placeholder(1))
	err = o.q.QueryRowContext(ctx, query, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: get %s %q: %w", common.ErrStorage, store, key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("%w: decode %s %q: %w", common.ErrStorage, store, key, err)
	}
	return true, nil
}

func (o *ops) Delete(ctx context.Context, store, key string) error {
	st, err := o.writeStore(store)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE id = %s", st.Table, o.s.dialect.Placeholder(1))
	if _, err := o.q.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("%w: delete %s %q: %w", common.ErrStorage, store, key, err)
	}
	return nil
}

func (o *ops) GetAll(ctx context.Context, store string) (storage.Rows, error) {
	st, err := o.store(store)
	if err != nil {
		return nil, err
	}
	return o.selectDocs(ctx, st, &query{}, "id")
}

func (o *ops) QueryByIndex(ctx context.Context, store, index string, values ...any) (storage.Rows, error) {
	st, ix, q, err := o.indexQuery(store, index, &storage.IndexQuery{Index: index, Values: values})
	if err != nil {
		return nil, err
	}
	return o.selectDocs(ctx, st, q, o.orderBy(ix))
}

func (o *ops) QueryByRange(ctx context.Context, store, index string, r storage.KeyRange) (storage.Rows, error) {
	st, ix, q, err := o.indexQuery(store, index, &storage.IndexQuery{Index: index, Range: &r})
	if err != nil {
		return nil, err
	}
	return o.selectDocs(ctx, st, q, o.orderBy(ix))
}

func (o *ops) Count(ctx context.Context, store string, iq *storage.IndexQuery) (int, error) {
	var (
		st  *storage.Store
		q   = &query{}
		err error
	)
	if iq == nil {
		st, err = o.store(store)
	} else {
		st, _, q, err = o.indexQuery(store, iq.Index, iq)
	}
	if err != nil {
		return 0, err
	}

	var n int
	stmt := "SELECT COUNT(*) FROM " + st.Table + q.whereClause()
	if err := o.q.QueryRowContext(ctx, stmt, q.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count %s: %w", common.ErrStorage, store, err)
	}
	return n, nil
}

func (o *ops) indexQuery(store, index string, iq *storage.IndexQuery) (*storage.Store, *storage.Index, *query, error) {
	st, err := o.store(store)
	if err != nil {
		return nil, nil, nil, err
	}
	ix, err := st.Index(index)
	if err != nil {
		return nil, nil, nil, err
	}

	q := &query{dialect: o.s.dialect}
	if iq.Range != nil {
		err = q.keyRange(ix, *iq.Range)
	} else {
		err = q.equal(ix, iq.Values)
	}
	if err != nil {
		return nil, nil, nil, err
	}
	return st, ix, q, nil
}

func (o *ops) orderBy(ix *storage.Index) string {
	exprs := make([]string, 0, len(ix.Fields)+1)
	for _, f := range ix.Fields {
		exprs = append(exprs, o.s.dialect.Expr(f))
	}
	return strings.Join(append(exprs, "id"), ", ")
}

func (o *ops) selectDocs(ctx context.Context, st *storage.Store, q *query, orderBy string) (storage.Rows, error) {
	stmt := "SELECT doc FROM " + st.Table + q.whereClause() + " ORDER BY " + orderBy
	rows, err := o.q.QueryContext(ctx, stmt, q.args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %w", common.ErrStorage, st.Name, err)
	}
	defer rows.Close()

	var out storage.Rows
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("%w: scan %s: %w", common.ErrStorage, st.Name, err)
		}
		out = append(out, json.RawMessage(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate %s: %w", common.ErrStorage, st.Name, err)
	}
	return out, nil
}
